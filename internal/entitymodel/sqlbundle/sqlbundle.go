// Package sqlbundle exposes the relational DDL bundles for the SQL stores.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	sqldocs "pharmacore/docs/schema/sql"
)

// Dialect names accepted by ForDialect.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Tables lists the schema tables in dependency order (parents first).
var Tables = []string{
	"doctors",
	"patients",
	"manufacturers",
	"pharmacies",
	"drugs",
	"contracts",
	"inventory",
	"prescriptions",
	"prescription_lines",
}

// SQLite returns the SQLite DDL.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL.
func Postgres() string {
	return sqldocs.Postgres
}

// ForDialect returns the DDL for the named dialect.
func ForDialect(dialect string) (string, error) {
	switch strings.ToLower(dialect) {
	case DialectSQLite:
		return SQLite(), nil
	case DialectPostgres, "pgx":
		return Postgres(), nil
	default:
		return "", fmt.Errorf("unknown sql dialect %q", dialect)
	}
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
