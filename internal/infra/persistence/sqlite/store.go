// Package sqlite provides the embedded SQLite backend of the relational store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"

	"pharmacore/internal/entitymodel/sqlbundle"
	"pharmacore/internal/infra/persistence/sqlstore"
	"pharmacore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "sqlite"
	// DefaultPath is used when no database path is configured.
	DefaultPath = "pharmacore.db"
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

// Dialect describes SQLite for the shared relational store.
var Dialect = sqlstore.Dialect{
	Name:         sqlbundle.DialectSQLite,
	Placeholders: sqlstore.PlaceholderQuestion,
	Classify:     classify,
}

// Store is the relational store over a SQLite database file.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the database at path, enables foreign
// keys on every connection, and applies the schema.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)
	if err := sqlstore.ApplySchema(context.Background(), db, sqlbundle.SQLite()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, Dialect, engine), path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func dsn(path string) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == MemoryPath {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

func classify(err error) sqlstore.Constraint {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return sqlstore.ConstraintNone
	}
	code := serr.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return sqlstore.ConstraintUnique
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return sqlstore.ConstraintForeignKey
	}
	if code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return sqlstore.ConstraintNone
	}
	msg := serr.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY"):
		return sqlstore.ConstraintForeignKey
	case strings.Contains(msg, "UNIQUE"), strings.Contains(msg, "PRIMARY KEY"):
		return sqlstore.ConstraintUnique
	default:
		return sqlstore.ConstraintNone
	}
}
