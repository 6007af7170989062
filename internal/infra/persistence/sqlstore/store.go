// Package sqlstore implements domain.PersistentStore over database/sql with a
// normalized relational schema (one table per entity, declarative foreign
// keys, unique keys, and cascades). Dialect-specific concerns (placeholders,
// constraint error classification) are injected by the sqlite and postgres
// packages.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"pharmacore/internal/entitymodel/sqlbundle"
	"pharmacore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Constraint classifies a driver error raised by a violated table constraint.
type Constraint int

// Constraint classes recognised by the store.
const (
	ConstraintNone Constraint = iota
	ConstraintUnique
	ConstraintForeignKey
)

// PlaceholderStyle selects how bind parameters are written.
type PlaceholderStyle int

// Supported placeholder styles.
const (
	// PlaceholderQuestion keeps "?" markers (SQLite).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar rewrites markers to "$1", "$2", ... (Postgres).
	PlaceholderDollar
)

// Dialect captures the driver differences the store cares about.
type Dialect struct {
	Name         string
	Placeholders PlaceholderStyle
	Classify     func(error) Constraint
}

// Rebind rewrites "?" markers for the dialect's placeholder style.
func (d Dialect) Rebind(query string) string {
	if d.Placeholders != PlaceholderDollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) classify(err error) Constraint {
	if d.Classify == nil || err == nil {
		return ConstraintNone
	}
	return d.Classify(err)
}

// Store persists the pharmacy entity graph in relational tables. Every
// RunInTransaction maps to exactly one database transaction; rules are
// evaluated against the uncommitted rows before commit.
type Store struct {
	db      *sql.DB
	dialect Dialect
	engine  *domain.RulesEngine
}

// New wraps an open database handle. The schema is not touched; call
// ApplySchema first for fresh databases.
func New(db *sql.DB, dialect Dialect, engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{db: db, dialect: dialect, engine: engine}
}

// ApplySchema executes the dialect's DDL bundle. Statements are idempotent.
func ApplySchema(ctx context.Context, db *sql.DB, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the configured dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn inside a database transaction. Lookup failures
// inside fn are sticky: they abort the transaction and take precedence over
// whatever fn returned, since fn may have acted on a failed read.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &transaction{view: newView(ctx, sqlTx, s.dialect)}
	fnErr := fn(tx)
	if err := tx.view.Err(); err != nil {
		return domain.Result{}, err
	}
	if fnErr != nil {
		return domain.Result{}, fnErr
	}

	result, err := s.engine.Evaluate(ctx, tx.view, tx.changes)
	if viewErr := tx.view.Err(); viewErr != nil {
		return domain.Result{}, viewErr
	}
	if err != nil {
		return domain.Result{}, err
	}
	if result.HasBlocking() {
		return result, domain.RuleViolationError{Result: result}
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return result, nil
}

// View executes fn against a consistent read transaction that is always
// rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	v := newView(ctx, sqlTx, s.dialect)
	fnErr := fn(v)
	if err := v.Err(); err != nil {
		return err
	}
	return fnErr
}
