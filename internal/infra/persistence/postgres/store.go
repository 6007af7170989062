// Package postgres provides the Postgres backend of the relational store. It
// registers pgx as the database/sql driver, applies the schema on startup, and
// translates Postgres constraint errors for the shared store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"pharmacore/internal/entitymodel/sqlbundle"
	"pharmacore/internal/infra/persistence/sqlstore"
	"pharmacore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/pharmacore?sslmode=disable"

	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect describes Postgres for the shared relational store.
var Dialect = sqlstore.Dialect{
	Name:         sqlbundle.DialectPostgres,
	Placeholders: sqlstore.PlaceholderDollar,
	Classify:     classify,
}

// Store is the relational store over a Postgres database.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// DefaultDSN), verifies connectivity, and applies the schema.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	return NewStoreContext(context.Background(), dsn, engine)
}

// NewStoreContext is NewStore with a caller-supplied context for the startup
// round trips.
func NewStoreContext(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlstore.ApplySchema(ctx, db, sqlbundle.Postgres()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, Dialect, engine)}, nil
}

func classify(err error) sqlstore.Constraint {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return sqlstore.ConstraintNone
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return sqlstore.ConstraintUnique
	case codeForeignKeyViolation:
		return sqlstore.ConstraintForeignKey
	default:
		return sqlstore.ConstraintNone
	}
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
