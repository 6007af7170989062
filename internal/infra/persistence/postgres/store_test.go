package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"pharmacore/internal/entitymodel/sqlbundle"
	"pharmacore/internal/infra/persistence/postgres/testutil"
	"pharmacore/internal/infra/persistence/sqlstore"
	"pharmacore/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("expected driver %q, got %q", defaultDriver, driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, conn
}

func TestNewStoreAppliesPostgresSchema(t *testing.T) {
	_, conn := openStub(t)
	expected := sqlbundle.SplitStatements(sqlbundle.Postgres())
	if len(conn.Execs) != len(expected) {
		t.Fatalf("expected %d DDL statements, got %d", len(expected), len(conn.Execs))
	}
	var sawManufacturers bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS manufacturers") {
			sawManufacturers = true
		}
	}
	if !sawManufacturers {
		t.Fatalf("expected manufacturers table DDL, got %v", conn.Execs)
	}
}

func TestNewStorePingFailureClosesHandle(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := NewStore("postgres://example", nil); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, fmt.Errorf("boom") })
	defer restore()
	if _, err := NewStore("", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open failure, got %v", err)
	}
}

func TestRunInTransactionUsesDollarPlaceholders(t *testing.T) {
	store, conn := openStub(t)
	ctx := context.Background()

	var pharmacy domain.Pharmacy
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Acme", Phone: "555-0100"}); err != nil {
			return err
		}
		var err error
		pharmacy, err = tx.InsertPharmacy(domain.Pharmacy{Name: "Central", Address: "1 Main", Phone: "555-0101"})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if pharmacy.ID != 1 {
		t.Fatalf("expected generated pharmacy id 1, got %d", pharmacy.ID)
	}

	var sawDollar bool
	for _, stmt := range append(append([]string{}, conn.Execs...), conn.Queries...) {
		if strings.Contains(stmt, "?") {
			t.Fatalf("unexpected question-mark placeholder in %q", stmt)
		}
		if strings.Contains(stmt, "$1") {
			sawDollar = true
		}
	}
	if !sawDollar {
		t.Fatalf("expected dollar placeholders in issued statements")
	}

	err = store.View(ctx, func(view domain.TransactionView) error {
		m, ok := view.FindManufacturer("Acme")
		if !ok || m.Phone != "555-0100" {
			t.Fatalf("expected manufacturer persisted, got %+v (found=%v)", m, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestDuplicateManufacturerReportedBeforeWrite(t *testing.T) {
	store, _ := openStub(t)
	ctx := context.Background()
	insert := func(tx domain.Transaction) error {
		_, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Acme"})
		return err
	}
	if _, err := store.RunInTransaction(ctx, insert); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := store.RunInTransaction(ctx, insert)
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
}

func TestDriverConstraintErrorsAreTranslated(t *testing.T) {
	store, conn := openStub(t)
	ctx := context.Background()

	conn.ExecErr = &pgconn.PgError{Code: codeUniqueViolation, Message: "duplicate key value"}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Acme"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected unique violation to map to duplicate key, got %v", err)
	}

	conn.ExecErr = &pgconn.PgError{Code: codeForeignKeyViolation, Message: "violates foreign key"}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Borealis"})
		return err
	})
	if domain.KindOf(err) != domain.KindIntegrityViolation {
		t.Fatalf("expected foreign key failure to map to integrity violation, got %v", err)
	}
}

func TestQueryFailureAbortsTransaction(t *testing.T) {
	store, conn := openStub(t)
	conn.FailTables = map[string]bool{"manufacturers": true}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, _ = tx.Snapshot().FindManufacturer("Acme")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "query fail for manufacturers") {
		t.Fatalf("expected sticky query failure, got %v", err)
	}
}

func TestCommitAndBeginFailuresSurface(t *testing.T) {
	store, conn := openStub(t)
	ctx := context.Background()
	noop := func(domain.Transaction) error { return nil }

	conn.FailCommit = true
	if _, err := store.RunInTransaction(ctx, noop); err == nil || !strings.Contains(err.Error(), "commit tx") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false
	conn.FailBegin = true
	if _, err := store.RunInTransaction(ctx, noop); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin failure, got %v", err)
	}
	if err := store.View(ctx, func(domain.TransactionView) error { return nil }); err == nil {
		t.Fatalf("expected view begin failure")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want sqlstore.Constraint
	}{
		{&pgconn.PgError{Code: codeUniqueViolation}, sqlstore.ConstraintUnique},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: codeForeignKeyViolation}), sqlstore.ConstraintForeignKey},
		{&pgconn.PgError{Code: "23514"}, sqlstore.ConstraintNone},
		{errors.New("plain"), sqlstore.ConstraintNone},
	}
	for _, tc := range cases {
		if got := classify(tc.err); got != tc.want {
			t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
