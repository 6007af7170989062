package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pharmacore/internal/infra/persistence/storetest"
	"pharmacore/pkg/domain"
)

const integrationDSNEnv = "PHARMACORE_TEST_POSTGRES_DSN"

var schemaSeq atomic.Int64

// TestStoreContractAgainstPostgres runs the store contract in a throwaway
// schema per case. It needs a reachable server.
func TestStoreContractAgainstPostgres(t *testing.T) {
	dsn := os.Getenv(integrationDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", integrationDSNEnv)
	}
	storetest.Run(t, func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
		schema := fmt.Sprintf("pharmacore_test_%d_%d", time.Now().UnixNano(), schemaSeq.Add(1))
		admin, err := sql.Open(defaultDriver, dsn)
		if err != nil {
			t.Fatalf("open admin: %v", err)
		}
		t.Cleanup(func() { _ = admin.Close() })
		if _, err := admin.Exec("CREATE SCHEMA " + schema); err != nil {
			t.Fatalf("create schema: %v", err)
		}
		t.Cleanup(func() { _, _ = admin.Exec("DROP SCHEMA " + schema + " CASCADE") })

		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		store, err := NewStoreContext(context.Background(), dsn+sep+"search_path="+schema, engine)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
