// Package test provides a sqlite-backed testing store. SQLite is the
// designated development and testing backend; postgres-specific behavior
// is covered against a real instance via POSTGRES_TEST_DSN.
package test

import (
	"context"
	"os"
	"testing"

	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/store"
	"github.com/usecounsel/counsel/store/db"
)

// NewTestingStore creates a fresh migrated store backed by a throwaway
// sqlite database.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Data:   t.TempDir(),
		Driver: "sqlite",
	}
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		p.Driver = "postgres"
		p.DSN = dsn
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("failed to validate profile: %v", err)
	}

	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}
