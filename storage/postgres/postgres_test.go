package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/healthseal/storage/storagetest"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("HEALTHSEAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HEALTHSEAL_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}

	// Clean tables for test isolation.
	pool.Exec(ctx, "DELETE FROM fields") //nolint:errcheck

	return NewRepository(pool), func() {
		pool.Exec(ctx, "DELETE FROM fields") //nolint:errcheck
		pool.Close()
	}
}

func TestPostgresStorage(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	storagetest.Run(t, s)
}

func TestPostgresStorage_UpdatedAt(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := s.Put(ctx, "profile/a/conditions", "v1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	var first, second string
	if err := s.Pool().QueryRow(ctx, `SELECT updated_at::text FROM fields WHERE key = $1`, "profile/a/conditions").Scan(&first); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if err := s.Put(ctx, "profile/a/conditions", "v2"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Pool().QueryRow(ctx, `SELECT updated_at::text FROM fields WHERE key = $1`, "profile/a/conditions").Scan(&second); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if second < first {
		t.Errorf("updated_at went backwards: %s then %s", first, second)
	}
}
