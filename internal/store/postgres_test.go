package store_test

import (
	"context"
	"os"
	"testing"

	"threadwatch/internal/store"
)

const postgresDSNEnv = "THREADWATCH_TEST_POSTGRES_DSN"

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	runContract(t, func(t *testing.T, clock *testClock) store.Store {
		t.Helper()
		ctx := context.Background()
		st, err := store.OpenPostgres(ctx, dsn, store.WithClock(clock.Now))
		if err != nil {
			t.Fatalf("OpenPostgres failed: %v", err)
		}
		if err := st.ResetForTest(ctx); err != nil {
			t.Fatalf("reset postgres: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func TestPostgresUnreachableReportsUnhealthy(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenPostgres(ctx, "postgres://threadwatch@127.0.0.1:1/threadwatch?connect_timeout=1")
	if err != nil {
		t.Fatalf("OpenPostgres should defer connection errors, got %v", err)
	}
	defer st.Close()

	h := st.Health(ctx)
	if h.Healthy {
		t.Fatalf("expected unhealthy store, got %+v", h)
	}
	if h.Backend != store.BackendPostgres || h.Detail == "" {
		t.Fatalf("expected postgres backend with detail, got %+v", h)
	}
}
