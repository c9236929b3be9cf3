package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/adapters/repository/postgres"
	"github.com/agiraud1/radar-fr/internal/adapters/repository/storetest"
)

// dsnEnv names a disposable database; its tables are truncated by the suite.
const dsnEnv = "RADAR_TEST_PG_DSN"

func TestStoreConformance(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		ctx := context.Background()
		st, err := postgres.Open(ctx, dsn, postgres.WithMaxConns(4))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		_, err = st.Pool().Exec(ctx,
			`TRUNCATE signal_feedback, company_score_daily, signal, company RESTART IDENTITY CASCADE`)
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return st
	})
}
