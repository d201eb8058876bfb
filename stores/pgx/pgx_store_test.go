package pgx_test

import (
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/epochal/ges"
	"github.com/epochal/ges/internal/storetest"
	"github.com/epochal/ges/stores/pgx"
)

func TestStore_Compliance(t *testing.T) {
	t.Parallel()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres compliance suite")
	}

	ctx := t.Context()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(pool.Close)

	category := "storetest"
	storetest.Run[int64](t, func(t *testing.T) ges.EventRepository[int64] {
		t.Helper()
		return pgx.New(pool, category, pgx.WithTypeRegistry(map[string]ges.EventCodec{
			"Opened": ges.JSONCodec[storetest.Opened](),
			"Added":  ges.JSONCodec[storetest.Added](),
		}))
	})
}
