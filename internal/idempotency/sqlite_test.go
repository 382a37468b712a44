package idempotency_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vampirenirmal/convocart/internal/idempotency"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idem.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteGuardClaim(t *testing.T) {
	guard, err := idempotency.NewSQLiteGuard(openTestDB(t))
	require.NoError(t, err)

	key := idempotency.Key("+15550001111", "cart-1", "confirm_order")

	won, err := guard.Claim(context.Background(), key, "order", time.Hour)
	require.NoError(t, err)
	assert.True(t, won, "first claim should win")

	won, err = guard.Claim(context.Background(), key, "order", time.Hour)
	require.NoError(t, err)
	assert.False(t, won, "duplicate claim inside TTL should lose")
}

func TestSQLiteGuardReclaimExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard, err := idempotency.NewSQLiteGuard(openTestDB(t))
	require.NoError(t, err)
	guard.WithClock(func() time.Time { return now })

	key := idempotency.Key("+15550001111", "cart-1", "confirm_order")

	won, err := guard.Claim(context.Background(), key, "order", time.Hour)
	require.NoError(t, err)
	require.True(t, won)

	now = now.Add(2 * time.Hour)
	won, err = guard.Claim(context.Background(), key, "order", time.Hour)
	require.NoError(t, err)
	assert.True(t, won, "expired record should be reclaimable")
}

func TestSQLiteGuardConcurrentSingleWinner(t *testing.T) {
	guard, err := idempotency.NewSQLiteGuard(openTestDB(t))
	require.NoError(t, err)

	key := idempotency.Key("+15550001111", "cart-1", "confirm_order")

	var wins atomic.Int64
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			won, err := guard.Claim(context.Background(), key, "order", time.Hour)
			if err != nil {
				return err
			}
			if won {
				wins.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), wins.Load(), "exactly one concurrent claimer may win")
}
