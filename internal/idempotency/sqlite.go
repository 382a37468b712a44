package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
    key_hash     TEXT NOT NULL,
    scope        TEXT NOT NULL,
    processed_at TIMESTAMP NOT NULL,
    expires_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (key_hash, scope)
);
`

// SQLiteGuard backs claims with a primary-key insert, so the storage
// engine enforces the at-most-one-winner guarantee. It shares a database
// handle with the context store.
type SQLiteGuard struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteGuard creates the idempotency table if needed and returns a
// guard over the given database.
func NewSQLiteGuard(db *sql.DB) (*SQLiteGuard, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("applying idempotency schema: %w", err)
	}
	return &SQLiteGuard{db: db, now: time.Now}, nil
}

// WithClock overrides the time source. Used by tests.
func (g *SQLiteGuard) WithClock(now func() time.Time) *SQLiteGuard {
	g.now = now
	return g
}

// Claim implements Guard as a single atomic statement: a fresh insert
// wins, a conflict with an expired record reclaims it, and a conflict with
// a live record changes no rows.
func (g *SQLiteGuard) Claim(ctx context.Context, keyHash, scope string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := g.now().UTC()
	res, err := g.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key_hash, scope, processed_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (key_hash, scope) DO UPDATE
		 SET processed_at = excluded.processed_at,
		     expires_at   = excluded.expires_at
		 WHERE idempotency_keys.expires_at <= excluded.processed_at`,
		keyHash, scope, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}
	return n > 0, nil
}
