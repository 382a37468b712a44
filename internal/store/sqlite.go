package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/vampirenirmal/convocart/internal/conversation"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a ContextStore backed by SQLite. The database runs in WAL
// mode with a single writer connection so concurrent turns never hit
// SQLITE_BUSY on write.
type SQLiteStore struct {
	db   *sql.DB
	opts []conversation.ContextOption
}

// Open creates or opens a SQLite database at the given path and applies
// pragmas and schema. Safe to call repeatedly. The context options
// (timeout, clock) are applied to every restored context.
func Open(path string, opts ...conversation.ContextOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db, opts: opts}, nil
}

// DB exposes the underlying handle so collaborating stores (e.g. the
// idempotency store) can share one database file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements ContextStore.
func (s *SQLiteStore) Get(ctx context.Context, principal string) (*conversation.Context, error) {
	var raw string
	var archived bool
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot, archived FROM contexts WHERE principal = ?`,
		principal,
	).Scan(&raw, &archived)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading context for %s: %w", principal, err)
	}
	if archived {
		return nil, ErrNotFound
	}
	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding context for %s: %w", principal, err)
	}
	return conversation.FromSnapshot(snap, s.opts...), nil
}

// Put implements ContextStore with a compare-and-swap on the version
// column: a concurrent save from another process loses cleanly with
// ErrVersionConflict instead of silently clobbering.
func (s *SQLiteStore) Put(ctx context.Context, principal string, conv *conversation.Context) error {
	newVersion := conv.Version + 1
	snap := conv.Snapshot()
	snap.Version = newVersion
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding context for %s: %w", principal, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE contexts
		 SET snapshot = ?, version = ?, archived = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE principal = ? AND version = ?`,
		string(raw), newVersion, principal, conv.Version)
	if err != nil {
		return fmt.Errorf("saving context for %s: %w", principal, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving context for %s: %w", principal, err)
	}
	if n == 0 {
		// No matching row: either the principal is new, or another writer
		// advanced the version first. A primary-key conflict on the insert
		// means the latter; anything else is a real storage fault.
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO contexts (principal, snapshot, version) VALUES (?, ?, ?)`,
			principal, string(raw), newVersion)
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("saving context for %s: %w", principal, err)
		}
	}
	conv.Version = newVersion
	return nil
}

// Delete implements ContextStore.
func (s *SQLiteStore) Delete(ctx context.Context, principal string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM contexts WHERE principal = ?`, principal)
	if err != nil {
		return fmt.Errorf("deleting context for %s: %w", principal, err)
	}
	return nil
}

// Archive implements ContextStore: the row collapses to a slots-only
// snapshot and is flagged archived.
func (s *SQLiteStore) Archive(ctx context.Context, principal string) (map[string]any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("archiving context for %s: %w", principal, err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT snapshot FROM contexts WHERE principal = ?`, principal,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archiving context for %s: %w", principal, err)
	}

	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding context for %s: %w", principal, err)
	}

	kept := conversation.Snapshot{Principal: principal, Slots: snap.Slots}
	keptRaw, err := json.Marshal(kept)
	if err != nil {
		return nil, fmt.Errorf("encoding archive for %s: %w", principal, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE contexts
		 SET snapshot = ?, version = 0, archived = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE principal = ?`,
		string(keptRaw), principal)
	if err != nil {
		return nil, fmt.Errorf("archiving context for %s: %w", principal, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("archiving context for %s: %w", principal, err)
	}
	return snap.Slots, nil
}

// ArchivedSlots implements ContextStore.
func (s *SQLiteStore) ArchivedSlots(ctx context.Context, principal string) (map[string]any, error) {
	var raw string
	var archived bool
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot, archived FROM contexts WHERE principal = ?`,
		principal,
	).Scan(&raw, &archived)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading archive for %s: %w", principal, err)
	}
	if !archived {
		return nil, ErrNotFound
	}
	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decoding archive for %s: %w", principal, err)
	}
	return snap.Slots, nil
}
