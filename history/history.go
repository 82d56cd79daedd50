// Package history keeps the local check log: an append-on-check, capped,
// most-recent-first record of consistency checks, de-duplicated by
// content identifier. Checking an identifier that is already logged
// replaces its entry and moves it to the front.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	store, err := history.Open("regionlens.db")
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Cap is the maximum number of retained entries. Recording beyond the
// cap evicts the oldest.
const Cap = 20

// Schema is the check log table.
const Schema = `
CREATE TABLE IF NOT EXISTS check_log (
    identifier      TEXT PRIMARY KEY,
    risk_level      TEXT NOT NULL,
    avg_similarity  REAL NOT NULL,
    description_md  TEXT NOT NULL DEFAULT '',
    checked_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_log_time ON check_log(checked_at DESC);
`

// Entry is one logged check.
type Entry struct {
	Identifier        string  `json:"identifier"`
	RiskLevel         string  `json:"risk_level"`
	AverageSimilarity float64 `json:"average_similarity"`
	DescriptionMD     string  `json:"description_md,omitempty"`
	CheckedAt         int64   `json:"checked_at"` // unix milliseconds
}

// Store wraps the check log database.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) the check log database with the
// production-safe pragmas applied: WAL journaling, busy timeout,
// NORMAL synchronous, foreign keys on.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.DB.Close() }

// Record logs a check. An existing entry for the same identifier is
// replaced and moved to the front; then entries beyond the cap are
// evicted, oldest first.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Identifier == "" {
		return fmt.Errorf("history: record without identifier")
	}
	if e.CheckedAt == 0 {
		e.CheckedAt = time.Now().UnixMilli()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO check_log (identifier, risk_level, avg_similarity, description_md, checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			risk_level = excluded.risk_level,
			avg_similarity = excluded.avg_similarity,
			description_md = excluded.description_md,
			checked_at = excluded.checked_at`,
		e.Identifier, e.RiskLevel, e.AverageSimilarity, e.DescriptionMD, e.CheckedAt)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM check_log WHERE identifier NOT IN (
			SELECT identifier FROM check_log ORDER BY checked_at DESC LIMIT ?
		)`, Cap)
	if err != nil {
		return fmt.Errorf("history: trim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns entries newest first. limit <= 0 means the full cap.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > Cap {
		limit = Cap
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT identifier, risk_level, avg_similarity, description_md, checked_at
		FROM check_log ORDER BY checked_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Identifier, &e.RiskLevel, &e.AverageSimilarity,
			&e.DescriptionMD, &e.CheckedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
