package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Generations lists stored cache generation names, oldest first.
func (s *Store) Generations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM cache_generations ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// DeleteGeneration removes a generation and every entry stored under it.
// Reports whether the generation existed.
func (s *Store) DeleteGeneration(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE generation = ?", name); err != nil {
		return false, fmt.Errorf("deleting entries of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM cache_generations WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("deleting generation %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete of %q: %w", name, err)
	}
	return n > 0, nil
}

// Match returns the first entry stored under key, searching generations
// in creation order.
func (s *Store) Match(ctx context.Context, key string) (CacheEntry, bool, error) {
	var e CacheEntry
	var headerJSON, storedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT e.generation, e.key, e.status, e.header_json, e.body, e.stored_at
		FROM cache_entries e
		JOIN cache_generations g ON g.name = e.generation
		WHERE e.key = ?
		ORDER BY g.rowid ASC
		LIMIT 1`, key,
	).Scan(&e.Generation, &e.Key, &e.Status, &headerJSON, &e.Body, &storedAt)
	if err == sql.ErrNoRows {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("matching %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decoding headers for %q: %w", key, err)
	}
	if e.StoredAt, err = time.Parse(time.RFC3339Nano, storedAt); err != nil {
		return CacheEntry{}, false, fmt.Errorf("parsing stored_at for %q: %w", key, err)
	}
	return e, true, nil
}

// Put stores one entry under an existing generation, replacing any entry
// with the same key. Returns ErrNotFound when the generation has been
// deleted, so a late refresh never brings a removed generation back.
func (s *Store) Put(ctx context.Context, generation string, e CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning put transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM cache_generations WHERE name = ?", generation).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up generation %q: %w", generation, err)
	}

	if err := putEntry(ctx, tx, generation, e, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// PutAll stores entries under the named generation in a single
// transaction: either all of them are written or none.
func (s *Store) PutAll(ctx context.Context, generation string, entries []CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning put transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO cache_generations (name, created_at) VALUES (?, ?)",
		generation, now.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("creating generation %q: %w", generation, err)
	}

	for _, e := range entries {
		if err := putEntry(ctx, tx, generation, e, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func putEntry(ctx context.Context, tx *sql.Tx, generation string, e CacheEntry, now time.Time) error {
	header := e.Header
	if header == nil {
		header = http.Header{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encoding headers for %q: %w", e.Key, err)
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = now
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entries (generation, key, status, header_json, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(generation, key) DO UPDATE SET
			status = excluded.status,
			header_json = excluded.header_json,
			body = excluded.body,
			stored_at = excluded.stored_at`,
		generation, e.Key, e.Status, string(headerJSON), e.Body, storedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("storing %q in %q: %w", e.Key, generation, err)
	}
	return nil
}
