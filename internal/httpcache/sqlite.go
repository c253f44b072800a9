// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package httpcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps entries in a sqlite file, one row per key.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the cache database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("httpcache: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("httpcache: init schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (*Entry, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM responses WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("httpcache: query entry: %w", err)
	}
	return decodeEntry([]byte(value))
}

func (s *SQLiteStorage) Set(ctx context.Context, key string, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO responses (key, value, created_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, created_at=excluded.created_at",
		key, string(data), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("httpcache: store entry: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Purge(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM responses")
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
