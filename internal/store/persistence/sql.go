// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

const sqlDriver = "sqlite"

// SQLStorage persists the document in a sqlite database.
// Tables `request_templates` and `default_entries` are created on first use.
type SQLStorage struct {
	dsn string
	db  *sql.DB
}

// NewSQLStorage creates a new SQLStorage. The connection is opened lazily.
func NewSQLStorage(dsn string) *SQLStorage {
	return &SQLStorage{
		dsn: dsn,
	}
}

func (s *SQLStorage) open() error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open(sqlDriver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS request_templates (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		endpoint TEXT NOT NULL,
		quantity_field TEXT NOT NULL,
		parameters TEXT NOT NULL,
		factor_selector TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS default_entries (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		factor REAL NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Load reads both tables in storage order.
func (s *SQLStorage) Load() (*model.Document, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	doc := model.NewDocument()

	rows, err := s.db.Query("SELECT id, endpoint, quantity_field, parameters, factor_selector FROM request_templates ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.RequestTemplate
		var params, selector string
		if err := rows.Scan(&t.ID, &t.Endpoint, &t.QuantityField, &params, &selector); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &t.Parameters); err != nil {
			return nil, fmt.Errorf("invalid parameters for template %q: %w", t.ID, err)
		}
		if err := json.Unmarshal([]byte(selector), &t.FactorSelector); err != nil {
			return nil, fmt.Errorf("invalid factor selector for template %q: %w", t.ID, err)
		}
		doc.Templates = append(doc.Templates, t.Clone())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	drows, err := s.db.Query("SELECT id, factor FROM default_entries ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query defaults: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var e model.DefaultEntry
		if err := drows.Scan(&e.ID, &e.Factor); err != nil {
			return nil, fmt.Errorf("failed to scan default: %w", err)
		}
		doc.Defaults = append(doc.Defaults, e)
	}
	return doc, drows.Err()
}

// Save replaces both tables in a single transaction.
func (s *SQLStorage) Save(doc *model.Document) error {
	if err := s.open(); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM request_templates"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM default_entries"); err != nil {
		return err
	}

	for i, t := range doc.Templates {
		params, err := json.Marshal(t.Clone().Parameters)
		if err != nil {
			return err
		}
		selector, err := json.Marshal(t.Clone().FactorSelector)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			"INSERT INTO request_templates (id, position, endpoint, quantity_field, parameters, factor_selector) VALUES (?, ?, ?, ?, ?, ?)",
			t.ID, i, t.Endpoint, t.QuantityField, string(params), string(selector),
		)
		if err != nil {
			return fmt.Errorf("failed to persist template %q: %w", t.ID, err)
		}
	}
	for i, e := range doc.Defaults {
		_, err := tx.Exec("INSERT INTO default_entries (id, position, factor) VALUES (?, ?, ?)", e.ID, i, e.Factor)
		if err != nil {
			return fmt.Errorf("failed to persist default %q: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
