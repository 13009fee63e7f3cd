// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The OpenPSG Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package study

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists exported features in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates the feature database at path and applies
// the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applySchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS export_runs (
            id TEXT PRIMARY KEY,
            created_at TEXT NOT NULL,
            source_dir TEXT NOT NULL,
            subjects INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS features (
            run_id TEXT NOT NULL REFERENCES export_runs(id),
            subject TEXT NOT NULL,
            pair TEXT NOT NULL,
            chromophore TEXT NOT NULL,
            condition TEXT NOT NULL,
            value REAL NOT NULL,
            events INTEGER NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_features_run ON features(run_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ExportResult summarizes one export run.
type ExportResult struct {
	RunID    string
	Features int
}

// Export writes the block-averaged features of every subject to the
// database as a new run.
func (s *Store) Export(ctx context.Context, st *Study, sourceDir string, baseline float64) (*ExportResult, error) {
	runID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin export: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO export_runs (id, created_at, source_dir, subjects) VALUES (?, ?, ?, ?)`,
		runID, now, sourceDir, len(st.Order),
	); err != nil {
		return nil, fmt.Errorf("insert export run: %w", err)
	}

	count := 0
	for _, label := range st.Order {
		for _, feat := range st.Subjects[label].BlockAverages(baseline) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO features (run_id, subject, pair, chromophore, condition, value, events)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, feat.Subject, feat.Pair, feat.Chromophore, feat.Condition, feat.Value, feat.Events,
			); err != nil {
				return nil, fmt.Errorf("insert feature: %w", err)
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit export: %w", err)
	}
	return &ExportResult{RunID: runID, Features: count}, nil
}

// Features returns the features of a run in insertion order.
func (s *Store) Features(ctx context.Context, runID string) ([]Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, pair, chromophore, condition, value, events
         FROM features WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.Subject, &f.Pair, &f.Chromophore, &f.Condition, &f.Value, &f.Events); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	return out, nil
}
