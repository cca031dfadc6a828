// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/glucobar/internal/logging"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         []string
	AppliedAt   time.Time
}

// schemaMigrationsTable tracks applied versions. applied_at is Unix ms.
const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at BIGINT NOT NULL
)`

// migrations must stay append-only once released.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "create_readings",
		Description: "Glucose readings with insertion sequence",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS readings (
				id TEXT PRIMARY KEY,
				seq BIGINT NOT NULL,
				ts_ms BIGINT NOT NULL,
				ts_sec BIGINT NOT NULL,
				value DOUBLE NOT NULL,
				unit TEXT NOT NULL,
				is_high BOOLEAN NOT NULL DEFAULT FALSE,
				is_low BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_readings_ts_ms ON readings (ts_ms)`,
			`CREATE INDEX IF NOT EXISTS idx_readings_seq ON readings (seq)`,
		},
	},
	{
		Version:     2,
		Name:        "create_patient_profile",
		Description: "Single-row patient profile",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS patient_profile (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				unit TEXT NOT NULL,
				target_low DOUBLE NOT NULL,
				target_high DOUBLE NOT NULL,
				insulin_sensitivity DOUBLE NOT NULL DEFAULT 0,
				carb_ratio DOUBLE NOT NULL DEFAULT 0,
				patient_id TEXT NOT NULL DEFAULT '',
				updated_at BIGINT NOT NULL
			)`,
		},
	},
	{
		Version:     3,
		Name:        "create_insulin_shots",
		Description: "User-logged insulin injections",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS insulin_shots (
				id TEXT PRIMARY KEY,
				ts_ms BIGINT NOT NULL,
				units DOUBLE NOT NULL,
				kind TEXT NOT NULL,
				note TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_insulin_ts_ms ON insulin_shots (ts_ms)`,
		},
	},
}

// runMigrations applies every migration not yet recorded.
func (db *DB) runMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return err
		}
		count++
	}

	if count > 0 {
		logging.Info().Int("applied", count).Int("total", len(migrations)).Msg("Applied database migrations")
	}
	return nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", m.Version, err)
	}
	defer rollback(tx)

	for _, stmt := range m.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`,
		m.Version, m.Name, m.Description, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
	}
	return tx.Commit()
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// AppliedMigrations lists recorded migrations in version order.
func (db *DB) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var out []Migration
	for rows.Next() {
		var m Migration
		var appliedMS int64
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &appliedMS); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		m.AppliedAt = fromMillis(appliedMS)
		out = append(out, m)
	}
	return out, rows.Err()
}
