// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
	"github.com/tomtom215/glucobar/internal/models"
)

const readingColumns = `id, ts_ms, value, unit, is_high, is_low`

// DedupeResult reports what a dedup pass did.
type DedupeResult struct {
	Survivors int `json:"survivors"`
	Removed   int `json:"removed"`
}

// FetchAll returns every stored reading in insertion order.
func (db *DB) FetchAll(ctx context.Context) ([]models.Reading, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.RLock()
	defer db.mu.RUnlock()

	start := time.Now()
	out, err := queryReadings(ctx, db.conn, `SELECT `+readingColumns+` FROM readings ORDER BY seq`)
	metrics.RecordDBQuery("fetch_all", "readings", time.Since(start), err)
	return out, err
}

// Range returns readings with from <= timestamp <= to, newest first.
func (db *DB) Range(ctx context.Context, from, to time.Time) ([]models.Reading, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.RLock()
	defer db.mu.RUnlock()

	start := time.Now()
	out, err := queryReadings(ctx, db.conn,
		`SELECT `+readingColumns+` FROM readings WHERE ts_ms >= ? AND ts_ms <= ? ORDER BY ts_ms DESC, seq`,
		toMillis(from), toMillis(to))
	metrics.RecordDBQuery("range", "readings", time.Since(start), err)
	return out, err
}

// Latest returns the newest reading, or ErrNotFound on an empty store.
func (db *DB) Latest(ctx context.Context) (models.Reading, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.RLock()
	defer db.mu.RUnlock()

	start := time.Now()
	out, err := queryReadings(ctx, db.conn, `SELECT `+readingColumns+` FROM readings ORDER BY ts_ms DESC, seq LIMIT 1`)
	metrics.RecordDBQuery("latest", "readings", time.Since(start), err)
	if err != nil {
		return models.Reading{}, err
	}
	if len(out) == 0 {
		return models.Reading{}, ErrNotFound
	}
	return out[0], nil
}

// Count returns the number of stored readings.
func (db *DB) Count(ctx context.Context) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.RLock()
	defer db.mu.RUnlock()
	return countReadings(ctx, db.conn)
}

// InsertNew stores readings in one transaction. Readings whose id already
// exists are skipped.
func (db *DB) InsertNew(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM readings`).Scan(&next); err != nil {
			return fmt.Errorf("read sequence: %w", err)
		}
		return insertReadings(ctx, tx, readings, next+1)
	})
	metrics.RecordDBQuery("insert", "readings", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	db.refreshStoredGauge(ctx)
	return nil
}

// DeleteAll removes every reading. It reports whether anything was removed.
func (db *DB) DeleteAll(ctx context.Context) (bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM readings`)
	metrics.RecordDBQuery("delete_all", "readings", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("delete readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete readings: %w", err)
	}
	metrics.StoredReadings.Set(0)
	return n > 0, nil
}

// Dedupe keeps the first stored reading of every wall-clock second and
// drops the rest. When anything is dropped the table is rewritten in a
// single transaction, so it either fully applies or not at all. Running it
// on a clean store changes nothing.
func (db *DB) Dedupe(ctx context.Context) (DedupeResult, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	all, err := queryReadings(ctx, db.conn, `SELECT `+readingColumns+` FROM readings ORDER BY seq`)
	if err != nil {
		metrics.RecordDBQuery("dedupe", "readings", time.Since(start), err)
		return DedupeResult{}, err
	}

	survivors := firstPerSecond(all)
	result := DedupeResult{Survivors: len(survivors), Removed: len(all) - len(survivors)}
	if result.Removed == 0 {
		metrics.RecordDBQuery("dedupe", "readings", time.Since(start), nil)
		return result, nil
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM readings`); err != nil {
			return fmt.Errorf("clear readings: %w", err)
		}
		return insertReadings(ctx, tx, survivors, 1)
	})
	metrics.RecordDBQuery("dedupe", "readings", time.Since(start), err)
	if err != nil {
		return DedupeResult{}, fmt.Errorf("rewrite readings: %w", err)
	}

	metrics.DedupeRemoved.Add(float64(result.Removed))
	metrics.StoredReadings.Set(float64(result.Survivors))
	logging.Ctx(ctx).Info().
		Int("removed", result.Removed).
		Int("survivors", result.Survivors).
		Msg("Removed duplicate readings")
	return result, nil
}

// firstPerSecond keeps the first reading of each second, preserving order.
func firstPerSecond(readings []models.Reading) []models.Reading {
	seen := make(map[int64]struct{}, len(readings))
	out := make([]models.Reading, 0, len(readings))
	for _, r := range readings {
		sec := r.Second()
		if _, dup := seen[sec]; dup {
			continue
		}
		seen[sec] = struct{}{}
		out = append(out, r)
	}
	return out
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryReadings(ctx context.Context, q queryer, query string, args ...any) ([]models.Reading, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []models.Reading
	for rows.Next() {
		var (
			r    models.Reading
			tsMS int64
			unit string
		)
		if err := rows.Scan(&r.ID, &tsMS, &r.Value, &unit, &r.IsHigh, &r.IsLow); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Timestamp = fromMillis(tsMS)
		r.Unit = models.Unit(unit)
		out = append(out, r)
	}
	return out, rows.Err()
}

func countReadings(ctx context.Context, q queryer) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

func insertReadings(ctx context.Context, tx *sql.Tx, readings []models.Reading, firstSeq int64) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings (id, seq, ts_ms, ts_sec, value, unit, is_high, is_low)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	seq := firstSeq
	for _, r := range readings {
		if r.ID == "" {
			return errors.New("reading without id")
		}
		if _, err := stmt.ExecContext(ctx, r.ID, seq, toMillis(r.Timestamp), r.Second(), r.Value, string(r.Unit), r.IsHigh, r.IsLow); err != nil {
			return fmt.Errorf("insert reading %s: %w", r.ID, err)
		}
		seq++
	}
	return nil
}

func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// refreshStoredGauge must be called with db.mu held.
func (db *DB) refreshStoredGauge(ctx context.Context) {
	n, err := countReadings(ctx, db.conn)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Stored readings gauge not updated")
		return
	}
	metrics.StoredReadings.Set(float64(n))
}
