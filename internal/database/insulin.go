// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/tomtom215/glucobar/internal/metrics"
	"github.com/tomtom215/glucobar/internal/models"
)

const insulinColumns = `id, ts_ms, units, kind, note, created_at`

// CreateInsulinShot stores a shot, assigning ID and CreatedAt when unset.
func (db *DB) CreateInsulinShot(ctx context.Context, shot models.InsulinShot) (models.InsulinShot, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	if shot.ID == "" {
		shot.ID = xid.New().String()
	}
	if shot.CreatedAt.IsZero() {
		shot.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO insulin_shots (`+insulinColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		shot.ID, toMillis(shot.Timestamp), shot.Units, string(shot.Kind), shot.Note, toMillis(shot.CreatedAt))
	metrics.RecordDBQuery("insert", "insulin_shots", time.Since(start), err)
	if err != nil {
		return models.InsulinShot{}, fmt.Errorf("insert insulin shot: %w", err)
	}
	shot.Timestamp = fromMillis(toMillis(shot.Timestamp))
	shot.CreatedAt = fromMillis(toMillis(shot.CreatedAt))
	return shot, nil
}

// DeleteInsulinShot removes a shot by id, returning ErrNotFound if absent.
func (db *DB) DeleteInsulinShot(ctx context.Context, id string) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM insulin_shots WHERE id = ?`, id)
	metrics.RecordDBQuery("delete", "insulin_shots", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("delete insulin shot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete insulin shot: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsulinShotsForDay returns the shots on the calendar day containing day,
// in loc, oldest first.
func (db *DB) InsulinShotsForDay(ctx context.Context, day time.Time, loc *time.Location) ([]models.InsulinShot, error) {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return db.queryShots(ctx, "day",
		`SELECT `+insulinColumns+` FROM insulin_shots WHERE ts_ms >= ? AND ts_ms < ? ORDER BY ts_ms, created_at`,
		toMillis(start), toMillis(end))
}

// InsulinShotsBetween returns shots with from <= timestamp < to, oldest first.
func (db *DB) InsulinShotsBetween(ctx context.Context, from, to time.Time) ([]models.InsulinShot, error) {
	return db.queryShots(ctx, "between",
		`SELECT `+insulinColumns+` FROM insulin_shots WHERE ts_ms >= ? AND ts_ms < ? ORDER BY ts_ms, created_at`,
		toMillis(from), toMillis(to))
}

// InsulinHistory returns up to limit shots, newest first.
func (db *DB) InsulinHistory(ctx context.Context, limit int) ([]models.InsulinShot, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryShots(ctx, "history",
		`SELECT `+insulinColumns+` FROM insulin_shots ORDER BY ts_ms DESC, created_at DESC LIMIT ?`, limit)
}

func (db *DB) queryShots(ctx context.Context, op, query string, args ...any) ([]models.InsulinShot, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.RLock()
	defer db.mu.RUnlock()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordDBQuery(op, "insulin_shots", time.Since(start), err)
		return nil, fmt.Errorf("query insulin shots: %w", err)
	}
	defer rows.Close()

	var out []models.InsulinShot
	for rows.Next() {
		var (
			s               models.InsulinShot
			kind            string
			tsMS, createdMS int64
		)
		if err := rows.Scan(&s.ID, &tsMS, &s.Units, &kind, &s.Note, &createdMS); err != nil {
			metrics.RecordDBQuery(op, "insulin_shots", time.Since(start), err)
			return nil, fmt.Errorf("scan insulin shot: %w", err)
		}
		s.Timestamp = fromMillis(tsMS)
		s.CreatedAt = fromMillis(createdMS)
		s.Kind = models.InsulinKind(kind)
		out = append(out, s)
	}
	err = rows.Err()
	metrics.RecordDBQuery(op, "insulin_shots", time.Since(start), err)
	return out, err
}
