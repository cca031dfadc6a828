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

	"github.com/tomtom215/glucobar/internal/metrics"
	"github.com/tomtom215/glucobar/internal/models"
)

const profileColumns = `id, name, unit, target_low, target_high, insulin_sensitivity, carb_ratio, patient_id, updated_at`

// Profile returns the patient profile, creating it from the defaults on
// first access.
func (db *DB) Profile(ctx context.Context) (models.PatientProfile, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	db.mu.RLock()
	p, err := db.loadProfile(ctx)
	db.mu.RUnlock()
	if !errors.Is(err, ErrNotFound) {
		return p, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// Another caller may have created it between the locks.
	if p, err := db.loadProfile(ctx); !errors.Is(err, ErrNotFound) {
		return p, err
	}

	p = db.profileDefaults
	p.ID = models.DefaultProfileID
	p.UpdatedAt = time.Now().UTC()
	start := time.Now()
	err = db.writeProfile(ctx, p, true)
	metrics.RecordDBQuery("create", "patient_profile", time.Since(start), err)
	if err != nil {
		return models.PatientProfile{}, err
	}
	return p, nil
}

// UpdateProfile replaces the stored profile in place and returns it with
// its new UpdatedAt. An empty PatientID keeps the cached one.
func (db *DB) UpdateProfile(ctx context.Context, p models.PatientProfile) (models.PatientProfile, error) {
	existing, err := db.Profile(ctx)
	if err != nil {
		return models.PatientProfile{}, err
	}
	if p.PatientID == "" {
		p.PatientID = existing.PatientID
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	p.ID = models.DefaultProfileID
	p.UpdatedAt = time.Now().UTC()
	start := time.Now()
	err = db.writeProfile(ctx, p, false)
	metrics.RecordDBQuery("update", "patient_profile", time.Since(start), err)
	if err != nil {
		return models.PatientProfile{}, err
	}
	return p, nil
}

// SetPatientID caches the upstream patient id on the profile.
func (db *DB) SetPatientID(ctx context.Context, patientID string) error {
	if _, err := db.Profile(ctx); err != nil {
		return err
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	db.mu.Lock()
	defer db.mu.Unlock()

	start := time.Now()
	_, err := db.conn.ExecContext(ctx,
		`UPDATE patient_profile SET patient_id = ?, updated_at = ? WHERE id = ?`,
		patientID, toMillis(time.Now()), models.DefaultProfileID)
	metrics.RecordDBQuery("update", "patient_profile", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("set patient id: %w", err)
	}
	return nil
}

func (db *DB) loadProfile(ctx context.Context) (models.PatientProfile, error) {
	var (
		p         models.PatientProfile
		unit      string
		updatedMS int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM patient_profile WHERE id = ?`, models.DefaultProfileID,
	).Scan(&p.ID, &p.Name, &unit, &p.TargetLow, &p.TargetHigh, &p.InsulinSensitivity, &p.CarbRatio, &p.PatientID, &updatedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PatientProfile{}, ErrNotFound
	}
	if err != nil {
		return models.PatientProfile{}, fmt.Errorf("load profile: %w", err)
	}
	p.Unit = models.Unit(unit)
	p.UpdatedAt = fromMillis(updatedMS)
	return p, nil
}

func (db *DB) writeProfile(ctx context.Context, p models.PatientProfile, create bool) error {
	var err error
	if create {
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO patient_profile (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, string(p.Unit), p.TargetLow, p.TargetHigh, p.InsulinSensitivity, p.CarbRatio, p.PatientID, toMillis(p.UpdatedAt))
	} else {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE patient_profile SET name = ?, unit = ?, target_low = ?, target_high = ?,
				insulin_sensitivity = ?, carb_ratio = ?, patient_id = ?, updated_at = ? WHERE id = ?`,
			p.Name, string(p.Unit), p.TargetLow, p.TargetHigh, p.InsulinSensitivity, p.CarbRatio, p.PatientID, toMillis(p.UpdatedAt), p.ID)
	}
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
