// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package models

import "time"

// InsulinKind distinguishes bolus from basal injections.
type InsulinKind string

// Insulin kinds.
const (
	InsulinRapid InsulinKind = "rapid"
	InsulinLong  InsulinKind = "long"
)

// InsulinShot is a user-logged injection.
type InsulinShot struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Units     float64     `json:"units"`
	Kind      InsulinKind `json:"kind"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
