// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package models

import "time"

// DefaultProfileID is the stable key of the single local patient profile.
const DefaultProfileID = "default"

// PatientProfile holds per-user preferences. There is exactly one row,
// created with defaults on first access and updated in place afterwards.
type PatientProfile struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"max=100"`

	// Unit is the display unit; TargetLow/TargetHigh are expressed in it.
	Unit       Unit    `json:"unit" validate:"glucoseunit"`
	TargetLow  float64 `json:"target_low" validate:"gt=0"`
	TargetHigh float64 `json:"target_high" validate:"gtfield=TargetLow"`

	// InsulinSensitivity is the expected drop per unit of rapid insulin,
	// in Unit. CarbRatio is grams of carbohydrate per unit.
	InsulinSensitivity float64 `json:"insulin_sensitivity,omitempty" validate:"gte=0"`
	CarbRatio          float64 `json:"carb_ratio,omitempty" validate:"gte=0"`

	// PatientID caches the upstream connection id so a refresh does not
	// need to list connections every time.
	PatientID string `json:"patient_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
