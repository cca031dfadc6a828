// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package models

import (
	"strings"
	"time"
)

// Unit is the glucose concentration unit of a reading.
type Unit string

// Supported units.
const (
	UnitMmolL Unit = "mmol/L"
	UnitMgdL  Unit = "mg/dL"
)

// Valid reports whether u is a supported unit.
func (u Unit) Valid() bool {
	return u == UnitMmolL || u == UnitMgdL
}

// SyntheticIDPrefix marks readings produced by averaging a bucket.
const SyntheticIDPrefix = "avg-"

// Reading is one sensor glucose measurement.
type Reading struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      Unit      `json:"unit"`
	IsHigh    bool      `json:"is_high"`
	IsLow     bool      `json:"is_low"`
}

// Second is the dedup key: the timestamp truncated to whole seconds.
func (r Reading) Second() int64 {
	return r.Timestamp.Unix()
}

// IsSynthetic reports whether r was produced by bucket averaging.
func (r Reading) IsSynthetic() bool {
	return strings.HasPrefix(r.ID, SyntheticIDPrefix)
}

// Trend is the rate-of-change annotation of a reading.
type Trend string

// Trend values.
const (
	TrendNotComputable Trend = "not_computable"
	TrendFalling       Trend = "falling"
	TrendStable        Trend = "stable"
	TrendRising        Trend = "rising"
)

// RangeStatus classifies a value against the target range.
type RangeStatus string

// RangeStatus values.
const (
	RangeLow     RangeStatus = "low"
	RangeInRange RangeStatus = "in_range"
	RangeHigh    RangeStatus = "high"
)

// AnnotatedReading is a reading plus its derived display values.
type AnnotatedReading struct {
	Reading
	Trend Trend       `json:"trend"`
	Range RangeStatus `json:"range"`
}
