// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package glucose

import "github.com/tomtom215/glucobar/internal/models"

// Thresholds is a target range expressed in Unit.
type Thresholds struct {
	Low  float64     `json:"low"`
	High float64     `json:"high"`
	Unit models.Unit `json:"unit"`
}

// ThresholdsFromProfile returns the profile's target range.
func ThresholdsFromProfile(p models.PatientProfile) Thresholds {
	return Thresholds{Low: p.TargetLow, High: p.TargetHigh, Unit: p.Unit}
}

// RangeStatusOf classifies value against [low, high]. Both bounds are
// in range.
func RangeStatusOf(value, low, high float64) models.RangeStatus {
	switch {
	case value < low:
		return models.RangeLow
	case value > high:
		return models.RangeHigh
	default:
		return models.RangeInRange
	}
}

// Classify converts r into the thresholds' unit before classifying it.
func Classify(r models.Reading, th Thresholds) models.RangeStatus {
	return RangeStatusOf(Convert(r.Value, r.Unit, th.Unit), th.Low, th.High)
}
