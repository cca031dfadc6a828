// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package glucose

import (
	"sort"
	"time"

	"github.com/tomtom215/glucobar/internal/models"
)

const (
	// TrendLookback bounds how far back a prior reading may be.
	TrendLookback = 30 * time.Minute

	// TrendThreshold is the rate, in mg/dL per minute, at which a change
	// stops being Stable.
	TrendThreshold = 0.5
)

// Trend computes the rate-of-change annotation of current against the most
// recent prior reading no more than TrendLookback older than it.
//
// priors is normally sorted newest first but order is not relied upon.
// Readings newer than current, and current itself (same non-empty ID), are
// ignored. When no prior qualifies the reading's own flags decide: IsHigh
// reads as Rising, IsLow as Falling, neither as Stable.
func Trend(current models.Reading, priors []models.Reading) models.Trend {
	earliest := current.Timestamp.Add(-TrendLookback)

	var prior *models.Reading
	for i := range priors {
		p := &priors[i]
		if current.ID != "" && p.ID == current.ID {
			continue
		}
		if p.Timestamp.After(current.Timestamp) || p.Timestamp.Before(earliest) {
			continue
		}
		if prior == nil || p.Timestamp.After(prior.Timestamp) {
			prior = p
		}
	}

	if prior == nil {
		return trendFromFlags(current)
	}

	minutes := current.Timestamp.Sub(prior.Timestamp).Minutes()
	if minutes <= 0 {
		return models.TrendNotComputable
	}

	rate := (ToMgdl(current.Value, current.Unit) - ToMgdl(prior.Value, prior.Unit)) / minutes
	switch {
	case rate >= TrendThreshold:
		return models.TrendRising
	case rate <= -TrendThreshold:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

func trendFromFlags(r models.Reading) models.Trend {
	switch {
	case r.IsHigh:
		return models.TrendRising
	case r.IsLow:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

// Annotate returns readings sorted newest first, each with its trend
// (against the readings older than it) and its range status.
func Annotate(readings []models.Reading, th Thresholds) []models.AnnotatedReading {
	sorted := SortDescending(readings)
	out := make([]models.AnnotatedReading, len(sorted))
	for i, r := range sorted {
		out[i] = models.AnnotatedReading{
			Reading: r,
			Trend:   Trend(r, sorted[i+1:]),
			Range:   Classify(r, th),
		}
	}
	return out
}

// SortDescending returns a copy of readings ordered newest first. Equal
// timestamps are ordered by ID so the result does not depend on input order.
func SortDescending(readings []models.Reading) []models.Reading {
	out := make([]models.Reading, len(readings))
	copy(out, readings)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
