// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/glucobar/internal/glucose"
	"github.com/tomtom215/glucobar/internal/models"
)

// HistoryWindow is the span of the consumer-visible history view.
const HistoryWindow = 24 * time.Hour

// openEnd bounds the history query from above. Sensor clocks can run ahead
// of the host, so readings stamped after now still belong to the view.
var openEnd = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// History is the derived view front-ends render: trend-annotated readings
// from HistoryWindow ago onwards, newest first, with summary statistics.
type History struct {
	Readings   []models.AnnotatedReading `json:"readings"`
	Current    *models.AnnotatedReading  `json:"current,omitempty"`
	Summary    glucose.Summary           `json:"summary"`
	Thresholds glucose.Thresholds        `json:"thresholds"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// History returns the last computed view. Readings is shared; callers must
// not modify it.
func (e *Engine) History() History {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history
}

func (e *Engine) recomputeHistory(ctx context.Context) error {
	profile, err := e.store.Profile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	now := e.now()
	readings, err := e.store.Range(ctx, now.Add(-HistoryWindow), openEnd)
	if err != nil {
		return fmt.Errorf("load history window: %w", err)
	}

	th := glucose.ThresholdsFromProfile(profile)
	h := History{
		Readings:   glucose.Annotate(readings, th),
		Summary:    glucose.Summarize(readings, th),
		Thresholds: th,
		UpdatedAt:  now,
	}
	if len(h.Readings) > 0 {
		current := h.Readings[0]
		h.Current = &current
	}

	e.mu.Lock()
	e.history = h
	e.mu.Unlock()
	return nil
}
