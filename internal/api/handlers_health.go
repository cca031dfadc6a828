// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/glucobar/internal/models"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	Database      bool                  `json:"database_connected"`
	SyncState     models.SyncState      `json:"sync_state"`
	LastResult    *models.RefreshResult `json:"last_result,omitempty"`
	Uptime        float64               `json:"uptime_seconds"`
	HasReading    bool                  `json:"has_reading"`
	LastReadingAt *time.Time            `json:"last_reading_at,omitempty"`
}

// Version is reported by /health; set at link time.
var Version = "dev"

// Health reports "healthy" when the store answers, "degraded" otherwise.
// The status code is always 200 so a front-end can render the reason.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := HealthStatus{
		Status:    "healthy",
		Version:   Version,
		Database:  true,
		SyncState: h.sync.State(),
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	if err := h.store.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = false
	}
	if last, ok := h.sync.LastResult(); ok {
		status.LastResult = &last
	}
	if current := h.sync.History().Current; current != nil {
		status.HasReading = true
		ts := current.Timestamp
		status.LastReadingAt = &ts
	}

	respondSuccess(w, http.StatusOK, status, start)
}
