// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/glucobar/internal/models"
)

// SyncStatusResponse is the body of GET /sync/status.
type SyncStatusResponse struct {
	State      models.SyncState      `json:"state"`
	LastResult *models.RefreshResult `json:"last_result,omitempty"`
}

// Sync runs a manual refresh and returns its result. A failed refresh is
// still a completed request: the result carries the error kind and the
// response is 200. Retry-After is set while a backoff window is open.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := h.sync.Refresh(r.Context())

	if result.RetryAfter != nil {
		secs := int(math.Ceil(result.RetryAfter.Sub(h.now()).Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	respondSuccess(w, http.StatusOK, result, start)
}

// SyncStatus reports the sync state machine and the last result.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := SyncStatusResponse{State: h.sync.State()}
	if last, ok := h.sync.LastResult(); ok {
		status.LastResult = &last
	}
	respondSuccess(w, http.StatusOK, status, start)
}

// Dedupe runs the store repair pass on demand.
func (h *Handler) Dedupe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	res, err := h.sync.Dedupe(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Dedupe failed", err)
		return
	}
	if res.Removed > 0 {
		h.InvalidateCache()
	}
	respondSuccess(w, http.StatusOK, res, start)
}
