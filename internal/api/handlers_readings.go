// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/glucobar/internal/cache"
	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/glucose"
	"github.com/tomtom215/glucobar/internal/models"
)

const (
	defaultHours       = 24
	defaultGranularity = 0
)

// ReadingsResponse is the body of GET /readings.
type ReadingsResponse struct {
	Readings    []models.AnnotatedReading `json:"readings"`
	Thresholds  glucose.Thresholds        `json:"thresholds"`
	From        time.Time                 `json:"from"`
	To          time.Time                 `json:"to"`
	Granularity int                       `json:"granularity"`
}

// StatsResponse is the body of GET /readings/stats.
type StatsResponse struct {
	glucose.Summary
	Thresholds glucose.Thresholds `json:"thresholds"`
	Hours      int                `json:"hours"`
}

// CurrentReading returns the newest stored reading with its trend and
// range status. 404 until the first successful sync.
func (h *Handler) CurrentReading(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	latest, err := h.store.Latest(ctx)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "No readings stored yet", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load latest reading", err)
		return
	}

	th, ok := h.thresholds(w, r)
	if !ok {
		return
	}
	priors, err := h.store.Range(ctx, latest.Timestamp.Add(-glucose.TrendLookback), latest.Timestamp)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load trend window", err)
		return
	}

	respondSuccess(w, http.StatusOK, models.AnnotatedReading{
		Reading: latest,
		Trend:   glucose.Trend(latest, priors),
		Range:   glucose.Classify(latest, th),
	}, start)
}

// Readings returns the trend-annotated history of the last ?hours,
// averaged into ?granularity-minute buckets (0 keeps every reading).
func (h *Handler) Readings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := ReadingsRequest{
		Hours:       getIntParam(r, "hours", defaultHours),
		Granularity: getIntParam(r, "granularity", defaultGranularity),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	th, ok := h.thresholds(w, r)
	if !ok {
		return
	}
	to := h.now()
	from := to.Add(-time.Duration(req.Hours) * time.Hour)
	readings, err := h.store.Range(r.Context(), from, to)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load readings", err)
		return
	}

	bucketed := glucose.GranularityBucket(readings, req.Granularity)
	respondSuccess(w, http.StatusOK, ReadingsResponse{
		Readings:    glucose.Annotate(bucketed, th),
		Thresholds:  th,
		From:        from,
		To:          to,
		Granularity: req.Granularity,
	}, start)
}

// Stats returns descriptive statistics over the last ?hours.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := StatsRequest{Hours: getIntParam(r, "hours", defaultHours)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	key := cache.GenerateKey("stats", req)
	if resp, ok := h.cached(key); ok {
		respondSuccess(w, http.StatusOK, resp, start)
		return
	}

	th, ok := h.thresholds(w, r)
	if !ok {
		return
	}
	to := h.now()
	readings, err := h.store.Range(r.Context(), to.Add(-time.Duration(req.Hours)*time.Hour), to)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load readings", err)
		return
	}

	resp := StatsResponse{
		Summary:    glucose.Summarize(readings, th),
		Thresholds: th,
		Hours:      req.Hours,
	}
	h.remember(key, resp)
	respondSuccess(w, http.StatusOK, resp, start)
}

func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) (glucose.Thresholds, bool) {
	profile, err := h.store.Profile(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load profile", err)
		return glucose.Thresholds{}, false
	}
	return glucose.ThresholdsFromProfile(profile), true
}
