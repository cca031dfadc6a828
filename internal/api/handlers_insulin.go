// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/models"
)

const defaultInsulinLimit = 50

// ListInsulin returns shots for ?day (a calendar day in the handler's
// location), for [?from, ?to), or the ?limit most recent.
func (h *Handler) ListInsulin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	req := InsulinQuery{
		Day:   q.Get("day"),
		From:  q.Get("from"),
		To:    q.Get("to"),
		Limit: getIntParam(r, "limit", defaultInsulinLimit),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	var (
		shots []models.InsulinShot
		err   error
	)
	switch {
	case req.Day != "":
		day, _ := time.ParseInLocation("2006-01-02", req.Day, h.location)
		shots, err = h.store.InsulinShotsForDay(r.Context(), day, h.location)
	case req.From != "":
		from, _ := time.Parse(time.RFC3339, req.From)
		to, _ := time.Parse(time.RFC3339, req.To)
		if !to.After(from) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "to must be after from", nil)
			return
		}
		shots, err = h.store.InsulinShotsBetween(r.Context(), from, to)
	default:
		shots, err = h.store.InsulinHistory(r.Context(), req.Limit)
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load insulin shots", err)
		return
	}
	if shots == nil {
		shots = []models.InsulinShot{}
	}
	respondSuccess(w, http.StatusOK, shots, start)
}

// CreateInsulin records a shot.
func (h *Handler) CreateInsulin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CreateInsulinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	shot, err := h.store.CreateInsulinShot(r.Context(), models.InsulinShot{
		Timestamp: req.Timestamp,
		Units:     req.Units,
		Kind:      models.InsulinKind(req.Kind),
		Note:      req.Note,
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to record insulin shot", err)
		return
	}
	respondSuccess(w, http.StatusCreated, shot, start)
}

// DeleteInsulin removes a shot by id.
func (h *Handler) DeleteInsulin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteInsulinShot(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Insulin shot not found", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to delete insulin shot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
