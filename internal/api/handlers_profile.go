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

// GetProfile returns the patient profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	profile, err := h.store.Profile(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to load profile", err)
		return
	}
	respondSuccess(w, http.StatusOK, profile, start)
}

// UpdateProfile replaces the editable profile fields. The cached upstream
// patient id is kept.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ProfileRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	profile, err := h.store.UpdateProfile(r.Context(), models.PatientProfile{
		Name:               req.Name,
		Unit:               models.Unit(req.Unit),
		TargetLow:          req.TargetLow,
		TargetHigh:         req.TargetHigh,
		InsulinSensitivity: req.InsulinSensitivity,
		CarbRatio:          req.CarbRatio,
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to update profile", err)
		return
	}
	h.InvalidateCache()
	respondSuccess(w, http.StatusOK, profile, start)
}
