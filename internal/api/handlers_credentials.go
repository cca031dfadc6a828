// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/glucobar/internal/auth"
	"github.com/tomtom215/glucobar/internal/logging"
)

// CredentialsResponse confirms stored credentials without echoing them.
type CredentialsResponse struct {
	Username string `json:"username"`
}

// SetCredentials stores new LibreView credentials and drops the cached
// session so the next refresh logs in with them.
func (h *Handler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CredentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.creds.Set(r.Context(), auth.Credentials{Username: req.Username, Password: req.Password}); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to store credentials", err)
		return
	}
	h.tokens.Invalidate()

	masked := auth.MaskUsername(req.Username)
	logging.Ctx(r.Context()).Info().Str("username", masked).Msg("credentials updated")
	respondSuccess(w, http.StatusOK, CredentialsResponse{Username: masked}, start)
}

// ClearCredentials signs out: stored credentials and the cached session are
// dropped. Stored readings are kept.
func (h *Handler) ClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Clear(r.Context()); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to clear credentials", err)
		return
	}
	h.tokens.Invalidate()
	logging.Ctx(r.Context()).Info().Msg("credentials cleared")
	w.WriteHeader(http.StatusNoContent)
}
