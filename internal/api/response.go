// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeInternal      = "INTERNAL_ERROR"
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeNoCredentials = "NO_CREDENTIALS"
)

// sanitizeLogValue escapes control characters so client-supplied values
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// respondJSON writes response with status. Glucose data goes stale within
// minutes, so nothing is cacheable.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, status int, data interface{}, start time.Time) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// respondError sends an error envelope. err, when set, is logged and never
// shown to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

func respondAPIError(w http.ResponseWriter, status int, apiErr *models.APIError) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    apiErr,
	})
}
