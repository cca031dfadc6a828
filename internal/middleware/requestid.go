// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/glucobar/internal/logging"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen caps client-supplied ids.
const maxRequestIDLen = 64

// RequestID reuses a client-supplied X-Request-ID or generates one, and
// stores it with a fresh correlation id in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
