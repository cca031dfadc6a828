// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// ChiMiddlewareConfig configures CORS and rate limiting.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int // seconds

	// RateLimitRequests per RateLimitWindow per client IP; 0 disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// SyncLimitRequests bounds manual refreshes, which each reach upstream.
	SyncLimitRequests int
	SyncLimitWindow   time.Duration
}

// DefaultChiMiddlewareConfig allows no cross-origin callers.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		CORSMaxAge:         86400,
		RateLimitRequests:  120,
		RateLimitWindow:    time.Minute,
		SyncLimitRequests:  6,
		SyncLimitWindow:    time.Minute,
	}
}

// ChiMiddleware builds the chi middleware stack pieces.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware builds the middleware set; nil means defaults.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}
	return &ChiMiddleware{
		config: config,
		cors: cors.Handler(cors.Options{
			AllowedOrigins:   config.CORSAllowedOrigins,
			AllowedMethods:   config.CORSAllowedMethods,
			AllowedHeaders:   config.CORSAllowedHeaders,
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           config.CORSMaxAge,
		}),
	}
}

// CORS returns the go-chi/cors handler.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit limits every route per client IP.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return limitByIP(m.config.RateLimitRequests, m.config.RateLimitWindow)
}

// RateLimitSync is the stricter limit on POST /sync.
func (m *ChiMiddleware) RateLimitSync() func(http.Handler) http.Handler {
	return limitByIP(m.config.SyncLimitRequests, m.config.SyncLimitWindow)
}

func limitByIP(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests", nil)
		}),
	)
}

// securityHeaders sets the headers every local API response carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
