// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/middleware"
)

// MiddlewareConfigFromServer maps the server config onto the middleware
// settings.
func MiddlewareConfigFromServer(cfg config.ServerConfig) *ChiMiddlewareConfig {
	mc := DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = cfg.CORSOrigins
	mc.RateLimitRequests = cfg.RateLimitReqs
	if cfg.RateLimitWindow > 0 {
		mc.RateLimitWindow = cfg.RateLimitWindow
		mc.SyncLimitWindow = cfg.RateLimitWindow
	}
	return mc
}

// NewRouter returns the full HTTP handler: /api/v1 plus /metrics.
func NewRouter(h *Handler, mc *ChiMiddlewareConfig) http.Handler {
	m := NewChiMiddleware(mc)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(securityHeaders)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.CORS())
		r.Use(m.RateLimit())

		if h.ws != nil {
			r.Handle("/ws", h.ws)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compression)

			r.Get("/health", h.Health)

			r.Route("/readings", func(r chi.Router) {
				r.Get("/", h.Readings)
				r.Get("/current", h.CurrentReading)
				r.Get("/stats", h.Stats)
			})

			r.With(m.RateLimitSync()).Post("/sync", h.Sync)
			r.Get("/sync/status", h.SyncStatus)
			r.Post("/maintenance/dedupe", h.Dedupe)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)

			r.Route("/insulin", func(r chi.Router) {
				r.Get("/", h.ListInsulin)
				r.Post("/", h.CreateInsulin)
				r.Delete("/{id}", h.DeleteInsulin)
			})

			r.Put("/credentials", h.SetCredentials)
			r.Delete("/credentials", h.ClearCredentials)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, "Method not allowed", nil)
	})
	return r
}
