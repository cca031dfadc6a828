// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package middleware provides the HTTP middleware of the local query API.

  - RequestID: X-Request-ID propagation plus request and correlation ids in
    the logging context
  - PrometheusMetrics: request counts and latency labelled by chi route
    pattern
  - Compression: gzip for responses to clients that accept it, skipping
    WebSocket upgrades

All three have the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.Compression)
*/
package middleware
