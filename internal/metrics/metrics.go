// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glucobar_db_query_duration_seconds",
			Help:    "Duration of reading store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_db_query_errors_total",
			Help: "Total number of reading store query errors",
		},
		[]string{"operation", "table"},
	)

	StoredReadings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glucobar_stored_readings",
			Help: "Number of readings in the local store after the last write",
		},
	)

	DedupeRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucobar_dedupe_removed_total",
			Help: "Readings removed by the dedup repair pass",
		},
	)

	// Sync
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "glucobar_sync_duration_seconds",
			Help:    "Duration of refresh runs in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SyncReadingsAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucobar_sync_readings_added_total",
			Help: "Readings added by refresh runs",
		},
	)

	SyncResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_sync_results_total",
			Help: "Refresh outcomes by state",
		},
		[]string{"state"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_sync_errors_total",
			Help: "Failed refresh runs by error kind",
		},
		[]string{"kind"},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glucobar_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last refresh that did not fail",
		},
	)

	// Upstream
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_upstream_requests_total",
			Help: "LibreView HTTP requests by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamDecodeStage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_upstream_decode_stage_total",
			Help: "Which decode stage produced the reading batch (strict, map, fields)",
		},
		[]string{"stage"},
	)

	UpstreamEntriesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucobar_upstream_entries_skipped_total",
			Help: "Reading entries dropped because they could not be decoded",
		},
	)

	TimestampFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucobar_reading_timestamp_fallbacks_total",
			Help: "Reading entries whose timestamp could not be parsed and was replaced by now",
		},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_token_refreshes_total",
			Help: "Bearer token acquisitions by outcome",
		},
		[]string{"outcome"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "glucobar_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API and push
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glucobar_api_requests_total",
			Help: "Local API requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glucobar_api_request_duration_seconds",
			Help:    "Local API request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glucobar_websocket_connections",
			Help: "Connected WebSocket clients",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucobar_response_cache_hits_total",
			Help: "Response cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "glucobar_response_cache_misses_total",
			Help: "Response cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "glucobar_response_cache_entries",
			Help: "Entries held in the response cache",
		},
	)
)

// RecordDBQuery observes one store query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest observes one local API request. route is the chi route
// pattern, never the raw path, to bound label cardinality.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSyncOperation observes one finished refresh. errorKind is empty on
// success.
func RecordSyncOperation(duration time.Duration, state string, added int, errorKind string) {
	SyncDuration.Observe(duration.Seconds())
	SyncResults.WithLabelValues(state).Inc()
	if added > 0 {
		SyncReadingsAdded.Add(float64(added))
	}
	if errorKind != "" {
		SyncErrors.WithLabelValues(errorKind).Inc()
		return
	}
	SyncLastSuccess.SetToCurrentTime()
}
