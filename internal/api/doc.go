// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package api exposes the local query API that thin front-ends (the menu-bar
app, launcher extensions) read from.

Every route lives under /api/v1 and answers with a models.APIResponse
envelope:

	{"status": "success", "data": ..., "metadata": {"timestamp": ...}}
	{"status": "error", "error": {"code": "...", "message": "..."}, ...}

Routes:

	GET    /health
	GET    /readings/current
	GET    /readings?hours=24&granularity=15
	GET    /readings/stats?hours=24
	POST   /sync
	GET    /sync/status
	POST   /maintenance/dedupe
	GET    /profile
	PUT    /profile
	GET    /insulin?day=YYYY-MM-DD | from=RFC3339&to=RFC3339 | limit=N
	POST   /insulin
	DELETE /insulin/{id}
	PUT    /credentials
	DELETE /credentials
	GET    /ws

Prometheus metrics are served at /metrics, outside the versioned prefix.

Stats responses may be served from a short-lived cache (WithResponseCache).
InvalidateCache drops it; the events router calls it after a refresh adds
readings.

The handlers depend on small interfaces (ReadingStore, SyncService,
CredentialStore, TokenInvalidator) so tests can drive them with httptest
and an in-memory database.
*/
package api
