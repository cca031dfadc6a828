// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package main runs the Glucobar service: it keeps a local store of LibreView
glucose readings current and serves it to front-ends over a local HTTP and
WebSocket API.

# Process layout

	glucobar
	├── sync-layer
	│   └── sync-engine        5-minute poll, startup self-check
	├── messaging-layer
	│   ├── websocket-hub
	│   └── event-router       refresh results -> hub
	└── api-layer
	    └── http-server        /api/v1, /metrics

Initialization order:

 1. Configuration (koanf: defaults, YAML, .env, environment)
 2. Logging (zerolog)
 3. Reading store (DuckDB by default, SQLite with DB_DRIVER=sqlite)
 4. Credential store (Badger, AES-GCM encrypted)
 5. LibreView client and token manager
 6. Event bus, WebSocket hub, sync engine
 7. HTTP API
 8. Supervisor tree

# Configuration

Common environment variables:

	LIBREVIEW_BASE_URL   regional API host (default https://api.libreview.io)
	LIBREVIEW_USERNAME   seeds the credential store on first start
	LIBREVIEW_PASSWORD
	SYNC_INTERVAL        poll interval (default 5m)
	SYNC_LOOKBACK_DAYS   trailing fetch window (default 7)
	DB_DRIVER            duckdb or sqlite
	DB_PATH              store location (:memory: for tests)
	CREDENTIALS_PATH     Badger directory; empty keeps credentials in memory
	CREDENTIALS_SECRET   encryption key material for stored credentials
	HTTP_HOST, HTTP_PORT listen address (default 127.0.0.1:8742)
	LOG_LEVEL, LOG_FORMAT

A config.yaml (or CONFIG_PATH) carries the same keys in nested form.

# Example

	export LIBREVIEW_USERNAME=me@example.com
	export LIBREVIEW_PASSWORD=secret
	export CREDENTIALS_PATH=$HOME/.local/share/glucobar/credentials
	export CREDENTIALS_SECRET=$(openssl rand -base64 32)
	./glucobar

	curl -s localhost:8742/api/v1/readings/current
	curl -s -X POST localhost:8742/api/v1/sync

# Signals

SIGINT and SIGTERM cancel the tree: the HTTP server drains, the sync engine
finishes any in-flight refresh, the hub closes its clients, and the stores
are closed last.
*/
package main
