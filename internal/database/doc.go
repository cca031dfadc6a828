// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package database is the local store for glucose readings, the patient
profile and logged insulin shots.

Two database/sql backends are supported and share one portable schema:

  - duckdb (default): github.com/duckdb/duckdb-go/v2
  - sqlite: modernc.org/sqlite, pure Go

Timestamps are stored as Unix milliseconds. Readings carry a seq column
recording insertion order, which is the "stored order" used by Dedupe.

# Concurrency

DB serializes writers with an RWMutex. Every write takes the exclusive
lock; reads take the shared lock, so a reader never sees the store half
way through a dedup rewrite.

# Schema

Tables are created by versioned migrations tracked in schema_migrations.
Migrations are append-only.
*/
package database
