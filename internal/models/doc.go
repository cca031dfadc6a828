// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

// Package models holds the data types shared by the store, the sync engine,
// the derived-metrics functions and the HTTP API.
//
// A Reading is immutable once created. Two readings whose timestamps fall in
// the same wall-clock second are the same observation regardless of ID; the
// ID is an opaque label. Readings produced by granularity bucketing carry
// an ID starting with SyntheticIDPrefix.
package models
