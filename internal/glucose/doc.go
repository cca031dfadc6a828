// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

// Package glucose contains the pure derived-metric functions applied to a
// reading history: unit conversion, range classification, rate-of-change
// trend, time-bucket averaging and descriptive statistics.
//
// Nothing in this package performs I/O or keeps state. Every function gives
// the same output for the same multiset of readings, whatever order they are
// passed in, so the dashboard and the menu bar always agree.
package glucose
