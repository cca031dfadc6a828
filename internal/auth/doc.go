// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

// Package auth owns the LibreView bearer token and the stored account
// credentials.
//
// TokenManager hands out a cached token while it is fresh and logs in again
// otherwise. Credentials live in a Badger database, encrypted with
// AES-256-GCM under a key derived from the configured secret via HKDF.
package auth
