// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package libreview is the HTTP client for the LibreLinkUp follower API.

It covers three calls:

  - Login: POST /llu/auth/login, following one regional redirect
  - ListConnections: GET /llu/connections
  - FetchReadings: GET /llu/connections/{patientId}/graph

Every request carries the product/version header pair, asks for gzip and is
paced by a token-bucket limiter. A circuit breaker opens after repeated
transport or 5xx failures.

# Payload decoding

Graph responses are decoded by the first of three stages that accepts them:

 1. strict: the documented schema with exact field types
 2. map: the same layout through map[string]any with type coercion
 3. fields: a walk of the whole document for an array of measurements

Entries without a usable value are skipped and counted. Entries whose
timestamp cannot be parsed are kept at the current time and logged.
Readings that share a wall-clock second with an earlier one in the same
batch are moved forward by whole seconds so the batch has one reading per
second.

# Errors

All failures are *Error values carrying a Kind. Use KindOf to classify
any error, including context cancellation.
*/
package libreview
