// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package sync reconciles upstream readings with the local store.

The Engine runs one refresh at a time:

 1. publish an InProgress result so observers see a transition even when
    the outcome repeats
 2. obtain a bearer token from the TokenManager
 3. resolve the patient id (cached in the profile after the first lookup)
    and fetch the trailing window of readings
 4. drop every fetched reading whose second is already stored
 5. insert the remainder and report UpToDate or Added(n)
 6. recompute the history view from the store, whatever the outcome

Refresh never returns an error. Failures become an Error result tagged with
a libreview.Kind. InvalidCredentials also clears the credential store.
RateLimited and ServiceUnavailable start a backoff window during which
manual refreshes return the cached failure and automatic ones are skipped.

# Concurrency

Refresh calls queue on a single mutex, which also guards Dedupe, so the
engine is the only writer to the store. A run that has started is detached
from its caller's cancellation and bounded only by its own timeout; its
result is always applied.

# Startup

Start runs a one-time self-check before the poll loop: the dedup repair pass
runs once per process, ahead of the first history computation, and is
reported as proactive when the stored count exceeds the configured threshold.
*/
package sync
