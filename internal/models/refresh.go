// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package models

import (
	"fmt"
	"time"
)

// RefreshState is the outcome tag of a refresh.
type RefreshState string

// Refresh states. InProgress is the neutral value published before every
// run so observers see a change even when two consecutive outcomes match.
const (
	RefreshInProgress RefreshState = "in_progress"
	RefreshUpToDate   RefreshState = "up_to_date"
	RefreshAdded      RefreshState = "added"
	RefreshError      RefreshState = "error"
)

// RefreshResult is what one SyncEngine refresh resolved to.
type RefreshResult struct {
	State     RefreshState `json:"state"`
	Added     int          `json:"added,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
	Message   string       `json:"message,omitempty"`
	At        time.Time    `json:"at"`

	// RetryAfter is set for rate-limit and availability failures; automatic
	// refreshes are not attempted before it.
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// InProgress returns the neutral in-flight result.
func InProgress(at time.Time) RefreshResult {
	return RefreshResult{State: RefreshInProgress, At: at}
}

// UpToDate returns a result for a refresh that found nothing new.
func UpToDate(at time.Time) RefreshResult {
	return RefreshResult{State: RefreshUpToDate, At: at}
}

// Added returns a result for a refresh that stored n new readings.
func Added(n int, at time.Time) RefreshResult {
	return RefreshResult{State: RefreshAdded, Added: n, At: at}
}

// Failed returns an error result of the given kind.
func Failed(kind, message string, at time.Time) RefreshResult {
	return RefreshResult{State: RefreshError, ErrorKind: kind, Message: message, At: at}
}

// IsError reports whether the refresh failed.
func (r RefreshResult) IsError() bool {
	return r.State == RefreshError
}

func (r RefreshResult) String() string {
	switch r.State {
	case RefreshAdded:
		return fmt.Sprintf("added(%d)", r.Added)
	case RefreshError:
		return fmt.Sprintf("error(%s)", r.ErrorKind)
	default:
		return string(r.State)
	}
}

// SyncState is the engine's state machine position.
type SyncState string

// Sync states.
const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
)
