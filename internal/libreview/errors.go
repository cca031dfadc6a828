// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies upstream and credential failures.
type Kind string

// Failure kinds.
const (
	KindNoCredentials        Kind = "no_credentials"
	KindInvalidCredentials   Kind = "invalid_credentials"
	KindRateLimited          Kind = "rate_limited"
	KindServiceUnavailable   Kind = "service_unavailable"
	KindNetwork              Kind = "network_error"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindUnknown              Kind = "unknown"
)

// NeedsBackoff reports whether callers must wait before retrying.
func (k Kind) NeedsBackoff() bool {
	return k == KindRateLimited || k == KindServiceUnavailable
}

// Error is the error type returned by this package.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int

	// RetryAfter is the server's Retry-After hint, when it sent one.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.StatusCode == 0
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoCredentials        = &Error{Kind: KindNoCredentials}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrServiceUnavailable   = &Error{Kind: KindServiceUnavailable}
	ErrNetwork              = &Error{Kind: KindNetwork}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies any error. Transport timeouts and cancellations count
// as network errors; nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

// RetryAfterOf returns the Retry-After hint carried by err, or 0.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
