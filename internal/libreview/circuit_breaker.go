// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
)

const breakerName = "libreview-api"

// errServerStatus marks a 5xx response so the breaker counts it as a
// failure; the response itself is still returned to the caller.
var errServerStatus = errors.New("upstream server error")

// newBreaker opens after 5 consecutive transport or 5xx failures and probes
// again after 2 minutes. 4xx responses are not failures from its point of
// view: they are answers.
func newBreaker() *gobreaker.CircuitBreaker[*rawResponse] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= 5
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
}

func recordBreakerResult(err error) {
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
