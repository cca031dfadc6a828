// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	fallbackWindow = 7 * 24 * time.Hour
)

// DateRange bounds a graph query. The zero value asks for the server's
// default window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no range is set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r DateRange) query() url.Values {
	if r.IsZero() {
		return nil
	}
	return url.Values{
		"period":    {"custom"},
		"startDate": {r.Start.UTC().Format(dateLayout)},
		"endDate":   {r.End.UTC().Format(dateLayout)},
	}
}

func (r DateRange) sameDays(o DateRange) bool {
	if r.IsZero() || o.IsZero() {
		return r.IsZero() == o.IsZero()
	}
	return r.Start.UTC().Format(dateLayout) == o.Start.UTC().Format(dateLayout) &&
		r.End.UTC().Format(dateLayout) == o.End.UTC().Format(dateLayout)
}

// TrailingDays returns the range ending at now and starting days before.
func TrailingDays(now time.Time, days int) DateRange {
	return DateRange{Start: now.AddDate(0, 0, -days), End: now}
}

// FetchReadings returns the patient's readings for rng, newest first, with
// every reading in a distinct second.
//
// Non-200 answers are network errors. A 200 whose body cannot be decoded
// is retried once as a trailing seven-day query and, if that fails too,
// as a query without any range.
func (c *Client) FetchReadings(ctx context.Context, patientID, token string, rng DateRange) ([]models.Reading, error) {
	if token == "" {
		return nil, newError(KindNoCredentials, endpointGraph, errors.New("no token"))
	}
	if patientID == "" {
		return nil, newError(KindUnknown, endpointGraph, errors.New("no patient id"))
	}

	d, err := c.fetchGraph(ctx, patientID, token, rng)
	if err == nil {
		return c.toReadings(ctx, patientID, d), nil
	}
	if !errors.Is(err, errUnparseable) {
		return nil, err
	}

	log := logging.Ctx(ctx)
	fallbacks := []DateRange{{}}
	if week := (DateRange{Start: c.now().Add(-fallbackWindow), End: c.now()}); !week.sameDays(rng) {
		fallbacks = []DateRange{week, {}}
	}
	if rng.IsZero() {
		// The basic query is what just failed.
		fallbacks = fallbacks[:len(fallbacks)-1]
	}

	lastErr := err
	for _, fb := range fallbacks {
		log.Warn().Err(lastErr).Bool("basic", fb.IsZero()).Msg("Retrying LibreView graph query with fallback range")
		d, lastErr = c.fetchGraph(ctx, patientID, token, fb)
		if lastErr == nil {
			return c.toReadings(ctx, patientID, d), nil
		}
	}

	if KindOf(lastErr) == KindUnknown {
		lastErr = newError(KindNetwork, endpointGraph, lastErr)
	}
	return nil, lastErr
}

var errUnparseable = errors.New("unparseable graph envelope")

func (c *Client) fetchGraph(ctx context.Context, patientID, token string, rng DateRange) (*decoded, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: endpointGraph,
		path:     "/llu/connections/" + url.PathEscape(patientID) + "/graph",
		query:    rng.query(),
		token:    token,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, c.statusError(KindNetwork, endpointGraph, resp)
	}

	d, err := decodeGraph(resp.body)
	if err != nil {
		return nil, newError(KindNetwork, endpointGraph, fmt.Errorf("%w: %w", errUnparseable, err))
	}
	logging.Ctx(ctx).Debug().Str("stage", d.stage).Int("entries", len(d.entries)).Msg("Decoded LibreView graph")
	return d, nil
}
