// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/glucobar/internal/glucose"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
	"github.com/tomtom215/glucobar/internal/models"
)

// readingNamespace seeds deterministic reading ids, so the same
// measurement fetched twice gets the same id.
var readingNamespace = uuid.MustParse("6f1f3c1e-5a0b-4c43-9a7e-2f9d8b6a4e10")

// readingID derives an id from the patient and the millisecond timestamp.
func readingID(patientID string, ts time.Time) string {
	return uuid.NewSHA1(readingNamespace, []byte(patientID+"/"+strconv.FormatInt(ts.UnixMilli(), 10))).String()
}

// toReadings validates entries and builds a batch in which every reading
// falls in a distinct second, newest first. The current measurement is
// merged unless a graph entry already covers its second.
func (c *Client) toReadings(ctx context.Context, patientID string, d *decoded) []models.Reading {
	out := make([]models.Reading, 0, len(d.entries)+1)
	skipped := 0
	for _, e := range d.entries {
		r, ok := c.toReading(ctx, e)
		if !ok {
			skipped++
			continue
		}
		out = append(out, r)
	}

	if d.current != nil {
		if r, ok := c.toReading(ctx, *d.current); ok {
			if !coversSecond(out, r.Second()) {
				out = append(out, r)
			}
		} else {
			skipped++
		}
	}

	if skipped > 0 {
		metrics.UpstreamEntriesSkipped.Add(float64(skipped))
		logging.Ctx(ctx).Warn().Int("skipped", skipped).Str("stage", d.stage).Msg("Skipped malformed LibreView entries")
	}

	out = nudgeCollisions(out)
	for i := range out {
		out[i].ID = readingID(patientID, out[i].Timestamp)
	}
	sortNewestFirst(out)
	return out
}

func (c *Client) toReading(ctx context.Context, e entry) (models.Reading, bool) {
	unit := glucose.UnitFromCode(e.unitCode)

	var value float64
	switch {
	case e.value != nil:
		value = *e.value
	case e.mgdl != nil:
		value = glucose.Convert(*e.mgdl, models.UnitMgdL, unit)
	default:
		return models.Reading{}, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return models.Reading{}, false
	}

	return models.Reading{
		Timestamp: c.entryTime(ctx, e),
		Value:     value,
		Unit:      unit,
		IsHigh:    e.isHigh,
		IsLow:     e.isLow,
	}, true
}

// entryTime prefers the UTC factory timestamp, then the device-local one,
// then a numeric epoch. When nothing parses the reading is kept at the
// current time.
func (c *Client) entryTime(ctx context.Context, e entry) time.Time {
	if t, ok := parseTimestamp(e.factoryTS, time.UTC); ok {
		return t
	}
	if t, ok := parseTimestamp(e.deviceTS, c.loc); ok {
		return t
	}
	if t, ok := epochTime(e.epoch); ok {
		return t
	}

	metrics.TimestampFallbacks.Inc()
	logging.Ctx(ctx).Warn().
		Str("factory_timestamp", e.factoryTS).
		Str("timestamp", e.deviceTS).
		Msg("Unparseable reading timestamp, using current time")
	return c.now()
}

func coversSecond(readings []models.Reading, sec int64) bool {
	for _, r := range readings {
		if r.Second() == sec {
			return true
		}
	}
	return false
}

// nudgeCollisions moves readings that share a second with an earlier one
// forward by whole seconds until each occupies a free second. The first
// reading in every second never moves.
func nudgeCollisions(readings []models.Reading) []models.Reading {
	out := make([]models.Reading, len(readings))
	copy(out, readings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	used := make(map[int64]bool, len(out))
	var dupes []int
	for i, r := range out {
		if used[r.Second()] {
			dupes = append(dupes, i)
			continue
		}
		used[r.Second()] = true
	}

	for _, i := range dupes {
		ts := out[i].Timestamp
		for used[ts.Unix()] {
			ts = ts.Add(time.Second)
		}
		used[ts.Unix()] = true
		out[i].Timestamp = ts
	}
	return out
}

func sortNewestFirst(readings []models.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.After(readings[j].Timestamp)
	})
}
