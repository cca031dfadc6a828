// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package glucose

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/glucobar/internal/models"
)

type bucketKey struct {
	year   int
	month  time.Month
	day    int
	hour   int
	minute int
}

// GranularityBucket reduces readings to one per time bucket of
// minutesPerBucket minutes. Buckets are keyed on (year, month, day, hour,
// minute floored to the bucket size) in each timestamp's own location.
//
// A bucket holding several readings becomes one synthetic reading with:
//   - the mean value, in the unit of the bucket's earliest reading
//   - the lower-median timestamp of the bucket
//   - IsHigh/IsLow set when a strict majority of members has them
//   - an ID of SyntheticIDPrefix followed by the bucket start and size
//
// Single-reading buckets pass through unchanged. The result is sorted newest
// first. A bucket size <= 0, or one reading or fewer, returns the input
// sequence unchanged.
func GranularityBucket(readings []models.Reading, minutesPerBucket int) []models.Reading {
	if minutesPerBucket <= 0 || len(readings) <= 1 {
		out := make([]models.Reading, len(readings))
		copy(out, readings)
		return out
	}

	buckets := make(map[bucketKey][]models.Reading)
	for _, r := range readings {
		t := r.Timestamp
		k := bucketKey{
			year:   t.Year(),
			month:  t.Month(),
			day:    t.Day(),
			hour:   t.Hour(),
			minute: (t.Minute() / minutesPerBucket) * minutesPerBucket,
		}
		buckets[k] = append(buckets[k], r)
	}

	out := make([]models.Reading, 0, len(buckets))
	for k, members := range buckets {
		if len(members) == 1 {
			out = append(out, members[0])
			continue
		}
		out = append(out, averageBucket(k, members, minutesPerBucket))
	}
	return SortDescending(out)
}

func averageBucket(k bucketKey, members []models.Reading, minutesPerBucket int) models.Reading {
	sorted := make([]models.Reading, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	unit := sorted[0].Unit
	var sum float64
	var highs, lows int
	for _, r := range sorted {
		sum += Convert(r.Value, r.Unit, unit)
		if r.IsHigh {
			highs++
		}
		if r.IsLow {
			lows++
		}
	}
	n := len(sorted)
	median := sorted[(n-1)/2].Timestamp
	start := time.Date(k.year, k.month, k.day, k.hour, k.minute, 0, 0, median.Location())

	return models.Reading{
		ID:        fmt.Sprintf("%s%d-%d", models.SyntheticIDPrefix, start.Unix(), minutesPerBucket),
		Timestamp: median,
		Value:     sum / float64(n),
		Unit:      unit,
		IsHigh:    highs*2 > n,
		IsLow:     lows*2 > n,
	}
}
