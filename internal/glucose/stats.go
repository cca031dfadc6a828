// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package glucose

import (
	"math"
	"sort"
	"time"

	"github.com/tomtom215/glucobar/internal/models"
)

// Summary holds descriptive statistics of a reading window, in Unit.
type Summary struct {
	Count  int         `json:"count"`
	Unit   models.Unit `json:"unit"`
	From   time.Time   `json:"from,omitempty"`
	To     time.Time   `json:"to,omitempty"`
	Mean   float64     `json:"mean"`
	Min    float64     `json:"min"`
	Max    float64     `json:"max"`
	StdDev float64     `json:"std_dev"`

	// CV is the coefficient of variation in percent.
	CV float64 `json:"cv"`

	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`

	TimeInRange    float64 `json:"time_in_range"`
	TimeBelowRange float64 `json:"time_below_range"`
	TimeAboveRange float64 `json:"time_above_range"`

	// GMI is the glucose management indicator (estimated HbA1c, %).
	GMI float64 `json:"gmi"`
}

// Summarize computes statistics over readings, converted to th.Unit. Range
// percentages count readings, not minutes. An empty input yields a zero
// Summary with only Unit set.
func Summarize(readings []models.Reading, th Thresholds) Summary {
	s := Summary{Count: len(readings), Unit: th.Unit}
	if len(readings) == 0 {
		return s
	}

	values := make([]float64, len(readings))
	var sum float64
	var below, above int
	s.From, s.To = readings[0].Timestamp, readings[0].Timestamp
	for i, r := range readings {
		v := Convert(r.Value, r.Unit, th.Unit)
		values[i] = v
		sum += v
		switch RangeStatusOf(v, th.Low, th.High) {
		case models.RangeLow:
			below++
		case models.RangeHigh:
			above++
		}
		if r.Timestamp.Before(s.From) {
			s.From = r.Timestamp
		}
		if r.Timestamp.After(s.To) {
			s.To = r.Timestamp
		}
	}
	sort.Float64s(values)

	n := float64(len(values))
	s.Mean = sum / n
	s.Min = values[0]
	s.Max = values[len(values)-1]

	var sq float64
	for _, v := range values {
		sq += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDev = math.Sqrt(sq / n)
	if s.Mean > 0 {
		s.CV = s.StdDev / s.Mean * 100
	}

	s.P10 = Percentile(values, 10)
	s.P25 = Percentile(values, 25)
	s.P50 = Percentile(values, 50)
	s.P75 = Percentile(values, 75)
	s.P90 = Percentile(values, 90)

	s.TimeBelowRange = float64(below) / n * 100
	s.TimeAboveRange = float64(above) / n * 100
	s.TimeInRange = 100 - s.TimeBelowRange - s.TimeAboveRange

	s.GMI = 3.31 + 0.02392*ToMgdl(s.Mean, th.Unit)
	return s
}

// Percentile returns the p-th percentile (0..100) of sorted values using
// linear interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
