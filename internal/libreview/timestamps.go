// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"strconv"
	"strings"
	"time"
)

// zonedLayouts carry their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.000Z0700",
}

// localLayouts are interpreted in a caller-supplied location. The first one
// is what the LibreLinkUp app sends.
var localLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// parseTimestamp tries every known layout, then epoch seconds or
// milliseconds.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(float64(n))
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochTime(f)
	}
	return time.Time{}, false
}

// epochTime treats values above 1e11 as milliseconds. Anything before 2000
// is rejected.
func epochTime(v float64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	var t time.Time
	if v > 1e11 {
		t = time.UnixMilli(int64(v))
	} else {
		t = time.Unix(int64(v), 0)
	}
	if t.Year() < 2000 {
		return time.Time{}, false
	}
	return t.UTC(), true
}
