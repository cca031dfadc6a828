// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/metrics"
)

// Decode stages, in the order they are tried.
const (
	stageStrict = "strict"
	stageMap    = "map"
	stageFields = "fields"
)

var errNoReadingData = errors.New("no reading data in envelope")

// entry is one upstream measurement before validation.
type entry struct {
	factoryTS string
	deviceTS  string
	epoch     float64

	value    *float64
	mgdl     *float64
	unitCode *int

	isHigh bool
	isLow  bool
}

// decoded is the output of whichever stage succeeded.
type decoded struct {
	stage   string
	entries []entry
	current *entry
}

type graphEnvelope struct {
	Status int `json:"status"`
	Data   *struct {
		Connection *struct {
			GlucoseMeasurement *rawEntry `json:"glucoseMeasurement"`
		} `json:"connection"`
		GraphData []rawEntry `json:"graphData"`
	} `json:"data"`
}

type rawEntry struct {
	FactoryTimestamp string   `json:"FactoryTimestamp"`
	Timestamp        string   `json:"Timestamp"`
	Value            *float64 `json:"Value"`
	ValueInMgPerDl   *float64 `json:"ValueInMgPerDl"`
	GlucoseUnits     *int     `json:"GlucoseUnits"`
	IsHigh           bool     `json:"isHigh"`
	IsLow            bool     `json:"isLow"`
}

func (r rawEntry) entry() entry {
	return entry{
		factoryTS: r.FactoryTimestamp,
		deviceTS:  r.Timestamp,
		value:     r.Value,
		mgdl:      r.ValueInMgPerDl,
		unitCode:  r.GlucoseUnits,
		isHigh:    r.IsHigh,
		isLow:     r.IsLow,
	}
}

// decodeGraph runs the strict, map and field stages in turn and returns the
// first that yields an envelope. The error lists every stage's failure.
func decodeGraph(body []byte) (*decoded, error) {
	stages := []struct {
		name string
		fn   func([]byte) (*decoded, error)
	}{
		{stageStrict, decodeStrict},
		{stageMap, decodeMap},
		{stageFields, decodeFields},
	}

	var errs []error
	for _, s := range stages {
		d, err := s.fn(body)
		if err == nil {
			d.stage = s.name
			metrics.UpstreamDecodeStage.WithLabelValues(s.name).Inc()
			return d, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	metrics.UpstreamDecodeStage.WithLabelValues("failed").Inc()
	return nil, errors.Join(errs...)
}

// decodeStrict requires the documented schema, field types included.
func decodeStrict(body []byte) (*decoded, error) {
	var env graphEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Data == nil || (env.Data.GraphData == nil && (env.Data.Connection == nil || env.Data.Connection.GlucoseMeasurement == nil)) {
		return nil, errNoReadingData
	}

	d := &decoded{entries: make([]entry, 0, len(env.Data.GraphData))}
	for _, r := range env.Data.GraphData {
		d.entries = append(d.entries, r.entry())
	}
	if env.Data.Connection != nil && env.Data.Connection.GlucoseMeasurement != nil {
		cur := env.Data.Connection.GlucoseMeasurement.entry()
		d.current = &cur
	}
	return d, nil
}

// decodeMap accepts the documented layout with loosely typed fields:
// numbers as strings, numeric timestamps, mis-cased keys.
func decodeMap(body []byte) (*decoded, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}
	data, ok := lookup(root, "data").(map[string]any)
	if !ok {
		return nil, errNoReadingData
	}

	graph, hasGraph := lookup(data, "graphData").([]any)
	var current map[string]any
	if conn, ok := lookup(data, "connection").(map[string]any); ok {
		current, _ = lookup(conn, "glucoseMeasurement").(map[string]any)
	}
	if !hasGraph && current == nil {
		return nil, errNoReadingData
	}

	d := &decoded{entries: entriesFromSlice(graph)}
	if current != nil {
		cur := entryFromMap(current)
		d.current = &cur
	}
	return d, nil
}

// decodeFields walks an arbitrary document for the first array of objects
// that look like measurements, wherever it sits.
func decodeFields(body []byte) (*decoded, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}
	list, ok := findReadingArray(root, 0)
	if !ok {
		return nil, errNoReadingData
	}
	return &decoded{entries: entriesFromSlice(list)}, nil
}

const maxWalkDepth = 8

func findReadingArray(v any, depth int) ([]any, bool) {
	if depth > maxWalkDepth {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok && looksLikeReading(m) {
				return t, true
			}
		}
		for _, item := range t {
			if found, ok := findReadingArray(item, depth+1); ok {
				return found, true
			}
		}
	case map[string]any:
		// Sorted keys keep the pick stable when several arrays qualify.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found, ok := findReadingArray(t[k], depth+1); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func looksLikeReading(m map[string]any) bool {
	return lookup(m, "Value") != nil || lookup(m, "ValueInMgPerDl") != nil
}

func entriesFromSlice(items []any) []entry {
	out := make([]entry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			// Kept so the skip is counted during conversion.
			out = append(out, entry{})
			continue
		}
		out = append(out, entryFromMap(m))
	}
	return out
}

func entryFromMap(m map[string]any) entry {
	e := entry{
		value:    floatField(m, "Value"),
		mgdl:     floatField(m, "ValueInMgPerDl"),
		isHigh:   boolField(m, "isHigh"),
		isLow:    boolField(m, "isLow"),
		unitCode: intField(m, "GlucoseUnits"),
	}
	e.factoryTS, e.epoch = timeField(m, "FactoryTimestamp")
	var deviceEpoch float64
	e.deviceTS, deviceEpoch = timeField(m, "Timestamp")
	if e.epoch == 0 {
		e.epoch = deviceEpoch
	}
	return e
}

// lookup is a map index that falls back to a case-insensitive match.
func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func floatField(m map[string]any, key string) *float64 {
	switch v := lookup(m, key).(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func intField(m map[string]any, key string) *int {
	f := floatField(m, key)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func boolField(m map[string]any, key string) bool {
	switch v := lookup(m, key).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	}
	return false
}

// timeField returns a string timestamp or, for numeric values, an epoch.
func timeField(m map[string]any, key string) (string, float64) {
	switch v := lookup(m, key).(type) {
	case string:
		return v, 0
	case float64:
		return "", v
	}
	return "", 0
}
