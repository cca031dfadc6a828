// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/models"
	"github.com/tomtom215/glucobar/internal/validation"
)

// maxBodyBytes caps request bodies; every payload here is a few hundred bytes.
const maxBodyBytes = 64 << 10

// ReadingsRequest holds the query parameters of GET /readings.
type ReadingsRequest struct {
	Hours       int `validate:"gte=1,lte=720"`
	Granularity int `validate:"gte=0,lte=1440"`
}

// StatsRequest holds the query parameters of GET /readings/stats.
type StatsRequest struct {
	Hours int `validate:"gte=1,lte=2160"`
}

// InsulinQuery holds the query parameters of GET /insulin. At most one of
// Day, From/To or Limit selects the listing.
type InsulinQuery struct {
	Day   string `validate:"omitempty,datetime=2006-01-02"`
	From  string `validate:"required_with=To,omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To    string `validate:"required_with=From,omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit int    `validate:"gte=0,lte=1000"`
}

// CreateInsulinRequest is the body of POST /insulin.
type CreateInsulinRequest struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Units     float64   `json:"units" validate:"gt=0,lte=100"`
	Kind      string    `json:"kind" validate:"insulinkind"`
	Note      string    `json:"note" validate:"max=500"`
}

// ProfileRequest is the body of PUT /profile. The upstream patient id is
// managed by sync and cannot be set here.
type ProfileRequest struct {
	Name               string  `json:"name" validate:"max=100"`
	Unit               string  `json:"unit" validate:"glucoseunit"`
	TargetLow          float64 `json:"target_low" validate:"gt=0"`
	TargetHigh         float64 `json:"target_high" validate:"gtfield=TargetLow"`
	InsulinSensitivity float64 `json:"insulin_sensitivity" validate:"gte=0"`
	CarbRatio          float64 `json:"carb_ratio" validate:"gte=0"`
}

// CredentialsRequest is the body of PUT /credentials.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

var errEmptyBody = errors.New("request body is empty")

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// validateRequest returns nil when v passes its validate tags.
func validateRequest(v interface{}) *models.APIError {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return nil
	}
	apiErr := verr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// getIntParam extracts an integer query parameter, falling back to
// defaultValue when it is absent or malformed.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
