// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/glucobar/internal/auth"
	"github.com/tomtom215/glucobar/internal/cache"
	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/models"
	syncengine "github.com/tomtom215/glucobar/internal/sync"
)

// ReadingStore is the slice of the database the handlers read and write.
type ReadingStore interface {
	Ping(ctx context.Context) error
	Latest(ctx context.Context) (models.Reading, error)
	Range(ctx context.Context, from, to time.Time) ([]models.Reading, error)
	Profile(ctx context.Context) (models.PatientProfile, error)
	UpdateProfile(ctx context.Context, p models.PatientProfile) (models.PatientProfile, error)
	CreateInsulinShot(ctx context.Context, shot models.InsulinShot) (models.InsulinShot, error)
	DeleteInsulinShot(ctx context.Context, id string) error
	InsulinShotsForDay(ctx context.Context, day time.Time, loc *time.Location) ([]models.InsulinShot, error)
	InsulinShotsBetween(ctx context.Context, from, to time.Time) ([]models.InsulinShot, error)
	InsulinHistory(ctx context.Context, limit int) ([]models.InsulinShot, error)
}

// SyncService is the sync engine as seen by the API.
type SyncService interface {
	Refresh(ctx context.Context) models.RefreshResult
	State() models.SyncState
	LastResult() (models.RefreshResult, bool)
	History() syncengine.History
	Dedupe(ctx context.Context) (database.DedupeResult, error)
}

// TokenInvalidator drops a cached upstream session.
type TokenInvalidator interface {
	Invalidate()
}

// Handler serves the /api/v1 routes.
type Handler struct {
	store     ReadingStore
	sync      SyncService
	creds     auth.CredentialStore
	tokens    TokenInvalidator
	ws        http.Handler
	cache     *cache.Cache[any]
	location  *time.Location
	startTime time.Time
	now       func() time.Time
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithWebSocket mounts ws at /api/v1/ws.
func WithWebSocket(ws http.Handler) HandlerOption {
	return func(h *Handler) { h.ws = ws }
}

// WithResponseCache caches stats responses in c.
func WithResponseCache(c *cache.Cache[any]) HandlerOption {
	return func(h *Handler) { h.cache = c }
}

// WithLocation sets the zone calendar days (?day=) are interpreted in.
func WithLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler wires the API handlers.
func NewHandler(store ReadingStore, sync SyncService, creds auth.CredentialStore, tokens TokenInvalidator, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:     store,
		sync:      sync,
		creds:     creds,
		tokens:    tokens,
		location:  time.Local,
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InvalidateCache drops cached responses. The events router calls it when a
// refresh adds readings.
func (h *Handler) InvalidateCache() {
	if h.cache != nil {
		h.cache.Clear()
	}
}

func (h *Handler) cached(key string) (any, bool) {
	if h.cache == nil {
		return nil, false
	}
	return h.cache.Get(key)
}

func (h *Handler) remember(key string, v any) {
	if h.cache != nil {
		h.cache.Set(key, v)
	}
}
