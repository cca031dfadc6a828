// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/libreview"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
	"github.com/tomtom215/glucobar/internal/models"
)

// DefaultRunTimeout bounds a single refresh once it has started.
const DefaultRunTimeout = 2 * time.Minute

// ErrNoConnections is returned when the account follows no patients.
var ErrNoConnections = errors.New("account has no patient connections")

// Store is the subset of database.DB the engine writes through.
type Store interface {
	FetchAll(ctx context.Context) ([]models.Reading, error)
	InsertNew(ctx context.Context, readings []models.Reading) error
	Count(ctx context.Context) (int, error)
	Dedupe(ctx context.Context) (database.DedupeResult, error)
	Range(ctx context.Context, from, to time.Time) ([]models.Reading, error)
	Profile(ctx context.Context) (models.PatientProfile, error)
	SetPatientID(ctx context.Context, patientID string) error
}

// TokenSource hands out bearer tokens. auth.TokenManager implements it.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
	Invalidate()
}

// Upstream is the subset of libreview.Client the engine calls.
type Upstream interface {
	ListConnections(ctx context.Context, token string) ([]libreview.Connection, error)
	FetchReadings(ctx context.Context, patientID, token string, rng libreview.DateRange) ([]models.Reading, error)
}

// CredentialClearer forgets stored credentials after they are rejected.
type CredentialClearer interface {
	Clear(ctx context.Context) error
}

// Publisher receives every result the engine produces, InProgress included.
type Publisher interface {
	PublishRefresh(ctx context.Context, result models.RefreshResult) error
}

// Engine is the refresh state machine.
type Engine struct {
	store     Store
	tokens    TokenSource
	upstream  Upstream
	creds     CredentialClearer
	publisher Publisher
	cfg       config.SyncConfig

	now        func() time.Time
	runTimeout time.Duration

	// syncMu serializes refreshes and store maintenance.
	syncMu sync.Mutex

	mu           sync.RWMutex
	state        models.SyncState
	last         models.RefreshResult
	hasLast      bool
	backoffUntil time.Time
	history      History

	subsMu  sync.Mutex
	subs    map[int]chan models.RefreshResult
	nextSub int

	repairOnce sync.Once

	lifecycleMu sync.Mutex
	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher attaches an event bus.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithCredentialClearer attaches the credential store.
func WithCredentialClearer(c CredentialClearer) Option {
	return func(e *Engine) { e.creds = c }
}

// WithRunTimeout overrides DefaultRunTimeout.
func WithRunTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.runTimeout = d
		}
	}
}

// NewEngine creates an idle engine. Call Start to run the poll loop, or
// Refresh directly.
func NewEngine(store Store, tokens TokenSource, upstream Upstream, cfg config.SyncConfig, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		tokens:     tokens,
		upstream:   upstream,
		cfg:        cfg,
		now:        time.Now,
		runTimeout: DefaultRunTimeout,
		state:      models.SyncIdle,
		subs:       make(map[int]chan models.RefreshResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.LookbackDays <= 0 {
		e.cfg.LookbackDays = 7
	}
	return e
}

// Refresh runs one sync and returns its result. Concurrent callers queue;
// each receives the result of its own run. Inside a backoff window the
// cached failure is returned without contacting upstream.
func (e *Engine) Refresh(ctx context.Context) models.RefreshResult {
	result, _ := e.refresh(ctx, false)
	return result
}

// refresh reports whether a run actually happened.
func (e *Engine) refresh(ctx context.Context, automatic bool) (models.RefreshResult, bool) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	if cached, ok := e.cachedFailure(); ok {
		if automatic {
			logging.Debug().Time("retry_after", e.backoffDeadline()).Msg("skipping automatic refresh during backoff")
		}
		return cached, false
	}

	// Detach from the caller: a started run always completes and is applied.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.runTimeout)
	defer cancel()
	if logging.CorrelationIDFromContext(runCtx) == "" {
		runCtx = logging.ContextWithNewCorrelationID(runCtx)
	}
	log := logging.Ctx(runCtx)

	e.setState(models.SyncSyncing)
	e.emit(runCtx, models.InProgress(e.now()))

	start := time.Now()
	added, err := e.run(runCtx)
	result := e.resultOf(added, err)
	metrics.RecordSyncOperation(time.Since(start), string(result.State), result.Added, result.ErrorKind)

	if err != nil {
		log.Warn().Err(err).Str("kind", result.ErrorKind).Msg("refresh failed")
	} else {
		log.Info().Str("result", result.String()).Dur("duration", time.Since(start)).Msg("refresh completed")
	}

	if herr := e.recomputeHistory(runCtx); herr != nil {
		log.Warn().Err(herr).Msg("failed to recompute history")
	}

	e.mu.Lock()
	e.last = result
	e.hasLast = true
	e.state = models.SyncIdle
	if result.RetryAfter != nil {
		e.backoffUntil = *result.RetryAfter
	} else {
		e.backoffUntil = time.Time{}
	}
	e.mu.Unlock()

	e.emit(runCtx, result)
	return result, true
}

// run performs the fetch and merge and returns how many readings it stored.
func (e *Engine) run(ctx context.Context) (int, error) {
	token, err := e.tokens.GetValidToken(ctx)
	if err != nil {
		if libreview.KindOf(err) == libreview.KindInvalidCredentials {
			e.forgetCredentials(ctx)
		}
		return 0, err
	}

	patientID, err := e.patientID(ctx, token)
	if err != nil {
		e.handleUpstreamStatus(ctx, err)
		return 0, err
	}

	fetched, err := e.upstream.FetchReadings(ctx, patientID, token, libreview.TrailingDays(e.now(), e.cfg.LookbackDays))
	if err != nil {
		e.handleUpstreamStatus(ctx, err)
		return 0, err
	}

	stored, err := e.store.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load stored readings: %w", err)
	}

	fresh := NewReadings(stored, fetched)
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := e.store.InsertNew(ctx, fresh); err != nil {
		return 0, fmt.Errorf("persist %d readings: %w", len(fresh), err)
	}
	return len(fresh), nil
}

// NewReadings returns the fetched readings whose second is not already
// stored, and drops later duplicates within fetched itself. The comparison
// is on integer epoch seconds.
func NewReadings(stored, fetched []models.Reading) []models.Reading {
	seen := make(map[int64]struct{}, len(stored)+len(fetched))
	for _, r := range stored {
		seen[r.Second()] = struct{}{}
	}
	var out []models.Reading
	for _, r := range fetched {
		sec := r.Second()
		if _, ok := seen[sec]; ok {
			continue
		}
		seen[sec] = struct{}{}
		out = append(out, r)
	}
	return out
}

// patientID returns the cached patient id, or looks up the first connection
// and caches it.
func (e *Engine) patientID(ctx context.Context, token string) (string, error) {
	profile, err := e.store.Profile(ctx)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if profile.PatientID != "" {
		return profile.PatientID, nil
	}

	conns, err := e.upstream.ListConnections(ctx, token)
	if err != nil {
		return "", err
	}
	if len(conns) == 0 {
		return "", ErrNoConnections
	}

	id := conns[0].PatientID
	if err := e.store.SetPatientID(ctx, id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to cache patient id")
	}
	logging.Ctx(ctx).Info().Int("connections", len(conns)).Msg("resolved patient connection")
	return id, nil
}

// handleUpstreamStatus reacts to statuses that invalidate cached state: a
// 401 drops the token, a 403 or 404 drops the cached patient id.
func (e *Engine) handleUpstreamStatus(ctx context.Context, err error) {
	switch libreview.StatusCodeOf(err) {
	case http.StatusUnauthorized:
		e.tokens.Invalidate()
	case http.StatusForbidden, http.StatusNotFound:
		if serr := e.store.SetPatientID(ctx, ""); serr != nil {
			logging.Ctx(ctx).Warn().Err(serr).Msg("failed to reset patient id")
		}
	}
}

func (e *Engine) forgetCredentials(ctx context.Context) {
	e.tokens.Invalidate()
	if e.creds == nil {
		return
	}
	if err := e.creds.Clear(ctx); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to clear rejected credentials")
		return
	}
	logging.Ctx(ctx).Warn().Msg("credentials rejected by upstream and cleared")
}

// resultOf maps a run outcome to a RefreshResult and sets RetryAfter for
// failures that warrant backoff.
func (e *Engine) resultOf(added int, err error) models.RefreshResult {
	at := e.now()
	switch {
	case err != nil:
		kind := libreview.KindOf(err)
		result := models.Failed(string(kind), err.Error(), at)
		if kind.NeedsBackoff() {
			wait := e.cfg.Backoff
			if hint := libreview.RetryAfterOf(err); hint > wait {
				wait = hint
			}
			if wait > 0 {
				until := at.Add(wait)
				result.RetryAfter = &until
			}
		}
		return result
	case added == 0:
		return models.UpToDate(at)
	default:
		return models.Added(added, at)
	}
}

// cachedFailure returns the last result while its backoff window is open.
func (e *Engine) cachedFailure() (models.RefreshResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.hasLast && e.last.IsError() && e.now().Before(e.backoffUntil) {
		return e.last, true
	}
	return models.RefreshResult{}, false
}

func (e *Engine) backoffDeadline() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backoffUntil
}

func (e *Engine) setState(s models.SyncState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State returns the current position in the Idle/Syncing state machine.
func (e *Engine) State() models.SyncState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastResult returns the most recent completed result.
func (e *Engine) LastResult() (models.RefreshResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.hasLast
}

// Dedupe runs the store's repair pass under the writer lock and refreshes
// the history view when anything was removed.
func (e *Engine) Dedupe(ctx context.Context) (database.DedupeResult, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.dedupeLocked(ctx)
}

func (e *Engine) dedupeLocked(ctx context.Context) (database.DedupeResult, error) {
	res, err := e.store.Dedupe(ctx)
	if err != nil {
		return res, fmt.Errorf("dedupe readings: %w", err)
	}
	if res.Removed > 0 {
		logging.Ctx(ctx).Info().Int("removed", res.Removed).Int("survivors", res.Survivors).Msg("removed duplicate readings")
		if herr := e.recomputeHistory(ctx); herr != nil {
			logging.Ctx(ctx).Warn().Err(herr).Msg("failed to recompute history")
		}
	}
	return res, nil
}

// emit publishes to the bus and fans out to subscribers.
func (e *Engine) emit(ctx context.Context, result models.RefreshResult) {
	if e.publisher != nil {
		if err := e.publisher.PublishRefresh(ctx, result); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to publish refresh result")
		}
	}

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- result:
		default:
			logging.Debug().Int("subscriber", id).Msg("subscriber slow, dropping refresh result")
		}
	}
}

// Subscribe returns a channel receiving every result the engine emits and
// a function that unsubscribes and closes it. Slow subscribers miss
// results rather than blocking the engine.
func (e *Engine) Subscribe() (<-chan models.RefreshResult, func()) {
	ch := make(chan models.RefreshResult, 8)

	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, id)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}
