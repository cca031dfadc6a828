// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/libreview"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockTokens struct {
	getFn       func(ctx context.Context) (string, error)
	invalidated atomic.Int32
}

func (m *mockTokens) GetValidToken(ctx context.Context) (string, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return "token", nil
}

func (m *mockTokens) Invalidate() { m.invalidated.Add(1) }

type mockUpstream struct {
	listFn  func(ctx context.Context, token string) ([]libreview.Connection, error)
	fetchFn func(ctx context.Context, patientID, token string, rng libreview.DateRange) ([]models.Reading, error)

	listCalls  atomic.Int32
	fetchCalls atomic.Int32
}

func (m *mockUpstream) ListConnections(ctx context.Context, token string) ([]libreview.Connection, error) {
	m.listCalls.Add(1)
	if m.listFn != nil {
		return m.listFn(ctx, token)
	}
	return []libreview.Connection{{PatientID: "patient-1"}}, nil
}

func (m *mockUpstream) FetchReadings(ctx context.Context, patientID, token string, rng libreview.DateRange) ([]models.Reading, error) {
	m.fetchCalls.Add(1)
	if m.fetchFn != nil {
		return m.fetchFn(ctx, patientID, token, rng)
	}
	return nil, nil
}

// returning makes fetchFn serve a fixed batch.
func returning(readings ...models.Reading) func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
	return func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
		return readings, nil
	}
}

type mockCreds struct {
	cleared atomic.Int32
}

func (m *mockCreds) Clear(context.Context) error {
	m.cleared.Add(1)
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []models.RefreshResult
}

func (p *recordingPublisher) PublishRefresh(_ context.Context, r models.RefreshResult) error {
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) states() []models.RefreshState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RefreshState, len(p.results))
	for i, r := range p.results {
		out[i] = r.State
	}
	return out
}

type fixture struct {
	engine   *Engine
	store    *database.DB
	tokens   *mockTokens
	upstream *mockUpstream
	creds    *mockCreds
	pub      *recordingPublisher
	clock    *clock
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Enabled:         true,
		Interval:        5 * time.Minute,
		LookbackDays:    7,
		Backoff:         time.Minute,
		DedupeThreshold: 10000,
	}
}

func newFixture(t *testing.T, cfg config.SyncConfig) *fixture {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Driver: database.DriverSQLite, Path: database.MemoryPath, Threads: 1})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetProfileDefaults(models.PatientProfile{Name: "test", Unit: models.UnitMmolL, TargetLow: 3.9, TargetHigh: 10.0})

	f := &fixture{
		store:    db,
		tokens:   &mockTokens{},
		upstream: &mockUpstream{},
		creds:    &mockCreds{},
		pub:      &recordingPublisher{},
		clock:    &clock{now: t0},
	}
	f.engine = NewEngine(db, f.tokens, f.upstream, cfg,
		WithClock(f.clock.Now),
		WithPublisher(f.pub),
		WithCredentialClearer(f.creds),
	)
	return f
}

func mmol(id string, ts time.Time, v float64) models.Reading {
	return models.Reading{ID: id, Timestamp: ts, Value: v, Unit: models.UnitMmolL}
}

func checkResult(t *testing.T, got models.RefreshResult, state models.RefreshState, added int) {
	t.Helper()
	if got.State != state || got.Added != added {
		t.Fatalf("result = %s (%+v), want %s added=%d", got, got, state, added)
	}
}

func TestRefresh_SecondRefreshIsUpToDate(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	f.upstream.fetchFn = returning(
		mmol("a", t0.Add(-10*time.Minute), 6.1),
		mmol("b", t0.Add(-5*time.Minute), 6.4),
		mmol("c", t0.Add(-15*time.Minute), 5.9),
	)

	checkResult(t, f.engine.Refresh(context.Background()), models.RefreshAdded, 3)
	checkResult(t, f.engine.Refresh(context.Background()), models.RefreshUpToDate, 0)

	count, err := f.store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("stored = %d, want 3", count)
	}
	if f.upstream.listCalls.Load() != 1 {
		t.Errorf("ListConnections calls = %d, want 1 (patient id cached)", f.upstream.listCalls.Load())
	}
}

func TestRefresh_AddsOnlyTheNewCurrentReading(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	ctx := context.Background()

	base := t0.Add(-time.Hour)
	var history []models.Reading
	for i := 0; i < 4; i++ {
		history = append(history, mmol(fmt.Sprintf("h%d", i), base.Add(time.Duration(i)*15*time.Minute), 6))
	}
	if err := f.store.InsertNew(ctx, history); err != nil {
		t.Fatal(err)
	}

	// Same history under different ids plus a current reading five minutes
	// after the newest stored one.
	latest := history[len(history)-1].Timestamp
	var batch []models.Reading
	for _, r := range history {
		batch = append(batch, mmol("upstream-"+r.ID, r.Timestamp.Add(300*time.Millisecond), r.Value))
	}
	batch = append(batch, mmol("current", latest.Add(5*time.Minute), 7.2))
	f.upstream.fetchFn = returning(batch...)

	checkResult(t, f.engine.Refresh(ctx), models.RefreshAdded, 1)

	stored, err := f.store.FetchAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := stored[len(stored)-1].ID; got != "current" {
		t.Errorf("last stored id = %q, want current", got)
	}
}

func TestRefresh_ConcurrentCallsQueue(t *testing.T) {
	f := newFixture(t, testSyncConfig())

	var inFlight, maxInFlight atomic.Int32
	release := make(chan struct{})
	f.upstream.fetchFn = func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return []models.Reading{mmol("only", t0.Add(-time.Minute), 5.5)}, nil
	}

	const callers = 3
	results := make(chan models.RefreshResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.engine.Refresh(context.Background())
		}()
	}
	for i := 0; i < callers; i++ {
		release <- struct{}{}
	}
	wg.Wait()
	close(results)

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxInFlight.Load())
	}
	if f.upstream.fetchCalls.Load() != callers {
		t.Errorf("fetch calls = %d, want %d (every caller runs)", f.upstream.fetchCalls.Load(), callers)
	}
	var added, upToDate int
	for r := range results {
		switch r.State {
		case models.RefreshAdded:
			added++
		case models.RefreshUpToDate:
			upToDate++
		default:
			t.Errorf("unexpected result %s", r)
		}
	}
	if added != 1 || upToDate != callers-1 {
		t.Errorf("added=%d upToDate=%d, want 1 and %d", added, upToDate, callers-1)
	}
}

func TestRefresh_BackoffReturnsCachedFailure(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	f.upstream.fetchFn = func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
		return nil, &libreview.Error{Kind: libreview.KindRateLimited, Op: "graph", StatusCode: http.StatusTooManyRequests, RetryAfter: 90 * time.Second}
	}

	first := f.engine.Refresh(context.Background())
	if first.ErrorKind != string(libreview.KindRateLimited) {
		t.Fatalf("first = %+v, want rate_limited", first)
	}
	if first.RetryAfter == nil || !first.RetryAfter.Equal(t0.Add(90*time.Second)) {
		t.Fatalf("RetryAfter = %v, want server hint of 90s", first.RetryAfter)
	}

	f.clock.Advance(30 * time.Second)
	second := f.engine.Refresh(context.Background())
	if second != first {
		t.Errorf("refresh inside backoff = %+v, want cached %+v", second, first)
	}
	if f.upstream.fetchCalls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.upstream.fetchCalls.Load())
	}

	// Automatic attempts are skipped silently.
	published := len(f.pub.states())
	if _, ran := f.engine.refresh(context.Background(), true); ran {
		t.Error("automatic refresh ran inside backoff window")
	}
	if len(f.pub.states()) != published {
		t.Error("skipped automatic refresh published a result")
	}

	f.clock.Advance(61 * time.Second)
	f.upstream.fetchFn = returning()
	checkResult(t, f.engine.Refresh(context.Background()), models.RefreshUpToDate, 0)
	if f.upstream.fetchCalls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2 after backoff expired", f.upstream.fetchCalls.Load())
	}
}

func TestRefresh_BackoffUsesConfiguredMinimum(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	f.tokens.getFn = func(context.Context) (string, error) {
		return "", &libreview.Error{Kind: libreview.KindServiceUnavailable, StatusCode: http.StatusBadGateway}
	}

	got := f.engine.Refresh(context.Background())
	if got.RetryAfter == nil || !got.RetryAfter.Equal(t0.Add(time.Minute)) {
		t.Errorf("RetryAfter = %v, want %v", got.RetryAfter, t0.Add(time.Minute))
	}
}

func TestRefresh_ErrorKinds(t *testing.T) {
	tests := []struct {
		name        string
		tokenErr    error
		fetchErr    error
		wantKind    libreview.Kind
		wantCleared int32
		wantBackoff bool
	}{
		{"no credentials", libreview.ErrNoCredentials, nil, libreview.KindNoCredentials, 0, false},
		{"invalid credentials clears store", &libreview.Error{Kind: libreview.KindInvalidCredentials, StatusCode: 401}, nil, libreview.KindInvalidCredentials, 1, false},
		{"authentication failed", &libreview.Error{Kind: libreview.KindAuthenticationFailed}, nil, libreview.KindAuthenticationFailed, 0, false},
		{"network on fetch", nil, &libreview.Error{Kind: libreview.KindNetwork, StatusCode: 500}, libreview.KindNetwork, 0, false},
		{"deadline on fetch", nil, context.DeadlineExceeded, libreview.KindNetwork, 0, false},
		{"unclassified", nil, errors.New("boom"), libreview.KindUnknown, 0, false},
		{"service unavailable", nil, &libreview.Error{Kind: libreview.KindServiceUnavailable}, libreview.KindServiceUnavailable, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testSyncConfig())
			if tt.tokenErr != nil {
				f.tokens.getFn = func(context.Context) (string, error) { return "", tt.tokenErr }
			}
			if tt.fetchErr != nil {
				f.upstream.fetchFn = func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
					return nil, tt.fetchErr
				}
			}

			got := f.engine.Refresh(context.Background())
			if !got.IsError() || got.ErrorKind != string(tt.wantKind) {
				t.Fatalf("result = %+v, want error %s", got, tt.wantKind)
			}
			if f.creds.cleared.Load() != tt.wantCleared {
				t.Errorf("credential clears = %d, want %d", f.creds.cleared.Load(), tt.wantCleared)
			}
			if (got.RetryAfter != nil) != tt.wantBackoff {
				t.Errorf("RetryAfter = %v, want backoff=%v", got.RetryAfter, tt.wantBackoff)
			}
			if f.engine.State() != models.SyncIdle {
				t.Errorf("state after failure = %s, want idle", f.engine.State())
			}
		})
	}
}

func TestRefresh_UpstreamStatusResetsCachedState(t *testing.T) {
	t.Run("401 invalidates token", func(t *testing.T) {
		f := newFixture(t, testSyncConfig())
		f.upstream.fetchFn = func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
			return nil, &libreview.Error{Kind: libreview.KindNetwork, StatusCode: http.StatusUnauthorized}
		}
		f.engine.Refresh(context.Background())
		if f.tokens.invalidated.Load() != 1 {
			t.Errorf("invalidations = %d, want 1", f.tokens.invalidated.Load())
		}
	})

	t.Run("404 forgets patient id", func(t *testing.T) {
		f := newFixture(t, testSyncConfig())
		f.upstream.fetchFn = func(context.Context, string, string, libreview.DateRange) ([]models.Reading, error) {
			return nil, &libreview.Error{Kind: libreview.KindNetwork, StatusCode: http.StatusNotFound}
		}
		f.engine.Refresh(context.Background())
		p, err := f.store.Profile(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if p.PatientID != "" {
			t.Errorf("patient id = %q, want reset", p.PatientID)
		}
		f.engine.Refresh(context.Background())
		if f.upstream.listCalls.Load() != 2 {
			t.Errorf("ListConnections calls = %d, want 2", f.upstream.listCalls.Load())
		}
	})

	t.Run("no connections", func(t *testing.T) {
		f := newFixture(t, testSyncConfig())
		f.upstream.listFn = func(context.Context, string) ([]libreview.Connection, error) { return nil, nil }
		got := f.engine.Refresh(context.Background())
		if got.ErrorKind != string(libreview.KindUnknown) {
			t.Errorf("result = %+v, want unknown error", got)
		}
		if f.upstream.fetchCalls.Load() != 0 {
			t.Error("fetched readings without a patient id")
		}
	})
}

func TestRefresh_RequestsTrailingWindow(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	var gotRange libreview.DateRange
	var gotPatient string
	f.upstream.fetchFn = func(_ context.Context, patientID, _ string, rng libreview.DateRange) ([]models.Reading, error) {
		gotPatient, gotRange = patientID, rng
		return nil, nil
	}
	f.engine.Refresh(context.Background())

	if gotPatient != "patient-1" {
		t.Errorf("patient = %q", gotPatient)
	}
	if !gotRange.Start.Equal(t0.AddDate(0, 0, -7)) || !gotRange.End.Equal(t0) {
		t.Errorf("range = %+v, want trailing 7 days", gotRange)
	}
}

func TestRefresh_DetachedFromCallerCancellation(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	f.upstream.fetchFn = func(ctx context.Context, _, _ string, _ libreview.DateRange) ([]models.Reading, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []models.Reading{mmol("x", t0.Add(-time.Minute), 5)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checkResult(t, f.engine.Refresh(ctx), models.RefreshAdded, 1)
}

func TestRefresh_PublishesInProgressBeforeEachResult(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	f.upstream.fetchFn = returning(mmol("a", t0.Add(-time.Minute), 5))

	events, unsubscribe := f.engine.Subscribe()
	defer unsubscribe()

	f.engine.Refresh(context.Background())
	f.engine.Refresh(context.Background())

	want := []models.RefreshState{
		models.RefreshInProgress, models.RefreshAdded,
		models.RefreshInProgress, models.RefreshUpToDate,
	}
	got := f.pub.states()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("published[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	for i, w := range want {
		select {
		case r := <-events:
			if r.State != w {
				t.Errorf("subscriber[%d] = %s, want %s", i, r.State, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber missed result %d", i)
		}
	}

	last, ok := f.engine.LastResult()
	if !ok || last.State != models.RefreshUpToDate {
		t.Errorf("LastResult = %+v, %v", last, ok)
	}
}

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	events, unsubscribe := f.engine.Subscribe()
	unsubscribe()
	unsubscribe()
	if _, open := <-events; open {
		t.Error("channel still open after unsubscribe")
	}
	// Emitting after unsubscribe must not panic.
	f.engine.Refresh(context.Background())
}

func TestRefresh_RecomputesHistory(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	f.upstream.fetchFn = returning(
		mmol("old", t0.Add(-30*time.Hour), 9),
		mmol("a", t0.Add(-10*time.Minute), 5.0),
		mmol("b", t0.Add(-5*time.Minute), 12.0),
	)
	f.engine.Refresh(context.Background())

	h := f.engine.History()
	if len(h.Readings) != 2 {
		t.Fatalf("history readings = %d, want 2 inside the window", len(h.Readings))
	}
	if h.Current == nil || h.Current.ID != "b" {
		t.Fatalf("current = %+v, want b", h.Current)
	}
	if h.Current.Range != models.RangeHigh || h.Current.Trend != models.TrendRising {
		t.Errorf("current annotation = %s/%s, want high/rising", h.Current.Range, h.Current.Trend)
	}
	if h.Summary.Count != 2 || !h.UpdatedAt.Equal(t0) {
		t.Errorf("summary = %+v updated %v", h.Summary, h.UpdatedAt)
	}
}

func TestNewReadings_ComparesWholeSeconds(t *testing.T) {
	stored := []models.Reading{mmol("s", t0, 5)}
	fetched := []models.Reading{
		mmol("same-second", t0.Add(400*time.Millisecond), 5),
		mmol("next", t0.Add(time.Second), 5),
		mmol("next-dup", t0.Add(time.Second+time.Millisecond), 5),
	}
	got := NewReadings(stored, fetched)
	if len(got) != 1 || got[0].ID != "next" {
		t.Errorf("NewReadings = %v, want only next", got)
	}
}

func TestSelfCheck_RepairsOncePerProcess(t *testing.T) {
	cfg := testSyncConfig()
	cfg.DedupeThreshold = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	dupes := []models.Reading{
		mmol("a1", t0.Add(-time.Hour), 5),
		mmol("a2", t0.Add(-time.Hour+200*time.Millisecond), 5),
		mmol("b1", t0.Add(-30*time.Minute), 6),
		mmol("b2", t0.Add(-30*time.Minute), 6),
	}
	if err := f.store.InsertNew(ctx, dupes); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.SelfCheck(ctx); err != nil {
		t.Fatalf("SelfCheck: %v", err)
	}
	count, _ := f.store.Count(ctx)
	if count != 2 {
		t.Fatalf("count after repair = %d, want 2", count)
	}
	if len(f.engine.History().Readings) != 2 {
		t.Errorf("history not computed after repair")
	}

	if err := f.store.InsertNew(ctx, []models.Reading{mmol("a3", t0.Add(-time.Hour), 5)}); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.SelfCheck(ctx); err != nil {
		t.Fatalf("second SelfCheck: %v", err)
	}
	count, _ = f.store.Count(ctx)
	if count != 3 {
		t.Errorf("count = %d, want 3 (repair runs once)", count)
	}

	res, err := f.engine.Dedupe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 1 || res.Survivors != 2 {
		t.Errorf("manual dedupe = %+v", res)
	}
}

func TestStartStop_InitialSync(t *testing.T) {
	cfg := testSyncConfig()
	cfg.InitialSync = true
	cfg.Interval = time.Hour
	f := newFixture(t, cfg)
	f.upstream.fetchFn = returning(mmol("a", t0.Add(-time.Minute), 5))

	events, unsubscribe := f.engine.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.engine.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case r := <-events:
			done = r.State == models.RefreshAdded
		case <-deadline:
			t.Fatal("initial sync did not complete")
		}
	}

	if err := f.engine.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.engine.Stop(); err == nil {
		t.Error("second Stop should fail")
	}
}

func TestStart_DisabledRunsSelfCheckOnly(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Enabled = false
	cfg.InitialSync = true
	f := newFixture(t, cfg)

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Stop(); err != nil {
		t.Fatal(err)
	}
	if f.upstream.fetchCalls.Load() != 0 {
		t.Error("disabled engine contacted upstream")
	}
	if f.engine.History().UpdatedAt.IsZero() {
		t.Error("self-check did not compute history")
	}
}

func TestRefresh_CurrentAheadOfHostClock(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	ctx := context.Background()

	old := mmol("old", t0.Add(-5*time.Minute+20*time.Second), 6.0)
	if err := f.store.InsertNew(ctx, []models.Reading{old}); err != nil {
		t.Fatal(err)
	}
	// The sensor clock leads the host by 20 seconds.
	next := mmol("next", old.Timestamp.Add(5*time.Minute), 6.5)
	f.upstream.fetchFn = returning(old, next)

	checkResult(t, f.engine.Refresh(ctx), models.RefreshAdded, 1)

	h := f.engine.History()
	if h.Current == nil || h.Current.ID != "next" {
		t.Fatalf("current = %+v, want next", h.Current)
	}
	if len(h.Readings) != 2 {
		t.Errorf("history readings = %d, want 2", len(h.Readings))
	}
}

func TestRefresh_PersistsNudgedSameSecondReadings(t *testing.T) {
	f := newFixture(t, testSyncConfig())
	ctx := context.Background()

	base := t0.Add(-30 * time.Minute)
	entry := func(ts time.Time, v float64) map[string]any {
		stamp := ts.UTC().Format("1/2/2006 3:04:05 PM")
		return map[string]any{"FactoryTimestamp": stamp, "Timestamp": stamp, "Value": v, "GlucoseUnits": 0}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body any
		if strings.HasSuffix(r.URL.Path, "/graph") {
			body = map[string]any{"status": 0, "data": map[string]any{"graphData": []any{
				entry(base, 5.5),
				entry(base, 5.6),
				entry(base.Add(15*time.Minute), 6.0),
			}}}
		} else {
			body = map[string]any{"status": 0, "data": []any{map[string]any{"patientId": "p-1"}}}
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	defer srv.Close()

	client := libreview.New(&config.LibreViewConfig{BaseURL: srv.URL, Product: "llu.android", Version: "4.16.0", Timeout: 5 * time.Second},
		libreview.WithClock(f.clock.Now), libreview.WithLocation(time.UTC))
	engine := NewEngine(f.store, f.tokens, client, testSyncConfig(), WithClock(f.clock.Now))

	checkResult(t, engine.Refresh(ctx), models.RefreshAdded, 3)

	stored, err := f.store.FetchAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	seconds := map[int64]bool{}
	for _, r := range stored {
		seconds[r.Second()] = true
	}
	if len(stored) != 3 || len(seconds) != 3 {
		t.Fatalf("stored %d readings in %d distinct seconds, want 3 and 3", len(stored), len(seconds))
	}
	for _, want := range []time.Time{base, base.Add(time.Second), base.Add(15 * time.Minute)} {
		if !seconds[want.Unix()] {
			t.Errorf("no reading stored at %v", want)
		}
	}

	checkResult(t, engine.Refresh(ctx), models.RefreshUpToDate, 0)
}
