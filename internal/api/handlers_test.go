// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/auth"
	"github.com/tomtom215/glucobar/internal/cache"
	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/glucose"
	"github.com/tomtom215/glucobar/internal/libreview"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
	syncengine "github.com/tomtom215/glucobar/internal/sync"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type mockSync struct {
	mu        gosync.Mutex
	refreshFn func(ctx context.Context) models.RefreshResult
	state     models.SyncState
	last      *models.RefreshResult
	history   syncengine.History
	dedupeErr error
	refreshes atomic.Int32
}

func (m *mockSync) set(fn func(m *mockSync)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockSync) Refresh(ctx context.Context) models.RefreshResult {
	m.refreshes.Add(1)
	m.mu.Lock()
	fn := m.refreshFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return models.UpToDate(testNow)
}

func (m *mockSync) State() models.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == "" {
		return models.SyncIdle
	}
	return m.state
}

func (m *mockSync) LastResult() (models.RefreshResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return models.RefreshResult{}, false
	}
	return *m.last, true
}

func (m *mockSync) History() syncengine.History {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

func (m *mockSync) Dedupe(context.Context) (database.DedupeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return database.DedupeResult{Survivors: 3, Removed: 1}, m.dedupeErr
}

type memCreds struct {
	mu    gosync.Mutex
	creds *auth.Credentials
}

func (m *memCreds) Get(context.Context) (auth.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return auth.Credentials{}, libreview.ErrNoCredentials
	}
	return *m.creds, nil
}

func (m *memCreds) Set(_ context.Context, c auth.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &c
	return nil
}

func (m *memCreds) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}

type countingTokens struct{ invalidations atomic.Int32 }

func (c *countingTokens) Invalidate() { c.invalidations.Add(1) }

type fixture struct {
	db     *database.DB
	sync   *mockSync
	creds  *memCreds
	tokens *countingTokens
	h      *Handler
	server *httptest.Server
}

func newFixture(t *testing.T, mc *ChiMiddlewareConfig, opts ...HandlerOption) *fixture {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Driver: database.DriverSQLite, Path: database.MemoryPath, Threads: 1})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetProfileDefaults(models.PatientProfile{Name: "test", Unit: models.UnitMmolL, TargetLow: 3.9, TargetHigh: 10.0})

	f := &fixture{db: db, sync: &mockSync{}, creds: &memCreds{}, tokens: &countingTokens{}}
	opts = append([]HandlerOption{
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
	}, opts...)
	h := NewHandler(db, f.sync, f.creds, f.tokens, opts...)
	f.h = h
	if mc == nil {
		mc = DefaultChiMiddlewareConfig()
	}
	f.server = httptest.NewServer(NewRouter(h, mc))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) seed(t *testing.T, readings ...models.Reading) {
	t.Helper()
	if err := f.db.InsertNew(context.Background(), readings); err != nil {
		t.Fatalf("seed readings: %v", err)
	}
}

func reading(id string, ago time.Duration, value float64) models.Reading {
	return models.Reading{ID: id, Timestamp: testNow.Add(-ago), Value: value, Unit: models.UnitMmolL}
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func checkStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	last := models.Added(2, testNow)
	f.sync.set(func(m *mockSync) { m.last = &last })

	resp, env := f.do(t, http.MethodGet, "/api/v1/health", nil)
	checkStatus(t, resp, http.StatusOK)

	var hs HealthStatus
	decodeData(t, env, &hs)
	if hs.Status != "healthy" || !hs.Database {
		t.Errorf("health = %+v", hs)
	}
	if hs.SyncState != models.SyncIdle {
		t.Errorf("sync state = %q", hs.SyncState)
	}
	if hs.LastResult == nil || hs.LastResult.Added != 2 {
		t.Errorf("last result = %+v", hs.LastResult)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestCurrentReading(t *testing.T) {
	f := newFixture(t, nil)

	resp, env := f.do(t, http.MethodGet, "/api/v1/readings/current", nil)
	checkStatus(t, resp, http.StatusNotFound)
	if env.Error == nil || env.Error.Code != CodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}

	f.seed(t, reading("a", 10*time.Minute, 6.0), reading("b", 5*time.Minute, 8.0))

	resp, env = f.do(t, http.MethodGet, "/api/v1/readings/current", nil)
	checkStatus(t, resp, http.StatusOK)
	var cur models.AnnotatedReading
	decodeData(t, env, &cur)
	if cur.ID != "b" {
		t.Errorf("current id = %q, want b", cur.ID)
	}
	if cur.Trend != models.TrendRising {
		t.Errorf("trend = %q, want rising", cur.Trend)
	}
	if cur.Range != models.RangeInRange {
		t.Errorf("range = %q, want in range", cur.Range)
	}
}

func TestReadings_WindowAndGranularity(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t,
		reading("old", 30*time.Hour, 5.0),
		reading("r1", 50*time.Minute, 5.0),
		reading("r2", 45*time.Minute, 7.0),
		reading("r3", 0, 11.0),
	)

	resp, env := f.do(t, http.MethodGet, "/api/v1/readings", nil)
	checkStatus(t, resp, http.StatusOK)
	var all ReadingsResponse
	decodeData(t, env, &all)
	if len(all.Readings) != 3 {
		t.Fatalf("readings = %d, want 3 inside 24h", len(all.Readings))
	}
	if all.Readings[0].ID != "r3" || all.Readings[0].Range != models.RangeHigh {
		t.Errorf("newest = %+v", all.Readings[0])
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/readings?hours=2&granularity=60", nil)
	var bucketed ReadingsResponse
	decodeData(t, env, &bucketed)
	if bucketed.Granularity != 60 {
		t.Errorf("granularity = %d", bucketed.Granularity)
	}
	// 11:10 and 11:15 share the 11:00 bucket; 12:00 stands alone.
	if len(bucketed.Readings) != 2 {
		t.Fatalf("bucketed readings = %d, want 2", len(bucketed.Readings))
	}
	avg := bucketed.Readings[1]
	if !avg.IsSynthetic() || avg.Value != 6.0 {
		t.Errorf("averaged bucket = %+v", avg)
	}
}

func TestReadings_Validation(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{
		"/api/v1/readings?hours=0",
		"/api/v1/readings?hours=10000",
		"/api/v1/readings?granularity=-5",
		"/api/v1/readings/stats?hours=-1",
	} {
		resp, env := f.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
			continue
		}
		if env.Error == nil || env.Error.Code != CodeValidation {
			t.Errorf("%s: error = %+v", path, env.Error)
		}
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, reading("a", time.Hour, 3.0), reading("b", 30*time.Minute, 6.0), reading("c", 5*time.Minute, 9.0))

	resp, env := f.do(t, http.MethodGet, "/api/v1/readings/stats?hours=3", nil)
	checkStatus(t, resp, http.StatusOK)
	var st StatsResponse
	decodeData(t, env, &st)
	if st.Count != 3 || st.Mean != 6.0 || st.Hours != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.Thresholds != (glucose.Thresholds{Low: 3.9, High: 10.0, Unit: models.UnitMmolL}) {
		t.Errorf("thresholds = %+v", st.Thresholds)
	}
}

func TestStats_Cache(t *testing.T) {
	f := newFixture(t, nil, WithResponseCache(cache.New[any](time.Hour)))
	f.seed(t, reading("a", time.Hour, 4.0))

	stats := func() StatsResponse {
		t.Helper()
		resp, env := f.do(t, http.MethodGet, "/api/v1/readings/stats?hours=3", nil)
		checkStatus(t, resp, http.StatusOK)
		var st StatsResponse
		decodeData(t, env, &st)
		return st
	}

	if st := stats(); st.Count != 1 {
		t.Fatalf("count = %d, want 1", st.Count)
	}
	f.seed(t, reading("b", 30*time.Minute, 8.0))
	if st := stats(); st.Count != 1 {
		t.Errorf("cached count = %d, want 1", st.Count)
	}

	f.h.InvalidateCache()
	if st := stats(); st.Count != 2 || st.Mean != 6.0 {
		t.Errorf("after invalidation = %+v", st)
	}

	// Profile edits change thresholds and must not serve stale ones.
	resp, _ := f.do(t, http.MethodPut, "/api/v1/profile", map[string]interface{}{
		"name": "test", "unit": "mmol/L", "target_low": 4.5, "target_high": 9.0,
	})
	checkStatus(t, resp, http.StatusOK)
	if st := stats(); st.Thresholds.Low != 4.5 {
		t.Errorf("thresholds after profile update = %+v", st.Thresholds)
	}
}

func TestSync(t *testing.T) {
	f := newFixture(t, nil)
	retry := testNow.Add(90 * time.Second)
	f.sync.set(func(m *mockSync) {
		m.refreshFn = func(context.Context) models.RefreshResult {
			r := models.Failed(string(libreview.KindRateLimited), "slow down", testNow)
			r.RetryAfter = &retry
			return r
		}
	})

	resp, env := f.do(t, http.MethodPost, "/api/v1/sync", nil)
	checkStatus(t, resp, http.StatusOK)
	var res models.RefreshResult
	decodeData(t, env, &res)
	if res.State != models.RefreshError || res.ErrorKind != string(libreview.KindRateLimited) {
		t.Errorf("result = %+v", res)
	}
	if got := resp.Header.Get("Retry-After"); got != "90" {
		t.Errorf("Retry-After = %q, want 90", got)
	}

	f.sync.set(func(m *mockSync) {
		m.state = models.SyncSyncing
		m.last = &res
	})
	_, env = f.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	var st SyncStatusResponse
	decodeData(t, env, &st)
	if st.State != models.SyncSyncing || st.LastResult == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestSync_RateLimited(t *testing.T) {
	mc := DefaultChiMiddlewareConfig()
	mc.SyncLimitRequests = 2
	f := newFixture(t, mc)

	for i := 0; i < 2; i++ {
		resp, _ := f.do(t, http.MethodPost, "/api/v1/sync", nil)
		checkStatus(t, resp, http.StatusOK)
	}
	resp, env := f.do(t, http.MethodPost, "/api/v1/sync", nil)
	checkStatus(t, resp, http.StatusTooManyRequests)
	if env.Error == nil || env.Error.Code != CodeRateLimited {
		t.Errorf("error = %+v", env.Error)
	}
	if got := f.sync.refreshes.Load(); got != 2 {
		t.Errorf("refreshes = %d, want 2", got)
	}
}

func TestDedupe(t *testing.T) {
	f := newFixture(t, nil)
	resp, env := f.do(t, http.MethodPost, "/api/v1/maintenance/dedupe", nil)
	checkStatus(t, resp, http.StatusOK)
	var res database.DedupeResult
	decodeData(t, env, &res)
	if res.Removed != 1 || res.Survivors != 3 {
		t.Errorf("dedupe = %+v", res)
	}

	f.sync.set(func(m *mockSync) { m.dedupeErr = errors.New("disk full") })
	resp, env = f.do(t, http.MethodPost, "/api/v1/maintenance/dedupe", nil)
	checkStatus(t, resp, http.StatusInternalServerError)
	if env.Error == nil || env.Error.Message == "disk full" {
		t.Errorf("internal error leaked: %+v", env.Error)
	}
}

func TestProfile(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.db.SetPatientID(context.Background(), "patient-1"); err != nil {
		t.Fatal(err)
	}

	resp, env := f.do(t, http.MethodGet, "/api/v1/profile", nil)
	checkStatus(t, resp, http.StatusOK)
	var p models.PatientProfile
	decodeData(t, env, &p)
	if p.Unit != models.UnitMmolL || p.TargetHigh != 10.0 {
		t.Errorf("profile = %+v", p)
	}

	resp, env = f.do(t, http.MethodPut, "/api/v1/profile", ProfileRequest{
		Name: "me", Unit: "mg/dL", TargetLow: 70, TargetHigh: 180,
	})
	checkStatus(t, resp, http.StatusOK)
	decodeData(t, env, &p)
	if p.Unit != models.UnitMgdL || p.TargetLow != 70 || p.PatientID != "patient-1" {
		t.Errorf("updated profile = %+v", p)
	}

	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"inverted targets", ProfileRequest{Unit: "mg/dL", TargetLow: 180, TargetHigh: 70}, CodeValidation},
		{"unknown unit", ProfileRequest{Unit: "g/L", TargetLow: 1, TargetHigh: 2}, CodeValidation},
		{"unknown field", map[string]interface{}{"unit": "mg/dL", "patient_id": "x"}, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := f.do(t, http.MethodPut, "/api/v1/profile", tt.body)
			checkStatus(t, resp, http.StatusBadRequest)
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestInsulin(t *testing.T) {
	f := newFixture(t, nil)

	resp, env := f.do(t, http.MethodPost, "/api/v1/insulin", CreateInsulinRequest{
		Timestamp: testNow.Add(-2 * time.Hour), Units: 4, Kind: "rapid", Note: "lunch",
	})
	checkStatus(t, resp, http.StatusCreated)
	var shot models.InsulinShot
	decodeData(t, env, &shot)
	if shot.ID == "" || shot.Kind != models.InsulinRapid {
		t.Fatalf("created = %+v", shot)
	}
	_, _ = f.do(t, http.MethodPost, "/api/v1/insulin", CreateInsulinRequest{
		Timestamp: testNow.Add(-26 * time.Hour), Units: 12, Kind: "long",
	})

	var shots []models.InsulinShot
	_, env = f.do(t, http.MethodGet, "/api/v1/insulin?day=2026-03-14", nil)
	decodeData(t, env, &shots)
	if len(shots) != 1 || shots[0].ID != shot.ID {
		t.Errorf("day listing = %+v", shots)
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/insulin?from=2026-03-13T00:00:00Z&to=2026-03-14T00:00:00Z", nil)
	decodeData(t, env, &shots)
	if len(shots) != 1 || shots[0].Kind != models.InsulinLong {
		t.Errorf("range listing = %+v", shots)
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/insulin?limit=1", nil)
	decodeData(t, env, &shots)
	if len(shots) != 1 || shots[0].ID != shot.ID {
		t.Errorf("history listing = %+v", shots)
	}

	for _, path := range []string{
		"/api/v1/insulin?day=14-03-2026",
		"/api/v1/insulin?from=2026-03-13T00:00:00Z",
		"/api/v1/insulin?from=2026-03-14T00:00:00Z&to=2026-03-13T00:00:00Z",
	} {
		resp, _ := f.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}

	resp, env = f.do(t, http.MethodPost, "/api/v1/insulin", CreateInsulinRequest{Timestamp: testNow, Units: 0, Kind: "basal"})
	checkStatus(t, resp, http.StatusBadRequest)
	if env.Error == nil || env.Error.Details == nil {
		t.Errorf("expected field details, got %+v", env.Error)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/insulin/"+shot.ID, nil)
	checkStatus(t, resp, http.StatusNoContent)
	resp, _ = f.do(t, http.MethodDelete, "/api/v1/insulin/"+shot.ID, nil)
	checkStatus(t, resp, http.StatusNotFound)
}

func TestCredentials(t *testing.T) {
	f := newFixture(t, nil)

	resp, env := f.do(t, http.MethodPut, "/api/v1/credentials", CredentialsRequest{Username: "someone@example.com", Password: "hunter2"})
	checkStatus(t, resp, http.StatusOK)
	var cr CredentialsResponse
	decodeData(t, env, &cr)
	if cr.Username == "someone@example.com" || cr.Username == "" {
		t.Errorf("username not masked: %q", cr.Username)
	}
	if got, err := f.creds.Get(context.Background()); err != nil || got.Password != "hunter2" {
		t.Errorf("stored = %+v, %v", got, err)
	}
	if got := f.tokens.invalidations.Load(); got != 1 {
		t.Errorf("invalidations = %d, want 1", got)
	}

	resp, _ = f.do(t, http.MethodPut, "/api/v1/credentials", CredentialsRequest{Username: "x"})
	checkStatus(t, resp, http.StatusBadRequest)

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/credentials", nil)
	checkStatus(t, resp, http.StatusNoContent)
	if _, err := f.creds.Get(context.Background()); !errors.Is(err, libreview.ErrNoCredentials) {
		t.Errorf("Get after clear = %v", err)
	}
	if got := f.tokens.invalidations.Load(); got != 2 {
		t.Errorf("invalidations = %d, want 2", got)
	}
}

func TestRouter_NotFoundAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	resp, env := f.do(t, http.MethodGet, "/api/v1/nope", nil)
	checkStatus(t, resp, http.StatusNotFound)
	if env.Status != "error" {
		t.Errorf("status = %q", env.Status)
	}

	resp, err := http.Get(f.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("glucobar_api_requests_total")) {
		t.Error("/metrics does not expose API request counter")
	}
}

func TestRouter_CORS(t *testing.T) {
	mc := DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = []string{"http://localhost:5173"}
	f := newFixture(t, mc)

	req, _ := http.NewRequest(http.MethodOptions, f.server.URL+"/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue = %q", got)
	}
}
