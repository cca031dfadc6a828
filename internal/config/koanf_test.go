// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate moves the test into an empty directory so no stray config.yaml or
// .env from the repository is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv(DotEnvPathEnvVar, "")
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("Sync.Interval = %v, want 5m", cfg.Sync.Interval)
	}
	if cfg.Sync.LookbackDays != 7 {
		t.Errorf("Sync.LookbackDays = %d, want 7", cfg.Sync.LookbackDays)
	}
	if cfg.Sync.Backoff != time.Minute {
		t.Errorf("Sync.Backoff = %v, want 1m", cfg.Sync.Backoff)
	}
	if cfg.Sync.DedupeThreshold != 10000 {
		t.Errorf("Sync.DedupeThreshold = %d, want 10000", cfg.Sync.DedupeThreshold)
	}
	if cfg.Server.CacheTTL != 30*time.Second {
		t.Errorf("Server.CacheTTL = %v, want 30s", cfg.Server.CacheTTL)
	}
	if cfg.Database.Driver != "duckdb" {
		t.Errorf("Database.Driver = %q, want duckdb", cfg.Database.Driver)
	}
	if cfg.LibreView.Product != "llu.android" {
		t.Errorf("LibreView.Product = %q", cfg.LibreView.Product)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:8742" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
}

func TestLoad_YAMLFileThenEnvOverride(t *testing.T) {
	dir := isolate(t)

	yamlPath := filepath.Join(dir, "custom.yaml")
	content := `
sync:
  interval: 2m
  lookback_days: 3
database:
  driver: sqlite
  path: /tmp/readings.db
glucose:
  unit: mg/dL
  target_low: 70
  target_high: 180
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, yamlPath)
	t.Setenv("SYNC_LOOKBACK_DAYS", "5")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, app://glucobar")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Interval != 2*time.Minute {
		t.Errorf("Sync.Interval = %v, want 2m from file", cfg.Sync.Interval)
	}
	if cfg.Sync.LookbackDays != 5 {
		t.Errorf("Sync.LookbackDays = %d, want 5 from env", cfg.Sync.LookbackDays)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Glucose.Unit != "mg/dL" {
		t.Errorf("Glucose.Unit = %q", cfg.Glucose.Unit)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "app://glucobar" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("LOG_LEVEL=debug\nHTTP_PORT=9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_PORT", "9100")
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from .env", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 (process env wins over .env)", cfg.Server.Port)
	}
}

func TestLoad_ExplicitDotEnvMissing(t *testing.T) {
	dir := isolate(t)
	t.Setenv(DotEnvPathEnvVar, filepath.Join(dir, "missing.env"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for explicit missing env file")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"SYNC_INTERVAL":      "sync.interval",
		"DB_DRIVER":          "database.driver",
		"LIBREVIEW_BASE_URL": "libreview.base_url",
		"CACHE_TTL":          "server.cache_ttl",
		"PATH":               "",
		"HOME":               "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad base url path", func(c *Config) { c.LibreView.BaseURL = "https://api.libreview.io/llu" }, "LIBREVIEW_BASE_URL"},
		{"bad scheme", func(c *Config) { c.LibreView.BaseURL = "ftp://api.libreview.io" }, "scheme"},
		{"username without password", func(c *Config) { c.LibreView.Username = "me@example.com" }, "set together"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "Driver"},
		{"targets inverted", func(c *Config) { c.Glucose.TargetHigh = 2 }, "TargetHigh"},
		{"short secret", func(c *Config) { c.Credentials.Path = "/tmp/creds" }, "CREDENTIALS_SECRET"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"interval too small", func(c *Config) { c.Sync.Interval = time.Millisecond }, "Interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
