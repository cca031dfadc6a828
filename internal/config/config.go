// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

// Package config loads Glucobar configuration from defaults, an optional YAML
// file, an optional .env file and the process environment (in that order of
// increasing precedence).
package config

import "time"

// Config is the root configuration.
type Config struct {
	LibreView   LibreViewConfig   `koanf:"libreview"`
	Sync        SyncConfig        `koanf:"sync"`
	Glucose     GlucoseConfig     `koanf:"glucose"`
	Database    DatabaseConfig    `koanf:"database"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// LibreViewConfig configures the upstream LibreLinkUp client.
type LibreViewConfig struct {
	// BaseURL is the regional API host, e.g. https://api-eu.libreview.io.
	BaseURL string `koanf:"base_url" validate:"required"`

	// Product and Version are sent as the product/version header pair.
	Product string `koanf:"product" validate:"required"`
	Version string `koanf:"version" validate:"required"`

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// RateLimit is the sustained request rate (requests/second) and RateBurst
	// the bucket size used to pace upstream calls.
	RateLimit float64 `koanf:"rate_limit" validate:"gt=0"`
	RateBurst int     `koanf:"rate_burst" validate:"min=1"`

	// Username and Password, when both set, seed the credential store at
	// startup so a headless install needs no interactive login.
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// SyncConfig configures the refresh loop.
type SyncConfig struct {
	Enabled bool `koanf:"enabled"`

	// Interval between automatic refreshes.
	Interval time.Duration `koanf:"interval" validate:"min=1s"`

	// LookbackDays is the trailing window requested from upstream.
	LookbackDays int `koanf:"lookback_days" validate:"min=1,max=90"`

	// Backoff is the minimum wait after a RateLimited or ServiceUnavailable
	// failure before the next automatic attempt.
	Backoff time.Duration `koanf:"backoff" validate:"min=0s"`

	// DedupeThreshold triggers the proactive dedup repair on startup when the
	// stored reading count exceeds it.
	DedupeThreshold int `koanf:"dedupe_threshold" validate:"min=1"`

	// InitialSync runs one refresh as soon as the engine starts.
	InitialSync bool `koanf:"initial_sync"`
}

// GlucoseConfig holds display preferences used when no patient profile
// has been saved yet.
type GlucoseConfig struct {
	Unit       string  `koanf:"unit" validate:"oneof=mmol/L mg/dL"`
	TargetLow  float64 `koanf:"target_low" validate:"gt=0"`
	TargetHigh float64 `koanf:"target_high" validate:"gtfield=TargetLow"`
}

// DatabaseConfig configures the reading store backend.
type DatabaseConfig struct {
	// Driver is duckdb or sqlite.
	Driver    string `koanf:"driver" validate:"oneof=duckdb sqlite"`
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// CredentialsConfig configures the encrypted credential store.
type CredentialsConfig struct {
	// Path is the Badger directory. Empty means in-memory (credentials are
	// lost on restart).
	Path string `koanf:"path"`

	// Secret is the key material for AES-256-GCM encryption of stored values.
	Secret string `koanf:"secret"`
}

// ServerConfig configures the local query API.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"min=1s"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// LoggingConfig mirrors logging.Config for the koanf layer.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
