// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/glucobar/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvPathEnvVar overrides the .env file path.
const DotEnvPathEnvVar = "GLUCOBAR_DOTENV"

func defaultConfig() *Config {
	return &Config{
		LibreView: LibreViewConfig{
			BaseURL:   "https://api.libreview.io",
			Product:   "llu.android",
			Version:   "4.16.0",
			Timeout:   30 * time.Second,
			RateLimit: 2,
			RateBurst: 4,
		},
		Sync: SyncConfig{
			Enabled:         true,
			Interval:        5 * time.Minute,
			LookbackDays:    7,
			Backoff:         time.Minute,
			DedupeThreshold: 10000,
			InitialSync:     true,
		},
		Glucose: GlucoseConfig{
			Unit:       "mmol/L",
			TargetLow:  3.9,
			TargetHigh: 10.0,
		},
		Database: DatabaseConfig{
			Driver:    "duckdb",
			Path:      "data/glucobar.duckdb",
			MaxMemory: "256MB",
			Threads:   0,
		},
		Credentials: CredentialsConfig{
			Path: "",
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8742,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CacheTTL:        30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from (lowest to highest precedence):
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. an optional .env file (GLUCOBAR_DOTENV or ./.env); it never overrides
//     variables already present in the environment
//  4. environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(DotEnvPathEnvVar)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values into slices; YAML
// lists are left as-is.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"libreview_base_url":   "libreview.base_url",
	"libreview_product":    "libreview.product",
	"libreview_version":    "libreview.version",
	"libreview_timeout":    "libreview.timeout",
	"libreview_rate_limit": "libreview.rate_limit",
	"libreview_rate_burst": "libreview.rate_burst",
	"libreview_username":   "libreview.username",
	"libreview_password":   "libreview.password",

	"sync_enabled":          "sync.enabled",
	"sync_interval":         "sync.interval",
	"sync_lookback_days":    "sync.lookback_days",
	"sync_backoff":          "sync.backoff",
	"sync_dedupe_threshold": "sync.dedupe_threshold",
	"sync_initial":          "sync.initial_sync",

	"glucose_unit":        "glucose.unit",
	"glucose_target_low":  "glucose.target_low",
	"glucose_target_high": "glucose.target_high",

	"db_driver":     "database.driver",
	"db_path":       "database.path",
	"db_max_memory": "database.max_memory",
	"db_threads":    "database.threads",

	"credentials_path":   "credentials.path",
	"credentials_secret": "credentials.secret",

	"http_enabled":      "server.enabled",
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"cors_origins":      "server.cors_origins",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",
	"cache_ttl":         "server.cache_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
