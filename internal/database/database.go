// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
)

// Supported drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// MemoryPath opens a throwaway in-memory database with either driver.
const MemoryPath = ":memory:"

// defaultQueryTimeout bounds operations whose context has no deadline.
const defaultQueryTimeout = 30 * time.Second

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQL connection and provides data access methods.
type DB struct {
	conn   *sql.DB
	cfg    *config.DatabaseConfig
	driver string

	// mu makes the store single-writer; see the package doc.
	mu sync.RWMutex

	profileDefaults models.PatientProfile
}

// New opens the configured database and applies pending migrations.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverDuckDB
	}

	if cfg.Path != MemoryPath {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	dsn, err := dataSourceName(driver, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:   conn,
		cfg:    cfg,
		driver: driver,
		profileDefaults: models.PatientProfile{
			Unit:       models.UnitMmolL,
			TargetLow:  3.9,
			TargetHigh: 10.0,
		},
	}
	db.configureConnectionPool()

	if err := db.runMigrations(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("driver", driver).
		Str("path", cfg.Path).
		Msg("Database opened")
	return db, nil
}

func dataSourceName(driver string, cfg *config.DatabaseConfig) (string, error) {
	switch driver {
	case DriverDuckDB:
		path := cfg.Path
		if path == MemoryPath {
			path = ""
		}
		threads := cfg.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		dsn := fmt.Sprintf("%s?access_mode=read_write&threads=%d", path, threads)
		if cfg.MaxMemory != "" {
			dsn += "&max_memory=" + cfg.MaxMemory
		}
		return dsn, nil
	case DriverSQLite:
		if cfg.Path == MemoryPath {
			return "file::memory:?_pragma=foreign_keys(1)", nil
		}
		return "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// configureConnectionPool limits SQLite to one connection: an in-memory
// SQLite database exists per connection, and a single writer is all the
// store allows anyway.
func (db *DB) configureConnectionPool() {
	if db.driver == DriverSQLite {
		db.conn.SetMaxOpenConns(1)
		db.conn.SetMaxIdleConns(1)
		db.conn.SetConnMaxLifetime(0)
		return
	}
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// SetProfileDefaults sets the values used when the profile row is first
// created.
func (db *DB) SetProfileDefaults(p models.PatientProfile) {
	db.mu.Lock()
	db.profileDefaults = p
	db.mu.Unlock()
}

// Driver returns the active driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close closes the database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.driver == DriverDuckDB && db.cfg.Path != MemoryPath {
		if _, err := db.conn.Exec("CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Checkpoint before close failed")
		}
	}
	return db.conn.Close()
}

// ensureContext applies the default timeout when ctx has no deadline.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultQueryTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}

// closeQuietly closes a resource in an error path where Close errors are
// not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollback is deferred after BeginTx; it is a no-op once committed.
func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Transaction rollback failed")
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
