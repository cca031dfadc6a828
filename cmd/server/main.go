// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/glucobar/internal/api"
	"github.com/tomtom215/glucobar/internal/auth"
	"github.com/tomtom215/glucobar/internal/cache"
	"github.com/tomtom215/glucobar/internal/config"
	"github.com/tomtom215/glucobar/internal/database"
	"github.com/tomtom215/glucobar/internal/events"
	"github.com/tomtom215/glucobar/internal/libreview"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
	"github.com/tomtom215/glucobar/internal/supervisor"
	"github.com/tomtom215/glucobar/internal/supervisor/services"
	syncengine "github.com/tomtom215/glucobar/internal/sync"
	ws "github.com/tomtom215/glucobar/internal/websocket"
)

//nolint:gocyclo // sequential wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("version", api.Version).
		Str("db_driver", cfg.Database.Driver).
		Str("db_path", cfg.Database.Path).
		Str("libreview", cfg.LibreView.BaseURL).
		Msg("Starting Glucobar")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	db.SetProfileDefaults(models.PatientProfile{
		Unit:       models.Unit(cfg.Glucose.Unit),
		TargetLow:  cfg.Glucose.TargetLow,
		TargetHigh: cfg.Glucose.TargetHigh,
	})

	creds, err := auth.OpenCredentialStore(&cfg.Credentials)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open credential store")
	}
	defer func() {
		if err := creds.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing credential store")
		}
	}()
	seedCredentials(creds, cfg.LibreView)

	client := libreview.New(&cfg.LibreView)
	tokens := auth.NewTokenManager(client, creds)

	bus := events.NewBus(events.NewLoggerAdapter())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	hub := ws.NewHub()

	engine := syncengine.NewEngine(db, tokens, client, cfg.Sync,
		syncengine.WithPublisher(bus),
		syncengine.WithCredentialClearer(creds),
	)

	wsHandler := ws.NewHandler(hub, cfg.Server.CORSOrigins, func() (ws.Message, bool) {
		last, ok := engine.LastResult()
		if !ok {
			return ws.Message{}, false
		}
		return ws.Message{Type: ws.MessageTypeRefresh, Data: last}, true
	})

	handler := api.NewHandler(db, engine, creds, tokens,
		api.WithWebSocket(wsHandler),
		api.WithResponseCache(cache.New[any](cfg.Server.CacheTTL)),
	)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, api.MiddlewareConfigFromServer(cfg.Server)),
		ReadHeaderTimeout: 10 * time.Second,
		// Manual refreshes can take up to the sync run timeout.
		WriteTimeout: syncengine.DefaultRunTimeout + cfg.Server.Timeout,
		IdleTimeout:  2 * time.Minute,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFromConfig(cfg.Supervisor))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddSyncService(services.NewSyncEngineService(engine))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewEventRouterService(func() (services.EventRouter, error) {
		rc := events.DefaultRouterConfig()
		rc.Invalidator = handler
		r, err := events.NewRouter(bus, hub, rc)
		if err != nil {
			return nil, err
		}
		return r, nil
	}))
	if cfg.Server.Enabled {
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("HTTP API enabled")
	} else {
		logging.Info().Msg("HTTP API disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The channel yields exactly one value and is never closed.
	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Glucobar stopped")
}

// seedCredentials stores configured credentials when none are saved yet.
// Credentials set through the API are never overwritten.
func seedCredentials(store auth.CredentialStore, cfg config.LibreViewConfig) {
	if cfg.Username == "" || cfg.Password == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.Get(ctx)
	switch {
	case err == nil:
		logging.Debug().Msg("stored credentials present, ignoring configured ones")
	case errors.Is(err, libreview.ErrNoCredentials):
		if err := store.Set(ctx, auth.Credentials{Username: cfg.Username, Password: cfg.Password}); err != nil {
			logging.Error().Err(err).Msg("Failed to seed credentials")
			return
		}
		logging.Info().Str("username", auth.MaskUsername(cfg.Username)).Msg("Seeded credentials from configuration")
	default:
		logging.Warn().Err(err).Msg("Could not read credential store")
	}
}
