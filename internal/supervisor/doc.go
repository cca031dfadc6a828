// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package supervisor runs Glucobar's long-lived components under a suture v4
tree so a crashed component restarts without taking the process down.

# Layout

	glucobar
	├── sync-layer
	│   └── SyncEngineService      (poll loop + startup self-check)
	├── messaging-layer
	│   ├── WebSocketHubService
	│   └── EventRouterService     (refresh bus -> hub)
	└── api-layer
	    └── HTTPServerService

Each layer counts failures on its own. A hub crash restarts the hub and the
event router's next delivery reaches the new hub; the HTTP server keeps
answering from the store the whole time.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
	    supervisor.TreeConfigFromConfig(cfg.Supervisor))
	tree.AddSyncService(services.NewSyncEngineService(engine))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewEventRouterService(newRouter))
	tree.AddAPIService(services.NewHTTPServerService(server, timeout))
	err = tree.Serve(ctx)

Supervisor events (restarts, backoff, stop timeouts) are logged through
sutureslog on the slog adapter of the zerolog logger.
*/
package supervisor
