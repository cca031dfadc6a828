// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package events carries refresh results from the sync engine to push
consumers over an in-process Watermill bus.

The sync engine publishes every RefreshResult (including the neutral
InProgress value that precedes each run) on TopicRefresh. A Watermill router
subscribes to the topic and forwards each result to a Broadcaster, which in
production is the WebSocket hub:

	bus := events.NewBus(events.NewLoggerAdapter())
	router, err := events.NewRouter(bus, hub, events.DefaultRouterConfig())
	...
	go router.Run(ctx)
	engine := sync.NewEngine(..., sync.WithPublisher(bus))

The bus is backed by Watermill's gochannel Pub/Sub. Messages are not
persisted: a result published while nobody is subscribed is dropped, which
matches the "latest state wins" semantics of the consumers.
*/
package events
