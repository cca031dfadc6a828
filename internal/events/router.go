// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
)

// MessageTypeRefresh is the WebSocket message type for refresh results.
const MessageTypeRefresh = "refresh"

// Broadcaster pushes a typed JSON message to every connected consumer.
// websocket.Hub implements it.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Invalidator drops state derived from stored readings.
type Invalidator interface {
	InvalidateCache()
}

// RouterConfig holds router tuning.
type RouterConfig struct {
	// CloseTimeout bounds how long Close waits for in-flight handlers.
	CloseTimeout time.Duration

	// Invalidator, when set, is notified of every refresh that added
	// readings.
	Invalidator Invalidator
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{CloseTimeout: 10 * time.Second}
}

// Router forwards refresh results from the bus to a Broadcaster.
type Router struct {
	router *message.Router
	logger watermill.LoggerAdapter
}

// NewRouter wires the websocket-broadcaster handler onto TopicRefresh.
func NewRouter(bus *Bus, broadcaster Broadcaster, cfg RouterConfig) (*Router, error) {
	if bus == nil || broadcaster == nil {
		return nil, fmt.Errorf("events router requires a bus and a broadcaster")
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultRouterConfig().CloseTimeout
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, bus.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// Recoverer: a panicking broadcaster must not take the router down
	wmRouter.AddMiddleware(middleware.Recoverer)

	wmRouter.AddConsumerHandler(
		"websocket-broadcaster",
		TopicRefresh,
		bus.Subscriber(),
		broadcastHandler(broadcaster),
	)
	if cfg.Invalidator != nil {
		wmRouter.AddConsumerHandler(
			"cache-invalidator",
			TopicRefresh,
			bus.Subscriber(),
			invalidateHandler(cfg.Invalidator),
		)
	}

	return &Router{router: wmRouter, logger: bus.logger}, nil
}

// broadcastHandler decodes refresh messages and hands them to b. Malformed
// payloads are logged and acknowledged so they are not redelivered.
func broadcastHandler(b Broadcaster) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		result, err := DecodeRefresh(msg)
		if err != nil {
			logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable refresh message")
			return nil
		}
		b.BroadcastJSON(MessageTypeRefresh, result)
		logging.Debug().
			Str("state", string(result.State)).
			Str("correlation_id", middleware.MessageCorrelationID(msg)).
			Msg("refresh result broadcast")
		return nil
	}
}

func invalidateHandler(inv Invalidator) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		result, err := DecodeRefresh(msg)
		if err != nil {
			return nil
		}
		if result.State == models.RefreshAdded {
			inv.InvalidateCache()
		}
		return nil
	}
}

// Run blocks until ctx is canceled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that is closed once handlers are subscribed.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close stops the router and waits for in-flight handlers.
func (r *Router) Close() error {
	return r.router.Close()
}
