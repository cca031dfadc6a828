// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/glucobar/internal/logging"
)

// EventRouter is satisfied by *events.Router.
type EventRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// RouterFactory builds a fresh router. A watermill router cannot run again
// once closed, so every restart gets a new one.
type RouterFactory func() (EventRouter, error)

// EventRouterService supervises the bus-to-hub router.
type EventRouterService struct {
	newRouter RouterFactory
}

// NewEventRouterService wraps newRouter.
func NewEventRouterService(newRouter RouterFactory) *EventRouterService {
	return &EventRouterService{newRouter: newRouter}
}

// Serve implements suture.Service.
func (e *EventRouterService) Serve(ctx context.Context) error {
	router, err := e.newRouter()
	if err != nil {
		return fmt.Errorf("event router build failed: %w", err)
	}
	defer func() {
		if cerr := router.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("event router close failed")
		}
	}()

	if err := router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event router failed: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// Run returned without a shutdown request: let suture restart us.
	return errors.New("event router stopped unexpectedly")
}

func (e *EventRouterService) String() string {
	return "event-router"
}
