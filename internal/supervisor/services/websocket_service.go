// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package services

import "context"

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService supervises the push hub. On shutdown the hub closes
// every client before returning.
type WebSocketHubService struct {
	hub ContextHub
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

func (w *WebSocketHubService) String() string {
	return "websocket-hub"
}
