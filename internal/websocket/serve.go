// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/glucobar/internal/logging"
)

// registerTimeout bounds the wait for a hub that is not running.
const registerTimeout = 5 * time.Second

// Greeting returns the message sent to a client right after it connects.
// ok=false sends nothing.
type Greeting func() (msg Message, ok bool)

// Handler upgrades HTTP requests and attaches the connection to a hub.
type Handler struct {
	hub            *Hub
	allowedOrigins []string
	greeting       Greeting
	upgrader       websocket.Upgrader
}

// NewHandler creates a handler. Requests without an Origin header are
// accepted since native local clients do not send one; browser requests
// must come from allowedOrigins ("*" allows any).
func NewHandler(hub *Hub, allowedOrigins []string, greeting Greeting) *Handler {
	h := &Handler{hub: hub, allowedOrigins: allowedOrigins, greeting: greeting}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeOrigin(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn)
	if h.greeting != nil {
		if msg, ok := h.greeting(); ok {
			client.Send(msg)
		}
	}
	select {
	case h.hub.Register <- client:
		client.Start()
	case <-time.After(registerTimeout):
		logging.Warn().Msg("websocket hub not accepting clients, closing connection")
		_ = conn.Close()
	}
}

// sanitizeOrigin strips control characters before logging.
func sanitizeOrigin(s string) string {
	if len(s) > 200 {
		s = s[:200]
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
