// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeRefresh = "refresh"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. It does nothing until RunWithContext is called.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext processes registrations and broadcasts until ctx is
// canceled, then closes every client and returns ctx.Err().
//
// Lifecycle events are drained before broadcasts so a client registered
// before a broadcast always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		h.closeClient(client)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
}

// shutdown closes all clients and logs without an error field; context
// cancellation is the expected way to stop.
func (h *Hub) shutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// broadcastToClients delivers in client id order. Clients whose send buffer
// is full are removed.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		h.closeClient(client)
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		h.closeClient(client)
	}
	metrics.WSConnections.Set(0)
}

// closeClient must be called with mu held.
func (h *Hub) closeClient(client *Client) {
	delete(h.clients, client)
	if !client.closed {
		client.closed = true
		close(client.send)
	}
}

// sortedClients must be called with mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// BroadcastJSON queues a typed message for every client. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{Type: messageType, Data: data}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
