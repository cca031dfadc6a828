// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/glucobar/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// testClient is a connectionless client for hub-level tests.
func testClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, sendBuffer)}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.GetClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := startHub(t)
	a, b := testClient(hub), testClient(hub)
	hub.Register <- a
	hub.Register <- b
	waitForClients(t, hub, 2)

	hub.BroadcastJSON(MessageTypeRefresh, map[string]string{"state": "added"})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c.send)
		if msg.Type != MessageTypeRefresh {
			t.Errorf("type = %q, want %q", msg.Type, MessageTypeRefresh)
		}
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)
	c := testClient(hub)
	hub.Register <- c
	waitForClients(t, hub, 1)

	hub.Unregister <- c
	waitForClients(t, hub, 0)

	if _, ok := <-c.send; ok {
		t.Error("send channel still open")
	}
	if c.Send(Message{Type: MessageTypePong}) {
		t.Error("Send succeeded on a closed client")
	}
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := startHub(t)
	slow := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)}
	fast := testClient(hub)
	hub.Register <- slow
	hub.Register <- fast
	waitForClients(t, hub, 2)

	hub.BroadcastJSON(MessageTypeRefresh, nil)
	receive(t, fast.send)
	waitForClients(t, hub, 1)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	c := testClient(hub)
	hub.Register <- c
	waitForClients(t, hub, 1)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("clients after shutdown = %d", hub.GetClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Error("client send not closed on shutdown")
	}
}

func TestBroadcastJSON_NeverBlocks(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast)+10; i++ {
		hub.BroadcastJSON(MessageTypeRefresh, i)
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("queued = %d, want %d", len(hub.broadcast), cap(hub.broadcast))
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypeRefresh, Data: map[string]int{"added": 2}})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != `{"type":"refresh","data":{"added":2}}` {
		t.Errorf("MarshalMessage = %s", got)
	}
}

func dial(t *testing.T, server *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func TestHandler_GreetsAndStreams(t *testing.T) {
	hub := startHub(t)
	greeting := func() (Message, bool) {
		return Message{Type: MessageTypeRefresh, Data: map[string]string{"state": "up_to_date"}}, true
	}
	server := httptest.NewServer(NewHandler(hub, nil, greeting))
	defer server.Close()

	conn, _, err := dial(t, server, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if first.Type != MessageTypeRefresh {
		t.Errorf("greeting type = %q", first.Type)
	}

	waitForClients(t, hub, 1)
	hub.BroadcastJSON(MessageTypeRefresh, map[string]string{"state": "added"})
	var second Message
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	data, _ := second.Data.(map[string]interface{})
	if data["state"] != "added" {
		t.Errorf("broadcast data = %v", second.Data)
	}

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	var pong Message
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != MessageTypePong {
		t.Errorf("reply type = %q, want pong", pong.Type)
	}
}

func TestHandler_OriginCheck(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(NewHandler(hub, []string{"http://localhost:5173"}, nil))
	defer server.Close()

	tests := []struct {
		name   string
		origin string
		wantOK bool
	}{
		{"native client without origin", "", true},
		{"allowed browser origin", "http://localhost:5173", true},
		{"foreign origin", "https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			_, resp, err := dial(t, server, header)
			if tt.wantOK && err != nil {
				t.Fatalf("dial: %v", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("expected handshake failure")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("response = %v, want 403", resp)
				}
			}
		})
	}
}

func TestSanitizeOrigin(t *testing.T) {
	if got := sanitizeOrigin("http://a\r\nb"); got != "http://ab" {
		t.Errorf("sanitizeOrigin = %q", got)
	}
	if got := sanitizeOrigin(strings.Repeat("x", 300)); len(got) != 200 {
		t.Errorf("len = %d, want 200", len(got))
	}
}
