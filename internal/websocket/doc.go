// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

/*
Package websocket pushes refresh results to connected front-ends.

A Hub owns the set of connected clients and fans every broadcast out to
them. Each Client runs a read pump (answering application-level pings and
detecting disconnects) and a write pump (serializing messages and sending
keepalive pings). Clients that cannot keep up are dropped rather than
blocking the hub.

Messages are JSON objects of the form

	{"type": "refresh", "data": {"state": "added", "added": 1, "at": "..."}}

The events package feeds the hub from the refresh topic; ServeWS upgrades
HTTP requests and optionally greets each new client with the latest
result so it does not wait a full poll interval for its first update.

Run the hub under supervision with RunWithContext; cancelling the context
closes every client.
*/
package websocket
