// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package libreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

const connectionsPath = "/llu/connections"

// Connection is a patient shared with the logged-in account.
type Connection struct {
	PatientID string `json:"patientId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type connectionsEnvelope struct {
	Status int          `json:"status"`
	Data   []Connection `json:"data"`
}

// ListConnections returns the patients visible to the account, in server
// order. Any non-200 response is a network error.
func (c *Client) ListConnections(ctx context.Context, token string) ([]Connection, error) {
	if token == "" {
		return nil, newError(KindNoCredentials, endpointConnections, errors.New("no token"))
	}

	resp, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: endpointConnections,
		path:     connectionsPath,
		token:    token,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, c.statusError(KindNetwork, endpointConnections, resp)
	}

	var env connectionsEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, newError(KindNetwork, endpointConnections, fmt.Errorf("decode connections: %w", err))
	}

	out := make([]Connection, 0, len(env.Data))
	for _, conn := range env.Data {
		if conn.PatientID != "" {
			out = append(out, conn)
		}
	}
	return out, nil
}

// PatientIDs is a convenience wrapper returning only the ids.
func (c *Client) PatientIDs(ctx context.Context, token string) ([]string, error) {
	conns, err := c.ListConnections(ctx, token)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(conns))
	for i, conn := range conns {
		ids[i] = conn.PatientID
	}
	return ids, nil
}
