// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/glucobar/internal/libreview"
	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
)

// TokenLifetime is how long a token is reused after login. LibreView
// tickets last an hour; the margin keeps a request from racing expiry.
const TokenLifetime = 50 * time.Minute

// Authenticator performs the upstream login.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*libreview.Session, error)
}

// SessionInfo is a read-only view of the cached session.
type SessionInfo struct {
	UserID    string    `json:"user_id"`
	AccountID string    `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// ServerExpires is the expiry the server declared. Informational only;
	// the cache always lives TokenLifetime.
	ServerExpires time.Time `json:"server_expires,omitempty"`
}

type cachedSession struct {
	token string
	info  SessionInfo
}

// TokenManager caches the bearer token and logs in again once it is stale.
// Calls are serialized, so concurrent callers share one login.
type TokenManager struct {
	mu      sync.Mutex
	auth    Authenticator
	creds   CredentialStore
	now     func() time.Time
	session *cachedSession
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenClock replaces time.Now.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a TokenManager with no cached session.
func NewTokenManager(a Authenticator, creds CredentialStore, opts ...TokenOption) *TokenManager {
	m := &TokenManager{auth: a, creds: creds, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidToken returns the cached token while now is before its expiry,
// otherwise reads the stored credentials and logs in. Failures are
// returned as *libreview.Error; nothing is retried here.
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.session != nil && now.Before(m.session.info.ExpiresAt) {
		return m.session.token, nil
	}
	m.session = nil

	creds, err := m.creds.Get(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("no_credentials").Inc()
		return "", classify("credentials", err)
	}

	s, err := m.auth.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		err = classify("login", err)
		metrics.TokenRefreshes.WithLabelValues(string(libreview.KindOf(err))).Inc()
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("username", MaskUsername(creds.Username)).
			Msg("LibreView login failed")
		return "", err
	}

	expires := now.Add(TokenLifetime)
	m.session = &cachedSession{
		token: s.Token,
		info: SessionInfo{
			UserID:        s.UserID,
			AccountID:     s.AccountID,
			IssuedAt:      now,
			ExpiresAt:     expires,
			ServerExpires: s.Expires,
		},
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logging.Ctx(ctx).Info().Time("expires_at", expires).Msg("LibreView token refreshed")
	return s.Token, nil
}

// Invalidate drops the cached session so the next call logs in again.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// Session returns the cached session, if any.
func (m *TokenManager) Session() (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return SessionInfo{}, false
	}
	return m.session.info, true
}

// classify keeps already-classified errors and wraps the rest as unknown.
func classify(op string, err error) error {
	if libreview.KindOf(err) == libreview.KindUnknown {
		return &libreview.Error{Kind: libreview.KindUnknown, Op: op, Err: err}
	}
	return err
}
