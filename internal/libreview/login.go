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
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/metrics"
)

const (
	loginPath = "/llu/auth/login"

	// Envelope status codes returned with HTTP 200.
	statusOK              = 0
	statusBadCredentials  = 2
	statusActionRequired  = 4
	maxRegionRedirects    = 1
	endpointLogin         = "login"
	endpointConnections   = "connections"
	endpointGraph         = "graph"
	endpointLoginRedirect = "login_redirect"
)

var regionPattern = regexp.MustCompile(`^[a-z0-9]{2,8}$`)

// Session is the outcome of a successful login.
type Session struct {
	Token string

	// UserID is the LibreView account id; AccountID is its SHA-256 digest.
	UserID    string
	AccountID string

	// Expires is the server-announced expiry, zero when not sent.
	Expires time.Time
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginEnvelope struct {
	Status int `json:"status"`
	Data   *struct {
		Redirect bool   `json:"redirect"`
		Region   string `json:"region"`
		User     struct {
			ID string `json:"id"`
		} `json:"user"`
		AuthTicket struct {
			Token    string `json:"token"`
			Expires  int64  `json:"expires"`
			Duration int64  `json:"duration"`
		} `json:"authTicket"`
		Step *struct {
			Type string `json:"type"`
		} `json:"step"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Login exchanges credentials for a bearer token, following one regional
// redirect if the account lives on another host.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, newError(KindNoCredentials, endpointLogin, errors.New("username and password are required"))
	}

	body := loginRequest{Email: username, Password: password}
	for redirects := 0; ; redirects++ {
		env, err := c.postLogin(ctx, body)
		if err != nil {
			return nil, err
		}

		if env.Data != nil && env.Data.Redirect {
			if redirects >= maxRegionRedirects {
				return nil, newError(KindAuthenticationFailed, endpointLogin, errors.New("too many region redirects"))
			}
			if !regionPattern.MatchString(env.Data.Region) {
				return nil, newError(KindAuthenticationFailed, endpointLogin, fmt.Errorf("invalid redirect region %q", env.Data.Region))
			}
			target := c.regionURL(env.Data.Region)
			logging.Ctx(ctx).Info().Str("region", env.Data.Region).Str("base_url", target).Msg("Following LibreView region redirect")
			metrics.UpstreamRequests.WithLabelValues(endpointLoginRedirect, env.Data.Region).Inc()
			c.setBaseURL(target)
			continue
		}

		session, err := c.sessionFrom(env)
		if err != nil {
			return nil, err
		}
		c.SetUserID(session.UserID)
		return session, nil
	}
}

func (c *Client) postLogin(ctx context.Context, body loginRequest) (*loginEnvelope, error) {
	resp, err := c.do(ctx, request{
		method:   http.MethodPost,
		endpoint: endpointLogin,
		path:     loginPath,
		body:     body,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusOK:
	case resp.status == http.StatusUnauthorized, resp.status == http.StatusForbidden:
		return nil, c.statusError(KindInvalidCredentials, endpointLogin, resp)
	case resp.status == http.StatusTooManyRequests:
		return nil, c.statusError(KindRateLimited, endpointLogin, resp)
	case resp.status >= 500:
		return nil, c.statusError(KindServiceUnavailable, endpointLogin, resp)
	default:
		return nil, c.statusError(KindUnknown, endpointLogin, resp)
	}

	var env loginEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, newError(KindAuthenticationFailed, endpointLogin, fmt.Errorf("decode login response: %w", err))
	}
	return &env, nil
}

func (c *Client) sessionFrom(env *loginEnvelope) (*Session, error) {
	switch env.Status {
	case statusOK:
	case statusBadCredentials:
		return nil, newError(KindInvalidCredentials, endpointLogin, errors.New(envelopeMessage(env, "credentials rejected")))
	case statusActionRequired:
		step := "unknown"
		if env.Data != nil && env.Data.Step != nil {
			step = env.Data.Step.Type
		}
		return nil, newError(KindAuthenticationFailed, endpointLogin, fmt.Errorf("account action required in the LibreLinkUp app (%s)", step))
	default:
		return nil, newError(KindAuthenticationFailed, endpointLogin, fmt.Errorf("status %d: %s", env.Status, envelopeMessage(env, "login refused")))
	}

	if env.Data == nil || env.Data.AuthTicket.Token == "" {
		return nil, newError(KindAuthenticationFailed, endpointLogin, errors.New("response carried no auth ticket"))
	}

	ticket := env.Data.AuthTicket
	s := &Session{Token: ticket.Token, UserID: env.Data.User.ID}
	if s.UserID == "" {
		s.UserID = userIDFromToken(ticket.Token)
	}
	if s.UserID != "" {
		s.AccountID = AccountID(s.UserID)
	}

	switch {
	case ticket.Expires > 0:
		s.Expires = time.Unix(ticket.Expires, 0)
	case ticket.Duration > 0:
		s.Expires = c.now().Add(time.Duration(ticket.Duration) * time.Millisecond)
	}
	return s, nil
}

// userIDFromToken reads the "id" claim without verifying the signature;
// the token is only ever presented back to the server that issued it.
func userIDFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if id, ok := claims["id"].(string); ok {
		return id
	}
	if sub, err := claims.GetSubject(); err == nil {
		return sub
	}
	return ""
}

func envelopeMessage(env *loginEnvelope, fallback string) string {
	if env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return fallback
}
