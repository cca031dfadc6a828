// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/glucobar/internal/config"
)

// TreeConfig tunes restart behaviour. Zero fields take suture's defaults.
type TreeConfig struct {
	// FailureThreshold is the failure count that triggers backoff.
	FailureThreshold float64

	// FailureDecay is the failure half-life, in seconds.
	FailureDecay float64

	FailureBackoff  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// TreeConfigFromConfig maps the supervisor config section.
func TreeConfigFromConfig(c config.SupervisorConfig) TreeConfig {
	return TreeConfig{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		ShutdownTimeout:  c.ShutdownTimeout,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// SupervisorTree is the root supervisor with one child per layer.
type SupervisorTree struct {
	root      *suture.Supervisor
	sync      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
	config    TreeConfig
}

// NewSupervisorTree builds the tree; services are added before Serve.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver.
	eventHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	spec := func(hook suture.EventHook) suture.Spec {
		return suture.Spec{
			EventHook:        hook,
			FailureThreshold: config.FailureThreshold,
			FailureDecay:     config.FailureDecay,
			FailureBackoff:   config.FailureBackoff,
			Timeout:          config.ShutdownTimeout,
		}
	}

	// Children inherit the root's hook when added.
	root := suture.New("glucobar", spec(eventHook))
	syncLayer := suture.New("sync-layer", spec(nil))
	messaging := suture.New("messaging-layer", spec(nil))
	api := suture.New("api-layer", spec(nil))

	root.Add(syncLayer)
	root.Add(messaging)
	root.Add(api)

	return &SupervisorTree{
		root:      root,
		sync:      syncLayer,
		messaging: messaging,
		api:       api,
		config:    config,
	}, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddSyncService adds a service to the sync layer.
func (t *SupervisorTree) AddSyncService(svc suture.Service) suture.ServiceToken {
	return t.sync.Add(svc)
}

// AddMessagingService adds a service to the messaging layer (hub, event
// router).
func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPIService adds a service to the API layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine; the channel yields its
// exit error.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
