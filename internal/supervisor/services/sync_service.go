// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package services

import (
	"context"
	"fmt"
)

// StartStopper is the sync engine's lifecycle: Start returns once the poll
// loop runs, Stop blocks until it and any in-flight refresh are done.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// SyncEngineService supervises the sync engine.
type SyncEngineService struct {
	engine StartStopper
}

// NewSyncEngineService wraps engine.
func NewSyncEngineService(engine StartStopper) *SyncEngineService {
	return &SyncEngineService{engine: engine}
}

// Serve implements suture.Service.
func (s *SyncEngineService) Serve(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("sync engine start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.engine.Stop(); err != nil {
		return fmt.Errorf("sync engine stop failed: %w", err)
	}
	return ctx.Err()
}

func (s *SyncEngineService) String() string {
	return "sync-engine"
}
