// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/glucobar/internal/logging"
)

// Start runs the startup self-check and, when automatic sync is enabled,
// launches the poll loop. It returns once the loop is running.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	if e.running {
		e.lifecycleMu.Unlock()
		return fmt.Errorf("sync engine is already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.lifecycleMu.Unlock()

	logging.Info().
		Bool("enabled", e.cfg.Enabled).
		Dur("interval", e.cfg.Interval).
		Int("lookback_days", e.cfg.LookbackDays).
		Msg("Starting sync engine...")

	if err := e.SelfCheck(ctx); err != nil {
		logging.Warn().Err(err).Msg("startup self-check failed")
	}

	if !e.cfg.Enabled || e.cfg.Interval <= 0 {
		logging.Info().Msg("automatic sync disabled, manual refresh only")
		return nil
	}

	e.wg.Add(1)
	go e.pollLoop(ctx, e.stopChan)
	return nil
}

// Stop halts the poll loop and waits for an in-flight refresh to finish.
func (e *Engine) Stop() error {
	e.lifecycleMu.Lock()
	if !e.running {
		e.lifecycleMu.Unlock()
		return fmt.Errorf("sync engine is not running")
	}
	e.running = false
	close(e.stopChan)
	e.lifecycleMu.Unlock()

	e.wg.Wait()
	logging.Info().Msg("Sync engine stopped")
	return nil
}

// SelfCheck runs the dedup repair pass once per process and then computes
// the history view. Later calls only recompute the view.
func (e *Engine) SelfCheck(ctx context.Context) error {
	var repairErr error
	e.repairOnce.Do(func() {
		e.syncMu.Lock()
		defer e.syncMu.Unlock()

		count, err := e.store.Count(ctx)
		if err != nil {
			repairErr = fmt.Errorf("count readings: %w", err)
			return
		}
		if e.cfg.DedupeThreshold > 0 && count > e.cfg.DedupeThreshold {
			logging.Warn().
				Int("count", count).
				Int("threshold", e.cfg.DedupeThreshold).
				Msg("stored reading count implausibly large, running proactive dedup")
		}
		if _, err := e.dedupeLocked(ctx); err != nil {
			repairErr = err
		}
	})

	if err := e.recomputeHistory(ctx); err != nil {
		if repairErr != nil {
			return fmt.Errorf("%w; %w", repairErr, err)
		}
		return err
	}
	return repairErr
}

func (e *Engine) pollLoop(ctx context.Context, stop <-chan struct{}) {
	defer e.wg.Done()

	if e.cfg.InitialSync {
		e.tick(ctx)
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	e.refresh(ctx, true)
}
