// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robofuse/robofuse/internal/config"
	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/realdebrid"
)

// Watcher runs the engine continuously: sync passes on the refresh
// cadence and health passes on their own independent cadence. The two
// loops never block each other; a slow health pass does not delay the
// next sync.
type Watcher struct {
	engine          *Engine
	refreshInterval time.Duration
	healthInterval  time.Duration
	healthEnabled   bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// fatal carries the first unrecoverable error, an auth rejection.
	fatal chan error
}

// NewWatcher creates a Watcher from watch-mode configuration.
func NewWatcher(engine *Engine, cfg *config.WatchConfig) *Watcher {
	return &Watcher{
		engine:          engine,
		refreshInterval: cfg.RefreshInterval,
		healthInterval:  cfg.HealthCheckInterval,
		healthEnabled:   cfg.HealthCheckInterval > 0,
		fatal:           make(chan error, 1),
	}
}

// Fatal returns a channel that receives the first unrecoverable error.
func (w *Watcher) Fatal() <-chan error {
	return w.fatal
}

// Start launches the watch loops. Returns an error if already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.syncLoop(loopCtx)

	if w.healthEnabled {
		w.wg.Add(1)
		go w.healthLoop(loopCtx)
	}

	logging.Info().
		Dur("refresh_interval", w.refreshInterval).
		Dur("health_interval", w.healthInterval).
		Bool("health_enabled", w.healthEnabled).
		Msg("Watch mode started")
	return nil
}

// Stop cancels the loops and waits for them to drain.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	logging.Info().Msg("Watch mode stopped")
	return nil
}

// syncLoop runs a pass immediately, then on every refresh tick.
func (w *Watcher) syncLoop(ctx context.Context) {
	defer w.wg.Done()

	w.runSync(ctx)

	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runSync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// healthLoop waits a full interval before the first check; the initial
// sync pass just wrote everything it would verify.
func (w *Watcher) healthLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.engine.HealthPass(ctx); err != nil {
				w.handleErr(err, "Health pass failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) runSync(ctx context.Context) {
	if _, err := w.engine.Run(ctx); err != nil {
		w.handleErr(err, "Synchronization pass failed")
	}
}

func (w *Watcher) handleErr(err error, msg string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if realdebrid.IsAuth(err) {
		logging.Error().Err(err).Msg("API token rejected, stopping")
		select {
		case w.fatal <- err:
		default:
		}
		return
	}
	// Transient failures leave the previous library state in place and
	// the next tick retries.
	logging.Warn().Err(err).Msg(msg)
}
