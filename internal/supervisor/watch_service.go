// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package supervisor

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"
)

// StartStopManager is the lifecycle the watcher exposes. The service
// wrapper adapts it to suture's Serve pattern.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
	Fatal() <-chan error
}

// WatchService runs the engine watcher under supervision. A transient
// crash restarts it with backoff; a fatal error, meaning the API token
// was rejected, terminates the whole tree since no restart can help.
type WatchService struct {
	manager StartStopManager
	name    string
}

// NewWatchService wraps a watcher.
func NewWatchService(manager StartStopManager) *WatchService {
	return &WatchService{
		manager: manager,
		name:    "watch-manager",
	}
}

// Serve implements suture.Service.
func (s *WatchService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("watcher start failed: %w", err)
	}

	select {
	case err := <-s.manager.Fatal():
		_ = s.manager.Stop()
		return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
	case <-ctx.Done():
	}

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("watcher stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
func (s *WatchService) String() string {
	return s.name
}
