// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

// Package main is the entry point for the robofuse synchronizer.
//
// Robofuse reconciles a Real-Debrid account with a local .strm library:
// it lists the account's finished torrents, resolves every restricted
// link to a direct URL, and writes one pointer file per remote file so
// media servers can stream straight from the debrid CDN without local
// storage.
//
// # Modes
//
// One-shot (default): run a single synchronization pass and exit.
// Useful from cron or as a manual refresh.
//
// Watch mode (ROBOFUSE_WATCH_ENABLED=true): run under a supervisor tree with a
// sync pass on every refresh interval and a health pass on its own
// cadence, repairing expired or broken pointers as it goes.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (ROBOFUSE_ prefix)
//   - Config file (config.yaml, or ROBOFUSE_CONFIG)
//   - Built-in defaults
//
// Minimal setup:
//
//	export ROBOFUSE_REALDEBRID_TOKEN=your-api-token
//	export ROBOFUSE_LIBRARY_OUTPUT_DIR=/srv/library
//	export ROBOFUSE_CACHE_DIR=/var/lib/robofuse/cache
//	./robofuse
//
// Continuous watch mode with metrics:
//
//	export ROBOFUSE_WATCH_ENABLED=true
//	export ROBOFUSE_OPS_ENABLED=true
//	./robofuse
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: in-flight passes are
// canceled, the cache store is flushed, and the ops server drains.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/robofuse/robofuse/internal/cache"
	"github.com/robofuse/robofuse/internal/config"
	"github.com/robofuse/robofuse/internal/engine"
	"github.com/robofuse/robofuse/internal/health"
	"github.com/robofuse/robofuse/internal/library"
	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
	"github.com/robofuse/robofuse/internal/ratelimit"
	"github.com/robofuse/robofuse/internal/realdebrid"
	"github.com/robofuse/robofuse/internal/resolver"
	"github.com/robofuse/robofuse/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger for config errors, config not yet available
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("output_dir", cfg.Library.OutputDir).
		Str("cache_dir", cfg.Cache.Dir).
		Bool("watch", cfg.Watch.Enabled).
		Msg("Configuration loaded")

	store, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache store")
		}
	}()

	limiter := ratelimit.New(cfg.RealDebrid.GeneralRateLimit, cfg.RealDebrid.TorrentsRateLimit)
	client := realdebrid.NewClient(&cfg.RealDebrid, limiter)
	api := realdebrid.NewCircuitBreakerClient(client)

	res := resolver.New(api, store, cfg.Cache.LinkTTL)
	writer := library.NewWriter(cfg.Library.OutputDir)
	checker := health.NewChecker(res, writer, cfg.Watch.RepairEnabled)
	eng := engine.New(api, store, res, writer, checker, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Watch.Enabled {
		runOnce(ctx, eng, cfg, store)
		return
	}

	runWatch(ctx, eng, cfg)
}

// runOnce executes a single sync pass, plus a health pass unless health
// checking is disabled, then exits.
func runOnce(ctx context.Context, eng *engine.Engine, cfg *config.Config, store *cache.Store) {
	summary, err := eng.Run(ctx)
	if err != nil {
		// Close before exiting; logging.Fatal skips deferred calls.
		if closeErr := store.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Error closing cache store")
		}
		logging.Fatal().Err(err).Msg("Synchronization pass failed")
	}

	if cfg.Watch.HealthCheckInterval > 0 {
		issues, err := eng.HealthPass(ctx)
		if err != nil {
			logging.Warn().Err(err).Msg("Health pass failed")
		}
		summary.IssuesFound = len(issues)
		for _, issue := range issues {
			if issue.Repaired {
				summary.IssuesRepaired++
			}
		}
	}

	if summary.Failed > 0 {
		logging.Warn().Int("failed", summary.Failed).Msg("Pass completed with per-item failures")
	}
}

// runWatch runs the supervisor tree until shutdown or a fatal error.
func runWatch(ctx context.Context, eng *engine.Engine, cfg *config.Config) {
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	watcher := engine.NewWatcher(eng, &cfg.Watch)
	tree.AddSyncService(supervisor.NewWatchService(watcher))

	if cfg.Ops.Enabled {
		tree.AddOpsService(metrics.NewServer(cfg.Ops.ListenAddr))
	}

	err := tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree terminated")
		os.Exit(1)
	}

	logging.Info().Msg("Shutdown complete")
}
