// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the sync engine:
// - Real-Debrid API call volume, latency and rate-limiter waits
// - Cache efficiency (the primary API-call-reduction mechanism)
// - Library writer activity
// - Health check findings and repairs

var (
	// API Client Metrics

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofuse_api_requests_total",
			Help: "Total Real-Debrid API requests by endpoint class and outcome",
		},
		[]string{"class", "operation", "outcome"}, // outcome: "success", "transient", "auth", "not_found", "invalid_state"
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robofuse_api_request_duration_seconds",
			Help:    "Duration of Real-Debrid API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class", "operation"},
	)

	RateLimitWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robofuse_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate-limiter slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"class"},
	)

	// Cache Metrics

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robofuse_cache_hits_total",
			Help: "Cache lookups served without a fetch",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robofuse_cache_misses_total",
			Help: "Cache lookups that required a fetch (absent or expired)",
		},
	)

	CacheFetchesShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robofuse_cache_fetches_shared_total",
			Help: "GetOrFetch callers that piggybacked on an in-flight fetch",
		},
	)

	// Library Writer Metrics

	LibraryFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofuse_library_files_total",
			Help: "Pointer file operations by kind",
		},
		[]string{"op"}, // "created", "updated", "removed", "skipped"
	)

	// Engine Metrics

	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofuse_sync_passes_total",
			Help: "Completed reconciliation passes by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "robofuse_sync_pass_duration_seconds",
			Help:    "Duration of a full reconciliation pass",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ResolutionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "robofuse_resolution_failures_total",
			Help: "Per-link resolution failures recorded in run summaries",
		},
	)

	// Health Checker Metrics

	HealthIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofuse_health_issues_total",
			Help: "Health issues found by kind",
		},
		[]string{"kind"}, // "expired_link", "dead_link", "missing_file", "stale_cache_entry"
	)

	HealthRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofuse_health_repairs_total",
			Help: "Repair attempts by outcome",
		},
		[]string{"outcome"}, // "repaired", "failed"
	)

	// Circuit Breaker Metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "robofuse_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robofuse_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)
