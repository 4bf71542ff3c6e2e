// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

// Package ratelimit provides per-endpoint-class token buckets for the
// Real-Debrid API. The service enforces separate budgets for general
// endpoints and for /torrents endpoints, so each class gets its own
// bucket and callers acquire a token before every request.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/robofuse/robofuse/internal/metrics"
)

// Class identifies an API rate-limit budget.
type Class string

const (
	// ClassGeneral covers every endpoint outside /torrents.
	ClassGeneral Class = "general"
	// ClassTorrents covers the /torrents endpoint family, which
	// Real-Debrid limits more aggressively.
	ClassTorrents Class = "torrents"
)

// Limiter gates API calls against per-class per-minute budgets. Buckets
// start full and refill continuously at budget/60 tokens per second, so a
// burst up to the full budget is allowed after an idle minute.
type Limiter struct {
	limiters map[Class]*rate.Limiter
}

// New builds a Limiter with the given per-minute budgets.
func New(generalPerMinute, torrentsPerMinute int) *Limiter {
	return &Limiter{
		limiters: map[Class]*rate.Limiter{
			ClassGeneral:  newBucket(generalPerMinute),
			ClassTorrents: newBucket(torrentsPerMinute),
		},
	}
}

func newBucket(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// Acquire blocks until a token is available for the class or the context is
// canceled. A canceled wait consumes no token.
func (l *Limiter) Acquire(ctx context.Context, class Class) error {
	lim, ok := l.limiters[class]
	if !ok {
		return fmt.Errorf("unknown rate limit class %q", class)
	}

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limit wait (%s): %w", class, ctxErr)
		}
		// Wait refuses up front when the required delay cannot fit the
		// remaining deadline, with an error that wraps nothing. Surface
		// the deadline error callers branch on instead.
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("rate limit wait (%s): %w", class, context.DeadlineExceeded)
		}
		return fmt.Errorf("rate limit wait (%s): %w", class, err)
	}
	metrics.RateLimitWaitDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	return nil
}
