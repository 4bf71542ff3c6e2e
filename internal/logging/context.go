// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey is a private type for context keys defined in this package.
type contextKey string

// runIDKey is the context key for reconciliation run IDs.
const runIDKey contextKey = "run_id"

// NewRunID creates a new unique run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID returns a context carrying the given run ID.
// Every log emitted through Ctx with this context includes a run_id field,
// which ties together the listing, resolving, writing and health phases of
// a single reconciliation pass.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID extracts the run ID from the context, or returns an empty string.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger enriched with fields carried by the context.
// If the context has no logging fields, the global logger is returned.
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if id := RunID(ctx); id != "" {
		logger = logger.With().Str("run_id", id).Logger()
	}
	return &logger
}
