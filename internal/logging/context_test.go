// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewRunIDIsUnique(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == b {
		t.Errorf("expected distinct run IDs, got %q twice", a)
	}
	if a == "" {
		t.Error("expected non-empty run ID")
	}
}

func TestWithRunIDRoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-123")
	if got := RunID(ctx); got != "run-123" {
		t.Errorf("RunID = %q, want run-123", got)
	}
	if got := RunID(context.Background()); got != "" {
		t.Errorf("RunID on empty context = %q, want empty", got)
	}
}

func TestCtxIncludesRunID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	ctx := WithRunID(context.Background(), "run-abc")
	Ctx(ctx).Info().Msg("scoped")

	if !strings.Contains(buf.String(), `"run_id":"run-abc"`) {
		t.Errorf("expected run_id field in output, got %q", buf.String())
	}
}
