// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

/*
Package health verifies that the library's pointers still lead somewhere.

A pointer can rot four ways: the file vanished from disk, its cache
entry is gone, the cached resolution passed its expiry, or the direct
URL itself no longer answers. The checker classifies each case and,
when repair is enabled, fixes the first three by re-resolving and
rewriting the pointer. A dead direct URL whose re-resolution also fails
is reported and left alone; reinsertion of the torrent is the engine's
call, not the checker's.
*/
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robofuse/robofuse/internal/dedup"
	"github.com/robofuse/robofuse/internal/library"
	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
	"github.com/robofuse/robofuse/internal/resolver"
)

// IssueKind classifies a pointer problem.
type IssueKind string

const (
	MissingFile     IssueKind = "missing_file"
	StaleCacheEntry IssueKind = "stale_cache_entry"
	ExpiredLink     IssueKind = "expired_link"
	DeadLink        IssueKind = "dead_link"
)

// Issue is one problem found during a health pass.
type Issue struct {
	Kind     IssueKind
	Path     string
	Link     string
	Repaired bool
	Detail   string
}

// Item is one pointer the checker should verify: the on-disk path and
// the restricted link it was resolved from.
type Item struct {
	Path string
	Link string
}

// Checker runs health passes over library pointers.
type Checker struct {
	resolver *resolver.Resolver
	writer   *library.Writer
	client   *http.Client
	repair   bool
	probeURL bool
	nowFn    func() time.Time
}

// NewChecker creates a Checker. When repair is false, issues are
// reported but nothing is touched.
func NewChecker(res *resolver.Resolver, writer *library.Writer, repair bool) *Checker {
	return &Checker{
		resolver: res,
		writer:   writer,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		repair:   repair,
		probeURL: true,
		nowFn:    time.Now,
	}
}

// Check verifies every item and returns the issues found. Repairs
// happen inline when enabled. Per-item failures never abort the pass.
func (c *Checker) Check(ctx context.Context, items []Item, ix *dedup.Index) []Issue {
	var issues []Issue
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if issue := c.checkItem(ctx, item, ix); issue != nil {
			metrics.HealthIssues.WithLabelValues(string(issue.Kind)).Inc()
			issues = append(issues, *issue)
		}
	}
	return issues
}

func (c *Checker) checkItem(ctx context.Context, item Item, ix *dedup.Index) *Issue {
	now := c.nowFn()

	if kind, detail, ok := c.fileAndCacheIssue(item, now); ok {
		issue := &Issue{Kind: kind, Path: item.Path, Link: item.Link, Detail: detail}
		if c.repair {
			issue.Repaired = c.repairItem(ctx, item, ix)
		}
		return issue
	}

	if c.probeURL {
		url, err := c.writer.Read(item.Path)
		if err == nil && url != "" {
			if probeErr := c.probe(ctx, url); probeErr != nil {
				issue := &Issue{Kind: DeadLink, Path: item.Path, Link: item.Link, Detail: probeErr.Error()}
				if c.repair {
					// A failing URL usually means server-side expiry
					// ahead of our deadline. Re-resolving gets a new
					// URL; if that fails too the link is truly dead.
					if err := c.resolver.Invalidate(item.Link); err == nil {
						issue.Repaired = c.repairItem(ctx, item, ix)
					}
				}
				return issue
			}
		}
	}

	return nil
}

// fileAndCacheIssue reports pointer and cache problems that do not need
// a network probe.
func (c *Checker) fileAndCacheIssue(item Item, now time.Time) (IssueKind, string, bool) {
	info, err := os.Stat(item.Path)
	if err != nil || info.Size() == 0 {
		return MissingFile, "pointer file missing or empty", true
	}

	cached, err := c.resolver.Cached(item.Link)
	if err != nil {
		return StaleCacheEntry, "no cached resolution for pointer", true
	}
	if cached.Expired(now) {
		return ExpiredLink, fmt.Sprintf("resolution expired at %s", cached.ExpiresAt.Format(time.RFC3339)), true
	}

	return "", "", false
}

// repairItem re-resolves the link and rewrites the pointer.
func (c *Checker) repairItem(ctx context.Context, item Item, ix *dedup.Index) bool {
	resolved, err := c.resolver.Resolve(ctx, item.Link, ix)
	if err != nil {
		metrics.HealthRepairs.WithLabelValues("failure").Inc()
		logging.Warn().Err(err).Str("path", item.Path).Msg("Pointer repair failed")
		return false
	}
	if _, err := c.writer.Write(item.Path, resolved.DirectURL); err != nil {
		metrics.HealthRepairs.WithLabelValues("failure").Inc()
		logging.Warn().Err(err).Str("path", item.Path).Msg("Pointer rewrite failed")
		return false
	}
	metrics.HealthRepairs.WithLabelValues("success").Inc()
	logging.Info().Str("path", item.Path).Msg("Pointer repaired")
	return true
}

// probe issues a HEAD request against the direct URL. Any connection
// failure or 4xx/5xx status counts as dead.
func (c *Checker) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}
