// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

/*
Package resolver turns restricted hoster links into direct URLs.

Resolution is layered cheapest-first. The durable cache is consulted
before anything else. On a miss, a fresh record from the account's
download history serves without an API write. Only when the history has
nothing usable does the resolver spend an unrestrict call. Direct URLs
expire server-side after seven days, so every resolution carries an
ExpiresAt a buffer short of that deadline; stale history records are
deleted remotely before re-resolving so the history does not accumulate
dead entries.
*/
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/robofuse/robofuse/internal/cache"
	"github.com/robofuse/robofuse/internal/dedup"
	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
	"github.com/robofuse/robofuse/internal/realdebrid"
)

// ErrUnresolvable marks a link the service cannot turn into a direct
// URL, typically because the hoster rejected it. Retrying will not
// help until the backing torrent changes.
var ErrUnresolvable = errors.New("link cannot be resolved")

// ResolvedLink is a restricted link mapped to its direct URL.
type ResolvedLink struct {
	Source     string    `json:"source"`
	DirectURL  string    `json:"direct_url"`
	Filename   string    `json:"filename"`
	Filesize   int64     `json:"filesize"`
	ResolvedAt time.Time `json:"resolved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the direct URL has passed its deadline.
func (rl *ResolvedLink) Expired(now time.Time) bool {
	return !now.Before(rl.ExpiresAt)
}

// Resolver resolves restricted links against the cache, the download
// history, and the unrestrict endpoint, in that order.
type Resolver struct {
	api   realdebrid.API
	store *cache.Store
	ttl   time.Duration
	nowFn func() time.Time
}

// New creates a Resolver. ttl is the lifetime granted to each resolved
// URL, measured from the moment its download record was generated.
func New(api realdebrid.API, store *cache.Store, ttl time.Duration) *Resolver {
	return &Resolver{
		api:   api,
		store: store,
		ttl:   ttl,
		nowFn: time.Now,
	}
}

// Cached returns the stored resolution for a link without touching the
// API. Returns cache.ErrMissing when nothing is stored. The entry may
// already be past its ExpiresAt; callers check.
func (r *Resolver) Cached(link string) (*ResolvedLink, error) {
	var rl ResolvedLink
	if err := r.store.Get(cache.PrefixLink+link, &rl); err != nil {
		return nil, err
	}
	return &rl, nil
}

// Invalidate drops the stored resolution for a link.
func (r *Resolver) Invalidate(link string) error {
	return r.store.Invalidate(cache.PrefixLink + link)
}

// Resolve returns a usable direct URL for the restricted link. The
// dedup index must be built from the current download history listing;
// a nil index skips the history layer.
func (r *Resolver) Resolve(ctx context.Context, link string, ix *dedup.Index) (*ResolvedLink, error) {
	now := r.nowFn()
	key := cache.PrefixLink + link

	var cached ResolvedLink
	if err := r.store.Get(key, &cached); err == nil {
		if !cached.Expired(now) {
			return &cached, nil
		}
		if err := r.store.Invalidate(key); err != nil {
			return nil, err
		}
	} else if err != cache.ErrMissing {
		return nil, err
	}

	raw, err := r.store.GetOrFetch(key, r.ttl, func() (interface{}, error) {
		return r.fetch(ctx, link, ix, now)
	})
	if err != nil {
		metrics.ResolutionFailures.Inc()
		return nil, err
	}

	var resolved ResolvedLink
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return nil, fmt.Errorf("failed to decode resolved link: %w", err)
	}
	return &resolved, nil
}

// fetch resolves a link that has no usable cache entry.
func (r *Resolver) fetch(ctx context.Context, link string, ix *dedup.Index, now time.Time) (*ResolvedLink, error) {
	if ix != nil {
		if rec, ok := ix.Lookup(link); ok {
			expiresAt := rec.Generated.Add(r.ttl)
			if now.Before(expiresAt) {
				return &ResolvedLink{
					Source:     link,
					DirectURL:  rec.Download,
					Filename:   rec.Filename,
					Filesize:   rec.Filesize,
					ResolvedAt: now,
					ExpiresAt:  expiresAt,
				}, nil
			}

			// The record outlived its URL. Delete it remotely so the
			// history stays clean; the unrestrict below creates a
			// replacement record.
			if err := r.api.DeleteDownload(ctx, rec.ID); err != nil && !realdebrid.IsNotFound(err) {
				logging.Warn().Err(err).Str("download_id", rec.ID).Msg("Failed to delete expired download record")
			}
		}
	}

	dl, err := r.api.UnrestrictLink(ctx, link)
	if err != nil {
		if realdebrid.IsInvalidState(err) || realdebrid.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnresolvable, err)
		}
		return nil, fmt.Errorf("failed to unrestrict link: %w", err)
	}
	if dl.Download == "" {
		return nil, fmt.Errorf("%w: unrestrict returned no direct URL for %s", ErrUnresolvable, link)
	}

	generated := dl.Generated
	if generated.IsZero() {
		generated = now
	}

	return &ResolvedLink{
		Source:     link,
		DirectURL:  dl.Download,
		Filename:   dl.Filename,
		Filesize:   dl.Filesize,
		ResolvedAt: now,
		ExpiresAt:  generated.Add(r.ttl),
	}, nil
}
