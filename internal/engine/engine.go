// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

/*
Package engine drives the reconciliation between the remote Real-Debrid
account and the local .strm library.

A pass moves through fixed states: listing remote torrents and download
history, resolving every restricted link of every finished torrent,
writing the pointer tree, and finally removing orphans. Health checking
runs as its own pass on an independent cadence. Per-item failures are
counted and logged but never abort a pass; only an authentication
failure or a broken cache store is fatal.
*/
package engine

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/robofuse/robofuse/internal/cache"
	"github.com/robofuse/robofuse/internal/config"
	"github.com/robofuse/robofuse/internal/dedup"
	"github.com/robofuse/robofuse/internal/health"
	"github.com/robofuse/robofuse/internal/library"
	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
	"github.com/robofuse/robofuse/internal/realdebrid"
	"github.com/robofuse/robofuse/internal/resolver"
)

// State names the phase a pass is in.
type State string

const (
	StateIdle           State = "idle"
	StateListing        State = "listing"
	StateResolving      State = "resolving"
	StateWriting        State = "writing"
	StateHealthChecking State = "health_checking"
)

// Summary reports what one pass did.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Torrents   int
	Links      int
	Created    int
	Updated    int
	Skipped    int
	Excluded   int
	Removed    int
	Failed     int
	Reinserted int

	// Filled by the caller when a health pass follows the sync pass.
	IssuesFound    int
	IssuesRepaired int
}

// Engine reconciles the remote account with the local library.
type Engine struct {
	api      realdebrid.API
	store    *cache.Store
	resolver *resolver.Resolver
	writer   *library.Writer
	checker  *health.Checker
	cfg      *config.Config

	mu    sync.Mutex
	state State
}

// New assembles an Engine from its collaborators.
func New(api realdebrid.API, store *cache.Store, res *resolver.Resolver, writer *library.Writer, checker *health.Checker, cfg *config.Config) *Engine {
	return &Engine{
		api:      api,
		store:    store,
		resolver: res,
		writer:   writer,
		checker:  checker,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// State returns the current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	logging.Debug().Str("state", string(s)).Msg("Engine state change")
}

// workUnit is one restricted link to resolve and write. fileName is
// empty when the torrent's file listing could not supply one; the
// resolver's filename fills the gap.
type workUnit struct {
	torrentName string
	fileName    string
	link        string
}

// Run executes one full synchronization pass.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)

	summary := &Summary{RunID: runID, StartedAt: time.Now()}
	start := time.Now()

	err := e.run(ctx, summary)

	summary.FinishedAt = time.Now()
	e.setState(StateIdle)
	metrics.SyncPassDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else if summary.Failed > 0 {
		outcome = "partial"
	}
	metrics.SyncPasses.WithLabelValues(outcome).Inc()

	logging.Ctx(ctx).Info().
		Str("outcome", outcome).
		Int("torrents", summary.Torrents).
		Int("links", summary.Links).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("excluded", summary.Excluded).
		Int("removed", summary.Removed).
		Int("failed", summary.Failed).
		Int("reinserted", summary.Reinserted).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Synchronization pass finished")

	return summary, err
}

func (e *Engine) run(ctx context.Context, summary *Summary) error {
	e.setState(StateListing)

	torrents, err := e.listTorrents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list torrents: %w", err)
	}
	summary.Torrents = len(torrents)

	if e.cfg.Watch.ReinsertDeadTorrents {
		summary.Reinserted = e.reinsertDead(ctx, torrents)
		if summary.Reinserted > 0 {
			// The listing changed remotely; refresh it.
			if err := e.store.Invalidate(cache.PrefixTorrentList); err != nil {
				return err
			}
			if torrents, err = e.listTorrents(ctx); err != nil {
				return fmt.Errorf("failed to relist torrents: %w", err)
			}
		}
	}

	downloads, err := e.listDownloads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list downloads: %w", err)
	}
	ix := dedup.Build(downloads)
	e.deleteSuperseded(ctx, downloads)

	units := e.collectWork(ctx, torrents)
	summary.Links = len(units)

	e.setState(StateResolving)
	expected, authErr := e.processUnits(ctx, units, ix, summary)
	if authErr != nil {
		// A rejected token poisons every remaining call. Stop before
		// the orphan sweep tears down a healthy library.
		return authErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	e.setState(StateWriting)
	removed, err := e.writer.RemoveOrphans(expected)
	if err != nil {
		return fmt.Errorf("failed to remove orphans: %w", err)
	}
	summary.Removed = removed

	return nil
}

// listTorrents returns the torrent listing, served from cache inside
// its TTL window.
func (e *Engine) listTorrents(ctx context.Context) ([]realdebrid.Torrent, error) {
	raw, err := e.store.GetOrFetch(cache.PrefixTorrentList, e.cfg.Cache.TorrentListTTL, func() (interface{}, error) {
		return e.api.ListAllTorrents(ctx)
	})
	if err != nil {
		return nil, err
	}
	var torrents []realdebrid.Torrent
	if err := json.Unmarshal(raw, &torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrent listing: %w", err)
	}
	return torrents, nil
}

// listDownloads returns the download history, served from cache inside
// its TTL window.
func (e *Engine) listDownloads(ctx context.Context) ([]realdebrid.Download, error) {
	raw, err := e.store.GetOrFetch(cache.PrefixDownload, e.cfg.Cache.DownloadListTTL, func() (interface{}, error) {
		return e.api.ListAllDownloads(ctx)
	})
	if err != nil {
		return nil, err
	}
	var downloads []realdebrid.Download
	if err := json.Unmarshal(raw, &downloads); err != nil {
		return nil, fmt.Errorf("failed to decode download listing: %w", err)
	}
	return downloads, nil
}

// reinsertDead re-adds dead torrents by hash: delete, add magnet,
// select all files. Returns how many reinsertions succeeded.
func (e *Engine) reinsertDead(ctx context.Context, torrents []realdebrid.Torrent) int {
	reinserted := 0
	for i := range torrents {
		t := &torrents[i]
		if !t.Dead() || t.Hash == "" {
			continue
		}

		log := logging.Ctx(ctx).With().Str("torrent_id", t.ID).Str("name", t.Filename).Str("status", t.Status).Logger()

		if err := e.api.DeleteTorrent(ctx, t.ID); err != nil && !realdebrid.IsNotFound(err) {
			log.Warn().Err(err).Msg("Failed to delete dead torrent")
			continue
		}
		added, err := e.api.AddMagnet(ctx, "magnet:?xt=urn:btih:"+t.Hash)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to re-add dead torrent")
			continue
		}
		if err := e.api.SelectFiles(ctx, added.ID, "all"); err != nil {
			log.Warn().Err(err).Msg("Failed to select files on reinserted torrent")
			continue
		}

		reinserted++
		log.Info().Str("new_id", added.ID).Msg("Dead torrent reinserted")
	}
	return reinserted
}

// deleteSuperseded removes download records that lost deduplication.
// Failures only log; a stale record costs nothing but clutter.
func (e *Engine) deleteSuperseded(ctx context.Context, downloads []realdebrid.Download) {
	ids := dedup.Superseded(downloads)
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := e.api.DeleteDownload(ctx, id); err != nil && !realdebrid.IsNotFound(err) {
			logging.Ctx(ctx).Warn().Err(err).Str("download_id", id).Msg("Failed to delete superseded download record")
		}
	}
	if err := e.store.Invalidate(cache.PrefixDownload); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to invalidate download listing cache")
	}
}

// torrentInfo returns the detailed torrent view, served from cache
// inside its TTL window.
func (e *Engine) torrentInfo(ctx context.Context, id string) (*realdebrid.TorrentInfo, error) {
	raw, err := e.store.GetOrFetch(cache.PrefixTorrentInfo+id, e.cfg.Cache.TorrentInfoTTL, func() (interface{}, error) {
		return e.api.GetTorrentInfo(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	var info realdebrid.TorrentInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode torrent info: %w", err)
	}
	return &info, nil
}

// collectWork flattens finished torrents into per-link work units. For
// multi-file torrents the detail endpoint pairs each link with its
// selected file so pointers carry real filenames; when that pairing is
// unavailable the resolver's filename is used instead.
func (e *Engine) collectWork(ctx context.Context, torrents []realdebrid.Torrent) []workUnit {
	var units []workUnit
	for i := range torrents {
		t := &torrents[i]
		if !t.Downloaded() {
			continue
		}

		var selected []realdebrid.TorrentFile
		if len(t.Links) > 1 {
			if info, err := e.torrentInfo(ctx, t.ID); err == nil {
				for _, f := range info.Files {
					if f.Selected == 1 {
						selected = append(selected, f)
					}
				}
				// Links map to selected files positionally; a mismatch
				// means the listing and detail are out of sync.
				if len(selected) != len(t.Links) {
					selected = nil
				}
			} else {
				logging.Ctx(ctx).Debug().Err(err).Str("torrent_id", t.ID).Msg("Torrent detail unavailable, falling back to resolved filenames")
			}
		}

		for idx, link := range t.Links {
			if link == "" {
				continue
			}
			unit := workUnit{torrentName: t.Filename, link: link}
			if selected != nil {
				unit.fileName = path.Base(selected[idx].Path)
			}
			units = append(units, unit)
		}
	}
	return units
}

// processUnits resolves and writes every unit through a bounded worker
// pool and returns the set of pointer paths that should exist.
func (e *Engine) processUnits(ctx context.Context, units []workUnit, ix *dedup.Index, summary *Summary) (map[string]struct{}, error) {
	workers := e.cfg.RealDebrid.ConcurrentRequests
	if workers < 1 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		authErr  error
		expected = make(map[string]struct{}, len(units))
	)

	work := make(chan workUnit)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range work {
				path, op, err := e.processUnit(ctx, unit, ix)

				mu.Lock()
				switch {
				case err != nil:
					summary.Failed++
					if authErr == nil && realdebrid.IsAuth(err) {
						authErr = err
					}
				case op == opExcluded:
					summary.Excluded++
				default:
					expected[path] = struct{}{}
					switch op {
					case library.OpCreated:
						summary.Created++
					case library.OpUpdated:
						summary.Updated++
					case library.OpSkipped:
						summary.Skipped++
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, unit := range units {
		select {
		case work <- unit:
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return expected, authErr
		}
	}
	close(work)
	wg.Wait()
	return expected, authErr
}

// opExcluded marks a file dropped by sample and extras filtering.
const opExcluded library.Op = "excluded"

// processUnit resolves one link and writes its pointer.
func (e *Engine) processUnit(ctx context.Context, unit workUnit, ix *dedup.Index) (string, library.Op, error) {
	resolved, err := e.resolver.Resolve(ctx, unit.link, ix)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("link", unit.link).Str("torrent", unit.torrentName).Msg("Link resolution failed")
		return "", "", err
	}

	filename := unit.fileName
	if filename == "" {
		filename = resolved.Filename
	}
	if filename == "" {
		filename = unit.torrentName
	}

	if e.cfg.Library.SkipSamples {
		if skip, reason := library.ShouldSkip(filename); skip {
			logging.Ctx(ctx).Debug().Str("file", filename).Str("reason", reason).Msg("File excluded from library")
			return "", opExcluded, nil
		}
	}

	path := e.writer.TargetPath(unit.torrentName, filename)
	op, err := e.writer.Write(path, resolved.DirectURL)
	if err != nil {
		return "", "", err
	}
	return path, op, nil
}

// HealthPass verifies every pointer that a fresh pass would produce and
// repairs what it can.
func (e *Engine) HealthPass(ctx context.Context) ([]health.Issue, error) {
	runID := logging.NewRunID()
	ctx = logging.WithRunID(ctx, runID)

	e.setState(StateHealthChecking)
	defer e.setState(StateIdle)

	downloads, err := e.listDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	ix := dedup.Build(downloads)

	items, err := e.healthItems(ctx)
	if err != nil {
		return nil, err
	}

	issues := e.checker.Check(ctx, items, ix)

	repaired := 0
	for _, issue := range issues {
		if issue.Repaired {
			repaired++
		}
	}
	logging.Ctx(ctx).Info().Int("checked", len(items)).Int("issues", len(issues)).Int("repaired", repaired).Msg("Health pass finished")

	return issues, nil
}

// healthItems derives the pointer every work unit should have on disk.
// Units with no cached resolution stay in: the checker classifies their
// entry as stale and can re-resolve it.
func (e *Engine) healthItems(ctx context.Context) ([]health.Item, error) {
	torrents, err := e.listTorrents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list torrents: %w", err)
	}

	var items []health.Item
	for _, unit := range e.collectWork(ctx, torrents) {
		filename := unit.fileName
		if filename == "" {
			if cached, err := e.resolver.Cached(unit.link); err == nil {
				filename = cached.Filename
			}
		}
		if filename == "" {
			filename = unit.torrentName
		}
		if e.cfg.Library.SkipSamples {
			if skip, _ := library.ShouldSkip(filename); skip {
				continue
			}
		}

		items = append(items, health.Item{
			Path: e.writer.TargetPath(unit.torrentName, filename),
			Link: unit.link,
		})
	}
	return items, nil
}
