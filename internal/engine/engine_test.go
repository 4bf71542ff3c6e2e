// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package engine

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/robofuse/robofuse/internal/cache"
	"github.com/robofuse/robofuse/internal/config"
	"github.com/robofuse/robofuse/internal/health"
	"github.com/robofuse/robofuse/internal/library"
	"github.com/robofuse/robofuse/internal/realdebrid"
	"github.com/robofuse/robofuse/internal/resolver"
)

// fakeAPI is an in-memory Real-Debrid account.
type fakeAPI struct {
	mu        sync.Mutex
	torrents  []realdebrid.Torrent
	downloads []realdebrid.Download
	infos     map[string]*realdebrid.TorrentInfo

	unrestricted []string
	deletedDLs   []string
	deletedTors  []string
	addedMagnets []string
	selected     []string

	unrestrictErr error
}

func (f *fakeAPI) ListAllTorrents(context.Context) ([]realdebrid.Torrent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realdebrid.Torrent(nil), f.torrents...), nil
}

func (f *fakeAPI) GetTorrentInfo(_ context.Context, id string) (*realdebrid.TorrentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.infos[id]; ok {
		return info, nil
	}
	return nil, &realdebrid.APIError{Operation: "torrent_info", Status: http.StatusNotFound}
}

func (f *fakeAPI) AddMagnet(_ context.Context, magnet string) (*realdebrid.AddMagnetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addedMagnets = append(f.addedMagnets, magnet)
	return &realdebrid.AddMagnetResult{ID: "NEW1"}, nil
}

func (f *fakeAPI) SelectFiles(_ context.Context, id, files string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, id+":"+files)
	return nil
}

func (f *fakeAPI) DeleteTorrent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedTors = append(f.deletedTors, id)
	return nil
}

func (f *fakeAPI) ListAllDownloads(context.Context) ([]realdebrid.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realdebrid.Download(nil), f.downloads...), nil
}

func (f *fakeAPI) DeleteDownload(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDLs = append(f.deletedDLs, id)
	return nil
}

func (f *fakeAPI) UnrestrictLink(_ context.Context, link string) (*realdebrid.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unrestrictErr != nil {
		return nil, f.unrestrictErr
	}
	f.unrestricted = append(f.unrestricted, link)
	return &realdebrid.Download{
		ID:        "D-" + link,
		Link:      link,
		Download:  "https://direct/" + link,
		Filename:  link + ".mkv",
		Generated: time.Now(),
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.RealDebrid.ConcurrentRequests = 4
	cfg.Library.OutputDir = t.TempDir()
	cfg.Library.SkipSamples = true
	cfg.Cache.LinkTTL = 144 * time.Hour
	cfg.Cache.TorrentListTTL = time.Minute
	cfg.Cache.DownloadListTTL = 5 * time.Minute
	cfg.Cache.TorrentInfoTTL = 24 * time.Hour
	return cfg
}

func newTestEngine(t *testing.T, api realdebrid.API, cfg *config.Config) *Engine {
	t.Helper()
	store, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	res := resolver.New(api, store, cfg.Cache.LinkTTL)
	writer := library.NewWriter(cfg.Library.OutputDir)
	checker := health.NewChecker(res, writer, true)

	return New(api, store, res, writer, checker, cfg)
}

func downloadedTorrent(id, name string, links ...string) realdebrid.Torrent {
	return realdebrid.Torrent{
		ID:       id,
		Filename: name,
		Hash:     "hash-" + id,
		Status:   realdebrid.StatusDownloaded,
		Links:    links,
	}
}

func TestRunCreatesPointers(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{
			downloadedTorrent("T1", "Movie.2026.1080p", "linkA", "linkB"),
			{ID: "T2", Filename: "Still.Downloading", Status: realdebrid.StatusDownloading},
		},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Created != 2 {
		t.Fatalf("Created = %d, want 2", summary.Created)
	}
	if summary.Failed != 0 {
		t.Fatalf("Failed = %d", summary.Failed)
	}

	writer := library.NewWriter(cfg.Library.OutputDir)
	paths, err := writer.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("library has %d pointers, want 2", len(paths))
	}
	url, err := writer.Read(writer.TargetPath("Movie.2026.1080p", "linkA.mkv"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if url != "https://direct/linkA" {
		t.Fatalf("pointer content = %q", url)
	}
}

func TestRunNamesFilesFromTorrentDetail(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Show.S01", "linkE1", "linkE2")},
		infos: map[string]*realdebrid.TorrentInfo{
			"T1": {
				ID: "T1",
				Files: []realdebrid.TorrentFile{
					{ID: 1, Path: "/Show.S01/Show.S01E01.mkv", Selected: 1},
					{ID: 2, Path: "/Show.S01/Show.S01E02.mkv", Selected: 1},
					{ID: 3, Path: "/Show.S01/readme.txt", Selected: 0},
				},
			},
		},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writer := library.NewWriter(cfg.Library.OutputDir)
	for _, name := range []string{"Show.S01E01.mkv", "Show.S01E02.mkv"} {
		if _, err := os.Stat(writer.TargetPath("Show.S01", name)); err != nil {
			t.Errorf("pointer for %s missing: %v", name, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "linkA")},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Created != 0 || summary.Updated != 0 {
		t.Fatalf("second pass wrote: created=%d updated=%d", summary.Created, summary.Updated)
	}
	if summary.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", summary.Skipped)
	}

	// The cached resolution also means no second unrestrict.
	if len(api.unrestricted) != 1 {
		t.Fatalf("unrestrict called %d times, want 1", len(api.unrestricted))
	}
}

func TestRunUsesHistoryInsteadOfUnrestrict(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "linkA")},
		downloads: []realdebrid.Download{{
			ID:        "D1",
			Link:      "linkA",
			Download:  "https://direct/from-history",
			Filename:  "Movie.mkv",
			Generated: time.Now().Add(-time.Hour),
		}},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(api.unrestricted) != 0 {
		t.Fatalf("unrestrict called %d times, want 0", len(api.unrestricted))
	}

	writer := library.NewWriter(cfg.Library.OutputDir)
	url, err := writer.Read(writer.TargetPath("Movie", "Movie.mkv"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if url != "https://direct/from-history" {
		t.Fatalf("pointer content = %q", url)
	}
}

func TestRunExcludesSamples(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "movie", "movie.sample")},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("Created = %d, want 1", summary.Created)
	}
	if summary.Excluded != 1 {
		t.Fatalf("Excluded = %d, want 1", summary.Excluded)
	}
}

func TestRunRemovesOrphans(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{
			downloadedTorrent("T1", "Keep", "keep"),
			downloadedTorrent("T2", "Gone", "gone"),
		},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// The second torrent disappears remotely.
	api.mu.Lock()
	api.torrents = api.torrents[:1]
	api.mu.Unlock()
	if err := e.store.Invalidate(cache.PrefixTorrentList); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Removed != 1 {
		t.Fatalf("Removed = %d, want 1", summary.Removed)
	}

	writer := library.NewWriter(cfg.Library.OutputDir)
	if _, err := os.Stat(writer.TargetPath("Gone", "gone.mkv")); !os.IsNotExist(err) {
		t.Fatal("orphaned pointer still on disk")
	}
}

func TestRunAuthFailureAborts(t *testing.T) {
	api := &fakeAPI{
		torrents:      []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "linkA")},
		unrestrictErr: &realdebrid.APIError{Operation: "unrestrict_link", Status: http.StatusUnauthorized, Message: "bad_token"},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	_, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("expected auth error")
	}
	if !realdebrid.IsAuth(err) {
		t.Fatalf("error = %v, want auth classification", err)
	}
}

func TestRunPerItemFailureIsolated(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "bad", "good")},
		downloads: []realdebrid.Download{{
			ID:        "D1",
			Link:      "good",
			Download:  "https://direct/good",
			Filename:  "good.mkv",
			Generated: time.Now(),
		}},
		unrestrictErr: &realdebrid.APIError{Operation: "unrestrict_link", Status: http.StatusServiceUnavailable, Message: "hoster_unavailable"},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", summary.Failed)
	}
	if summary.Created != 1 {
		t.Fatalf("Created = %d, want 1", summary.Created)
	}
}

func TestRunReinsertsDeadTorrents(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{{
			ID:       "T1",
			Filename: "Dead.Movie",
			Hash:     "abcdef",
			Status:   realdebrid.StatusDead,
		}},
	}
	cfg := testConfig(t)
	cfg.Watch.ReinsertDeadTorrents = true
	e := newTestEngine(t, api, cfg)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Reinserted != 1 {
		t.Fatalf("Reinserted = %d, want 1", summary.Reinserted)
	}
	if len(api.deletedTors) != 1 || api.deletedTors[0] != "T1" {
		t.Fatalf("deleted torrents = %v", api.deletedTors)
	}
	if len(api.addedMagnets) != 1 || api.addedMagnets[0] != "magnet:?xt=urn:btih:abcdef" {
		t.Fatalf("added magnets = %v", api.addedMagnets)
	}
	if len(api.selected) != 1 || api.selected[0] != "NEW1:all" {
		t.Fatalf("selected = %v", api.selected)
	}
}

func TestRunDeletesSupersededRecords(t *testing.T) {
	t0 := time.Now().Add(-2 * time.Hour)
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "linkA")},
		downloads: []realdebrid.Download{
			{ID: "D1", Link: "linkA", Download: "https://direct/old", Filename: "Movie.mkv", Generated: t0},
			{ID: "D2", Link: "linkA", Download: "https://direct/new", Filename: "Movie.mkv", Generated: t0.Add(time.Hour)},
		},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(api.deletedDLs) != 1 || api.deletedDLs[0] != "D1" {
		t.Fatalf("deleted downloads = %v, want [D1]", api.deletedDLs)
	}
}

func TestHealthPassRepairsStaleCacheEntry(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Show.S01", "linkE1", "linkE2")},
		infos: map[string]*realdebrid.TorrentInfo{
			"T1": {
				ID: "T1",
				Files: []realdebrid.TorrentFile{
					{ID: 1, Path: "/Show.S01/Show.S01E01.mkv", Selected: 1},
					{ID: 2, Path: "/Show.S01/Show.S01E02.mkv", Selected: 1},
				},
			},
		},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Lose one resolution; its pointer stays on disk backed by a URL
	// nothing can vouch for anymore. Drop the other pointer entirely so
	// both rot cases surface in one pass.
	if err := e.resolver.Invalidate("linkE1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	writer := library.NewWriter(cfg.Library.OutputDir)
	if err := os.Remove(writer.TargetPath("Show.S01", "Show.S01E02.mkv")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	issues, err := e.HealthPass(context.Background())
	if err != nil {
		t.Fatalf("HealthPass: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %+v, want stale_cache_entry and missing_file", issues)
	}

	var stale *health.Issue
	for i := range issues {
		if issues[i].Kind == health.StaleCacheEntry {
			stale = &issues[i]
		}
	}
	if stale == nil {
		t.Fatalf("no stale_cache_entry among %+v", issues)
	}
	if !stale.Repaired {
		t.Fatal("stale entry should have been re-resolved")
	}
	if _, err := e.resolver.Cached("linkE1"); err != nil {
		t.Fatalf("resolution not restored after repair: %v", err)
	}
}

func TestHealthPassRepairsDeletedPointer(t *testing.T) {
	api := &fakeAPI{
		torrents: []realdebrid.Torrent{downloadedTorrent("T1", "Movie", "linkA")},
	}
	cfg := testConfig(t)
	e := newTestEngine(t, api, cfg)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writer := library.NewWriter(cfg.Library.OutputDir)
	path := writer.TargetPath("Movie", "linkA.mkv")
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	issues, err := e.HealthPass(context.Background())
	if err != nil {
		t.Fatalf("HealthPass: %v", err)
	}
	if len(issues) != 1 || issues[0].Kind != health.MissingFile {
		t.Fatalf("issues = %+v, want one missing_file", issues)
	}
	if !issues[0].Repaired {
		t.Fatal("pointer should have been repaired")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pointer missing after repair: %v", err)
	}
}
