// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package config

import "time"

// Config is the complete, immutable configuration for a robofuse process.
// It is loaded once at startup (see Load) and passed by pointer into the
// engine; nothing mutates it afterwards.
type Config struct {
	RealDebrid RealDebridConfig `koanf:"realdebrid"`
	Library    LibraryConfig    `koanf:"library"`
	Cache      CacheConfig      `koanf:"cache"`
	Watch      WatchConfig      `koanf:"watch"`
	Ops        OpsConfig        `koanf:"ops"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// RealDebridConfig holds API client settings.
type RealDebridConfig struct {
	// Token is the Real-Debrid API token (required).
	Token string `koanf:"token"`

	// BaseURL is the API root. Overridable for tests.
	BaseURL string `koanf:"base_url"`

	// ConcurrentRequests bounds the resolver worker pool.
	ConcurrentRequests int `koanf:"concurrent_requests"`

	// GeneralRateLimit is the requests-per-minute budget for the general
	// endpoint class (downloads, unrestrict).
	GeneralRateLimit int `koanf:"general_rate_limit"`

	// TorrentsRateLimit is the requests-per-minute budget for the torrents
	// endpoint class.
	TorrentsRateLimit int `koanf:"torrents_rate_limit"`

	// RetryAttempts is the maximum number of retries for transient failures.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryBaseDelay is the initial backoff delay; it doubles each retry.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`

	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// LibraryConfig holds output tree settings.
type LibraryConfig struct {
	// OutputDir is the root of the .strm pointer tree (required).
	OutputDir string `koanf:"output_dir"`

	// SkipSamples drops sample files and extras (trailers, featurettes)
	// instead of materializing pointer files for them.
	SkipSamples bool `koanf:"skip_samples"`
}

// CacheConfig holds the durable store settings.
type CacheConfig struct {
	// Dir is the badger database directory (required).
	Dir string `koanf:"dir"`

	// LinkTTL is how long an unrestricted link is trusted. Real-Debrid
	// links stay valid for seven days; the default keeps a one-day buffer.
	LinkTTL time.Duration `koanf:"link_ttl"`

	// TorrentListTTL is the freshness window for the torrent listing.
	TorrentListTTL time.Duration `koanf:"torrent_list_ttl"`

	// DownloadListTTL is the freshness window for the downloads history.
	DownloadListTTL time.Duration `koanf:"download_list_ttl"`

	// TorrentInfoTTL is the freshness window for per-torrent detail.
	TorrentInfoTTL time.Duration `koanf:"torrent_info_ttl"`
}

// WatchConfig holds watch-mode scheduling settings.
type WatchConfig struct {
	// Enabled runs the engine continuously instead of one-shot.
	Enabled bool `koanf:"enabled"`

	// RefreshInterval is the cadence of incremental sync passes.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// HealthCheckInterval is the cadence of full health-check passes.
	// Independent from RefreshInterval; typically much longer.
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`

	// RepairEnabled re-resolves and rewrites items that fail health checks.
	RepairEnabled bool `koanf:"repair_enabled"`

	// ReinsertDeadTorrents re-adds dead torrents by hash (delete, addMagnet,
	// selectFiles). Report-only when disabled.
	ReinsertDeadTorrents bool `koanf:"reinsert_dead_torrents"`
}

// OpsConfig holds the optional operations HTTP server settings.
type OpsConfig struct {
	// Enabled starts a small HTTP server exposing /metrics and /healthz.
	Enabled bool `koanf:"enabled"`

	// ListenAddr is the bind address for the ops server.
	ListenAddr string `koanf:"listen_addr"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		RealDebrid: RealDebridConfig{
			BaseURL:            "https://api.real-debrid.com/rest/1.0",
			ConcurrentRequests: 32,
			GeneralRateLimit:   60,
			TorrentsRateLimit:  25,
			RetryAttempts:      5,
			RetryBaseDelay:     1 * time.Second,
			RequestTimeout:     30 * time.Second,
		},
		Library: LibraryConfig{
			SkipSamples: true,
		},
		Cache: CacheConfig{
			LinkTTL:         144 * time.Hour, // 6 days
			TorrentListTTL:  60 * time.Second,
			DownloadListTTL: 5 * time.Minute,
			TorrentInfoTTL:  24 * time.Hour,
		},
		Watch: WatchConfig{
			Enabled:             false,
			RefreshInterval:     10 * time.Second,
			HealthCheckInterval: 60 * time.Minute,
			RepairEnabled:       true,
		},
		Ops: OpsConfig{
			Enabled:    false,
			ListenAddr: ":9511",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
