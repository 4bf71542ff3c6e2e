// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for missing or inconsistent values.
// It is called once by Load; a failed validation aborts startup.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateRealDebrid,
		c.validateLibrary,
		c.validateCache,
		c.validateWatch,
		c.validateOps,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateRealDebrid() error {
	if strings.TrimSpace(c.RealDebrid.Token) == "" {
		return fmt.Errorf("realdebrid.token is required (set ROBOFUSE_REALDEBRID_TOKEN)")
	}

	u, err := url.Parse(c.RealDebrid.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("realdebrid.base_url %q is not a valid URL", c.RealDebrid.BaseURL)
	}

	if c.RealDebrid.ConcurrentRequests < 1 {
		return fmt.Errorf("realdebrid.concurrent_requests must be >= 1, got %d", c.RealDebrid.ConcurrentRequests)
	}
	if c.RealDebrid.GeneralRateLimit < 1 {
		return fmt.Errorf("realdebrid.general_rate_limit must be >= 1, got %d", c.RealDebrid.GeneralRateLimit)
	}
	if c.RealDebrid.TorrentsRateLimit < 1 {
		return fmt.Errorf("realdebrid.torrents_rate_limit must be >= 1, got %d", c.RealDebrid.TorrentsRateLimit)
	}
	if c.RealDebrid.RetryAttempts < 0 {
		return fmt.Errorf("realdebrid.retry_attempts must be >= 0, got %d", c.RealDebrid.RetryAttempts)
	}
	if c.RealDebrid.RequestTimeout <= 0 {
		return fmt.Errorf("realdebrid.request_timeout must be positive, got %s", c.RealDebrid.RequestTimeout)
	}

	return nil
}

func (c *Config) validateLibrary() error {
	if strings.TrimSpace(c.Library.OutputDir) == "" {
		return fmt.Errorf("library.output_dir is required")
	}
	return nil
}

func (c *Config) validateCache() error {
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.LinkTTL <= 0 {
		return fmt.Errorf("cache.link_ttl must be positive, got %s", c.Cache.LinkTTL)
	}
	if c.Cache.TorrentListTTL <= 0 {
		return fmt.Errorf("cache.torrent_list_ttl must be positive, got %s", c.Cache.TorrentListTTL)
	}
	if c.Cache.DownloadListTTL <= 0 {
		return fmt.Errorf("cache.download_list_ttl must be positive, got %s", c.Cache.DownloadListTTL)
	}
	return nil
}

func (c *Config) validateWatch() error {
	if !c.Watch.Enabled {
		return nil
	}
	if c.Watch.RefreshInterval <= 0 {
		return fmt.Errorf("watch.refresh_interval must be positive, got %s", c.Watch.RefreshInterval)
	}
	// Zero disables health passes entirely.
	if c.Watch.HealthCheckInterval < 0 {
		return fmt.Errorf("watch.health_check_interval must be >= 0, got %s", c.Watch.HealthCheckInterval)
	}
	return nil
}

func (c *Config) validateOps() error {
	if !c.Ops.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Ops.ListenAddr) == "" {
		return fmt.Errorf("ops.listen_addr is required when ops.enabled is true")
	}
	return nil
}
