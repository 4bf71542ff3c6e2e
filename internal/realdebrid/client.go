// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

/*
Package realdebrid implements the Real-Debrid REST API client used by the
synchronization engine.

The client covers the two endpoint families the engine needs:

  - /torrents: list, inspect, add magnet, select files, delete
  - /downloads and /unrestrict: list history, delete records, unrestrict links

Every call acquires a token from the per-class rate limiter before touching
the network, so concurrent workers share the account budget. HTTP 429, 5xx
and transport failures are retried with exponential backoff (1s, 2s, 4s,
8s, 16s), honoring the Retry-After header on 429. Failures that outlive
the retries surface as *APIError for classification by the caller.
*/
package realdebrid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/robofuse/robofuse/internal/config"
	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
	"github.com/robofuse/robofuse/internal/ratelimit"
)

// listPageSize is the page size for /torrents and /downloads listing.
// Real-Debrid caps limit at 100 per page.
const listPageSize = 100

// apiErrorBody is the error payload Real-Debrid returns on failures.
type apiErrorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// Client is the Real-Debrid API client. Safe for concurrent use.
type Client struct {
	baseURL        string
	token          string
	client         *http.Client
	limiter        *ratelimit.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a Real-Debrid client from configuration, sharing the
// given rate limiter across all calls.
func NewClient(cfg *config.RealDebridConfig, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:        limiter,
		maxRetries:     cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

// doRequest performs one API call with rate limiting and retries. 429,
// 5xx and transport failures back off exponentially; the last attempt's
// response or error surfaces to the caller, who owns the response body.
func (c *Client) doRequest(ctx context.Context, class ratelimit.Class, operation, method, path string, body url.Values) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Each attempt consumes a budget token, retries included.
		if err := c.limiter.Acquire(ctx, class); err != nil {
			return nil, err
		}

		var reader io.Reader = http.NoBody
		if body != nil {
			reader = strings.NewReader(body.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", operation, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		metrics.APIRequestDuration.WithLabelValues(string(class), operation).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.APIRequests.WithLabelValues(string(class), operation, "error").Inc()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == c.maxRetries {
				return nil, fmt.Errorf("%s request failed after %d retries: %w", operation, c.maxRetries, err)
			}
			logging.Warn().Err(err).Str("operation", operation).Int("attempt", attempt+1).Msg("Request failed, backing off")
			if err := c.backoff(ctx, c.retryBaseDelay*time.Duration(1<<uint(attempt))); err != nil {
				return nil, err
			}
			continue
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt == c.maxRetries {
			outcome := "success"
			if resp.StatusCode >= 400 {
				outcome = "error"
			}
			metrics.APIRequests.WithLabelValues(string(class), operation, outcome).Inc()
			return resp, nil
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if resp.StatusCode == http.StatusTooManyRequests {
			metrics.APIRequests.WithLabelValues(string(class), operation, "rate_limited").Inc()
			// Integer seconds only; the HTTP-date form of Retry-After
			// falls back to the exponential delay.
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
					delay = seconds
				}
			}
		} else {
			metrics.APIRequests.WithLabelValues(string(class), operation, "error").Inc()
		}
		_ = resp.Body.Close()

		logging.Warn().Str("operation", operation).Int("status", resp.StatusCode).Dur("delay", delay).Int("attempt", attempt+1).Msg("Retryable API failure, backing off")

		if err := c.backoff(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// backoff waits for the delay or the context, whichever ends first.
func (c *Client) backoff(ctx context.Context, delay time.Duration) error {
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call performs a request and decodes a 2xx JSON body into result.
// A nil result discards the body. Non-2xx responses become *APIError.
func (c *Client) call(ctx context.Context, class ratelimit.Class, operation, method, path string, body url.Values, result interface{}) error {
	resp, err := c.doRequest(ctx, class, operation, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp, operation)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// decodeAPIError builds an *APIError from an error response, pulling the
// Real-Debrid error payload when the body carries one.
func decodeAPIError(resp *http.Response, operation string) error {
	apiErr := &APIError{Operation: operation, Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		var body apiErrorBody
		if json.Unmarshal(raw, &body) == nil {
			apiErr.Message = body.Error
			apiErr.Code = body.ErrorCode
		}
	}
	return apiErr
}

// ListTorrents retrieves one page of the account's torrents. Page numbers
// start at 1. An empty page returns an empty slice, not an error.
func (c *Client) ListTorrents(ctx context.Context, page, limit int) ([]Torrent, error) {
	path := fmt.Sprintf("/torrents?page=%d&limit=%d", page, limit)
	var torrents []Torrent
	if err := c.call(ctx, ratelimit.ClassTorrents, "list_torrents", http.MethodGet, path, nil, &torrents); err != nil {
		return nil, err
	}
	return torrents, nil
}

// ListAllTorrents pages through /torrents until an incomplete page.
func (c *Client) ListAllTorrents(ctx context.Context) ([]Torrent, error) {
	var all []Torrent
	for page := 1; ; page++ {
		torrents, err := c.ListTorrents(ctx, page, listPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, torrents...)
		if len(torrents) < listPageSize {
			return all, nil
		}
	}
}

// GetTorrentInfo retrieves the detailed view of one torrent, including
// its file list.
func (c *Client) GetTorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	var info TorrentInfo
	if err := c.call(ctx, ratelimit.ClassTorrents, "torrent_info", http.MethodGet, "/torrents/info/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AddMagnet submits a magnet URI for download.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (*AddMagnetResult, error) {
	body := url.Values{"magnet": {magnet}}
	var result AddMagnetResult
	if err := c.call(ctx, ratelimit.ClassTorrents, "add_magnet", http.MethodPost, "/torrents/addMagnet", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SelectFiles chooses which files of a torrent to download. The files
// argument is a comma-separated list of file IDs, or "all".
func (c *Client) SelectFiles(ctx context.Context, id, files string) error {
	body := url.Values{"files": {files}}
	return c.call(ctx, ratelimit.ClassTorrents, "select_files", http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(id), body, nil)
}

// DeleteTorrent removes a torrent from the account.
func (c *Client) DeleteTorrent(ctx context.Context, id string) error {
	return c.call(ctx, ratelimit.ClassTorrents, "delete_torrent", http.MethodDelete, "/torrents/delete/"+url.PathEscape(id), nil, nil)
}

// ListDownloads retrieves one page of the account's download history.
func (c *Client) ListDownloads(ctx context.Context, page, limit int) ([]Download, error) {
	path := fmt.Sprintf("/downloads?page=%d&limit=%d", page, limit)
	var downloads []Download
	if err := c.call(ctx, ratelimit.ClassGeneral, "list_downloads", http.MethodGet, path, nil, &downloads); err != nil {
		return nil, err
	}
	return downloads, nil
}

// ListAllDownloads pages through /downloads until an incomplete page.
func (c *Client) ListAllDownloads(ctx context.Context) ([]Download, error) {
	var all []Download
	for page := 1; ; page++ {
		downloads, err := c.ListDownloads(ctx, page, listPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, downloads...)
		if len(downloads) < listPageSize {
			return all, nil
		}
	}
}

// DeleteDownload removes a record from the download history.
func (c *Client) DeleteDownload(ctx context.Context, id string) error {
	return c.call(ctx, ratelimit.ClassGeneral, "delete_download", http.MethodDelete, "/downloads/delete/"+url.PathEscape(id), nil, nil)
}

// UnrestrictLink converts a restricted hoster link into a directly
// downloadable URL, creating a new download history record remotely.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (*Download, error) {
	body := url.Values{"link": {link}}
	var download Download
	if err := c.call(ctx, ratelimit.ClassGeneral, "unrestrict_link", http.MethodPost, "/unrestrict/link", body, &download); err != nil {
		return nil, err
	}
	return &download, nil
}
