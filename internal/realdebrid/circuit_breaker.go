// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package realdebrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
)

// API is the Real-Debrid surface the engine consumes. Both the plain
// Client and the CircuitBreakerClient implement it, so tests can swap in
// fakes and the breaker stays optional.
type API interface {
	ListAllTorrents(ctx context.Context) ([]Torrent, error)
	GetTorrentInfo(ctx context.Context, id string) (*TorrentInfo, error)
	AddMagnet(ctx context.Context, magnet string) (*AddMagnetResult, error)
	SelectFiles(ctx context.Context, id, files string) error
	DeleteTorrent(ctx context.Context, id string) error
	ListAllDownloads(ctx context.Context) ([]Download, error)
	DeleteDownload(ctx context.Context, id string) error
	UnrestrictLink(ctx context.Context, link string) (*Download, error)
}

// CircuitBreakerClient wraps Client with a circuit breaker so a
// misbehaving API fails fast instead of stalling every worker on retries.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should exercise the wrapped client directly.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient wraps an existing client.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(client *Client) *CircuitBreakerClient {
	cbName := "realdebrid-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		// Auth errors are the caller's problem, not a service outage.
		// Counting them would open the circuit on a bad token and mask
		// the real failure.
		IsSuccessful: func(err error) bool {
			return err == nil || IsAuth(err) || IsNotFound(err) || IsInvalidState(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &CircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps an API call with circuit breaker protection.
func (cbc *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ListAllTorrents retrieves all torrents with circuit breaker protection.
func (cbc *CircuitBreakerClient) ListAllTorrents(ctx context.Context) ([]Torrent, error) {
	return castResult[[]Torrent](cbc.execute(func() (interface{}, error) {
		return cbc.client.ListAllTorrents(ctx)
	}))
}

// GetTorrentInfo retrieves torrent details with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetTorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	return castResult[*TorrentInfo](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetTorrentInfo(ctx, id)
	}))
}

// AddMagnet submits a magnet with circuit breaker protection.
func (cbc *CircuitBreakerClient) AddMagnet(ctx context.Context, magnet string) (*AddMagnetResult, error) {
	return castResult[*AddMagnetResult](cbc.execute(func() (interface{}, error) {
		return cbc.client.AddMagnet(ctx, magnet)
	}))
}

// SelectFiles selects torrent files with circuit breaker protection.
func (cbc *CircuitBreakerClient) SelectFiles(ctx context.Context, id, files string) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.SelectFiles(ctx, id, files)
	})
	return err
}

// DeleteTorrent deletes a torrent with circuit breaker protection.
func (cbc *CircuitBreakerClient) DeleteTorrent(ctx context.Context, id string) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.DeleteTorrent(ctx, id)
	})
	return err
}

// ListAllDownloads retrieves the download history with circuit breaker protection.
func (cbc *CircuitBreakerClient) ListAllDownloads(ctx context.Context) ([]Download, error) {
	return castResult[[]Download](cbc.execute(func() (interface{}, error) {
		return cbc.client.ListAllDownloads(ctx)
	}))
}

// DeleteDownload deletes a download record with circuit breaker protection.
func (cbc *CircuitBreakerClient) DeleteDownload(ctx context.Context, id string) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.DeleteDownload(ctx, id)
	})
	return err
}

// UnrestrictLink unrestricts a link with circuit breaker protection.
func (cbc *CircuitBreakerClient) UnrestrictLink(ctx context.Context, link string) (*Download, error) {
	return castResult[*Download](cbc.execute(func() (interface{}, error) {
		return cbc.client.UnrestrictLink(ctx, link)
	}))
}
