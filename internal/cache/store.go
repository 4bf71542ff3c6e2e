// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

/*
Package cache provides the durable TTL cache backing the synchronization
engine.

Entries live in a BadgerDB key-value store on disk so resolved links
survive restarts. Each entry is stored as a JSON envelope carrying the
payload plus its fetch time and TTL; expiry is enforced both by Badger's
native TTL and by an envelope check on read, so a clock-skewed or
compaction-delayed entry never leaks past its deadline.

A small in-memory LRU sits in front of Badger for keys read repeatedly
within one pass, and GetOrFetch collapses concurrent fetches of the same
key into a single upstream call.
*/
package cache

import (
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// ErrMissing is returned by Get when a key is absent or its entry has
// expired. Callers treat both the same way: fetch fresh data.
var ErrMissing = fmt.Errorf("cache: entry missing or expired")

// Key prefixes partition the store by entry kind.
const (
	PrefixLink        = "link:"     // resolved direct URLs, keyed by restricted link
	PrefixTorrentList = "torrents"  // the full torrent listing
	PrefixDownload    = "downloads" // the full download history listing
	PrefixTorrentInfo = "tinfo:"    // per-torrent detail, keyed by torrent ID
)

// envelope wraps every stored payload with its freshness metadata.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
	TTL       time.Duration   `json:"ttl"`
}

func (e *envelope) expired(now time.Time) bool {
	return now.After(e.FetchedAt.Add(e.TTL))
}

// Store is the durable cache. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	hot    *lruCache
	group  singleflight.Group
	nowFn  func() time.Time
	closed bool
}

// Open opens or creates the cache database in dir.
func Open(dir string) (*Store, error) {
	// badger's own logger is too chatty; we log open/close ourselves
	opts := badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	logging.Info().Str("dir", dir).Msg("Cache database opened")

	return &Store{
		db:    db,
		hot:   newLRUCache(4096),
		nowFn: time.Now,
	}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	return nil
}

// Get unmarshals the cached payload for key into value. Returns
// ErrMissing when the key is absent or the entry has expired.
func (s *Store) Get(key string, value interface{}) error {
	raw, err := s.getRaw(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) getRaw(key string) ([]byte, error) {
	now := s.nowFn()

	if raw, ok := s.hot.Get(key); ok {
		var env envelope
		if err := json.Unmarshal(raw, &env); err == nil && !env.expired(now) {
			metrics.CacheHits.Inc()
			return env.Payload, nil
		}
		s.hot.Remove(key)
	}

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var env envelope
			if err := json.Unmarshal(val, &env); err != nil {
				return fmt.Errorf("corrupt cache entry %q: %w", key, err)
			}
			if env.expired(now) {
				return badger.ErrKeyNotFound
			}
			payload = append([]byte(nil), env.Payload...)
			s.hot.Add(key, append([]byte(nil), val...))
			return nil
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			metrics.CacheMisses.Inc()
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}

	metrics.CacheHits.Inc()
	return payload, nil
}

// Put stores value under key with the given TTL, replacing any existing
// entry. Badger discards the record after the TTL; the envelope records
// the same deadline for the read-side check.
func (s *Store) Put(key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	env := envelope{
		Payload:   payload,
		FetchedAt: s.nowFn(),
		TTL:       ttl,
	}
	raw, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to encode cache envelope %q: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), raw).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}

	s.hot.Add(key, raw)
	return nil
}

// Invalidate removes key from the cache. Removing an absent key is not
// an error.
func (s *Store) Invalidate(key string) error {
	s.hot.Remove(key)
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry %q: %w", key, err)
	}
	return nil
}

// GetOrFetch returns the cached payload for key, or runs fetch to
// produce it and stores the result under the given TTL. Concurrent
// callers for the same key share one fetch.
//
// The returned bytes are the JSON-encoded payload; callers unmarshal
// into their own type.
func (s *Store) GetOrFetch(key string, ttl time.Duration, fetch func() (interface{}, error)) ([]byte, error) {
	if raw, err := s.getRaw(key); err == nil {
		return raw, nil
	} else if err != ErrMissing {
		return nil, err
	}

	raw, err, shared := s.group.Do(key, func() (interface{}, error) {
		// Re-check under the group lock: a concurrent caller may have
		// already stored the entry.
		if raw, err := s.getRaw(key); err == nil {
			return raw, nil
		}

		value, err := fetch()
		if err != nil {
			return nil, err
		}
		if err := s.Put(key, value, ttl); err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.CacheFetchesShared.Inc()
	}
	return raw.([]byte), nil
}
