// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

/*
Package library maintains the on-disk .strm pointer tree.

Each remote file maps to <output_dir>/<torrent name>/<file name>.strm, a
one-line text file holding the direct URL. Writes go through a temp file
followed by rename so a crash never leaves a half-written pointer, and a
content compare first makes repeated passes cheap: an unchanged URL is a
no-op. Striped per-path locks keep concurrent workers off the same file.
*/
package library

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robofuse/robofuse/internal/logging"
	"github.com/robofuse/robofuse/internal/metrics"
)

// Extension is the pointer file suffix.
const Extension = ".strm"

// lockStripes bounds lock memory regardless of library size.
const lockStripes = 64

// Op is the outcome of a write.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpSkipped Op = "skipped"
)

// Writer owns the library tree under a single output root.
type Writer struct {
	root  string
	locks [lockStripes]sync.Mutex
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Root returns the library root directory.
func (w *Writer) Root() string {
	return w.root
}

// Sanitize strips path-hostile characters from a name, keeping letters,
// digits, spaces, dots, underscores, and hyphens. Empty or dot-only
// results fall back to a placeholder so no name can escape the root or
// collide with directory navigation.
func Sanitize(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '.', c == '_', c == '-':
			b.WriteRune(c)
		}
	}
	s := strings.TrimRight(b.String(), " ")
	if s == "" || strings.Trim(s, ".") == "" {
		return "unnamed"
	}
	return s
}

// TargetPath returns the absolute pointer path for a file of a torrent.
func (w *Writer) TargetPath(torrentName, fileName string) string {
	base := Sanitize(fileName)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(w.root, Sanitize(torrentName), base+Extension)
}

func (w *Writer) lockFor(path string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return &w.locks[h.Sum32()%lockStripes]
}

// Write stores the URL at path, creating parent directories as needed.
// An existing pointer with identical content is left untouched.
func (w *Writer) Write(path, url string) (Op, error) {
	mu := w.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	content := url + "\n"

	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) == content {
			metrics.LibraryFiles.WithLabelValues(string(OpSkipped)).Inc()
			return OpSkipped, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read existing pointer %s: %w", path, err)
	}

	op := OpUpdated
	if _, err := os.Stat(path); os.IsNotExist(err) {
		op = OpCreated
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".strm-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write pointer %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to rename pointer into place %s: %w", path, err)
	}

	metrics.LibraryFiles.WithLabelValues(string(op)).Inc()
	logging.Debug().Str("path", path).Str("op", string(op)).Msg("Pointer written")
	return op, nil
}

// Read returns the URL stored at a pointer path.
func (w *Writer) Read(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read pointer %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// List walks the library and returns every pointer path.
func (w *Writer) List() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == w.root {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, Extension) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk library: %w", err)
	}
	return paths, nil
}

// RemoveOrphans deletes every pointer not present in expected and prunes
// directories emptied by the removals. Returns the number of pointers
// removed.
func (w *Writer) RemoveOrphans(expected map[string]struct{}) (int, error) {
	paths, err := w.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths {
		if _, ok := expected[path]; ok {
			continue
		}
		mu := w.lockFor(path)
		mu.Lock()
		err := os.Remove(path)
		mu.Unlock()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("failed to remove orphan %s: %w", path, err)
		}
		removed++
		metrics.LibraryFiles.WithLabelValues("removed").Inc()
		logging.Info().Str("path", path).Msg("Orphaned pointer removed")
	}

	if removed > 0 {
		if err := w.pruneEmptyDirs(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// pruneEmptyDirs removes empty directories under the root, deepest
// first. The root itself stays.
func (w *Writer) pruneEmptyDirs() error {
	var dirs []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != w.root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan for empty directories: %w", err)
	}

	// Deepest first so nested empties cascade up.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read directory %s: %w", dirs[i], err)
		}
		if len(entries) == 0 {
			if err := os.Remove(dirs[i]); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to prune directory %s: %w", dirs[i], err)
			}
		}
	}
	return nil
}
