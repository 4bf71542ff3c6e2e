// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

// Package dedup selects canonical download records from the account's
// download history. Real-Debrid appends a new record every time a link
// is unrestricted, so one restricted link accumulates many records over
// time; the engine only ever wants the freshest usable one per link.
package dedup

import (
	"github.com/robofuse/robofuse/internal/realdebrid"
)

// usable reports whether a record can serve as a canonical mapping. A
// record with no source link or no direct URL maps nothing.
func usable(d *realdebrid.Download) bool {
	return d.Link != "" && d.Download != ""
}

// newer reports whether candidate should replace current as the
// canonical record for a link. Fresher Generated wins; on an exact
// timestamp tie the lexically higher ID wins, which keeps the choice
// deterministic across passes.
func newer(candidate, current *realdebrid.Download) bool {
	if !candidate.Generated.Equal(current.Generated) {
		return candidate.Generated.After(current.Generated)
	}
	return candidate.ID > current.ID
}

// Index maps each restricted link to its canonical download record.
type Index struct {
	byLink map[string]realdebrid.Download
}

// Build constructs an Index from a download history listing. Unusable
// records are skipped; duplicate records for the same link collapse to
// the newest.
func Build(downloads []realdebrid.Download) *Index {
	byLink := make(map[string]realdebrid.Download, len(downloads))
	for i := range downloads {
		d := &downloads[i]
		if !usable(d) {
			continue
		}
		current, exists := byLink[d.Link]
		if !exists || newer(d, &current) {
			byLink[d.Link] = *d
		}
	}
	return &Index{byLink: byLink}
}

// Lookup returns the canonical record for a restricted link.
func (ix *Index) Lookup(link string) (realdebrid.Download, bool) {
	d, ok := ix.byLink[link]
	return d, ok
}

// Len returns the number of distinct links in the index.
func (ix *Index) Len() int {
	return len(ix.byLink)
}

// Superseded returns the IDs of records that lost to a newer record for
// the same link. These are safe to delete remotely; the canonical
// records stay untouched.
func Superseded(downloads []realdebrid.Download) []string {
	ix := Build(downloads)
	var ids []string
	for i := range downloads {
		d := &downloads[i]
		if !usable(d) {
			continue
		}
		if canonical, ok := ix.byLink[d.Link]; ok && canonical.ID != d.ID {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
