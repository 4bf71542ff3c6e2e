// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package realdebrid

import "time"

// Torrent statuses reported by the /torrents endpoints.
const (
	StatusDownloaded            = "downloaded"
	StatusDownloading           = "downloading"
	StatusError                 = "error"
	StatusMagnetError           = "magnet_error"
	StatusVirus                 = "virus"
	StatusDead                  = "dead"
	StatusWaitingFilesSelection = "waiting_files_selection"
	StatusMagnetConversion      = "magnet_conversion"
	StatusQueued                = "queued"
	StatusUploading             = "uploading"
	StatusCompressing           = "compressing"
)

// Torrent is a single entry from GET /torrents.
type Torrent struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Hash     string    `json:"hash"`
	Bytes    int64     `json:"bytes"`
	Host     string    `json:"host"`
	Split    int       `json:"split"`
	Progress float64   `json:"progress"`
	Status   string    `json:"status"`
	Added    time.Time `json:"added"`
	Links    []string  `json:"links"`
	Ended    time.Time `json:"ended,omitempty"`
	Speed    int64     `json:"speed,omitempty"`
	Seeders  int       `json:"seeders,omitempty"`
}

// Downloaded reports whether the torrent finished and has restricted
// links available for unrestriction.
func (t *Torrent) Downloaded() bool {
	return t.Status == StatusDownloaded && len(t.Links) > 0
}

// Dead reports whether the torrent is in a terminal failure state and a
// reinsertion attempt is the only way to recover it.
func (t *Torrent) Dead() bool {
	switch t.Status {
	case StatusError, StatusMagnetError, StatusVirus, StatusDead:
		return true
	}
	return false
}

// TorrentFile describes one file inside a torrent, from GET /torrents/info/{id}.
type TorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// TorrentInfo is the detailed view from GET /torrents/info/{id}.
type TorrentInfo struct {
	ID               string        `json:"id"`
	Filename         string        `json:"filename"`
	OriginalFilename string        `json:"original_filename"`
	Hash             string        `json:"hash"`
	Bytes            int64         `json:"bytes"`
	OriginalBytes    int64         `json:"original_bytes"`
	Host             string        `json:"host"`
	Split            int           `json:"split"`
	Progress         float64       `json:"progress"`
	Status           string        `json:"status"`
	Added            time.Time     `json:"added"`
	Files            []TorrentFile `json:"files"`
	Links            []string      `json:"links"`
	Ended            time.Time     `json:"ended,omitempty"`
}

// Download is a single entry from GET /downloads: a historical
// unrestriction record mapping a restricted link to a direct URL.
type Download struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	Filesize   int64     `json:"filesize"`
	Link       string    `json:"link"`
	Host       string    `json:"host"`
	Chunks     int       `json:"chunks"`
	Download   string    `json:"download"`
	Streamable int       `json:"streamable"`
	Generated  time.Time `json:"generated"`
}

// AddMagnetResult is the response from POST /torrents/addMagnet.
type AddMagnetResult struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}
