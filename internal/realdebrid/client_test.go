// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package realdebrid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robofuse/robofuse/internal/config"
	"github.com/robofuse/robofuse/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.RealDebridConfig{
		Token:          "test-token",
		BaseURL:        srv.URL,
		RetryAttempts:  2,
		RetryBaseDelay: 10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	return NewClient(cfg, ratelimit.New(600, 600)), srv
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))

	if _, err := client.ListTorrents(context.Background(), 1, 100); err != nil {
		t.Fatalf("ListTorrents: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestListAllTorrentsPaginates(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			// Full page forces a second request.
			fmt.Fprint(w, `[`)
			for i := 0; i < 100; i++ {
				if i > 0 {
					fmt.Fprint(w, `,`)
				}
				fmt.Fprintf(w, `{"id":"T%d","status":"downloaded","links":["https://rd.example/l%d"]}`, i, i)
			}
			fmt.Fprint(w, `]`)
		case "2":
			fmt.Fprint(w, `[{"id":"T100","status":"downloaded","links":["https://rd.example/l100"]}]`)
		default:
			t.Errorf("unexpected page %q", page)
			fmt.Fprint(w, `[]`)
		}
	}))

	torrents, err := client.ListAllTorrents(context.Background())
	if err != nil {
		t.Fatalf("ListAllTorrents: %v", err)
	}
	if len(torrents) != 101 {
		t.Fatalf("got %d torrents, want 101", len(torrents))
	}
	if torrents[100].ID != "T100" {
		t.Fatalf("last torrent ID = %q, want T100", torrents[100].ID)
	}
}

func TestClientRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"D1","link":"https://host/abc","download":"https://direct/abc","generated":"2026-08-01T00:00:00Z"}`)
	}))

	dl, err := client.UnrestrictLink(context.Background(), "https://host/abc")
	if err != nil {
		t.Fatalf("UnrestrictLink: %v", err)
	}
	if dl.Download != "https://direct/abc" {
		t.Fatalf("direct URL = %q", dl.Download)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server called %d times, want 2", n)
	}
}

func TestClientRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[]`)
	}))

	if _, err := client.ListTorrents(context.Background(), 1, 100); err != nil {
		t.Fatalf("ListTorrents: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server called %d times, want a retry after the 500", n)
	}
}

func TestClientRetriesTransportFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection mid-request to force a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.RealDebridConfig{
		Token:          "test-token",
		BaseURL:        srv.URL,
		RetryAttempts:  2,
		RetryBaseDelay: 10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	client := NewClient(cfg, ratelimit.New(600, 600))

	if _, err := client.ListTorrents(context.Background(), 1, 100); err != nil {
		t.Fatalf("ListTorrents: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("server called %d times, want a retry after the dropped connection", n)
	}
}

func TestClient429ExhaustsRetries(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.ListTorrents(context.Background(), 1, 100)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !IsTransient(err) {
		t.Fatalf("exhausted 429 should classify transient, got %v", err)
	}
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"auth", http.StatusUnauthorized, `{"error":"bad_token","error_code":8}`, IsAuth},
		{"forbidden", http.StatusForbidden, `{"error":"account_locked","error_code":9}`, IsAuth},
		{"not_found", http.StatusNotFound, `{"error":"unknown_resource","error_code":7}`, IsNotFound},
		{"invalid_state", http.StatusBadRequest, `{"error":"bad_request","error_code":1}`, IsInvalidState},
		{"server_error", http.StatusServiceUnavailable, `{"error":"hoster_unavailable","error_code":24}`, IsTransient},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))

			_, err := client.UnrestrictLink(context.Background(), "https://host/x")
			if err == nil {
				t.Fatal("expected error")
			}
			if !tc.check(err) {
				t.Fatalf("classification failed for %v", err)
			}
		})
	}
}

func TestSelectFilesPostsForm(t *testing.T) {
	var gotFiles, gotPath, gotMethod string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotFiles = r.PostFormValue("files")
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.SelectFiles(context.Background(), "T1", "all"); err != nil {
		t.Fatalf("SelectFiles: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/torrents/selectFiles/T1" {
		t.Fatalf("request was %s %s", gotMethod, gotPath)
	}
	if gotFiles != "all" {
		t.Fatalf("files = %q, want all", gotFiles)
	}
}

func TestDeleteTorrentNoContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.DeleteTorrent(context.Background(), "T1"); err != nil {
		t.Fatalf("DeleteTorrent: %v", err)
	}
}

func TestTorrentDownloadedAndDead(t *testing.T) {
	downloaded := Torrent{Status: StatusDownloaded, Links: []string{"https://rd.example/l1"}}
	if !downloaded.Downloaded() {
		t.Error("downloaded torrent with links should report Downloaded")
	}

	noLinks := Torrent{Status: StatusDownloaded}
	if noLinks.Downloaded() {
		t.Error("torrent without links should not report Downloaded")
	}

	for _, status := range []string{StatusError, StatusMagnetError, StatusVirus, StatusDead} {
		tr := Torrent{Status: status}
		if !tr.Dead() {
			t.Errorf("status %q should report Dead", status)
		}
	}
	if (&Torrent{Status: StatusDownloading}).Dead() {
		t.Error("downloading torrent should not report Dead")
	}
}
