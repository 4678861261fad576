// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package matcher

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tracord/tracord/internal/library"
	"github.com/tracord/tracord/internal/logging"
)

//nolint:gochecknoinits // init ensures quiet logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

// memorySink captures unmatched pairs in memory for assertions.
type memorySink struct {
	mu      sync.Mutex
	entries []string
	fail    error
}

func (s *memorySink) RecordUnmatched(artist, title string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries = append(s.entries, artist+"/"+title)
	return nil
}

func newStoreWith(t *testing.T, snapshot string) *library.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collection.json")
	if err := os.WriteFile(path, []byte(snapshot), 0o644); err != nil {
		t.Fatal(err)
	}
	store := library.NewStore(path)
	if err := store.Reload(); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestMatchHitCopiesAllFields(t *testing.T) {
	store := newStoreWith(t, `[{"artist":"Daft Punk","title":"One More Time","album":"Discovery","genre":"House","bpm":123,"musical_key":21,"audio_file_path":"/music/omt.mp3"}]`)
	sink := &memorySink{}
	m := New(store, sink)

	ev := m.Match("daft punk", "ONE MORE TIME")

	if !ev.Matched {
		t.Fatal("expected matched event")
	}
	if ev.Artist != "Daft Punk" || ev.Title != "One More Time" {
		t.Errorf("event carries %q/%q, want library casing", ev.Artist, ev.Title)
	}
	if ev.Album != "Discovery" || ev.Genre != "House" || ev.BPM != 123 {
		t.Errorf("album/genre/bpm not copied: %+v", ev)
	}
	if ev.MusicalKey == nil || *ev.MusicalKey != 21 {
		t.Errorf("MusicalKey = %v, want 21", ev.MusicalKey)
	}
	if ev.AudioFilePath != "/music/omt.mp3" {
		t.Errorf("AudioFilePath = %q", ev.AudioFilePath)
	}
	if len(sink.entries) != 0 {
		t.Errorf("hit must not reach the sink: %v", sink.entries)
	}
	if ev.EventID == "" || ev.Timestamp.IsZero() {
		t.Error("event must carry ID and timestamp")
	}
}

func TestMatchMissKeepsRawPairAndLogsToSink(t *testing.T) {
	store := newStoreWith(t, `[{"artist":"Daft Punk","title":"One More Time"}]`)
	sink := &memorySink{}
	m := New(store, sink)

	ev := m.Match("Unknown", "Mystery Track")

	if ev.Matched {
		t.Fatal("expected miss")
	}
	if ev.Artist != "Unknown" || ev.Title != "Mystery Track" {
		t.Errorf("miss must carry raw pair, got %q/%q", ev.Artist, ev.Title)
	}
	if ev.Album != "" || ev.Genre != "" || ev.BPM != 0 || ev.MusicalKey != nil {
		t.Errorf("miss must leave remaining fields empty: %+v", ev)
	}
	if len(sink.entries) != 1 || sink.entries[0] != "Unknown/Mystery Track" {
		t.Errorf("sink entries = %v", sink.entries)
	}
}

func TestMatchTotalWhenSinkFails(t *testing.T) {
	store := newStoreWith(t, `[]`)
	sink := &memorySink{fail: errors.New("disk full")}
	m := New(store, sink)

	ev := m.Match("A", "B")
	if ev == nil || ev.Matched {
		t.Fatal("sink failure must not abort the match")
	}
}

func TestMatchDegradesWhenIndexUnavailable(t *testing.T) {
	store := library.NewStore("/nonexistent/collection.json")
	m := New(store, nil)

	ev := m.Match("A", "B")
	if ev == nil || ev.Matched {
		t.Fatal("unavailable index must degrade to miss, not fail")
	}
}

func TestFileSinkAppendsTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unmatched.log")
	sink := NewFileSink(path)

	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if err := sink.RecordUnmatched("Unknown", "Mystery Track", at); err != nil {
		t.Fatal(err)
	}
	if err := sink.RecordUnmatched("A", "B", at); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "2026-08-31T12:00:00Z\tUnknown\tMystery Track" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestFileSinkUnwritablePathReturnsError(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "no", "such", "dir", "u.log"))
	if err := sink.RecordUnmatched("A", "B", time.Now()); err == nil {
		t.Error("expected error for unwritable path")
	}
}
