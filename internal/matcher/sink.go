// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package matcher

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// UnmatchedSink receives (artist, title) pairs that could not be resolved
// against the library index. It is a capability injected into the Matcher
// so tests can assert on what would have been logged without touching the
// filesystem.
type UnmatchedSink interface {
	RecordUnmatched(artist, title string, at time.Time) error
}

// FileSink appends unmatched pairs to a text file, one timestamped line per
// miss, for offline library curation.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a FileSink writing to path. The file is created on
// first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// RecordUnmatched appends one line: RFC3339 timestamp, artist, title,
// tab-separated.
func (s *FileSink) RecordUnmatched(artist, title string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open unmatched log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\t%s\t%s\n", at.UTC().Format(time.RFC3339), artist, title)
	if err != nil {
		return fmt.Errorf("append unmatched entry: %w", err)
	}
	return nil
}
