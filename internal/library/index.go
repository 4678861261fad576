// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package library holds the in-memory track index the matcher resolves
// against. An Index is immutable once built; refreshes construct a new Index
// and atomically swap it into the Store so in-flight lookups keep the
// snapshot they started with.
package library

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tracord/tracord/internal/metrics"
)

// TrackRecord is one library entry, decoded from the JSON snapshot produced
// by the external collection conversion job. Records are never mutated by
// the pipeline.
type TrackRecord struct {
	Artist        string  `json:"artist"`
	Title         string  `json:"title"`
	Album         string  `json:"album"`
	Genre         string  `json:"genre"`
	BPM           float64 `json:"bpm,omitempty"`
	MusicalKey    *int    `json:"musical_key,omitempty"`
	AudioFilePath string  `json:"audio_file_path,omitempty"`
}

// Index is a read-only collection of TrackRecord with point lookups by
// normalized (artist, title).
type Index struct {
	tracks   []TrackRecord
	byKey    map[string]int
	loadedAt time.Time
}

// NewIndex builds an index over tracks. When duplicate normalized pairs
// exist, the first record wins; duplicates are a data-quality issue in the
// snapshot, not something the index arbitrates.
func NewIndex(tracks []TrackRecord) *Index {
	byKey := make(map[string]int, len(tracks))
	for i, t := range tracks {
		key := lookupKey(t.Artist, t.Title)
		if _, exists := byKey[key]; !exists {
			byKey[key] = i
		}
	}
	return &Index{
		tracks:   tracks,
		byKey:    byKey,
		loadedAt: time.Now().UTC(),
	}
}

// Load parses the JSON snapshot at path into a fully-built Index.
// A missing or malformed file is an error; callers treat that as "empty
// index", not fatal.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library snapshot: %w", err)
	}

	var tracks []TrackRecord
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("parse library snapshot %s: %w", path, err)
	}

	return NewIndex(tracks), nil
}

// Lookup resolves a track by normalized (artist, title). Matching is exact
// on the normalized pair; there is no fuzzy or partial matching here.
func (ix *Index) Lookup(artist, title string) (TrackRecord, bool) {
	if ix == nil {
		return TrackRecord{}, false
	}
	i, ok := ix.byKey[lookupKey(artist, title)]
	if !ok {
		return TrackRecord{}, false
	}
	return ix.tracks[i], true
}

// Len reports the number of records in the index. Nil-safe.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.tracks)
}

// LoadedAt reports when the index was built. Zero for a nil index.
func (ix *Index) LoadedAt() time.Time {
	if ix == nil {
		return time.Time{}
	}
	return ix.loadedAt
}

// observeSize publishes the index size metric.
func (ix *Index) observeSize() {
	metrics.LibraryTracks.Set(float64(ix.Len()))
}
