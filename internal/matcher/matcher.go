// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package matcher resolves raw (artist, title) pairs decoded from the
// broadcast stream into TrackMatchEvent payloads using the library index.
package matcher

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tracord/tracord/internal/library"
	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/metrics"
	"github.com/tracord/tracord/internal/models"
)

// Matcher turns decoded metadata into published event payloads. Match is
// total: every input yields an event, misses included.
type Matcher struct {
	store  *library.Store
	sink   UnmatchedSink
	logger zerolog.Logger
}

// New creates a Matcher reading through store. sink receives unmatched
// pairs for offline library curation and may be nil to disable the side
// channel.
func New(store *library.Store, sink UnmatchedSink) *Matcher {
	return &Matcher{
		store:  store,
		sink:   sink,
		logger: logging.With().Str("component", "matcher").Logger(),
	}
}

// Match looks up the normalized (artist, title) pair in the current index
// snapshot. On a hit the event carries every field of the library record
// and Matched=true. On a miss the event carries only the raw artist/title
// with Matched=false, and the pair is appended best-effort to the
// diagnostic sink; a sink failure never aborts the match.
func (m *Matcher) Match(artist, title string) *models.TrackMatchEvent {
	ev := models.NewTrackMatchEvent(artist, title)

	rec, ok := m.store.Lookup(artist, title)
	if !ok {
		metrics.TrackMatches.WithLabelValues("miss").Inc()
		m.recordUnmatched(artist, title, ev.Timestamp)
		return ev
	}

	ev.Artist = rec.Artist
	ev.Title = rec.Title
	ev.Album = rec.Album
	ev.Genre = rec.Genre
	ev.BPM = rec.BPM
	ev.MusicalKey = rec.MusicalKey
	ev.AudioFilePath = rec.AudioFilePath
	ev.Matched = true

	metrics.TrackMatches.WithLabelValues("hit").Inc()
	return ev
}

func (m *Matcher) recordUnmatched(artist, title string, at time.Time) {
	if m.sink == nil {
		return
	}
	if err := m.sink.RecordUnmatched(artist, title, at); err != nil {
		m.logger.Warn().Err(err).
			Str("artist", artist).
			Str("title", title).
			Msg("diagnostic sink write failed")
	}
}
