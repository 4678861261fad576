// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package library

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/metrics"
)

// Store holds the current Index behind an atomic pointer. The matcher reads
// through the Store; reloads swap the pointer wholesale so a reader never
// observes a half-built index. A Store whose snapshot has never loaded
// behaves as an empty index: every lookup misses.
type Store struct {
	path   string
	ptr    atomic.Pointer[Index]
	logger zerolog.Logger
}

// NewStore creates a Store for the snapshot at path without loading it.
// Call Reload to populate.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: logging.With().Str("component", "library").Str("path", path).Logger(),
	}
}

// Path returns the snapshot path this store reloads from.
func (s *Store) Path() string { return s.path }

// Reload builds a fresh Index from the snapshot file and swaps it in.
// On failure the previous index (possibly none) stays current and the error
// is returned for the caller to log; lookups keep working either way.
func (s *Store) Reload() error {
	ix, err := Load(s.path)
	if err != nil {
		metrics.LibraryReloads.WithLabelValues("error").Inc()
		return err
	}

	s.ptr.Store(ix)
	ix.observeSize()
	metrics.LibraryReloads.WithLabelValues("ok").Inc()
	s.logger.Info().Int("tracks", ix.Len()).Msg("library index loaded")
	return nil
}

// Current returns the index snapshot in effect right now. May be nil when
// no snapshot has ever loaded; Index methods are nil-safe.
func (s *Store) Current() *Index {
	return s.ptr.Load()
}

// Lookup resolves (artist, title) against the current index snapshot.
func (s *Store) Lookup(artist, title string) (TrackRecord, bool) {
	return s.Current().Lookup(artist, title)
}
