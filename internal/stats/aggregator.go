// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package stats persists play and request counters across sessions. The
// aggregator is the reference downstream consumer of the event bus: it
// subscribes to counter-increment signals, applies them to an on-disk JSON
// file, and announces every change on the bus so displays can refresh.
package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tracord/tracord/internal/bus"
	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/models"
)

const (
	totalPrefix   = "total_"
	sessionPrefix = "session_"
)

// knownStats seeds the counters file so every expected key is present even
// before its first increment.
var knownStats = []string{
	models.StatSongPlays,
	models.StatSongSearches,
	models.StatSongRequests,
}

// Aggregator maintains the counters file and implements suture.Service.
// Each named counter is tracked twice: a total that survives restarts and a
// session value that resets every service start.
type Aggregator struct {
	path   string
	bus    *bus.Bus
	logger zerolog.Logger

	mu       sync.Mutex
	counters map[string]int64
}

// New creates an Aggregator over the given counters file. Nothing is loaded
// until Serve runs.
func New(path string, b *bus.Bus) *Aggregator {
	return &Aggregator{
		path:     path,
		bus:      b,
		logger:   logging.With().Str("component", "stats").Logger(),
		counters: defaultCounters(),
	}
}

// String names the service in supervisor logs.
func (a *Aggregator) String() string { return "stats-aggregator" }

// Serve loads persisted counters, starts a fresh session, and applies
// increment signals until ctx is canceled. Counters are flushed once more
// on the way out.
func (a *Aggregator) Serve(ctx context.Context) error {
	a.load()
	a.ResetSession()

	sub := a.bus.Subscribe(models.TopicStatIncrement, a.onIncrement)
	defer a.bus.Unsubscribe(sub)

	<-ctx.Done()

	a.mu.Lock()
	a.saveLocked()
	a.mu.Unlock()
	a.logger.Info().Msg("stats aggregator stopped")
	return ctx.Err()
}

func (a *Aggregator) onIncrement(payload any) {
	inc, ok := payload.(*models.StatIncrement)
	if !ok {
		a.logger.Warn().Str("type", fmt.Sprintf("%T", payload)).Msg("unexpected increment payload")
		return
	}
	a.Increment(inc.Name, int64(inc.Amount))
}

// Increment adds amount to both the total and session counter for name,
// persists, and publishes the updated snapshot.
func (a *Aggregator) Increment(name string, amount int64) {
	if amount == 0 {
		amount = 1
	}

	a.mu.Lock()
	a.counters[totalPrefix+name] += amount
	a.counters[sessionPrefix+name] += amount
	a.saveLocked()
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.bus.Publish(models.TopicStatsUpdated, snap)
}

// Get returns the current value of one counter key, such as
// "total_song_plays".
func (a *Aggregator) Get(key string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[key]
}

// Snapshot returns a copy of all counters.
func (a *Aggregator) Snapshot() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// ResetSession zeroes every session counter, persists, and publishes the
// updated snapshot.
func (a *Aggregator) ResetSession() {
	a.mu.Lock()
	for key, old := range a.counters {
		if strings.HasPrefix(key, sessionPrefix) && old != 0 {
			a.counters[key] = 0
			a.logger.Info().Str("counter", key).Int64("was", old).Msg("session counter reset")
		}
	}
	a.saveLocked()
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.bus.Publish(models.TopicStatsUpdated, snap)
}

// ResetGlobal discards all counters, persists defaults, and publishes the
// updated snapshot.
func (a *Aggregator) ResetGlobal() {
	a.mu.Lock()
	a.counters = defaultCounters()
	a.saveLocked()
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.bus.Publish(models.TopicStatsUpdated, snap)
}

// load merges persisted counters over the defaults. A missing or corrupt
// file is not fatal: the aggregator starts from defaults and the next save
// rewrites the file.
func (a *Aggregator) load() {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn().Err(err).Str("path", a.path).Msg("counters file unreadable, starting fresh")
		}
		return
	}

	var persisted map[string]int64
	if err := json.Unmarshal(data, &persisted); err != nil {
		a.logger.Warn().Err(err).Str("path", a.path).Msg("counters file corrupt, starting fresh")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for key, v := range persisted {
		a.counters[key] = v
	}
}

// saveLocked writes the counters file atomically via a temp file followed
// by rename, so a crash mid-write never leaves a torn file. Caller holds
// a.mu. Write failures are logged and swallowed: counters still live in
// memory and the next save retries.
func (a *Aggregator) saveLocked() {
	data, err := json.MarshalIndent(a.counters, "", "  ")
	if err != nil {
		a.logger.Warn().Err(err).Msg("marshal counters failed")
		return
	}

	dir := filepath.Dir(a.path)
	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		a.logger.Warn().Err(err).Str("dir", dir).Msg("create temp counters file failed")
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		a.logger.Warn().Err(err).Msg("write counters failed")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		a.logger.Warn().Err(err).Msg("close counters file failed")
		return
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		a.logger.Warn().Err(err).Str("path", a.path).Msg("replace counters file failed")
	}
}

func (a *Aggregator) snapshotLocked() map[string]int64 {
	snap := make(map[string]int64, len(a.counters))
	for k, v := range a.counters {
		snap[k] = v
	}
	return snap
}

func defaultCounters() map[string]int64 {
	counters := make(map[string]int64, 2*len(knownStats))
	for _, name := range knownStats {
		counters[totalPrefix+name] = 0
		counters[sessionPrefix+name] = 0
	}
	return counters
}
