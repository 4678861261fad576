// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package library

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tracord/tracord/internal/logging"
)

// defaultDebounce coalesces the burst of write events the conversion job
// produces while rewriting the snapshot.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store whenever its snapshot file changes on disk.
// It watches the containing directory rather than the file itself because
// the conversion job replaces the snapshot via rename, which retargets a
// file-level watch.
//
// Watcher implements suture.Service via Serve.
type Watcher struct {
	store    *Store
	debounce time.Duration
}

// NewWatcher creates a Watcher for store. A zero debounce selects the
// default.
func NewWatcher(store *Store, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{store: store, debounce: debounce}
}

// Serve watches the snapshot until ctx is canceled. A failed reload keeps
// the previous index and is logged at warn; the watcher keeps running.
func (w *Watcher) Serve(ctx context.Context) error {
	logger := logging.With().Str("component", "library-watcher").Logger()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create snapshot watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.store.Path())
	base := filepath.Base(w.store.Path())
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info().Str("dir", dir).Str("file", base).Msg("watching library snapshot")

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("snapshot watcher closed")
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("snapshot watcher closed")
			}
			logger.Warn().Err(err).Msg("snapshot watch error")

		case <-fire:
			timer = nil
			fire = nil
			if err := w.store.Reload(); err != nil {
				logger.Warn().Err(err).Msg("snapshot reload failed, keeping previous index")
			}
		}
	}
}

// String names the service in supervisor logs.
func (w *Watcher) String() string { return "library-watcher" }
