// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package main is the entry point for the Tracord server.
//
// Tracord receives the live broadcast stream from DJ software over an
// Icecast-style SOURCE connection, extracts track metadata from the
// container stream, resolves it against the track library, and fans the
// resulting events out to consumers: persisted play statistics and a
// browser overlay with a websocket feed.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered load (defaults, config.yaml, env)
//  2. Logging: zerolog, level and format from config
//  3. Library: snapshot load (an unreadable snapshot degrades to misses)
//  4. Event bus, matcher, and unmatched-track diagnostic sink
//  5. Consumers: stats aggregator and overlay (when enabled)
//  6. Broadcast listener
//  7. Supervisor tree, then signal-driven graceful shutdown
//
// # Configuration
//
// Settings come from config.yaml (or CONFIG_PATH) and environment
// variables such as LISTENER_PORT, LIBRARY_PATH, OVERLAY_ENABLED, and
// LOG_LEVEL. See internal/config for the full list.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tracord/tracord/internal/bus"
	"github.com/tracord/tracord/internal/config"
	"github.com/tracord/tracord/internal/library"
	"github.com/tracord/tracord/internal/listener"
	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/matcher"
	"github.com/tracord/tracord/internal/overlay"
	"github.com/tracord/tracord/internal/stats"
	"github.com/tracord/tracord/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration load failed")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("starting tracord")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Library index. A missing or corrupt snapshot is not fatal: the
	// matcher degrades to misses until a reload succeeds.
	store := library.NewStore(cfg.Library.Path)
	if err := store.Reload(); err != nil {
		logging.Warn().Err(err).Str("path", cfg.Library.Path).Msg("library snapshot unavailable, all lookups will miss")
	} else {
		logging.Info().Int("tracks", store.Current().Len()).Msg("library loaded")
	}

	b := bus.New()
	m := matcher.New(store, matcher.NewFileSink(cfg.Diagnostics.UnmatchedLog))

	slogger := slog.New(logging.NewSlogHandler())
	tree := supervisor.NewTree(slogger, supervisor.DefaultTreeConfig())

	// Ingest layer
	tree.AddIngestService(listener.New(listener.Config{
		Host: cfg.Listener.Host,
		Port: cfg.Listener.Port,
	}, m, b))
	if cfg.Library.Watch {
		tree.AddIngestService(library.NewWatcher(store, cfg.Library.Debounce))
	}

	// Consumer layer
	tree.AddConsumerService(stats.New(cfg.Stats.File, b))
	if cfg.Overlay.Enabled {
		hub := overlay.NewHub(b)
		tree.AddConsumerService(hub)
		tree.AddAPIService(overlay.NewServer(overlay.Config{
			Host:        cfg.Overlay.Host,
			Port:        cfg.Overlay.Port,
			CORSOrigins: cfg.Overlay.CORSOrigins,
		}, hub, b))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("stopped")
}
