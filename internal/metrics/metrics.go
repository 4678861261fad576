// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package metrics defines the Prometheus collectors for the ingestion
// pipeline. Collectors are registered with the default registry via promauto
// and exposed by the overlay server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast listener metrics
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_source_connections_total",
			Help: "Total number of inbound source connections by handshake outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected"
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracord_source_connections_active",
			Help: "Current number of active source connections",
		},
	)

	ConnectionAborts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_source_connection_aborts_total",
			Help: "Total number of source connections torn down by cause",
		},
		[]string{"cause"}, // "peer_closed", "bad_page", "shutdown", "read_error"
	)

	// Container decoder metrics
	PagesDecoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracord_ogg_pages_total",
			Help: "Total number of Ogg pages decoded",
		},
	)

	PacketsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_ogg_packets_total",
			Help: "Total number of Ogg packets assembled by kind",
		},
		[]string{"kind"}, // "comment", "other"
	)

	MetadataBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_metadata_blocks_total",
			Help: "Total number of comment blocks by disposition",
		},
		[]string{"disposition"}, // "surfaced", "suppressed"
	)

	// Matcher metrics
	TrackMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_track_matches_total",
			Help: "Total number of match attempts by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// Library index metrics
	LibraryTracks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracord_library_tracks",
			Help: "Number of tracks in the current library index",
		},
	)

	LibraryReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_library_reloads_total",
			Help: "Total number of library snapshot reloads by status",
		},
		[]string{"status"}, // "ok", "error"
	)

	// Event bus metrics
	BusPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_bus_publishes_total",
			Help: "Total number of events published by topic",
		},
		[]string{"topic"},
	)

	BusHandlerPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracord_bus_handler_panics_total",
			Help: "Total number of recovered subscriber panics by topic",
		},
		[]string{"topic"},
	)

	// Overlay metrics
	OverlayClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracord_overlay_clients",
			Help: "Current number of connected overlay websocket clients",
		},
	)
)
