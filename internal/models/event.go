// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package models holds the event payloads and topic names shared between the
// ingestion pipeline and its consumers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Bus topics. Per-topic publish order from a single goroutine is preserved
// by the bus; no ordering is guaranteed between topics.
const (
	// TopicTrackPlayed carries a *TrackMatchEvent for every decoded track.
	TopicTrackPlayed = "track_played"

	// TopicStatIncrement carries a *StatIncrement counter signal.
	TopicStatIncrement = "stat_increment"

	// TopicStatsUpdated is published by the stats aggregator after counters
	// change. The payload is the aggregator's current counter snapshot.
	TopicStatsUpdated = "stats_updated"
)

// TrackMatchEvent is the payload published on TopicTrackPlayed.
//
// Matched=false means the decoded metadata could not be resolved against the
// library index; the event still carries the raw artist/title so consumers
// can render "unknown track" rather than nothing. The event is never mutated
// after publish.
type TrackMatchEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Artist        string  `json:"artist"`
	Title         string  `json:"title"`
	Album         string  `json:"album"`
	Genre         string  `json:"genre"`
	BPM           float64 `json:"bpm,omitempty"`
	MusicalKey    *int    `json:"musical_key,omitempty"`
	AudioFilePath string  `json:"audio_file_path,omitempty"`

	Matched bool `json:"matched"`
}

// NewTrackMatchEvent creates an event with a unique ID and UTC timestamp.
func NewTrackMatchEvent(artist, title string) *TrackMatchEvent {
	return &TrackMatchEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Artist:    artist,
		Title:     title,
	}
}

// StatIncrement is the payload published on TopicStatIncrement.
type StatIncrement struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// Stat counter names understood by the stats aggregator. Total counters
// persist across sessions; session counters reset on service start.
const (
	StatSongPlays    = "song_plays"
	StatSongSearches = "song_searches"
	StatSongRequests = "song_requests"
)
