// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package overlay serves the browser overlay: an HTTP surface with a
// now-playing endpoint and a websocket feed that pushes song and stats
// updates to OBS browser sources and other displays. The overlay is a pure
// bus consumer; nothing here can slow down or fail stream ingestion.
package overlay

import (
	"context"
	"sort"
	"sync"

	"github.com/tracord/tracord/internal/bus"
	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/metrics"
	"github.com/tracord/tracord/internal/models"
)

// Message types pushed over the websocket feed.
const (
	MessageTypeSongUpdate  = "song_update"
	MessageTypeStatsUpdate = "stats_update"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is the envelope for every websocket push.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of connected overlay clients and fans bus events
// out to them. Implements suture.Service via Serve.
type Hub struct {
	bus *bus.Bus

	clients   map[*Client]bool
	broadcast chan Message
	mu        sync.RWMutex
}

// NewHub creates a Hub. Bus subscriptions are made when Serve starts.
func NewHub(b *bus.Bus) *Hub {
	return &Hub{
		bus:       b,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, 256),
	}
}

// String names the service in supervisor logs.
func (h *Hub) String() string { return "overlay-hub" }

// Serve subscribes to the bus and runs the fan-out loop until ctx is
// canceled, then closes every client.
//
// Client lifecycle is not part of the loop: addClient and removeClient
// mutate the client set under the same mutex broadcastToClients holds, so
// a client can connect or disconnect at any time, including after the loop
// has stopped, without blocking.
func (h *Hub) Serve(ctx context.Context) error {
	subs := []*bus.Subscription{
		h.bus.Subscribe(models.TopicTrackPlayed, h.onTrackPlayed),
		h.bus.Subscribe(models.TopicStatsUpdated, h.onStatsUpdated),
	}
	defer func() {
		for _, sub := range subs {
			h.bus.Unsubscribe(sub)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "overlay-hub").Msg("overlay hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAllClients()
			logging.Info().Str("component", "overlay-hub").Msg("overlay hub stopped")
			return ctx.Err()
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) onTrackPlayed(payload any) {
	ev, ok := payload.(*models.TrackMatchEvent)
	if !ok {
		return
	}
	h.push(Message{Type: MessageTypeSongUpdate, Data: ev})
}

func (h *Hub) onStatsUpdated(payload any) {
	h.push(Message{Type: MessageTypeStatsUpdate, Data: payload})
}

// push enqueues a message for fan-out without ever blocking the caller,
// which runs on the ingestion goroutine.
func (h *Hub) push(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("message_type", msg.Type).Msg("overlay broadcast queue full, dropping message")
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	metrics.OverlayClients.Inc()
	logging.Info().Int("total_clients", count).Msg("overlay client connected")
}

// removeClient is idempotent: a client already removed by closeAllClients
// or a slow-client drop is left alone.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
		metrics.OverlayClients.Dec()
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		logging.Info().Int("total_clients", count).Msg("overlay client disconnected")
	}
}

// broadcastToClients delivers a message to every client in a stable order.
// A client whose queue is full is dropped rather than allowed to stall the
// others.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.OverlayClients.Dec()
		logging.Warn().Msg("overlay client too slow, dropped")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.OverlayClients.Dec()
	}
}

// ClientCount returns the number of connected overlay clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
