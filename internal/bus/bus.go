// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package bus implements the process-wide publish/subscribe dispatcher that
// connects the broadcast listener to its consumers.
//
// A Bus is an explicit value owned by the composition root and passed by
// reference to every component; there is intentionally no package-level
// instance. Delivery is synchronous on the publisher's goroutine: handlers
// registered for a topic are invoked in registration order against a
// snapshot of the subscriber list, so subscriptions changed from inside a
// handler take effect on the next publish, never the one in flight. A
// panicking handler is recovered and logged without disturbing the
// remaining handlers or the publisher.
package bus

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/metrics"
)

// Handler receives the payload published on a topic. Handlers must not
// block: they run inline on the publisher's goroutine.
type Handler func(payload any)

// Subscription is the handle returned by Subscribe. The handle is the
// registration's identity: holding it is the only way to remove the
// registration, and Cancel is a no-op the second time.
type Subscription struct {
	bus   *Bus
	topic string
	fn    Handler
}

// Topic returns the topic this subscription is registered for.
func (s *Subscription) Topic() string { return s.topic }

// Cancel removes the subscription from its bus. Safe to call at any time,
// including from inside a handler invoked by the same publish.
func (s *Subscription) Cancel() {
	if s != nil && s.bus != nil {
		s.bus.unsubscribe(s)
	}
}

// Bus is a thread-safe topic dispatcher.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*Subscription
	logger zerolog.Logger
}

// New creates an empty Bus. The bus is inert until the first Subscribe.
func New() *Bus {
	return &Bus{
		topics: make(map[string][]*Subscription),
		logger: logging.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers h for topic and returns its handle.
//
// Every call creates a distinct registration, so the same method subscribed
// from two different consumer instances delivers to both. Function values
// carry no usable identity in Go (method values from distinct receivers
// share a code pointer), so deduplication lives in the handle: callers that
// must not double-register hold on to the Subscription they were given and
// Cancel it before subscribing again.
func (b *Bus) Subscribe(topic string, h Handler) *Subscription {
	if h == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{bus: b, topic: topic, fn: h}
	b.topics[topic] = append(b.topics[topic], sub)
	b.logger.Debug().Str("topic", topic).Int("subscribers", len(b.topics[topic])).Msg("subscribed")
	return sub
}

// Unsubscribe removes a subscription. Equivalent to sub.Cancel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub != nil {
		b.unsubscribe(sub)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			// Copy-on-remove so a snapshot taken by an in-flight publish
			// never observes the mutation.
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.topics, sub.topic)
			} else {
				b.topics[sub.topic] = next
			}
			b.logger.Debug().Str("topic", sub.topic).Msg("unsubscribed")
			return
		}
	}
}

// Publish delivers payload to every handler currently registered for topic,
// in registration order, on the calling goroutine. Handler panics are
// recovered, logged, and counted; they never propagate to the publisher.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	subs := b.topics[topic]
	snapshot := make([]*Subscription, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	metrics.BusPublishes.WithLabelValues(topic).Inc()

	for _, sub := range snapshot {
		b.invoke(sub, payload)
	}
}

// SubscriberCount reports the number of handlers registered for topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Bus) invoke(sub *Subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusHandlerPanics.WithLabelValues(sub.topic).Inc()
			b.logger.Error().
				Str("topic", sub.topic).
				Interface("panic", r).
				Msg("subscriber panicked, continuing delivery")
		}
	}()
	sub.fn(payload)
}
