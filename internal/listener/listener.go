// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package listener owns the broadcast ingestion socket. It accepts the
// Icecast-style SOURCE handshake from the DJ software, drives the container
// decoder over the connection's byte stream, resolves each decoded comment
// block through the matcher, and publishes the result on the event bus.
//
// Every failure below the bind is scoped to a single connection: a bad
// handshake, a malformed page, or a peer reset closes that connection and
// the listener goes right back to accepting, so a DJ session can always
// reconnect.
package listener

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracord/tracord/internal/bus"
	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/matcher"
	"github.com/tracord/tracord/internal/metrics"
	"github.com/tracord/tracord/internal/models"
	"github.com/tracord/tracord/internal/ogg"
)

const (
	// acceptTimeout bounds each Accept call so a shutdown request is
	// observed within roughly one second.
	acceptTimeout = 1 * time.Second

	// drainTimeout bounds the wait for in-flight connection handlers at
	// shutdown.
	drainTimeout = 5 * time.Second
)

// Config holds the listener's network settings.
type Config struct {
	Host string
	Port int
}

// Listener is the broadcast ingestion service. It implements suture.Service
// via Serve.
type Listener struct {
	cfg     Config
	matcher *matcher.Matcher
	bus     *bus.Bus
	logger  zerolog.Logger

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool

	// boundAddr publishes the actual listen address once bound, which
	// matters when the configured port is 0.
	boundMu   sync.Mutex
	boundAddr net.Addr
}

// New creates a Listener. Nothing is bound until Serve runs.
func New(cfg Config, m *matcher.Matcher, b *bus.Bus) *Listener {
	return &Listener{
		cfg:     cfg,
		matcher: m,
		bus:     b,
		logger:  logging.With().Str("component", "listener").Logger(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Addr returns the bound listen address, or nil before Serve binds.
func (l *Listener) Addr() net.Addr {
	l.boundMu.Lock()
	defer l.boundMu.Unlock()
	return l.boundAddr
}

// String names the service in supervisor logs.
func (l *Listener) String() string { return "broadcast-listener" }

// Serve binds the configured port and runs the accept loop until ctx is
// canceled. Bind failure is returned as-is: it is the one startup error an
// operator must see and act on (port in use).
func (l *Listener) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		l.logger.Error().Err(err).Str("addr", addr).Msg("bind failed")
		return err
	}
	tcpLn := ln.(*net.TCPListener)
	defer ln.Close()

	l.boundMu.Lock()
	l.boundAddr = ln.Addr()
	l.boundMu.Unlock()

	// A supervisor restart reuses the Listener, so the shutdown marker from
	// the previous run must not refuse new connections.
	l.mu.Lock()
	l.closing = false
	l.mu.Unlock()
	l.logger.Info().Stringer("addr", ln.Addr()).Msg("listening for broadcast source")

	var wg sync.WaitGroup
	for {
		if ctx.Err() != nil {
			break
		}

		if err := tcpLn.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
			l.logger.Warn().Err(err).Msg("set accept deadline failed")
		}
		conn, err := tcpLn.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			l.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handleConn(ctx, conn)
		}()
	}

	l.closeActiveConns()
	waitBounded(&wg, drainTimeout, l.logger)
	l.logger.Info().Msg("listener stopped")
	return ctx.Err()
}

// handleConn performs the handshake and streams the connection through the
// container decoder until it ends.
func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	if !l.track(conn) {
		conn.Close()
		return
	}
	defer l.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	br := bufio.NewReader(conn)

	mount, hsErr := readHandshake(br)
	if hsErr != nil {
		metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
		l.logger.Warn().Str("remote", remote).Str("reason", hsErr.reason).Msg("handshake rejected")
		_, _ = io.WriteString(conn, hsErr.status)
		return
	}

	if _, err := io.WriteString(conn, statusOK); err != nil {
		l.logger.Warn().Err(err).Str("remote", remote).Msg("handshake ack failed")
		return
	}

	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()
	l.logger.Info().Str("remote", remote).Str("mount", mount).Msg("source connected, receiving stream")

	l.stream(ctx, br, remote)
}

// stream drives the decoder until the connection ends, publishing an event
// for every surfaced metadata block.
func (l *Listener) stream(ctx context.Context, r io.Reader, remote string) {
	dec := ogg.NewDecoder(r)

	for {
		if ctx.Err() != nil {
			metrics.ConnectionAborts.WithLabelValues("shutdown").Inc()
			return
		}

		block, err := dec.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				metrics.ConnectionAborts.WithLabelValues("peer_closed").Inc()
				l.logger.Info().Str("remote", remote).Msg("source disconnected")
			case errors.Is(err, ogg.ErrBadPage):
				metrics.ConnectionAborts.WithLabelValues("bad_page").Inc()
				l.logger.Warn().Str("remote", remote).Msg("malformed page, closing connection")
			case ctx.Err() != nil:
				metrics.ConnectionAborts.WithLabelValues("shutdown").Inc()
			default:
				metrics.ConnectionAborts.WithLabelValues("read_error").Inc()
				l.logger.Warn().Err(err).Str("remote", remote).Msg("stream read failed")
			}
			return
		}

		l.publish(block)
	}
}

// publish resolves a metadata block and fans the result out on the bus.
func (l *Listener) publish(block ogg.MetadataBlock) {
	artist := block[ogg.FieldArtist]
	title := block[ogg.FieldTitle]

	ev := l.matcher.Match(artist, title)
	l.logger.Info().
		Str("artist", ev.Artist).
		Str("title", ev.Title).
		Bool("matched", ev.Matched).
		Msg("track change detected")

	l.bus.Publish(models.TopicTrackPlayed, ev)
	l.bus.Publish(models.TopicStatIncrement, &models.StatIncrement{
		Name:   models.StatSongPlays,
		Amount: 1,
	})
}

// track registers conn for shutdown. It reports false once
// closeActiveConns has run, so a handler racing the end of the accept
// loop bails out instead of parking in a read nothing will interrupt.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}

// closeActiveConns unblocks any handler parked in a socket read so the
// shutdown join is prompt.
func (l *Listener) closeActiveConns() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closing = true
	for conn := range l.conns {
		conn.Close()
	}
}

// waitBounded waits for wg up to timeout.
func waitBounded(wg *sync.WaitGroup, timeout time.Duration, logger zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn().Dur("timeout", timeout).Msg("connection handlers did not drain in time")
	}
}
