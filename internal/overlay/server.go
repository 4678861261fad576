// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package overlay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tracord/tracord/internal/bus"
	"github.com/tracord/tracord/internal/logging"
	"github.com/tracord/tracord/internal/models"
)

const shutdownGrace = 5 * time.Second

// Config holds the overlay HTTP settings.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// nowPlayingResponse is the /api/nowplaying payload.
type nowPlayingResponse struct {
	Playing bool                    `json:"playing"`
	Track   *models.TrackMatchEvent `json:"track,omitempty"`
}

// Server exposes the overlay HTTP surface. Implements suture.Service via
// Serve.
type Server struct {
	cfg Config
	hub *Hub
	bus *bus.Bus

	mu   sync.RWMutex
	last *models.TrackMatchEvent

	boundMu   sync.Mutex
	boundAddr net.Addr
}

// NewServer creates the overlay HTTP server. Nothing is bound until Serve
// runs.
func NewServer(cfg Config, hub *Hub, b *bus.Bus) *Server {
	return &Server{cfg: cfg, hub: hub, bus: b}
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "overlay-http" }

// Addr returns the bound listen address, or nil before Serve binds.
func (s *Server) Addr() net.Addr {
	s.boundMu.Lock()
	defer s.boundMu.Unlock()
	return s.boundAddr
}

// Serve binds the overlay port and serves HTTP until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	sub := s.bus.Subscribe(models.TopicTrackPlayed, s.onTrackPlayed)
	defer s.bus.Unsubscribe(sub)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logging.Error().Err(err).Str("addr", addr).Msg("overlay bind failed")
		return err
	}

	s.boundMu.Lock()
	s.boundAddr = ln.Addr()
	s.boundMu.Unlock()

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.Info().Stringer("addr", ln.Addr()).Msg("overlay listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("overlay shutdown incomplete")
		}
		logging.Info().Msg("overlay stopped")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Error().Err(err).Msg("overlay server failed")
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/nowplaying", s.handleNowPlaying)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

func (s *Server) onTrackPlayed(payload any) {
	ev, ok := payload.(*models.TrackMatchEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	s.last = ev
	s.mu.Unlock()
}

// NowPlaying returns the most recently published track event, or nil when
// nothing has played yet.
func (s *Server) NowPlaying() *models.TrackMatchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	last := s.NowPlaying()
	writeJSON(w, http.StatusOK, nowPlayingResponse{Playing: last != nil, Track: last})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(s.hub, conn)
	s.hub.addClient(client)
	client.Start()
}

// checkOrigin admits non-browser clients (no Origin header) and browsers
// whose Origin matches the configured list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("write response failed")
	}
}
