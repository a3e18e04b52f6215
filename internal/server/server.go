// Package server exposes the playback engine and media library over HTTP:
// state reads, one route per engine operation, surface event ingress,
// keyboard dispatch and Range-aware media streaming.
package server

import (
	"context"
	"net/http"
	"time"

	"tonewiki/internal/config"
	"tonewiki/internal/keymap"
	"tonewiki/internal/library"
	"tonewiki/internal/player"
	"tonewiki/internal/surface"

	"github.com/sirupsen/logrus"
)

// Server wires the engine, adapter, keymap and library behind an HTTP API.
type Server struct {
	cfg     *config.Config
	logger  *logrus.Logger
	engine  *player.Engine
	adapter *surface.Adapter
	keys    *keymap.Handler
	lib     *library.Library

	mux  *http.ServeMux
	http *http.Server
}

// NewServer creates the server and registers all routes.
func NewServer(cfg *config.Config, logger *logrus.Logger, engine *player.Engine,
	adapter *surface.Adapter, keys *keymap.Handler, lib *library.Library) *Server {

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		engine:  engine,
		adapter: adapter,
		keys:    keys,
		lib:     lib,
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealthCheck)

	s.mux.HandleFunc("/api/tracks", s.handleGetTracks)
	s.mux.HandleFunc("/api/tracks/groups", s.handleGetABGroups)
	s.mux.HandleFunc("/api/stream/", s.handleStreamTrack)
	s.mux.HandleFunc("/api/artwork/", s.handleArtwork)

	s.mux.HandleFunc("/api/player/state", s.handleGetPlayerState)
	s.mux.HandleFunc("/api/player/play", s.handlePlay)
	s.mux.HandleFunc("/api/player/toggle", s.handleToggle)
	s.mux.HandleFunc("/api/player/next", s.handleNext)
	s.mux.HandleFunc("/api/player/previous", s.handlePrevious)
	s.mux.HandleFunc("/api/player/seek", s.handleSeek)
	s.mux.HandleFunc("/api/player/volume", s.handleVolume)
	s.mux.HandleFunc("/api/player/repeat", s.handleRepeat)
	s.mux.HandleFunc("/api/player/shuffle", s.handleShuffle)
	s.mux.HandleFunc("/api/player/visibility", s.handleVisibility)
	s.mux.HandleFunc("/api/player/mini", s.handleMini)

	s.mux.HandleFunc("/api/player/queue", s.handleQueue)
	s.mux.HandleFunc("/api/player/queue/remove", s.handleQueueRemove)
	s.mux.HandleFunc("/api/player/queue/clear", s.handleQueueClear)
	s.mux.HandleFunc("/api/player/index", s.handleSetIndex)

	s.mux.HandleFunc("/api/player/conflict/resolve", s.handleResolveConflict)
	s.mux.HandleFunc("/api/player/conflict/close", s.handleCloseConflict)

	s.mux.HandleFunc("/api/player/ab/variant", s.handleSwitchVariant)
	s.mux.HandleFunc("/api/player/ab/exit", s.handleExitAB)

	s.mux.HandleFunc("/api/player/events", s.handleSurfaceEvent)
	s.mux.HandleFunc("/api/player/key", s.handleKey)
}

// Handler returns the full middleware-wrapped handler, exposed for tests
// and for the tunnel listener.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.passwordMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.requestLoggingMiddleware(h)
	h = s.panicRecoveryMiddleware(h)
	return h
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:        s.cfg.GetAddress(),
		Handler:     s.Handler(),
		ReadTimeout: time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	s.logger.WithField("address", s.cfg.GetAddress()).Info("Server started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
