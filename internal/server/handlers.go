// Package server exposes HTTP handlers: the history listing, the WebSocket
// upgrade and a health check.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/hub"
)

// Server owns the hub, the history and every live connection handler.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	history  History
	handler  *ConnectionHandler
	upgrader websocket.Upgrader
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Shutdown's wg.Wait.
	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// New wires a relay server around h and history. The hub and history are
// injected so tests can run isolated instances side by side.
func New(cfg Config, h *hub.Hub, history History, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(cfg.Origins(), log)

	return &Server{
		cfg:     cfg,
		hub:     h,
		history: history,
		handler: NewConnectionHandler(h, history, cfg.RateLimit, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Hub returns the server's broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// HistoryHandler writes every recorded envelope as a JSON array.
func (s *Server) HistoryHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.history.Snapshot()); err != nil {
		s.log.Warn("Error writing history response", "error", err)
	}
}

// WebSocketHandler upgrades GET requests and serves the connection until
// either side goes away or the server shuts down.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !s.track() {
		http.Error(w, "Server is shutting down.", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	log := s.log.With("conn", uuid.NewString(), "remote", r.RemoteAddr)
	transport := newWSTransport(conn, s.cfg.MaxMessageSize, log)

	log.Info("Client connected", "subscribers", s.hub.Subscribers()+1)
	start := time.Now()
	s.handler.Serve(s.ctx, transport, log)
	log.Info("Client disconnected", "duration", time.Since(start).Round(time.Millisecond))
}

// track registers a connection with the shutdown WaitGroup, or reports false
// once Shutdown has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// HealthHandler provides a simple liveness check.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chat relay is running (%d connected)", s.hub.Subscribers())
}

// Shutdown cancels every live connection, closes the hub and waits for the
// handlers to return or timeout to elapse.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Initiating relay shutdown...")
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.cancel()
	s.hub.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Relay shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Relay shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}
