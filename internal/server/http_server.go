// Package server constructs and runs the relay HTTP service, including the
// joint shutdown of the listener and every live connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for handler. Only the header read is
// bounded: upgraded sockets must not inherit request deadlines.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Listen binds addr. Failing to bind is fatal for the caller.
func Listen(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return listener, nil
}

// Run serves on listener until ctx ends, then shuts the HTTP server and the
// relay down within cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg Config, relay *Server, listener net.Listener, log *slog.Logger) error {
	httpServer := CreateServer(listener.Addr().String(), relay.Routes())

	errChan := make(chan error, 1)
	go func() {
		log.Info("Relay listening", "address", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// Connections are hijacked, so http.Server.Shutdown does not wait for
	// them; the relay shutdown does.
	shutdownErr := ShutdownServer(httpServer, cfg.ShutdownTimeout, log)
	if err := relay.Shutdown(cfg.ShutdownTimeout); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// in-flight requests, up to timeout.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
