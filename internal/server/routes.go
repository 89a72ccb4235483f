// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// Routes returns a ServeMux with the history listing on exactly "/", the
// WebSocket endpoint and the health check.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HistoryHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	return mux
}
