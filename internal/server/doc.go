// Package server implements the relay's HTTP and WebSocket surface.
//
// Every accepted WebSocket is handed to a ConnectionHandler that republishes
// inbound text frames into a shared hub.Hub and writes every hub payload back
// to its peer, the sender included. Frames that decode as chat envelopes are
// also kept in an in-memory History served on GET /.
package server
