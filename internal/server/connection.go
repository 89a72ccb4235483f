// Package server bridges each WebSocket connection to the broadcast hub,
// running an inbound and an outbound direction per connection.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/hub"
)

// ConnectionHandler couples one Transport to the hub. Inbound frames are
// republished verbatim; every hub payload, including the connection's own,
// is written back to the peer.
type ConnectionHandler struct {
	hub       *hub.Hub
	history   History
	rateLimit RateLimitConfig
	log       *slog.Logger
}

// NewConnectionHandler builds a handler. history may be nil, in which case
// nothing is recorded.
func NewConnectionHandler(h *hub.Hub, history History, rateLimit RateLimitConfig, log *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		hub:       h,
		history:   history,
		rateLimit: rateLimit,
		log:       log,
	}
}

// Serve runs both directions until either ends or ctx is cancelled, then
// closes t and waits for the other direction to stop.
func (c *ConnectionHandler) Serve(ctx context.Context, t Transport, log *slog.Logger) {
	if log == nil {
		log = c.log
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before reading anything so the peer receives the echo of its
	// own first frame.
	sub := c.hub.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.inbound(t, newTokenBucket(c.rateLimit), log)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.outbound(ctx, t, sub, log)
	}()

	<-ctx.Done()
	if err := t.Close(); err != nil {
		log.Debug("Error closing transport", "error", err)
	}
	wg.Wait()
}

func (c *ConnectionHandler) inbound(t Transport, limiter *tokenBucket, log *slog.Logger) {
	for {
		payload, err := t.Receive()
		if err != nil {
			if isExpectedCloseError(err) {
				log.Debug("Inbound direction closed", "reason", err)
			} else {
				log.Warn("Inbound direction failed", "error", err)
			}
			return
		}

		if !limiter.allow() {
			log.Warn("Rate limit exceeded; discarding frame",
				"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
			continue
		}

		n, err := c.hub.Publish(payload)
		if err != nil {
			log.Warn("Publish failed", "error", err)
			continue
		}
		log.Debug("Frame published", "subscribers", n, "bytes", len(payload))

		// Only frames the hub accepted are recorded.
		c.record(payload, log)
	}
}

// record appends payload to the history when it is an envelope. Other text
// is still relayed but not recorded.
func (c *ConnectionHandler) record(payload string, log *slog.Logger) {
	if c.history == nil {
		return
	}
	e, err := chat.Decode(payload)
	if err != nil {
		log.Debug("Frame is not an envelope; not recorded", "error", err)
		return
	}
	c.history.Append(e)
}

func (c *ConnectionHandler) outbound(ctx context.Context, t Transport, sub *hub.Subscription, log *slog.Logger) {
	for {
		payload, err := sub.Receive(ctx)
		if err != nil {
			if missed, lagged := hub.IsLagged(err); lagged {
				log.Warn("Subscriber lagged behind the hub", "missed", missed)
				continue
			}
			if errors.Is(err, hub.ErrClosed) {
				log.Debug("Hub closed; stopping outbound direction")
			}
			return
		}

		if err := t.Send(payload); err != nil {
			if isExpectedCloseError(err) {
				log.Debug("Outbound direction closed", "reason", err)
			} else {
				log.Warn("Outbound direction failed", "error", err)
			}
			return
		}
	}
}
