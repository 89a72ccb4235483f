// Package client implements the terminal side of the chat relay: a
// WebSocket connection that submits envelopes and streams decoded inbound
// ones, plus the reconnecting session, feed, rendering and the full-screen
// terminal view built on top of it.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// ErrNotConnected is returned by Submit once the connection has ended.
var ErrNotConnected = errors.New("client: not connected")

// Conn is one live connection to the relay.
type Conn struct {
	ws       *websocket.Conn
	log      *slog.Logger
	messages chan chat.Envelope

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay WebSocket at url.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		ws:       ws,
		log:      log,
		messages: make(chan chat.Envelope, 256),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages streams every decodable envelope the relay sends, including the
// echo of this client's own submissions. It is closed when the connection
// ends.
func (c *Conn) Messages() <-chan chat.Envelope {
	return c.messages
}

// Done is closed once the connection has ended for any reason.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Submit validates, encodes and sends one envelope.
func (c *Conn) Submit(e chat.Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := chat.Encode(e)
	if err != nil {
		return err
	}
	return c.send(payload)
}

func (c *Conn) send(payload string) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// readLoop decodes inbound frames. Payloads that are not envelopes are
// dropped without reaching Messages.
func (c *Conn) readLoop() {
	defer close(c.messages)
	defer c.Close()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("Connection read ended", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		e, err := chat.Decode(string(data))
		if err != nil {
			c.log.Debug("Discarding undecodable payload", "error", err)
			continue
		}

		select {
		case c.messages <- e:
		case <-c.done:
			return
		}
	}
}

// Close ends the connection with a normal-closure frame.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
