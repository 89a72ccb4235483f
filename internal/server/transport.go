// Package server adapts gorilla WebSocket connections to the duplex
// text-frame Transport the connection handler drives.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a duplex stream of text frames. Send may be called
// concurrently with Receive; Close unblocks both.
type Transport interface {
	// Send writes one text frame.
	Send(payload string) error
	// Receive waits for the next text frame. It returns ErrTransportClosed
	// (possibly wrapped) once the peer has gone away.
	Receive() (string, error)
	Close() error
}

// closeGrace bounds how long writing the close frame may take.
const closeGrace = time.Second

type wsTransport struct {
	conn      *websocket.Conn
	log       *slog.Logger
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// newWSTransport wraps an upgraded connection. maxMessageSize caps inbound
// frames; a larger frame fails the read side.
func newWSTransport(conn *websocket.Conn, maxMessageSize int64, log *slog.Logger) *wsTransport {
	conn.SetReadLimit(maxMessageSize)
	// Relay sockets carry no read or write deadlines; a read resolves only
	// on a frame or a close.
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return &wsTransport{conn: conn, log: log}
}

// Send writes payload as one text frame.
func (t *wsTransport) Send(payload string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		if isExpectedCloseError(err) {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive returns the next text frame, skipping binary ones.
func (t *wsTransport) Receive() (string, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return "", t.readError(err)
		}
		if messageType != websocket.TextMessage {
			t.log.Debug("Discarding non-text frame", "type", messageType)
			continue
		}
		return string(data), nil
	}
}

func (t *wsTransport) readError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("frame exceeds read limit: %w", err)
	}
	if isExpectedCloseError(err) {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return fmt.Errorf("read frame: %w", err)
}

// Close sends a normal-closure frame when possible and closes the socket.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); werr != nil && !isExpectedCloseError(werr) {
			t.log.Debug("Error writing close frame", "error", werr)
		}

		if cerr := t.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}
