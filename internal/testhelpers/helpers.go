// Package testhelpers provides common utilities for exercising the relay in
// tests: booting an isolated server, dialing WebSockets and making requests.
package testhelpers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/hub"
	"github.com/Tyrowin/chatrelay/internal/server"
)

// Relay is an isolated relay instance served by httptest.
type Relay struct {
	Server  *server.Server
	Hub     *hub.Hub
	History *server.MemoryHistory
	HTTP    *httptest.Server
}

// StartRelay boots a relay with cfg on a random port. The relay is shut down
// when the test ends.
func StartRelay(t *testing.T, cfg server.Config) *Relay {
	t.Helper()

	h := hub.New(cfg.HubCapacity)
	history := server.NewMemoryHistory(cfg.HistoryLimit)
	relay := server.New(cfg, h, history, Logger())
	ts := httptest.NewServer(relay.Routes())

	t.Cleanup(func() {
		_ = relay.Shutdown(2 * time.Second)
		ts.Close()
	})

	return &Relay{Server: relay, Hub: h, History: history, HTTP: ts}
}

// WSURL returns the ws:// URL of the relay's /ws endpoint.
func (r *Relay) WSURL() string {
	return "ws" + strings.TrimPrefix(r.HTTP.URL, "http") + "/ws"
}

// Logger returns a debug logger for tests.
func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// ConnectWebSocket dials url with an optional Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustConnect dials url and waits until the relay has subscribed the new
// connection, so nothing published afterwards can be missed.
func MustConnect(t *testing.T, r *Relay) *websocket.Conn {
	t.Helper()
	before := r.Hub.Subscribers()

	conn, _, err := ConnectWebSocket(r.WSURL(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return r.Hub.Subscribers() > before
	}, 2*time.Second, 5*time.Millisecond, "relay never subscribed the connection")
	return conn
}

// ReadText reads one text frame within timeout.
func ReadText(t *testing.T, conn *websocket.Conn, timeout time.Duration) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

// ExpectNoMessage fails if a frame arrives within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %q", data)
	}
}

// MakeRequest executes an HTTP request with a 5 second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}
