package client_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/client"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/testhelpers"
)

func dial(t *testing.T, relay *testhelpers.Relay) *client.Conn {
	t.Helper()
	before := relay.Hub.Subscribers()
	conn, err := client.Dial(context.Background(), relay.WSURL(), testhelpers.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return relay.Hub.Subscribers() > before }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func next(t *testing.T, conn *client.Conn) chat.Envelope {
	t.Helper()
	select {
	case e, ok := <-conn.Messages():
		require.True(t, ok, "connection ended")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope received")
		return chat.Envelope{}
	}
}

func TestConn_SubmitReachesEveryClientIncludingSender(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	alice := dial(t, relay)
	bob := dial(t, relay)

	e := chat.Envelope{Timestamp: 1, Sender: "alice", Text: "hi"}
	req.NoError(alice.Submit(e))

	req.Equal(e, next(t, alice))
	req.Equal(e, next(t, bob))
}

func TestConn_DiscardsUndecodablePayloads(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	conn := dial(t, relay)
	feed := client.NewFeed()

	raw := testhelpers.MustConnect(t, relay)
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte("definitely not an envelope")))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{"ts":"bad"}`)))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{"ts":1}`)))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{"ts":5,"sender":"carol","text":"ok"}`)))

	// Only the envelope makes it through; the garbage never touches the feed.
	e := next(t, conn)
	req.Equal(chat.Envelope{Timestamp: 5, Sender: "carol", Text: "ok"}, e)
	req.True(feed.Add(e))
	req.Equal([]chat.Envelope{e}, feed.Snapshot())

	select {
	case extra := <-conn.Messages():
		req.Failf("unexpected envelope", "%+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConn_SubmitRejectsEmptyText(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	conn := dial(t, relay)

	err := conn.Submit(chat.Envelope{Timestamp: 1, Sender: "alice", Text: ""})
	req.ErrorIs(err, chat.ErrEmptyText)

	select {
	case e := <-conn.Messages():
		req.Failf("empty message was sent", "%+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConn_SubmitAfterClose(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	conn := dial(t, relay)

	req.NoError(conn.Close())
	<-conn.Done()

	err := conn.Submit(chat.Envelope{Timestamp: 1, Sender: "a", Text: "b"})
	req.ErrorIs(err, client.ErrNotConnected)

	for range conn.Messages() {
	}
}

func TestConn_EndsWhenRelayShutsDown(t *testing.T) {
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	conn := dial(t, relay)

	require.NoError(t, relay.Server.Shutdown(2*time.Second))

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the relay going away")
	}
}

func TestHistoryURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "ws://localhost:3000/ws", want: "http://localhost:3000/"},
		{in: "wss://chat.example/ws?x=1", want: "https://chat.example/"},
		{in: "http://localhost:3000/ws", want: "http://localhost:3000/"},
		{in: "ftp://localhost/ws", wantErr: true},
	}
	for _, tt := range tests {
		got, err := client.HistoryURL(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}

func TestFetchHistory(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	historyURL, err := client.HistoryURL(relay.WSURL())
	req.NoError(err)

	envelopes, err := client.FetchHistory(context.Background(), http.DefaultClient, historyURL)
	req.NoError(err)
	req.Empty(envelopes)

	conn := dial(t, relay)
	e := chat.Envelope{Timestamp: 9, Sender: "dave", Text: "recorded"}
	req.NoError(conn.Submit(e))
	next(t, conn)

	envelopes, err = client.FetchHistory(context.Background(), http.DefaultClient, historyURL)
	req.NoError(err)
	req.Equal([]chat.Envelope{e}, envelopes)
}

func TestFeed_MergeAndLiveDeduplication(t *testing.T) {
	req := require.New(t)
	feed := client.NewFeed()
	a := chat.Envelope{Timestamp: 1, Sender: "a", Text: "one"}
	b := chat.Envelope{Timestamp: 2, Sender: "b", Text: "two"}
	c := chat.Envelope{Timestamp: 3, Sender: "c", Text: "three"}

	req.True(feed.Add(a))

	// History repeats what was already shown and adds b.
	req.Equal([]chat.Envelope{b}, feed.Merge([]chat.Envelope{a, b}))

	// b then arrives live because the socket opened before the fetch.
	req.False(feed.Add(b))
	// A second, genuinely new b is shown.
	req.True(feed.Add(b))
	req.True(feed.Add(c))

	req.Equal([]chat.Envelope{a, b, b, c}, feed.Snapshot())
	req.Equal(4, feed.Len())
}

func TestFeed_HistoryEchoWindowEnds(t *testing.T) {
	req := require.New(t)
	a := chat.Envelope{Timestamp: 1, Sender: "a", Text: "same"}
	b := chat.Envelope{Timestamp: 2, Sender: "b", Text: "other"}

	// The echo of a never arrives; a newer envelope does.
	feed := client.NewFeed()
	req.Equal([]chat.Envelope{a}, feed.Merge([]chat.Envelope{a}))
	req.True(feed.Add(b))
	// An identical envelope arriving later is genuinely new.
	req.True(feed.Add(a))
	req.Equal([]chat.Envelope{a, b, a}, feed.Snapshot())

	// A later merge also ends the previous window.
	feed = client.NewFeed()
	req.Equal([]chat.Envelope{a}, feed.Merge([]chat.Envelope{a}))
	req.Empty(feed.Merge([]chat.Envelope{a}))
	req.True(feed.Add(a))
	req.Equal(2, feed.Len())
}

func TestRenderer(t *testing.T) {
	req := require.New(t)
	r := client.Renderer{Location: time.UTC}
	e := chat.Envelope{Timestamp: time.Date(2025, 1, 1, 9, 30, 15, 0, time.UTC).UnixMilli(), Sender: "alice", Text: "hi"}

	req.Equal("09:30:15 alice hi", r.Line(e))
	req.Equal("09:30:15 anonymous hi", r.Line(chat.Envelope{Timestamp: e.Timestamp, Text: "hi"}))

	var buf bytes.Buffer
	r.Table(&buf, []chat.Envelope{e})
	out := buf.String()
	req.Contains(out, "SENDER")
	req.Contains(out, "alice")
	req.Contains(out, "1735723815000")
}

// startSession runs a session against relay until the test ends.
func startSession(t *testing.T, relay *testhelpers.Relay) *client.Session {
	t.Helper()
	session := client.NewSession(client.Config{URL: relay.WSURL()}, testhelpers.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return session
}

func nextEvent(t *testing.T, session *client.Session) client.Event {
	t.Helper()
	select {
	case ev, ok := <-session.Events():
		require.True(t, ok, "session ended")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no session event")
		return nil
	}
}

func nextEnvelopeEvent(t *testing.T, session *client.Session) chat.Envelope {
	t.Helper()
	for {
		if ev, ok := nextEvent(t, session).(client.EnvelopeEvent); ok {
			return ev.Envelope
		}
	}
}

func TestSession_CatchesUpThenStreamsLive(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())

	earlier := dial(t, relay)
	before := chat.Envelope{Timestamp: 1, Sender: "alice", Text: "before you came"}
	req.NoError(earlier.Submit(before))
	next(t, earlier)

	session := startSession(t, relay)

	status, ok := nextEvent(t, session).(client.StatusEvent)
	req.True(ok)
	req.True(status.Connected)
	req.Equal(before, nextEnvelopeEvent(t, session))

	live := chat.Envelope{Timestamp: 2, Sender: "late", Text: "hello"}
	req.NoError(session.Submit(live))
	req.Equal(live, nextEnvelopeEvent(t, session))

	req.Equal([]chat.Envelope{before, live}, session.Feed().Snapshot())
}

func TestSession_IgnoresNonEnvelopeFrames(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	session := startSession(t, relay)

	status, ok := nextEvent(t, session).(client.StatusEvent)
	req.True(ok)
	req.True(status.Connected)
	req.Eventually(func() bool { return relay.Hub.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	raw := testhelpers.MustConnect(t, relay)
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	req.NoError(raw.WriteMessage(websocket.TextMessage, []byte(`{"ts":4,"sender":"carol","text":"real"}`)))

	req.Equal(chat.Envelope{Timestamp: 4, Sender: "carol", Text: "real"}, nextEnvelopeEvent(t, session))
	req.Equal(1, session.Feed().Len())
}

func TestSession_SubmitWhileDisconnected(t *testing.T) {
	session := client.NewSession(client.Config{URL: "ws://127.0.0.1:1/ws"}, testhelpers.Logger())
	err := session.Submit(chat.Envelope{Timestamp: 1, Sender: "a", Text: "b"})
	require.ErrorIs(t, err, client.ErrNotConnected)
}

func TestSession_ReportsUnreachableRelayAndStops(t *testing.T) {
	req := require.New(t)
	relay := testhelpers.StartRelay(t, server.DefaultConfig())
	url := relay.WSURL()
	relay.HTTP.Close()

	session := client.NewSession(client.Config{URL: url}, testhelpers.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	status, ok := nextEvent(t, session).(client.StatusEvent)
	req.True(ok)
	req.False(status.Connected)
	req.Contains(status.Text, "cannot reach")

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("session did not stop on cancellation")
	}
	for range session.Events() {
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	cfg, err := client.LoadConfig()
	req.NoError(err)
	req.Equal("ws://localhost:3000/ws", cfg.URL)
	req.True(cfg.Colours)
	req.Equal(8*time.Second, cfg.ReconnectMax)
}
