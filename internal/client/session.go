package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// Event is something a Session reports to the view driving it.
type Event interface {
	event()
}

// EnvelopeEvent carries an envelope the feed had not shown yet, either from
// the history catch-up or from the live stream.
type EnvelopeEvent struct {
	Envelope chat.Envelope
}

// StatusEvent describes a change of connection state.
type StatusEvent struct {
	Connected bool
	Text      string
}

func (EnvelopeEvent) event() {}
func (StatusEvent) event()   {}

// Session keeps one client connected to the relay. It reconnects with
// exponential backoff, catches up on history after every connect and
// reports everything new as Events.
type Session struct {
	cfg        Config
	log        *slog.Logger
	feed       *Feed
	httpClient *http.Client
	events     chan Event

	mu   sync.Mutex
	conn *Conn
}

// NewSession prepares a session for cfg. Nothing is dialed until Run.
func NewSession(cfg Config, log *slog.Logger) *Session {
	if cfg.ReconnectMax < time.Second {
		cfg.ReconnectMax = time.Second
	}
	return &Session{
		cfg:        cfg,
		log:        log,
		feed:       NewFeed(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		events:     make(chan Event, 256),
	}
}

// Events streams what the session observes. It is closed when Run returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Feed exposes every envelope reported so far.
func (s *Session) Feed() *Feed {
	return s.feed
}

// Submit sends e over the current connection. It returns ErrNotConnected
// while the session is between connections.
func (s *Session) Submit(e chat.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Submit(e)
}

// History fetches the relay's full history.
func (s *Session) History(ctx context.Context) ([]chat.Envelope, error) {
	historyURL, err := HistoryURL(s.cfg.URL)
	if err != nil {
		return nil, err
	}
	return FetchHistory(ctx, s.httpClient, historyURL)
}

// Run connects and keeps reconnecting until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)

	backoff := time.Second
	for {
		conn, err := Dial(ctx, s.cfg.URL, s.log)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Debug("Dial failed", "url", s.cfg.URL, "error", err)
			s.emit(ctx, StatusEvent{Text: fmt.Sprintf("cannot reach %s, retrying in %s", s.cfg.URL, backoff)})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.cfg.ReconnectMax)
			continue
		}
		backoff = time.Second

		s.setConn(conn)
		s.emit(ctx, StatusEvent{Connected: true, Text: "connected to " + s.cfg.URL})
		s.catchUp(ctx)
		s.pump(ctx, conn)
		s.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		s.emit(ctx, StatusEvent{Text: "disconnected"})
	}
}

func (s *Session) setConn(conn *Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// catchUp reports the history entries the feed has not shown yet. Live
// envelopes wait in the connection buffer meanwhile.
func (s *Session) catchUp(ctx context.Context) {
	envelopes, err := s.History(ctx)
	if err != nil {
		s.log.Debug("History unavailable", "error", err)
		s.emit(ctx, StatusEvent{Connected: true, Text: "history unavailable"})
		return
	}
	for _, e := range s.feed.Merge(envelopes) {
		s.emit(ctx, EnvelopeEvent{Envelope: e})
	}
}

func (s *Session) pump(ctx context.Context, conn *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-conn.Messages():
			if !ok {
				return
			}
			if s.feed.Add(e) {
				s.emit(ctx, EnvelopeEvent{Envelope: e})
			}
		}
	}
}

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
