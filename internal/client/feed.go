package client

import (
	"sync"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// Feed is the ordered list of envelopes a session has reported.
type Feed struct {
	mu    sync.RWMutex
	items []chat.Envelope
	// fromHistory counts envelopes merged from GET / that may still arrive
	// live over a connection opened just before the fetch. That overlap is a
	// prefix of the live stream, so the counts are dropped at the first live
	// envelope outside it and at the next Merge.
	fromHistory map[chat.Envelope]int
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{fromHistory: make(map[chat.Envelope]int)}
}

// Add appends a live envelope and reports whether it is new to the feed.
func (f *Feed) Add(e chat.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fromHistory[e] > 0 {
		f.fromHistory[e]--
		return false
	}
	clear(f.fromHistory)
	f.items = append(f.items, e)
	return true
}

// Merge appends the history entries not already shown and returns them.
func (f *Feed) Merge(history []chat.Envelope) []chat.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.fromHistory)
	shown := make(map[chat.Envelope]int, len(f.items))
	for _, e := range f.items {
		shown[e]++
	}

	var added []chat.Envelope
	for _, e := range history {
		if shown[e] > 0 {
			shown[e]--
			continue
		}
		f.items = append(f.items, e)
		f.fromHistory[e]++
		added = append(added, e)
	}
	return added
}

// Snapshot returns a copy of the feed.
func (f *Feed) Snapshot() []chat.Envelope {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]chat.Envelope(nil), f.items...)
}

// Len is the number of envelopes in the feed.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}
