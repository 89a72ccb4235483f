//go:generate go run go.uber.org/mock/mockgen -source=history.go -destination=mocks/mock_history.go -package=mocks
package server

import (
	"sync"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// History is the in-process record of envelopes served on GET /. It is
// appended to by every inbound direction concurrently.
type History interface {
	Append(e chat.Envelope)
	Snapshot() []chat.Envelope
}

// MemoryHistory keeps envelopes in arrival order, dropping the oldest once
// limit is reached. A limit of zero keeps everything for the life of the
// process.
type MemoryHistory struct {
	mu       sync.RWMutex
	items    []chat.Envelope
	limit    int
	start    int // index of the oldest entry once the ring is full
	appended uint64
}

// NewMemoryHistory creates a history capped at limit entries.
func NewMemoryHistory(limit int) *MemoryHistory {
	if limit < 0 {
		limit = 0
	}
	return &MemoryHistory{limit: limit}
}

// Append records e, evicting the oldest entry once the limit is reached.
func (h *MemoryHistory) Append(e chat.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.appended++
	if h.limit == 0 || len(h.items) < h.limit {
		h.items = append(h.items, e)
		return
	}
	h.items[h.start] = e
	h.start = (h.start + 1) % h.limit
}

// Snapshot returns a copy, oldest first. It never returns nil so the JSON
// rendering of an empty history is [].
func (h *MemoryHistory) Snapshot() []chat.Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]chat.Envelope, 0, len(h.items))
	out = append(out, h.items[h.start:]...)
	return append(out, h.items[:h.start]...)
}

// Appended counts every envelope ever recorded, including evicted ones.
func (h *MemoryHistory) Appended() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.appended
}
