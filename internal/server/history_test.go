package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

func envelope(i int) chat.Envelope {
	return chat.Envelope{Timestamp: int64(i), Sender: "s", Text: fmt.Sprintf("m%d", i)}
}

func TestMemoryHistory_EmptySnapshotIsNotNil(t *testing.T) {
	req := require.New(t)
	snapshot := NewMemoryHistory(3).Snapshot()
	req.NotNil(snapshot)
	req.Empty(snapshot)
}

func TestMemoryHistory_Unbounded(t *testing.T) {
	req := require.New(t)
	h := NewMemoryHistory(0)
	for i := 0; i < 50; i++ {
		h.Append(envelope(i))
	}
	snapshot := h.Snapshot()
	req.Len(snapshot, 50)
	req.Equal(envelope(0), snapshot[0])
	req.Equal(envelope(49), snapshot[49])
}

func TestMemoryHistory_DropsOldestBeyondLimit(t *testing.T) {
	req := require.New(t)
	h := NewMemoryHistory(3)
	for i := 0; i < 7; i++ {
		h.Append(envelope(i))
	}
	req.Equal([]chat.Envelope{envelope(4), envelope(5), envelope(6)}, h.Snapshot())
	req.Equal(uint64(7), h.Appended())
}

func TestMemoryHistory_SnapshotIsACopy(t *testing.T) {
	req := require.New(t)
	h := NewMemoryHistory(2)
	h.Append(envelope(1))

	snapshot := h.Snapshot()
	snapshot[0].Text = "changed"

	req.Equal("m1", h.Snapshot()[0].Text)
}

func TestMemoryHistory_ConcurrentAppend(t *testing.T) {
	req := require.New(t)
	h := NewMemoryHistory(0)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Append(envelope(w*100 + i))
				_ = h.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	req.Len(h.Snapshot(), 1000)
}
