package realtime

import (
	"sync"

	"terrarun/internal/territory/model"
)

// ReplayBuffer retains the most recent broadcast events so a briefly
// disconnected client can catch up. Retention is bounded; clients absent
// longer than the buffer holds must fall back to a fresh snapshot
// subscription.
type ReplayBuffer struct {
	mu       sync.Mutex
	buf      []model.BroadcastEvent
	start    int
	size     int
	capacity int
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{
		buf:      make([]model.BroadcastEvent, capacity),
		capacity: capacity,
	}
}

// Push appends an event, evicting the oldest when full. Events arrive from
// the coalescer in timestamp order.
func (b *ReplayBuffer) Push(event model.BroadcastEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == b.capacity {
		b.buf[b.start] = event
		b.start = (b.start + 1) % b.capacity
		return
	}
	b.buf[(b.start+b.size)%b.capacity] = event
	b.size++
}

// ReplaySince returns every retained event strictly newer than the given
// unix-ms timestamp, oldest first.
func (b *ReplayBuffer) ReplaySince(tsExclusive int64) []model.BroadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.BroadcastEvent
	for i := 0; i < b.size; i++ {
		event := b.buf[(b.start+i)%b.capacity]
		if event.TS > tsExclusive {
			out = append(out, event)
		}
	}
	return out
}

// Len reports the number of retained events.
func (b *ReplayBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
