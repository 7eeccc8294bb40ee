package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"terrarun/internal/territory/model"
)

// Coalescer buffers capture outcomes for a short window and flushes them as
// one de-duplicated broadcast batch. The window bounds broadcast latency: the
// timer arms on the first Record of an idle period and is never re-armed
// while pending, so a continuous burst still flushes within one window of
// its first event.
type Coalescer struct {
	window  time.Duration
	deliver func(model.BroadcastEvent)

	mu      sync.Mutex
	pending map[string]model.Cell
	timer   *time.Timer
	closed  bool
}

// NewCoalescer builds a coalescer that hands flushed events to deliver.
// deliver runs on the timer goroutine and must not block for long.
func NewCoalescer(window time.Duration, deliver func(model.BroadcastEvent)) *Coalescer {
	if window <= 0 {
		window = 120 * time.Millisecond
	}
	return &Coalescer{
		window:  window,
		deliver: deliver,
		pending: make(map[string]model.Cell),
	}
}

// Record merges cell snapshots into the pending window. Later snapshots for
// the same hex replace earlier ones, so a cell captured and immediately
// recaptured within the window broadcasts once with its final owner.
func (c *Coalescer) Record(cells []model.Cell) {
	if len(cells) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, cell := range cells {
		if cell.HexID == "" {
			continue
		}
		c.pending[cell.HexID] = cell
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.flush)
	}
}

// flush builds one BroadcastEvent from the pending set and clears the timer
// state so the next Record arms a fresh window.
func (c *Coalescer) flush() {
	c.mu.Lock()
	batch := make([]model.Cell, 0, len(c.pending))
	for _, cell := range c.pending {
		batch = append(batch, cell)
	}
	c.pending = make(map[string]model.Cell)
	c.timer = nil
	closed := c.closed
	c.mu.Unlock()

	if closed || len(batch) == 0 {
		return
	}

	c.deliver(model.BroadcastEvent{
		EventID:     uuid.NewString(),
		TS:          time.Now().UnixMilli(),
		Territories: batch,
	})
}

// Close stops any pending timer; further Records are dropped.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = make(map[string]model.Cell)
}
