// Package stats is the boundary to the aggregate-stats collaborator. The
// capture path only reports how many cells a request touched; ranking,
// rewards, and season leaderboards live behind this interface.
package stats

import (
	"context"
	"sync"
)

// Recorder receives per-request capture counts.
type Recorder interface {
	RecordCaptures(ctx context.Context, userID string, captured int) error
}

// Memory is a Recorder that accumulates counts in process. It serves tests
// and single-node runs; a real deployment points this interface at the
// profile service.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int)}
}

func (m *Memory) RecordCaptures(_ context.Context, userID string, captured int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[userID] += captured
	return nil
}

// CapturedBy returns the running total for a user.
func (m *Memory) CapturedBy(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[userID]
}
