package store

import (
	"context"
	"sort"
	"sync"

	"terrarun/internal/territory/model"
)

// Memory is the in-memory Store. It backs unit tests and single-node dev
// runs; it intentionally favors clarity over performance.
type Memory struct {
	mu    sync.RWMutex
	byHex map[string]*model.Cell
}

func NewMemory() *Memory {
	return &Memory{byHex: make(map[string]*model.Cell)}
}

func (s *Memory) GetByHexIDs(_ context.Context, hexIDs []string) (map[string]*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*model.Cell, len(hexIDs))
	for _, hexID := range hexIDs {
		if cell, ok := s.byHex[hexID]; ok {
			out[hexID] = cloneCell(cell)
		}
	}
	return out, nil
}

func (s *Memory) GetByID(_ context.Context, id string) (*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cell := range s.byHex {
		if cell.ID == id {
			return cloneCell(cell), nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) GetAll(_ context.Context, limit, offset int) ([]*model.Cell, error) {
	s.mu.RLock()
	cells := s.snapshotLocked()
	s.mu.RUnlock()

	sortByCapturedAtDesc(cells)
	if offset >= len(cells) {
		return nil, nil
	}
	cells = cells[offset:]
	if limit > 0 && len(cells) > limit {
		cells = cells[:limit]
	}
	return cells, nil
}

func (s *Memory) GetByOwner(_ context.Context, ownerID string) ([]*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Cell
	for _, cell := range s.byHex {
		if cell.OwnerID == ownerID {
			out = append(out, cloneCell(cell))
		}
	}
	sortByCapturedAtDesc(out)
	return out, nil
}

func (s *Memory) GetByBoundingBox(_ context.Context, box BoundingBox, limit int) ([]*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Cell
	for _, cell := range s.byHex {
		if cell.CenterLat >= box.MinLat && cell.CenterLat <= box.MaxLat &&
			cell.CenterLng >= box.MinLng && cell.CenterLng <= box.MaxLng {
			out = append(out, cloneCell(cell))
		}
	}
	sortByCapturedAtDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) GetTopCaptured(_ context.Context, limit int) ([]*model.Cell, error) {
	s.mu.RLock()
	cells := s.snapshotLocked()
	s.mu.RUnlock()

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].CaptureCount != cells[j].CaptureCount {
			return cells[i].CaptureCount > cells[j].CaptureCount
		}
		return cells[i].CapturedAt.After(cells[j].CapturedAt)
	})
	if limit > 0 && len(cells) > limit {
		cells = cells[:limit]
	}
	return cells, nil
}

func (s *Memory) UpsertBatch(_ context.Context, cells []*model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cell := range cells {
		s.byHex[cell.HexID] = cloneCell(cell)
	}
	return nil
}

func (s *Memory) Update(_ context.Context, cell *model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHex[cell.HexID]; !ok {
		return ErrNotFound
	}
	s.byHex[cell.HexID] = cloneCell(cell)
	return nil
}

func (s *Memory) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHex = make(map[string]*model.Cell)
	return nil
}

func (s *Memory) snapshotLocked() []*model.Cell {
	cells := make([]*model.Cell, 0, len(s.byHex))
	for _, cell := range s.byHex {
		cells = append(cells, cloneCell(cell))
	}
	return cells
}

func sortByCapturedAtDesc(cells []*model.Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].CapturedAt.After(cells[j].CapturedAt)
	})
}

// cloneCell keeps callers from mutating stored state through returned
// pointers.
func cloneCell(cell *model.Cell) *model.Cell {
	out := *cell
	if cell.RoutePoints != nil {
		out.RoutePoints = make([]model.LatLng, len(cell.RoutePoints))
		copy(out.RoutePoints, cell.RoutePoints)
	}
	return &out
}
