package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"terrarun/internal/territory/model"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
	base  time.Time
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
	s.base = time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) seed(cells ...*model.Cell) {
	s.Require().NoError(s.store.UpsertBatch(s.ctx, cells))
}

func (s *MemoryStoreSuite) cell(hexID, ownerID string, capturedAt time.Time) *model.Cell {
	return &model.Cell{
		ID:           "id-" + hexID,
		HexID:        hexID,
		OwnerID:      ownerID,
		Strength:     100,
		CaptureCount: 1,
		CapturedAt:   capturedAt,
	}
}

func (s *MemoryStoreSuite) TestGetByHexIDs() {
	s.seed(
		s.cell("hex-a", "u1", s.base),
		s.cell("hex-b", "u2", s.base.Add(time.Hour)),
	)

	s.Run("returns only known ids keyed by hex id", func() {
		got, err := s.store.GetByHexIDs(s.ctx, []string{"hex-a", "hex-missing", "hex-b"})
		s.Require().NoError(err)
		s.Len(got, 2)
		s.Equal("u1", got["hex-a"].OwnerID)
		s.Equal("u2", got["hex-b"].OwnerID)
	})

	s.Run("returned cells are copies", func() {
		got, err := s.store.GetByHexIDs(s.ctx, []string{"hex-a"})
		s.Require().NoError(err)
		got["hex-a"].OwnerID = "mutated"

		again, err := s.store.GetByHexIDs(s.ctx, []string{"hex-a"})
		s.Require().NoError(err)
		s.Equal("u1", again["hex-a"].OwnerID)
	})
}

func (s *MemoryStoreSuite) TestGetByID() {
	s.seed(s.cell("hex-a", "u1", s.base))

	got, err := s.store.GetByID(s.ctx, "id-hex-a")
	s.Require().NoError(err)
	s.Equal("hex-a", got.HexID)

	_, err = s.store.GetByID(s.ctx, "id-unknown")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestGetAllOrderingAndPaging() {
	s.seed(
		s.cell("hex-old", "u1", s.base),
		s.cell("hex-mid", "u1", s.base.Add(time.Hour)),
		s.cell("hex-new", "u2", s.base.Add(2*time.Hour)),
	)

	s.Run("most recent capture first", func() {
		got, err := s.store.GetAll(s.ctx, 0, 0)
		s.Require().NoError(err)
		s.Require().Len(got, 3)
		s.Equal("hex-new", got[0].HexID)
		s.Equal("hex-old", got[2].HexID)
	})

	s.Run("limit and offset apply after sorting", func() {
		got, err := s.store.GetAll(s.ctx, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("hex-mid", got[0].HexID)
	})

	s.Run("offset past the end returns empty", func() {
		got, err := s.store.GetAll(s.ctx, 10, 99)
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *MemoryStoreSuite) TestGetByOwner() {
	s.seed(
		s.cell("hex-a", "u1", s.base),
		s.cell("hex-b", "u1", s.base.Add(time.Hour)),
		s.cell("hex-c", "u2", s.base),
	)

	got, err := s.store.GetByOwner(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("hex-b", got[0].HexID)
}

func (s *MemoryStoreSuite) TestGetByBoundingBox() {
	inside := s.cell("hex-in", "u1", s.base)
	inside.CenterLat, inside.CenterLng = 60.17, 24.94
	edge := s.cell("hex-edge", "u1", s.base.Add(time.Hour))
	edge.CenterLat, edge.CenterLng = 60.20, 24.90
	outside := s.cell("hex-out", "u2", s.base)
	outside.CenterLat, outside.CenterLng = 61.0, 25.5
	s.seed(inside, edge, outside)

	box := BoundingBox{MinLat: 60.1, MaxLat: 60.2, MinLng: 24.8, MaxLng: 25.0}

	got, err := s.store.GetByBoundingBox(s.ctx, box, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("hex-edge", got[0].HexID)

	capped, err := s.store.GetByBoundingBox(s.ctx, box, 1)
	s.Require().NoError(err)
	s.Len(capped, 1)
}

func (s *MemoryStoreSuite) TestGetTopCaptured() {
	quiet := s.cell("hex-quiet", "u1", s.base)
	contested := s.cell("hex-contested", "u2", s.base)
	contested.CaptureCount = 7
	recent := s.cell("hex-recent", "u3", s.base.Add(time.Hour))
	recent.CaptureCount = 7
	s.seed(quiet, contested, recent)

	got, err := s.store.GetTopCaptured(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("hex-recent", got[0].HexID)
	s.Equal("hex-contested", got[1].HexID)
}

func (s *MemoryStoreSuite) TestUpsertAndUpdate() {
	s.Run("upsert overwrites by hex id", func() {
		s.seed(s.cell("hex-a", "u1", s.base))
		replacement := s.cell("hex-a", "u2", s.base.Add(time.Hour))
		replacement.CaptureCount = 2
		s.seed(replacement)

		got, err := s.store.GetByHexIDs(s.ctx, []string{"hex-a"})
		s.Require().NoError(err)
		s.Equal("u2", got["hex-a"].OwnerID)
		s.Equal(2, got["hex-a"].CaptureCount)
	})

	s.Run("update requires an existing row", func() {
		err := s.store.Update(s.ctx, s.cell("hex-new", "u1", s.base))
		s.Require().ErrorIs(err, ErrNotFound)
	})

	s.Run("update stores a copy", func() {
		cell := s.cell("hex-b", "u1", s.base)
		s.seed(cell)
		cell.Name = "Harbor"
		s.Require().NoError(s.store.Update(s.ctx, cell))
		cell.Name = "mutated after update"

		got, err := s.store.GetByHexIDs(s.ctx, []string{"hex-b"})
		s.Require().NoError(err)
		s.Equal("Harbor", got["hex-b"].Name)
	})
}

func (s *MemoryStoreSuite) TestDeleteAll() {
	s.seed(s.cell("hex-a", "u1", s.base), s.cell("hex-b", "u2", s.base))

	s.Require().NoError(s.store.DeleteAll(s.ctx))

	got, err := s.store.GetAll(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Empty(got)
}
