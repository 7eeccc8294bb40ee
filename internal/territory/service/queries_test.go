package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"terrarun/internal/stats"
	"terrarun/internal/territory/decay"
	"terrarun/internal/territory/model"
	"terrarun/internal/territory/store"
	"terrarun/pkg/gameerrors"
)

type QueriesSuite struct {
	suite.Suite

	ctx     context.Context
	store   *store.Memory
	service *Service
	now     time.Time
}

func (s *QueriesSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.now = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.store, decay.Model{GraceDays: 14, PerDay: 10}, nil, 0, stats.NewMemory(), newRecordingEvents(), 8000, logger, nil)
	s.service.SetNow(func() time.Time { return s.now })
}

func TestQueriesSuite(t *testing.T) {
	suite.Run(t, new(QueriesSuite))
}

func (s *QueriesSuite) seed(cells ...*model.Cell) {
	s.Require().NoError(s.store.UpsertBatch(s.ctx, cells))
}

func (s *QueriesSuite) ownedCell(hexID, ownerID string, capturedAt time.Time) *model.Cell {
	return &model.Cell{
		ID:           "id-" + hexID,
		HexID:        hexID,
		OwnerID:      ownerID,
		Strength:     100,
		CaptureCount: 1,
		CapturedAt:   capturedAt,
	}
}

func (s *QueriesSuite) TestAllAppliesDecayToView() {
	s.seed(
		s.ownedCell("hex-fresh", "u1", s.now.AddDate(0, 0, -1)),
		s.ownedCell("hex-stale", "u2", s.now.AddDate(0, 0, -17)),
	)

	cells, err := s.service.All(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(cells, 2)

	byHex := make(map[string]model.Cell, len(cells))
	for _, cell := range cells {
		byHex[cell.HexID] = cell
	}
	s.Equal(100, byHex["hex-fresh"].Strength)
	s.Equal(70, byHex["hex-stale"].Strength)
	s.Equal("u2", byHex["hex-stale"].OwnerID, "partial decay keeps ownership")
}

func (s *QueriesSuite) TestDecayWriteBackRevokesOwnership() {
	s.seed(s.ownedCell("hex-gone", "u1", s.now.AddDate(0, 0, -30)))

	cells, err := s.service.All(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(cells, 1)
	s.Empty(cells[0].OwnerID)
	s.Equal(0, cells[0].Strength)
	s.Equal(s.now, cells[0].DecayedAt)

	// The revocation persisted: the owner's list is now empty.
	mine, err := s.service.ByUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(mine)

	stored, err := s.store.GetByHexIDs(s.ctx, []string{"hex-gone"})
	s.Require().NoError(err)
	s.Empty(stored["hex-gone"].OwnerID)
	s.Equal(1, stored["hex-gone"].CaptureCount, "history survives revocation")
}

func (s *QueriesSuite) TestNearby() {
	near := s.ownedCell("hex-near", "u1", s.now)
	near.CenterLat, near.CenterLng = 60.17, 24.94
	far := s.ownedCell("hex-far", "u1", s.now)
	far.CenterLat, far.CenterLng = 61.5, 26.0
	s.seed(near, far)

	s.Run("returns only cells inside the bounding box", func() {
		cells, err := s.service.Nearby(s.ctx, 60.17, 24.94, 5)
		s.Require().NoError(err)
		s.Require().Len(cells, 1)
		s.Equal("hex-near", cells[0].HexID)
	})

	s.Run("rejects invalid center", func() {
		_, err := s.service.Nearby(s.ctx, 120, 24.94, 5)
		s.Require().True(gameerrors.Is(err, gameerrors.CodeBadRequest))
	})
}

func (s *QueriesSuite) TestBossRotation() {
	for i, hexID := range []string{"hex-a", "hex-b", "hex-c"} {
		cell := s.ownedCell(hexID, "u1", s.now.Add(-time.Duration(i)*time.Hour))
		cell.CaptureCount = 10 - i
		s.seed(cell)
	}

	first, err := s.service.Boss(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.True(first[0].IsBoss)
	s.Equal(200, first[0].BossRewardPoints)
	s.Equal(250, first[1].BossRewardPoints)

	s.Run("stable within the same week", func() {
		s.now = s.now.Add(24 * time.Hour)
		again, err := s.service.Boss(s.ctx, 2)
		s.Require().NoError(err)
		s.Equal(first[0].HexID, again[0].HexID)
		s.Equal(first[1].HexID, again[1].HexID)
	})

	s.Run("rotates the following week", func() {
		s.now = s.now.Add(7 * 24 * time.Hour)
		next, err := s.service.Boss(s.ctx, 2)
		s.Require().NoError(err)
		s.NotEqual(first[0].HexID, next[0].HexID)
	})

	s.Run("empty map yields no bosses", func() {
		s.Require().NoError(s.store.DeleteAll(s.ctx))
		none, err := s.service.Boss(s.ctx, 3)
		s.Require().NoError(err)
		s.Empty(none)
	})
}

func (s *QueriesSuite) TestRename() {
	s.seed(s.ownedCell("hex-a", "u1", s.now))

	s.Run("owner sets a name", func() {
		cell, err := s.service.Rename(s.ctx, "u1", "id-hex-a", "  Harbor Loop  ")
		s.Require().NoError(err)
		s.Equal("Harbor Loop", cell.Name)
	})

	s.Run("owner clears the name", func() {
		cell, err := s.service.Rename(s.ctx, "u1", "id-hex-a", "")
		s.Require().NoError(err)
		s.Empty(cell.Name)
	})

	s.Run("non-owner is rejected", func() {
		_, err := s.service.Rename(s.ctx, "u2", "id-hex-a", "Mine Now")
		s.Require().True(gameerrors.Is(err, gameerrors.CodeForbidden))
	})

	s.Run("unknown territory", func() {
		_, err := s.service.Rename(s.ctx, "u1", "id-missing", "Anything")
		s.Require().True(gameerrors.Is(err, gameerrors.CodeNotFound))
	})

	s.Run("length limits", func() {
		long := make([]byte, 41)
		for i := range long {
			long[i] = 'x'
		}
		_, err := s.service.Rename(s.ctx, "u1", "id-hex-a", string(long))
		s.Require().True(gameerrors.Is(err, gameerrors.CodeBadRequest))

		_, err = s.service.Rename(s.ctx, "u1", "id-hex-a", "x")
		s.Require().True(gameerrors.Is(err, gameerrors.CodeBadRequest))
	})
}

func (s *QueriesSuite) TestQueryRadiusHonorsHardLimit() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limited := New(s.store, decay.Model{GraceDays: 14, PerDay: 10}, nil, 0, stats.NewMemory(), newRecordingEvents(), 2, logger, nil)
	limited.SetNow(func() time.Time { return s.now })

	for _, hexID := range []string{"hex-a", "hex-b", "hex-c"} {
		cell := s.ownedCell(hexID, "u1", s.now)
		cell.CenterLat, cell.CenterLng = 60.17, 24.94
		s.seed(cell)
	}

	cells, err := limited.QueryRadius(s.ctx, 60.17, 24.94, 5)
	s.Require().NoError(err)
	s.Len(cells, 2)
}
