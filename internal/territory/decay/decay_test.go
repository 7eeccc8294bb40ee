package decay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"terrarun/internal/territory/model"
)

type DecaySuite struct {
	suite.Suite
	model Model
	now   time.Time
}

func (s *DecaySuite) SetupTest() {
	s.model = Model{GraceDays: 14, PerDay: 10}
	s.now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func TestDecaySuite(t *testing.T) {
	suite.Run(t, new(DecaySuite))
}

func (s *DecaySuite) cell(strength int, lastActive time.Time) *model.Cell {
	return &model.Cell{
		HexID:      "8a283082a677fff",
		OwnerID:    "runner-1",
		Strength:   strength,
		CapturedAt: lastActive,
	}
}

func (s *DecaySuite) TestGracePeriod() {
	s.Run("strength untouched within grace", func() {
		cell := s.cell(100, s.now.AddDate(0, 0, -13))
		s.Equal(100, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("strength untouched exactly at grace boundary", func() {
		cell := s.cell(100, s.now.Add(-14*24*time.Hour))
		s.Equal(100, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("fractional day past grace does not decay yet", func() {
		cell := s.cell(100, s.now.Add(-(14*24 + 12) * time.Hour))
		s.Equal(100, s.model.EffectiveStrength(cell, s.now))
	})
}

func (s *DecaySuite) TestLinearDecay() {
	s.Run("loses per-day strength after grace", func() {
		cell := s.cell(100, s.now.Add(-17*24*time.Hour))
		s.Equal(70, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("floors at zero", func() {
		cell := s.cell(100, s.now.Add(-60*24*time.Hour))
		s.Equal(0, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("low starting strength reaches zero sooner", func() {
		cell := s.cell(30, s.now.Add(-18*24*time.Hour))
		s.Equal(0, s.model.EffectiveStrength(cell, s.now))
	})
}

func (s *DecaySuite) TestLastActiveSelection() {
	captured := s.now.Add(-40 * 24 * time.Hour)

	s.Run("defense resets the decay clock", func() {
		cell := s.cell(100, captured)
		cell.LastDefendedAt = s.now.Add(-2 * 24 * time.Hour)
		s.Equal(100, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("battle resets the decay clock", func() {
		cell := s.cell(100, captured)
		cell.LastBattleAt = s.now.Add(-15 * 24 * time.Hour)
		s.Equal(90, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("most recent activity wins", func() {
		cell := s.cell(100, captured)
		cell.LastBattleAt = s.now.Add(-30 * 24 * time.Hour)
		cell.LastDefendedAt = s.now.Add(-10 * 24 * time.Hour)
		s.Equal(100, s.model.EffectiveStrength(cell, s.now))
	})
}

func (s *DecaySuite) TestEdgeCases() {
	s.Run("unowned cell reads zero", func() {
		cell := s.cell(80, s.now.AddDate(0, 0, -1))
		cell.OwnerID = ""
		s.Equal(0, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("future activity timestamp leaves strength unchanged", func() {
		cell := s.cell(100, s.now.Add(24*time.Hour))
		s.Equal(100, s.model.EffectiveStrength(cell, s.now))
	})

	s.Run("pure function does not mutate the cell", func() {
		cell := s.cell(100, s.now.Add(-20*24*time.Hour))
		_ = s.model.EffectiveStrength(cell, s.now)
		s.Equal(100, cell.Strength)
	})
}
