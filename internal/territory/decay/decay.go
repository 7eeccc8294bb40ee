// Package decay computes a cell's effective strength from elapsed time.
// It is a pure function; callers decide whether a transition to zero should
// be persisted as an ownership revocation.
package decay

import (
	"time"

	"terrarun/internal/territory/model"
)

const day = 24 * time.Hour

// Model holds the decay tuning. Strength stays untouched for GraceDays after
// the last defense, then drops PerDay points per full day.
type Model struct {
	GraceDays int
	PerDay    int
}

// EffectiveStrength returns the strength the cell would have at now. The
// result is clamped to [0, strength]; it never raises the stored value.
func (m Model) EffectiveStrength(cell *model.Cell, now time.Time) int {
	if !cell.Owned() {
		return 0
	}

	lastActive := cell.CapturedAt
	if cell.LastDefendedAt.After(lastActive) {
		lastActive = cell.LastDefendedAt
	}
	if cell.LastBattleAt.After(lastActive) {
		lastActive = cell.LastBattleAt
	}

	elapsed := now.Sub(lastActive)
	if elapsed < 0 {
		return cell.Strength
	}
	daysSince := int(elapsed / day)
	if daysSince <= m.GraceDays {
		return cell.Strength
	}

	strength := cell.Strength - m.PerDay*(daysSince-m.GraceDays)
	if strength < 0 {
		return 0
	}
	return strength
}
