// Package model holds the territory data records. Records reference peers by
// id only; there are no object graphs between owners and cells, so batched
// repository lookups stay the sole join mechanism.
package model

import "time"

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Cell is one hex of the territory grid. HexID is the opaque, stable grid
// identifier produced by the client-side hex library; ID is the row identity.
type Cell struct {
	ID                   string    `json:"id"`
	HexID                string    `json:"hexId"`
	CenterLat            float64   `json:"latitude"`
	CenterLng            float64   `json:"longitude"`
	OwnerID              string    `json:"ownerId,omitempty"`
	Strength             int       `json:"strength"`
	CaptureCount         int       `json:"captureCount"`
	Name                 string    `json:"name,omitempty"`
	RoutePoints          []LatLng  `json:"routePoints,omitempty"`
	LastCaptureSessionID string    `json:"-"`
	CapturedAt           time.Time `json:"capturedAt"`
	LastDefendedAt       time.Time `json:"lastDefendedAt,omitzero"`
	LastBattleAt         time.Time `json:"lastBattleAt,omitzero"`
	DecayedAt            time.Time `json:"decayedAt,omitzero"`
}

// Owned reports whether the cell currently has an owner.
func (c *Cell) Owned() bool { return c.OwnerID != "" }

// Outcome classifies what a capture intent did to one cell.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeRecaptured Outcome = "recaptured"
	OutcomeRefreshed  Outcome = "refreshed"
	OutcomeNoOp       Outcome = "no-op"
)

// CaptureIntent is one requested capture within a batch, already paired with
// its coordinate and optional loop geometry.
type CaptureIntent struct {
	HexID       string
	Coordinate  LatLng
	RoutePoints []LatLng
	SessionID   string
}

// CaptureOutcome pairs the classification with the resulting cell snapshot.
// The PreviousOwnerID is set on recaptures so the dispossessed owner can be
// alerted.
type CaptureOutcome struct {
	Outcome         Outcome
	Cell            Cell
	PreviousOwnerID string
}

// DefenseAlert tells a dispossessed owner which cell they just lost.
type DefenseAlert struct {
	TerritoryID string `json:"territoryId"`
	HexID       string `json:"hexId"`
	AttackerID  string `json:"attackerId"`
	OccurredAt  int64  `json:"occurredAt"`
}

// BroadcastEvent is one coalesced batch of cell snapshots pushed to clients
// and retained in the replay buffer.
type BroadcastEvent struct {
	EventID     string `json:"eventId"`
	TS          int64  `json:"ts"`
	Territories []Cell `json:"territories"`
	Replay      bool   `json:"replay,omitempty"`
}
