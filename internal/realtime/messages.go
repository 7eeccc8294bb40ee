package realtime

import (
	"encoding/json"

	"terrarun/internal/territory/model"
)

// Event names on the wire. The client speaks the same names over its single
// bidirectional connection.
const (
	// client -> server
	EventLocationUpdate     = "location:update"
	EventTerritorySubscribe = "territory:subscribe"
	EventTerritoryReplay    = "territory:replay"
	EventTerritoryAck       = "territory:ack"

	// server -> client
	EventTerritoryCaptured     = "territory:captured"
	EventTerritorySnapshot     = "territory:snapshot"
	EventTerritoryDefenseAlert = "territory:defense_alert"
	EventUserLocation          = "user:location"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// LocationUpdate moves the connection between geo tile rooms and is
// re-broadcast to nearby players.
type LocationUpdate struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Speed float64 `json:"speed"`
}

// LocationBroadcast is a LocationUpdate stamped with the sender.
type LocationBroadcast struct {
	UserID string  `json:"userId"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Speed  float64 `json:"speed"`
}

// SubscribeRequest asks for a paged point-in-time snapshot around a center.
// RadiiKm takes precedence over the single RadiusKm form.
type SubscribeRequest struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	RadiiKm   []float64 `json:"radiiKm"`
	RadiusKm  float64   `json:"radiusKm"`
	BatchSize int       `json:"batchSize"`
}

// ReplayRequest asks for every retained broadcast newer than Since (unix ms).
type ReplayRequest struct {
	Since int64 `json:"since"`
}

// AckRequest records the newest broadcast timestamp a client has applied.
type AckRequest struct {
	EventID string `json:"eventId"`
	TS      int64  `json:"ts"`
}

// SnapshotBatch is one page of a snapshot subscription response.
type SnapshotBatch struct {
	EventID     string       `json:"eventId"`
	TS          int64        `json:"ts"`
	RadiusKm    float64      `json:"radiusKm"`
	BatchIndex  int          `json:"batchIndex"`
	BatchCount  int          `json:"batchCount"`
	Territories []model.Cell `json:"territories"`
}
