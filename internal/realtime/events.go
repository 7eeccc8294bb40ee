package realtime

import (
	"time"

	"terrarun/internal/platform/metrics"
	"terrarun/internal/territory/model"
)

// Events is the capture pipeline's delivery side: outcomes flow through the
// coalescer, and each flushed batch lands in the replay buffer before being
// broadcast to the global room. Defense alerts bypass coalescing and go
// straight to the dispossessed owner's connections.
type Events struct {
	hub       *Hub
	replay    *ReplayBuffer
	coalescer *Coalescer
	metrics   *metrics.Metrics
}

func NewEvents(hub *Hub, replay *ReplayBuffer, window time.Duration, m *metrics.Metrics) *Events {
	e := &Events{hub: hub, replay: replay, metrics: m}
	e.coalescer = NewCoalescer(window, e.deliver)
	return e
}

func (e *Events) deliver(event model.BroadcastEvent) {
	e.replay.Push(event)
	if e.metrics != nil {
		e.metrics.BroadcastEvents.Inc()
		e.metrics.BroadcastCells.Add(float64(len(event.Territories)))
	}
	e.hub.BroadcastGlobal(EventTerritoryCaptured, event)
}

// TerritoriesCaptured feeds capture outcome snapshots into the coalescing
// window.
func (e *Events) TerritoriesCaptured(cells []model.Cell) {
	e.coalescer.Record(cells)
}

// SendDefenseAlert notifies the previous owner of a recaptured cell.
func (e *Events) SendDefenseAlert(ownerID string, alert model.DefenseAlert) {
	e.hub.SendToUser(ownerID, EventTerritoryDefenseAlert, alert)
}

// Close stops the coalescer's pending flush.
func (e *Events) Close() {
	e.coalescer.Close()
}
