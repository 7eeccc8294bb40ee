// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CapturesTotal     *prometheus.CounterVec
	BroadcastEvents   prometheus.Counter
	BroadcastCells    prometheus.Counter
	ReplayRequests    prometheus.Counter
	SnapshotBatches   prometheus.Counter
	ConnectedSessions prometheus.Gauge
	SeasonRotations   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CapturesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "terrarun_captures_total",
			Help: "Capture outcomes by type (created, recaptured, refreshed, no-op)",
		}, []string{"outcome"}),
		BroadcastEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrarun_broadcast_events_total",
			Help: "Coalesced territory broadcast events flushed",
		}),
		BroadcastCells: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrarun_broadcast_cells_total",
			Help: "Territory cells carried by broadcast events",
		}),
		ReplayRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrarun_replay_requests_total",
			Help: "Replay catch-up requests served",
		}),
		SnapshotBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrarun_snapshot_batches_total",
			Help: "Snapshot batches emitted to subscribers",
		}),
		ConnectedSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "terrarun_connected_sessions",
			Help: "Live websocket sessions",
		}),
		SeasonRotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "terrarun_season_rotations_total",
			Help: "Season boundary wipes performed",
		}),
	}
}
