package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"terrarun/internal/platform/metrics"
	"terrarun/internal/territory/model"
)

const snapshotErrorLogCooldown = 5 * time.Second

// TerritoryReader serves radius-bounded views of the territory map with
// lazy decay already applied. The territory service implements it.
type TerritoryReader interface {
	QueryRadius(ctx context.Context, lat, lng, radiusKm float64) ([]model.Cell, error)
}

// SnapshotConfig bounds what a single subscription may ask for.
type SnapshotConfig struct {
	MinRadiusKm float64
	MaxRadiusKm float64
	BatchMin    int
	BatchMax    int
	BatchPause  time.Duration
	RadiusPause time.Duration
}

const defaultBatchSize = 450

// Snapshotter streams bounded, paginated, radius-filtered point-in-time
// views of the territory map to newly subscribing clients.
type Snapshotter struct {
	reader  TerritoryReader
	cfg     SnapshotConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	errMu     sync.Mutex
	lastErrAt time.Time
}

func NewSnapshotter(reader TerritoryReader, cfg SnapshotConfig, logger *slog.Logger, m *metrics.Metrics) *Snapshotter {
	return &Snapshotter{reader: reader, cfg: cfg, logger: logger, metrics: m}
}

// Stream serves one subscription. token came from sess.BeginSnapshot; a
// newer subscribe or a disconnect invalidates it and emission halts at the
// next checkpoint. Safe to run on its own goroutine.
func (s *Snapshotter) Stream(ctx context.Context, sess *Session, token string, req SubscribeRequest) {
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return
	}
	radii := s.normalizeRadii(req)
	if len(radii) == 0 {
		return
	}
	batchSize := clampInt(req.BatchSize, s.cfg.BatchMin, s.cfg.BatchMax, defaultBatchSize)

	seen := make(map[string]struct{})
	for _, radiusKm := range radii {
		if !sess.SnapshotActive(token) {
			return
		}
		cells, err := s.reader.QueryRadius(ctx, req.Lat, req.Lng, radiusKm)
		if err != nil {
			s.logQueryError(err)
			return
		}
		if !sess.SnapshotActive(token) {
			return
		}

		// Overlapping radii never double-send a cell.
		filtered := cells[:0:0]
		for _, cell := range cells {
			if _, dup := seen[cell.HexID]; dup {
				continue
			}
			seen[cell.HexID] = struct{}{}
			filtered = append(filtered, cell)
		}

		if !s.emitBatches(ctx, sess, token, filtered, radiusKm, batchSize) {
			return
		}
		if !sleepCtx(ctx, s.cfg.RadiusPause) || !sess.SnapshotActive(token) {
			return
		}
	}
}

// emitBatches pages one radius's cells to the session; false means the
// subscription was cancelled or the connection died.
func (s *Snapshotter) emitBatches(ctx context.Context, sess *Session, token string, cells []model.Cell, radiusKm float64, batchSize int) bool {
	if len(cells) == 0 {
		return true
	}
	batchCount := (len(cells) + batchSize - 1) / batchSize

	for i := 0; i < len(cells); i += batchSize {
		if !sess.SnapshotActive(token) {
			return false
		}
		end := i + batchSize
		if end > len(cells) {
			end = len(cells)
		}
		batch := SnapshotBatch{
			EventID:     uuid.NewString(),
			TS:          time.Now().UnixMilli(),
			RadiusKm:    radiusKm,
			BatchIndex:  i/batchSize + 1,
			BatchCount:  batchCount,
			Territories: cells[i:end],
		}
		if err := sess.send(EventTerritorySnapshot, batch); err != nil {
			return false
		}
		if s.metrics != nil {
			s.metrics.SnapshotBatches.Inc()
		}
		if end < len(cells) {
			if !sleepCtx(ctx, s.cfg.BatchPause) {
				return false
			}
		}
	}
	return true
}

// normalizeRadii clamps, dedupes, and sorts the requested radii ascending so
// nearby cells arrive first.
func (s *Snapshotter) normalizeRadii(req SubscribeRequest) []float64 {
	raw := req.RadiiKm
	if len(raw) == 0 {
		radius := req.RadiusKm
		if radius == 0 {
			radius = 20
		}
		raw = []float64{radius}
	}
	unique := make(map[float64]struct{}, len(raw))
	var radii []float64
	for _, radius := range raw {
		if radius <= 0 {
			continue
		}
		clamped := clampFloat(radius, s.cfg.MinRadiusKm, s.cfg.MaxRadiusKm)
		if _, dup := unique[clamped]; dup {
			continue
		}
		unique[clamped] = struct{}{}
		radii = append(radii, clamped)
	}
	sort.Float64s(radii)
	return radii
}

// logQueryError logs at most once per cooldown window; a failing store
// during a reconnect storm must not flood the log.
func (s *Snapshotter) logQueryError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	now := time.Now()
	if now.Sub(s.lastErrAt) < snapshotErrorLogCooldown {
		return
	}
	s.lastErrAt = now
	s.logger.Warn("territory snapshot query failed", "error", err)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value, min, max, fallback int) int {
	if value == 0 {
		value = fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
