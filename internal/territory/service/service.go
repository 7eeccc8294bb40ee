// Package service owns the territory ownership state machine: capture
// resolution, lazy write-back decay, cached read queries, and the feeds to
// the realtime and stats collaborators.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"terrarun/internal/platform/metrics"
	"terrarun/internal/platform/redis"
	"terrarun/internal/stats"
	"terrarun/internal/territory/decay"
	"terrarun/internal/territory/model"
	"terrarun/internal/territory/store"
	"terrarun/pkg/gameerrors"
)

// VersionKey is the change-version counter invalidating every territory
// read cache. The season rotator bumps it too.
const VersionKey = "cache:territories:version"

const (
	maxCaptureBatch = 5000
	// bounding box approximation: one degree of latitude is ~111 km
	kmPerDegree = 111.0
)

// Events is the realtime delivery side consumed by the capture path.
type Events interface {
	TerritoriesCaptured(cells []model.Cell)
	SendDefenseAlert(ownerID string, alert model.DefenseAlert)
}

// Service wires the store, decay model, cache, and collaborators together.
type Service struct {
	store   store.Store
	decay   decay.Model
	cache   *redis.Client
	ttl     time.Duration
	stats   stats.Recorder
	events  Events
	logger  *slog.Logger
	metrics *metrics.Metrics

	hardLimit int

	now func() time.Time
}

func New(st store.Store, decayModel decay.Model, cache *redis.Client, cacheTTL time.Duration, recorder stats.Recorder, events Events, hardLimit int, logger *slog.Logger, m *metrics.Metrics) *Service {
	if hardLimit <= 0 {
		hardLimit = 8000
	}
	return &Service{
		store:     st,
		decay:     decayModel,
		cache:     cache,
		ttl:       cacheTTL,
		stats:     recorder,
		events:    events,
		logger:    logger,
		metrics:   m,
		hardLimit: hardLimit,
		now:       time.Now,
	}
}

// SetNow overrides the clock; tests only.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// CaptureRequest is one user's batch of capture intents.
type CaptureRequest struct {
	HexIDs           []string
	Coordinates      []model.LatLng
	RoutePoints      [][]model.LatLng
	CaptureSessionID string
}

// CaptureResult mirrors the REST response: no-op intents are omitted
// entirely, so a retried submission looks like an empty result.
type CaptureResult struct {
	NewTerritories        []model.Cell `json:"newTerritories"`
	RecapturedTerritories []model.Cell `json:"recapturedTerritories"`
	TotalCaptured         int          `json:"totalCaptured"`
}

// Capture applies a batch of capture intents. Validation failures reject the
// whole request before any mutation; a store failure aborts the whole batch.
func (s *Service) Capture(ctx context.Context, userID string, req CaptureRequest) (*CaptureResult, error) {
	if len(req.HexIDs) != len(req.Coordinates) {
		return nil, gameerrors.New(gameerrors.CodeBadRequest, "hexIds and coordinates length mismatch")
	}
	if len(req.HexIDs) == 0 {
		return nil, gameerrors.New(gameerrors.CodeBadRequest, "no territories provided")
	}
	if len(req.HexIDs) > maxCaptureBatch {
		return nil, gameerrors.New(gameerrors.CodeBadRequest, "too many territories in one request")
	}
	for _, coord := range req.Coordinates {
		if coord.Lat < -90 || coord.Lat > 90 || coord.Lng < -180 || coord.Lng > 180 {
			return nil, gameerrors.New(gameerrors.CodeBadRequest, "coordinate out of range")
		}
	}

	sessionID := strings.TrimSpace(req.CaptureSessionID)
	now := s.now()

	existing, err := s.store.GetByHexIDs(ctx, req.HexIDs)
	if err != nil {
		return nil, gameerrors.Wrap(gameerrors.CodeInternal, "capture failed, retry", err)
	}

	type ownerAlert struct {
		ownerID string
		alert   model.DefenseAlert
	}

	result := &CaptureResult{}
	var toSave []*model.Cell
	var broadcast []model.Cell
	var alerts []ownerAlert
	captured := 0

	for i, hexID := range req.HexIDs {
		intent := model.CaptureIntent{
			HexID:       hexID,
			Coordinate:  req.Coordinates[i],
			RoutePoints: routePointsFor(req.RoutePoints, len(req.HexIDs), i),
			SessionID:   sessionID,
		}
		outcome := s.resolveIntent(existing, userID, intent, now)
		if s.metrics != nil {
			s.metrics.CapturesTotal.WithLabelValues(string(outcome.Outcome)).Inc()
		}

		switch outcome.Outcome {
		case model.OutcomeNoOp:
			continue
		case model.OutcomeCreated:
			result.NewTerritories = append(result.NewTerritories, outcome.Cell)
		case model.OutcomeRecaptured:
			result.RecapturedTerritories = append(result.RecapturedTerritories, outcome.Cell)
			alerts = append(alerts, ownerAlert{
				ownerID: outcome.PreviousOwnerID,
				alert: model.DefenseAlert{
					TerritoryID: outcome.Cell.ID,
					HexID:       outcome.Cell.HexID,
					AttackerID:  userID,
					OccurredAt:  now.UnixMilli(),
				},
			})
		}
		captured++
		saved := outcome.Cell
		existing[hexID] = &saved
		toSave = append(toSave, &saved)
		broadcast = append(broadcast, outcome.Cell)
	}

	if len(toSave) > 0 {
		if err := s.store.UpsertBatch(ctx, toSave); err != nil {
			return nil, gameerrors.Wrap(gameerrors.CodeInternal, "capture failed, retry", err)
		}
	}

	result.TotalCaptured = len(result.NewTerritories) + len(result.RecapturedTerritories)

	if s.stats != nil && captured > 0 {
		if err := s.stats.RecordCaptures(ctx, userID, captured); err != nil {
			s.logger.WarnContext(ctx, "stats update failed", "user_id", userID, "error", err)
		}
	}
	if _, err := s.cache.BumpVersion(ctx, VersionKey); err != nil {
		s.logger.WarnContext(ctx, "territory cache version bump failed", "error", err)
	}
	if s.events != nil {
		if len(broadcast) > 0 {
			s.events.TerritoriesCaptured(broadcast)
		}
		for _, a := range alerts {
			s.events.SendDefenseAlert(a.ownerID, a.alert)
		}
	}
	return result, nil
}

// resolveIntent runs the per-cell ownership state machine against the
// prefetched batch. Mutated cells are written back into the batch map by the
// caller so duplicate hex ids within one request see each other's effects.
func (s *Service) resolveIntent(batch map[string]*model.Cell, userID string, intent model.CaptureIntent, now time.Time) model.CaptureOutcome {
	cell, exists := batch[intent.HexID]
	if exists {
		// Lazy decay first; a fully decayed cell is vacant ground.
		if cell.Owned() && s.decay.EffectiveStrength(cell, now) == 0 {
			cell.OwnerID = ""
			cell.Strength = 0
			cell.DecayedAt = now
		}
	}

	switch {
	case !exists:
		created := model.Cell{
			ID:                   uuid.NewString(),
			HexID:                intent.HexID,
			CenterLat:            intent.Coordinate.Lat,
			CenterLng:            intent.Coordinate.Lng,
			OwnerID:              userID,
			Strength:             100,
			CaptureCount:         1,
			RoutePoints:          intent.RoutePoints,
			LastCaptureSessionID: intent.SessionID,
			CapturedAt:           now,
			LastDefendedAt:       now,
		}
		return model.CaptureOutcome{Outcome: model.OutcomeCreated, Cell: created}

	case !cell.Owned():
		// Vacant after decay: ownership restarts but cell history persists.
		next := *cell
		next.OwnerID = userID
		next.Strength = 100
		next.CaptureCount++
		next.Name = ""
		next.RoutePoints = intent.RoutePoints
		next.LastCaptureSessionID = intent.SessionID
		next.CapturedAt = now
		next.LastDefendedAt = now
		next.DecayedAt = time.Time{}
		return model.CaptureOutcome{Outcome: model.OutcomeCreated, Cell: next}

	case cell.OwnerID == userID:
		if intent.SessionID != "" && cell.LastCaptureSessionID == intent.SessionID {
			// Duplicate of an already-applied submission.
			return model.CaptureOutcome{Outcome: model.OutcomeNoOp, Cell: *cell}
		}
		next := *cell
		next.CaptureCount++
		next.Strength = 100
		next.CapturedAt = now
		next.LastDefendedAt = now
		next.LastCaptureSessionID = intent.SessionID
		if len(intent.RoutePoints) > 0 {
			next.RoutePoints = intent.RoutePoints
		}
		return model.CaptureOutcome{Outcome: model.OutcomeRefreshed, Cell: next}

	default:
		previousOwner := cell.OwnerID
		next := *cell
		next.OwnerID = userID
		next.Strength = 100
		next.CaptureCount++
		next.Name = ""
		next.LastBattleAt = now
		next.LastDefendedAt = now
		next.LastCaptureSessionID = intent.SessionID
		next.DecayedAt = time.Time{}
		if len(intent.RoutePoints) > 0 {
			next.RoutePoints = intent.RoutePoints
		}
		return model.CaptureOutcome{
			Outcome:         model.OutcomeRecaptured,
			Cell:            next,
			PreviousOwnerID: previousOwner,
		}
	}
}

// routePointsFor resolves the loop geometry for intent i: one loop per
// intent, one shared loop for the whole batch, or nothing.
func routePointsFor(routes [][]model.LatLng, batchLen, i int) []model.LatLng {
	switch {
	case len(routes) == batchLen:
		return routes[i]
	case len(routes) == 1:
		return routes[0]
	default:
		return nil
	}
}
