package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"terrarun/internal/territory/model"
	"terrarun/internal/territory/store"
	"terrarun/pkg/gameerrors"
)

// All returns cells most-recently-captured first, decayed and cached.
func (s *Service) All(ctx context.Context, limit, offset int) ([]model.Cell, error) {
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}
	if offset < 0 {
		offset = 0
	}
	key := fmt.Sprintf("territories:all:v%d:limit:%d:offset:%d", s.version(ctx), limit, offset)
	return s.cachedQuery(ctx, key, func(ctx context.Context) ([]*model.Cell, error) {
		return s.store.GetAll(ctx, limit, offset)
	})
}

// ByUser returns a user's cells, most-recently-captured first.
func (s *Service) ByUser(ctx context.Context, userID string) ([]model.Cell, error) {
	key := fmt.Sprintf("territories:user:%s:v%d", userID, s.version(ctx))
	return s.cachedQuery(ctx, key, func(ctx context.Context) ([]*model.Cell, error) {
		return s.store.GetByOwner(ctx, userID)
	})
}

// Nearby returns cells within a bounding-box approximation of the radius.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]model.Cell, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, gameerrors.New(gameerrors.CodeBadRequest, "coordinate out of range")
	}
	if radiusKm <= 0 {
		radiusKm = 5
	}
	key := fmt.Sprintf("territories:nearby:v%d:lat:%.4f:lng:%.4f:r:%.2f", s.version(ctx), lat, lng, radiusKm)
	return s.cachedQuery(ctx, key, func(ctx context.Context) ([]*model.Cell, error) {
		return s.store.GetByBoundingBox(ctx, boundingBox(lat, lng, radiusKm), s.hardLimit)
	})
}

// QueryRadius is the snapshot subscription read path: bounding box plus lazy
// decay, capped at the hard row limit, uncached (each subscriber's view is
// point-in-time).
func (s *Service) QueryRadius(ctx context.Context, lat, lng, radiusKm float64) ([]model.Cell, error) {
	cells, err := s.store.GetByBoundingBox(ctx, boundingBox(lat, lng, radiusKm), s.hardLimit)
	if err != nil {
		return nil, err
	}
	return s.applyDecay(ctx, cells)
}

// BossCell decorates a contested cell with its weekly reward label.
type BossCell struct {
	model.Cell
	IsBoss           bool `json:"isBoss"`
	BossRewardPoints int  `json:"bossRewardPoints"`
}

// Boss returns this week's boss targets: a deterministic rotation over the
// most-captured cells so every client sees the same picks all week.
func (s *Service) Boss(ctx context.Context, limit int) ([]BossCell, error) {
	if limit <= 0 {
		limit = 3
	}
	if limit > 10 {
		limit = 10
	}
	key := fmt.Sprintf("territories:boss:v%d:limit:%d", s.version(ctx), limit)
	var cached []BossCell
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	poolSize := limit
	if poolSize < 20 {
		poolSize = 20
	}
	candidates, err := s.store.GetTopCaptured(ctx, poolSize)
	if err != nil {
		return nil, gameerrors.Wrap(gameerrors.CodeInternal, "boss query failed", err)
	}
	decayed, err := s.applyDecay(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if len(decayed) == 0 {
		return nil, nil
	}

	start := weekIndex(s.now()) % len(decayed)
	count := limit
	if count > len(decayed) {
		count = len(decayed)
	}
	bosses := make([]BossCell, 0, count)
	for i := 0; i < count; i++ {
		bosses = append(bosses, BossCell{
			Cell:             decayed[(start+i)%len(decayed)],
			IsBoss:           true,
			BossRewardPoints: 200 + i*50,
		})
	}
	if err := s.cache.SetJSON(ctx, key, bosses, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "boss cache write failed", "error", err)
	}
	return bosses, nil
}

// Rename sets or clears a cell's display name. Owner only.
func (s *Service) Rename(ctx context.Context, userID, territoryID, name string) (*model.Cell, error) {
	cell, err := s.store.GetByID(ctx, territoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, gameerrors.New(gameerrors.CodeNotFound, "territory not found")
	}
	if err != nil {
		return nil, gameerrors.Wrap(gameerrors.CodeInternal, "territory lookup failed", err)
	}
	if cell.OwnerID != userID {
		return nil, gameerrors.New(gameerrors.CodeForbidden, "only the owner can rename this territory")
	}

	trimmed := trimName(name)
	if len([]rune(trimmed)) > 40 {
		return nil, gameerrors.New(gameerrors.CodeBadRequest, "territory name is too long")
	}
	if len(trimmed) > 0 && len([]rune(trimmed)) < 2 {
		return nil, gameerrors.New(gameerrors.CodeBadRequest, "territory name is too short")
	}

	cell.Name = trimmed
	if err := s.store.Update(ctx, cell); err != nil {
		return nil, gameerrors.Wrap(gameerrors.CodeInternal, "territory rename failed", err)
	}
	if _, err := s.cache.BumpVersion(ctx, VersionKey); err != nil {
		s.logger.WarnContext(ctx, "territory cache version bump failed", "error", err)
	}
	return cell, nil
}

// cachedQuery runs a store read through the version-keyed cache with the
// decay pass applied on miss.
func (s *Service) cachedQuery(ctx context.Context, key string, query func(context.Context) ([]*model.Cell, error)) ([]model.Cell, error) {
	var cached []model.Cell
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	cells, err := query(ctx)
	if err != nil {
		return nil, gameerrors.Wrap(gameerrors.CodeInternal, "territory query failed", err)
	}
	out, err := s.applyDecay(ctx, cells)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, out, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "territory cache write failed", "error", err)
	}
	return out, nil
}

// applyDecay rewrites every returned cell to its effective strength and
// persists ownership revocations before returning, so future reads agree
// (write-back lazy decay, no background sweep).
func (s *Service) applyDecay(ctx context.Context, cells []*model.Cell) ([]model.Cell, error) {
	now := s.now()
	out := make([]model.Cell, 0, len(cells))
	var revoked []*model.Cell
	for _, cell := range cells {
		view := *cell
		if view.Owned() {
			effective := s.decay.EffectiveStrength(&view, now)
			if effective == 0 {
				view.OwnerID = ""
				view.Strength = 0
				view.DecayedAt = now
				persist := view
				revoked = append(revoked, &persist)
			} else {
				view.Strength = effective
			}
		}
		out = append(out, view)
	}
	if len(revoked) > 0 {
		if err := s.store.UpsertBatch(ctx, revoked); err != nil {
			return nil, gameerrors.Wrap(gameerrors.CodeInternal, "decay write-back failed", err)
		}
		if _, err := s.cache.BumpVersion(ctx, VersionKey); err != nil {
			s.logger.WarnContext(ctx, "territory cache version bump failed", "error", err)
		}
	}
	return out, nil
}

func (s *Service) version(ctx context.Context) int64 {
	version, err := s.cache.GetVersion(ctx, VersionKey)
	if err != nil {
		s.logger.WarnContext(ctx, "territory cache version read failed", "error", err)
		return 1
	}
	return version
}

func boundingBox(lat, lng, radiusKm float64) store.BoundingBox {
	latDelta := radiusKm / kmPerDegree
	lngDelta := radiusKm / (kmPerDegree * math.Cos(lat*math.Pi/180))
	return store.BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}

func weekIndex(now time.Time) int {
	epoch := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(now.Sub(epoch) / (7 * 24 * time.Hour))
}

func trimName(name string) string {
	return strings.TrimSpace(name)
}
