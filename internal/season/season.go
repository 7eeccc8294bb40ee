// Package season derives the active season from a configured epoch and
// wipes territory state at season boundaries. Seasons are computed, never
// stored per-entity; the only persistent piece is the active season id used
// to detect a boundary crossing.
package season

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"terrarun/internal/platform/metrics"
	"terrarun/internal/platform/redis"
)

const seasonKey = "season:current"

// Season describes one fixed-length competitive window.
type Season struct {
	ID          string    `json:"id"`
	Index       int       `json:"index"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	LengthWeeks int       `json:"lengthWeeks"`
}

// Wiper is the destructive half of the territory store. Rotation is the
// only caller.
type Wiper interface {
	DeleteAll(ctx context.Context) error
}

// Rotator detects season transitions and wipes territory state exactly once
// per boundary.
type Rotator struct {
	epoch       time.Time
	lengthWeeks int

	store      Wiper
	cache      *redis.Client
	versionKey string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// fallback when Redis is not configured
	inMemorySeasonID string
}

func NewRotator(epoch string, lengthWeeks int, store Wiper, cache *redis.Client, versionKey string, logger *slog.Logger, m *metrics.Metrics) *Rotator {
	return &Rotator{
		epoch:       parseEpoch(epoch),
		lengthWeeks: lengthWeeks,
		store:       store,
		cache:       cache,
		versionKey:  versionKey,
		logger:      logger,
		metrics:     m,
	}
}

// Current computes the season containing now. Times before the epoch clamp
// to season zero.
func (r *Rotator) Current(now time.Time) Season {
	length := time.Duration(r.lengthWeeks) * 7 * 24 * time.Hour
	index := 0
	if diff := now.Sub(r.epoch); diff >= 0 {
		index = int(diff / length)
	}
	start := r.epoch.Add(time.Duration(index) * length)
	return Season{
		ID:          fmt.Sprintf("s%d", index),
		Index:       index,
		Start:       start,
		End:         start.Add(length),
		LengthWeeks: r.lengthWeeks,
	}
}

// EnsureRotation compares the recorded season id with the computed one and,
// on mismatch, records the new id then wipes the territory map. This is the
// only path that destroys territory records.
func (r *Rotator) EnsureRotation(ctx context.Context, now time.Time) (Season, bool, error) {
	current := r.Current(now)

	var previous string
	if r.cache.Enabled() {
		stored, err := r.cache.GetString(ctx, seasonKey)
		if err != nil {
			return current, false, err
		}
		previous = stored
	} else {
		previous = r.inMemorySeasonID
	}

	if previous == current.ID {
		return current, false, nil
	}

	if r.cache.Enabled() {
		if err := r.cache.SetString(ctx, seasonKey, current.ID); err != nil {
			return current, false, err
		}
	} else {
		r.inMemorySeasonID = current.ID
	}

	// First boot has no previous season; record the id without wiping.
	if previous == "" {
		return current, false, nil
	}

	if err := r.store.DeleteAll(ctx); err != nil {
		return current, false, fmt.Errorf("season wipe: %w", err)
	}
	if _, err := r.cache.BumpVersion(ctx, r.versionKey); err != nil {
		r.logger.WarnContext(ctx, "season rotation version bump failed", "error", err)
	}
	if r.metrics != nil {
		r.metrics.SeasonRotations.Inc()
	}
	r.logger.InfoContext(ctx, "season rotated",
		"previous", previous,
		"season", current.ID,
	)
	return current, true, nil
}

// Run checks for a boundary crossing on every tick until ctx is done.
func (r *Rotator) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, _, err := r.EnsureRotation(ctx, now); err != nil {
				r.logger.WarnContext(ctx, "season rotation check failed", "error", err)
			}
		}
	}
}

func parseEpoch(value string) time.Time {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
}
