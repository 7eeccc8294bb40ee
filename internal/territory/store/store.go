// Package store persists territory cells. Implementations are pure I/O;
// ownership rules and lazy decay live in the territory service.
package store

import (
	"context"
	"errors"

	"terrarun/internal/territory/model"
)

// ErrNotFound keeps missing-row signaling consistent across the in-memory
// and Postgres implementations.
var ErrNotFound = errors.New("territory not found")

// BoundingBox is the rectangular approximation of a radius query.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Store is the durable map of hex id to ownership record.
type Store interface {
	// GetByHexIDs returns the stored cells for the given hex ids, keyed by
	// hex id. Unknown ids are simply absent from the result.
	GetByHexIDs(ctx context.Context, hexIDs []string) (map[string]*model.Cell, error)
	// GetByID looks up a single cell by row id.
	GetByID(ctx context.Context, id string) (*model.Cell, error)
	// GetAll returns cells ordered most-recently-captured first. A limit of
	// zero means no limit.
	GetAll(ctx context.Context, limit, offset int) ([]*model.Cell, error)
	// GetByOwner returns a user's cells, most-recently-captured first.
	GetByOwner(ctx context.Context, ownerID string) ([]*model.Cell, error)
	// GetByBoundingBox returns cells inside the box, most-recently-captured
	// first, capped at limit rows.
	GetByBoundingBox(ctx context.Context, box BoundingBox, limit int) ([]*model.Cell, error)
	// GetTopCaptured returns the most-contested cells (capture count
	// descending, capture time breaking ties).
	GetTopCaptured(ctx context.Context, limit int) ([]*model.Cell, error)
	// UpsertBatch writes every cell in one batch. Either all writes apply or
	// none do; partial application would corrupt capture accounting.
	UpsertBatch(ctx context.Context, cells []*model.Cell) error
	// Update rewrites a single existing cell.
	Update(ctx context.Context, cell *model.Cell) error
	// DeleteAll wipes every cell. Only the season rotator calls this.
	DeleteAll(ctx context.Context) error
}
