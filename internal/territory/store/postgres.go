package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"terrarun/internal/territory/model"
)

// Postgres persists territory cells in PostgreSQL. Row-level write ordering
// arbitrates concurrent captures of the same hex; no application locks are
// taken.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the territories table when missing. Dev and test
// convenience; production schemas are managed externally.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS territories (
			id uuid PRIMARY KEY,
			hex_id VARCHAR(64) NOT NULL UNIQUE,
			center_lat DOUBLE PRECISION NOT NULL,
			center_lng DOUBLE PRECISION NOT NULL,
			owner_id VARCHAR(36),
			strength INT NOT NULL DEFAULT 100,
			capture_count INT NOT NULL DEFAULT 1,
			name VARCHAR(40),
			route_points JSONB,
			last_capture_session_id VARCHAR(64),
			captured_at TIMESTAMPTZ NOT NULL,
			last_defended_at TIMESTAMPTZ,
			last_battle_at TIMESTAMPTZ,
			decayed_at TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("migrate territories: %w", err)
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_territories_owner ON territories (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_territories_center ON territories (center_lat, center_lng)`,
		`CREATE INDEX IF NOT EXISTS idx_territories_captured_at ON territories (captured_at DESC)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate territories index: %w", err)
		}
	}
	return nil
}

const cellColumns = `id, hex_id, center_lat, center_lng, owner_id, strength, capture_count,
	name, route_points, last_capture_session_id, captured_at, last_defended_at, last_battle_at, decayed_at`

func (s *Postgres) GetByHexIDs(ctx context.Context, hexIDs []string) (map[string]*model.Cell, error) {
	if len(hexIDs) == 0 {
		return map[string]*model.Cell{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cellColumns+` FROM territories WHERE hex_id = ANY($1)`,
		pq.Array(hexIDs))
	if err != nil {
		return nil, fmt.Errorf("get territories by hex ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Cell, len(hexIDs))
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		out[cell.HexID] = cell
	}
	return out, rows.Err()
}

func (s *Postgres) GetByID(ctx context.Context, id string) (*model.Cell, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cellColumns+` FROM territories WHERE id = $1`, id)
	cell, err := scanCell(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get territory by id: %w", err)
	}
	return cell, nil
}

func (s *Postgres) GetAll(ctx context.Context, limit, offset int) ([]*model.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cellColumns+` FROM territories ORDER BY captured_at DESC LIMIT NULLIF($1, 0) OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get all territories: %w", err)
	}
	return collectCells(rows)
}

func (s *Postgres) GetByOwner(ctx context.Context, ownerID string) ([]*model.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cellColumns+` FROM territories WHERE owner_id = $1 ORDER BY captured_at DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("get territories by owner: %w", err)
	}
	return collectCells(rows)
}

func (s *Postgres) GetByBoundingBox(ctx context.Context, box BoundingBox, limit int) ([]*model.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cellColumns+` FROM territories
		 WHERE center_lat BETWEEN $1 AND $2 AND center_lng BETWEEN $3 AND $4
		 ORDER BY captured_at DESC LIMIT NULLIF($5, 0)`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, limit)
	if err != nil {
		return nil, fmt.Errorf("get territories by bounding box: %w", err)
	}
	return collectCells(rows)
}

func (s *Postgres) GetTopCaptured(ctx context.Context, limit int) ([]*model.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cellColumns+` FROM territories ORDER BY capture_count DESC, captured_at DESC LIMIT NULLIF($1, 0)`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("get top captured territories: %w", err)
	}
	return collectCells(rows)
}

// UpsertBatch writes all cells in one transaction so a capture batch is
// all-or-nothing.
func (s *Postgres) UpsertBatch(ctx context.Context, cells []*model.Cell) error {
	if len(cells) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO territories (`+cellColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (hex_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			strength = EXCLUDED.strength,
			capture_count = EXCLUDED.capture_count,
			name = EXCLUDED.name,
			route_points = EXCLUDED.route_points,
			last_capture_session_id = EXCLUDED.last_capture_session_id,
			captured_at = EXCLUDED.captured_at,
			last_defended_at = EXCLUDED.last_defended_at,
			last_battle_at = EXCLUDED.last_battle_at,
			decayed_at = EXCLUDED.decayed_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert batch: %w", err)
	}
	defer stmt.Close()

	for _, cell := range cells {
		args, err := cellArgs(cell)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert territory %s: %w", cell.HexID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert batch: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, cell *model.Cell) error {
	args, err := cellArgs(cell)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE territories SET
			hex_id = $2, center_lat = $3, center_lng = $4, owner_id = $5, strength = $6,
			capture_count = $7, name = $8, route_points = $9, last_capture_session_id = $10,
			captured_at = $11, last_defended_at = $12, last_battle_at = $13, decayed_at = $14
		WHERE id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("update territory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update territory rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM territories`); err != nil {
		return fmt.Errorf("delete all territories: %w", err)
	}
	return nil
}

func cellArgs(cell *model.Cell) ([]any, error) {
	var routePoints any
	if len(cell.RoutePoints) > 0 {
		encoded, err := json.Marshal(cell.RoutePoints)
		if err != nil {
			return nil, fmt.Errorf("encode route points for %s: %w", cell.HexID, err)
		}
		routePoints = encoded
	}
	return []any{
		cell.ID,
		cell.HexID,
		cell.CenterLat,
		cell.CenterLng,
		nullString(cell.OwnerID),
		cell.Strength,
		cell.CaptureCount,
		nullString(cell.Name),
		routePoints,
		nullString(cell.LastCaptureSessionID),
		cell.CapturedAt,
		nullTime(cell.LastDefendedAt),
		nullTime(cell.LastBattleAt),
		nullTime(cell.DecayedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCell(row rowScanner) (*model.Cell, error) {
	var (
		cell        model.Cell
		ownerID     sql.NullString
		name        sql.NullString
		routePoints []byte
		sessionID   sql.NullString
		defendedAt  sql.NullTime
		battleAt    sql.NullTime
		decayedAt   sql.NullTime
	)
	err := row.Scan(
		&cell.ID, &cell.HexID, &cell.CenterLat, &cell.CenterLng,
		&ownerID, &cell.Strength, &cell.CaptureCount,
		&name, &routePoints, &sessionID,
		&cell.CapturedAt, &defendedAt, &battleAt, &decayedAt,
	)
	if err != nil {
		return nil, err
	}
	cell.OwnerID = ownerID.String
	cell.Name = name.String
	cell.LastCaptureSessionID = sessionID.String
	if defendedAt.Valid {
		cell.LastDefendedAt = defendedAt.Time
	}
	if battleAt.Valid {
		cell.LastBattleAt = battleAt.Time
	}
	if decayedAt.Valid {
		cell.DecayedAt = decayedAt.Time
	}
	if len(routePoints) > 0 {
		if err := json.Unmarshal(routePoints, &cell.RoutePoints); err != nil {
			return nil, fmt.Errorf("decode route points for %s: %w", cell.HexID, err)
		}
	}
	return &cell, nil
}

func collectCells(rows *sql.Rows) ([]*model.Cell, error) {
	defer rows.Close()
	var out []*model.Cell
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("scan territory: %w", err)
		}
		out = append(out, cell)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
