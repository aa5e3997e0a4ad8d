package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
)

// ResolutionRepository persists conflict resolutions in PostgreSQL, keyed by
// conflict_id with upsert semantics.
type ResolutionRepository struct {
	db *sqlx.DB
}

// NewResolutionRepository constructs the repository.
func NewResolutionRepository(db *sqlx.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

type resolutionRow struct {
	ConflictID       string         `db:"conflict_id"`
	ConflictType     string         `db:"conflict_type"`
	ResolutionType   string         `db:"resolution_type"`
	AffectedEventIDs pq.StringArray `db:"affected_event_ids"`
	ResolutionData   []byte         `db:"resolution_data"`
	ConflictMessage  string         `db:"conflict_message"`
	ResolvedAt       time.Time      `db:"resolved_at"`
	ExpiresAt        *time.Time     `db:"expires_at"`
}

func (r resolutionRow) toModel() (models.ConflictResolution, error) {
	resolution := models.ConflictResolution{
		ConflictID:       r.ConflictID,
		ConflictType:     models.ConflictType(r.ConflictType),
		ResolutionType:   models.ResolutionType(r.ResolutionType),
		AffectedEventIDs: []string(r.AffectedEventIDs),
		ConflictMessage:  r.ConflictMessage,
		ResolvedAt:       r.ResolvedAt,
		ExpiresAt:        r.ExpiresAt,
	}
	if len(r.ResolutionData) > 0 {
		if err := json.Unmarshal(r.ResolutionData, &resolution.ResolutionData); err != nil {
			return resolution, fmt.Errorf("decode resolution data for %s: %w", r.ConflictID, err)
		}
	}
	return resolution, nil
}

// Upsert inserts or overwrites the resolution for a conflict id.
func (r *ResolutionRepository) Upsert(ctx context.Context, resolution *models.ConflictResolution) error {
	const query = `INSERT INTO conflict_resolutions
(conflict_id, conflict_type, resolution_type, affected_event_ids, resolution_data, conflict_message, resolved_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (conflict_id)
DO UPDATE SET conflict_type = EXCLUDED.conflict_type, resolution_type = EXCLUDED.resolution_type,
              affected_event_ids = EXCLUDED.affected_event_ids, resolution_data = EXCLUDED.resolution_data,
              conflict_message = EXCLUDED.conflict_message, resolved_at = EXCLUDED.resolved_at,
              expires_at = EXCLUDED.expires_at`

	data, err := json.Marshal(resolution.ResolutionData)
	if err != nil {
		return fmt.Errorf("encode resolution data: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query,
		resolution.ConflictID,
		string(resolution.ConflictType),
		string(resolution.ResolutionType),
		pq.StringArray(resolution.AffectedEventIDs),
		data,
		resolution.ConflictMessage,
		resolution.ResolvedAt,
		resolution.ExpiresAt,
	); err != nil {
		return fmt.Errorf("upsert resolution: %w", err)
	}
	return nil
}

// Get fetches one resolution, nil when absent.
func (r *ResolutionRepository) Get(ctx context.Context, conflictID string) (*models.ConflictResolution, error) {
	const query = `SELECT conflict_id, conflict_type, resolution_type, affected_event_ids, resolution_data, conflict_message, resolved_at, expires_at
FROM conflict_resolutions WHERE conflict_id = $1`

	var row resolutionRow
	if err := r.db.GetContext(ctx, &row, query, conflictID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get resolution: %w", err)
	}
	resolution, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &resolution, nil
}

// GetByIDs batch-fetches resolutions for the given conflict ids.
func (r *ResolutionRepository) GetByIDs(ctx context.Context, conflictIDs []string) ([]models.ConflictResolution, error) {
	if len(conflictIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT conflict_id, conflict_type, resolution_type, affected_event_ids, resolution_data, conflict_message, resolved_at, expires_at
FROM conflict_resolutions WHERE conflict_id IN (%s)`, placeholders(len(conflictIDs)))
	args := make([]interface{}, len(conflictIDs))
	for i, id := range conflictIDs {
		args[i] = id
	}

	var rows []resolutionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("batch get resolutions: %w", err)
	}

	resolutions := make([]models.ConflictResolution, 0, len(rows))
	for _, row := range rows {
		resolution, err := row.toModel()
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

// Delete removes a resolution. Deleting an absent id is not an error.
func (r *ResolutionRepository) Delete(ctx context.Context, conflictID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conflict_resolutions WHERE conflict_id = $1`, conflictID); err != nil {
		return fmt.Errorf("delete resolution: %w", err)
	}
	return nil
}

// DeleteMany removes a batch of resolutions.
func (r *ResolutionRepository) DeleteMany(ctx context.Context, conflictIDs []string) error {
	if len(conflictIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM conflict_resolutions WHERE conflict_id IN (%s)`, placeholders(len(conflictIDs)))
	args := make([]interface{}, len(conflictIDs))
	for i, id := range conflictIDs {
		args[i] = id
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete resolutions: %w", err)
	}
	return nil
}

// DeleteExpired purges resolutions whose expiry passed, returning the count.
func (r *ResolutionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM conflict_resolutions WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired resolutions: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count expired resolutions: %w", err)
	}
	return purged, nil
}

// History returns resolutions ordered by resolved_at descending.
func (r *ResolutionRepository) History(ctx context.Context, limit int) ([]models.ConflictResolution, error) {
	const query = `SELECT conflict_id, conflict_type, resolution_type, affected_event_ids, resolution_data, conflict_message, resolved_at, expires_at
FROM conflict_resolutions ORDER BY resolved_at DESC LIMIT $1`

	var rows []resolutionRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("resolution history: %w", err)
	}

	resolutions := make([]models.ConflictResolution, 0, len(rows))
	for _, row := range rows {
		resolution, err := row.toModel()
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}
