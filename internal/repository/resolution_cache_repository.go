package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
)

const (
	resolutionKeyPrefix = "resolution:"
	resolutionIndexKey  = "resolution:index"
)

// ResolutionCacheRepository keeps conflict resolutions in Redis for
// deployments that already run the cache tier. Values expire natively via
// TTL; a sorted set ordered by resolved_at backs the history query.
type ResolutionCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewResolutionCacheRepository constructs the repository.
func NewResolutionCacheRepository(client *redis.Client, logger *zap.Logger) *ResolutionCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionCacheRepository{client: client, logger: logger}
}

func resolutionKey(conflictID string) string {
	return resolutionKeyPrefix + conflictID
}

// Upsert stores the resolution, replacing any prior entry for the id.
func (r *ResolutionCacheRepository) Upsert(ctx context.Context, resolution *models.ConflictResolution) error {
	payload, err := json.Marshal(resolution)
	if err != nil {
		return fmt.Errorf("encode resolution %s: %w", resolution.ConflictID, err)
	}

	var ttl time.Duration
	if resolution.ExpiresAt != nil {
		ttl = time.Until(*resolution.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, resolutionKey(resolution.ConflictID), payload, ttl)
	pipe.ZAdd(ctx, resolutionIndexKey, redis.Z{
		Score:  float64(resolution.ResolvedAt.UnixMilli()),
		Member: resolution.ConflictID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert resolution %s: %w", resolution.ConflictID, err)
	}
	return nil
}

// Get fetches one resolution, nil when absent or lapsed out of the cache.
func (r *ResolutionCacheRepository) Get(ctx context.Context, conflictID string) (*models.ConflictResolution, error) {
	raw, err := r.client.Get(ctx, resolutionKey(conflictID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Value expired or never existed; drop any stale index entry.
			_ = r.client.ZRem(ctx, resolutionIndexKey, conflictID).Err()
			return nil, nil
		}
		return nil, fmt.Errorf("redis get resolution %s: %w", conflictID, err)
	}

	var resolution models.ConflictResolution
	if err := json.Unmarshal(raw, &resolution); err != nil {
		return nil, fmt.Errorf("decode resolution %s: %w", conflictID, err)
	}
	return &resolution, nil
}

// GetByIDs batch-fetches live resolutions in one MGET round trip.
func (r *ResolutionCacheRepository) GetByIDs(ctx context.Context, conflictIDs []string) ([]models.ConflictResolution, error) {
	if len(conflictIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(conflictIDs))
	for i, id := range conflictIDs {
		keys[i] = resolutionKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis batch get resolutions: %w", err)
	}

	resolutions := make([]models.ConflictResolution, 0, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var resolution models.ConflictResolution
		if err := json.Unmarshal([]byte(raw), &resolution); err != nil {
			r.logger.Warn("skipping undecodable cached resolution", zap.String("conflict_id", conflictIDs[i]), zap.Error(err))
			continue
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

// Delete removes a resolution and its index entry.
func (r *ResolutionCacheRepository) Delete(ctx context.Context, conflictID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, resolutionKey(conflictID))
	pipe.ZRem(ctx, resolutionIndexKey, conflictID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete resolution %s: %w", conflictID, err)
	}
	return nil
}

// DeleteMany removes a batch of resolutions.
func (r *ResolutionCacheRepository) DeleteMany(ctx context.Context, conflictIDs []string) error {
	if len(conflictIDs) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	members := make([]interface{}, len(conflictIDs))
	for i, id := range conflictIDs {
		pipe.Del(ctx, resolutionKey(id))
		members[i] = id
	}
	pipe.ZRem(ctx, resolutionIndexKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete resolutions: %w", err)
	}
	return nil
}

// DeleteExpired prunes index entries whose value already lapsed via TTL.
// Redis removes the payloads itself, so the sweep only heals the index.
func (r *ResolutionCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ids, err := r.client.ZRange(ctx, resolutionIndexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list resolution index: %w", err)
	}

	var purged int64
	for _, id := range ids {
		exists, err := r.client.Exists(ctx, resolutionKey(id)).Result()
		if err != nil {
			return purged, fmt.Errorf("redis check resolution %s: %w", id, err)
		}
		if exists == 0 {
			if err := r.client.ZRem(ctx, resolutionIndexKey, id).Err(); err != nil {
				return purged, fmt.Errorf("redis prune resolution index %s: %w", id, err)
			}
			purged++
		}
	}
	return purged, nil
}

// History returns resolutions newest first, up to limit.
func (r *ResolutionCacheRepository) History(ctx context.Context, limit int) ([]models.ConflictResolution, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.client.ZRevRange(ctx, resolutionIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis resolution history: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.GetByIDs(ctx, ids)
}
