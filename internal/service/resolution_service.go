package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	"github.com/noah-isme/crm-scheduling-engine/pkg/config"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
	"github.com/noah-isme/crm-scheduling-engine/pkg/jobs"
)

type resolutionRepository interface {
	Upsert(ctx context.Context, resolution *models.ConflictResolution) error
	Get(ctx context.Context, conflictID string) (*models.ConflictResolution, error)
	GetByIDs(ctx context.Context, conflictIDs []string) ([]models.ConflictResolution, error)
	Delete(ctx context.Context, conflictID string) error
	DeleteMany(ctx context.Context, conflictIDs []string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	History(ctx context.Context, limit int) ([]models.ConflictResolution, error)
}

// SaveResolutionRequest describes a resolution to persist.
type SaveResolutionRequest struct {
	ConflictID       string                 `json:"conflict_id" validate:"required"`
	ConflictType     models.ConflictType    `json:"conflict_type" validate:"required"`
	ResolutionType   models.ResolutionType  `json:"resolution_type" validate:"required"`
	AffectedEventIDs []string               `json:"affected_event_ids" validate:"required,min=1"`
	ResolutionData   map[string]interface{} `json:"resolution_data"`
	ConflictMessage  string                 `json:"conflict_message"`
}

// ResolutionService is the durable, idempotent record of user decisions.
// Reads fail open: when the backing store is unreachable a stale-but-safe
// "show the conflict again" beats crashing the scheduling flow. Writes
// surface their error so the caller decides whether to block the action.
type ResolutionService struct {
	repo      resolutionRepository
	cfg       config.ResolutionConfig
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResolutionService instantiates the store service.
func NewResolutionService(repo resolutionRepository, cfg config.ResolutionConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ResolutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &ResolutionService{repo: repo, cfg: cfg, metrics: metrics, validator: validate, logger: logger}
}

// SaveResolution upserts a decision keyed by conflict id. A second call with
// the same conflict id overwrites, never duplicates.
func (s *ResolutionService) SaveResolution(ctx context.Context, req SaveResolutionRequest) (*models.ConflictResolution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	if !req.ResolutionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resolution type")
	}

	now := time.Now().UTC()
	resolution := &models.ConflictResolution{
		ConflictID:       req.ConflictID,
		ConflictType:     req.ConflictType,
		ResolutionType:   req.ResolutionType,
		AffectedEventIDs: req.AffectedEventIDs,
		ResolutionData:   req.ResolutionData,
		ConflictMessage:  req.ConflictMessage,
		ResolvedAt:       now,
	}
	if s.cfg.TTL > 0 {
		expires := now.Add(s.cfg.TTL)
		resolution.ExpiresAt = &expires
	}

	if err := s.repo.Upsert(ctx, resolution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistenceUnavailable.Code, appErrors.ErrPersistenceUnavailable.Status, "failed to save resolution")
	}

	s.metrics.ObserveResolution(req.ResolutionType)
	return resolution, nil
}

// IsResolved reports whether a live resolution exists for the conflict.
// Expired entries found along the way are purged (self-healing cleanup).
func (s *ResolutionService) IsResolved(ctx context.Context, conflictID string) bool {
	resolution, err := s.repo.Get(ctx, conflictID)
	if err != nil {
		s.logger.Warn("resolution lookup failed, failing open", zap.String("conflict_id", conflictID), zap.Error(err))
		return false
	}
	if resolution == nil {
		return false
	}
	if resolution.Expired(time.Now().UTC()) {
		if err := s.repo.Delete(ctx, conflictID); err != nil {
			s.logger.Warn("failed to purge expired resolution", zap.String("conflict_id", conflictID), zap.Error(err))
		} else {
			s.metrics.ObserveExpiredPurge(1)
		}
		return false
	}
	return true
}

// GetResolutions batch-fetches live resolutions, letting the detector filter
// a whole result set in one round trip. Expired rows are dropped and lazily
// purged; backend failures yield an empty set.
func (s *ResolutionService) GetResolutions(ctx context.Context, conflictIDs []string) []models.ConflictResolution {
	if len(conflictIDs) == 0 {
		return nil
	}

	resolutions, err := s.repo.GetByIDs(ctx, conflictIDs)
	if err != nil {
		s.logger.Warn("batch resolution lookup failed, failing open", zap.Int("requested", len(conflictIDs)), zap.Error(err))
		return nil
	}

	now := time.Now().UTC()
	live := resolutions[:0]
	var expired []string
	for _, r := range resolutions {
		if r.Expired(now) {
			expired = append(expired, r.ConflictID)
			continue
		}
		live = append(live, r)
	}

	if len(expired) > 0 {
		if err := s.repo.DeleteMany(ctx, expired); err != nil {
			s.logger.Warn("failed to purge expired resolutions", zap.Int("count", len(expired)), zap.Error(err))
		} else {
			s.metrics.ObserveExpiredPurge(int64(len(expired)))
		}
	}
	return live
}

// RemoveResolution forgets a prior decision, used when the underlying
// conflict's shape changed and the decision no longer applies.
func (s *ResolutionService) RemoveResolution(ctx context.Context, conflictID string) error {
	if conflictID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "conflict id required")
	}
	if err := s.repo.Delete(ctx, conflictID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistenceUnavailable.Code, appErrors.ErrPersistenceUnavailable.Status, "failed to remove resolution")
	}
	return nil
}

// RemoveResolutions bulk-invalidates prior decisions.
func (s *ResolutionService) RemoveResolutions(ctx context.Context, conflictIDs []string) error {
	if len(conflictIDs) == 0 {
		return nil
	}
	if err := s.repo.DeleteMany(ctx, conflictIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistenceUnavailable.Code, appErrors.ErrPersistenceUnavailable.Status, "failed to remove resolutions")
	}
	return nil
}

// CleanupExpired purges all lapsed resolutions in one sweep.
func (s *ResolutionService) CleanupExpired(ctx context.Context) (int64, error) {
	purged, err := s.repo.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrPersistenceUnavailable.Code, appErrors.ErrPersistenceUnavailable.Status, "failed to cleanup expired resolutions")
	}
	s.metrics.ObserveExpiredPurge(purged)
	return purged, nil
}

// History returns the audit trail, newest first. Fails open to empty.
func (s *ResolutionService) History(ctx context.Context, limit int) []models.ConflictResolution {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	resolutions, err := s.repo.History(ctx, limit)
	if err != nil {
		s.logger.Warn("resolution history lookup failed, failing open", zap.Error(err))
		return nil
	}
	return resolutions
}

// StartSweep launches the periodic expiry sweep on the shared job queue and
// returns it so the caller owns shutdown.
func (s *ResolutionService) StartSweep(ctx context.Context) *jobs.Queue {
	queue := jobs.NewQueue("resolution-sweep", func(ctx context.Context, job jobs.Job) error {
		purged, err := s.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		if purged > 0 {
			s.logger.Info("expired resolutions purged", zap.Int64("count", purged))
		}
		return nil
	}, jobs.QueueConfig{Logger: s.logger})

	queue.Start(ctx)
	queue.EnqueueEvery(s.cfg.SweepInterval, "cleanup_expired")
	return queue
}
