package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	"github.com/noah-isme/crm-scheduling-engine/pkg/config"
)

// Engine is the single surface the scheduling UI consumes: detection,
// ranking, resolution and time mapping behind one constructor.
type Engine struct {
	Conflicts    *ConflictService
	Insights     *InsightService
	Resolutions  *ResolutionService
	Orchestrator *OrchestratorService
	TimeGrid     *TimeGridService
	Metrics      *MetricsService
}

// NewEngine wires the engine from configuration and its two external
// collaborators: the CRM's event repository and the resolution backend.
func NewEngine(cfg *config.Config, events EventRepository, resolutions resolutionRepository, directory ClientDirectory, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	metrics := NewMetricsService()

	store := NewResolutionService(resolutions, cfg.Resolution, metrics, validate, logger)

	return &Engine{
		Conflicts:    NewConflictService(store, cfg.Detector, metrics, logger),
		Insights:     NewInsightService(cfg.Insight, directory, logger),
		Resolutions:  store,
		Orchestrator: NewOrchestratorService(events, store, metrics, validate, logger),
		TimeGrid:     NewTimeGridService(cfg.TimeGrid, logger),
		Metrics:      metrics,
	}
}

// DetectConflicts runs detection for a proposed event.
func (e *Engine) DetectConflicts(ctx context.Context, proposed models.Event, candidates []models.Event, rules []BusinessRule) (*models.ConflictResult, error) {
	return e.Conflicts.Detect(ctx, proposed, candidates, rules)
}

// RankConflicts orders a detection result for display.
func (e *Engine) RankConflicts(result *models.ConflictResult, mode RankMode) []models.ConflictDetail {
	return e.Insights.Rank(result, mode)
}

// ResolveOne applies a single-conflict action.
func (e *Engine) ResolveOne(ctx context.Context, req ResolveRequest) error {
	return e.Orchestrator.ResolveOne(ctx, req)
}

// ResolveBatch applies one action across a conflict selection with dedup.
func (e *Engine) ResolveBatch(ctx context.Context, req BatchResolveRequest) (*models.BatchReport, error) {
	return e.Orchestrator.ResolveBatch(ctx, req)
}

// MapDragDrop translates a drop gesture into proposed times.
func (e *Engine) MapDragDrop(event models.Event, from, to models.TimeSlot) (*models.ProposedTime, error) {
	return e.TimeGrid.MapDragDrop(event, from, to)
}

// MapResize translates a resize gesture into proposed times.
func (e *Engine) MapResize(event models.Event, edge ResizeEdge, target time.Time) (*models.ProposedTime, error) {
	return e.TimeGrid.MapResize(event, edge, target)
}
