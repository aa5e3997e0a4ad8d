package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
)

// EventRepository is the surrounding CRM's event store. DeleteEvent must
// treat an already-absent id as success for batch dedup to be safe.
type EventRepository interface {
	ListEvents(ctx context.Context, window models.TimeWindow) ([]models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	UpdateEvent(ctx context.Context, id string, patch models.EventPatch) error
}

type resolutionWriter interface {
	SaveResolution(ctx context.Context, req SaveResolutionRequest) (*models.ConflictResolution, error)
}

// ResolveRequest resolves a single conflict.
type ResolveRequest struct {
	Conflict        models.ConflictDetail `json:"conflict"`
	Action          models.ResolutionType `json:"action" validate:"required"`
	ProposedEventID string                `json:"proposed_event_id" validate:"required"`
	Actor           string                `json:"actor"`
	// Reschedule carries the new times when Action is RESCHEDULE.
	Reschedule *models.ProposedTime `json:"reschedule,omitempty"`
}

// BatchResolveRequest resolves a selection of conflicts with one action.
type BatchResolveRequest struct {
	Conflicts       []models.ConflictDetail `json:"conflicts" validate:"required,min=1"`
	Action          models.ResolutionType   `json:"action" validate:"required"`
	ProposedEventID string                  `json:"proposed_event_id" validate:"required"`
	Actor           string                  `json:"actor"`
}

// OrchestratorService coordinates resolution sessions. One real event can
// back several conflicts at once, so every multi-conflict action first
// collapses the selection to unique event ids and issues exactly one action
// per event, while still persisting a resolution per conflict for audit.
type OrchestratorService struct {
	events      EventRepository
	resolutions resolutionWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewOrchestratorService instantiates the orchestrator.
func NewOrchestratorService(events EventRepository, resolutions resolutionWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *OrchestratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrchestratorService{events: events, resolutions: resolutions, metrics: metrics, validator: validate, logger: logger}
}

// ResolveOne handles an immediate single-conflict action. The resolution is
// persisted before the action runs, never the reverse: if the action fails
// the audit trail still shows the user's intent, and a failed delete leaves
// the event in candidates so detection re-surfaces the conflict.
func (s *OrchestratorService) ResolveOne(ctx context.Context, req ResolveRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	if !req.Action.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown resolution action")
	}
	if req.Action == models.ResolutionReschedule && req.Reschedule == nil {
		return appErrors.Clone(appErrors.ErrValidation, "reschedule action requires new times")
	}

	if _, err := s.resolutions.SaveResolution(ctx, s.resolutionFor(req.Conflict, req.Action, req.ProposedEventID, req.Actor, "")); err != nil {
		return err
	}

	if err := s.execute(ctx, req.Conflict.ConflictingEvent.ID, req.Action, req.Reschedule); err != nil {
		return appErrors.Wrap(err, appErrors.ErrActionFailed.Code, appErrors.ErrActionFailed.Status, "resolution action failed")
	}
	return nil
}

// ResolveBatch executes one action across a selection of conflicts using the
// dedup-by-event-id algorithm. Events are processed sequentially in first-
// seen order; one failing event never aborts its siblings. The report says
// how many of N succeeded and how many duplicate actions were suppressed.
func (s *OrchestratorService) ResolveBatch(ctx context.Context, req BatchResolveRequest) (*models.BatchReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if !req.Action.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resolution action")
	}

	// Map eventId -> conflicts referencing it; the unique event ids are the
	// action list. All conflicts on the same event resolve together with a
	// single action against that event.
	byEvent := make(map[string][]models.ConflictDetail)
	var order []string
	for _, conflict := range req.Conflicts {
		eventID := conflict.ConflictingEvent.ID
		if _, seen := byEvent[eventID]; !seen {
			order = append(order, eventID)
		}
		byEvent[eventID] = append(byEvent[eventID], conflict)
	}

	report := &models.BatchReport{BatchID: uuid.NewString()}

	for _, eventID := range order {
		conflicts := byEvent[eventID]
		if len(conflicts) > 1 {
			report.SuppressedDuplicates += len(conflicts) - 1
		}

		persisted := 0
		for _, conflict := range conflicts {
			if _, err := s.resolutions.SaveResolution(ctx, s.resolutionFor(conflict, req.Action, req.ProposedEventID, req.Actor, report.BatchID)); err != nil {
				s.logger.Error("failed to persist batch resolution",
					zap.String("batch_id", report.BatchID),
					zap.String("conflict_id", conflict.ID),
					zap.String("event_id", eventID),
					zap.Error(err),
				)
				continue
			}
			persisted++
		}
		report.ResolutionsRecorded += persisted

		if persisted == 0 {
			report.Failed = append(report.Failed, eventID)
			continue
		}

		if err := s.execute(ctx, eventID, req.Action, nil); err != nil {
			s.logger.Error("batch action failed, continuing",
				zap.String("batch_id", report.BatchID),
				zap.String("event_id", eventID),
				zap.String("action", string(req.Action)),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, eventID)
			continue
		}
		report.Succeeded = append(report.Succeeded, eventID)
	}

	s.metrics.ObserveSuppressedDuplicates(report.SuppressedDuplicates)
	s.logger.Info("resolution batch completed",
		zap.String("batch_id", report.BatchID),
		zap.String("action", string(req.Action)),
		zap.Int("events", len(order)),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("suppressed_duplicates", report.SuppressedDuplicates),
	)
	return report, nil
}

// execute issues the single external action for an event. Accept and
// override are pure bookkeeping: the persisted resolution is the action.
func (s *OrchestratorService) execute(ctx context.Context, eventID string, action models.ResolutionType, reschedule *models.ProposedTime) error {
	switch action {
	case models.ResolutionDelete:
		return s.events.DeleteEvent(ctx, eventID)
	case models.ResolutionReschedule:
		if reschedule == nil {
			return appErrors.Clone(appErrors.ErrValidation, "reschedule action requires new times")
		}
		start, end, duration := reschedule.NewStart, reschedule.NewEnd, reschedule.Duration
		return s.events.UpdateEvent(ctx, eventID, models.EventPatch{
			StartDateTime: &start,
			EndDateTime:   &end,
			Duration:      &duration,
		})
	default:
		return nil
	}
}

func (s *OrchestratorService) resolutionFor(conflict models.ConflictDetail, action models.ResolutionType, proposedEventID, actor, batchID string) SaveResolutionRequest {
	affected := []string{proposedEventID}
	if conflict.ConflictingEvent.ID != "" && conflict.ConflictingEvent.ID != proposedEventID {
		affected = append(affected, conflict.ConflictingEvent.ID)
	}

	data := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"action":      string(action),
		"event_title": conflict.ConflictingEvent.Title,
	}
	if actor != "" {
		data["actor"] = actor
	}
	if batchID != "" {
		data["batch_id"] = batchID
	}

	return SaveResolutionRequest{
		ConflictID:       conflict.ID,
		ConflictType:     conflict.Type,
		ResolutionType:   action,
		AffectedEventIDs: affected,
		ResolutionData:   data,
		ConflictMessage:  conflict.Message,
	}
}
