package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	"github.com/noah-isme/crm-scheduling-engine/pkg/config"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
)

type resolutionReader interface {
	GetResolutions(ctx context.Context, conflictIDs []string) []models.ConflictResolution
}

// ConflictService detects collisions between a proposed event and the
// existing event set plus standing business rules.
type ConflictService struct {
	resolutions resolutionReader
	cfg         config.DetectorConfig
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewConflictService constructs the detector. Resolutions may be nil, in
// which case no suppression is applied.
func NewConflictService(resolutions resolutionReader, cfg config.DetectorConfig, metrics *MetricsService, logger *zap.Logger) *ConflictService {
	if cfg.CriticalPriority == "" {
		cfg.CriticalPriority = string(models.PriorityUrgent)
	}
	if cfg.ErrorOverlapRatio <= 0 || cfg.ErrorOverlapRatio > 1 {
		cfg.ErrorOverlapRatio = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{resolutions: resolutions, cfg: cfg, metrics: metrics, logger: logger}
}

// Detect compares the proposal against candidates and rules and returns a
// deterministic, unranked conflict set. Conflicts with a live non-DELETE
// resolution on record are dropped so previously accepted or overridden
// collisions do not resurface on every re-evaluation.
func (s *ConflictService) Detect(ctx context.Context, proposed models.Event, candidates []models.Event, rules []BusinessRule) (*models.ConflictResult, error) {
	if !proposed.End().After(proposed.StartDateTime) {
		return nil, appErrors.Clone(appErrors.ErrDetection, "proposed event must start before it ends")
	}

	proposedID := proposed.ID
	if proposedID == "" {
		proposedID = transientID(proposed)
	}

	var conflicts []models.ConflictDetail

	for _, candidate := range candidates {
		if candidate.ID != "" && candidate.ID == proposed.ID {
			continue
		}
		overlap := Overlap(proposed.Interval(), candidate.Interval())
		if overlap == nil {
			continue
		}
		conflicts = append(conflicts, models.ConflictDetail{
			ID:               conflictID(proposedID, candidate.ID, models.ConflictTimeOverlap),
			Type:             models.ConflictTimeOverlap,
			Severity:         s.overlapSeverity(proposed, candidate, overlap),
			ConflictingEvent: candidate,
			Message:          overlapMessage(proposed, candidate, overlap),
			TimeOverlap:      overlap,
		})
	}

	for _, rule := range rules {
		violation := rule.Check(proposed)
		if violation == nil {
			continue
		}
		self := proposed
		self.ID = proposedID
		conflicts = append(conflicts, models.ConflictDetail{
			ID:               conflictID(proposedID, rule.Name(), models.ConflictBusinessRule),
			Type:             models.ConflictBusinessRule,
			Severity:         violation.Severity,
			ConflictingEvent: self,
			Message:          violation.Message,
		})
	}

	conflicts = s.suppressResolved(ctx, conflicts)

	result := &models.ConflictResult{
		Conflicts:    conflicts,
		HasConflicts: len(conflicts) > 0,
		CanProceed:   canProceed(conflicts),
	}

	s.metrics.ObserveDetection(result)
	s.logger.Debug("conflict detection",
		zap.String("proposed_id", proposedID),
		zap.Int("candidates", len(candidates)),
		zap.Int("conflicts", len(conflicts)),
		zap.Bool("can_proceed", result.CanProceed),
	)
	return result, nil
}

// overlapSeverity applies the configured policy: any overlap touching the
// critical priority escalates fully; overlaps covering at least the
// configured share of the shorter event escalate to error.
func (s *ConflictService) overlapSeverity(proposed, candidate models.Event, overlap *models.TimeOverlap) models.ConflictSeverity {
	if strings.EqualFold(string(candidate.Priority), s.cfg.CriticalPriority) ||
		strings.EqualFold(string(proposed.Priority), s.cfg.CriticalPriority) {
		return models.SeverityCritical
	}

	shorter := proposed.DurationMinutes()
	if d := candidate.DurationMinutes(); d < shorter {
		shorter = d
	}
	if shorter > 0 && float64(overlap.DurationMinutes) >= s.cfg.ErrorOverlapRatio*float64(shorter) {
		return models.SeverityError
	}
	return models.SeverityWarning
}

func (s *ConflictService) suppressResolved(ctx context.Context, conflicts []models.ConflictDetail) []models.ConflictDetail {
	if s.resolutions == nil || len(conflicts) == 0 {
		return conflicts
	}

	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID
	}

	resolved := make(map[string]struct{})
	for _, r := range s.resolutions.GetResolutions(ctx, ids) {
		// DELETE resolutions are not filtered here: a deleted event should
		// simply no longer appear among the candidates, and if it still does
		// the delete evidently failed and the conflict must resurface.
		if r.ResolutionType != models.ResolutionDelete {
			resolved[r.ConflictID] = struct{}{}
		}
	}
	if len(resolved) == 0 {
		return conflicts
	}

	kept := conflicts[:0]
	for _, c := range conflicts {
		if _, ok := resolved[c.ID]; !ok {
			kept = append(kept, c)
		}
	}
	return kept
}

func canProceed(conflicts []models.ConflictDetail) bool {
	for _, c := range conflicts {
		if c.Severity == models.SeverityCritical {
			return false
		}
	}
	return true
}

func overlapMessage(proposed, candidate models.Event, overlap *models.TimeOverlap) string {
	return fmt.Sprintf("%q overlaps %q by %d minutes", proposed.Title, candidate.Title, overlap.DurationMinutes)
}

// conflictID derives a stable identifier so the same real-world collision
// yields the same id across re-detections.
func conflictID(proposedID, otherID string, conflictType models.ConflictType) string {
	sum := sha1.Sum([]byte(proposedID + "|" + otherID + "|" + string(conflictType)))
	return hex.EncodeToString(sum[:])[:16]
}

// transientID gives an unsaved proposal a stable identity derived from its
// own shape, keeping conflict ids deterministic before first persistence.
func transientID(proposed models.Event) string {
	sum := sha1.Sum([]byte(proposed.Title + "|" +
		proposed.StartDateTime.UTC().Format(time.RFC3339) + "|" +
		proposed.End().UTC().Format(time.RFC3339)))
	return "proposal-" + hex.EncodeToString(sum[:])[:12]
}
