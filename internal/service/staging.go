package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
)

// StagingSession is caller-owned, reversible local state: a set of event ids
// flagged for deletion. Nothing touches I/O until CommitStaged; Cancel
// discards everything with no side effects.
type StagingSession struct {
	staged map[string]struct{}
	order  []string
}

// NewStagingSession creates an empty session.
func NewStagingSession() *StagingSession {
	return &StagingSession{staged: make(map[string]struct{})}
}

// Stage flags an event for deletion.
func (s *StagingSession) Stage(eventID string) {
	if eventID == "" {
		return
	}
	if _, ok := s.staged[eventID]; ok {
		return
	}
	s.staged[eventID] = struct{}{}
	s.order = append(s.order, eventID)
}

// Unstage clears the flag for an event.
func (s *StagingSession) Unstage(eventID string) {
	if _, ok := s.staged[eventID]; !ok {
		return
	}
	delete(s.staged, eventID)
	for i, id := range s.order {
		if id == eventID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Toggle flips the staged flag and reports the new state.
func (s *StagingSession) Toggle(eventID string) bool {
	if s.IsStaged(eventID) {
		s.Unstage(eventID)
		return false
	}
	s.Stage(eventID)
	return true
}

// IsStaged reports whether the event is flagged.
func (s *StagingSession) IsStaged(eventID string) bool {
	_, ok := s.staged[eventID]
	return ok
}

// StagedIDs returns the flagged event ids in staging order.
func (s *StagingSession) StagedIDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Count returns the number of staged events.
func (s *StagingSession) Count() int {
	return len(s.staged)
}

// Cancel discards all staged state. No I/O has happened, none will.
func (s *StagingSession) Cancel() {
	s.staged = make(map[string]struct{})
	s.order = nil
}

// CommitStagedRequest executes staged deletions on explicit save.
type CommitStagedRequest struct {
	// Conflicts is the full conflict set on screen; only those whose
	// conflicting event is staged take part.
	Conflicts       []models.ConflictDetail
	ProposedEventID string
	Actor           string
	// Save is the caller-supplied commit of the proposal itself, run only
	// after staged deletions executed.
	Save func(context.Context) error
}

// CommitStaged runs staged deletions through the dedup batch algorithm and
// then the caller's save action. The session is cleared afterwards so the
// caller must re-run detection to reflect the post-action world.
func (s *OrchestratorService) CommitStaged(ctx context.Context, session *StagingSession, req CommitStagedRequest) (*models.BatchReport, error) {
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "staging session required")
	}
	if req.ProposedEventID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposed event id required")
	}

	var selected []models.ConflictDetail
	for _, conflict := range req.Conflicts {
		if session.IsStaged(conflict.ConflictingEvent.ID) {
			selected = append(selected, conflict)
		}
	}

	report := &models.BatchReport{}
	if len(selected) > 0 {
		var err error
		report, err = s.ResolveBatch(ctx, BatchResolveRequest{
			Conflicts:       selected,
			Action:          models.ResolutionDelete,
			ProposedEventID: req.ProposedEventID,
			Actor:           req.Actor,
		})
		if err != nil {
			return nil, err
		}
	}

	if req.Save != nil {
		if err := req.Save(ctx); err != nil {
			session.Cancel()
			return report, appErrors.Wrap(err, appErrors.ErrActionFailed.Code, appErrors.ErrActionFailed.Status, "save after staged deletions failed")
		}
	}

	session.Cancel()
	s.logger.Info("staged deletions committed",
		zap.Int("staged", len(selected)),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}
