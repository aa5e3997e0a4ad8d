package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
)

type eventRepoStub struct {
	deleteCalls []string
	updateCalls map[string]models.EventPatch
	failDelete  map[string]error
	log         *[]string
}

func newEventRepoStub() *eventRepoStub {
	return &eventRepoStub{updateCalls: make(map[string]models.EventPatch), failDelete: make(map[string]error)}
}

func (s *eventRepoStub) ListEvents(ctx context.Context, window models.TimeWindow) ([]models.Event, error) {
	return nil, nil
}

func (s *eventRepoStub) DeleteEvent(ctx context.Context, id string) error {
	s.deleteCalls = append(s.deleteCalls, id)
	if s.log != nil {
		*s.log = append(*s.log, "delete:"+id)
	}
	if err := s.failDelete[id]; err != nil {
		return err
	}
	return nil
}

func (s *eventRepoStub) UpdateEvent(ctx context.Context, id string, patch models.EventPatch) error {
	s.updateCalls[id] = patch
	return nil
}

type resolutionWriterStub struct {
	saved []SaveResolutionRequest
	fail  map[string]error
	log   *[]string
}

func (s *resolutionWriterStub) SaveResolution(ctx context.Context, req SaveResolutionRequest) (*models.ConflictResolution, error) {
	if s.log != nil {
		*s.log = append(*s.log, "save:"+req.ConflictID)
	}
	if err := s.fail[req.ConflictID]; err != nil {
		return nil, err
	}
	s.saved = append(s.saved, req)
	return &models.ConflictResolution{ConflictID: req.ConflictID, ResolutionType: req.ResolutionType}, nil
}

func conflictOn(conflictID, eventID string) models.ConflictDetail {
	return models.ConflictDetail{
		ID:               conflictID,
		Type:             models.ConflictTimeOverlap,
		Severity:         models.SeverityError,
		ConflictingEvent: testEvent(eventID, "Booked "+eventID, baseTime(), 60, models.PriorityMedium),
		Message:          "overlap with " + eventID,
	}
}

func TestResolveBatchDedupsByEventID(t *testing.T) {
	events := newEventRepoStub()
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	// Three conflicts, one underlying event: one delete, three audit records.
	req := BatchResolveRequest{
		Conflicts: []models.ConflictDetail{
			conflictOn("c-1", "event-1"),
			conflictOn("c-2", "event-1"),
			conflictOn("c-3", "event-1"),
		},
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	}

	report, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"event-1"}, events.deleteCalls)
	assert.Len(t, writer.saved, 3)
	assert.Equal(t, []string{"event-1"}, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 3, report.ResolutionsRecorded)
	assert.Equal(t, 2, report.SuppressedDuplicates)
}

func TestResolveBatchPartialFailure(t *testing.T) {
	events := newEventRepoStub()
	events.failDelete["event-2"] = errors.New("repository rejected delete")
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	// Five conflicts across three unique events; one event's delete fails.
	req := BatchResolveRequest{
		Conflicts: []models.ConflictDetail{
			conflictOn("c-1", "event-1"),
			conflictOn("c-2", "event-1"),
			conflictOn("c-3", "event-2"),
			conflictOn("c-4", "event-3"),
			conflictOn("c-5", "event-3"),
		},
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	}

	report, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, events.deleteCalls, 3)
	assert.Equal(t, []string{"event-1", "event-3"}, report.Succeeded)
	assert.Equal(t, []string{"event-2"}, report.Failed)
	assert.Equal(t, 5, report.ResolutionsRecorded)
	assert.Equal(t, 2, report.SuppressedDuplicates)
}

func TestResolveBatchSequentialFirstSeenOrder(t *testing.T) {
	events := newEventRepoStub()
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	req := BatchResolveRequest{
		Conflicts: []models.ConflictDetail{
			conflictOn("c-1", "event-b"),
			conflictOn("c-2", "event-a"),
			conflictOn("c-3", "event-b"),
		},
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	}

	_, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"event-b", "event-a"}, events.deleteCalls)
}

func TestResolveBatchPersistsBeforeActing(t *testing.T) {
	var log []string
	events := newEventRepoStub()
	events.log = &log
	writer := &resolutionWriterStub{log: &log}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	req := BatchResolveRequest{
		Conflicts: []models.ConflictDetail{
			conflictOn("c-1", "event-1"),
			conflictOn("c-2", "event-1"),
		},
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	}

	_, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"save:c-1", "save:c-2", "delete:event-1"}, log)
}

func TestResolveBatchAcceptIssuesNoEventActions(t *testing.T) {
	events := newEventRepoStub()
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	req := BatchResolveRequest{
		Conflicts:       []models.ConflictDetail{conflictOn("c-1", "event-1"), conflictOn("c-2", "event-2")},
		Action:          models.ResolutionAccept,
		ProposedEventID: "proposal-1",
	}

	report, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, events.deleteCalls)
	assert.Empty(t, events.updateCalls)
	assert.Len(t, report.Succeeded, 2)
}

func TestResolveBatchRecordsAuditPayload(t *testing.T) {
	events := newEventRepoStub()
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	req := BatchResolveRequest{
		Conflicts:       []models.ConflictDetail{conflictOn("c-1", "event-1")},
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
		Actor:           "user-7",
	}

	report, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, writer.saved, 1)

	saved := writer.saved[0]
	assert.Equal(t, []string{"proposal-1", "event-1"}, saved.AffectedEventIDs)
	assert.Equal(t, "overlap with event-1", saved.ConflictMessage)
	assert.Equal(t, "user-7", saved.ResolutionData["actor"])
	assert.Equal(t, report.BatchID, saved.ResolutionData["batch_id"])
}

func TestResolveOnePersistsThenExecutes(t *testing.T) {
	var log []string
	events := newEventRepoStub()
	events.log = &log
	writer := &resolutionWriterStub{log: &log}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	err := orchestrator.ResolveOne(context.Background(), ResolveRequest{
		Conflict:        conflictOn("c-1", "event-1"),
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"save:c-1", "delete:event-1"}, log)
}

func TestResolveOneActionFailureKeepsAudit(t *testing.T) {
	events := newEventRepoStub()
	events.failDelete["event-1"] = errors.New("repository rejected delete")
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	err := orchestrator.ResolveOne(context.Background(), ResolveRequest{
		Conflict:        conflictOn("c-1", "event-1"),
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrActionFailed.Code, appErrors.FromError(err).Code)
	// Intent was persisted before the action ran.
	require.Len(t, writer.saved, 1)
	assert.Equal(t, "c-1", writer.saved[0].ConflictID)
}

func TestResolveOneReschedule(t *testing.T) {
	events := newEventRepoStub()
	writer := &resolutionWriterStub{}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	newStart := baseTime().Add(5 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	err := orchestrator.ResolveOne(context.Background(), ResolveRequest{
		Conflict:        conflictOn("c-1", "event-1"),
		Action:          models.ResolutionReschedule,
		ProposedEventID: "proposal-1",
		Reschedule:      &models.ProposedTime{NewStart: newStart, NewEnd: newEnd, Duration: 60},
	})
	require.NoError(t, err)

	patch, ok := events.updateCalls["event-1"]
	require.True(t, ok)
	require.NotNil(t, patch.StartDateTime)
	assert.Equal(t, newStart, *patch.StartDateTime)
	require.NotNil(t, patch.EndDateTime)
	assert.Equal(t, newEnd, *patch.EndDateTime)
}

func TestResolveOneRescheduleRequiresTimes(t *testing.T) {
	orchestrator := NewOrchestratorService(newEventRepoStub(), &resolutionWriterStub{}, nil, nil, nil)

	err := orchestrator.ResolveOne(context.Background(), ResolveRequest{
		Conflict:        conflictOn("c-1", "event-1"),
		Action:          models.ResolutionReschedule,
		ProposedEventID: "proposal-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResolveBatchPersistFailureMarksEventFailed(t *testing.T) {
	events := newEventRepoStub()
	writer := &resolutionWriterStub{fail: map[string]error{"c-1": errors.New("store down")}}
	orchestrator := NewOrchestratorService(events, writer, nil, nil, nil)

	req := BatchResolveRequest{
		Conflicts:       []models.ConflictDetail{conflictOn("c-1", "event-1"), conflictOn("c-2", "event-2")},
		Action:          models.ResolutionDelete,
		ProposedEventID: "proposal-1",
	}

	report, err := orchestrator.ResolveBatch(context.Background(), req)
	require.NoError(t, err)
	// No resolution landed for event-1, so no action was issued against it.
	assert.Equal(t, []string{"event-2"}, events.deleteCalls)
	assert.Equal(t, []string{"event-1"}, report.Failed)
	assert.Equal(t, []string{"event-2"}, report.Succeeded)
}
