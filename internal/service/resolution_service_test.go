package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	"github.com/noah-isme/crm-scheduling-engine/pkg/config"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
)

type resolutionRepoStub struct {
	entries map[string]models.ConflictResolution
	order   []string
	failAll error
	deleted []string
}

func newResolutionRepoStub() *resolutionRepoStub {
	return &resolutionRepoStub{entries: make(map[string]models.ConflictResolution)}
}

func (s *resolutionRepoStub) Upsert(ctx context.Context, resolution *models.ConflictResolution) error {
	if s.failAll != nil {
		return s.failAll
	}
	if _, exists := s.entries[resolution.ConflictID]; !exists {
		s.order = append(s.order, resolution.ConflictID)
	}
	s.entries[resolution.ConflictID] = *resolution
	return nil
}

func (s *resolutionRepoStub) Get(ctx context.Context, conflictID string) (*models.ConflictResolution, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	if entry, ok := s.entries[conflictID]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (s *resolutionRepoStub) GetByIDs(ctx context.Context, conflictIDs []string) ([]models.ConflictResolution, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	var found []models.ConflictResolution
	for _, id := range conflictIDs {
		if entry, ok := s.entries[id]; ok {
			found = append(found, entry)
		}
	}
	return found, nil
}

func (s *resolutionRepoStub) Delete(ctx context.Context, conflictID string) error {
	if s.failAll != nil {
		return s.failAll
	}
	delete(s.entries, conflictID)
	s.deleted = append(s.deleted, conflictID)
	return nil
}

func (s *resolutionRepoStub) DeleteMany(ctx context.Context, conflictIDs []string) error {
	for _, id := range conflictIDs {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *resolutionRepoStub) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if s.failAll != nil {
		return 0, s.failAll
	}
	var purged int64
	for id, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, id)
			purged++
		}
	}
	return purged, nil
}

func (s *resolutionRepoStub) History(ctx context.Context, limit int) ([]models.ConflictResolution, error) {
	if s.failAll != nil {
		return nil, s.failAll
	}
	var history []models.ConflictResolution
	for i := len(s.order) - 1; i >= 0 && len(history) < limit; i-- {
		if entry, ok := s.entries[s.order[i]]; ok {
			history = append(history, entry)
		}
	}
	return history, nil
}

func newTestStore(repo resolutionRepository, ttl time.Duration) *ResolutionService {
	return NewResolutionService(repo, config.ResolutionConfig{TTL: ttl, HistoryLimit: 50}, nil, nil, nil)
}

func saveReq(conflictID string, resolutionType models.ResolutionType) SaveResolutionRequest {
	return SaveResolutionRequest{
		ConflictID:       conflictID,
		ConflictType:     models.ConflictTimeOverlap,
		ResolutionType:   resolutionType,
		AffectedEventIDs: []string{"proposal-1", "event-1"},
		ConflictMessage:  "overlap",
	}
}

func TestSaveResolutionIdempotentUpsert(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	first, err := store.SaveResolution(context.Background(), saveReq("conflict-1", models.ResolutionAccept))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.SaveResolution(context.Background(), saveReq("conflict-1", models.ResolutionOverride))
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	assert.Equal(t, models.ResolutionOverride, repo.entries["conflict-1"].ResolutionType)
	assert.Equal(t, second.ResolutionType, repo.entries["conflict-1"].ResolutionType)
}

func TestSaveResolutionAttachesExpiry(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, time.Hour)

	resolution, err := store.SaveResolution(context.Background(), saveReq("conflict-1", models.ResolutionAccept))
	require.NoError(t, err)
	require.NotNil(t, resolution.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *resolution.ExpiresAt, time.Minute)
}

func TestSaveResolutionValidatesPayload(t *testing.T) {
	store := newTestStore(newResolutionRepoStub(), 0)

	_, err := store.SaveResolution(context.Background(), SaveResolutionRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	bad := saveReq("conflict-1", models.ResolutionType("SHRUG"))
	_, err = store.SaveResolution(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSaveResolutionSurfacesWriteFailure(t *testing.T) {
	repo := newResolutionRepoStub()
	repo.failAll = errors.New("connection refused")
	store := newTestStore(repo, 0)

	_, err := store.SaveResolution(context.Background(), saveReq("conflict-1", models.ResolutionAccept))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPersistenceUnavailable.Code, appErrors.FromError(err).Code)
}

func TestIsResolvedLazyPurgesExpired(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	expired := time.Now().UTC().Add(-time.Hour)
	repo.entries["conflict-1"] = models.ConflictResolution{
		ConflictID:     "conflict-1",
		ResolutionType: models.ResolutionAccept,
		ExpiresAt:      &expired,
	}

	assert.False(t, store.IsResolved(context.Background(), "conflict-1"))
	assert.NotContains(t, repo.entries, "conflict-1")
	assert.Equal(t, []string{"conflict-1"}, repo.deleted)
}

func TestIsResolvedLiveEntry(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	repo.entries["conflict-1"] = models.ConflictResolution{ConflictID: "conflict-1", ResolutionType: models.ResolutionAccept}
	assert.True(t, store.IsResolved(context.Background(), "conflict-1"))
}

func TestReadsFailOpenWhenBackendDown(t *testing.T) {
	repo := newResolutionRepoStub()
	repo.failAll = errors.New("connection refused")
	store := newTestStore(repo, 0)

	assert.False(t, store.IsResolved(context.Background(), "conflict-1"))
	assert.Empty(t, store.GetResolutions(context.Background(), []string{"conflict-1"}))
	assert.Empty(t, store.History(context.Background(), 10))
}

func TestGetResolutionsFiltersAndPurgesExpired(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	expired := time.Now().UTC().Add(-time.Minute)
	repo.entries["conflict-live"] = models.ConflictResolution{ConflictID: "conflict-live", ResolutionType: models.ResolutionAccept}
	repo.entries["conflict-stale"] = models.ConflictResolution{ConflictID: "conflict-stale", ResolutionType: models.ResolutionAccept, ExpiresAt: &expired}

	live := store.GetResolutions(context.Background(), []string{"conflict-live", "conflict-stale"})
	require.Len(t, live, 1)
	assert.Equal(t, "conflict-live", live[0].ConflictID)
	assert.NotContains(t, repo.entries, "conflict-stale")
}

func TestCleanupExpired(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	expired := time.Now().UTC().Add(-time.Minute)
	repo.entries["conflict-stale"] = models.ConflictResolution{ConflictID: "conflict-stale", ExpiresAt: &expired}
	repo.entries["conflict-live"] = models.ConflictResolution{ConflictID: "conflict-live"}

	purged, err := store.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
	assert.Contains(t, repo.entries, "conflict-live")
}

func TestRemoveResolutions(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	repo.entries["conflict-1"] = models.ConflictResolution{ConflictID: "conflict-1"}
	repo.entries["conflict-2"] = models.ConflictResolution{ConflictID: "conflict-2"}

	require.NoError(t, store.RemoveResolution(context.Background(), "conflict-1"))
	require.NoError(t, store.RemoveResolutions(context.Background(), []string{"conflict-2"}))
	assert.Empty(t, repo.entries)

	require.Error(t, store.RemoveResolution(context.Background(), ""))
}

func TestHistoryNewestFirst(t *testing.T) {
	repo := newResolutionRepoStub()
	store := newTestStore(repo, 0)

	for _, id := range []string{"conflict-1", "conflict-2", "conflict-3"} {
		_, err := store.SaveResolution(context.Background(), saveReq(id, models.ResolutionAccept))
		require.NoError(t, err)
	}

	history := store.History(context.Background(), 2)
	require.Len(t, history, 2)
	assert.Equal(t, "conflict-3", history[0].ConflictID)
	assert.Equal(t, "conflict-2", history[1].ConflictID)
}
