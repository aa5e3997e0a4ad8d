package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	"github.com/noah-isme/crm-scheduling-engine/pkg/config"
	appErrors "github.com/noah-isme/crm-scheduling-engine/pkg/errors"
)

// ResizeEdge names the edge being dragged during a resize.
type ResizeEdge string

const (
	EdgeStart ResizeEdge = "start"
	EdgeEnd   ResizeEdge = "end"
)

// TimeGridService converts drag/drop and resize gestures into precise event
// times. The UI owns gesture tracking; this owns only the time math. Output
// feeds the detector as a proposed state before any persistence.
type TimeGridService struct {
	cfg    config.TimeGridConfig
	logger *zap.Logger
}

// NewTimeGridService instantiates the mapper.
func NewTimeGridService(cfg config.TimeGridConfig, logger *zap.Logger) *TimeGridService {
	if cfg.SlotSize <= 0 {
		cfg.SlotSize = time.Hour
	}
	if cfg.SnapStep <= 0 {
		cfg.SnapStep = 15 * time.Minute
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeGridService{cfg: cfg, logger: logger}
}

// MapDragDrop moves an event from one slot to another, preserving the
// event's sub-slot offset rather than snapping to the top of the target
// slot: a 10:15 event dropped on the 14:00 slot lands at 14:15. Duration is
// invariant under a move.
func (s *TimeGridService) MapDragDrop(event models.Event, from, to models.TimeSlot) (*models.ProposedTime, error) {
	duration := event.End().Sub(event.StartDateTime)
	if duration <= 0 {
		return nil, appErrors.Clone(appErrors.ErrDetection, "event must start before it ends")
	}

	offset := event.StartDateTime.Sub(from.Start())
	if offset < 0 || offset >= s.cfg.SlotSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event does not start within the origin slot")
	}

	newStart := to.Start().Add(offset)
	newEnd := newStart.Add(duration)

	return &models.ProposedTime{
		NewStart: newStart,
		NewEnd:   newEnd,
		Duration: int(duration / time.Minute),
	}, nil
}

// MapResize moves one edge of an event via a drag handle. The moving edge
// snaps to the configured granularity and the duration never drops below the
// floor; the fixed edge never moves.
func (s *TimeGridService) MapResize(event models.Event, edge ResizeEdge, target time.Time) (*models.ProposedTime, error) {
	start := event.StartDateTime
	end := event.End()
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrDetection, "event must start before it ends")
	}

	snapped := target.Round(s.cfg.SnapStep)

	switch edge {
	case EdgeStart:
		if latest := end.Add(-s.cfg.MinDuration); snapped.After(latest) {
			snapped = latest
		}
		start = snapped
	case EdgeEnd:
		if earliest := start.Add(s.cfg.MinDuration); snapped.Before(earliest) {
			snapped = earliest
		}
		end = snapped
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resize edge")
	}

	return &models.ProposedTime{
		NewStart: start,
		NewEnd:   end,
		Duration: int(end.Sub(start) / time.Minute),
	}, nil
}
