package service

import (
	"github.com/noah-isme/crm-scheduling-engine/internal/models"
)

// Overlap computes the intersection of two half-open [start, end) intervals.
// It returns nil when the intervals are disjoint or merely adjacent; a
// non-nil result always carries a positive minute count. Pure and symmetric.
func Overlap(a, b models.Interval) *models.TimeOverlap {
	if !a.End.After(b.Start) || !b.End.After(a.Start) {
		return nil
	}

	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}

	minutes := int(end.Sub(start).Minutes())
	if minutes <= 0 {
		// Sub-minute intersections still count as overlapping.
		minutes = 1
	}
	return &models.TimeOverlap{DurationMinutes: minutes}
}
