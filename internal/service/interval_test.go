package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
)

func baseTime() time.Time {
	return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
}

func interval(startOffset, endOffset time.Duration) models.Interval {
	return models.Interval{Start: baseTime().Add(startOffset), End: baseTime().Add(endOffset)}
}

func TestOverlapDisjointAndAdjacent(t *testing.T) {
	cases := map[string]struct {
		a, b models.Interval
	}{
		"disjoint":     {interval(0, time.Hour), interval(2*time.Hour, 3*time.Hour)},
		"adjacent":     {interval(0, time.Hour), interval(time.Hour, 2*time.Hour)},
		"adjacent rev": {interval(time.Hour, 2*time.Hour), interval(0, time.Hour)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, Overlap(tc.a, tc.b))
			assert.Nil(t, Overlap(tc.b, tc.a))
		})
	}
}

func TestOverlapDuration(t *testing.T) {
	cases := map[string]struct {
		a, b    models.Interval
		minutes int
	}{
		"partial":   {interval(0, time.Hour), interval(30*time.Minute, 90*time.Minute), 30},
		"contained": {interval(0, 2*time.Hour), interval(30*time.Minute, time.Hour), 30},
		"identical": {interval(0, time.Hour), interval(0, time.Hour), 60},
		"edge sliver": {
			interval(0, time.Hour),
			interval(59*time.Minute+30*time.Second, 2*time.Hour),
			1,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			overlap := Overlap(tc.a, tc.b)
			require.NotNil(t, overlap)
			assert.Equal(t, tc.minutes, overlap.DurationMinutes)
			assert.Positive(t, overlap.DurationMinutes)
		})
	}
}

func TestOverlapSymmetry(t *testing.T) {
	offsets := []time.Duration{0, 15 * time.Minute, time.Hour, 90 * time.Minute, 3 * time.Hour}
	for _, aStart := range offsets {
		for _, bStart := range offsets {
			a := interval(aStart, aStart+time.Hour)
			b := interval(bStart, bStart+45*time.Minute)
			assert.Equal(t, Overlap(a, b), Overlap(b, a))
		}
	}
}
