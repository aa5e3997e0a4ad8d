package models

import "time"

// ResolutionType is the user decision recorded against a conflict.
type ResolutionType string

const (
	ResolutionAccept     ResolutionType = "ACCEPT"
	ResolutionOverride   ResolutionType = "OVERRIDE"
	ResolutionDelete     ResolutionType = "DELETE"
	ResolutionReschedule ResolutionType = "RESCHEDULE"
)

// Valid reports whether the value is a known resolution type.
func (t ResolutionType) Valid() bool {
	switch t {
	case ResolutionAccept, ResolutionOverride, ResolutionDelete, ResolutionReschedule:
		return true
	default:
		return false
	}
}

// ConflictResolution is a persisted user decision. At most one exists per
// conflict id at any time: saves are upserts, never inserts.
type ConflictResolution struct {
	ConflictID       string                 `json:"conflict_id"`
	ConflictType     ConflictType           `json:"conflict_type"`
	ResolutionType   ResolutionType         `json:"resolution_type"`
	AffectedEventIDs []string               `json:"affected_event_ids"`
	ResolutionData   map[string]interface{} `json:"resolution_data,omitempty"`
	ConflictMessage  string                 `json:"conflict_message"`
	ResolvedAt       time.Time              `json:"resolved_at"`
	ExpiresAt        *time.Time             `json:"expires_at,omitempty"`
}

// Expired reports whether the resolution lapsed before the given instant.
func (r ConflictResolution) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}
