package models

// ConflictType classifies a detected collision.
type ConflictType string

const (
	ConflictTimeOverlap  ConflictType = "time_overlap"
	ConflictBusinessRule ConflictType = "business_rule"
)

// ConflictSeverity grades a conflict. Ordering is warning < error < critical.
type ConflictSeverity string

const (
	SeverityWarning  ConflictSeverity = "warning"
	SeverityError    ConflictSeverity = "error"
	SeverityCritical ConflictSeverity = "critical"
)

// Rank maps severity onto its monotonic ordering.
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// TimeOverlap is derived, never stored: present only when two events'
// [start, end) intervals intersect.
type TimeOverlap struct {
	DurationMinutes int `json:"duration_minutes"`
}

// ConflictDetail is one detected collision. Its ID is a deterministic
// function of the proposal, the conflicting event and the conflict type, so
// the same real-world collision keeps the same id across re-detections.
type ConflictDetail struct {
	ID               string           `json:"id"`
	Type             ConflictType     `json:"type"`
	Severity         ConflictSeverity `json:"severity"`
	ConflictingEvent Event            `json:"conflicting_event"`
	Message          string           `json:"message"`
	TimeOverlap      *TimeOverlap     `json:"time_overlap,omitempty"`
}

// ConflictResult is the detection output for one proposed event.
// CanProceed is derived from the conflict set, never stored independently.
type ConflictResult struct {
	Conflicts    []ConflictDetail `json:"conflicts"`
	HasConflicts bool             `json:"has_conflicts"`
	CanProceed   bool             `json:"can_proceed"`
}

// BatchReport summarises a multi-conflict resolution run. Succeeded and
// Failed hold unique conflicting-event ids, so a caller knows exactly which
// events still need attention. SuppressedDuplicates counts conflicts that
// were collapsed into an already-issued action on the same event.
type BatchReport struct {
	BatchID              string   `json:"batch_id"`
	Succeeded            []string `json:"succeeded"`
	Failed               []string `json:"failed"`
	ResolutionsRecorded  int      `json:"resolutions_recorded"`
	SuppressedDuplicates int      `json:"suppressed_duplicates"`
}
