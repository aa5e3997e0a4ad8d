package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
)

// BusinessRule evaluates a proposed event against standing policy. Rules see
// only the proposal; a violation surfaces as a business_rule conflict whose
// conflicting event is the proposal itself.
type BusinessRule interface {
	Name() string
	Check(proposed models.Event) *RuleViolation
}

// RuleViolation describes a breached rule.
type RuleViolation struct {
	Severity models.ConflictSeverity
	Message  string
}

// BusinessHoursRule flags events that start before opening or end after
// closing, in the event's own location.
type BusinessHoursRule struct {
	OpenHour  int
	CloseHour int
	Severity  models.ConflictSeverity
}

// Name identifies the rule in conflict ids.
func (r BusinessHoursRule) Name() string { return "business_hours" }

// Check reports a violation when the proposal spills outside business hours.
func (r BusinessHoursRule) Check(proposed models.Event) *RuleViolation {
	severity := r.Severity
	if severity == "" {
		severity = models.SeverityWarning
	}

	start := proposed.StartDateTime
	end := proposed.End()

	opening := time.Date(start.Year(), start.Month(), start.Day(), r.OpenHour, 0, 0, 0, start.Location())
	closing := time.Date(start.Year(), start.Month(), start.Day(), r.CloseHour, 0, 0, 0, start.Location())

	if start.Before(opening) || end.After(closing) {
		return &RuleViolation{
			Severity: severity,
			Message:  fmt.Sprintf("%q falls outside business hours (%02d:00-%02d:00)", proposed.Title, r.OpenHour, r.CloseHour),
		}
	}
	return nil
}

// MaxDurationRule flags events longer than the configured ceiling.
type MaxDurationRule struct {
	Max      time.Duration
	Severity models.ConflictSeverity
}

// Name identifies the rule in conflict ids.
func (r MaxDurationRule) Name() string { return "max_duration" }

// Check reports a violation when the proposal exceeds the duration ceiling.
func (r MaxDurationRule) Check(proposed models.Event) *RuleViolation {
	severity := r.Severity
	if severity == "" {
		severity = models.SeverityWarning
	}

	if d := proposed.End().Sub(proposed.StartDateTime); d > r.Max {
		return &RuleViolation{
			Severity: severity,
			Message:  fmt.Sprintf("%q runs %s, above the %s limit", proposed.Title, d, r.Max),
		}
	}
	return nil
}
