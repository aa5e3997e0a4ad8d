package models

import "time"

// EventPriority orders events by urgency.
type EventPriority string

const (
	PriorityUrgent EventPriority = "urgent"
	PriorityHigh   EventPriority = "high"
	PriorityMedium EventPriority = "medium"
	PriorityLow    EventPriority = "low"
)

// EventType distinguishes timed events from tasks.
type EventType string

const (
	TypeEvent EventType = "event"
	TypeTask  EventType = "task"
)

// Event is the unit being scheduled. The engine never creates events itself;
// proposals are Events that do not yet exist in the surrounding CRM's storage.
type Event struct {
	ID            string        `db:"id" json:"id"`
	Title         string        `db:"title" json:"title"`
	ClientID      *string       `db:"client_id" json:"client_id,omitempty"`
	ClientName    *string       `db:"client_name" json:"client_name,omitempty"`
	Location      *string       `db:"location" json:"location,omitempty"`
	ServiceType   string        `db:"service_type" json:"service_type"`
	StartDateTime time.Time     `db:"start_date_time" json:"start_date_time"`
	EndDateTime   *time.Time    `db:"end_date_time" json:"end_date_time,omitempty"`
	Duration      int           `db:"duration" json:"duration"`
	Priority      EventPriority `db:"priority" json:"priority"`
	Type          EventType     `db:"type" json:"type"`
}

// End resolves the event's end time, falling back to start plus duration when
// no explicit end is present.
func (e Event) End() time.Time {
	if e.EndDateTime != nil {
		return *e.EndDateTime
	}
	return e.StartDateTime.Add(time.Duration(e.Duration) * time.Minute)
}

// Interval returns the event's half-open [start, end) window.
func (e Event) Interval() Interval {
	return Interval{Start: e.StartDateTime, End: e.End()}
}

// DurationMinutes resolves the effective duration in minutes.
func (e Event) DurationMinutes() int {
	return int(e.End().Sub(e.StartDateTime) / time.Minute)
}

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// TimeWindow narrows event listing to a date range.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// EventPatch carries a partial event update for reschedules.
type EventPatch struct {
	StartDateTime *time.Time `json:"start_date_time,omitempty"`
	EndDateTime   *time.Time `json:"end_date_time,omitempty"`
	Duration      *int       `json:"duration,omitempty"`
}

// TimeSlot identifies a coarse calendar grid cell: a day plus an hour bucket.
type TimeSlot struct {
	Date time.Time `json:"date"`
	Hour int       `json:"hour"`
}

// Start returns the wall-clock start of the slot.
func (s TimeSlot) Start() time.Time {
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), s.Hour, 0, 0, 0, s.Date.Location())
}

// ProposedTime is the output of a drag/drop or resize mapping, ready to be
// conflict-checked as a proposed event state before any persistence.
type ProposedTime struct {
	NewStart time.Time `json:"new_start"`
	NewEnd   time.Time `json:"new_end"`
	Duration int       `json:"duration"`
}

// Apply returns a copy of the event carrying the proposed times.
func (p ProposedTime) Apply(event Event) Event {
	event.StartDateTime = p.NewStart
	end := p.NewEnd
	event.EndDateTime = &end
	event.Duration = p.Duration
	return event
}
