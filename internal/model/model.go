// Package model defines the core domain types for the event registration system.
package model

import "time"

// Status is the lifecycle state of a single registration.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusWaitlisted Status = "waitlisted"
	StatusCheckedIn  Status = "checked_in"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusWaitlisted, StatusCheckedIn, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the registration still holds a seat or a waitlist slot.
func (s Status) Active() bool {
	return s == StatusRegistered || s == StatusWaitlisted || s == StatusCheckedIn
}

// Confirmed reports whether the registration consumes one unit of capacity.
func (s Status) Confirmed() bool {
	return s == StatusRegistered || s == StatusCheckedIn
}

// Event represents a bookable event created by an organizer.
//
// ConfirmedCount is the capacity ledger counter. It is only changed through
// the per-event aggregate and always equals the number of attendees whose
// status is registered or checked_in.
type Event struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	OrganizerID    string     `json:"organizer_id"`
	Capacity       int        `json:"capacity"`
	ConfirmedCount int        `json:"confirmed_count"`
	WaitlistSeq    int64      `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Remaining returns the number of available seats.
func (e *Event) Remaining() int {
	if e.ConfirmedCount >= e.Capacity {
		return 0
	}
	return e.Capacity - e.ConfirmedCount
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.ConfirmedCount >= e.Capacity
}

// Attendee is one registration instance of a user for an event.
// Cancelled attendees are kept for audit; a user may register again,
// which creates a new Attendee.
type Attendee struct {
	ID               string     `json:"id"`
	EventID          string     `json:"event_id"`
	UserID           string     `json:"user_id"`
	Status           Status     `json:"status"`
	TicketNumber     string     `json:"ticket_number,omitempty"`
	WaitlistPosition *int       `json:"waitlist_position,omitempty"`
	WaitlistSeq      int64      `json:"-"`
	RegisteredAt     time.Time  `json:"registered_at"`
	PromotedAt       *time.Time `json:"promoted_at,omitempty"`
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Position returns the waitlist position, or 0 when not waitlisted.
func (a *Attendee) Position() int {
	if a.WaitlistPosition == nil {
		return 0
	}
	return *a.WaitlistPosition
}

// Clone returns a deep copy so callers can diff against the original.
func (a Attendee) Clone() Attendee {
	out := a
	out.WaitlistPosition = cloneInt(a.WaitlistPosition)
	out.PromotedAt = cloneTime(a.PromotedAt)
	out.CheckedInAt = cloneTime(a.CheckedInAt)
	out.CancelledAt = cloneTime(a.CancelledAt)
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// AttendeeFilter narrows attendee listings. Empty fields match everything.
type AttendeeFilter struct {
	EventID string
	UserID  string
	Status  Status
}

// EventFilter narrows and pages event listings.
type EventFilter struct {
	// UpcomingOnly keeps events whose StartsAt is at or after StartsAfter.
	// Events without a start time are excluded.
	UpcomingOnly bool
	StartsAfter  time.Time
	Skip         int
	Limit        int // 0 means no limit
}

// Page applies Skip and Limit to an already ordered slice.
func (f EventFilter) Page(events []Event) []Event {
	if f.Skip >= len(events) {
		return events[:0]
	}
	events = events[f.Skip:]
	if f.Limit > 0 && f.Limit < len(events) {
		events = events[:f.Limit]
	}
	return events
}

// Snapshot is the locked view of one event handed to a mutation:
// the event row plus every non-cancelled attendee.
type Snapshot struct {
	Event     Event
	Attendees []Attendee
}

// Changeset is what a mutation asks the store to persist atomically.
type Changeset struct {
	Event  *Event
	Insert []Attendee
	Update []Attendee
}

// Empty reports whether the changeset has nothing to write.
func (c Changeset) Empty() bool {
	return c.Event == nil && len(c.Insert) == 0 && len(c.Update) == 0
}

// EventView is the read projection returned to clients. Derived fields are
// recomputed from the ledger on every read.
type EventView struct {
	Event
	AvailableSpots int  `json:"available_spots"`
	WaitlistLength int  `json:"waitlist_length"`
	IsFull         bool `json:"is_full"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	Capacity    int        `json:"capacity"`
}

// UpdateEventRequest edits an event's descriptive fields. Nil fields are left
// unchanged; capacity is changed through ResizeRequest.
type UpdateEventRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
}

// ResizeRequest is the payload for changing an event's capacity.
type ResizeRequest struct {
	Capacity int `json:"capacity"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	EventID string `json:"event_id"`
}

// RegistrationResponse reports the outcome of a registration request.
type RegistrationResponse struct {
	Message          string   `json:"message"`
	Status           Status   `json:"status"`
	WaitlistPosition *int     `json:"waitlist_position,omitempty"`
	Attendee         Attendee `json:"attendee"`
}

// NewRegistrationResponse describes a freshly registered or waitlisted attendee.
func NewRegistrationResponse(a Attendee) RegistrationResponse {
	msg := "Registered for event successfully"
	if a.Status == StatusWaitlisted {
		msg = "Event is full. Added to waitlist"
	}
	return RegistrationResponse{
		Message:          msg,
		Status:           a.Status,
		WaitlistPosition: cloneInt(a.WaitlistPosition),
		Attendee:         a,
	}
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
