package model

import "time"

// NotificationType identifies what happened to a registration.
type NotificationType string

const (
	NotificationRegistered NotificationType = "registered"
	NotificationWaitlisted NotificationType = "waitlisted"
	NotificationPromoted   NotificationType = "promoted"
	NotificationCancelled  NotificationType = "cancelled"
	NotificationCheckedIn  NotificationType = "checked_in"
)

// Notification is the payload pushed to the notification publisher after a
// registration change has been committed.
type Notification struct {
	Type       NotificationType `json:"type"`
	EventID    string           `json:"event_id"`
	UserID     string           `json:"user_id"`
	AttendeeID string           `json:"attendee_id"`
	Position   *int             `json:"position,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewNotification builds a notification describing the attendee's current state.
func NewNotification(t NotificationType, a Attendee, at time.Time) Notification {
	n := Notification{
		Type:       t,
		EventID:    a.EventID,
		UserID:     a.UserID,
		AttendeeID: a.ID,
		OccurredAt: at,
	}
	if t == NotificationWaitlisted {
		n.Position = cloneInt(a.WaitlistPosition)
	}
	return n
}
