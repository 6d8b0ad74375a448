package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status    Status
		valid     bool
		active    bool
		confirmed bool
	}{
		{StatusRegistered, true, true, true},
		{StatusWaitlisted, true, true, false},
		{StatusCheckedIn, true, true, true},
		{StatusCancelled, true, false, false},
		{Status("pending"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			require.Equal(t, tt.valid, tt.status.Valid())
			require.Equal(t, tt.active, tt.status.Active())
			require.Equal(t, tt.confirmed, tt.status.Confirmed())
		})
	}
}

func TestEvent_Remaining(t *testing.T) {
	e := Event{Capacity: 3, ConfirmedCount: 1}
	require.Equal(t, 2, e.Remaining())
	require.False(t, e.IsFull())

	e.ConfirmedCount = 3
	require.Equal(t, 0, e.Remaining())
	require.True(t, e.IsFull())
}

func TestAttendee_CloneIsDeep(t *testing.T) {
	pos := 2
	now := time.Now()
	a := Attendee{ID: "a1", WaitlistPosition: &pos, CheckedInAt: &now}

	c := a.Clone()
	*c.WaitlistPosition = 5
	*c.CheckedInAt = now.Add(time.Hour)

	require.Equal(t, 2, a.Position())
	require.Equal(t, now, *a.CheckedInAt)
	require.Equal(t, 5, c.Position())
}

func TestNewNotification_PositionOnlyForWaitlisted(t *testing.T) {
	pos := 1
	a := Attendee{ID: "a1", EventID: "e1", UserID: "u1", Status: StatusWaitlisted, WaitlistPosition: &pos}
	now := time.Now()

	n := NewNotification(NotificationWaitlisted, a, now)
	require.NotNil(t, n.Position)
	require.Equal(t, 1, *n.Position)
	require.Equal(t, "e1", n.EventID)
	require.Equal(t, "u1", n.UserID)
	require.Equal(t, "a1", n.AttendeeID)

	n = NewNotification(NotificationCancelled, a, now)
	require.Nil(t, n.Position)
}

func TestNewRegistrationResponse(t *testing.T) {
	pos := 4
	waitlisted := NewRegistrationResponse(Attendee{ID: "a1", Status: StatusWaitlisted, WaitlistPosition: &pos})
	require.Equal(t, StatusWaitlisted, waitlisted.Status)
	require.Equal(t, 4, *waitlisted.WaitlistPosition)
	require.Contains(t, waitlisted.Message, "waitlist")

	pos = 9
	require.Equal(t, 4, *waitlisted.WaitlistPosition, "position is copied")

	registered := NewRegistrationResponse(Attendee{ID: "a2", Status: StatusRegistered, TicketNumber: "TKT-1"})
	require.Nil(t, registered.WaitlistPosition)
	require.Equal(t, "TKT-1", registered.Attendee.TicketNumber)
}
