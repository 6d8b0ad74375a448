package registration

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

func waitlisted(n int) []*model.Attendee {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*model.Attendee, n)
	for i := range out {
		pos := i + 1
		out[i] = &model.Attendee{
			ID:               fmt.Sprintf("w%d", i+1),
			Status:           model.StatusWaitlisted,
			WaitlistSeq:      int64(i + 1),
			WaitlistPosition: &pos,
			RegisteredAt:     base,
		}
	}
	return out
}

func positions(entries []*model.Attendee) map[string]int {
	out := make(map[string]int, len(entries))
	for _, a := range entries {
		out[a.ID] = a.Position()
	}
	return out
}

func TestNewWaitlist_OrdersBySequence(t *testing.T) {
	entries := waitlisted(3)
	// Same timestamp for everyone; sequence decides.
	shuffled := []*model.Attendee{entries[2], entries[0], entries[1]}

	w, err := NewWaitlist(shuffled)
	require.NoError(t, err)
	require.Equal(t, []string{"w1", "w2", "w3"}, w.IDs())
}

func TestNewWaitlist_RejectsGaps(t *testing.T) {
	entries := waitlisted(3)
	pos := 5
	entries[2].WaitlistPosition = &pos

	_, err := NewWaitlist(entries)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestWaitlist_EnqueueReturnsTailPosition(t *testing.T) {
	w, err := NewWaitlist(waitlisted(2))
	require.NoError(t, err)

	a := &model.Attendee{ID: "new", Status: model.StatusWaitlisted}
	require.Equal(t, 3, w.Enqueue(a))
	require.Equal(t, 3, a.Position())
	require.Equal(t, 3, w.Len())
}

func TestWaitlist_DequeueHeadShiftsPositions(t *testing.T) {
	entries := waitlisted(3)
	w, err := NewWaitlist(entries)
	require.NoError(t, err)

	head, ok := w.DequeueHead()
	require.True(t, ok)
	require.Equal(t, "w1", head.ID)

	got := positions(entries[1:])
	require.Equal(t, map[string]int{"w2": 1, "w3": 2}, got)
}

func TestWaitlist_DequeueEmpty(t *testing.T) {
	w, err := NewWaitlist(nil)
	require.NoError(t, err)

	head, ok := w.DequeueHead()
	require.False(t, ok)
	require.Nil(t, head)
}

func TestWaitlist_RemoveFromMiddle(t *testing.T) {
	entries := waitlisted(4)
	w, err := NewWaitlist(entries)
	require.NoError(t, err)

	require.NoError(t, w.Remove("w2"))
	require.Equal(t, []string{"w1", "w3", "w4"}, w.IDs())
	require.Equal(t, 1, entries[0].Position())
	require.Equal(t, 2, entries[2].Position())
	require.Equal(t, 3, entries[3].Position())

	require.ErrorIs(t, w.Remove("missing"), ErrInvariantViolation)
}
