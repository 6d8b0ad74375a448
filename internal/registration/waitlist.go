package registration

import (
	"fmt"
	"sort"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// Waitlist is the FIFO queue of waitlisted attendees of one event.
// Positions are rewritten on the attendees after every mutation so they
// always form the dense sequence 1..N.
type Waitlist struct {
	entries []*model.Attendee
}

// NewWaitlist orders the given attendees by insertion sequence and checks
// that their stored positions already match that order.
func NewWaitlist(entries []*model.Attendee) (*Waitlist, error) {
	sorted := make([]*model.Attendee, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].WaitlistSeq != sorted[j].WaitlistSeq {
			return sorted[i].WaitlistSeq < sorted[j].WaitlistSeq
		}
		return sorted[i].RegisteredAt.Before(sorted[j].RegisteredAt)
	})

	for i, a := range sorted {
		if a.Status != model.StatusWaitlisted {
			return nil, fmt.Errorf("%w: attendee %s in waitlist with status %s", ErrInvariantViolation, a.ID, a.Status)
		}
		if a.Position() != i+1 {
			return nil, fmt.Errorf("%w: attendee %s at position %d, want %d", ErrInvariantViolation, a.ID, a.Position(), i+1)
		}
	}
	return &Waitlist{entries: sorted}, nil
}

// Enqueue appends a to the tail and returns its position.
func (w *Waitlist) Enqueue(a *model.Attendee) int {
	w.entries = append(w.entries, a)
	pos := len(w.entries)
	a.WaitlistPosition = &pos
	return pos
}

// DequeueHead removes and returns the earliest entry.
func (w *Waitlist) DequeueHead() (*model.Attendee, bool) {
	if len(w.entries) == 0 {
		return nil, false
	}
	head := w.entries[0]
	w.entries = w.entries[1:]
	w.renumber()
	return head, true
}

// Remove drops an arbitrary entry and closes the gap behind it.
func (w *Waitlist) Remove(attendeeID string) error {
	for i, a := range w.entries {
		if a.ID == attendeeID {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			w.renumber()
			return nil
		}
	}
	return fmt.Errorf("%w: attendee %s not in waitlist", ErrInvariantViolation, attendeeID)
}

func (w *Waitlist) Len() int { return len(w.entries) }

// IDs returns attendee ids in queue order.
func (w *Waitlist) IDs() []string {
	ids := make([]string, len(w.entries))
	for i, a := range w.entries {
		ids[i] = a.ID
	}
	return ids
}

func (w *Waitlist) renumber() {
	for i, a := range w.entries {
		pos := i + 1
		a.WaitlistPosition = &pos
	}
}

// verify checks the dense 1..N numbering.
func (w *Waitlist) verify() error {
	for i, a := range w.entries {
		if a.Status != model.StatusWaitlisted || a.Position() != i+1 {
			return fmt.Errorf("%w: waitlist entry %s status=%s position=%d index=%d",
				ErrInvariantViolation, a.ID, a.Status, a.Position(), i+1)
		}
	}
	return nil
}
