package registration

import (
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// transitions lists every permitted status change. Cancelled and checked_in
// are terminal.
var transitions = map[model.Status][]model.Status{
	model.StatusRegistered: {model.StatusCheckedIn, model.StatusCancelled},
	model.StatusWaitlisted: {model.StatusRegistered, model.StatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves a to the target status and stamps the matching timestamp.
// It does not touch the ledger or the waitlist.
func transition(a *model.Attendee, to model.Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	from := a.Status
	a.Status = to
	a.UpdatedAt = now

	switch to {
	case model.StatusCheckedIn:
		a.CheckedInAt = &now
	case model.StatusCancelled:
		a.CancelledAt = &now
	case model.StatusRegistered:
		if from == model.StatusWaitlisted {
			a.PromotedAt = &now
		}
	}
	if from == model.StatusWaitlisted {
		a.WaitlistPosition = nil
	}
	return nil
}
