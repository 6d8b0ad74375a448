package registration

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// Aggregate is one event's registration state loaded under the event lock.
// Every operation mutates the in-memory copy; Changeset reports what the
// store has to persist.
type Aggregate struct {
	event     model.Event
	origEvent model.Event
	ledger    *Ledger
	waitlist  *Waitlist

	attendees []*model.Attendee
	byID      map[string]*model.Attendee
	original  map[string]model.Attendee
	inserted  map[string]bool

	now       func() time.Time
	newID     func() string
	newTicket func() string
}

// Option customizes an Aggregate.
type Option func(*Aggregate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregate) { a.now = now }
}

// WithIDGenerator overrides attendee id generation.
func WithIDGenerator(newID func() string) Option {
	return func(a *Aggregate) { a.newID = newID }
}

// NewTicketNumber returns a ticket code carrying 64 random bits. Stores
// reject duplicates and the mutation is retried with a fresh code.
func NewTicketNumber() string {
	return "TKT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// Load builds an aggregate from a snapshot and verifies all invariants.
func Load(s model.Snapshot, opts ...Option) (*Aggregate, error) {
	agg := &Aggregate{
		event:     s.Event,
		origEvent: s.Event,
		byID:      make(map[string]*model.Attendee, len(s.Attendees)),
		original:  make(map[string]model.Attendee, len(s.Attendees)),
		inserted:  make(map[string]bool),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		newTicket: NewTicketNumber,
	}
	for _, opt := range opts {
		opt(agg)
	}

	ledger, err := NewLedger(s.Event.Capacity, s.Event.ConfirmedCount)
	if err != nil {
		return nil, err
	}
	agg.ledger = ledger

	var queued []*model.Attendee
	for i := range s.Attendees {
		if !s.Attendees[i].Status.Active() {
			continue
		}
		if s.Attendees[i].EventID != s.Event.ID {
			return nil, fmt.Errorf("%w: attendee %s belongs to event %s", ErrInvariantViolation, s.Attendees[i].ID, s.Attendees[i].EventID)
		}
		a := s.Attendees[i].Clone()
		agg.attendees = append(agg.attendees, &a)
		agg.byID[a.ID] = &a
		agg.original[a.ID] = a.Clone()
		if a.Status == model.StatusWaitlisted {
			queued = append(queued, &a)
		}
	}

	agg.waitlist, err = NewWaitlist(queued)
	if err != nil {
		return nil, err
	}
	if err := agg.verify(); err != nil {
		return nil, err
	}
	return agg, nil
}

// Register admits userID if a seat is free, otherwise appends them to the
// waitlist. The returned attendee reflects the resulting status.
func (g *Aggregate) Register(userID string) (model.Attendee, error) {
	if g.activeFor(userID) != nil {
		return model.Attendee{}, ErrAlreadyRegistered
	}

	now := g.now()
	a := &model.Attendee{
		ID:           g.newID(),
		EventID:      g.event.ID,
		UserID:       userID,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	switch err := g.ledger.TryAdmit(); {
	case err == nil:
		a.Status = model.StatusRegistered
		a.TicketNumber = g.newTicket()
	case errors.Is(err, ErrAtCapacity):
		g.event.WaitlistSeq++
		a.Status = model.StatusWaitlisted
		a.WaitlistSeq = g.event.WaitlistSeq
		g.waitlist.Enqueue(a)
	default:
		return model.Attendee{}, err
	}

	g.attendees = append(g.attendees, a)
	g.byID[a.ID] = a
	g.inserted[a.ID] = true

	if err := g.verify(); err != nil {
		return model.Attendee{}, err
	}
	return a.Clone(), nil
}

// CancelResult describes a committed cancellation.
type CancelResult struct {
	Cancelled   model.Attendee
	PriorStatus model.Status
	Promoted    *model.Attendee
}

// Cancel moves the attendee to cancelled. Cancelling a confirmed seat
// releases it and promotes the waitlist head into it.
func (g *Aggregate) Cancel(attendeeID string) (CancelResult, error) {
	a, ok := g.byID[attendeeID]
	if !ok {
		return CancelResult{}, fmt.Errorf("%w: attendee %s is not active", ErrInvalidTransition, attendeeID)
	}

	prior := a.Status
	if err := transition(a, model.StatusCancelled, g.now()); err != nil {
		return CancelResult{}, err
	}

	res := CancelResult{PriorStatus: prior}
	switch prior {
	case model.StatusRegistered:
		if err := g.ledger.Release(); err != nil {
			return CancelResult{}, err
		}
		promoted, err := g.promoteHead()
		if err != nil {
			return CancelResult{}, err
		}
		if promoted != nil {
			p := promoted.Clone()
			res.Promoted = &p
		}
	case model.StatusWaitlisted:
		if err := g.waitlist.Remove(a.ID); err != nil {
			return CancelResult{}, err
		}
	}

	if err := g.verify(); err != nil {
		return CancelResult{}, err
	}
	res.Cancelled = a.Clone()
	return res, nil
}

// CheckIn marks a registered attendee as present.
func (g *Aggregate) CheckIn(attendeeID string) (model.Attendee, error) {
	a, ok := g.byID[attendeeID]
	if !ok {
		return model.Attendee{}, fmt.Errorf("%w: attendee %s is not active", ErrInvalidTransition, attendeeID)
	}
	if err := transition(a, model.StatusCheckedIn, g.now()); err != nil {
		return model.Attendee{}, err
	}
	if err := g.verify(); err != nil {
		return model.Attendee{}, err
	}
	return a.Clone(), nil
}

// Resize changes the capacity. Growing fills the new seats from the waitlist
// head in order; the promoted attendees are returned.
func (g *Aggregate) Resize(capacity int) ([]model.Attendee, error) {
	if err := g.ledger.Resize(capacity); err != nil {
		return nil, err
	}
	g.event.Capacity = capacity

	var promoted []model.Attendee
	for g.ledger.Available() > 0 && g.waitlist.Len() > 0 {
		p, err := g.promoteHead()
		if err != nil {
			return nil, err
		}
		promoted = append(promoted, p.Clone())
	}

	if err := g.verify(); err != nil {
		return nil, err
	}
	return promoted, nil
}

// Describe replaces the event's descriptive fields. Capacity and the ledger
// counters are not touched.
func (g *Aggregate) Describe(name, description, location string, startsAt *time.Time) {
	g.event.Name = name
	g.event.Description = description
	g.event.Location = location
	g.event.StartsAt = startsAt
}

// promoteHead is the only path from waitlisted to registered.
func (g *Aggregate) promoteHead() (*model.Attendee, error) {
	head, ok := g.waitlist.DequeueHead()
	if !ok {
		return nil, nil
	}
	if err := transition(head, model.StatusRegistered, g.now()); err != nil {
		return nil, err
	}
	if err := g.ledger.TryAdmit(); err != nil {
		return nil, fmt.Errorf("%w: promotion of %s found no free seat: %v", ErrInvariantViolation, head.ID, err)
	}
	if head.TicketNumber == "" {
		head.TicketNumber = g.newTicket()
	}
	return head, nil
}

func (g *Aggregate) activeFor(userID string) *model.Attendee {
	for _, a := range g.attendees {
		if a.UserID == userID && a.Status.Active() {
			return a
		}
	}
	return nil
}

// verify re-derives every counter from the attendee collection.
func (g *Aggregate) verify() error {
	confirmed, waitlisted := 0, 0
	for _, a := range g.attendees {
		switch {
		case a.Status.Confirmed():
			confirmed++
			if a.WaitlistPosition != nil {
				return fmt.Errorf("%w: confirmed attendee %s has waitlist position", ErrInvariantViolation, a.ID)
			}
		case a.Status == model.StatusWaitlisted:
			waitlisted++
		}
	}
	if confirmed != g.ledger.Confirmed() {
		return fmt.Errorf("%w: ledger=%d attendees=%d", ErrInvariantViolation, g.ledger.Confirmed(), confirmed)
	}
	if confirmed > g.ledger.Capacity() {
		return fmt.Errorf("%w: confirmed %d exceeds capacity %d", ErrInvariantViolation, confirmed, g.ledger.Capacity())
	}
	if waitlisted != g.waitlist.Len() {
		return fmt.Errorf("%w: waitlist has %d entries, %d attendees waitlisted", ErrInvariantViolation, g.waitlist.Len(), waitlisted)
	}
	return g.waitlist.verify()
}

// Event returns the event with the current ledger counters.
func (g *Aggregate) Event() model.Event {
	e := g.event
	e.Capacity = g.ledger.Capacity()
	e.ConfirmedCount = g.ledger.Confirmed()
	return e
}

// Attendees returns every attendee touched or loaded, in load/insert order.
func (g *Aggregate) Attendees() []model.Attendee {
	out := make([]model.Attendee, len(g.attendees))
	for i, a := range g.attendees {
		out[i] = a.Clone()
	}
	return out
}

// WaitlistIDs returns the waitlist in promotion order.
func (g *Aggregate) WaitlistIDs() []string {
	return g.waitlist.IDs()
}

// Changeset diffs the aggregate against the loaded snapshot.
func (g *Aggregate) Changeset() model.Changeset {
	var cs model.Changeset
	now := g.now()

	e := g.Event()
	if e.Capacity != g.origEvent.Capacity ||
		e.ConfirmedCount != g.origEvent.ConfirmedCount ||
		e.WaitlistSeq != g.origEvent.WaitlistSeq ||
		detailsChanged(g.origEvent, e) {
		e.UpdatedAt = now
		cs.Event = &e
	}

	for _, a := range g.attendees {
		if g.inserted[a.ID] {
			cs.Insert = append(cs.Insert, a.Clone())
			continue
		}
		if changed(g.original[a.ID], *a) {
			upd := a.Clone()
			upd.UpdatedAt = now
			cs.Update = append(cs.Update, upd)
		}
	}
	return cs
}

func detailsChanged(before, after model.Event) bool {
	if before.Name != after.Name || before.Description != after.Description || before.Location != after.Location {
		return true
	}
	if (before.StartsAt == nil) != (after.StartsAt == nil) {
		return true
	}
	return before.StartsAt != nil && !before.StartsAt.Equal(*after.StartsAt)
}

func changed(before, after model.Attendee) bool {
	b, a := before.Clone(), after.Clone()
	b.UpdatedAt, a.UpdatedAt = time.Time{}, time.Time{}
	return !reflect.DeepEqual(b, a)
}
