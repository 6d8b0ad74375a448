package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// MemoryStore keeps events and attendees in process. Reads share a RWMutex;
// Mutate additionally holds a per-event lock for the whole
// load → decide → write sequence.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]model.Event
	attendees map[string]model.Attendee
	order     []string            // attendee ids in insertion order
	byEvent   map[string][]string // attendee ids per event, insertion order
	tickets   map[string]string   // ticket number → attendee id

	locks       *eventLocks
	lockTimeout time.Duration
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &MemoryStore{
		events:      make(map[string]model.Event),
		attendees:   make(map[string]model.Attendee),
		byEvent:     make(map[string][]string),
		tickets:     make(map[string]string),
		locks:       newEventLocks(),
		lockTimeout: lockTimeout,
	}
}

// CreateEvent inserts a new event.
func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[e.ID]; ok {
		return fmt.Errorf("event %s: %w", e.ID, ErrDuplicate)
	}
	s.events[e.ID] = *e
	return nil
}

// ListEvents returns the events matching f ordered by creation time
// descending.
func (s *MemoryStore) ListEvents(_ context.Context, f model.EventFilter) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		if f.UpcomingOnly && (e.StartsAt == nil || e.StartsAt.Before(f.StartsAfter)) {
			continue
		}
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return f.Page(events), nil
}

// GetEvent returns a single event or ErrNotFound.
func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// GetAttendee returns a single attendee or ErrNotFound.
func (s *MemoryStore) GetAttendee(_ context.Context, id string) (*model.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attendees[id]
	if !ok {
		return nil, ErrNotFound
	}
	a = a.Clone()
	return &a, nil
}

// ListAttendees returns attendees matching the filter in insertion order.
func (s *MemoryStore) ListAttendees(_ context.Context, f model.AttendeeFilter) ([]model.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order
	if f.EventID != "" {
		ids = s.byEvent[f.EventID]
	}

	var out []model.Attendee
	for _, id := range ids {
		a := s.attendees[id]
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

// Mutate runs fn against the event's snapshot while holding the event lock
// and applies the returned changeset atomically. A changeset whose ticket
// numbers collide with stored ones is discarded and fn runs again.
func (s *MemoryStore) Mutate(ctx context.Context, eventID string, fn MutateFunc) error {
	if !s.hasEvent(eventID) {
		return ErrNotFound
	}

	release, err := s.locks.acquire(ctx, eventID, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	return retryTicketCollision(func() error {
		snap, err := s.snapshot(eventID)
		if err != nil {
			return err
		}
		cs, err := fn(snap)
		if err != nil {
			return err
		}
		return s.apply(eventID, cs)
	})
}

func (s *MemoryStore) hasEvent(eventID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[eventID]
	return ok
}

func (s *MemoryStore) snapshot(eventID string) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]
	if !ok {
		return model.Snapshot{}, ErrNotFound
	}
	snap := model.Snapshot{Event: e}
	for _, id := range s.byEvent[eventID] {
		if a := s.attendees[id]; a.Status != model.StatusCancelled {
			snap.Attendees = append(snap.Attendees, a.Clone())
		}
	}
	return snap, nil
}

// apply validates the whole changeset before writing any of it.
func (s *MemoryStore) apply(eventID string, cs model.Changeset) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Event != nil && cs.Event.ID != eventID {
		return fmt.Errorf("changeset for event %s carries event %s: %w", eventID, cs.Event.ID, ErrNotFound)
	}
	for _, a := range cs.Update {
		cur, ok := s.attendees[a.ID]
		if !ok || cur.EventID != eventID {
			return fmt.Errorf("update attendee %s: %w", a.ID, ErrNotFound)
		}
	}
	for _, a := range cs.Insert {
		if _, ok := s.attendees[a.ID]; ok {
			return fmt.Errorf("insert attendee %s: %w", a.ID, ErrDuplicate)
		}
		if a.EventID != eventID {
			return fmt.Errorf("insert attendee %s for event %s under lock of %s: %w", a.ID, a.EventID, eventID, ErrDuplicate)
		}
		if s.hasActiveLocked(eventID, a.UserID, cs.Update) {
			return fmt.Errorf("insert attendee %s for user %s: %w", a.ID, a.UserID, ErrDuplicate)
		}
	}
	if err := s.checkTicketsLocked(cs); err != nil {
		return err
	}

	if cs.Event != nil {
		s.events[eventID] = *cs.Event
	}
	for _, a := range cs.Update {
		s.attendees[a.ID] = a.Clone()
		s.indexTicketLocked(a)
	}
	for _, a := range cs.Insert {
		s.attendees[a.ID] = a.Clone()
		s.order = append(s.order, a.ID)
		s.byEvent[eventID] = append(s.byEvent[eventID], a.ID)
		s.indexTicketLocked(a)
	}
	return nil
}

// checkTicketsLocked mirrors the unique index on ticket_number.
func (s *MemoryStore) checkTicketsLocked(cs model.Changeset) error {
	seen := make(map[string]string)
	for _, group := range [][]model.Attendee{cs.Update, cs.Insert} {
		for _, a := range group {
			if a.TicketNumber == "" {
				continue
			}
			if owner, ok := s.tickets[a.TicketNumber]; ok && owner != a.ID {
				return fmt.Errorf("ticket %s: %w", a.TicketNumber, errTicketCollision)
			}
			if owner, ok := seen[a.TicketNumber]; ok && owner != a.ID {
				return fmt.Errorf("ticket %s: %w", a.TicketNumber, errTicketCollision)
			}
			seen[a.TicketNumber] = a.ID
		}
	}
	return nil
}

func (s *MemoryStore) indexTicketLocked(a model.Attendee) {
	if a.TicketNumber != "" {
		s.tickets[a.TicketNumber] = a.ID
	}
}

// hasActiveLocked mirrors the partial unique index on (event_id, user_id).
// Pending updates win over stored state.
func (s *MemoryStore) hasActiveLocked(eventID, userID string, pending []model.Attendee) bool {
	updated := make(map[string]model.Status, len(pending))
	for _, a := range pending {
		updated[a.ID] = a.Status
	}
	for _, id := range s.byEvent[eventID] {
		a := s.attendees[id]
		if a.UserID != userID {
			continue
		}
		status := a.Status
		if st, ok := updated[id]; ok {
			status = st
		}
		if status.Active() {
			return true
		}
	}
	return false
}

// eventLocks hands out one single-slot semaphore per event so waiting can be
// bounded by a timeout or the caller's context. An entry lives only while
// some caller holds or waits for it.
type eventLocks struct {
	mu   sync.Mutex
	sems map[string]*eventLock
}

type eventLock struct {
	sem  chan struct{}
	refs int
}

func newEventLocks() *eventLocks {
	return &eventLocks{sems: make(map[string]*eventLock)}
}

func (l *eventLocks) acquire(ctx context.Context, eventID string, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	l.mu.Lock()
	lk, ok := l.sems[eventID]
	if !ok {
		lk = &eventLock{sem: make(chan struct{}, 1)}
		l.sems[eventID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.unref(eventID, lk)
		}, nil
	case <-timer.C:
		l.unref(eventID, lk)
		return nil, fmt.Errorf("%w: lock for event %s not acquired within %s", ErrStorageUnavailable, eventID, timeout)
	case <-ctx.Done():
		l.unref(eventID, lk)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
	}
}

func (l *eventLocks) unref(eventID string, lk *eventLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.sems, eventID)
	}
}

// retryTicketCollision reruns attempt while it fails on a ticket number
// collision. Each rerun mints fresh ticket numbers.
func retryTicketCollision(attempt func() error) error {
	var err error
	for i := 0; i < maxTicketAttempts; i++ {
		if err = attempt(); !errors.Is(err, errTicketCollision) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
