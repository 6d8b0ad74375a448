package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/registration"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/repository"
)

// EventService orchestrates event-related business operations.
type EventService struct {
	deps
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store Store, pub notify.Publisher, opts ...Option) *EventService {
	return &EventService{deps: newDeps(store, pub, opts)}
}

// CreateEvent validates the request and stores a new event owned by the caller.
func (s *EventService) CreateEvent(ctx context.Context, id auth.Identity, req model.CreateEventRequest) (*model.EventView, error) {
	if id.Role != auth.RoleOrganizer && !id.IsAdmin() {
		return nil, fmt.Errorf("%w: only organizers can create events", registration.ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}
	if err := validateCapacity(req.Capacity); err != nil {
		return nil, err
	}

	now := s.now()
	e := &model.Event{
		ID:          s.mintID(),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		StartsAt:    req.StartsAt,
		OrganizerID: id.UserID,
		Capacity:    req.Capacity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	log.Info(log.CatRegistration, "event created", "event_id", e.ID, "organizer_id", e.OrganizerID, "capacity", e.Capacity)
	v := view(*e, 0)
	return &v, nil
}

// Paging bounds for ListEvents.
const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// ListEvents returns one page of events with their derived counters.
// A zero Limit means DefaultListLimit; UpcomingOnly compares against now.
func (s *EventService) ListEvents(ctx context.Context, f model.EventFilter) ([]model.EventView, error) {
	if f.Skip < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", ErrInvalidInput)
	}
	switch {
	case f.Limit == 0:
		f.Limit = DefaultListLimit
	case f.Limit < 0 || f.Limit > MaxListLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxListLimit)
	}
	if f.UpcomingOnly {
		f.StartsAfter = s.now()
	}

	events, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	waitlisted, err := s.store.ListAttendees(ctx, model.AttendeeFilter{Status: model.StatusWaitlisted})
	if err != nil {
		return nil, fmt.Errorf("list waitlists: %w", err)
	}

	lengths := make(map[string]int)
	for _, a := range waitlisted {
		lengths[a.EventID]++
	}
	out := make([]model.EventView, len(events))
	for i, e := range events {
		out[i] = view(e, lengths[e.ID])
	}
	return out, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (*model.EventView, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	waitlisted, err := s.store.ListAttendees(ctx, model.AttendeeFilter{EventID: eventID, Status: model.StatusWaitlisted})
	if err != nil {
		return nil, fmt.Errorf("get waitlist: %w", err)
	}
	v := view(*e, len(waitlisted))
	return &v, nil
}

// Resize changes the event's capacity. Growing promotes waitlisted attendees
// into the new seats in waitlist order; shrinking below the confirmed count
// fails with registration.ErrCapacityBelowConfirmed.
func (s *EventService) Resize(ctx context.Context, id auth.Identity, eventID string, capacity int) (*model.EventView, error) {
	ctx, span := tracer.Start(ctx, "event.Resize", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.Int("event.capacity", capacity),
	))
	defer span.End()

	if err := validateCapacity(capacity); err != nil {
		return nil, fail(span, "resize", err)
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fail(span, "resize", err)
	}
	if !canManage(id, e) {
		return nil, fail(span, "resize", fmt.Errorf("%w: only the event organizer can change capacity", registration.ErrForbidden))
	}

	var (
		promoted []model.Attendee
		result   model.EventView
	)
	err = s.store.Mutate(ctx, eventID, func(snap model.Snapshot) (model.Changeset, error) {
		g, err := registration.Load(snap, s.aggregateOptions()...)
		if err != nil {
			return model.Changeset{}, err
		}
		promoted, err = g.Resize(capacity)
		if err != nil {
			return model.Changeset{}, err
		}
		cs := g.Changeset()
		updated := g.Event()
		if cs.Event != nil {
			updated = *cs.Event
		}
		result = view(updated, len(g.WaitlistIDs()))
		return cs, nil
	})
	if err != nil {
		return nil, fail(span, "resize", err)
	}

	log.Info(log.CatRegistration, "event resized",
		"event_id", eventID, "capacity", capacity, "promoted", len(promoted))
	at := s.now()
	for _, p := range promoted {
		s.publisher.Publish(ctx, model.NewNotification(model.NotificationPromoted, p, at))
	}
	return &result, nil
}

// Update edits the event's name, description, location and start time.
// Capacity is changed only through Resize.
func (s *EventService) Update(ctx context.Context, id auth.Identity, eventID string, req model.UpdateEventRequest) (*model.EventView, error) {
	ctx, span := tracer.Start(ctx, "event.Update", trace.WithAttributes(
		attribute.String("event.id", eventID),
	))
	defer span.End()

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fail(span, "update", fmt.Errorf("%w: event name is required", ErrInvalidInput))
		}
		req.Name = &name
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fail(span, "update", err)
	}
	if !canManage(id, e) {
		return nil, fail(span, "update", fmt.Errorf("%w: only the event organizer can edit the event", registration.ErrForbidden))
	}

	var result model.EventView
	// The changeset rewrites the whole event row, counters included.
	err = s.store.Mutate(ctx, eventID, func(snap model.Snapshot) (model.Changeset, error) {
		g, err := registration.Load(snap, s.aggregateOptions()...)
		if err != nil {
			return model.Changeset{}, err
		}
		cur := g.Event()
		name, description, location, startsAt := cur.Name, cur.Description, cur.Location, cur.StartsAt
		if req.Name != nil {
			name = *req.Name
		}
		if req.Description != nil {
			description = strings.TrimSpace(*req.Description)
		}
		if req.Location != nil {
			location = strings.TrimSpace(*req.Location)
		}
		if req.StartsAt != nil {
			startsAt = req.StartsAt
		}
		g.Describe(name, description, location, startsAt)

		cs := g.Changeset()
		updated := g.Event()
		if cs.Event != nil {
			updated = *cs.Event
		}
		result = view(updated, len(g.WaitlistIDs()))
		return cs, nil
	})
	if err != nil {
		return nil, fail(span, "update", err)
	}

	log.Info(log.CatRegistration, "event updated", "event_id", eventID, "user_id", id.UserID)
	return &result, nil
}

func (s *EventService) mintID() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

func validateCapacity(capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: capacity must be a positive integer", ErrInvalidInput)
	}
	if capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity cannot exceed 100,000", ErrInvalidInput)
	}
	return nil
}
