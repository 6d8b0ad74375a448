package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/registration"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/repository"
)

// RegistrationService runs register, cancel and check-in against a single
// event at a time.
type RegistrationService struct {
	deps
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(store Store, pub notify.Publisher, opts ...Option) *RegistrationService {
	return &RegistrationService{deps: newDeps(store, pub, opts)}
}

// Register admits the caller to the event, or waitlists them when the event
// is full. A caller with an active registration gets
// registration.ErrAlreadyRegistered.
func (s *RegistrationService) Register(ctx context.Context, id auth.Identity, eventID string) (*model.Attendee, error) {
	ctx, span := tracer.Start(ctx, "registration.Register", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("user.id", id.UserID),
	))
	defer span.End()

	if eventID == "" {
		return nil, fail(span, "register", fmt.Errorf("%w: event id is required", ErrInvalidInput))
	}

	var created model.Attendee
	err := s.store.Mutate(ctx, eventID, func(snap model.Snapshot) (model.Changeset, error) {
		g, err := registration.Load(snap, s.aggregateOptions()...)
		if err != nil {
			return model.Changeset{}, err
		}
		created, err = g.Register(id.UserID)
		if err != nil {
			return model.Changeset{}, err
		}
		return g.Changeset(), nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// The store's uniqueness rule caught what the snapshot could not.
		err = fmt.Errorf("%w: %v", registration.ErrAlreadyRegistered, err)
	}
	if err != nil {
		return nil, fail(span, "register", err)
	}

	typ := model.NotificationRegistered
	if created.Status == model.StatusWaitlisted {
		typ = model.NotificationWaitlisted
	}
	span.SetAttributes(attribute.String("attendee.status", string(created.Status)))
	log.Info(log.CatRegistration, "registration accepted",
		"event_id", eventID, "user_id", id.UserID, "attendee_id", created.ID,
		"status", string(created.Status), "position", created.Position())

	s.publisher.Publish(ctx, model.NewNotification(typ, created, s.now()))
	return &created, nil
}

// Cancel cancels an attendee on behalf of the attendee themself, the event's
// organizer or an admin. Cancelling a confirmed seat promotes the waitlist
// head; the promoted notification is published before the cancelled one.
func (s *RegistrationService) Cancel(ctx context.Context, id auth.Identity, attendeeID string) (*model.Attendee, error) {
	ctx, span := tracer.Start(ctx, "registration.Cancel", trace.WithAttributes(
		attribute.String("attendee.id", attendeeID),
		attribute.String("user.id", id.UserID),
	))
	defer span.End()

	a, e, err := s.load(ctx, attendeeID)
	if err != nil {
		return nil, fail(span, "cancel", err)
	}
	if a.UserID != id.UserID && !canManage(id, e) {
		return nil, fail(span, "cancel", fmt.Errorf("%w: cannot cancel another user's registration", registration.ErrForbidden))
	}

	var res registration.CancelResult
	err = s.store.Mutate(ctx, a.EventID, func(snap model.Snapshot) (model.Changeset, error) {
		g, err := registration.Load(snap, s.aggregateOptions()...)
		if err != nil {
			return model.Changeset{}, err
		}
		res, err = g.Cancel(attendeeID)
		if err != nil {
			return model.Changeset{}, err
		}
		return g.Changeset(), nil
	})
	if err != nil {
		return nil, fail(span, "cancel", err)
	}

	fields := []any{"event_id", a.EventID, "attendee_id", attendeeID,
		"prior_status", string(res.PriorStatus), "by", id.UserID}
	if res.Promoted != nil {
		fields = append(fields, "promoted_attendee_id", res.Promoted.ID)
	}
	log.Info(log.CatRegistration, "registration cancelled", fields...)

	at := s.now()
	if res.Promoted != nil {
		s.publisher.Publish(ctx, model.NewNotification(model.NotificationPromoted, *res.Promoted, at))
	}
	s.publisher.Publish(ctx, model.NewNotification(model.NotificationCancelled, res.Cancelled, at))
	return &res.Cancelled, nil
}

// CheckIn marks a registered attendee as present. Only the event's organizer
// or an admin may check attendees in.
func (s *RegistrationService) CheckIn(ctx context.Context, id auth.Identity, attendeeID string) (*model.Attendee, error) {
	ctx, span := tracer.Start(ctx, "registration.CheckIn", trace.WithAttributes(
		attribute.String("attendee.id", attendeeID),
		attribute.String("user.id", id.UserID),
	))
	defer span.End()

	a, e, err := s.load(ctx, attendeeID)
	if err != nil {
		return nil, fail(span, "check_in", err)
	}
	if !canManage(id, e) {
		return nil, fail(span, "check_in", fmt.Errorf("%w: only the event organizer can check attendees in", registration.ErrForbidden))
	}

	var checkedIn model.Attendee
	err = s.store.Mutate(ctx, a.EventID, func(snap model.Snapshot) (model.Changeset, error) {
		g, err := registration.Load(snap, s.aggregateOptions()...)
		if err != nil {
			return model.Changeset{}, err
		}
		checkedIn, err = g.CheckIn(attendeeID)
		if err != nil {
			return model.Changeset{}, err
		}
		return g.Changeset(), nil
	})
	if err != nil {
		return nil, fail(span, "check_in", err)
	}

	log.Info(log.CatRegistration, "attendee checked in",
		"event_id", a.EventID, "attendee_id", attendeeID, "by", id.UserID)
	s.publisher.Publish(ctx, model.NewNotification(model.NotificationCheckedIn, checkedIn, s.now()))
	return &checkedIn, nil
}

// GetAttendee returns one attendee to the attendee themself, the event's
// organizer or an admin.
func (s *RegistrationService) GetAttendee(ctx context.Context, id auth.Identity, attendeeID string) (*model.Attendee, error) {
	a, e, err := s.load(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.UserID != id.UserID && !canManage(id, e) {
		return nil, fmt.Errorf("%w: attendee belongs to another user", registration.ErrForbidden)
	}
	return a, nil
}

// ListEventAttendees lists an event's attendees, optionally by status.
func (s *RegistrationService) ListEventAttendees(ctx context.Context, id auth.Identity, eventID string, status model.Status) ([]model.Attendee, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !canManage(id, e) {
		return nil, fmt.Errorf("%w: only the event organizer can list attendees", registration.ErrForbidden)
	}
	attendees, err := s.store.ListAttendees(ctx, model.AttendeeFilter{EventID: eventID, Status: status})
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}

// ListMyRegistrations returns every registration the caller has made,
// including cancelled ones.
func (s *RegistrationService) ListMyRegistrations(ctx context.Context, id auth.Identity) ([]model.Attendee, error) {
	attendees, err := s.store.ListAttendees(ctx, model.AttendeeFilter{UserID: id.UserID})
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return attendees, nil
}

// load fetches an attendee and the event it belongs to. Neither field used
// for authorization (attendee user, event organizer) ever changes, so the
// check may run before the event lock is taken.
func (s *RegistrationService) load(ctx context.Context, attendeeID string) (*model.Attendee, *model.Event, error) {
	if attendeeID == "" {
		return nil, nil, fmt.Errorf("%w: attendee id is required", ErrInvalidInput)
	}
	a, err := s.store.GetAttendee(ctx, attendeeID)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.store.GetEvent(ctx, a.EventID)
	if err != nil {
		return nil, nil, err
	}
	return a, e, nil
}
