// Package service implements business logic, validation, authorization and
// orchestration between HTTP handlers, the registration aggregate and the
// store.
//
// Every write to an event goes through Store.Mutate, which serializes it
// against all other writes to the same event. Notifications are published
// only after Mutate returns without error, and outside the event lock.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/registration"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/tracing"
)

// ErrInvalidInput wraps every request validation failure.
var ErrInvalidInput = errors.New("invalid input")

// MaxCapacity is the largest capacity an event may have.
const MaxCapacity = 100_000

// Store is the persistence collaborator. Both repository.PostgresStore and
// repository.MemoryStore satisfy it.
type Store interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	GetAttendee(ctx context.Context, id string) (*model.Attendee, error)
	ListAttendees(ctx context.Context, f model.AttendeeFilter) ([]model.Attendee, error)
	Mutate(ctx context.Context, eventID string, fn repository.MutateFunc) error
}

var (
	_ Store = (*repository.PostgresStore)(nil)
	_ Store = (*repository.MemoryStore)(nil)
)

var tracer = otel.Tracer(tracing.InstrumentationName)

// Option customizes a service.
type Option func(*deps)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// WithIDGenerator overrides how event and attendee ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(d *deps) { d.newID = newID }
}

type deps struct {
	store     Store
	publisher notify.Publisher
	now       func() time.Time
	newID     func() string
}

func newDeps(store Store, pub notify.Publisher, opts []Option) deps {
	if pub == nil {
		pub = notify.Discard{}
	}
	d := deps{store: store, publisher: pub, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d deps) aggregateOptions() []registration.Option {
	opts := []registration.Option{registration.WithClock(d.now)}
	if d.newID != nil {
		opts = append(opts, registration.WithIDGenerator(d.newID))
	}
	return opts
}

// canManage reports whether id may administer e: an admin, or the organizer
// who owns it.
func canManage(id auth.Identity, e *model.Event) bool {
	if id.IsAdmin() {
		return true
	}
	return id.Role == auth.RoleOrganizer && e.OrganizerID == id.UserID
}

// fail records err on span and raises an alert for invariant violations.
func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch {
	case errors.Is(err, registration.ErrInvariantViolation):
		log.ErrorErr(log.CatRegistration, "invariant violation, operation aborted", err,
			"op", op, "alert", true)
	case errors.Is(err, repository.ErrStorageUnavailable):
		log.Warn(log.CatRegistration, "storage unavailable", "op", op, "error", err)
	}
	return err
}

// view builds the read projection for e given its waitlist length.
func view(e model.Event, waitlistLength int) model.EventView {
	return model.EventView{
		Event:          e,
		AvailableSpots: e.Remaining(),
		WaitlistLength: waitlistLength,
		IsFull:         e.IsFull(),
	}
}
