// Package repository implements persistence for events and attendees.
// PostgresStore uses pgx directly (no ORM); MemoryStore keeps everything in
// process. Both serialize mutations per event and never across events.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrStorageUnavailable is a retryable failure: the event lock could not be
// taken in time or the database could not be reached.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrDuplicate is returned when a write violates a uniqueness rule, such as a
// second active registration for the same user and event.
var ErrDuplicate = errors.New("duplicate record")

// errTicketCollision reports that a minted ticket number is already taken.
// Mutate retries with fresh ticket numbers, so callers never see it.
var errTicketCollision = errors.New("ticket number collision")

// constraintTicketNumber is the unique index on attendees.ticket_number.
// Every other unique violation is reported as ErrDuplicate.
const constraintTicketNumber = "attendees_ticket_number_key"

// maxTicketAttempts bounds how often a mutation is rerun after a ticket
// number collision before giving up with ErrStorageUnavailable.
const maxTicketAttempts = 3

// MutateFunc receives the locked snapshot of one event and returns the
// changes to persist. Returning an error persists nothing.
type MutateFunc func(model.Snapshot) (model.Changeset, error)

// DefaultLockTimeout bounds how long Mutate waits for an event lock.
const DefaultLockTimeout = 2 * time.Second

// PostgresStore is the PostgreSQL implementation of the store.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

const eventColumns = `id, name, description, location, starts_at, organizer_id,
	capacity, confirmed_count, waitlist_seq, created_at, updated_at`

const attendeeColumns = `id, event_id, user_id, status, ticket_number, waitlist_position,
	waitlist_seq, registered_at, promoted_at, checked_in_at, cancelled_at, updated_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &e.OrganizerID,
		&e.Capacity, &e.ConfirmedCount, &e.WaitlistSeq, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func scanAttendee(row pgx.Row) (model.Attendee, error) {
	var (
		a      model.Attendee
		status string
		ticket *string
	)
	err := row.Scan(&a.ID, &a.EventID, &a.UserID, &status, &ticket, &a.WaitlistPosition,
		&a.WaitlistSeq, &a.RegisteredAt, &a.PromotedAt, &a.CheckedInAt, &a.CancelledAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.Status = model.Status(status)
	if ticket != nil {
		a.TicketNumber = *ticket
	}
	return a, nil
}

// CreateEvent inserts a new event.
func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Name, e.Description, e.Location, e.StartsAt, e.OrganizerID,
		e.Capacity, e.ConfirmedCount, e.WaitlistSeq, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// ListEvents returns the events matching f ordered by creation time
// descending.
func (s *PostgresStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if f.UpcomingOnly {
		args = append(args, f.StartsAfter)
		query += ` WHERE starts_at >= $1`
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if f.Skip > 0 {
		args = append(args, f.Skip)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, classify(rows.Err())
}

// GetEvent returns a single event or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(fmt.Errorf("get event: %w", err))
	}
	return &e, nil
}

// GetAttendee returns a single attendee or ErrNotFound.
func (s *PostgresStore) GetAttendee(ctx context.Context, id string) (*model.Attendee, error) {
	a, err := scanAttendee(s.db.QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(fmt.Errorf("get attendee: %w", err))
	}
	return &a, nil
}

// ListAttendees returns attendees matching the filter in registration order.
func (s *PostgresStore) ListAttendees(ctx context.Context, f model.AttendeeFilter) ([]model.Attendee, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.EventID != "" {
		add("event_id = $%d", f.EventID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + attendeeColumns + ` FROM attendees`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY registered_at ASC, waitlist_seq ASC, id ASC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list attendees: %w", err))
	}
	defer rows.Close()

	var out []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, classify(rows.Err())
}

// Mutate runs fn against the event's snapshot inside a transaction that
// holds the event row lock.
//
// SELECT ... FOR UPDATE serialises every register/cancel/check-in on the
// same event: a second transaction blocks on the row until the first
// commits or rolls back, so two requests can never both observe the last
// free seat. Other events' rows are untouched, so distinct events proceed in
// parallel. lock_timeout turns an unbounded wait into ErrStorageUnavailable.
// A ticket number collision rolls back and reruns fn with fresh tickets.
func (s *PostgresStore) Mutate(ctx context.Context, eventID string, fn MutateFunc) error {
	return retryTicketCollision(func() error {
		return s.mutateOnce(ctx, eventID, fn)
	})
}

// txTimeouts returns the lock_timeout and statement_timeout, in whole
// milliseconds, for one Mutate transaction. Both are at least 1ms: 0 would
// disable the timeout in PostgreSQL. The statement timeout leaves room for
// the lock wait plus the statement itself.
func txTimeouts(lock time.Duration) (lockMS, statementMS int64) {
	lockMS = max(lock.Milliseconds(), 1)
	return lockMS, 2 * lockMS
}

func (s *PostgresStore) mutateOnce(ctx context.Context, eventID string, fn MutateFunc) (err error) {
	beginCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	tx, err := s.db.Begin(beginCtx)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	lockMS, statementMS := txTimeouts(s.lockTimeout)
	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockMS)); err != nil {
		return classify(fmt.Errorf("set lock timeout: %w", err))
	}
	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", statementMS)); err != nil {
		return classify(fmt.Errorf("set statement timeout: %w", err))
	}

	// ── Step 1: lock the event row. ─────────────────────────────────────────
	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return classify(fmt.Errorf("lock event row: %w", err))
	}

	// ── Step 2: load the active attendees under the lock. ──────────────────
	rows, err := tx.Query(ctx,
		`SELECT `+attendeeColumns+`
		 FROM attendees
		 WHERE event_id = $1 AND status <> 'cancelled'
		 ORDER BY registered_at ASC, waitlist_seq ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return classify(fmt.Errorf("load attendees: %w", err))
	}
	snap := model.Snapshot{Event: event}
	for rows.Next() {
		a, scanErr := scanAttendee(rows)
		if scanErr != nil {
			rows.Close()
			err = fmt.Errorf("scan attendee: %w", scanErr)
			return err
		}
		snap.Attendees = append(snap.Attendees, a)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return classify(fmt.Errorf("load attendees: %w", err))
	}

	// ── Step 3: apply the domain rules. ────────────────────────────────────
	cs, err := fn(snap)
	if err != nil {
		return err
	}
	if cs.Empty() {
		return tx.Commit(ctx)
	}

	// ── Step 4: persist the changeset in one round trip. ───────────────────
	if err = s.writeChangeset(ctx, tx, eventID, cs); err != nil {
		return err
	}

	// ── Step 5: commit; only now do other transactions see the change. ─────
	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *PostgresStore) writeChangeset(ctx context.Context, tx pgx.Tx, eventID string, cs model.Changeset) error {
	batch := &pgx.Batch{}

	if cs.Event != nil {
		batch.Queue(
			`UPDATE events
			 SET capacity = $2, confirmed_count = $3, waitlist_seq = $4, updated_at = $5,
			     name = $6, description = $7, location = $8, starts_at = $9
			 WHERE id = $1`,
			eventID, cs.Event.Capacity, cs.Event.ConfirmedCount, cs.Event.WaitlistSeq, cs.Event.UpdatedAt,
			cs.Event.Name, cs.Event.Description, cs.Event.Location, cs.Event.StartsAt,
		)
	}
	for _, a := range cs.Update {
		batch.Queue(
			`UPDATE attendees
			 SET status = $3, ticket_number = $4, waitlist_position = $5, promoted_at = $6,
			     checked_in_at = $7, cancelled_at = $8, updated_at = $9
			 WHERE id = $1 AND event_id = $2`,
			a.ID, eventID, string(a.Status), nullable(a.TicketNumber), a.WaitlistPosition, a.PromotedAt,
			a.CheckedInAt, a.CancelledAt, a.UpdatedAt,
		)
	}
	for _, a := range cs.Insert {
		batch.Queue(
			`INSERT INTO attendees (`+attendeeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			a.ID, eventID, a.UserID, string(a.Status), nullable(a.TicketNumber), a.WaitlistPosition,
			a.WaitlistSeq, a.RegisteredAt, a.PromotedAt, a.CheckedInAt, a.CancelledAt, a.UpdatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return classify(fmt.Errorf("write changeset: %w", err))
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return fmt.Errorf("write changeset statement %d: %w", i, ErrNotFound)
		}
	}
	if err := br.Close(); err != nil {
		return classify(fmt.Errorf("close batch: %w", err))
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// classify maps driver failures onto the store's sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == constraintTicketNumber {
				return fmt.Errorf("%w: %v", errTicketCollision, err)
			}
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		case "55P03", // lock_not_available
			"40001", // serialization_failure
			"40P01", // deadlock_detected
			"57014", // query_canceled
			"53300", // too_many_connections
			"57P01": // admin_shutdown
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}
