// Package registration holds the per-event registration rules: the capacity
// ledger, the attendee state machine and the FIFO waitlist, composed by
// Aggregate. Nothing in this package is safe for concurrent use; callers
// serialize access per event through the store's Mutate scope.
package registration

import "errors"

var (
	// ErrAlreadyRegistered is returned when the user already holds an active
	// registration (registered, waitlisted or checked in) for the event.
	ErrAlreadyRegistered = errors.New("user already registered for this event")

	// ErrAtCapacity is internal: a full event turns a registration into a
	// waitlist entry and never surfaces this to callers.
	ErrAtCapacity = errors.New("event is at capacity")

	// ErrForbidden is returned when the acting user may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned for a state change the state machine rejects.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvariantViolation signals ledger/waitlist desynchronization. It is a
	// bug signal: the operation is aborted and nothing is persisted.
	ErrInvariantViolation = errors.New("registration invariant violated")

	// ErrCapacityBelowConfirmed is returned when a resize would drop the
	// capacity under the number of confirmed attendees.
	ErrCapacityBelowConfirmed = errors.New("capacity below confirmed attendee count")

	// ErrInvalidCapacity is returned for a non-positive capacity.
	ErrInvalidCapacity = errors.New("capacity must be a positive integer")
)
