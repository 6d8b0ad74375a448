package registration

import "fmt"

// Ledger tracks how many seats of an event are confirmed.
type Ledger struct {
	capacity  int
	confirmed int
}

// NewLedger restores a ledger from persisted counters.
func NewLedger(capacity, confirmed int) (*Ledger, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvariantViolation, capacity)
	}
	if confirmed < 0 || confirmed > capacity {
		return nil, fmt.Errorf("%w: confirmed %d outside 0..%d", ErrInvariantViolation, confirmed, capacity)
	}
	return &Ledger{capacity: capacity, confirmed: confirmed}, nil
}

// TryAdmit reserves one seat, or returns ErrAtCapacity without side effects.
func (l *Ledger) TryAdmit() error {
	if l.confirmed >= l.capacity {
		return ErrAtCapacity
	}
	l.confirmed++
	return nil
}

// Release gives one seat back.
func (l *Ledger) Release() error {
	if l.confirmed == 0 {
		return fmt.Errorf("%w: release with zero confirmed", ErrInvariantViolation)
	}
	l.confirmed--
	return nil
}

// Resize changes the capacity. It never evicts confirmed attendees.
func (l *Ledger) Resize(capacity int) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	if capacity < l.confirmed {
		return fmt.Errorf("%w: %d < %d", ErrCapacityBelowConfirmed, capacity, l.confirmed)
	}
	l.capacity = capacity
	return nil
}

func (l *Ledger) Capacity() int  { return l.capacity }
func (l *Ledger) Confirmed() int { return l.confirmed }

// Available returns the number of free seats.
func (l *Ledger) Available() int { return l.capacity - l.confirmed }
