// Package notify delivers registration notifications after the change that
// caused them has been committed. Delivery is best effort: a full queue
// drops the notification and logs it, and never fails the operation.
package notify

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// Publisher accepts notifications. Implementations must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, model.Notification) {}

// DefaultQueueSize is used when NewDispatcher is given a non-positive size.
const DefaultQueueSize = 256

// Dispatcher queues notifications and forwards them to a Broker from a
// single worker goroutine, so subscribers observe publish order.
type Dispatcher struct {
	queue  chan model.Notification
	broker *Broker[model.Notification]

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts a dispatcher with a queue of the given size.
func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	d := &Dispatcher{
		queue: make(chan model.Notification, size),
		broker: NewBroker(size, func(n model.Notification) {
			log.Warn(log.CatNotify, "subscriber full, notification dropped",
				"type", string(n.Type), "event_id", n.EventID, "attendee_id", n.AttendeeID)
		}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.broker.Publish(n)
	}
}

// Publish enqueues n. It never blocks: when the queue is full or the
// dispatcher is closed the notification is dropped and logged.
func (d *Dispatcher) Publish(_ context.Context, n model.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Warn(log.CatNotify, "dispatcher closed, notification dropped",
			"type", string(n.Type), "attendee_id", n.AttendeeID)
		return
	}
	select {
	case d.queue <- n:
	default:
		log.Warn(log.CatNotify, "queue full, notification dropped",
			"type", string(n.Type), "event_id", n.EventID, "attendee_id", n.AttendeeID)
	}
}

// Subscribe returns a channel receiving every notification published after
// the call. It closes when ctx ends or the dispatcher is closed.
func (d *Dispatcher) Subscribe(ctx context.Context) <-chan model.Notification {
	return d.broker.Subscribe(ctx)
}

// Close stops accepting notifications, delivers what is already queued and
// closes all subscriptions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.broker.Close()
}
