package notify

import (
	"context"
	"sync"
)

const defaultBufferSize = 64

// Broker fans a published value out to every subscriber.
// A slow subscriber loses values rather than blocking the publisher.
type Broker[T any] struct {
	subs       map[chan T]struct{}
	mu         sync.RWMutex
	done       chan struct{}
	bufferSize int
	dropped    func(T)
}

// NewBroker creates a broker whose subscriber channels hold size values.
// onDrop, if non-nil, is called for every value a full subscriber missed.
func NewBroker[T any](size int, onDrop func(T)) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[chan T]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
		dropped:    onDrop,
	}
}

// Subscribe creates a new subscription channel.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan T)
		close(ch)
		return ch
	default:
	}

	sub := make(chan T, b.bufferSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()

		select {
		case <-b.done:
			return
		default:
		}
		delete(b.subs, sub)
		close(sub)
	}()

	return sub
}

// Publish sends v to all subscribers without blocking.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	for sub := range b.subs {
		select {
		case sub <- v:
		default:
			if b.dropped != nil {
				b.dropped(v)
			}
		}
	}
}

// Close shuts down the broker and all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	close(b.done)
	for sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
