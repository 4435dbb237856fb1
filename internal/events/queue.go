package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by PopTimeout and PopUntil when the deadline is reached
// before an event could be delivered.
var ErrTimeout = errors.New("timeout waiting for event")

// ErrClosed is returned by pops on a queue closed without a specific error.
var ErrClosed = errors.New("event queue closed")

// Queue is an unbounded FIFO of events with many producers and a single consumer.
//
// Push never blocks. Pop blocks the consumer until an event is available. Events
// are delivered in push order regardless of which producer pushed them.
type Queue struct {
	mu    sync.Mutex
	items []Event

	// ready holds at most one wakeup for the consumer.
	ready chan struct{}

	done     chan struct{}
	closeErr error
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Close marks the producer side as gone. Events already queued are still
// delivered; after that every pop returns err. Only the first Close counts.
func (q *Queue) Close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.done:
		return
	default:
	}
	if err == nil {
		err = ErrClosed
	}
	q.closeErr = err
	close(q.done)
}

// Push appends an event. Safe for concurrent use.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len reports the number of events waiting to be popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop blocks until an event is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	return q.pop(ctx, time.Time{})
}

// PopTimeout blocks for at most d.
func (q *Queue) PopTimeout(ctx context.Context, d time.Duration) (Event, error) {
	return q.pop(ctx, time.Now().Add(d))
}

// PopUntil blocks until deadline. Once the deadline is reached the wait counts as
// timed out, even if an event was queued at that same instant.
func (q *Queue) PopUntil(ctx context.Context, deadline time.Time) (Event, error) {
	if deadline.IsZero() {
		return Event{}, ErrTimeout
	}
	return q.pop(ctx, deadline)
}

func (q *Queue) pop(ctx context.Context, deadline time.Time) (Event, error) {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return Event{}, ErrTimeout
		}
		if ev, ok := q.take(); ok {
			return ev, nil
		}
		if err := q.closed(); err != nil {
			return Event{}, err
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-expired:
			return Event{}, ErrTimeout
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

func (q *Queue) closed() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.done:
		return q.closeErr
	default:
		return nil
	}
}

func (q *Queue) take() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	return ev, true
}
