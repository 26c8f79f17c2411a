// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides ordered, multicast event delivery for task
// streams. A Queue carries the events of one task; a Broker maps task
// IDs to their queues.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taskwire/taskwire"
)

// DefaultMaxQueueSize is the default per-subscriber event buffer size.
const DefaultMaxQueueSize = 1024

// Queue errors.
var (
	// ErrQueueClosed is returned when operating on a closed queue.
	ErrQueueClosed = errors.New("event queue is closed")
	// ErrQueueFull is returned when an enqueue would exceed the buffer.
	ErrQueueFull = errors.New("event queue is full")
	// ErrInvalidQueueSize is returned for a negative queue size.
	ErrInvalidQueueSize = errors.New("queue size cannot be negative")
)

// Queue is a bounded, ordered queue of task events with support for
// child queues that receive copies of all future events (the tap
// mechanism). Events are delivered to children synchronously in enqueue
// order, so every subscriber observes the same sequence.
type Queue struct {
	mu        sync.Mutex
	events    chan taskwire.TaskEvent
	maxSize   int
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
	children  []*Queue
}

// NewQueue creates a new event queue with the specified buffer size.
// If maxSize is 0, DefaultMaxQueueSize is used.
func NewQueue(maxSize int) (*Queue, error) {
	if maxSize < 0 {
		return nil, ErrInvalidQueueSize
	}
	if maxSize == 0 {
		maxSize = DefaultMaxQueueSize
	}

	return &Queue{
		events:  make(chan taskwire.TaskEvent, maxSize),
		maxSize: maxSize,
		done:    make(chan struct{}),
	}, nil
}

// Enqueue adds an event to the queue and propagates it to all child
// queues in order. Delivery to each child is independent: a full or
// closed child never blocks the producer or the other children, and a
// closed child is detached. Returns ErrQueueClosed after Close;
// ErrQueueFull is reported only when the queue has no children to
// deliver to and its own buffer is exhausted.
func (q *Queue) Enqueue(ctx context.Context, event taskwire.TaskEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Deliver to children under the lock so all subscribers observe the
	// same event order. A slow child drops events rather than stalling
	// the producer; a departed child is dropped from the fan-out.
	children := q.children[:0]
	for _, child := range q.children {
		if err := child.Enqueue(ctx, event); errors.Is(err, ErrQueueClosed) {
			continue
		}
		children = append(children, child)
	}
	q.children = children

	// The queue's own buffer serves direct dequeuers. With children
	// attached the fan-out above is the delivery path and buffer
	// overflow is not an error.
	select {
	case q.events <- event:
	default:
		if len(q.children) == 0 {
			return ErrQueueFull
		}
	}
	return nil
}

// Dequeue retrieves the next event, blocking until one is available,
// the context is canceled, or the queue is closed and drained. A closed
// queue keeps yielding buffered events before returning ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (taskwire.TaskEvent, error) {
	select {
	case event := <-q.events:
		return event, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event := <-q.events:
		return event, nil
	case <-q.done:
		select {
		case event := <-q.events:
			return event, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Tap creates a child queue that will receive all future events
// enqueued to this queue. Events already buffered are not replayed.
func (q *Queue) Tap() (*Queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	child, err := NewQueue(q.maxSize)
	if err != nil {
		return nil, err
	}

	q.children = append(q.children, child)
	return child, nil
}

// Close closes the queue and all its children. Buffered events remain
// dequeueable; further enqueues fail with ErrQueueClosed.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		q.closed = true
		close(q.done)

		for _, child := range q.children {
			_ = child.Close()
		}
	})
	return nil
}

// IsClosed reports whether the queue is closed.
func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Size returns the current number of buffered events.
func (q *Queue) Size() int {
	return len(q.events)
}

// Capacity returns the maximum buffer size of the queue.
func (q *Queue) Capacity() int {
	return q.maxSize
}
