// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"
	"sync"
)

// QueueExistsError reports an attempt to register a second queue for a
// task that already has one.
type QueueExistsError struct {
	TaskID string
}

// Error returns the error message.
func (e QueueExistsError) Error() string {
	return fmt.Sprintf("event queue already exists for task %s", e.TaskID)
}

// NoQueueError reports an operation on a task that has no live queue.
type NoQueueError struct {
	TaskID string
}

// Error returns the error message.
func (e NoQueueError) Error() string {
	return fmt.Sprintf("no event queue for task %s", e.TaskID)
}

// Broker maps task IDs to their event queues. At most one queue exists
// per task at a time; additional subscribers attach via Tap.
type Broker struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	maxSize int
}

// NewBroker creates a new Broker. maxSize bounds each queue's buffer;
// 0 selects DefaultMaxQueueSize.
func NewBroker(maxSize int) *Broker {
	if maxSize <= 0 {
		maxSize = DefaultMaxQueueSize
	}
	return &Broker{
		queues:  make(map[string]*Queue),
		maxSize: maxSize,
	}
}

// Create registers a new queue for the given task ID.
// Returns QueueExistsError if the task already has a live queue.
func (b *Broker) Create(taskID string) (*Queue, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.queues[taskID]; exists {
		return nil, QueueExistsError{TaskID: taskID}
	}

	queue, err := NewQueue(b.maxSize)
	if err != nil {
		return nil, err
	}

	b.queues[taskID] = queue
	return queue, nil
}

// Get retrieves the live queue for the given task ID, or nil if none
// exists.
func (b *Broker) Get(taskID string) *Queue {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queues[taskID]
}

// Tap attaches a new subscriber to the task's live queue.
// Returns NoQueueError if the task has no live queue.
func (b *Broker) Tap(taskID string) (*Queue, error) {
	b.mu.RLock()
	queue := b.queues[taskID]
	b.mu.RUnlock()

	if queue == nil {
		return nil, NoQueueError{TaskID: taskID}
	}
	return queue.Tap()
}

// Active reports whether the task has a live queue.
func (b *Broker) Active(taskID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.queues[taskID]
	return exists
}

// Close closes and removes the queue for the given task ID.
// Returns NoQueueError if the task has no live queue.
func (b *Broker) Close(taskID string) error {
	b.mu.Lock()
	queue := b.queues[taskID]
	delete(b.queues, taskID)
	b.mu.Unlock()

	if queue == nil {
		return NoQueueError{TaskID: taskID}
	}
	return queue.Close()
}

// Count returns the number of live queues.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queues)
}

// CloseAll closes and removes every live queue.
func (b *Broker) CloseAll() error {
	b.mu.Lock()
	queues := b.queues
	b.queues = make(map[string]*Queue)
	b.mu.Unlock()

	for _, queue := range queues {
		_ = queue.Close()
	}
	return nil
}
