// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"
	"time"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

// Valid task states.
const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known task state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// TaskStatus captures the state of a task at a point in time, with an
// optional agent message accompanying the transition.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitzero"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate ensures the TaskStatus is valid.
func (ts TaskStatus) Validate() error {
	if !ts.State.Valid() {
		return fmt.Errorf("unknown task state: %q", ts.State)
	}
	if ts.Message != nil {
		if err := ts.Message.Validate(); err != nil {
			return fmt.Errorf("status message is invalid: %w", err)
		}
	}
	return nil
}

// Task is one unit of work identified by a caller-assigned id, tracked
// through a status lifecycle. SessionID groups the conversation history
// shared across tasks and is immutable after first assignment.
type Task struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Status    TaskStatus  `json:"status"`
	History   []*Message  `json:"history,omitzero"`
	Artifacts []*Artifact `json:"artifacts,omitzero"`
}

// Validate ensures the Task is valid.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if t.SessionID == "" {
		return fmt.Errorf("task session ID cannot be empty")
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("task status is invalid: %w", err)
	}
	for i, message := range t.History {
		if message == nil {
			return fmt.Errorf("history message at index %d cannot be nil", i)
		}
		if err := message.Validate(); err != nil {
			return fmt.Errorf("history message at index %d is invalid: %w", i, err)
		}
	}
	for i, artifact := range t.Artifacts {
		if artifact == nil {
			return fmt.Errorf("artifact at index %d cannot be nil", i)
		}
		if err := artifact.Validate(); err != nil {
			return fmt.Errorf("artifact at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// SendTaskParams are the parameters for tasks/send and tasks/sendSubscribe.
type SendTaskParams struct {
	ID               string                  `json:"id"`
	SessionID        string                  `json:"sessionId,omitzero"`
	Message          *Message                `json:"message"`
	HistoryLength    int                     `json:"historyLength,omitzero"`
	PushNotification *PushNotificationConfig `json:"pushNotification,omitzero"`
}

// Validate ensures the SendTaskParams are valid.
func (p SendTaskParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if p.Message == nil || len(p.Message.Parts) == 0 {
		return fmt.Errorf("message is empty or invalid")
	}
	if err := p.Message.Validate(); err != nil {
		return fmt.Errorf("message is invalid: %w", err)
	}
	if p.PushNotification != nil {
		if err := p.PushNotification.Validate(); err != nil {
			return fmt.Errorf("push notification config is invalid: %w", err)
		}
	}
	return nil
}

// TaskQueryParams are the parameters for tasks/get.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength int    `json:"historyLength,omitzero"`
}

// Validate ensures the TaskQueryParams are valid.
func (p TaskQueryParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	return nil
}

// TaskIDParams identify a task by id for tasks/cancel, tasks/resubscribe
// and tasks/pushNotification/get.
type TaskIDParams struct {
	ID string `json:"id"`
}

// Validate ensures the TaskIDParams are valid.
func (p TaskIDParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	return nil
}

// PushNotificationConfig describes the webhook a server should notify
// when a task's status changes.
type PushNotificationConfig struct {
	URL   string `json:"url"`
	Token string `json:"token,omitzero"`
}

// Validate ensures the PushNotificationConfig is valid.
func (c PushNotificationConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("push notification URL cannot be empty")
	}
	return nil
}

// TaskPushNotificationConfig pairs a task id with its webhook config, as
// carried by tasks/pushNotification/set and returned by .../get.
type TaskPushNotificationConfig struct {
	ID     string                  `json:"id"`
	Config *PushNotificationConfig `json:"pushNotificationConfig"`
}

// Validate ensures the TaskPushNotificationConfig is valid.
func (c TaskPushNotificationConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if c.Config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	return c.Config.Validate()
}

// TaskEvent is implemented by the streaming update events delivered to
// subscribers of a task.
type TaskEvent interface {
	// GetTaskID returns the task ID this event is for.
	GetTaskID() string

	// IsFinal reports whether this event terminates the stream.
	IsFinal() bool

	// Validate ensures the event is in a valid state.
	Validate() error
}

// TaskStatusUpdateEvent signals a task status change to stream
// subscribers. Final marks the unambiguous end of the stream.
type TaskStatusUpdateEvent struct {
	ID     string     `json:"id"`
	Status TaskStatus `json:"status"`
	Final  bool       `json:"final"`
}

var _ TaskEvent = (*TaskStatusUpdateEvent)(nil)

// GetTaskID returns the task ID this event is for.
func (e *TaskStatusUpdateEvent) GetTaskID() string { return e.ID }

// IsFinal reports whether this event terminates the stream.
func (e *TaskStatusUpdateEvent) IsFinal() bool { return e.Final }

// Validate ensures the TaskStatusUpdateEvent is valid.
func (e *TaskStatusUpdateEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("status update event task ID cannot be empty")
	}
	return e.Status.Validate()
}

// TaskArtifactUpdateEvent delivers one artifact increment to stream
// subscribers. Artifact update events never terminate the stream; the
// terminal event is always a TaskStatusUpdateEvent with Final set.
type TaskArtifactUpdateEvent struct {
	ID       string    `json:"id"`
	Artifact *Artifact `json:"artifact"`
}

var _ TaskEvent = (*TaskArtifactUpdateEvent)(nil)

// GetTaskID returns the task ID this event is for.
func (e *TaskArtifactUpdateEvent) GetTaskID() string { return e.ID }

// IsFinal reports whether this event terminates the stream.
func (e *TaskArtifactUpdateEvent) IsFinal() bool { return false }

// Validate ensures the TaskArtifactUpdateEvent is valid.
func (e *TaskArtifactUpdateEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("artifact update event task ID cannot be empty")
	}
	if e.Artifact == nil {
		return fmt.Errorf("artifact update event artifact cannot be nil")
	}
	return e.Artifact.Validate()
}
