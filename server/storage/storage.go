// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides persistence contracts and implementations for
// tasks, session histories and push notification configurations.
package storage

import (
	"context"
	"fmt"

	"github.com/taskwire/taskwire"
)

// TaskStorage defines the interface for task persistence operations.
// This interface abstracts the storage mechanism to allow different
// implementations (database, in-memory, etc.) while maintaining a
// consistent API for the task manager.
//
// Implementations must enforce terminal-state immutability: once a task
// reaches a terminal state, UpdateTaskStatus, AppendArtifact and
// AppendHistory return taskwire.InvalidTaskStateError.
type TaskStorage interface {
	// CreateTask persists a new task. It fails if a task with the same
	// ID already exists.
	CreateTask(ctx context.Context, task *taskwire.Task) error

	// GetTask retrieves a task by its ID.
	// Returns taskwire.TaskNotFoundError if the task doesn't exist.
	GetTask(ctx context.Context, taskID string) (*taskwire.Task, error)

	// UpdateTaskStatus replaces the task's status. When the status
	// carries a message, the message is appended to the task history.
	// Returns the updated task.
	UpdateTaskStatus(ctx context.Context, taskID string, status taskwire.TaskStatus) (*taskwire.Task, error)

	// AppendArtifact folds an artifact into the task's artifact list,
	// honoring the append-at-index contract. Returns the updated task.
	AppendArtifact(ctx context.Context, taskID string, artifact *taskwire.Artifact) (*taskwire.Task, error)

	// AppendHistory appends a message to the task's history without
	// changing its status.
	AppendHistory(ctx context.Context, taskID string, message *taskwire.Message) (*taskwire.Task, error)

	// Initialize prepares the storage backend for use.
	Initialize(ctx context.Context) error

	// Close cleanly shuts down the storage backend.
	Close(ctx context.Context) error
}

// HistoryProvider defines the interface for session-scoped conversation
// history, shared across all tasks carrying the same session ID.
type HistoryProvider interface {
	// AddMessage appends a message to the session history.
	AddMessage(ctx context.Context, sessionID string, message *taskwire.Message) error

	// GetHistory retrieves the ordered message history of a session.
	// Returns an empty slice for an unknown session.
	GetHistory(ctx context.Context, sessionID string) ([]*taskwire.Message, error)
}

// PushConfigStore defines the interface for storing and retrieving push
// notification configurations keyed by task ID.
type PushConfigStore interface {
	// SaveConfig saves a push notification configuration for a task.
	// If a configuration already exists, it is replaced.
	SaveConfig(ctx context.Context, taskID string, config *taskwire.PushNotificationConfig) error

	// GetConfig retrieves the push notification configuration of a task.
	// Returns taskwire.TaskNotFoundError if none is registered.
	GetConfig(ctx context.Context, taskID string) (*taskwire.PushNotificationConfig, error)

	// DeleteConfig removes the push notification configuration of a task.
	// Returns taskwire.TaskNotFoundError if none is registered.
	DeleteConfig(ctx context.Context, taskID string) error
}

// StorageError represents an error from a storage backend.
type StorageError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s operation failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(operation, taskID string, err error) StorageError {
	return StorageError{
		Operation: operation,
		TaskID:    taskID,
		Err:       err,
	}
}

// TaskExistsError reports a create attempt with an already-used task ID.
type TaskExistsError struct {
	TaskID string
}

// Error returns the error message.
func (e TaskExistsError) Error() string {
	return fmt.Sprintf("task already exists: %s", e.TaskID)
}

// NewTaskExistsError creates a new TaskExistsError.
func NewTaskExistsError(taskID string) TaskExistsError {
	return TaskExistsError{TaskID: taskID}
}
