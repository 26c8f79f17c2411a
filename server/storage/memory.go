// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskwire/taskwire"
)

// InMemoryTaskStorage is an in-memory implementation of TaskStorage.
// Task data is lost when the server process stops.
// All operations are thread-safe using sync.RWMutex.
type InMemoryTaskStorage struct {
	mu    sync.RWMutex
	tasks map[string]*taskwire.Task
}

var _ TaskStorage = (*InMemoryTaskStorage)(nil)

// NewInMemoryTaskStorage creates a new InMemoryTaskStorage.
func NewInMemoryTaskStorage() *InMemoryTaskStorage {
	return &InMemoryTaskStorage{
		tasks: make(map[string]*taskwire.Task),
	}
}

// CreateTask persists a new task to the in-memory storage.
func (s *InMemoryTaskStorage) CreateTask(ctx context.Context, task *taskwire.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return NewStorageError("create", task.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return NewTaskExistsError(task.ID)
	}

	s.tasks[task.ID] = copyTask(task)
	return nil
}

// GetTask retrieves a task by its ID from the in-memory storage.
func (s *InMemoryTaskStorage) GetTask(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, taskwire.NewTaskNotFoundError(taskID)
	}

	// Return a deep copy to avoid race conditions
	return copyTask(task), nil
}

// UpdateTaskStatus replaces the task's status, appending a carried status
// message to the history.
func (s *InMemoryTaskStorage) UpdateTaskStatus(ctx context.Context, taskID string, status taskwire.TaskStatus) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if err := status.Validate(); err != nil {
		return nil, NewStorageError("update_status", taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, taskwire.NewTaskNotFoundError(taskID)
	}
	if task.Status.State.Terminal() {
		return nil, taskwire.NewInvalidTaskStateError(taskID, task.Status.State)
	}

	task.Status = status
	if status.Message != nil {
		task.History = append(task.History, status.Message)
	}

	return copyTask(task), nil
}

// AppendArtifact folds an artifact into the task's artifact list.
func (s *InMemoryTaskStorage) AppendArtifact(ctx context.Context, taskID string, artifact *taskwire.Artifact) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if artifact == nil {
		return nil, fmt.Errorf("artifact cannot be nil")
	}
	if err := artifact.Validate(); err != nil {
		return nil, NewStorageError("append_artifact", taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, taskwire.NewTaskNotFoundError(taskID)
	}
	if task.Status.State.Terminal() {
		return nil, taskwire.NewInvalidTaskStateError(taskID, task.Status.State)
	}

	task.Artifacts = taskwire.ApplyArtifact(task.Artifacts, artifact)

	return copyTask(task), nil
}

// AppendHistory appends a message to the task's history.
func (s *InMemoryTaskStorage) AppendHistory(ctx context.Context, taskID string, message *taskwire.Message) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if err := message.Validate(); err != nil {
		return nil, NewStorageError("append_history", taskID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, taskwire.NewTaskNotFoundError(taskID)
	}
	if task.Status.State.Terminal() {
		return nil, taskwire.NewInvalidTaskStateError(taskID, task.Status.State)
	}

	task.History = append(task.History, message)

	return copyTask(task), nil
}

// Initialize prepares the in-memory storage for use.
func (s *InMemoryTaskStorage) Initialize(ctx context.Context) error {
	// No initialization needed for in-memory storage
	return nil
}

// Close cleanly shuts down the in-memory storage.
func (s *InMemoryTaskStorage) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*taskwire.Task)
	return nil
}

// Size returns the current number of tasks in the in-memory storage.
// This is useful for testing and monitoring purposes.
func (s *InMemoryTaskStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}

// copyTask creates a deep copy of a task to avoid race conditions.
// Part wrappers are immutable once built and are copied by reference.
func copyTask(task *taskwire.Task) *taskwire.Task {
	if task == nil {
		return nil
	}

	out := &taskwire.Task{
		ID:        task.ID,
		SessionID: task.SessionID,
		Status:    task.Status,
	}

	if task.History != nil {
		out.History = make([]*taskwire.Message, len(task.History))
		for i, message := range task.History {
			if message == nil {
				continue
			}
			parts := make([]*taskwire.PartWrapper, len(message.Parts))
			copy(parts, message.Parts)
			out.History[i] = &taskwire.Message{
				Role:  message.Role,
				Parts: parts,
			}
		}
	}

	if task.Artifacts != nil {
		out.Artifacts = make([]*taskwire.Artifact, len(task.Artifacts))
		for i, artifact := range task.Artifacts {
			if artifact == nil {
				continue
			}
			parts := make([]*taskwire.PartWrapper, len(artifact.Parts))
			copy(parts, artifact.Parts)
			out.Artifacts[i] = &taskwire.Artifact{
				Index:     artifact.Index,
				Parts:     parts,
				Append:    artifact.Append,
				LastChunk: artifact.LastChunk,
			}
		}
	}

	return out
}

// InMemoryHistoryProvider is an in-memory implementation of
// HistoryProvider. All operations are thread-safe using sync.RWMutex.
type InMemoryHistoryProvider struct {
	mu       sync.RWMutex
	sessions map[string][]*taskwire.Message
}

var _ HistoryProvider = (*InMemoryHistoryProvider)(nil)

// NewInMemoryHistoryProvider creates a new InMemoryHistoryProvider.
func NewInMemoryHistoryProvider() *InMemoryHistoryProvider {
	return &InMemoryHistoryProvider{
		sessions: make(map[string][]*taskwire.Message),
	}
}

// AddMessage appends a message to the session history.
func (p *InMemoryHistoryProvider) AddMessage(ctx context.Context, sessionID string, message *taskwire.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if message == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if err := message.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sessions[sessionID] = append(p.sessions[sessionID], message)
	return nil
}

// GetHistory retrieves the ordered message history of a session.
func (p *InMemoryHistoryProvider) GetHistory(ctx context.Context, sessionID string) ([]*taskwire.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	history := p.sessions[sessionID]
	out := make([]*taskwire.Message, len(history))
	copy(out, history)
	return out, nil
}

// InMemoryPushConfigStore is an in-memory implementation of
// PushConfigStore. All operations are thread-safe using sync.RWMutex.
type InMemoryPushConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*taskwire.PushNotificationConfig
}

var _ PushConfigStore = (*InMemoryPushConfigStore)(nil)

// NewInMemoryPushConfigStore creates a new InMemoryPushConfigStore.
func NewInMemoryPushConfigStore() *InMemoryPushConfigStore {
	return &InMemoryPushConfigStore{
		configs: make(map[string]*taskwire.PushNotificationConfig),
	}
}

// SaveConfig saves a push notification configuration for a task.
func (s *InMemoryPushConfigStore) SaveConfig(ctx context.Context, taskID string, config *taskwire.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid push notification config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *config
	s.configs[taskID] = &cp
	return nil
}

// GetConfig retrieves the push notification configuration of a task.
func (s *InMemoryPushConfigStore) GetConfig(ctx context.Context, taskID string) (*taskwire.PushNotificationConfig, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	config, exists := s.configs[taskID]
	if !exists {
		return nil, taskwire.NewTaskNotFoundError(taskID)
	}

	cp := *config
	return &cp, nil
}

// DeleteConfig removes the push notification configuration of a task.
func (s *InMemoryPushConfigStore) DeleteConfig(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[taskID]; !exists {
		return taskwire.NewTaskNotFoundError(taskID)
	}

	delete(s.configs, taskID)
	return nil
}
