// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire"
)

// TaskStatusJSON provides JSON serialization for TaskStatus in database
// columns.
type TaskStatusJSON struct {
	taskwire.TaskStatus
}

// Value implements the driver.Valuer interface for database storage.
func (ts TaskStatusJSON) Value() (driver.Value, error) {
	return json.Marshal(ts.TaskStatus)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ts *TaskStatusJSON) Scan(value any) error {
	if value == nil {
		*ts = TaskStatusJSON{}
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into TaskStatusJSON: %w", err)
	}

	var status taskwire.TaskStatus
	if err := json.Unmarshal(bytes, &status); err != nil {
		return fmt.Errorf("cannot unmarshal TaskStatusJSON: %w", err)
	}

	ts.TaskStatus = status
	return nil
}

// MessageSliceJSON provides JSON serialization for []*Message in database
// columns.
type MessageSliceJSON struct {
	Messages []*taskwire.Message
}

// Value implements the driver.Valuer interface for database storage.
func (ms MessageSliceJSON) Value() (driver.Value, error) {
	if ms.Messages == nil {
		return nil, nil
	}
	return json.Marshal(ms.Messages)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ms *MessageSliceJSON) Scan(value any) error {
	if value == nil {
		*ms = MessageSliceJSON{}
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into MessageSliceJSON: %w", err)
	}

	var messages []*taskwire.Message
	if err := json.Unmarshal(bytes, &messages); err != nil {
		return fmt.Errorf("cannot unmarshal MessageSliceJSON: %w", err)
	}

	ms.Messages = messages
	return nil
}

// ArtifactSliceJSON provides JSON serialization for []*Artifact in
// database columns.
type ArtifactSliceJSON struct {
	Artifacts []*taskwire.Artifact
}

// Value implements the driver.Valuer interface for database storage.
func (as ArtifactSliceJSON) Value() (driver.Value, error) {
	if as.Artifacts == nil {
		return nil, nil
	}
	return json.Marshal(as.Artifacts)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (as *ArtifactSliceJSON) Scan(value any) error {
	if value == nil {
		*as = ArtifactSliceJSON{}
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into ArtifactSliceJSON: %w", err)
	}

	var artifacts []*taskwire.Artifact
	if err := json.Unmarshal(bytes, &artifacts); err != nil {
		return fmt.Errorf("cannot unmarshal ArtifactSliceJSON: %w", err)
	}

	as.Artifacts = artifacts
	return nil
}

func scanBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}

// TaskModel is the database row backing one task.
type TaskModel struct {
	ID        string            `gorm:"primaryKey;size:64"`
	SessionID string            `gorm:"size:64;index;not null"`
	Status    TaskStatusJSON    `gorm:"type:json"`
	History   MessageSliceJSON  `gorm:"type:json"`
	Artifacts ArtifactSliceJSON `gorm:"type:json"`
}

// TableName returns the table name for the TaskModel.
func (TaskModel) TableName() string {
	return "tasks"
}

// NewTaskModelFromTask converts a task to its database model.
func NewTaskModelFromTask(task *taskwire.Task) *TaskModel {
	return &TaskModel{
		ID:        task.ID,
		SessionID: task.SessionID,
		Status:    TaskStatusJSON{TaskStatus: task.Status},
		History:   MessageSliceJSON{Messages: task.History},
		Artifacts: ArtifactSliceJSON{Artifacts: task.Artifacts},
	}
}

// ToTask converts the database model back to a task.
func (m *TaskModel) ToTask() *taskwire.Task {
	return &taskwire.Task{
		ID:        m.ID,
		SessionID: m.SessionID,
		Status:    m.Status.TaskStatus,
		History:   m.History.Messages,
		Artifacts: m.Artifacts.Artifacts,
	}
}

// PushConfigModel is the database row backing one push notification
// configuration.
type PushConfigModel struct {
	TaskID string `gorm:"primaryKey;size:64"`
	URL    string `gorm:"size:2048;not null"`
	Token  string `gorm:"size:512"`
}

// TableName returns the table name for the PushConfigModel.
func (PushConfigModel) TableName() string {
	return "push_configs"
}

// DatabaseTaskStorage is a database implementation of TaskStorage using
// GORM. The caller supplies the *gorm.DB so any dialect GORM supports
// can back it.
type DatabaseTaskStorage struct {
	db          *gorm.DB
	createTable bool
}

var _ TaskStorage = (*DatabaseTaskStorage)(nil)

// DatabaseTaskStorageConfig holds configuration for DatabaseTaskStorage.
type DatabaseTaskStorageConfig struct {
	DB *gorm.DB
	// CreateTable controls whether Initialize runs an auto-migration.
	CreateTable bool
}

// NewDatabaseTaskStorage creates a new DatabaseTaskStorage.
func NewDatabaseTaskStorage(config DatabaseTaskStorageConfig) (*DatabaseTaskStorage, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &DatabaseTaskStorage{
		db:          config.DB,
		createTable: config.CreateTable,
	}, nil
}

// CreateTask persists a new task to the database.
func (s *DatabaseTaskStorage) CreateTask(ctx context.Context, task *taskwire.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return NewStorageError("create", task.ID, err)
	}

	model := NewTaskModelFromTask(task)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return NewTaskExistsError(task.ID)
		}
		return NewStorageError("create", task.ID, err)
	}
	return nil
}

// GetTask retrieves a task by its ID from the database.
func (s *DatabaseTaskStorage) GetTask(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, taskwire.NewTaskNotFoundError(taskID)
		}
		return nil, NewStorageError("get", taskID, err)
	}

	return model.ToTask(), nil
}

// UpdateTaskStatus replaces the task's status inside a transaction,
// appending a carried status message to the history.
func (s *DatabaseTaskStorage) UpdateTaskStatus(ctx context.Context, taskID string, status taskwire.TaskStatus) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if err := status.Validate(); err != nil {
		return nil, NewStorageError("update_status", taskID, err)
	}

	return s.mutate(ctx, "update_status", taskID, func(task *taskwire.Task) error {
		if task.Status.State.Terminal() {
			return taskwire.NewInvalidTaskStateError(taskID, task.Status.State)
		}
		task.Status = status
		if status.Message != nil {
			task.History = append(task.History, status.Message)
		}
		return nil
	})
}

// AppendArtifact folds an artifact into the task's artifact list inside
// a transaction.
func (s *DatabaseTaskStorage) AppendArtifact(ctx context.Context, taskID string, artifact *taskwire.Artifact) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if artifact == nil {
		return nil, fmt.Errorf("artifact cannot be nil")
	}
	if err := artifact.Validate(); err != nil {
		return nil, NewStorageError("append_artifact", taskID, err)
	}

	return s.mutate(ctx, "append_artifact", taskID, func(task *taskwire.Task) error {
		if task.Status.State.Terminal() {
			return taskwire.NewInvalidTaskStateError(taskID, task.Status.State)
		}
		task.Artifacts = taskwire.ApplyArtifact(task.Artifacts, artifact)
		return nil
	})
}

// AppendHistory appends a message to the task's history inside a
// transaction.
func (s *DatabaseTaskStorage) AppendHistory(ctx context.Context, taskID string, message *taskwire.Message) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if err := message.Validate(); err != nil {
		return nil, NewStorageError("append_history", taskID, err)
	}

	return s.mutate(ctx, "append_history", taskID, func(task *taskwire.Task) error {
		if task.Status.State.Terminal() {
			return taskwire.NewInvalidTaskStateError(taskID, task.Status.State)
		}
		task.History = append(task.History, message)
		return nil
	})
}

// mutate runs a read-modify-write cycle on one task row inside a
// transaction.
func (s *DatabaseTaskStorage) mutate(ctx context.Context, op, taskID string, fn func(task *taskwire.Task) error) (*taskwire.Task, error) {
	var updated *taskwire.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model TaskModel
		if err := tx.Where("id = ?", taskID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return taskwire.NewTaskNotFoundError(taskID)
			}
			return NewStorageError(op, taskID, err)
		}

		task := model.ToTask()
		if err := fn(task); err != nil {
			return err
		}

		if err := tx.Save(NewTaskModelFromTask(task)).Error; err != nil {
			return NewStorageError(op, taskID, err)
		}

		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Initialize prepares the database for use.
func (s *DatabaseTaskStorage) Initialize(ctx context.Context) error {
	if !s.createTable {
		return nil
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&TaskModel{}); err != nil {
		return NewStorageError("initialize", "", err)
	}
	return nil
}

// Close cleanly shuts down the database storage. The underlying
// connection is owned by the caller and is left open.
func (s *DatabaseTaskStorage) Close(ctx context.Context) error {
	return nil
}

// DatabasePushConfigStore is a database implementation of
// PushConfigStore using GORM.
type DatabasePushConfigStore struct {
	db *gorm.DB
}

var _ PushConfigStore = (*DatabasePushConfigStore)(nil)

// NewDatabasePushConfigStore creates a new DatabasePushConfigStore.
func NewDatabasePushConfigStore(db *gorm.DB) (*DatabasePushConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &DatabasePushConfigStore{db: db}, nil
}

// SaveConfig saves a push notification configuration for a task.
func (s *DatabasePushConfigStore) SaveConfig(ctx context.Context, taskID string, config *taskwire.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("push notification config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid push notification config: %w", err)
	}

	model := &PushConfigModel{TaskID: taskID, URL: config.URL, Token: config.Token}
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return NewStorageError("save_push_config", taskID, err)
	}
	return nil
}

// GetConfig retrieves the push notification configuration of a task.
func (s *DatabasePushConfigStore) GetConfig(ctx context.Context, taskID string) (*taskwire.PushNotificationConfig, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var model PushConfigModel
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, taskwire.NewTaskNotFoundError(taskID)
		}
		return nil, NewStorageError("get_push_config", taskID, err)
	}

	return &taskwire.PushNotificationConfig{URL: model.URL, Token: model.Token}, nil
}

// DeleteConfig removes the push notification configuration of a task.
func (s *DatabasePushConfigStore) DeleteConfig(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	result := s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&PushConfigModel{})
	if result.Error != nil {
		return NewStorageError("delete_push_config", taskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return taskwire.NewTaskNotFoundError(taskID)
	}
	return nil
}

// Initialize prepares the push config table for use.
func (s *DatabasePushConfigStore) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&PushConfigModel{}); err != nil {
		return NewStorageError("initialize", "", err)
	}
	return nil
}
