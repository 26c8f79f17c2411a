// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/taskwire/taskwire"
)

func newTestTask(t *testing.T, id string) *taskwire.Task {
	t.Helper()

	task, err := taskwire.NewTask(taskwire.SendTaskParams{
		ID:      id,
		Message: taskwire.NewUserTextMessage("hello"),
	})
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	return task
}

func TestInMemoryTaskStorage_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	task := newTestTask(t, "task-1")
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	got, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	if diff := cmp.Diff(task, got, cmp.AllowUnexported(taskwire.PartWrapper{})); diff != "" {
		t.Errorf("GetTask() mismatch (-want +got):\n%s", diff)
	}
}

func TestInMemoryTaskStorage_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	task := newTestTask(t, "task-1")
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	err := store.CreateTask(ctx, task)
	var existsErr TaskExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("CreateTask() error = %v, want TaskExistsError", err)
	}
}

func TestInMemoryTaskStorage_GetNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	_, err := store.GetTask(ctx, "missing")
	var notFound taskwire.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("GetTask() error = %v, want TaskNotFoundError", err)
	}
	if notFound.TaskID != "missing" {
		t.Errorf("TaskNotFoundError.TaskID = %q, want %q", notFound.TaskID, "missing")
	}
}

func TestInMemoryTaskStorage_UpdateTaskStatus(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	task := newTestTask(t, "task-1")
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	status := taskwire.TaskStatus{
		State:     taskwire.TaskStateCompleted,
		Message:   taskwire.NewAgentTextMessage("done"),
		Timestamp: time.Now().UTC(),
	}
	got, err := store.UpdateTaskStatus(ctx, "task-1", status)
	if err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}

	if got.Status.State != taskwire.TaskStateCompleted {
		t.Errorf("Status.State = %q, want %q", got.Status.State, taskwire.TaskStateCompleted)
	}
	if len(got.History) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(got.History))
	}
	if text := taskwire.GetMessageText(got.History[1], "\n"); text != "done" {
		t.Errorf("History[1] text = %q, want %q", text, "done")
	}
}

func TestInMemoryTaskStorage_UpdateTerminalTask(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	task := newTestTask(t, "task-1")
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	completed := taskwire.TaskStatus{State: taskwire.TaskStateCompleted, Timestamp: time.Now().UTC()}
	if _, err := store.UpdateTaskStatus(ctx, "task-1", completed); err != nil {
		t.Fatalf("UpdateTaskStatus() error = %v", err)
	}

	working := taskwire.TaskStatus{State: taskwire.TaskStateWorking, Timestamp: time.Now().UTC()}
	_, err := store.UpdateTaskStatus(ctx, "task-1", working)
	var stateErr taskwire.InvalidTaskStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("UpdateTaskStatus() error = %v, want InvalidTaskStateError", err)
	}

	_, err = store.AppendArtifact(ctx, "task-1", taskwire.NewTextArtifact(0, "late"))
	if !errors.As(err, &stateErr) {
		t.Fatalf("AppendArtifact() error = %v, want InvalidTaskStateError", err)
	}

	_, err = store.AppendHistory(ctx, "task-1", taskwire.NewUserTextMessage("late"))
	if !errors.As(err, &stateErr) {
		t.Fatalf("AppendHistory() error = %v, want InvalidTaskStateError", err)
	}

	got, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if len(got.History) != 1 {
		t.Errorf("len(History) = %d after rejected appends, want 1", len(got.History))
	}
}

func TestInMemoryTaskStorage_AppendArtifact(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	task := newTestTask(t, "task-1")
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if _, err := store.AppendArtifact(ctx, "task-1", taskwire.NewAppendableTextArtifact(0, "Hello, ", false)); err != nil {
		t.Fatalf("AppendArtifact() error = %v", err)
	}
	got, err := store.AppendArtifact(ctx, "task-1", taskwire.NewAppendableTextArtifact(0, "world.", true))
	if err != nil {
		t.Fatalf("AppendArtifact() error = %v", err)
	}

	if len(got.Artifacts) != 1 {
		t.Fatalf("len(Artifacts) = %d, want 1", len(got.Artifacts))
	}
	if text := taskwire.ArtifactText(got.Artifacts[0]); text != "Hello, world." {
		t.Errorf("ArtifactText() = %q, want %q", text, "Hello, world.")
	}
	if !got.Artifacts[0].LastChunk {
		t.Error("Artifacts[0].LastChunk = false, want true")
	}
}

func TestInMemoryTaskStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTaskStorage()

	task := newTestTask(t, "task-1")
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	first, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	first.Status.State = taskwire.TaskStateFailed
	first.History = append(first.History, taskwire.NewAgentTextMessage("mutated"))

	second, err := store.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if second.Status.State != taskwire.TaskStateSubmitted {
		t.Errorf("stored state mutated: got %q, want %q", second.Status.State, taskwire.TaskStateSubmitted)
	}
	if len(second.History) != 1 {
		t.Errorf("stored history mutated: len = %d, want 1", len(second.History))
	}
}

func TestInMemoryHistoryProvider(t *testing.T) {
	ctx := context.Background()
	provider := NewInMemoryHistoryProvider()

	sessionID := taskwire.NewSessionID()
	if err := provider.AddMessage(ctx, sessionID, taskwire.NewUserTextMessage("first")); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if err := provider.AddMessage(ctx, sessionID, taskwire.NewAgentTextMessage("second")); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	history, err := provider.GetHistory(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Role != taskwire.RoleUser || history[1].Role != taskwire.RoleAgent {
		t.Errorf("history roles = %q, %q, want user, agent", history[0].Role, history[1].Role)
	}

	other, err := provider.GetHistory(ctx, taskwire.NewSessionID())
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unknown session history len = %d, want 0", len(other))
	}
}

func TestInMemoryPushConfigStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryPushConfigStore()

	config := &taskwire.PushNotificationConfig{URL: "https://example.com/hook", Token: "secret"}
	if err := store.SaveConfig(ctx, "task-1", config); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	got, err := store.GetConfig(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if diff := cmp.Diff(config, got); diff != "" {
		t.Errorf("GetConfig() mismatch (-want +got):\n%s", diff)
	}

	var notFound taskwire.TaskNotFoundError
	if _, err := store.GetConfig(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("GetConfig() error = %v, want TaskNotFoundError", err)
	}

	if err := store.DeleteConfig(ctx, "task-1"); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	if err := store.DeleteConfig(ctx, "task-1"); !errors.As(err, &notFound) {
		t.Fatalf("DeleteConfig() error = %v, want TaskNotFoundError", err)
	}
}
