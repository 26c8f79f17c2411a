// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewTask(t *testing.T) {
	task, err := NewTask(SendTaskParams{
		ID:      "task-1",
		Message: NewUserTextMessage("hello"),
	})
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}

	if task.ID != "task-1" {
		t.Errorf("ID = %q, want %q", task.ID, "task-1")
	}
	if task.SessionID == "" {
		t.Error("SessionID is empty, want a generated session id")
	}
	if task.Status.State != TaskStateSubmitted {
		t.Errorf("State = %q, want submitted", task.Status.State)
	}
	if task.Status.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
	if len(task.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(task.History))
	}
	if got := GetMessageText(task.History[0], "\n"); got != "hello" {
		t.Errorf("history text = %q, want %q", got, "hello")
	}
}

func TestNewTask_KeepsSessionID(t *testing.T) {
	task, err := NewTask(SendTaskParams{
		ID:        "task-1",
		SessionID: "session-1",
		Message:   NewUserTextMessage("hello"),
	})
	if err != nil {
		t.Fatalf("NewTask() error = %v", err)
	}
	if task.SessionID != "session-1" {
		t.Errorf("SessionID = %q, want %q", task.SessionID, "session-1")
	}
}

func TestNewTask_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params SendTaskParams
	}{
		{name: "empty id", params: SendTaskParams{Message: NewUserTextMessage("hi")}},
		{name: "nil message", params: SendTaskParams{ID: "task-1"}},
		{name: "empty parts", params: SendTaskParams{ID: "task-1", Message: &Message{Role: RoleUser}}},
		{
			name: "bad push config",
			params: SendTaskParams{
				ID:               "task-1",
				Message:          NewUserTextMessage("hi"),
				PushNotification: &PushNotificationConfig{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTask(tt.params); err == nil {
				t.Error("NewTask() error = nil, want error")
			}
		})
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewSessionID()
		if id == "" {
			t.Fatal("NewSessionID() returned empty string")
		}
		if seen[id] {
			t.Fatalf("NewSessionID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestTask_TrimHistory(t *testing.T) {
	history := []*Message{
		NewUserTextMessage("one"),
		NewAgentTextMessage("two"),
		NewUserTextMessage("three"),
	}
	task := &Task{
		ID:        "task-1",
		SessionID: "session-1",
		Status:    TaskStatus{State: TaskStateCompleted},
		History:   history,
	}

	tests := []struct {
		name          string
		historyLength int
		want          []*Message
	}{
		{name: "zero omits history", historyLength: 0, want: nil},
		{name: "negative omits history", historyLength: -1, want: nil},
		{name: "trims to last messages", historyLength: 2, want: history[1:]},
		{name: "larger window keeps all", historyLength: 10, want: history},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trimmed := task.TrimHistory(tt.historyLength)
			if diff := cmp.Diff(tt.want, trimmed.History, cmp.AllowUnexported(PartWrapper{})); diff != "" {
				t.Errorf("trimmed history mismatch (-want +got):\n%s", diff)
			}
			// The original task keeps its full history.
			if len(task.History) != 3 {
				t.Errorf("original len(History) = %d, want 3", len(task.History))
			}
		})
	}
}

func TestTaskState_Terminal(t *testing.T) {
	terminal := []TaskState{TaskStateCompleted, TaskStateFailed, TaskStateCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q.Terminal() = false, want true", s)
		}
	}

	live := []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%q.Terminal() = true, want false", s)
		}
	}
}

func TestTaskState_Valid(t *testing.T) {
	for _, s := range []TaskState{
		TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled,
	} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if TaskState("paused").Valid() {
		t.Error(`TaskState("paused").Valid() = true, want false`)
	}
}
