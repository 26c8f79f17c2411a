// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionID generates a fresh content-free session identifier. The
// identifier is a random 128-bit UUID, unique with overwhelming
// probability.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTask creates a Task in the submitted state from send parameters.
// When the params carry no session id, a fresh one is generated; the
// caller is expected to surface it in the first response so clients can
// replay it on subsequent calls for the same conversation.
func NewTask(params SendTaskParams) (*Task, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid send params: %w", err)
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	return &Task{
		ID:        params.ID,
		SessionID: sessionID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: time.Now().UTC(),
		},
		History: []*Message{params.Message},
	}, nil
}

// TrimHistory returns a copy of the task whose history is limited to
// the last historyLength messages. A non-positive historyLength omits
// the history entirely, which is the wire default.
func (t *Task) TrimHistory(historyLength int) *Task {
	trimmed := *t
	if historyLength <= 0 {
		trimmed.History = nil
		return &trimmed
	}
	if len(t.History) > historyLength {
		trimmed.History = t.History[len(t.History)-historyLength:]
	}
	return &trimmed
}
