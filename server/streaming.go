// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server/event"
)

// runStream is the streaming execution unit: one goroutine per active
// streaming task. It drives the agent's chunk stream through the
// processor, persists and multicasts each update in chunk order, and
// closes the queue only after the terminal event is enqueued.
//
// Cancellation is cooperative: the worker checks its context between
// chunks and exits without emitting a terminal event. The cancel path
// in OnCancelTask owns the canceled status and final stream event.
func (m *DefaultTaskManager) runStream(ctx context.Context, task *taskwire.Task, params taskwire.SendTaskParams, queue *event.Queue) {
	taskID := task.ID
	canceled := false
	defer func() {
		m.cancelActive(taskID)
		// On cancellation the cancel path owns the queue: it emits the
		// final canceled event and closes it.
		if !canceled && m.broker.Active(taskID) {
			_ = m.broker.Close(taskID)
		}
	}()

	working := taskwire.TaskStatus{State: taskwire.TaskStateWorking, Timestamp: time.Now().UTC()}
	if _, err := m.storage.UpdateTaskStatus(ctx, taskID, working); err != nil {
		m.failStream(ctx, taskID, task.SessionID, queue, err)
		return
	}
	m.enqueue(ctx, queue, &taskwire.TaskStatusUpdateEvent{ID: taskID, Status: working})

	query := taskwire.GetMessageText(params.Message, "\n")
	chunks, err := m.agent.Stream(ctx, query, task.SessionID, m.sessionHistory(ctx, taskID, task.SessionID))
	if err != nil {
		m.failStream(ctx, taskID, task.SessionID, queue, err)
		return
	}

	var accumulated string
	for {
		select {
		case <-ctx.Done():
			canceled = true
			m.logger.InfoContext(ctx, "task stream canceled", "task_id", taskID)
			return
		case chunk, ok := <-chunks:
			if ctx.Err() != nil {
				canceled = true
				m.logger.InfoContext(ctx, "task stream canceled", "task_id", taskID)
				return
			}
			if !ok {
				m.finishStream(ctx, taskID, task.SessionID, queue, accumulated)
				return
			}
			if chunk.Err != nil {
				m.failStream(ctx, taskID, task.SessionID, queue, chunk.Err)
				return
			}

			result, err := m.processor.ProcessStreamItem(ctx, chunk.Value, accumulated)
			if err != nil {
				m.failStream(ctx, taskID, task.SessionID, queue, err)
				return
			}
			accumulated += result.Content

			if result.Artifact != nil {
				if _, err := m.storage.AppendArtifact(ctx, taskID, result.Artifact); err != nil {
					m.failStream(ctx, taskID, task.SessionID, queue, err)
					return
				}
				m.enqueue(ctx, queue, &taskwire.TaskArtifactUpdateEvent{ID: taskID, Artifact: result.Artifact})
			}

			if result.Final {
				m.completeStream(ctx, taskID, task.SessionID, queue, taskwire.TaskStatus{
					State:     result.State,
					Message:   result.Message,
					Timestamp: time.Now().UTC(),
				})
				return
			}

			if result.Message != nil {
				m.enqueue(ctx, queue, &taskwire.TaskStatusUpdateEvent{
					ID: taskID,
					Status: taskwire.TaskStatus{
						State:     taskwire.TaskStateWorking,
						Message:   result.Message,
						Timestamp: time.Now().UTC(),
					},
				})
			}
		}
	}
}

// finishStream finalizes a stream whose agent closed the channel without
// an explicit final chunk. The accumulated text decides the terminal
// state the same way a complete response would.
func (m *DefaultTaskManager) finishStream(ctx context.Context, taskID, sessionID string, queue *event.Queue, accumulated string) {
	state := taskwire.TaskStateCompleted
	if strings.HasSuffix(strings.TrimSpace(accumulated), "?") {
		state = taskwire.TaskStateInputRequired
	}

	status := taskwire.TaskStatus{State: state, Timestamp: time.Now().UTC()}
	if accumulated != "" {
		status.Message = taskwire.NewAgentTextMessage(accumulated)
	}
	m.completeStream(ctx, taskID, sessionID, queue, status)
}

// failStream finalizes a stream after an agent or processing failure.
func (m *DefaultTaskManager) failStream(ctx context.Context, taskID, sessionID string, queue *event.Queue, cause error) {
	m.logger.WarnContext(ctx, "task stream failed", "task_id", taskID, "error", cause)

	m.completeStream(ctx, taskID, sessionID, queue, taskwire.TaskStatus{
		State:     taskwire.TaskStateFailed,
		Message:   taskwire.NewAgentTextMessage(taskwire.NewAgentError(cause).Error()),
		Timestamp: time.Now().UTC(),
	})
}

// completeStream persists the terminal status, records the agent's
// message in the session history, fires the webhook, and enqueues the
// final event. Losing the terminal-write race to a concurrent cancel
// leaves the cancel path's outcome in place.
func (m *DefaultTaskManager) completeStream(ctx context.Context, taskID, sessionID string, queue *event.Queue, status taskwire.TaskStatus) {
	updated, err := m.storage.UpdateTaskStatus(ctx, taskID, status)
	if err != nil {
		var stateErr taskwire.InvalidTaskStateError
		if !errors.As(err, &stateErr) {
			m.logger.WarnContext(ctx, "failed to persist terminal status", "task_id", taskID, "error", err)
		}
		return
	}

	if status.Message != nil {
		if err := m.history.AddMessage(ctx, sessionID, status.Message); err != nil {
			m.logger.WarnContext(ctx, "failed to record agent message", "task_id", taskID, "error", err)
		}
	}

	m.notify(ctx, updated)

	m.enqueue(ctx, queue, &taskwire.TaskStatusUpdateEvent{ID: taskID, Status: status, Final: true})
	m.logger.InfoContext(ctx, "task stream finished", "task_id", taskID, "state", status.State)
}

// enqueue pushes an event onto the queue, logging delivery problems.
func (m *DefaultTaskManager) enqueue(ctx context.Context, queue *event.Queue, ev taskwire.TaskEvent) {
	if err := queue.Enqueue(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "failed to enqueue event",
			"task_id", ev.GetTaskID(), "final", ev.IsFinal(), "error", err)
	}
}
