// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server/event"
	"github.com/taskwire/taskwire/server/storage"
)

// TaskManager is the interface that task managers must implement.
type TaskManager interface {
	// OnSendTask handles a synchronous task send: the call returns once
	// the task reached a stable state.
	OnSendTask(ctx context.Context, params taskwire.SendTaskParams) (*taskwire.Task, error)

	// OnSendTaskSubscribe starts a streaming task and returns a channel
	// of update events. The channel is live before any event is
	// emitted and closes after the final event.
	OnSendTaskSubscribe(ctx context.Context, params taskwire.SendTaskParams) (<-chan taskwire.TaskEvent, error)

	// OnGetTask retrieves a task snapshot.
	OnGetTask(ctx context.Context, params taskwire.TaskQueryParams) (*taskwire.Task, error)

	// OnCancelTask cancels a non-terminal task.
	OnCancelTask(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.Task, error)

	// OnSetTaskPushNotification registers a webhook for a task.
	OnSetTaskPushNotification(ctx context.Context, config taskwire.TaskPushNotificationConfig) (*taskwire.TaskPushNotificationConfig, error)

	// OnGetTaskPushNotification retrieves the webhook registered for a
	// task.
	OnGetTaskPushNotification(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.TaskPushNotificationConfig, error)

	// OnResubscribeToTask re-attaches to a task's update stream.
	OnResubscribeToTask(ctx context.Context, params taskwire.TaskQueryParams) (<-chan taskwire.TaskEvent, error)
}

// DefaultTaskManager orchestrates the task lifecycle: it persists tasks
// through TaskStorage, runs the wrapped Agent, normalizes its output
// through the ResponseProcessor, multicasts stream events through the
// event Broker, and fires webhook notifications on status changes.
//
// All mutating operations on one task ID are serialized with a keyed
// mutex; operations on distinct IDs proceed concurrently.
type DefaultTaskManager struct {
	agent     Agent
	storage   storage.TaskStorage
	history   storage.HistoryProvider
	processor ResponseProcessor
	notifier  NotificationHandler
	broker    *event.Broker
	logger    *slog.Logger
	tracer    trace.Tracer
	queueSize int

	locks *keyedMutex

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

var _ TaskManager = (*DefaultTaskManager)(nil)

// NewDefaultTaskManager creates a DefaultTaskManager wrapping the given
// agent. Storage, history, processor, notifier, broker, logger and
// tracer all have in-memory or global defaults overridable via options.
func NewDefaultTaskManager(agent Agent, opts ...Option) (*DefaultTaskManager, error) {
	if agent == nil {
		return nil, fmt.Errorf("agent cannot be nil")
	}

	m := &DefaultTaskManager{
		agent:  agent,
		locks:  newKeyedMutex(),
		active: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.storage == nil {
		m.storage = storage.NewInMemoryTaskStorage()
	}
	if m.history == nil {
		m.history = storage.NewInMemoryHistoryProvider()
	}
	if m.processor == nil {
		m.processor = NewTextResponseProcessor()
	}
	if m.notifier == nil {
		m.notifier = NewHTTPNotifier(storage.NewInMemoryPushConfigStore())
	}
	if m.broker == nil {
		m.broker = event.NewBroker(m.queueSize)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.tracer == nil {
		m.tracer = otel.GetTracerProvider().Tracer("github.com/taskwire/taskwire/server")
	}

	return m, nil
}

// OnSendTask handles a synchronous task send.
func (m *DefaultTaskManager) OnSendTask(ctx context.Context, params taskwire.SendTaskParams) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnSendTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	unlock := m.locks.Lock(params.ID)
	defer unlock()

	task, err := m.upsertTask(ctx, params)
	if err != nil {
		return nil, err
	}

	if params.PushNotification != nil {
		if err := m.notifier.SetConfig(ctx, params.ID, params.PushNotification); err != nil {
			return nil, err
		}
	}

	working := taskwire.TaskStatus{State: taskwire.TaskStateWorking, Timestamp: time.Now().UTC()}
	if _, err := m.storage.UpdateTaskStatus(ctx, params.ID, working); err != nil {
		return nil, err
	}

	query := taskwire.GetMessageText(params.Message, "\n")
	raw, err := m.agent.Invoke(ctx, query, task.SessionID, m.sessionHistory(ctx, task.ID, task.SessionID))
	if err != nil {
		return m.failTask(ctx, params, taskwire.NewAgentError(err))
	}

	state, message, artifacts, err := m.processor.ProcessResponse(ctx, raw)
	if err != nil {
		return m.failTask(ctx, params, taskwire.NewAgentError(err))
	}

	for _, artifact := range artifacts {
		if _, err := m.storage.AppendArtifact(ctx, params.ID, artifact); err != nil {
			return nil, err
		}
	}

	updated, err := m.storage.UpdateTaskStatus(ctx, params.ID, taskwire.TaskStatus{
		State:     state,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if message != nil {
		if err := m.history.AddMessage(ctx, updated.SessionID, message); err != nil {
			m.logger.WarnContext(ctx, "failed to record agent message", "task_id", params.ID, "error", err)
		}
	}

	m.notify(ctx, updated)

	m.logger.InfoContext(ctx, "task finished", "task_id", params.ID, "state", updated.Status.State)
	return updated.TrimHistory(params.HistoryLength), nil
}

// failTask marks the task failed after an agent error. Agent failures
// become terminal task state, never a raw error on the wire.
func (m *DefaultTaskManager) failTask(ctx context.Context, params taskwire.SendTaskParams, agentErr error) (*taskwire.Task, error) {
	m.logger.WarnContext(ctx, "agent invocation failed", "task_id", params.ID, "error", agentErr)

	updated, err := m.storage.UpdateTaskStatus(ctx, params.ID, taskwire.TaskStatus{
		State:     taskwire.TaskStateFailed,
		Message:   taskwire.NewAgentTextMessage(agentErr.Error()),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	m.notify(ctx, updated)
	return updated.TrimHistory(params.HistoryLength), nil
}

// OnSendTaskSubscribe starts a streaming task. If an execution is
// already active for the task ID, the call attaches a new subscriber to
// it instead of spawning a second worker.
func (m *DefaultTaskManager) OnSendTaskSubscribe(ctx context.Context, params taskwire.SendTaskParams) (<-chan taskwire.TaskEvent, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnSendTaskSubscribe",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	unlock := m.locks.Lock(params.ID)
	defer unlock()

	if m.isActive(params.ID) {
		// The worker may finish between the check and the tap; fall
		// through to a fresh start in that case.
		if queue, err := m.broker.Tap(params.ID); err == nil {
			m.logger.InfoContext(ctx, "attached to active task stream", "task_id", params.ID)
			return m.subscribe(ctx, queue), nil
		}
	}

	task, err := m.upsertTask(ctx, params)
	if err != nil {
		return nil, err
	}

	if params.PushNotification != nil {
		if err := m.notifier.SetConfig(ctx, params.ID, params.PushNotification); err != nil {
			return nil, err
		}
	}

	queue, err := m.broker.Create(params.ID)
	if err != nil {
		return nil, err
	}
	// The caller subscribes through a tap like everyone else; the
	// producer queue is a pure fan-out point that no single consumer
	// can stall.
	sub, err := queue.Tap()
	if err != nil {
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.setActive(params.ID, cancel)

	go m.runStream(workerCtx, task, params, queue)

	m.logger.InfoContext(ctx, "task stream started", "task_id", params.ID, "session_id", task.SessionID)
	return m.subscribe(ctx, sub), nil
}

// OnGetTask retrieves a task snapshot, with history trimmed to the
// requested length.
func (m *DefaultTaskManager) OnGetTask(ctx context.Context, params taskwire.TaskQueryParams) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnGetTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, err := m.storage.GetTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	return task.TrimHistory(params.HistoryLength), nil
}

// OnCancelTask cancels a non-terminal task. The active streaming worker,
// if any, is signaled through its context and exits at the next chunk
// boundary; this call owns the terminal status and stream event.
func (m *DefaultTaskManager) OnCancelTask(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.Task, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnCancelTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	unlock := m.locks.Lock(params.ID)
	defer unlock()

	task, err := m.storage.GetTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, taskwire.NewTaskNotCancelableError(params.ID, task.Status.State)
	}

	m.cancelActive(params.ID)

	status := taskwire.TaskStatus{State: taskwire.TaskStateCanceled, Timestamp: time.Now().UTC()}
	updated, err := m.storage.UpdateTaskStatus(ctx, params.ID, status)
	if err != nil {
		// The worker may have finalized between the snapshot and here.
		var stateErr taskwire.InvalidTaskStateError
		if errors.As(err, &stateErr) {
			return nil, taskwire.NewTaskNotCancelableError(params.ID, stateErr.State)
		}
		return nil, err
	}

	if queue := m.broker.Get(params.ID); queue != nil {
		if err := queue.Enqueue(ctx, &taskwire.TaskStatusUpdateEvent{ID: params.ID, Status: status, Final: true}); err != nil {
			m.logger.WarnContext(ctx, "failed to emit cancel event", "task_id", params.ID, "error", err)
		}
		_ = m.broker.Close(params.ID)
	}

	m.notify(ctx, updated)

	m.logger.InfoContext(ctx, "task canceled", "task_id", params.ID)
	return updated, nil
}

// OnSetTaskPushNotification registers a webhook for a task.
func (m *DefaultTaskManager) OnSetTaskPushNotification(ctx context.Context, config taskwire.TaskPushNotificationConfig) (*taskwire.TaskPushNotificationConfig, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnSetTaskPushNotification",
		trace.WithAttributes(attribute.String("taskwire.task_id", config.ID)))
	defer span.End()

	if err := config.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	if _, err := m.storage.GetTask(ctx, config.ID); err != nil {
		return nil, err
	}

	if err := m.notifier.SetConfig(ctx, config.ID, config.Config); err != nil {
		return nil, err
	}
	return &config, nil
}

// OnGetTaskPushNotification retrieves the webhook registered for a task.
func (m *DefaultTaskManager) OnGetTaskPushNotification(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.TaskPushNotificationConfig, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnGetTaskPushNotification",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	if _, err := m.storage.GetTask(ctx, params.ID); err != nil {
		return nil, err
	}

	config, err := m.notifier.GetConfig(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	return &taskwire.TaskPushNotificationConfig{ID: params.ID, Config: config}, nil
}

// OnResubscribeToTask re-attaches to a task's update stream. A terminal
// task with no live stream yields a single replayed final status event;
// a non-terminal task with no live stream is an error.
func (m *DefaultTaskManager) OnResubscribeToTask(ctx context.Context, params taskwire.TaskQueryParams) (<-chan taskwire.TaskEvent, error) {
	ctx, span := m.tracer.Start(ctx, "taskwire.task_manager.OnResubscribeToTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, err := m.storage.GetTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	if queue, err := m.broker.Tap(params.ID); err == nil {
		m.logger.InfoContext(ctx, "resubscribed to active task stream", "task_id", params.ID)
		return m.subscribe(ctx, queue), nil
	}

	if task.Status.State.Terminal() {
		queue, err := event.NewQueue(1)
		if err != nil {
			return nil, err
		}
		if err := queue.Enqueue(ctx, &taskwire.TaskStatusUpdateEvent{ID: task.ID, Status: task.Status, Final: true}); err != nil {
			return nil, err
		}
		_ = queue.Close()
		return m.subscribe(ctx, queue), nil
	}

	return nil, taskwire.NewStreamNotActiveError(params.ID)
}

// upsertTask creates the task on first sight and reuses the stored one,
// including its session ID, on subsequent sends. The incoming user
// message lands in both the task history and the session history. A
// resend to a terminal task is rejected before any history is touched.
// Callers hold the per-ID lock.
func (m *DefaultTaskManager) upsertTask(ctx context.Context, params taskwire.SendTaskParams) (*taskwire.Task, error) {
	task, err := m.storage.GetTask(ctx, params.ID)
	switch {
	case err == nil:
		if task.Status.State.Terminal() {
			return nil, taskwire.NewInvalidTaskStateError(params.ID, task.Status.State)
		}
		task, err = m.storage.AppendHistory(ctx, params.ID, params.Message)
		if err != nil {
			return nil, err
		}
	default:
		var notFound taskwire.TaskNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		task, err = taskwire.NewTask(params)
		if err != nil {
			return nil, taskwire.NewInvalidParamsError(err.Error())
		}
		if err := m.storage.CreateTask(ctx, task); err != nil {
			return nil, err
		}
		m.logger.InfoContext(ctx, "task created", "task_id", task.ID, "session_id", task.SessionID)
	}

	if err := m.history.AddMessage(ctx, task.SessionID, params.Message); err != nil {
		m.logger.WarnContext(ctx, "failed to record user message", "task_id", task.ID, "error", err)
	}
	return task, nil
}

// subscribe pumps a queue into a subscriber channel. The channel closes
// after the final event, when the queue closes, or when the caller's
// context ends. The queue is closed when the pump exits, detaching the
// subscriber from its parent.
func (m *DefaultTaskManager) subscribe(ctx context.Context, queue *event.Queue) <-chan taskwire.TaskEvent {
	ch := make(chan taskwire.TaskEvent, 16)
	go func() {
		defer close(ch)
		defer queue.Close()
		for {
			ev, err := queue.Dequeue(ctx)
			if err != nil {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
			if ev.IsFinal() {
				return
			}
		}
	}()
	return ch
}

// sessionHistory loads the session's recorded messages for the agent.
// A read failure leaves the agent without prior context rather than
// failing the task.
func (m *DefaultTaskManager) sessionHistory(ctx context.Context, taskID, sessionID string) []*taskwire.Message {
	history, err := m.history.GetHistory(ctx, sessionID)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load session history", "task_id", taskID, "error", err)
		return nil
	}
	return history
}

// notify fires the webhook for a task, logging failures without
// affecting task state.
func (m *DefaultTaskManager) notify(ctx context.Context, task *taskwire.Task) {
	if !m.notifier.HasConfig(ctx, task.ID) {
		return
	}
	if err := m.notifier.Notify(ctx, task); err != nil {
		m.logger.WarnContext(ctx, "push notification failed", "task_id", task.ID, "error", err)
	}
}

func (m *DefaultTaskManager) isActive(taskID string) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	_, ok := m.active[taskID]
	return ok
}

func (m *DefaultTaskManager) setActive(taskID string, cancel context.CancelFunc) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	m.active[taskID] = cancel
}

func (m *DefaultTaskManager) cancelActive(taskID string) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	if cancel, ok := m.active[taskID]; ok {
		cancel()
		delete(m.active, taskID)
	}
}

// keyedMutex serializes operations per key while letting distinct keys
// proceed concurrently. Entries are reference counted and removed when
// the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for the given key and returns its unlock
// function.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
