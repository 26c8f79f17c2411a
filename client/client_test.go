// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskwire/taskwire"
	"github.com/taskwire/taskwire/server"
	"github.com/taskwire/taskwire/server/handler"
)

func echoAgent() server.Agent {
	return &server.AgentFuncs{
		InvokeFunc: func(ctx context.Context, query, sessionID string, history []*taskwire.Message) (any, error) {
			return query, nil
		},
		StreamFunc: func(ctx context.Context, query, sessionID string, history []*taskwire.Message) (<-chan server.StreamChunk, error) {
			out := make(chan server.StreamChunk)
			go func() {
				defer close(out)
				for _, word := range strings.SplitAfter(query, " ") {
					select {
					case out <- server.StreamChunk{Value: word}:
					case <-ctx.Done():
						return
					}
				}
			}()
			return out, nil
		},
	}
}

func newTestServer(t *testing.T, middleware func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	manager, err := server.NewDefaultTaskManager(echoAgent(), server.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewDefaultTaskManager() error = %v", err)
	}

	var h http.Handler = handler.NewHandler(manager, handler.WithLogger(logger))
	if middleware != nil {
		h = middleware(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SendTask(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL)

	task, err := c.SendTask(context.Background(), taskwire.SendTaskParams{
		ID:      "task-1",
		Message: taskwire.NewUserTextMessage("The answer is 42."),
	})
	if err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}
	if task.Status.State != taskwire.TaskStateCompleted {
		t.Errorf("state = %q, want completed", task.Status.State)
	}
	if len(task.Artifacts) != 1 || taskwire.ArtifactText(task.Artifacts[0]) != "The answer is 42." {
		t.Errorf("artifacts = %+v, want echoed text", task.Artifacts)
	}
	if task.SessionID == "" {
		t.Error("SessionID is empty, want server-assigned session")
	}
}

func TestClient_GetTask(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL)
	ctx := context.Background()

	if _, err := c.SendTask(ctx, taskwire.SendTaskParams{
		ID:      "task-1",
		Message: taskwire.NewUserTextMessage("Hello."),
	}); err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	task, err := c.GetTask(ctx, taskwire.TaskQueryParams{ID: "task-1", HistoryLength: 10})
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.ID != "task-1" {
		t.Errorf("ID = %q, want task-1", task.ID)
	}
	if len(task.History) == 0 {
		t.Error("History is empty, want recorded messages")
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL)

	_, err := c.GetTask(context.Background(), taskwire.TaskQueryParams{ID: "missing"})
	if err == nil {
		t.Fatal("GetTask() error = nil, want task not found")
	}

	var rpcErr *taskwire.JSONRPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error type = %T, want *JSONRPCError", err)
	}
	if rpcErr.Code != taskwire.ErrorCodeTaskNotFound {
		t.Errorf("code = %d, want %d", rpcErr.Code, taskwire.ErrorCodeTaskNotFound)
	}
}

func collectStream(t *testing.T, events <-chan StreamEvent) []taskwire.TaskEvent {
	t.Helper()

	var collected []taskwire.TaskEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return collected
			}
			if ev.Err != nil {
				t.Fatalf("stream error = %v", ev.Err)
			}
			collected = append(collected, ev.Event)
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestClient_SendTaskSubscribe(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL)

	events, err := c.SendTaskSubscribe(context.Background(), taskwire.SendTaskParams{
		ID:      "task-1",
		Message: taskwire.NewUserTextMessage("The answer is 42."),
	})
	if err != nil {
		t.Fatalf("SendTaskSubscribe() error = %v", err)
	}

	collected := collectStream(t, events)
	if len(collected) < 2 {
		t.Fatalf("len(events) = %d, want at least working + final", len(collected))
	}

	first, ok := collected[0].(*taskwire.TaskStatusUpdateEvent)
	if !ok || first.Status.State != taskwire.TaskStateWorking {
		t.Errorf("first event = %+v, want working status", collected[0])
	}

	last := collected[len(collected)-1]
	if !last.IsFinal() {
		t.Fatalf("last event = %+v, want final", last)
	}
	if status, ok := last.(*taskwire.TaskStatusUpdateEvent); !ok || status.Status.State != taskwire.TaskStateCompleted {
		t.Errorf("final event = %+v, want completed status", last)
	}

	var text string
	for _, ev := range collected {
		if artifact, ok := ev.(*taskwire.TaskArtifactUpdateEvent); ok {
			text += taskwire.ArtifactText(artifact.Artifact)
		}
	}
	if text != "The answer is 42." {
		t.Errorf("streamed text = %q, want full echo", text)
	}
}

func TestClient_ResubscribeTerminal(t *testing.T) {
	srv := newTestServer(t, nil)
	c := New(srv.URL)
	ctx := context.Background()

	if _, err := c.SendTask(ctx, taskwire.SendTaskParams{
		ID:      "task-1",
		Message: taskwire.NewUserTextMessage("Hello."),
	}); err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}

	events, err := c.Resubscribe(ctx, taskwire.TaskQueryParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("Resubscribe() error = %v", err)
	}

	collected := collectStream(t, events)
	if len(collected) != 1 {
		t.Fatalf("len(events) = %d, want exactly one replay", len(collected))
	}
	status, ok := collected[0].(*taskwire.TaskStatusUpdateEvent)
	if !ok || !status.Final || status.Status.State != taskwire.TaskStateCompleted {
		t.Errorf("replay = %+v, want final completed status", collected[0])
	}
}

func TestClient_HeaderInterceptor(t *testing.T) {
	var gotAuth string
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			next.ServeHTTP(w, r)
		})
	}
	srv := newTestServer(t, middleware)

	c := New(srv.URL, WithInterceptor(HeaderInterceptor("Authorization", "Bearer secret")))
	if _, err := c.SendTask(context.Background(), taskwire.SendTaskParams{
		ID:      "task-1",
		Message: taskwire.NewUserTextMessage("Hello."),
	}); err != nil {
		t.Fatalf("SendTask() error = %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want interceptor-set bearer token", gotAuth)
	}
}
