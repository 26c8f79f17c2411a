// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/taskwire/taskwire"
)

// StreamEvent is one update delivered on a streaming subscription.
// Exactly one of Event and Err is set; an Err terminates the stream.
type StreamEvent struct {
	Event taskwire.TaskEvent
	Err   error
}

// SendTaskSubscribe submits a task and subscribes to its event stream.
// The returned channel closes after the final status event, a decoding
// failure, or context cancellation.
func (c *Client) SendTaskSubscribe(ctx context.Context, params taskwire.SendTaskParams) (<-chan StreamEvent, error) {
	return c.subscribe(ctx, "tasks/sendSubscribe", params)
}

// Resubscribe reattaches to the event stream of an existing task. A
// terminal task replays its final status event.
func (c *Client) Resubscribe(ctx context.Context, params taskwire.TaskQueryParams) (<-chan StreamEvent, error) {
	return c.subscribe(ctx, "tasks/resubscribe", params)
}

func (c *Client) subscribe(ctx context.Context, method string, params any) (<-chan StreamEvent, error) {
	body, err := c.post(ctx, method, params, "text/event-stream")
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer body.Close()
		defer close(out)

		decoder := newSSEDecoder(body)
		for {
			frame, err := decoder.Decode()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					emit(ctx, out, StreamEvent{Err: err})
				}
				return
			}

			ev, err := decodeStreamFrame([]byte(frame.Data))
			if err != nil {
				emit(ctx, out, StreamEvent{Err: err})
				return
			}
			if !emit(ctx, out, StreamEvent{Event: ev}) {
				return
			}
			if ev.IsFinal() {
				return
			}
		}
	}()
	return out, nil
}

func emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeStreamFrame decodes one SSE payload: a JSON-RPC response whose
// result is either a status or an artifact update event, told apart by
// the artifact field.
func decodeStreamFrame(data []byte) (taskwire.TaskEvent, error) {
	var resp struct {
		Result struct {
			ID       string               `json:"id"`
			Status   *taskwire.TaskStatus `json:"status,omitempty"`
			Final    bool                 `json:"final,omitempty"`
			Artifact *taskwire.Artifact   `json:"artifact,omitempty"`
		} `json:"result"`
		Error *taskwire.JSONRPCError `json:"error,omitempty"`
	}
	if err := sonic.ConfigDefault.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stream frame: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	if resp.Result.Artifact != nil {
		return &taskwire.TaskArtifactUpdateEvent{
			ID:       resp.Result.ID,
			Artifact: resp.Result.Artifact,
		}, nil
	}
	if resp.Result.Status == nil {
		return nil, fmt.Errorf("stream frame carries neither status nor artifact")
	}
	return &taskwire.TaskStatusUpdateEvent{
		ID:     resp.Result.ID,
		Status: *resp.Result.Status,
		Final:  resp.Result.Final,
	}, nil
}
