// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/taskwire/taskwire"
)

// streamEvents writes the event channel to the client as Server-Sent
// Events. Each frame carries one JSON-RPC response whose result is a
// task event, correlated to the originating request id. The stream ends
// when the channel closes or the client goes away.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, id any, events <-chan taskwire.TaskEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, id, &taskwire.JSONRPCError{
			Code:    taskwire.ErrorCodeInternal,
			Message: "streaming unsupported by connection",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEFrame(w, flusher, taskwire.NewJSONRPCResponse(id, ev)); err != nil {
				h.logger.InfoContext(ctx, "stream client disconnected", "error", err)
				return
			}
			if ev.IsFinal() {
				return
			}
		}
	}
}

// writeSSEFrame writes one data-only SSE frame and flushes it.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, resp *taskwire.JSONRPCResponse) error {
	payload, err := sonic.ConfigDefault.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
