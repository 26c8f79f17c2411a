// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"errors"
	"fmt"
	"testing"
)

func TestWireError_Codes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "task not found", err: NewTaskNotFoundError("task-1"), wantCode: ErrorCodeTaskNotFound},
		{name: "task not cancelable", err: NewTaskNotCancelableError("task-1", TaskStateCompleted), wantCode: ErrorCodeTaskNotCancelable},
		{name: "invalid task state", err: NewInvalidTaskStateError("task-1", TaskStateFailed), wantCode: ErrorCodeInvalidTaskState},
		{name: "stream not active", err: NewStreamNotActiveError("task-1"), wantCode: ErrorCodeStreamNotActive},
		{name: "invalid params", err: NewInvalidParamsError("missing id"), wantCode: ErrorCodeInvalidParams},
		{name: "agent error", err: NewAgentError(errors.New("boom")), wantCode: ErrorCodeInternal},
		{name: "internal error", err: NewInternalError("oops"), wantCode: ErrorCodeInternal},
		{name: "plain error", err: errors.New("something"), wantCode: ErrorCodeInternal},
		{name: "wrapped protocol error", err: fmt.Errorf("lookup: %w", NewTaskNotFoundError("task-1")), wantCode: ErrorCodeTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpcErr := WireError(tt.err)
			if rpcErr.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", rpcErr.Code, tt.wantCode)
			}
			if rpcErr.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestAgentError_Unwrap(t *testing.T) {
	cause := errors.New("model unavailable")
	err := NewAgentError(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(AgentError, cause) = false, want true")
	}
}

func TestJSONRPCResponses(t *testing.T) {
	resp := NewJSONRPCResponse("req-1", "ok")
	if resp.JSONRPC != JSONRPCVersion || resp.ID != "req-1" || resp.Error != nil {
		t.Errorf("NewJSONRPCResponse() = %+v, want success envelope", resp)
	}

	errResp := NewJSONRPCErrorResponse("req-2", NewMethodNotFoundError())
	if errResp.Error == nil || errResp.Error.Code != ErrorCodeMethodNotFound {
		t.Errorf("NewJSONRPCErrorResponse() = %+v, want method not found", errResp)
	}
	if errResp.Result != nil {
		t.Error("error response carries a result")
	}
}
