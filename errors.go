// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"errors"
	"fmt"
)

// JSON-RPC error codes used on the wire.
const (
	// ErrorCodeJSONParse indicates an invalid JSON payload.
	ErrorCodeJSONParse = -32700
	// ErrorCodeInvalidRequest indicates a request payload validation error.
	ErrorCodeInvalidRequest = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist.
	ErrorCodeMethodNotFound = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams = -32602
	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal = -32603

	// ErrorCodeTaskNotFound indicates the requested task ID was not found.
	ErrorCodeTaskNotFound = -32001
	// ErrorCodeTaskNotCancelable indicates the task is in a terminal
	// state and cannot be canceled.
	ErrorCodeTaskNotCancelable = -32002
	// ErrorCodeStreamNotActive indicates no live event stream exists for
	// the task.
	ErrorCodeStreamNotActive = -32004
	// ErrorCodeInvalidTaskState indicates a mutation was attempted on a
	// task in a terminal state.
	ErrorCodeInvalidTaskState = -32006
)

// ProtocolError is implemented by the typed errors of the protocol,
// carrying the JSON-RPC error code they map to on the wire.
type ProtocolError interface {
	error
	Code() int
}

// TaskNotFoundError reports an unknown task id on get, cancel or
// resubscribe.
type TaskNotFoundError struct {
	TaskID string
}

// Error returns the error message.
func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// Code returns the JSON-RPC error code.
func (e TaskNotFoundError) Code() int { return ErrorCodeTaskNotFound }

// TaskNotCancelableError reports a cancel attempt on a terminal task.
type TaskNotCancelableError struct {
	TaskID string
	State  TaskState
}

// Error returns the error message.
func (e TaskNotCancelableError) Error() string {
	return fmt.Sprintf("task %s cannot be canceled: already in state %s", e.TaskID, e.State)
}

// Code returns the JSON-RPC error code.
func (e TaskNotCancelableError) Code() int { return ErrorCodeTaskNotCancelable }

// InvalidTaskStateError reports a mutation attempted on a terminal task.
type InvalidTaskStateError struct {
	TaskID string
	State  TaskState
}

// Error returns the error message.
func (e InvalidTaskStateError) Error() string {
	return fmt.Sprintf("task %s in terminal state %s cannot be updated", e.TaskID, e.State)
}

// Code returns the JSON-RPC error code.
func (e InvalidTaskStateError) Code() int { return ErrorCodeInvalidTaskState }

// StreamNotActiveError reports a resubscribe attempt on a task with no
// live event stream.
type StreamNotActiveError struct {
	TaskID string
}

// Error returns the error message.
func (e StreamNotActiveError) Error() string {
	return fmt.Sprintf("no active event stream for task: %s", e.TaskID)
}

// Code returns the JSON-RPC error code.
func (e StreamNotActiveError) Code() int { return ErrorCodeStreamNotActive }

// InvalidParamsError reports a malformed request shape, detected before
// any state mutation.
type InvalidParamsError struct {
	Msg string
}

// Error returns the error message.
func (e InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params: %s", e.Msg)
}

// Code returns the JSON-RPC error code.
func (e InvalidParamsError) Code() int { return ErrorCodeInvalidParams }

// AgentError wraps a failure of the agent capability. It is always
// converted to a failed terminal task status rather than propagated raw
// to the transport.
type AgentError struct {
	Err error
}

// Error returns the error message.
func (e AgentError) Error() string {
	return fmt.Sprintf("agent error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e AgentError) Unwrap() error { return e.Err }

// Code returns the JSON-RPC error code.
func (e AgentError) Code() int { return ErrorCodeInternal }

// InternalError reports an unexpected server-side failure.
type InternalError struct {
	Msg string
}

// Error returns the error message.
func (e InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Msg)
}

// Code returns the JSON-RPC error code.
func (e InternalError) Code() int { return ErrorCodeInternal }

// NewTaskNotFoundError creates a new TaskNotFoundError.
func NewTaskNotFoundError(taskID string) TaskNotFoundError {
	return TaskNotFoundError{TaskID: taskID}
}

// NewTaskNotCancelableError creates a new TaskNotCancelableError.
func NewTaskNotCancelableError(taskID string, state TaskState) TaskNotCancelableError {
	return TaskNotCancelableError{TaskID: taskID, State: state}
}

// NewInvalidTaskStateError creates a new InvalidTaskStateError.
func NewInvalidTaskStateError(taskID string, state TaskState) InvalidTaskStateError {
	return InvalidTaskStateError{TaskID: taskID, State: state}
}

// NewStreamNotActiveError creates a new StreamNotActiveError.
func NewStreamNotActiveError(taskID string) StreamNotActiveError {
	return StreamNotActiveError{TaskID: taskID}
}

// NewInvalidParamsError creates a new InvalidParamsError.
func NewInvalidParamsError(msg string) InvalidParamsError {
	return InvalidParamsError{Msg: msg}
}

// NewAgentError wraps an agent failure.
func NewAgentError(err error) AgentError {
	return AgentError{Err: err}
}

// NewInternalError creates a new InternalError.
func NewInternalError(msg string) InternalError {
	return InternalError{Msg: msg}
}

// WireError converts any error into the JSON-RPC error object sent on
// the wire. Typed protocol errors keep their code; everything else maps
// to an internal error.
func WireError(err error) *JSONRPCError {
	var perr ProtocolError
	if errors.As(err, &perr) {
		return &JSONRPCError{
			Code:    perr.Code(),
			Message: perr.Error(),
		}
	}
	return &JSONRPCError{
		Code:    ErrorCodeInternal,
		Message: err.Error(),
	}
}
