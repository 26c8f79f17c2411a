// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"

	"github.com/taskwire/taskwire"
)

// Agent is the capability a task server wraps. Implementations receive
// the user's query text, the session ID grouping the conversation, and
// the ordered session history recorded so far (ending with the current
// user message), and produce either one response or an incremental
// stream of chunks.
//
// The values an Agent returns are opaque to the task manager; a
// ResponseProcessor normalizes them into task state transitions,
// messages and artifacts.
type Agent interface {
	// Invoke runs the agent to completion and returns its raw response.
	Invoke(ctx context.Context, query, sessionID string, history []*taskwire.Message) (any, error)

	// Stream runs the agent incrementally. The returned channel carries
	// the raw response chunks and is closed when the agent is done.
	Stream(ctx context.Context, query, sessionID string, history []*taskwire.Message) (<-chan StreamChunk, error)
}

// StreamChunk is one increment of a streaming agent response. Err, when
// set, terminates the stream with a failure.
type StreamChunk struct {
	Value any
	Err   error
}

// AgentFuncs adapts plain functions to the Agent interface. Either
// function may be nil; calling the missing mode returns an error.
type AgentFuncs struct {
	InvokeFunc func(ctx context.Context, query, sessionID string, history []*taskwire.Message) (any, error)
	StreamFunc func(ctx context.Context, query, sessionID string, history []*taskwire.Message) (<-chan StreamChunk, error)
}

var _ Agent = (*AgentFuncs)(nil)

// Invoke calls InvokeFunc.
func (a *AgentFuncs) Invoke(ctx context.Context, query, sessionID string, history []*taskwire.Message) (any, error) {
	if a.InvokeFunc == nil {
		return nil, fmt.Errorf("agent does not support synchronous invocation")
	}
	return a.InvokeFunc(ctx, query, sessionID, history)
}

// Stream calls StreamFunc.
func (a *AgentFuncs) Stream(ctx context.Context, query, sessionID string, history []*taskwire.Message) (<-chan StreamChunk, error) {
	if a.StreamFunc == nil {
		return nil, fmt.Errorf("agent does not support streaming invocation")
	}
	return a.StreamFunc(ctx, query, sessionID, history)
}
