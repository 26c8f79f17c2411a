// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskwire/taskwire"
)

// DefaultStreamFinalThreshold is the accumulated-text length beyond
// which the default processor forces a stream to finish.
const DefaultStreamFinalThreshold = 4096

// ResponseProcessor normalizes raw agent output into protocol terms:
// a task state, an optional agent message, and artifacts.
type ResponseProcessor interface {
	// ProcessResponse normalizes a complete agent response.
	ProcessResponse(ctx context.Context, raw any) (taskwire.TaskState, *taskwire.Message, []*taskwire.Artifact, error)

	// ProcessStreamItem normalizes one streaming chunk. accumulated is
	// the text gathered from previous chunks; the result's Content is
	// appended to it by the caller.
	ProcessStreamItem(ctx context.Context, raw any, accumulated string) (*StreamItemResult, error)
}

// StreamItemResult is the normalized form of one streaming chunk.
type StreamItemResult struct {
	// State the task should be in after this chunk.
	State taskwire.TaskState

	// Message carried by the chunk, if any. On a final chunk this is
	// the agent's complete message.
	Message *taskwire.Message

	// Artifact increment carried by the chunk, if any.
	Artifact *taskwire.Artifact

	// Content is the text this chunk contributes to the accumulated
	// agent response.
	Content string

	// Final marks the chunk that ends the stream. Once reported, no
	// later chunk may unreport it.
	Final bool
}

// TextResponseProcessor is the default ResponseProcessor for agents that
// produce plain text, or maps carrying explicit completion flags.
//
// A complete string response is terminal: completed, or input-required
// when it ends with a question mark. Streaming chunks become appendable
// artifacts at index 0; the stream finishes once the accumulated text
// ends in sentence-terminal punctuation or exceeds FinalThreshold.
type TextResponseProcessor struct {
	// FinalThreshold caps the accumulated stream length; 0 selects
	// DefaultStreamFinalThreshold.
	FinalThreshold int
}

var _ ResponseProcessor = (*TextResponseProcessor)(nil)

// NewTextResponseProcessor creates a TextResponseProcessor with the
// default threshold.
func NewTextResponseProcessor() *TextResponseProcessor {
	return &TextResponseProcessor{FinalThreshold: DefaultStreamFinalThreshold}
}

// ProcessResponse normalizes a complete agent response.
func (p *TextResponseProcessor) ProcessResponse(ctx context.Context, raw any) (taskwire.TaskState, *taskwire.Message, []*taskwire.Artifact, error) {
	switch v := raw.(type) {
	case string:
		return p.processText(v)
	case map[string]any:
		text := mapContent(v)
		if requireInput, _ := v["require_user_input"].(bool); requireInput {
			return taskwire.TaskStateInputRequired, taskwire.NewAgentTextMessage(text), nil, nil
		}
		if complete, ok := v["is_task_complete"].(bool); ok && !complete {
			return taskwire.TaskStateWorking, taskwire.NewAgentTextMessage(text), nil, nil
		}
		return taskwire.TaskStateCompleted, taskwire.NewAgentTextMessage(text),
			[]*taskwire.Artifact{taskwire.NewTextArtifact(0, text)}, nil
	case *taskwire.Message:
		return taskwire.TaskStateCompleted, v, nil, nil
	default:
		return "", nil, nil, fmt.Errorf("unsupported agent response type %T", raw)
	}
}

func (p *TextResponseProcessor) processText(text string) (taskwire.TaskState, *taskwire.Message, []*taskwire.Artifact, error) {
	message := taskwire.NewAgentTextMessage(text)
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		return taskwire.TaskStateInputRequired, message, nil, nil
	}
	return taskwire.TaskStateCompleted, message,
		[]*taskwire.Artifact{taskwire.NewTextArtifact(0, text)}, nil
}

// ProcessStreamItem normalizes one streaming chunk.
func (p *TextResponseProcessor) ProcessStreamItem(ctx context.Context, raw any, accumulated string) (*StreamItemResult, error) {
	switch v := raw.(type) {
	case string:
		return p.processTextChunk(v, accumulated), nil
	case map[string]any:
		return p.processMapChunk(v, accumulated), nil
	default:
		return nil, fmt.Errorf("unsupported stream chunk type %T", raw)
	}
}

func (p *TextResponseProcessor) processTextChunk(chunk, accumulated string) *StreamItemResult {
	total := accumulated + chunk
	final := endsSentence(total) || len(total) >= p.threshold()

	result := &StreamItemResult{
		State:    taskwire.TaskStateWorking,
		Artifact: taskwire.NewAppendableTextArtifact(0, chunk, final),
		Content:  chunk,
		Final:    final,
	}
	if final {
		result.State = taskwire.TaskStateCompleted
		if strings.HasSuffix(strings.TrimSpace(total), "?") {
			result.State = taskwire.TaskStateInputRequired
		}
		result.Message = taskwire.NewAgentTextMessage(total)
	}
	return result
}

func (p *TextResponseProcessor) processMapChunk(chunk map[string]any, accumulated string) *StreamItemResult {
	text := mapContent(chunk)
	complete, _ := chunk["is_task_complete"].(bool)
	requireInput, _ := chunk["require_user_input"].(bool)
	total := accumulated + text

	result := &StreamItemResult{
		State:   taskwire.TaskStateWorking,
		Content: text,
	}

	switch {
	case requireInput:
		result.State = taskwire.TaskStateInputRequired
		result.Final = true
		result.Message = taskwire.NewAgentTextMessage(total)
	case complete:
		result.State = taskwire.TaskStateCompleted
		result.Final = true
		result.Message = taskwire.NewAgentTextMessage(total)
	default:
		if text != "" {
			result.Message = taskwire.NewAgentTextMessage(text)
		}
	}

	if text != "" {
		result.Artifact = taskwire.NewAppendableTextArtifact(0, text, result.Final)
	}
	return result
}

func (p *TextResponseProcessor) threshold() int {
	if p.FinalThreshold <= 0 {
		return DefaultStreamFinalThreshold
	}
	return p.FinalThreshold
}

// endsSentence reports whether s ends with sentence-terminal
// punctuation, ignoring trailing whitespace.
func endsSentence(s string) bool {
	s = strings.TrimRight(s, " \t\n")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

// mapContent extracts the text content of a map-shaped chunk.
func mapContent(m map[string]any) string {
	if content, ok := m["content"].(string); ok {
		return content
	}
	if updates, ok := m["updates"].(string); ok {
		return updates
	}
	return ""
}
