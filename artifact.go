// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"
)

// Artifact is a piece of agent-produced output attached to a task.
// Append marks this artifact as extending the artifact previously
// emitted at the same Index rather than replacing it; this is how
// incrementally streamed content is assembled by the receiver without
// the server re-sending the accumulated payload.
type Artifact struct {
	Index     int            `json:"index"`
	Parts     []*PartWrapper `json:"parts"`
	Append    bool           `json:"append,omitzero"`
	LastChunk bool           `json:"lastChunk,omitzero"`
}

// Validate ensures the Artifact is valid.
func (a Artifact) Validate() error {
	if a.Index < 0 {
		return fmt.Errorf("artifact index cannot be negative")
	}
	if len(a.Parts) == 0 {
		return fmt.Errorf("artifact must contain at least one part")
	}
	for i, part := range a.Parts {
		if part == nil {
			return fmt.Errorf("artifact part at index %d cannot be nil", i)
		}
		if err := part.Validate(); err != nil {
			return fmt.Errorf("artifact part at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// NewTextArtifact creates an artifact holding a single text part.
func NewTextArtifact(index int, text string) *Artifact {
	return &Artifact{
		Index: index,
		Parts: []*PartWrapper{NewPartWrapper(NewTextPart(text))},
	}
}

// NewAppendableTextArtifact creates an appendable artifact chunk at the
// given index, as emitted per increment by streaming processors.
func NewAppendableTextArtifact(index int, text string, lastChunk bool) *Artifact {
	a := NewTextArtifact(index, text)
	a.Append = true
	a.LastChunk = lastChunk
	return a
}

// ApplyArtifact folds an incoming artifact into an existing artifact
// list, honoring the append-at-index contract: an Append artifact
// extends the parts of the artifact previously recorded at the same
// index, a non-Append artifact replaces it, and an artifact at a new
// index is added. The input slice is not mutated.
func ApplyArtifact(artifacts []*Artifact, incoming *Artifact) []*Artifact {
	if incoming == nil {
		return artifacts
	}

	out := make([]*Artifact, len(artifacts))
	copy(out, artifacts)

	for i, existing := range out {
		if existing == nil || existing.Index != incoming.Index {
			continue
		}
		if !incoming.Append {
			out[i] = incoming
			return out
		}
		merged := &Artifact{
			Index:     existing.Index,
			Parts:     make([]*PartWrapper, 0, len(existing.Parts)+len(incoming.Parts)),
			Append:    existing.Append,
			LastChunk: incoming.LastChunk,
		}
		merged.Parts = append(merged.Parts, existing.Parts...)
		merged.Parts = append(merged.Parts, incoming.Parts...)
		out[i] = merged
		return out
	}

	return append(out, incoming)
}

// ArtifactText joins the text parts of an artifact into one string,
// reconstructing content accumulated across appended chunks.
func ArtifactText(a *Artifact) string {
	if a == nil {
		return ""
	}
	var text string
	for _, part := range GetTextParts(a.Parts) {
		text += part
	}
	return text
}
