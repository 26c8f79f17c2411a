// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package taskwire

import (
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
)

// Role identifies the author of a message.
type Role string

// Valid message roles.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part is the tagged union of message and artifact content variants.
// Concrete implementations are TextPart, FilePart and DataPart.
type Part interface {
	// GetType returns the discriminator tag of the part ("text", "file"
	// or "data").
	GetType() string

	// Validate ensures the part is in a valid state.
	Validate() error
}

// TextPart is a plain text segment.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var _ Part = (*TextPart)(nil)

// NewTextPart creates a TextPart with the correct discriminator tag.
func NewTextPart(text string) *TextPart {
	return &TextPart{Type: "text", Text: text}
}

// GetType returns the discriminator tag of the part.
func (tp TextPart) GetType() string { return "text" }

// Validate ensures the TextPart is valid.
func (tp TextPart) Validate() error {
	if tp.Type != "text" {
		return fmt.Errorf("text part type must be 'text', got %q", tp.Type)
	}
	return nil
}

// FileContent holds the payload of a FilePart. Exactly one of URI and
// Bytes must be set.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
	URI      string `json:"uri,omitzero"`
	Bytes    []byte `json:"bytes,omitzero"`
}

// Validate ensures the FileContent is valid.
func (fc FileContent) Validate() error {
	if fc.URI == "" && len(fc.Bytes) == 0 {
		return fmt.Errorf("file content must carry a URI or bytes")
	}
	if fc.URI != "" && len(fc.Bytes) > 0 {
		return fmt.Errorf("file content cannot carry both a URI and bytes")
	}
	return nil
}

// FilePart is a file segment, referenced by URI or embedded as bytes.
type FilePart struct {
	Type string       `json:"type"`
	File *FileContent `json:"file"`
}

var _ Part = (*FilePart)(nil)

// NewFilePart creates a FilePart with the correct discriminator tag.
func NewFilePart(file *FileContent) *FilePart {
	return &FilePart{Type: "file", File: file}
}

// GetType returns the discriminator tag of the part.
func (fp FilePart) GetType() string { return "file" }

// Validate ensures the FilePart is valid.
func (fp FilePart) Validate() error {
	if fp.Type != "file" {
		return fmt.Errorf("file part type must be 'file', got %q", fp.Type)
	}
	if fp.File == nil {
		return fmt.Errorf("file part file cannot be nil")
	}
	return fp.File.Validate()
}

// DataPart is a structured data segment.
type DataPart struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

var _ Part = (*DataPart)(nil)

// NewDataPart creates a DataPart with the correct discriminator tag.
func NewDataPart(data map[string]any) *DataPart {
	return &DataPart{Type: "data", Data: data}
}

// GetType returns the discriminator tag of the part.
func (dp DataPart) GetType() string { return "data" }

// Validate ensures the DataPart is valid.
func (dp DataPart) Validate() error {
	if dp.Type != "data" {
		return fmt.Errorf("data part type must be 'data', got %q", dp.Type)
	}
	if dp.Data == nil {
		return fmt.Errorf("data part data cannot be nil")
	}
	return nil
}

// PartWrapper wraps a Part to enable JSON serialization of the union.
type PartWrapper struct {
	part Part
}

// NewPartWrapper creates a new PartWrapper.
func NewPartWrapper(part Part) *PartWrapper {
	return &PartWrapper{part: part}
}

// GetPart returns the wrapped part.
func (pw *PartWrapper) GetPart() Part {
	return pw.part
}

// MarshalJSON implements custom JSON marshaling for PartWrapper.
func (pw PartWrapper) MarshalJSON() ([]byte, error) {
	if pw.part == nil {
		return nil, fmt.Errorf("cannot marshal nil part")
	}
	return json.Marshal(pw.part)
}

// UnmarshalJSON implements custom JSON unmarshaling for PartWrapper,
// dispatching on the "type" discriminator field.
func (pw *PartWrapper) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("failed to unmarshal part type: %w", err)
	}

	switch tag.Type {
	case "text":
		var tp TextPart
		if err := json.Unmarshal(data, &tp); err != nil {
			return fmt.Errorf("failed to unmarshal text part: %w", err)
		}
		pw.part = &tp
	case "file":
		var fp FilePart
		if err := json.Unmarshal(data, &fp); err != nil {
			return fmt.Errorf("failed to unmarshal file part: %w", err)
		}
		pw.part = &fp
	case "data":
		var dp DataPart
		if err := json.Unmarshal(data, &dp); err != nil {
			return fmt.Errorf("failed to unmarshal data part: %w", err)
		}
		pw.part = &dp
	default:
		return fmt.Errorf("unknown part type: %q", tag.Type)
	}
	return nil
}

// Validate validates the wrapped part.
func (pw *PartWrapper) Validate() error {
	if pw.part == nil {
		return fmt.Errorf("part wrapper cannot contain nil part")
	}
	return pw.part.Validate()
}

// Message is one conversational turn, authored by the user or the
// agent. Messages are immutable once recorded in history.
type Message struct {
	Role  Role           `json:"role"`
	Parts []*PartWrapper `json:"parts"`
}

// Validate ensures the Message is valid.
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAgent {
		return fmt.Errorf("unknown message role: %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message must contain at least one part")
	}
	for i, part := range m.Parts {
		if part == nil {
			return fmt.Errorf("message part at index %d cannot be nil", i)
		}
		if err := part.Validate(); err != nil {
			return fmt.Errorf("message part at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// NewUserTextMessage creates a user message with a single text part.
func NewUserTextMessage(text string) *Message {
	return &Message{
		Role:  RoleUser,
		Parts: []*PartWrapper{NewPartWrapper(NewTextPart(text))},
	}
}

// NewAgentTextMessage creates an agent message with a single text part.
func NewAgentTextMessage(text string) *Message {
	return &Message{
		Role:  RoleAgent,
		Parts: []*PartWrapper{NewPartWrapper(NewTextPart(text))},
	}
}

// GetTextParts extracts the text content of all text parts.
func GetTextParts(parts []*PartWrapper) []string {
	var texts []string
	for _, pw := range parts {
		if pw == nil {
			continue
		}
		if tp, ok := pw.GetPart().(*TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return texts
}

// GetMessageText joins the text parts of a message with the given
// delimiter. Non-text parts are skipped.
func GetMessageText(message *Message, delimiter string) string {
	if message == nil {
		return ""
	}
	return strings.Join(GetTextParts(message.Parts), delimiter)
}
