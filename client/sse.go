// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one decoded Server-Sent Event.
type sseEvent struct {
	Type string
	Data string
}

// sseDecoder reads Server-Sent Events off a response body.
type sseDecoder struct {
	scanner *bufio.Scanner
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{scanner: bufio.NewScanner(r)}
}

// Decode returns the next event, or io.EOF when the stream ends.
func (d *sseDecoder) Decode() (*sseEvent, error) {
	event := &sseEvent{}
	for d.scanner.Scan() {
		line := d.scanner.Text()

		// A blank line terminates the pending event.
		if line == "" {
			if event.Data != "" || event.Type != "" {
				return event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event.Type = value
		case "data":
			if event.Data != "" {
				event.Data += "\n"
			}
			event.Data += value
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if event.Data != "" || event.Type != "" {
		return event, nil
	}
	return nil, io.EOF
}
