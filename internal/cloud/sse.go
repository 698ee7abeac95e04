// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// =============================================================================
// SSE READER
// =============================================================================

// doneSentinel terminates an OpenAI-style event stream.
var doneSentinel = []byte("[DONE]")

// SSEReader splits a Server-Sent Events body into event payloads.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the data of the next event. Multi-line data is joined
// with newlines. Comments and fields other than event/data are ignored.
// It returns io.EOF at the end of the body.
func (s *SSEReader) ReadEvent() (event string, data []byte, err error) {
	var lines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(err == io.EOF && len(line) > 0) {
			if err == io.EOF && len(lines) > 0 {
				return event, bytes.Join(lines, []byte("\n")), nil
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(lines) > 0 {
				return event, bytes.Join(lines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case line[0] == ':':
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			payload := line[len("data:"):]
			if len(payload) > 0 && payload[0] == ' ' {
				payload = payload[1:]
			}
			size += len(payload)
			if size > MaxEventSize {
				return "", nil, fmt.Errorf("event exceeds %d bytes", MaxEventSize)
			}
			lines = append(lines, append([]byte(nil), payload...))
		}
	}
}

// =============================================================================
// CHUNK FORMAT
// =============================================================================

// streamChunk is one decoded `data:` payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (c *streamChunk) content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// apiError is the error object used by OpenAI-compatible providers, both in
// error responses and mid-stream.
type apiError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"`
}

func (e *apiError) code() string {
	switch v := e.Code.(type) {
	case nil:
		return e.Type
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
