// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"time"
)

// Provider defaults.
const (
	// DefaultBaseURL is the SiliconFlow OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"

	// DefaultMaxRetries is the number of extra attempts when opening a stream.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the first backoff delay; it doubles per attempt.
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps a single backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxEventSize bounds a single SSE event.
	MaxEventSize = 1 << 20

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// ErrEmptyRequest is returned when a request has no messages.
var ErrEmptyRequest = errors.New("request has no messages")

// Message is one entry of the request context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a streaming chat completion request.
type Request struct {
	Model    string
	Messages []Message
}

// DeltaStream yields content fragments of one response.
//
// Next blocks until the next non-empty delta arrives and returns false when
// the stream ended or failed. Err reports why iteration stopped; it is nil
// for a normal end. Close releases the connection and may be called at any
// time, including concurrently with a blocked Next.
type DeltaStream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// Provider opens delta streams. Client and SDKClient implement it.
type Provider interface {
	Stream(ctx context.Context, req Request) (DeltaStream, error)
}

// backoff returns the delay before retry attempt n (1-based).
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay || delay <= 0 {
		delay = retryMaxDelay
	}
	return delay
}
