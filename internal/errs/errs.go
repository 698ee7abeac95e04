// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errs defines the error taxonomy shared across relaychat.
//
// Callers classify errors with errors.Is against the sentinels below. The
// typed errors ProviderError and TransportError carry detail and still match
// their sentinel.
package errs

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// =============================================================================
// SENTINELS
// =============================================================================

var (
	// ErrNotFound is returned when a conversation or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBusy is returned when an operation conflicts with an in-flight stream.
	ErrBusy = errors.New("busy: a response is streaming")

	// ErrUserCancelled marks a stream stopped by the user.
	ErrUserCancelled = errors.New("cancelled by user")

	// ErrTransport marks a network or connection failure.
	ErrTransport = errors.New("transport failure")

	// ErrProvider marks a non-success response from the completion provider.
	ErrProvider = errors.New("provider error")

	// ErrPersistenceCorruption marks durable state that could not be decoded.
	ErrPersistenceCorruption = errors.New("persisted state is corrupt")
)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// ProviderError is a non-2xx answer from the completion endpoint.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Is reports a match against ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Retryable reports whether the status warrants another attempt.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TransportError wraps a connection-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport failure: %v", e.Err)
	}
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports a match against ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// =============================================================================
// HELPERS
// =============================================================================

// NotFound wraps ErrNotFound with the kind and id of the missing thing.
func NotFound(kind, id string) error {
	return pkgerrors.Wrapf(ErrNotFound, "%s %q", kind, id)
}

// Busy wraps ErrBusy with context.
func Busy(format string, args ...interface{}) error {
	return pkgerrors.Wrapf(ErrBusy, format, args...)
}

// Corrupt wraps ErrPersistenceCorruption with the offending key and cause.
func Corrupt(key string, cause error) error {
	return pkgerrors.WithMessage(
		pkgerrors.Wrapf(ErrPersistenceCorruption, "entry %q", key),
		cause.Error(),
	)
}

// Kind is a coarse error classification.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindBusy
	KindCancelled
	KindTransport
	KindProvider
	KindCorruption
	KindOther
)

var kindNames = map[Kind]string{
	KindNone:       "none",
	KindNotFound:   "not_found",
	KindBusy:       "busy",
	KindCancelled:  "cancelled",
	KindTransport:  "transport",
	KindProvider:   "provider",
	KindCorruption: "corruption",
	KindOther:      "other",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindOf classifies err. A cancelled context counts as a user cancellation.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrUserCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrProvider):
		return KindProvider
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrPersistenceCorruption):
		return KindCorruption
	default:
		return KindOther
	}
}

// UserMessage renders err as a short notice suitable for a terminal.
func UserMessage(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		if pe.Message != "" {
			return fmt.Sprintf("The provider rejected the request (%d): %s", pe.StatusCode, pe.Message)
		}
		return fmt.Sprintf("The provider rejected the request (%d)", pe.StatusCode)
	case errors.Is(err, ErrTransport):
		return "Could not reach the provider. Check your connection and try again."
	case errors.Is(err, ErrBusy):
		return "A response is still streaming. Press Ctrl+C to stop it first."
	case errors.Is(err, ErrNotFound):
		return "That conversation no longer exists."
	default:
		return err.Error()
	}
}
