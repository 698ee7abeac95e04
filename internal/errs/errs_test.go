// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package errs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	pe := &ProviderError{StatusCode: 401, Message: "bad key"}
	assert.True(t, errors.Is(pe, ErrProvider))
	assert.True(t, errors.Is(fmt.Errorf("open: %w", pe), ErrProvider))
	assert.False(t, errors.Is(pe, ErrTransport))

	te := &TransportError{Op: "dial", Err: io.ErrUnexpectedEOF}
	assert.True(t, errors.Is(te, ErrTransport))
	assert.True(t, errors.Is(te, io.ErrUnexpectedEOF))
	assert.Contains(t, te.Error(), "dial")
}

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			e := &ProviderError{StatusCode: tt.status}
			if got := e.Retryable(); got != tt.want {
				t.Errorf("Retryable() for %d = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"not found", NotFound("conversation", "x"), KindNotFound},
		{"busy", Busy("conversation %s", "x"), KindBusy},
		{"cancelled", ErrUserCancelled, KindCancelled},
		{"context cancelled", pkgerrors.Wrap(context.Canceled, "read"), KindCancelled},
		{"provider", &ProviderError{StatusCode: 500}, KindProvider},
		{"transport", &TransportError{Err: io.EOF}, KindTransport},
		{"corruption", Corrupt("conversations", errors.New("bad json")), KindCorruption},
		{"other", errors.New("boom"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCorruptKeepsCause(t *testing.T) {
	err := Corrupt("conversations", errors.New("unexpected end of JSON input"))
	assert.Contains(t, err.Error(), "conversations")
	assert.Contains(t, err.Error(), "unexpected end of JSON input")
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Contains(t, UserMessage(&ProviderError{StatusCode: 401, Message: "Invalid token"}), "Invalid token")
	assert.Contains(t, UserMessage(&TransportError{Err: io.EOF}), "Could not reach")
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}
