// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"time"
)

// ErrEmptyMessage is returned by Submit for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Status is the state of one submission.
type Status int

const (
	StatusIdle Status = iota
	StatusRequesting
	StatusStreaming
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRequesting:
		return "requesting"
	case StatusStreaming:
		return "streaming"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Result describes a finished submission.
type Result struct {
	ConversationID   string
	UserMessageID    string
	MessageID        string // assistant message
	Status           Status
	StartedAt        time.Time
	CompletedAt      *time.Time // set only for StatusCompleted
	Deltas           int
	Content          string
	Err              error // provider or transport failure for StatusFailed
	ConversationGone bool  // the conversation was deleted while streaming
}

// NoticeLevel separates neutral notices from errors.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice is a user-visible message emitted at the end of a submission.
type Notice struct {
	Level          NoticeLevel
	ConversationID string
	Text           string
	Err            error
}
