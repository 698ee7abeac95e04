// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a conversation.
//
// StartedAt is set when an assistant placeholder is created. CompletedAt is set
// once streaming for that message finishes successfully; a cancelled or failed
// response keeps its partial content and leaves CompletedAt nil.
type Message struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:      NewID(),
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantPlaceholder creates an empty assistant message started at the given time.
func NewAssistantPlaceholder(startedAt time.Time) *Message {
	return &Message{
		ID:        NewID(),
		Role:      RoleAssistant,
		StartedAt: &startedAt,
	}
}

// IsCompleted reports whether the message finished streaming successfully.
func (m *Message) IsCompleted() bool {
	return m.CompletedAt != nil
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// NewID returns a time-ordered unique identifier (UUIDv7), so lexical and
// creation order agree.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		return uuid.NewString()
	}
	return id.String()
}
