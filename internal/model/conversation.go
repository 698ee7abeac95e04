// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a titled, ordered sequence of messages bound to one model.
//
// Messages are append-only. The only in-place change allowed is growth of the
// trailing assistant message while it is open for streaming, which is tracked
// by the session store rather than on the conversation itself.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Model     string     `json:"model"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewConversation creates an empty conversation using the given model.
func NewConversation(modelID string) *Conversation {
	return &Conversation{
		ID:        NewID(),
		Title:     DefaultTitle,
		Model:     modelID,
		Messages:  []*Message{},
		CreatedAt: time.Now(),
	}
}

// AppendUser appends a user message and derives the title when it is the
// first message of the conversation.
func (c *Conversation) AppendUser(content string) *Message {
	msg := NewUserMessage(content)
	if len(c.Messages) == 0 {
		c.Title = DeriveTitle(content)
	}
	c.Messages = append(c.Messages, msg)
	return msg
}

// AppendAssistant appends an empty assistant placeholder started at the given time.
func (c *Conversation) AppendAssistant(startedAt time.Time) *Message {
	msg := NewAssistantPlaceholder(startedAt)
	c.Messages = append(c.Messages, msg)
	return msg
}

// FindMessage returns the message with the given ID, or nil.
func (c *Conversation) FindMessage(id string) *Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// LastMessage returns the trailing message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty reports whether the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Preview returns a short preview of the first user message for list views.
func (c *Conversation) Preview() string {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return DeriveTitle(m.Content)
		}
	}
	return ""
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		clone.Messages[i] = m.Clone()
	}
	return &clone
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the full durable state: every conversation in display order
// and the active pointer ("" when unset).
type Snapshot struct {
	Conversations []*Conversation
	ActiveID      string
}

// Find returns the conversation with the given ID, or nil.
func (s Snapshot) Find(id string) *Conversation {
	for _, c := range s.Conversations {
		if c != nil && c.ID == id {
			return c
		}
	}
	return nil
}

// Clone returns a deep copy of the snapshot. Nil entries are dropped.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Conversations: make([]*Conversation, 0, len(s.Conversations)),
		ActiveID:      s.ActiveID,
	}
	for _, c := range s.Conversations {
		if c == nil {
			continue
		}
		out.Conversations = append(out.Conversations, c.Clone())
	}
	return out
}
