// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/jeranaias/relaychat/internal/model"

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind int

const (
	ConversationCreated ChangeKind = iota
	ConversationSelected
	ConversationDeleted
	CollectionCleared
	MessageAppended
	MessageGrown
	MessageCompleted
	MessageReleased
	ModelChanged
)

var changeKindNames = [...]string{
	ConversationCreated:  "conversation_created",
	ConversationSelected: "conversation_selected",
	ConversationDeleted:  "conversation_deleted",
	CollectionCleared:    "collection_cleared",
	MessageAppended:      "message_appended",
	MessageGrown:         "message_grown",
	MessageCompleted:     "message_completed",
	MessageReleased:      "message_released",
	ModelChanged:         "model_changed",
}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "unknown"
}

// Change describes one store mutation.
//
// Snapshot is a deep copy of the whole store taken right after the mutation,
// so observers may keep or inspect it freely.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	MessageID      string
	Delta          string // MessageGrown only
	Snapshot       model.Snapshot
}

// Observer receives changes. Observers run while the store lock is held and
// must not call back into the Store; everything they need is in the Change.
type Observer func(Change)
