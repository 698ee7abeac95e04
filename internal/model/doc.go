// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the session store, the
// persistence port and the streaming pipeline.
//
// # Key Types
//
//   - Conversation: Titled, ordered sequence of messages with a model selection
//   - Message: Single turn with role, content and optional lifecycle timestamps
//   - Snapshot: The full conversation collection plus the active pointer
//   - ModelInfo: Catalog entry for a provider model
//
// # Usage
//
// Create a conversation and append a message:
//
//	conv := model.NewConversation(model.DefaultModelID)
//	conv.AppendUser("Hello!")
//	fmt.Println(conv.Title) // "Hello!"
//
// Derive a display title directly:
//
//	model.DeriveTitle("a fairly long first question") // "a fairly long first ..."
package model
