// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the conversation collection and the active pointer.
//
// The Store is the single writer of conversation state. Every mutation is
// announced to subscribed observers as a Change, synchronously and in the
// order the mutations happened. Persister is the observer that writes each
// change through a storage.Port so that durable state always matches memory.
//
// # Key Types
//
//   - Store: Mutex-guarded conversation collection
//   - Change: One mutation plus a deep copy of the resulting state
//   - Persister: Observer that saves every change
//
// # Usage
//
//	store, err := session.Open(ctx, port, session.Options{DefaultModel: cfg.DefaultModel})
//	id := store.ActiveID()
//	msgID, err := store.AppendUserMessage(id, "Hello")
//
// # Streaming
//
// At most one assistant message in the whole store is open for streaming.
// AppendAssistantPlaceholder opens it, GrowAssistantMessage extends it, and
// CompleteAssistantMessage or ReleaseAssistantMessage closes it.
package session
