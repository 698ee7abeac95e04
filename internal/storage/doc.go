// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable key-value persistence for relaychat.
//
// A Backend stores opaque byte values under string keys. Four backends are
// available:
//
//   - MemoryBackend: process-local map, used by tests and --ephemeral
//   - FileBackend: one file per key, replaced atomically
//   - SQLiteBackend: a single kv table in a WAL-mode SQLite database
//   - RedisBackend: string keys under a configurable prefix
//
// Port sits on top of a Backend and reads or writes the conversation
// collection and the active conversation pointer. It holds no business logic.
//
// # Usage
//
//	backend, err := storage.Open(storage.Options{Kind: "file", Dir: dir})
//	port := storage.NewPort(backend, logger)
//	snap, err := port.Load(ctx) // snap is usable even when err != nil
package storage
