// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the relaychat command tree.
//
// Every command opens an app: configuration, logger, storage backend, auth
// gate and the session store. Chat and ask add a streaming pipeline on top
// and print deltas as the store reports them.
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
//
// # Commands Overview
//
//   - chat: Interactive session with slash commands (default)
//   - ask: One question, streamed to stdout
//   - list, show, select, delete, clear: Conversation management
//   - export: Markdown, JSON or YAML export
//   - models: Built-in model catalog
//   - config: show, path, init, get, set, keys
//   - auth: status, login, logout
//
// Conversations can be named by their 1-based position in list, by full id,
// or by a unique prefix or suffix of the id.
package cli
