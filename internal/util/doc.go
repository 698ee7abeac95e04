// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the storage, config and CLI layers.
//
//   - WriteFileAtomic: crash-safe replace of a file (temp file, fsync, rename)
//   - TruncateRunes / FitWidth: display truncation that never splits a character
package util
