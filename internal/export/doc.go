// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to Markdown, JSON and YAML files.
//
// # Usage
//
//	exporter, err := export.ForFormat("md", nil)
//	path, err := export.ExportToFile(conv, exporter, &export.Options{OutputDir: "."})
//
// JSON output uses the same shape as the persisted conversation list, so an
// exported file can be inspected with the same tools as the state file.
package export
