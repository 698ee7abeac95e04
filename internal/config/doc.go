// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for relaychat.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RELAYCHAT_*, SILICONCLOUD_API_KEY)
//   - ~/.relaychat/config.toml
//   - ~/.relaychat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := storage.Open(cfg.StorageOptions())
//
// Watch reloads a file on change so long-running sessions can pick up a new
// default model or log level without restarting.
package config
