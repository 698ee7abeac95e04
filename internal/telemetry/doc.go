// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exposes relaychat's Prometheus metrics.
//
// Metrics live in their own registry so that several instances (tests, or a
// one-shot command next to a REPL) never collide on registration.
//
//	m := telemetry.New()
//	pipeline := stream.NewPipeline(store, provider, stream.Options{Metrics: m})
//	go m.Serve(ctx, ":9464", logger)
package telemetry
