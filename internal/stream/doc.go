// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a user submission into a streamed assistant reply.
//
// A Pipeline runs one submission at a time across the whole program:
//
//	Idle -> Requesting -> Streaming -> Completed | Cancelled | Failed
//
// The Coordinator holds the cancellation token of the running submission.
// Before every content mutation the pipeline checks that its token is still
// valid, so a delta that arrives after Cancel is dropped rather than applied.
//
// # Usage
//
//	p := stream.NewPipeline(store, provider, stream.Options{Notify: printNotice})
//	res, err := p.Submit(ctx, store.ActiveID(), "Hello")
//	if err != nil {
//	    // empty input, busy, or unknown conversation
//	}
//	fmt.Println(res.Status)
//
// Deltas reach the screen through the session store's change notifications,
// not through the pipeline.
package stream
