// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to an OpenAI-compatible chat completion endpoint.
//
// Both clients stream: Stream opens the request and returns a DeltaStream
// that yields content fragments lazily, in arrival order.
//
// # Key Types
//
//   - Client: net/http client with its own SSE reader, retry and rate limiting
//   - SDKClient: the same contract on top of github.com/openai/openai-go
//   - DeltaStream: pull-based sequence of content deltas
//
// # Usage
//
//	client := cloud.NewClient(cloud.Options{BaseURL: cfg.Provider.BaseURL, APIKey: key})
//	stream, err := client.Stream(ctx, cloud.Request{Model: model, Messages: window})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Delta())
//	}
//	return stream.Err()
//
// # Errors
//
// A non-2xx answer becomes *errs.ProviderError. A connection or read failure
// becomes *errs.TransportError. Cancelling the context yields the context's
// error. Opening a stream is retried on connection errors, 429 and 5xx; once
// the stream is returned no retry happens.
//
// The API key is sent only in the Authorization header and is never logged.
package cloud
