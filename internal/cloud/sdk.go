// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jeranaias/relaychat/internal/errs"
)

// =============================================================================
// SDK CLIENT
// =============================================================================

// SDKClient implements Provider with the official openai-go client.
// Retries are delegated to the SDK.
type SDKClient struct {
	client  openai.Client
	limiter *rate.Limiter
	log     log.FieldLogger
}

// NewSDKClient creates an SDK-backed provider from the same options as NewClient.
func NewSDKClient(opts Options) *SDKClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	} else if retries < 0 {
		retries = 0
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(opts.BaseURL),
		option.WithMaxRetries(retries),
	}
	logger := opts.Logger.WithField("component", "cloud-sdk")
	if opts.APIKey == "" {
		logger.Info("No API key configured, will try unauthenticated access")
	} else {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &SDKClient{
		client:  openai.NewClient(reqOpts...),
		limiter: newLimiter(opts.RequestsPerSecond, opts.Burst),
		log:     logger,
	}
}

// Stream opens a streaming completion through the SDK.
func (c *SDKClient) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errs.TransportError{Op: "rate limit", Err: err}
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	// Chat.Completions.NewStreaming stops at the first undecodable chunk, so
	// the raw response is read through the SDK's event decoder instead.
	var raw *http.Response
	err := c.client.Post(ctx, "chat/completions", openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    req.Model,
	}, &raw, option.WithJSONSet("stream", true))
	if err != nil {
		if raw != nil && raw.Body != nil {
			raw.Body.Close()
		}
		return nil, c.mapError(ctx, err)
	}
	decoder := ssestream.NewDecoder(raw)
	if decoder == nil {
		return nil, &errs.TransportError{Op: "stream", Err: errors.New("empty response")}
	}

	c.log.WithField("model", req.Model).Debug("Stream opened")
	return &sdkStream{ctx: ctx, decoder: decoder, owner: c}, nil
}

// mapError converts SDK errors into the errs taxonomy.
func (c *SDKClient) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &errs.ProviderError{
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    msg,
		}
	}
	return &errs.TransportError{Op: "stream", Err: err}
}

type sdkStream struct {
	ctx     context.Context
	decoder ssestream.Decoder
	owner   *SDKClient

	delta string
	err   error
	done  bool
}

func (s *sdkStream) Next() bool {
	if s.done {
		return false
	}
	for s.decoder.Next() {
		data := s.decoder.Event().Data
		if bytes.Equal(bytes.TrimSpace(data), doneSentinel) {
			return s.finish(nil)
		}

		var envelope struct {
			Error *apiError `json:"error"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.owner.log.WithError(err).WithField("bytes", len(data)).Warn("Skipping malformed stream chunk")
			continue
		}
		if envelope.Error != nil && envelope.Error.Message != "" {
			return s.finish(&errs.ProviderError{
				StatusCode: http.StatusOK,
				Code:       envelope.Error.code(),
				Message:    envelope.Error.Message,
			})
		}

		var chunk openai.ChatCompletionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.owner.log.WithError(err).WithField("bytes", len(data)).Warn("Skipping malformed stream chunk")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			s.delta = content
			return true
		}
	}

	switch {
	case s.ctx.Err() != nil:
		return s.finish(s.ctx.Err())
	case s.decoder.Err() != nil:
		return s.finish(s.owner.mapError(s.ctx, s.decoder.Err()))
	default:
		s.owner.log.Warn("Stream ended without [DONE]; treating as complete")
		return s.finish(nil)
	}
}

func (s *sdkStream) finish(err error) bool {
	s.done = true
	s.delta = ""
	s.err = err
	s.decoder.Close()
	return false
}

func (s *sdkStream) Delta() string { return s.delta }

func (s *sdkStream) Err() error { return s.err }

func (s *sdkStream) Close() error { return s.decoder.Close() }
