// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jeranaias/relaychat/internal/errs"
)

// sharedStreamingClient has no overall timeout; streams are bounded by their context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	MaxRetries int // extra attempts when opening; negative disables retries

	// RetryBaseDelay is the first backoff delay (default 500ms).
	RetryBaseDelay time.Duration

	// RequestsPerSecond and Burst pace request opening. Zero rate means unlimited.
	RequestsPerSecond float64
	Burst             int

	HTTPClient *http.Client
	Logger     log.FieldLogger
	UserAgent  string
}

// Client streams chat completions over plain net/http.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryBase  time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	log        log.FieldLogger
	userAgent  string
}

// NewClient creates a client. Zero-valued options take defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = sharedStreamingClient
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "relaychat"
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBaseDelay,
		limiter:    newLimiter(opts.RequestsPerSecond, opts.Burst),
		httpClient: opts.HTTPClient,
		log:        opts.Logger.WithField("component", "cloud"),
		userAgent:  opts.UserAgent,
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// BaseURL returns the endpoint root.
func (c *Client) BaseURL() string { return c.baseURL }

// HasAPIKey reports whether a key is configured.
func (c *Client) HasAPIKey() bool { return c.apiKey != "" }

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Stream opens a streaming completion.
//
// Opening is retried with exponential backoff on connection failures, 429
// and 5xx responses. A Retry-After header on 429 is honoured when longer than
// the backoff delay.
func (c *Client) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	body, err := json.Marshal(chatRequest{Model: req.Model, Messages: req.Messages, Stream: true})
	if err != nil {
		return nil, errors.New("encode request: " + err.Error())
	}

	logger := c.log.WithFields(log.Fields{"model": req.Model, "messages": len(req.Messages)})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(c.retryBase, attempt)
			var ra *retryAfterError
			if errors.As(lastErr, &ra) && ra.retryAfter > delay {
				delay = ra.retryAfter
			}
			logger.WithError(lastErr).WithFields(log.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("Retrying completion request")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &errs.TransportError{Op: "rate limit", Err: err}
		}

		stream, err := c.open(ctx, body)
		if err == nil {
			logger.WithField("attempt", attempt).Debug("Stream opened")
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, unwrapRetryAfter(err)
		}
		lastErr = err
	}
	return nil, unwrapRetryAfter(lastErr)
}

// open performs one attempt.
func (c *Client) open(ctx context.Context, body []byte) (*sseStream, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errs.TransportError{Op: "build request", Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Op: "connect", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, providerError(resp, data)
	}

	return newSSEStream(ctx, resp.Body, c.log), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// providerError converts a non-2xx response into a *errs.ProviderError.
func providerError(resp *http.Response, body []byte) error {
	pe := &errs.ProviderError{StatusCode: resp.StatusCode}

	var wrapper struct {
		Error   *apiError   `json:"error"`
		Message string      `json:"message"`
		Code    interface{} `json:"code"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil {
		switch {
		case wrapper.Error != nil && wrapper.Error.Message != "":
			pe.Message = wrapper.Error.Message
			pe.Code = wrapper.Error.code()
		case wrapper.Message != "":
			// SiliconFlow answers {"code":20015,"message":"..."}
			pe.Message = wrapper.Message
			if wrapper.Code != nil {
				pe.Code = (&apiError{Code: wrapper.Code}).code()
			}
		}
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(body))
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &retryAfterError{ProviderError: pe, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	return pe
}

// retryAfterError carries the server's Retry-After hint alongside a 429.
type retryAfterError struct {
	*errs.ProviderError
	retryAfter time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.ProviderError }

func unwrapRetryAfter(err error) error {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.ProviderError
	}
	return err
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// retryable reports whether opening should be attempted again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *errs.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return errors.Is(err, errs.ErrTransport)
}

// =============================================================================
// SSE DELTA STREAM
// =============================================================================

type sseStream struct {
	ctx    context.Context
	body   io.ReadCloser
	reader *SSEReader
	log    log.FieldLogger

	delta string
	err   error
	done  bool

	closeOnce sync.Once
}

func newSSEStream(ctx context.Context, body io.ReadCloser, logger log.FieldLogger) *sseStream {
	return &sseStream{
		ctx:    ctx,
		body:   body,
		reader: NewSSEReader(body),
		log:    logger,
	}
}

func (s *sseStream) Next() bool {
	if s.done {
		return false
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return s.finish(err)
		}

		_, data, err := s.reader.ReadEvent()
		if err != nil {
			if s.ctx.Err() != nil {
				return s.finish(s.ctx.Err())
			}
			if err == io.EOF {
				s.log.Warn("Stream ended without [DONE]; treating as complete")
				return s.finish(nil)
			}
			return s.finish(&errs.TransportError{Op: "read stream", Err: err})
		}

		if bytes.Equal(bytes.TrimSpace(data), doneSentinel) {
			return s.finish(nil)
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.log.WithError(err).WithField("bytes", len(data)).Warn("Skipping malformed stream chunk")
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return s.finish(&errs.ProviderError{
				StatusCode: http.StatusOK,
				Code:       chunk.Error.code(),
				Message:    chunk.Error.Message,
			})
		}

		if content := chunk.content(); content != "" {
			s.delta = content
			return true
		}
	}
}

func (s *sseStream) finish(err error) bool {
	s.done = true
	s.delta = ""
	s.err = err
	s.Close()
	return false
}

func (s *sseStream) Delta() string { return s.delta }

func (s *sseStream) Err() error { return s.err }

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
