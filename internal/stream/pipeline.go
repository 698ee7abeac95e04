// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/cloud"
	"github.com/jeranaias/relaychat/internal/errs"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/session"
	"github.com/jeranaias/relaychat/internal/telemetry"
)

// DefaultHistoryWindow is the number of messages sent as request context.
const DefaultHistoryWindow = 10

// cancelledNotice is shown when the user stops a reply.
const cancelledNotice = "Response stopped."

// Provider opens a delta stream for a request.
type Provider interface {
	Stream(ctx context.Context, req cloud.Request) (cloud.DeltaStream, error)
}

// Options configures a Pipeline.
type Options struct {
	// HistoryWindow is the number of trailing messages sent (default 10).
	HistoryWindow int

	// Coordinator is shared with whoever needs to cancel (default: a new one).
	Coordinator *Coordinator

	Logger  log.FieldLogger
	Metrics *telemetry.Metrics

	// Notify receives the end-of-stream notice for cancelled and failed
	// submissions. It is called outside any lock.
	Notify func(Notice)

	// OnStatus observes every status transition of a submission.
	OnStatus func(conversationID string, status Status)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline runs submissions one at a time.
type Pipeline struct {
	store    *session.Store
	provider Provider
	coord    *Coordinator
	window   int

	log      log.FieldLogger
	metrics  *telemetry.Metrics
	notify   func(Notice)
	onStatus func(string, Status)

	mu      sync.Mutex
	running bool
}

// NewPipeline wires a pipeline to a store and a provider.
func NewPipeline(store *session.Store, provider Provider, opts Options) *Pipeline {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.Coordinator == nil {
		opts.Coordinator = NewCoordinator()
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Notify == nil {
		opts.Notify = func(Notice) {}
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(string, Status) {}
	}

	return &Pipeline{
		store:    store,
		provider: provider,
		coord:    opts.Coordinator,
		window:   opts.HistoryWindow,
		log:      opts.Logger.WithField("component", "pipeline"),
		metrics:  opts.Metrics,
		notify:   opts.Notify,
		onStatus: opts.OnStatus,
	}
}

// Coordinator returns the pipeline's cancellation coordinator.
func (p *Pipeline) Coordinator() *Coordinator { return p.coord }

// Running reports whether a submission is in flight.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Cancel stops the running submission. It returns false when nothing was
// running or it had already been cancelled.
func (p *Pipeline) Cancel() bool {
	return p.coord.Signal()
}

func (p *Pipeline) begin(convID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errs.Busy("another response is streaming")
	}
	if p.store.IsStreaming(convID) {
		return errs.Busy("conversation %s is streaming", convID)
	}
	p.running = true
	return nil
}

func (p *Pipeline) end() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Submit appends text as a user message to conversation convID, streams the
// reply into a new assistant message and returns how it ended.
//
// The returned error covers only rejected submissions: blank text, ErrBusy
// and ErrNotFound. Provider and transport failures end the submission with
// StatusFailed and are reported in Result.Err and through Notify.
func (p *Pipeline) Submit(ctx context.Context, convID, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := p.begin(convID); err != nil {
		return nil, err
	}
	defer p.end()

	userMsgID, err := p.store.AppendUserMessage(convID, text)
	if err != nil {
		return nil, err
	}

	tok := p.coord.Issue(ctx)
	defer p.coord.Clear(tok)

	conv, err := p.store.Conversation(convID)
	if err != nil {
		return nil, err
	}
	req := cloud.Request{Model: conv.Model, Messages: Window(conv.Messages, p.window)}

	msgID, err := p.store.AppendAssistantPlaceholder(convID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ConversationID: convID,
		UserMessageID:  userMsgID,
		MessageID:      msgID,
		StartedAt:      time.Now(),
	}
	logger := p.log.WithFields(log.Fields{
		"conversation": convID,
		"message":      msgID,
		"model":        req.Model,
	})
	p.setStatus(res, StatusRequesting)

	streamErr := p.consume(tok, req, res, logger)
	p.finish(tok, res, streamErr, logger)
	return res, nil
}

// consume opens the provider stream and applies deltas while the token stays
// valid. It returns the stream's terminal error.
func (p *Pipeline) consume(tok *Token, req cloud.Request, res *Result, logger log.FieldLogger) error {
	ds, err := p.provider.Stream(tok.Context(), req)
	if err != nil {
		return err
	}
	defer ds.Close()

	p.setStatus(res, StatusStreaming)
	var content strings.Builder

	for ds.Next() {
		if !p.coord.IsValid(tok) {
			logger.Debug("Dropping delta after cancellation")
			return tokenErr(tok)
		}
		delta := ds.Delta()
		if !p.store.GrowAssistantMessage(res.ConversationID, res.MessageID, delta) {
			res.ConversationGone = true
			logger.Info("Conversation removed while streaming, discarding the rest")
			return nil
		}
		content.WriteString(delta)
		res.Deltas++
		res.Content = content.String()
		p.metrics.ObserveDelta()
	}
	return ds.Err()
}

// tokenErr explains why tok stopped being valid.
func tokenErr(tok *Token) error {
	if err := tok.Context().Err(); err != nil {
		return err
	}
	return errs.ErrUserCancelled
}

// finish closes the assistant message according to how streaming ended.
func (p *Pipeline) finish(tok *Token, res *Result, streamErr error, logger log.FieldLogger) {
	cancelled := tok.Signalled() ||
		errors.Is(streamErr, context.Canceled) ||
		errors.Is(streamErr, context.DeadlineExceeded) ||
		errors.Is(streamErr, errs.ErrUserCancelled)

	switch {
	case res.ConversationGone:
		res.Status = StatusCompleted
	case cancelled:
		p.store.ReleaseAssistantMessage(res.ConversationID, res.MessageID)
		res.Status = StatusCancelled
	case streamErr != nil:
		p.store.ReleaseAssistantMessage(res.ConversationID, res.MessageID)
		res.Status = StatusFailed
		res.Err = streamErr
	default:
		p.store.CompleteAssistantMessage(res.ConversationID, res.MessageID)
		res.Status = StatusCompleted
	}

	if conv, err := p.store.Conversation(res.ConversationID); err == nil {
		if msg := conv.FindMessage(res.MessageID); msg != nil {
			if msg.StartedAt != nil {
				res.StartedAt = *msg.StartedAt
			}
			res.CompletedAt = msg.CompletedAt
		}
	}

	elapsed := time.Since(res.StartedAt)
	p.metrics.ObserveResult(res.Status.String(), elapsed)
	p.onStatus(res.ConversationID, res.Status)

	entry := logger.WithFields(log.Fields{
		"status":  res.Status.String(),
		"deltas":  res.Deltas,
		"elapsed": elapsed.Round(time.Millisecond),
	})
	switch res.Status {
	case StatusCancelled:
		entry.Info("Response cancelled")
		p.notify(Notice{Level: NoticeInfo, ConversationID: res.ConversationID, Text: cancelledNotice})
	case StatusFailed:
		entry.WithError(streamErr).WithField("kind", errs.KindOf(streamErr).String()).Warn("Response failed")
		p.notify(Notice{
			Level:          NoticeError,
			ConversationID: res.ConversationID,
			Text:           errs.UserMessage(streamErr),
			Err:            streamErr,
		})
	default:
		entry.Debug("Response finished")
	}
}

func (p *Pipeline) setStatus(res *Result, s Status) {
	res.Status = s
	p.onStatus(res.ConversationID, s)
}

// =============================================================================
// HISTORY WINDOW
// =============================================================================

// Window converts the trailing size messages into request context. Empty
// assistant messages (placeholders of failed or cancelled replies) are
// skipped before counting. Content is sent untruncated.
func Window(msgs []*model.Message, size int) []cloud.Message {
	kept := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && m.Content == "" {
			continue
		}
		kept = append(kept, m)
	}
	if size > 0 && len(kept) > size {
		kept = kept[len(kept)-size:]
	}

	out := make([]cloud.Message, len(kept))
	for i, m := range kept {
		out[i] = cloud.Message{Role: m.Role.String(), Content: m.Content}
	}
	return out
}
