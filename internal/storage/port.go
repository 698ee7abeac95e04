// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/errs"
	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// PERSISTENCE PORT
// =============================================================================

// Keys of the two durable entries.
const (
	KeyConversations = "conversations"
	KeyActive        = "activeConversation"
)

// Port reads and writes the conversation collection through a Backend.
type Port struct {
	backend Backend
	log     log.FieldLogger
}

// NewPort wraps backend. A nil logger uses the logrus standard logger.
func NewPort(backend Backend, logger log.FieldLogger) *Port {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Port{
		backend: backend,
		log:     logger.WithField("component", "storage"),
	}
}

// Backend returns the underlying backend.
func (p *Port) Backend() Backend { return p.backend }

// Load reads the durable state.
//
// The returned snapshot is always usable. A missing conversations entry
// gives an empty collection. An undecodable entry is treated the same way and
// reported through the error, which wraps errs.ErrPersistenceCorruption. An
// active pointer that names no loaded conversation is dropped.
func (p *Port) Load(ctx context.Context) (model.Snapshot, error) {
	snap := model.Snapshot{Conversations: []*model.Conversation{}}
	var loadErr error

	data, err := p.backend.Get(ctx, KeyConversations)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		p.log.Debug("No stored conversations")
	case err != nil:
		return snap, pkgerrors.Wrap(err, "load conversations")
	default:
		convs, decodeErr := decodeConversations(data)
		if decodeErr != nil {
			loadErr = errs.Corrupt(KeyConversations, decodeErr)
			p.log.WithError(decodeErr).Warn("Stored conversations are corrupt, starting empty")
		} else {
			snap.Conversations = convs
		}
	}

	active, err := p.backend.Get(ctx, KeyActive)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return snap, pkgerrors.Wrap(err, "load active conversation")
	default:
		id := strings.TrimSpace(string(active))
		if snap.Find(id) != nil {
			snap.ActiveID = id
		} else if id != "" {
			p.log.WithField("conversation", id).Warn("Dropping active pointer to missing conversation")
		}
	}

	return snap, loadErr
}

// Save writes both entries. An unset active pointer deletes its entry.
func (p *Port) Save(ctx context.Context, snap model.Snapshot) error {
	convs := snap.Conversations
	if convs == nil {
		convs = []*model.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	if err := p.backend.Put(ctx, KeyConversations, data); err != nil {
		return pkgerrors.Wrap(err, "save conversations")
	}

	if snap.ActiveID == "" {
		if err := p.backend.Delete(ctx, KeyActive); err != nil {
			return pkgerrors.Wrap(err, "clear active conversation")
		}
		return nil
	}
	if err := p.backend.Put(ctx, KeyActive, []byte(snap.ActiveID)); err != nil {
		return pkgerrors.Wrap(err, "save active conversation")
	}
	return nil
}

// decodeConversations parses the stored list, dropping null entries and
// repairing fields the rest of the program relies on.
func decodeConversations(data []byte) ([]*model.Conversation, error) {
	var raw []*model.Conversation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	out := make([]*model.Conversation, 0, len(raw))
	for _, c := range raw {
		if c == nil || c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		msgs := make([]*model.Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			if m != nil {
				msgs = append(msgs, m)
			}
		}
		c.Messages = msgs
		if c.Title == "" {
			c.Title = model.DefaultTitle
		}
		out = append(out, c)
	}
	return out, nil
}
