// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/errs"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
)

// =============================================================================
// STORE
// =============================================================================

// openRef names the single message currently open for streaming.
type openRef struct {
	convID string
	msgID  string
}

// Options configures a Store.
type Options struct {
	// DefaultModel is assigned to new conversations (default: model.DefaultModelID).
	DefaultModel string

	// Logger receives store diagnostics (default: logrus standard logger).
	Logger log.FieldLogger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store owns the ordered conversation collection and the active pointer.
type Store struct {
	mu sync.Mutex

	convs    []*model.Conversation
	byID     map[string]*model.Conversation
	activeID string
	open     *openRef

	defaultModel string

	observers  map[int]Observer
	obsOrder   []int
	nextObsKey int

	log log.FieldLogger
	now func() time.Time
}

// New creates an empty store.
func New(opts Options) *Store {
	return NewFromSnapshot(model.Snapshot{}, opts)
}

// NewFromSnapshot creates a store holding a deep copy of snap. An active
// pointer naming a missing conversation is dropped.
func NewFromSnapshot(snap model.Snapshot, opts Options) *Store {
	if opts.DefaultModel == "" {
		opts.DefaultModel = model.DefaultModelID
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		byID:         make(map[string]*model.Conversation),
		defaultModel: opts.DefaultModel,
		observers:    make(map[int]Observer),
		log:          opts.Logger.WithField("component", "session"),
		now:          opts.Now,
	}
	for _, c := range snap.Clone().Conversations {
		if c == nil || s.byID[c.ID] != nil {
			continue
		}
		s.convs = append(s.convs, c)
		s.byID[c.ID] = c
	}
	if s.byID[snap.ActiveID] != nil {
		s.activeID = snap.ActiveID
	}
	return s
}

// Open loads durable state through port, subscribes a Persister, and makes
// sure there is at least one conversation and an active one.
//
// Corrupt durable state is logged and replaced by an empty collection; other
// load errors are returned.
func Open(ctx context.Context, port *storage.Port, opts Options) (*Store, *Persister, error) {
	snap, err := port.Load(ctx)
	if err != nil {
		if !errors.Is(err, errs.ErrPersistenceCorruption) {
			return nil, nil, err
		}
		logger := opts.Logger
		if logger == nil {
			logger = log.StandardLogger()
		}
		logger.WithError(err).Warn("Recovered from corrupt conversation state")
	}

	s := NewFromSnapshot(snap, opts)
	p := NewPersister(ctx, port, opts.Logger, nil)
	s.Subscribe(p.Observe)

	s.ensureActive()
	return s, p, nil
}

// ensureActive creates a conversation when the collection is empty and
// otherwise selects the newest one when nothing is active.
func (s *Store) ensureActive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(s.convs) == 0:
		s.createLocked()
	case s.activeID == "":
		last := s.convs[len(s.convs)-1]
		s.activeID = last.ID
		s.emitLocked(Change{Kind: ConversationSelected, ConversationID: last.ID})
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscribe registers fn and returns a function that removes it. Observers
// are called in subscription order.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	key := s.nextObsKey
	s.nextObsKey++
	s.observers[key] = fn
	s.obsOrder = append(s.obsOrder, key)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.observers, key)
			for i, k := range s.obsOrder {
				if k == key {
					s.obsOrder = append(s.obsOrder[:i], s.obsOrder[i+1:]...)
					break
				}
			}
		})
	}
}

// emitLocked fills in the snapshot and delivers c to every observer.
// Caller must hold s.mu.
func (s *Store) emitLocked(c Change) {
	if len(s.obsOrder) == 0 {
		return
	}
	c.Snapshot = s.snapshotLocked()
	for _, key := range s.obsOrder {
		s.observers[key](c)
	}
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateConversation adds an empty conversation with the default model and
// makes it active.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *Store) createLocked() string {
	conv := model.NewConversation(s.defaultModel)
	conv.CreatedAt = s.now()
	s.convs = append(s.convs, conv)
	s.byID[conv.ID] = conv
	s.activeID = conv.ID

	s.log.WithField("conversation", conv.ID).Debug("Created conversation")
	s.emitLocked(Change{Kind: ConversationCreated, ConversationID: conv.ID})
	return conv.ID
}

// SelectConversation makes id the active conversation.
func (s *Store) SelectConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byID[id] == nil {
		return errs.NotFound("conversation", id)
	}
	s.activeID = id
	s.emitLocked(Change{Kind: ConversationSelected, ConversationID: id})
	return nil
}

// DeleteConversation removes id. Deleting a missing conversation does
// nothing. An open streaming message in the conversation is closed and the
// active pointer is cleared if it named id.
func (s *Store) DeleteConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byID[id] == nil {
		return
	}
	for i, c := range s.convs {
		if c.ID == id {
			s.convs = append(s.convs[:i], s.convs[i+1:]...)
			break
		}
	}
	delete(s.byID, id)

	if s.open != nil && s.open.convID == id {
		s.open = nil
	}
	if s.activeID == id {
		s.activeID = ""
	}

	s.log.WithField("conversation", id).Debug("Deleted conversation")
	s.emitLocked(Change{Kind: ConversationDeleted, ConversationID: id})
}

// ClearAll removes every conversation and clears the active pointer.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs = nil
	s.byID = make(map[string]*model.Conversation)
	s.activeID = ""
	s.open = nil
	s.emitLocked(Change{Kind: CollectionCleared})
}

// SetModel changes the model of conversation id. It fails with ErrBusy while
// that conversation is streaming.
func (s *Store) SetModel(id, modelID string) error {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return errors.New("model id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.byID[id]
	if conv == nil {
		return errs.NotFound("conversation", id)
	}
	if s.open != nil && s.open.convID == id {
		return errs.Busy("conversation %s is streaming", id)
	}
	conv.Model = modelID
	s.emitLocked(Change{Kind: ModelChanged, ConversationID: id})
	return nil
}

// SetDefaultModel changes the model given to conversations created from now on.
func (s *Store) SetDefaultModel(modelID string) {
	if modelID == "" {
		return
	}
	s.mu.Lock()
	s.defaultModel = modelID
	s.mu.Unlock()
}

// DefaultModel returns the model given to new conversations.
func (s *Store) DefaultModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultModel
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendUserMessage appends a user message to conversation id. The first
// message of a conversation sets its title.
func (s *Store) AppendUserMessage(id, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.byID[id]
	if conv == nil {
		return "", errs.NotFound("conversation", id)
	}
	if s.open != nil && s.open.convID == id {
		return "", errs.Busy("conversation %s is streaming", id)
	}

	msg := conv.AppendUser(text)
	s.emitLocked(Change{Kind: MessageAppended, ConversationID: id, MessageID: msg.ID})
	return msg.ID, nil
}

// AppendAssistantPlaceholder appends an empty assistant message stamped with
// its start time and opens it for streaming. Only one message may be open in
// the whole store.
func (s *Store) AppendAssistantPlaceholder(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.byID[id]
	if conv == nil {
		return "", errs.NotFound("conversation", id)
	}
	if s.open != nil {
		return "", errs.Busy("a message in conversation %s is streaming", s.open.convID)
	}

	msg := conv.AppendAssistant(s.now())
	s.open = &openRef{convID: id, msgID: msg.ID}
	s.emitLocked(Change{Kind: MessageAppended, ConversationID: id, MessageID: msg.ID})
	return msg.ID, nil
}

// openMessageLocked returns the message if (convID, msgID) is the open one.
func (s *Store) openMessageLocked(convID, msgID string) *model.Message {
	if s.open == nil || s.open.convID != convID || s.open.msgID != msgID {
		return nil
	}
	conv := s.byID[convID]
	if conv == nil {
		return nil
	}
	return conv.FindMessage(msgID)
}

// GrowAssistantMessage appends delta to the open message. It does nothing
// and returns false when the message is gone or no longer open.
func (s *Store) GrowAssistantMessage(convID, msgID, delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.openMessageLocked(convID, msgID)
	if msg == nil {
		return false
	}
	if delta == "" {
		return true
	}
	msg.Content += delta
	s.emitLocked(Change{Kind: MessageGrown, ConversationID: convID, MessageID: msgID, Delta: delta})
	return true
}

// CompleteAssistantMessage stamps the completion time on the open message
// and closes it. It returns false when the message is not open.
func (s *Store) CompleteAssistantMessage(convID, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.openMessageLocked(convID, msgID)
	if msg == nil {
		return false
	}
	done := s.now()
	msg.CompletedAt = &done
	s.open = nil
	s.emitLocked(Change{Kind: MessageCompleted, ConversationID: convID, MessageID: msgID})
	return true
}

// ReleaseAssistantMessage closes the open message without a completion time.
// Partial content is kept. It returns false when the message is not open.
func (s *Store) ReleaseAssistantMessage(convID, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openMessageLocked(convID, msgID) == nil {
		return false
	}
	s.open = nil
	s.emitLocked(Change{Kind: MessageReleased, ConversationID: convID, MessageID: msgID})
	return true
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a deep copy of the whole store.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{
		Conversations: make([]*model.Conversation, len(s.convs)),
		ActiveID:      s.activeID,
	}
	for i, c := range s.convs {
		snap.Conversations[i] = c.Clone()
	}
	return snap
}

// Conversation returns a copy of conversation id.
func (s *Store) Conversation(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.byID[id]
	if conv == nil {
		return nil, errs.NotFound("conversation", id)
	}
	return conv.Clone(), nil
}

// Conversations returns copies of all conversations in display order.
func (s *Store) Conversations() []*model.Conversation {
	return s.Snapshot().Conversations
}

// ActiveID returns the active conversation id, or "" when none is active.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// IsStreaming reports whether conversation id holds the open message.
func (s *Store) IsStreaming(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open != nil && s.open.convID == id
}

// Streaming returns the open message, if any.
func (s *Store) Streaming() (convID, msgID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return "", "", false
	}
	return s.open.convID, s.open.msgID, true
}

// History returns copies of the messages of conversation id.
func (s *Store) History(id string) ([]*model.Message, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
