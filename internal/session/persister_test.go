// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/storage"
)

// failingBackend rejects every write.
type failingBackend struct {
	*storage.MemoryBackend
}

func (failingBackend) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestOpen_AutoCreatesOnEmpty(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	port := storage.NewPort(storage.NewMemoryBackend(), logger)

	s, p, err := Open(ctx, port, Options{Logger: logger})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Len())
	assert.NotEmpty(t, s.ActiveID())
	assert.Equal(t, int64(1), p.Writes())

	snap, err := port.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, s.ActiveID(), snap.ActiveID)
}

func TestOpen_RestoresState(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	port := storage.NewPort(storage.NewMemoryBackend(), logger)

	first, _, err := Open(ctx, port, Options{Logger: logger})
	require.NoError(t, err)
	id := first.ActiveID()
	_, err = first.AppendUserMessage(id, "remember me")
	require.NoError(t, err)
	second := first.CreateConversation()
	require.NoError(t, first.SelectConversation(id))

	restored, _, err := Open(ctx, port, Options{Logger: logger})
	require.NoError(t, err)

	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, id, restored.ActiveID())
	conv, err := restored.Conversation(id)
	require.NoError(t, err)
	assert.Equal(t, "remember me", conv.Title)
	_, err = restored.Conversation(second)
	assert.NoError(t, err)
}

func TestOpen_SelectsNewestWhenNoneActive(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	port := storage.NewPort(storage.NewMemoryBackend(), logger)

	a := model.NewConversation(model.DefaultModelID)
	b := model.NewConversation(model.DefaultModelID)
	require.NoError(t, port.Save(ctx, model.Snapshot{Conversations: []*model.Conversation{a, b}}))

	s, _, err := Open(ctx, port, Options{Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, b.ID, s.ActiveID())
}

func TestOpen_RecoversFromCorruption(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, storage.KeyConversations, []byte("garbage")))
	port := storage.NewPort(backend, logger)

	s, _, err := Open(ctx, port, Options{Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.NotEmpty(t, hook.AllEntries())

	_, err = port.Load(ctx)
	assert.NoError(t, err, "the fresh collection overwrote the corrupt entry")
}

func TestPersister_WriteThroughEveryChange(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	port := storage.NewPort(storage.NewMemoryBackend(), logger)
	s := New(Options{Logger: logger})
	p := NewPersister(ctx, port, logger, nil)
	s.Subscribe(p.Observe)

	id := s.CreateConversation()
	_, _ = s.AppendUserMessage(id, "hi")
	msgID, _ := s.AppendAssistantPlaceholder(id)
	s.GrowAssistantMessage(id, msgID, "partial")

	// Durable state already holds the partial reply before completion.
	snap, err := port.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", snap.Find(id).Messages[1].Content)
	assert.Nil(t, snap.Find(id).Messages[1].CompletedAt)
	assert.Equal(t, int64(4), p.Writes())
}

func TestPersister_FailuresAreCountedNotFatal(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	port := storage.NewPort(failingBackend{storage.NewMemoryBackend()}, logger)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_persist_failures_total"})

	s := New(Options{Logger: logger})
	p := NewPersister(ctx, port, logger, counter)
	s.Subscribe(p.Observe)

	id := s.CreateConversation()
	_, err := s.AppendUserMessage(id, "still works")
	require.NoError(t, err)

	assert.Equal(t, int64(2), p.Failures())
	assert.Equal(t, float64(2), testutil.ToFloat64(counter))
	assert.Len(t, hook.AllEntries(), 2)

	conv, _ := s.Conversation(id)
	assert.Equal(t, "still works", conv.Messages[0].Content)
}
