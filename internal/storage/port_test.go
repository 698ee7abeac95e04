// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relaychat/internal/errs"
	"github.com/jeranaias/relaychat/internal/model"
)

func newTestPort(t *testing.T) (*Port, *MemoryBackend, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	backend := NewMemoryBackend()
	return NewPort(backend, logger), backend, hook
}

func sampleSnapshot() model.Snapshot {
	a := model.NewConversation(model.DefaultModelID)
	a.AppendUser("Explain quantum entanglement simply")
	reply := a.AppendAssistant(time.Now().UTC().Truncate(time.Millisecond))
	reply.Content = "Two particles share a state."
	done := time.Now().UTC().Truncate(time.Millisecond)
	reply.CompletedAt = &done

	b := model.NewConversation("Qwen/Qwen2.5-7B-Instruct")
	return model.Snapshot{Conversations: []*model.Conversation{a, b}, ActiveID: a.ID}
}

func TestPort_SaveLoadRoundTrip(t *testing.T) {
	port, _, _ := newTestPort(t)
	ctx := context.Background()
	want := sampleSnapshot()

	require.NoError(t, port.Save(ctx, want))

	got, err := port.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Conversations, 2)
	assert.Equal(t, want.ActiveID, got.ActiveID)

	for i := range want.Conversations {
		w, g := want.Conversations[i], got.Conversations[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Title, g.Title)
		assert.Equal(t, w.Model, g.Model)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		require.Len(t, g.Messages, len(w.Messages))
		for j := range w.Messages {
			wm, gm := w.Messages[j], g.Messages[j]
			assert.Equal(t, wm.ID, gm.ID)
			assert.Equal(t, wm.Content, gm.Content)
			assert.Equal(t, wm.Role, gm.Role)
			assertSameTime(t, wm.StartedAt, gm.StartedAt)
			assertSameTime(t, wm.CompletedAt, gm.CompletedAt)
		}
	}
}

func assertSameTime(t *testing.T, want, got *time.Time) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %v, got %v", *want, *got)
}

func TestPort_LoadEmpty(t *testing.T) {
	port, _, _ := newTestPort(t)

	snap, err := port.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.ActiveID)
}

func TestPort_LoadCorrupt(t *testing.T) {
	port, backend, hook := newTestPort(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, KeyConversations, []byte(`{not json`)))
	require.NoError(t, backend.Put(ctx, KeyActive, []byte("c1")))

	snap, err := port.Load(ctx)
	assert.True(t, errors.Is(err, errs.ErrPersistenceCorruption), "err = %v", err)
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.ActiveID, "pointer into a corrupt collection is dropped")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestPort_LoadDropsDanglingActive(t *testing.T) {
	port, backend, _ := newTestPort(t)
	ctx := context.Background()

	require.NoError(t, port.Save(ctx, sampleSnapshot()))
	require.NoError(t, backend.Put(ctx, KeyActive, []byte("gone")))

	snap, err := port.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Conversations, 2)
	assert.Empty(t, snap.ActiveID)
}

func TestPort_LoadSkipsNullAndDuplicateEntries(t *testing.T) {
	port, backend, _ := newTestPort(t)
	ctx := context.Background()

	raw := `[null,{"id":"a","title":"","model":"m","messages":[null],"createdAt":"2025-01-01T00:00:00Z"},
		{"id":"a","title":"dup","model":"m","messages":[],"createdAt":"2025-01-01T00:00:00Z"}]`
	require.NoError(t, backend.Put(ctx, KeyConversations, []byte(raw)))

	snap, err := port.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, model.DefaultTitle, snap.Conversations[0].Title)
	assert.Empty(t, snap.Conversations[0].Messages)
}

func TestPort_SaveUnsetActiveDeletesEntry(t *testing.T) {
	port, backend, _ := newTestPort(t)
	ctx := context.Background()

	snap := sampleSnapshot()
	require.NoError(t, port.Save(ctx, snap))

	snap.ActiveID = ""
	require.NoError(t, port.Save(ctx, snap))

	_, err := backend.Get(ctx, KeyActive)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestPort_SaveEmptyWritesList(t *testing.T) {
	port, backend, _ := newTestPort(t)
	ctx := context.Background()

	require.NoError(t, port.Save(ctx, model.Snapshot{}))

	data, err := backend.Get(ctx, KeyConversations)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
