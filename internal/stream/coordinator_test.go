// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinator_IssueSignalClear(t *testing.T) {
	c := NewCoordinator()
	assert.False(t, c.Active())
	assert.False(t, c.Signal(), "nothing to signal")

	tok := c.Issue(context.Background())
	assert.True(t, c.Active())
	assert.True(t, c.IsValid(tok))

	assert.True(t, c.Signal())
	assert.False(t, c.Signal(), "signal is idempotent")
	assert.True(t, tok.Signalled())
	assert.False(t, c.IsValid(tok))
	assert.ErrorIs(t, tok.Context().Err(), context.Canceled)

	c.Clear(tok)
	assert.False(t, c.Active())
}

func TestCoordinator_IssueInvalidatesPrevious(t *testing.T) {
	c := NewCoordinator()
	old := c.Issue(context.Background())
	next := c.Issue(context.Background())

	assert.False(t, c.IsValid(old))
	assert.False(t, old.Signalled(), "replacement is not a user cancellation")
	assert.Error(t, old.Context().Err())
	assert.True(t, c.IsValid(next))
	assert.Greater(t, next.Generation(), old.Generation())

	// Clearing a stale token leaves the current one alone.
	c.Clear(old)
	assert.True(t, c.Active())
	assert.True(t, c.IsValid(next))
}

func TestCoordinator_ParentCancellation(t *testing.T) {
	c := NewCoordinator()
	parent, cancel := context.WithCancel(context.Background())
	tok := c.Issue(parent)

	cancel()
	assert.False(t, c.IsValid(tok))
	assert.False(t, tok.Signalled())
}

func TestCoordinator_NilSafety(t *testing.T) {
	c := NewCoordinator()
	assert.False(t, c.IsValid(nil))
	c.Clear(nil)
}

func TestCoordinator_ConcurrentSignal(t *testing.T) {
	c := NewCoordinator()
	c.Issue(context.Background())

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Signal() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
