// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// =============================================================================
// CANCELLATION TOKEN
// =============================================================================

// Token is the cancellation handle of one submission.
type Token struct {
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	signalled atomic.Bool
}

// Context is cancelled when the token is signalled, replaced or cleared.
func (t *Token) Context() context.Context { return t.ctx }

// Signalled reports whether the user asked to stop this submission.
func (t *Token) Signalled() bool { return t.signalled.Load() }

// Generation numbers tokens in issue order.
func (t *Token) Generation() uint64 { return t.gen }

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns the single current token.
type Coordinator struct {
	mu      sync.Mutex
	current *Token
	gen     uint64
}

// NewCoordinator creates a coordinator with no current token.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Issue creates a fresh token derived from parent and makes it current. A
// previous token is invalidated and its context cancelled, but it is not
// marked as signalled.
func (c *Coordinator) Issue(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.cancel()
	}
	c.gen++
	tok := &Token{gen: c.gen, ctx: ctx, cancel: cancel}
	c.current = tok
	return tok
}

// Signal marks the current token as user-cancelled and aborts its context.
// It returns false when there is nothing to cancel or the token was already
// signalled.
func (c *Coordinator) Signal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return false
	}
	if !c.current.signalled.CompareAndSwap(false, true) {
		return false
	}
	c.current.cancel()
	return true
}

// IsValid reports whether tok is current, not signalled and its context is live.
func (c *Coordinator) IsValid(tok *Token) bool {
	if tok == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == tok && !tok.signalled.Load() && tok.ctx.Err() == nil
}

// Clear releases tok's context and empties the slot if tok is still current.
func (c *Coordinator) Clear(tok *Token) {
	if tok == nil {
		return
	}
	tok.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == tok {
		c.current = nil
	}
}

// Active reports whether a token is current.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}
