// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync"

	"github.com/jeranaias/relaychat/internal/cloud"
)

// fakeProvider hands out fakeStreams fed by the test.
type fakeProvider struct {
	mu       sync.Mutex
	requests []cloud.Request
	openErr  error
	stream   *fakeStream
}

func (p *fakeProvider) Stream(ctx context.Context, req cloud.Request) (cloud.DeltaStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.stream.ctx = ctx
	return p.stream, nil
}

func (p *fakeProvider) lastRequest() cloud.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

// fakeStream yields whatever arrives on deltas until it is closed, then
// reports endErr. Context cancellation ends it with the context's error
// unless ignoreCancel is set.
type fakeStream struct {
	ctx          context.Context
	deltas       chan string
	endErr       error
	ignoreCancel bool

	delta  string
	err    error
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{deltas: make(chan string)}
}

// scripted returns a stream that yields the given deltas and ends cleanly.
func scripted(deltas ...string) *fakeStream {
	s := &fakeStream{deltas: make(chan string, len(deltas))}
	for _, d := range deltas {
		s.deltas <- d
	}
	close(s.deltas)
	return s
}

func (s *fakeStream) Next() bool {
	done := s.ctx.Done()
	if s.ignoreCancel {
		done = nil
	}
	select {
	case d, ok := <-s.deltas:
		if !ok {
			s.err = s.endErr
			return false
		}
		s.delta = d
		return true
	case <-done:
		s.err = s.ctx.Err()
		return false
	}
}

func (s *fakeStream) Delta() string { return s.delta }
func (s *fakeStream) Err() error    { return s.err }
func (s *fakeStream) Close() error  { s.closed = true; return nil }
