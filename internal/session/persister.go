// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/storage"
)

// Persister writes every store change through a storage.Port.
//
// Writes happen on the observer call, so durable state follows memory in
// mutation order. A failed write is logged and counted; the in-memory state
// stays authoritative and the next change writes the full snapshot again.
type Persister struct {
	ctx      context.Context
	port     *storage.Port
	log      log.FieldLogger
	failures prometheus.Counter

	writes atomic.Int64
	errors atomic.Int64
}

// NewPersister creates a persister. failures may be nil.
func NewPersister(ctx context.Context, port *storage.Port, logger log.FieldLogger, failures prometheus.Counter) *Persister {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Persister{
		ctx:      context.WithoutCancel(ctx),
		port:     port,
		log:      logger.WithField("component", "persister"),
		failures: failures,
	}
}

// SetFailureCounter attaches a metrics counter for failed writes.
func (p *Persister) SetFailureCounter(c prometheus.Counter) {
	p.failures = c
}

// Observe saves the snapshot carried by c.
func (p *Persister) Observe(c Change) {
	p.writes.Add(1)
	if err := p.port.Save(p.ctx, c.Snapshot); err != nil {
		p.errors.Add(1)
		if p.failures != nil {
			p.failures.Inc()
		}
		p.log.WithError(err).WithFields(log.Fields{
			"change":       c.Kind.String(),
			"conversation": c.ConversationID,
		}).Warn("Failed to persist conversation state")
	}
}

// Writes returns the number of save attempts.
func (p *Persister) Writes() int64 { return p.writes.Load() }

// Failures returns the number of failed saves.
func (p *Persister) Failures() int64 { return p.errors.Load() }
