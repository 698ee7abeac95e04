// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth gates access to chat features on an external
// "is authenticated" decision. relaychat does not authenticate users itself.
package auth

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/relaychat/internal/storage"
)

// KeyAuthenticated is the durable entry read by BackendGate.
const KeyAuthenticated = "isAuthenticated"

// EnvAuthenticated is the variable read by EnvGate.
const EnvAuthenticated = "RELAYCHAT_AUTHENTICATED"

// ErrUnauthenticated is returned by commands refused by the gate.
var ErrUnauthenticated = errors.New("not authenticated: sign in first")

// Gate answers whether the current user may use chat features.
type Gate interface {
	IsAuthenticated() bool
}

// Require runs deny and returns false when gate refuses. A nil gate allows.
func Require(gate Gate, deny func()) bool {
	if gate == nil || gate.IsAuthenticated() {
		return true
	}
	if deny != nil {
		deny()
	}
	return false
}

// =============================================================================
// GATES
// =============================================================================

// Static always answers the same.
type Static bool

func (s Static) IsAuthenticated() bool { return bool(s) }

// EnvGate reads a boolean environment variable (default RELAYCHAT_AUTHENTICATED).
type EnvGate struct {
	Var string
}

func (g EnvGate) IsAuthenticated() bool {
	name := g.Var
	if name == "" {
		name = EnvAuthenticated
	}
	ok, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && ok
}

// BackendGate reads the isAuthenticated entry from a storage backend. Only
// the exact value "true" counts as authenticated.
type BackendGate struct {
	Backend storage.Backend
	Logger  log.FieldLogger
	Timeout time.Duration
}

func (g BackendGate) IsAuthenticated() bool {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	v, err := g.Backend.Get(ctx, KeyAuthenticated)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) && g.Logger != nil {
			g.Logger.WithError(err).Warn("Could not read authentication state")
		}
		return false
	}
	return string(v) == "true"
}

// SetAuthenticated writes the entry BackendGate reads.
func SetAuthenticated(ctx context.Context, backend storage.Backend, ok bool) error {
	if !ok {
		return backend.Delete(ctx, KeyAuthenticated)
	}
	return backend.Put(ctx, KeyAuthenticated, []byte("true"))
}

// Source names accepted by FromSource.
const (
	SourceEnv     = "env"
	SourceBackend = "backend"
)

// FromSource builds the gate for a configuration. When required is false
// everyone is let through.
func FromSource(required bool, source string, backend storage.Backend, logger log.FieldLogger) (Gate, error) {
	if !required {
		return Static(true), nil
	}
	switch source {
	case SourceEnv, "":
		return EnvGate{}, nil
	case SourceBackend:
		return BackendGate{Backend: backend, Logger: logger}, nil
	default:
		return nil, errors.New("unknown auth source " + strconv.Quote(source))
	}
}
