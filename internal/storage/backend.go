// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// ErrKeyNotFound is returned by Get when the key has no value.
var ErrKeyNotFound = errors.New("storage: key not found")

// Backend is a durable byte store keyed by string.
type Backend interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the backend.
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Kind        string
	Dir         string // file backend directory
	SQLitePath  string // sqlite database path
	RedisURL    string // redis://host:port/db
	RedisPrefix string
}

// Open constructs the backend named by opts.Kind.
func Open(opts Options) (Backend, error) {
	switch opts.Kind {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile, "":
		return NewFileBackend(opts.Dir)
	case KindSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.Dir, "relaychat.db")
		}
		return NewSQLiteBackend(path)
	case KindRedis:
		return NewRedisBackend(opts.RedisURL, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// checkKey rejects keys that could escape a directory or collide with
// temp files.
func checkKey(key string) error {
	if key == "" || key[0] == '.' || !validKey.MatchString(key) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
