// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"

	r "gopkg.in/redis.v5"
)

// DefaultRedisPrefix namespaces relaychat keys in a shared Redis.
const DefaultRedisPrefix = "_RELAYCHAT_"

// RedisBackend stores values as Redis strings without expiry.
type RedisBackend struct {
	client *r.Client
	prefix string
}

// NewRedisBackend connects using a redis:// URL.
func NewRedisBackend(url, prefix string) (*RedisBackend, error) {
	opts, err := r.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisBackend(r.NewClient(opts), prefix), nil
}

func newRedisBackend(client *r.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) key(k string) string {
	return b.prefix + k
}

// The v5 client has no context support; ctx is only checked up front.

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := b.client.Get(b.key(key)).Bytes()
	if err == r.Nil {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.client.Set(b.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.client.Del(b.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
