// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package httpcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ffutop/co2e-gateway/internal/config"
)

// RedisStorage keeps entries in redis under a key prefix, without TTL.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(cfg config.RedisConfig) *RedisStorage {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStorage{
		client: rdb,
		prefix: cfg.Prefix,
	}
}

func (s *RedisStorage) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("httpcache: redis get: %w", err)
	}
	return decodeEntry(data)
}

func (s *RedisStorage) Set(ctx context.Context, key string, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("httpcache: redis set: %w", err)
	}
	return nil
}

// Purge deletes every key under the prefix.
func (s *RedisStorage) Purge(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("httpcache: redis del: %w", err)
		}
	}
	return iter.Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
