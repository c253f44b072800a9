// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package httpcache

import (
	"context"
	"sync"
)

// MemoryStorage keeps encoded entries in a map (non-persistent).
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string][]byte)}
}

func (ms *MemoryStorage) Get(ctx context.Context, key string) (*Entry, error) {
	ms.mu.RLock()
	data, ok := ms.entries[key]
	ms.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	return decodeEntry(data)
}

func (ms *MemoryStorage) Set(ctx context.Context, key string, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	ms.entries[key] = data
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStorage) Purge(ctx context.Context) error {
	ms.mu.Lock()
	ms.entries = make(map[string][]byte)
	ms.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (ms *MemoryStorage) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

func (ms *MemoryStorage) Close() error {
	return nil
}
