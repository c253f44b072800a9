// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"sync"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// MemoryStorage keeps the document in memory (non-persistent).
type MemoryStorage struct {
	mu  sync.Mutex
	doc *model.Document
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{doc: model.NewDocument()}
}

func (ms *MemoryStorage) Load() (*model.Document, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.doc.Clone(), nil
}

func (ms *MemoryStorage) Save(doc *model.Document) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.doc = doc.Clone()
	return nil
}

func (ms *MemoryStorage) Close() error {
	return nil
}
