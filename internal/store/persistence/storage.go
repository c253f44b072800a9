// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// Storage defines the interface for persisting the configuration document.
type Storage interface {
	// Load loads the document from storage.
	// If no data exists, it returns a new empty document.
	Load() (*model.Document, error)

	// Save replaces the stored document.
	Save(doc *model.Document) error

	// Close releases any resource held by the storage.
	Close() error
}
