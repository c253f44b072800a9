// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// MmapStorage reads the XML file through a read-only memory mapping.
// Writes go through the same atomic replace as FileStorage, so a mapping
// is never written to and never outlives a single Load.
type MmapStorage struct {
	FileStorage
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		FileStorage: FileStorage{path: path},
	}
}

// Load maps the file and decodes the document from the mapping.
func (ms *MmapStorage) Load() (*model.Document, error) {
	f, err := os.Open(ms.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewDocument(), nil
		}
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// Zero-length files cannot be mapped.
	if fi.Size() == 0 {
		return model.NewDocument(), nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	defer data.Unmap()

	return decodeDocument(data)
}
