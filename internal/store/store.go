// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sync"

	"github.com/ffutop/co2e-gateway/internal/config"
	"github.com/ffutop/co2e-gateway/internal/store/model"
	"github.com/ffutop/co2e-gateway/internal/store/persistence"
)

// Kind names the two entry kinds held by the store.
type Kind string

const (
	KindTemplate Kind = "template"
	KindDefault  Kind = "default"
)

// NotFoundError indicates a requested entry does not exist.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e NotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("entry %s not found", e.ID)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Parameter and selector names become XML element names.
var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// Store holds request templates and default multipliers on top of a Storage.
// Every operation loads the document, applies itself and saves it back; the
// mutex serializes operations within the process only.
type Store struct {
	mu       sync.Mutex
	storage  persistence.Storage
	endpoint string
}

// New creates a Store. endpoint is used by UpsertTemplate.
func New(storage persistence.Storage, endpoint string) *Store {
	if endpoint == "" {
		endpoint = config.DefaultEndpoint
	}
	return &Store{
		storage:  storage,
		endpoint: endpoint,
	}
}

// Open creates the storage selected by cfg and wraps it in a Store.
func Open(cfg config.StoreConfig) (*Store, error) {
	var storage persistence.Storage
	switch cfg.Type {
	case "xml", "":
		slog.Debug("Opening configuration store", "type", "xml", "path", cfg.Path)
		storage = persistence.NewFileStorage(cfg.Path)
	case "mmap":
		slog.Debug("Opening configuration store", "type", "mmap", "path", cfg.Path)
		storage = persistence.NewMmapStorage(cfg.Path)
	case "sqlite":
		slog.Debug("Opening configuration store", "type", "sqlite", "dsn", cfg.Path)
		storage = persistence.NewSQLStorage(cfg.Path)
	case "memory":
		slog.Debug("Opening configuration store", "type", "memory")
		storage = persistence.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
	return New(storage, cfg.Endpoint), nil
}

// Close closes the underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}

func (s *Store) read() (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Load()
}

func (s *Store) mutate(fn func(doc *model.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.storage.Load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.storage.Save(doc)
}

// Clear removes every template and default.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Save(model.NewDocument()); err != nil {
		return err
	}
	slog.Debug("Store: requests cleared")
	return nil
}

// UpsertTemplate adds or replaces the template under id, pointing at the
// store's default endpoint.
func (s *Store) UpsertTemplate(id string, parameters, factorSelector map[string]string, quantityField string) error {
	return s.PutTemplate(model.RequestTemplate{
		ID:             id,
		Endpoint:       s.endpoint,
		QuantityField:  quantityField,
		Parameters:     parameters,
		FactorSelector: factorSelector,
	})
}

// PutTemplate adds or replaces t under t.ID. An empty endpoint is replaced
// by the store's default endpoint.
func (s *Store) PutTemplate(t model.RequestTemplate) error {
	t = t.Clone()
	if t.Endpoint == "" {
		t.Endpoint = s.endpoint
	}
	if err := validateTemplate(t); err != nil {
		return err
	}
	err := s.mutate(func(doc *model.Document) error {
		doc.RemoveTemplate(t.ID)
		doc.Templates = append(doc.Templates, t)
		return nil
	})
	if err != nil {
		return err
	}
	slog.Debug("Store: added request template", "id", t.ID, "endpoint", t.Endpoint)
	return nil
}

// UpsertDefault adds or replaces the default multiplier under id.
func (s *Store) UpsertDefault(id string, factor float64) error {
	if id == "" {
		return fmt.Errorf("default id must not be empty")
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("default %s: factor must be finite, got %v", id, factor)
	}
	err := s.mutate(func(doc *model.Document) error {
		doc.RemoveDefault(id)
		doc.Defaults = append(doc.Defaults, model.DefaultEntry{ID: id, Factor: factor})
		return nil
	})
	if err != nil {
		return err
	}
	slog.Debug("Store: added default entry", "id", id, "factor", factor)
	return nil
}

// Delete removes both the template and the default stored under id.
func (s *Store) Delete(id string) error {
	err := s.mutate(func(doc *model.Document) error {
		if doc.RemoveTemplate(id)+doc.RemoveDefault(id) == 0 {
			return NotFoundError{ID: id}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Debug("Store: deleted entry", "id", id)
	return nil
}

// HasTemplate reports whether a template is stored under id.
func (s *Store) HasTemplate(id string) (bool, error) {
	doc, err := s.read()
	if err != nil {
		return false, err
	}
	_, ok := doc.Template(id)
	slog.Debug("Store: check template", "id", id, "found", ok)
	return ok, nil
}

// HasDefault reports whether a default is stored under id.
func (s *Store) HasDefault(id string) (bool, error) {
	doc, err := s.read()
	if err != nil {
		return false, err
	}
	_, ok := doc.Default(id)
	slog.Debug("Store: check default", "id", id, "found", ok)
	return ok, nil
}

// GetTemplate returns a copy of the template stored under id.
func (s *Store) GetTemplate(id string) (model.RequestTemplate, error) {
	doc, err := s.read()
	if err != nil {
		return model.RequestTemplate{}, err
	}
	t, ok := doc.Template(id)
	if !ok {
		return model.RequestTemplate{}, NotFoundError{Kind: KindTemplate, ID: id}
	}
	return t.Clone(), nil
}

// GetDefault returns the multiplier stored under id.
func (s *Store) GetDefault(id string) (float64, error) {
	doc, err := s.read()
	if err != nil {
		return 0, err
	}
	e, ok := doc.Default(id)
	if !ok {
		return 0, NotFoundError{Kind: KindDefault, ID: id}
	}
	return e.Factor, nil
}

// ListIDs returns all template ids followed by all default ids, in storage order.
func (s *Store) ListIDs() ([]string, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.IDs(), nil
}

// Snapshot returns a copy of the whole document.
func (s *Store) Snapshot() (*model.Document, error) {
	return s.read()
}

func validateTemplate(t model.RequestTemplate) error {
	if t.ID == "" {
		return fmt.Errorf("template id must not be empty")
	}
	if !fieldName.MatchString(t.QuantityField) {
		return fmt.Errorf("template %s: invalid quantity field %q", t.ID, t.QuantityField)
	}
	for name := range t.Parameters {
		if !fieldName.MatchString(name) {
			return fmt.Errorf("template %s: invalid parameter name %q", t.ID, name)
		}
	}
	for name := range t.FactorSelector {
		if !fieldName.MatchString(name) {
			return fmt.Errorf("template %s: invalid factor selector name %q", t.ID, name)
		}
	}
	return nil
}
