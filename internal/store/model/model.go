// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import "maps"

// RequestTemplate identifies one externally computable emission factor.
type RequestTemplate struct {
	ID string
	// Endpoint is the URL the estimate call is posted to.
	Endpoint string
	// QuantityField names the parameter that carries the caller's quantity.
	QuantityField string
	// Parameters are the fixed call parameters.
	Parameters map[string]string
	// FactorSelector identifies the emission factor to apply.
	FactorSelector map[string]string
}

// Clone returns a deep copy of the template.
func (t RequestTemplate) Clone() RequestTemplate {
	t.Parameters = maps.Clone(t.Parameters)
	t.FactorSelector = maps.Clone(t.FactorSelector)
	if t.Parameters == nil {
		t.Parameters = map[string]string{}
	}
	if t.FactorSelector == nil {
		t.FactorSelector = map[string]string{}
	}
	return t
}

// DefaultEntry is a constant CO2e-per-unit multiplier.
type DefaultEntry struct {
	ID     string
	Factor float64
}

// Document is the full content of the configuration store.
// Order of both slices is storage order.
type Document struct {
	Templates []RequestTemplate
	Defaults  []DefaultEntry
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{
		Templates: make([]RequestTemplate, 0, len(d.Templates)),
		Defaults:  make([]DefaultEntry, len(d.Defaults)),
	}
	for _, t := range d.Templates {
		c.Templates = append(c.Templates, t.Clone())
	}
	copy(c.Defaults, d.Defaults)
	return c
}

// Template returns the first template stored under id.
func (d *Document) Template(id string) (RequestTemplate, bool) {
	for _, t := range d.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return RequestTemplate{}, false
}

// Default returns the first default entry stored under id.
func (d *Document) Default(id string) (DefaultEntry, bool) {
	for _, e := range d.Defaults {
		if e.ID == id {
			return e, true
		}
	}
	return DefaultEntry{}, false
}

// RemoveTemplate removes every template stored under id and reports how many were removed.
func (d *Document) RemoveTemplate(id string) int {
	kept := d.Templates[:0]
	for _, t := range d.Templates {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	n := len(d.Templates) - len(kept)
	d.Templates = kept
	return n
}

// RemoveDefault removes every default entry stored under id and reports how many were removed.
func (d *Document) RemoveDefault(id string) int {
	kept := d.Defaults[:0]
	for _, e := range d.Defaults {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	n := len(d.Defaults) - len(kept)
	d.Defaults = kept
	return n
}

// IDs returns all template ids followed by all default ids.
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Templates)+len(d.Defaults))
	for _, t := range d.Templates {
		ids = append(ids, t.ID)
	}
	for _, e := range d.Defaults {
		ids = append(ids, e.ID)
	}
	return ids
}
