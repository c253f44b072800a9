// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package seed imports request templates and defaults from a YAML file.
//
//	templates:
//	  - id: nuclear_energy
//	    quantity_field: energy
//	    parameters:
//	      energy: 100
//	      energy_unit: kWh
//	    emission_factor:
//	      id: f4eeeece-ad93-47c6-b216-b3f01d24afb6
//	defaults:
//	  - id: transport_truck
//	    factor: 0.25
package seed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// Seed is the content of a seed file.
type Seed struct {
	Templates []Template `yaml:"templates"`
	Defaults  []Default  `yaml:"defaults"`
}

// Template is a request template entry. An empty Endpoint means the
// store's default endpoint.
type Template struct {
	ID             string  `yaml:"id"`
	Endpoint       string  `yaml:"endpoint"`
	QuantityField  string  `yaml:"quantity_field"`
	Parameters     Scalars `yaml:"parameters"`
	EmissionFactor Scalars `yaml:"emission_factor"`
}

// Default is a default multiplier entry.
type Default struct {
	ID     string  `yaml:"id"`
	Factor float64 `yaml:"factor"`
}

// Scalars is a flat mapping whose values are kept as written, so that
// `energy: 100` becomes "100" rather than a number.
type Scalars map[string]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Scalars) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	out := make(Scalars, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", value.Line, key.Value)
		}
		out[key.Value] = value.Value
	}
	*s = out
	return nil
}

// Decode reads a Seed from r. An empty input is an empty Seed.
func Decode(r io.Reader) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return &s, nil
}

// Load reads a Seed from the file at path.
func Load(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Target is the write side of the configuration store.
type Target interface {
	Clear() error
	PutTemplate(t model.RequestTemplate) error
	UpsertDefault(id string, factor float64) error
}

// Apply writes every entry of s into t in file order, templates first.
// With clear set, t is emptied beforehand.
func Apply(t Target, s *Seed, clear bool) error {
	if clear {
		if err := t.Clear(); err != nil {
			return fmt.Errorf("seed: clear: %w", err)
		}
	}
	for _, tpl := range s.Templates {
		err := t.PutTemplate(model.RequestTemplate{
			ID:             tpl.ID,
			Endpoint:       tpl.Endpoint,
			QuantityField:  tpl.QuantityField,
			Parameters:     tpl.Parameters,
			FactorSelector: tpl.EmissionFactor,
		})
		if err != nil {
			return fmt.Errorf("seed: template %s: %w", tpl.ID, err)
		}
	}
	for _, d := range s.Defaults {
		if err := t.UpsertDefault(d.ID, d.Factor); err != nil {
			return fmt.Errorf("seed: default %s: %w", d.ID, err)
		}
	}
	slog.Info("Seed applied", "templates", len(s.Templates), "defaults", len(s.Defaults), "cleared", clear)
	return nil
}
