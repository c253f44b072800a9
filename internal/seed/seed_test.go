// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/co2e-gateway/internal/config"
	"github.com/ffutop/co2e-gateway/internal/store"
	"github.com/ffutop/co2e-gateway/internal/store/model"
)

const seedFile = `
templates:
  - id: nuclear_energy
    quantity_field: energy
    parameters:
      energy: 100
      energy_unit: kWh
    emission_factor:
      id: f4eeeece-ad93-47c6-b216-b3f01d24afb6
  - id: freight
    endpoint: https://estimate.test/freight
    quantity_field: weight
    parameters:
      weight: 1.50
      weight_unit: t
    emission_factor:
      activity_id: freight_vehicle-vehicle_type_hgv
      region: DE
defaults:
  - id: transport_truck
    factor: 0.25
  - id: packaging
    factor: 3
`

func TestDecode(t *testing.T) {
	s, err := Decode(strings.NewReader(seedFile))
	require.NoError(t, err)

	want := &Seed{
		Templates: []Template{
			{
				ID:             "nuclear_energy",
				QuantityField:  "energy",
				Parameters:     Scalars{"energy": "100", "energy_unit": "kWh"},
				EmissionFactor: Scalars{"id": "f4eeeece-ad93-47c6-b216-b3f01d24afb6"},
			},
			{
				ID:             "freight",
				Endpoint:       "https://estimate.test/freight",
				QuantityField:  "weight",
				Parameters:     Scalars{"weight": "1.50", "weight_unit": "t"},
				EmissionFactor: Scalars{"activity_id": "freight_vehicle-vehicle_type_hgv", "region": "DE"},
			},
		},
		Defaults: []Default{{ID: "transport_truck", Factor: 0.25}, {ID: "packaging", Factor: 3}},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := map[string]string{
		"NestedValue":  "templates:\n  - id: a\n    parameters:\n      energy: [1, 2]\n",
		"NotMapping":   "templates:\n  - id: a\n    parameters: [1]\n",
		"UnknownField": "requests: []\n",
		"BadFactor":    "defaults:\n  - id: a\n    factor: lots\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	s, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, s.Templates)
	assert.Empty(t, s.Defaults)
}

func TestApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedFile), 0644))
	s, err := Load(path)
	require.NoError(t, err)

	st, err := store.Open(config.StoreConfig{Type: "memory", Endpoint: "https://estimate.test/estimate"})
	require.NoError(t, err)
	require.NoError(t, st.UpsertDefault("stale", 1))

	require.NoError(t, Apply(st, s, false))
	ids, err := st.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"nuclear_energy", "freight", "stale", "transport_truck", "packaging"}, ids)

	require.NoError(t, Apply(st, s, true))
	ids, err = st.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"nuclear_energy", "freight", "transport_truck", "packaging"}, ids)

	tpl, err := st.GetTemplate("nuclear_energy")
	require.NoError(t, err)
	if diff := cmp.Diff(model.RequestTemplate{
		ID:             "nuclear_energy",
		Endpoint:       "https://estimate.test/estimate",
		QuantityField:  "energy",
		Parameters:     map[string]string{"energy": "100", "energy_unit": "kWh"},
		FactorSelector: map[string]string{"id": "f4eeeece-ad93-47c6-b216-b3f01d24afb6"},
	}, tpl); diff != "" {
		t.Errorf("GetTemplate() mismatch (-want +got):\n%s", diff)
	}

	tpl, err = st.GetTemplate("freight")
	require.NoError(t, err)
	assert.Equal(t, "https://estimate.test/freight", tpl.Endpoint)

	f, err := st.GetDefault("packaging")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
}

func TestApply_InvalidEntry(t *testing.T) {
	st, err := store.Open(config.StoreConfig{Type: "memory"})
	require.NoError(t, err)

	err = Apply(st, &Seed{Templates: []Template{{ID: "x", Parameters: Scalars{"a": "1"}}}}, false)
	assert.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
