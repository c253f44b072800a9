// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// Files written by the earlier tooling have no indentation, no declaration
// and may interleave APIRequest and Default elements.
const legacyFile = `<Configuration><Requests><Default id="id_a">0.25</Default><APIRequest id="id_b" quantity_name="energy"><Endpoint>https://beta4.api.climatiq.io/estimate</Endpoint><Parameters><energy>100</energy><energy_unit>kWh</energy_unit></Parameters><Emission_factor><id>f4eeeece-ad93-47c6-b216-b3f01d24afb6</id></Emission_factor></APIRequest><Default id="id_c">3</Default></Requests></Configuration>`

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *model.Document
		wantErr bool
	}{
		{"Empty", "", &model.Document{}, false},
		{"Whitespace", " \n", &model.Document{}, false},
		{"NoRequests", "<Configuration/>", &model.Document{}, false},
		{"EmptyRequests", "<Configuration><Requests /></Configuration>", &model.Document{}, false},
		{"Legacy", legacyFile, &model.Document{
			Templates: []model.RequestTemplate{{
				ID:             "id_b",
				Endpoint:       "https://beta4.api.climatiq.io/estimate",
				QuantityField:  "energy",
				Parameters:     map[string]string{"energy": "100", "energy_unit": "kWh"},
				FactorSelector: map[string]string{"id": "f4eeeece-ad93-47c6-b216-b3f01d24afb6"},
			}},
			Defaults: []model.DefaultEntry{{ID: "id_a", Factor: 0.25}, {ID: "id_c", Factor: 3}},
		}, false},
		{"EmptyGroups", `<Configuration><Requests><APIRequest id="x" quantity_name="q"><Endpoint>u</Endpoint><Parameters/><Emission_factor/></APIRequest></Requests></Configuration>`, &model.Document{
			Templates: []model.RequestTemplate{{
				ID: "x", Endpoint: "u", QuantityField: "q",
				Parameters: map[string]string{}, FactorSelector: map[string]string{},
			}},
		}, false},
		{"WrongRoot", "<Other/>", nil, true},
		{"BadFactor", `<Configuration><Requests><Default id="x">n/a</Default></Requests></Configuration>`, nil, true},
		{"Truncated", "<Configuration><Requests>", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeDocument([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeDocument() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decodeDocument() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeDecodeDocument(t *testing.T) {
	doc, err := decodeDocument([]byte(legacyFile))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := encodeDocument(doc)
	if err != nil {
		t.Fatal(err)
	}
	again, err := decodeDocument(raw)
	if err != nil {
		t.Fatalf("re-decode failed: %v\n%s", err, raw)
	}
	if diff := cmp.Diff(doc, again); diff != "" {
		t.Errorf("document changed after re-encoding (-want +got):\n%s", diff)
	}
}
