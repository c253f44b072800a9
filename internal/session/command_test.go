// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package session

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line      string
		want      Command
		malformed bool
	}{
		{"init", Command{Kind: CommandInit}, false},
		{"close", Command{Kind: CommandClose}, false},
		{"call_v1%id_x%10", Command{Kind: CommandCall, ID: "id_x", Quantity: 10}, false},
		{"call_v1%id_x%2.5e3", Command{Kind: CommandCall, ID: "id_x", Quantity: 2500}, false},
		{"call_v1%id_x% 7 ", Command{Kind: CommandCall, ID: "id_x", Quantity: 7}, false},
		{"call_v1%id_x%-0.5", Command{Kind: CommandCall, ID: "id_x", Quantity: -0.5}, false},
		{"call_v1%id_z%abc", Command{Kind: CommandCall, ID: "id_z"}, true},
		{"call_v1%id_z%", Command{Kind: CommandCall, ID: "id_z"}, true},
		{"call_v1%id_z", Command{Kind: CommandCall}, true},
		{"call_v1%a%1%2", Command{Kind: CommandCall}, true},
		{"call_v1%%1", Command{Kind: CommandCall}, true},
		{"call_v1", Command{Kind: CommandUnknown}, false},
		{"call_v2%id%1", Command{Kind: CommandUnknown}, false},
		{"INIT", Command{Kind: CommandUnknown}, false},
		{"", Command{Kind: CommandUnknown}, false},
		{"hello", Command{Kind: CommandUnknown}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.malformed != (err != nil) {
				t.Fatalf("Parse(%q) error = %v, malformed %v", tt.line, err, tt.malformed)
			}
			if err != nil && !errors.Is(err, ErrMalformedRequest) {
				t.Errorf("Parse(%q) error %v does not wrap ErrMalformedRequest", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{25, "25.0"},
		{550, "550.0"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{0.1, "0.1"},
		{2.5, "2.5"},
		{-3.75, "-3.75"},
		{0.1 + 0.2, "0.30000000000000004"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.5e-7, "1.5e-07"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1.25e20, "1.25e+20"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}

	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
