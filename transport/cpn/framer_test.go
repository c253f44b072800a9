// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cpn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

type rw struct {
	io.Reader
	io.Writer
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		headers []uint32
	}{
		{"Empty", "", []uint32{0 | lastSegment}},
		{"Short", "init", []uint32{4 | lastSegment}},
		{"ExactSegment", strings.Repeat("x", 127), []uint32{127 | lastSegment}},
		{"TwoSegments", strings.Repeat("x", 128), []uint32{127, 1 | lastSegment}},
		{"ThreeSegments", strings.Repeat("x", 300), []uint32{127, 127, 46 | lastSegment}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Encode([]byte(tt.payload))
			if want := len(tt.payload) + HeaderSize*len(tt.headers); len(raw) != want {
				t.Fatalf("len(raw) = %d, want %d", len(raw), want)
			}
			offset := 0
			for i, h := range tt.headers {
				got := binary.BigEndian.Uint32(raw[offset:])
				if got != h {
					t.Errorf("header %d = %#x, want %#x", i, got, h)
				}
				offset += HeaderSize + int(h&^lastSegment)
			}
		})
	}
}

func TestFramer_RoundTrip(t *testing.T) {
	var wire bytes.Buffer
	f := NewFramer(rw{&wire, &wire})

	msgs := []string{"init", "", "call_v1%" + strings.Repeat("id", 100) + "%12.5", "close"}
	for _, m := range msgs {
		if err := f.WriteMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range msgs {
		got, err := f.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d = %q, want %q", i, got, want)
		}
	}
	if _, err := f.ReadMessage(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFramer_InvalidInput(t *testing.T) {
	oversized := binary.BigEndian.AppendUint32(nil, 200|lastSegment)

	truncatedPayload := binary.BigEndian.AppendUint32(nil, 10|lastSegment)
	truncatedPayload = append(truncatedPayload, "abc"...)

	// First segment complete, second header missing.
	missingLast := binary.BigEndian.AppendUint32(nil, 3)
	missingLast = append(missingLast, "abc"...)

	tests := []struct {
		name  string
		input []byte
	}{
		{"Oversized", oversized},
		{"TruncatedHeader", []byte{0x80, 0x00}},
		{"TruncatedPayload", truncatedPayload},
		{"MissingLastSegment", missingLast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(rw{bytes.NewReader(tt.input), io.Discard})
			_, err := f.ReadMessage()
			if err == nil || err == io.EOF {
				t.Fatalf("expected framing error, got %v", err)
			}
		})
	}

	f := NewFramer(rw{bytes.NewReader(oversized), io.Discard})
	_, err := f.ReadMessage()
	var lenErr *InvalidLengthError
	if !errors.As(err, &lenErr) || lenErr.Length != 200 {
		t.Errorf("expected InvalidLengthError{200}, got %v", err)
	}
}
