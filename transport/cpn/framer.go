// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cpn

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CPN Tools packet framing:
//
//	[Header (4, big endian)] [Payload (<= 127)] ... [Header | LastSegment] [Payload]
//
// The header carries the payload length of its segment. Bit 31 marks the
// final segment of a message.
const (
	HeaderSize     = 4
	MaxSegmentSize = 127
	MaxMessageSize = 64 * 1024

	lastSegment = uint32(1) << 31
)

type InvalidLengthError struct {
	Length uint32
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("cpn: invalid segment length: %d", e.Length)
}

// Framer implements the segmented CPN framing.
type Framer struct {
	rw     io.ReadWriter
	header [HeaderSize]byte
}

// NewFramer creates a CPN Framer on rw.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{rw: rw}
}

// ReadMessage reads segments until the final one and returns the joined payload.
func (f *Framer) ReadMessage() (string, error) {
	var msg []byte
	for {
		if _, err := io.ReadFull(f.rw, f.header[:]); err != nil {
			if err == io.ErrUnexpectedEOF || (err == io.EOF && msg != nil) {
				return "", fmt.Errorf("cpn: truncated header: %w", io.ErrUnexpectedEOF)
			}
			return "", err
		}
		header := binary.BigEndian.Uint32(f.header[:])
		length := header &^ lastSegment
		if length > MaxSegmentSize {
			return "", &InvalidLengthError{Length: length}
		}
		if len(msg)+int(length) > MaxMessageSize {
			return "", fmt.Errorf("cpn: message exceeds %d bytes", MaxMessageSize)
		}

		start := len(msg)
		msg = append(msg, make([]byte, length)...)
		if _, err := io.ReadFull(f.rw, msg[start:]); err != nil {
			return "", fmt.Errorf("cpn: truncated payload: %w", err)
		}
		if header&lastSegment != 0 {
			return string(msg), nil
		}
	}
}

// WriteMessage splits msg into segments and writes them in one call.
func (f *Framer) WriteMessage(msg string) error {
	raw := Encode([]byte(msg))
	if _, err := f.rw.Write(raw); err != nil {
		return fmt.Errorf("cpn: write message: %w", err)
	}
	return nil
}

// Encode returns the framed form of payload. An empty payload is a single
// final header with length zero.
func Encode(payload []byte) []byte {
	segments := (len(payload) + MaxSegmentSize - 1) / MaxSegmentSize
	if segments == 0 {
		segments = 1
	}
	raw := make([]byte, 0, len(payload)+segments*HeaderSize)
	for {
		n := len(payload)
		if n > MaxSegmentSize {
			n = MaxSegmentSize
		}
		header := uint32(n)
		if n == len(payload) {
			header |= lastSegment
		}
		raw = binary.BigEndian.AppendUint32(raw, header)
		raw = append(raw, payload[:n]...)
		payload = payload[n:]
		if header&lastSegment != 0 {
			return raw
		}
	}
}
