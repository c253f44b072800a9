// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package session

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Simulator message literals.
const (
	MsgInit      = "init"
	MsgClose     = "close"
	MsgConfirmed = "confirmed"
	CallPrefix   = "call_v1"
	callSep      = "%"
)

// ErrMalformedRequest is returned for call_v1 lines that do not fit the grammar.
var ErrMalformedRequest = errors.New("malformed request")

// CommandKind identifies a simulator message.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandInit
	CommandClose
	CommandCall
)

func (k CommandKind) String() string {
	switch k {
	case CommandInit:
		return "init"
	case CommandClose:
		return "close"
	case CommandCall:
		return "call_v1"
	}
	return "unknown"
}

// Command is one decoded simulator message.
type Command struct {
	Kind     CommandKind
	ID       string
	Quantity float64
}

// Parse decodes a simulator message.
//
// Compute requests have the form call_v1%<id>%<quantity>. A line carrying the
// call_v1 prefix that does not parse yields a CommandCall together with an
// error wrapping ErrMalformedRequest. Anything unrecognised is CommandUnknown.
func Parse(line string) (Command, error) {
	switch line {
	case MsgInit:
		return Command{Kind: CommandInit}, nil
	case MsgClose:
		return Command{Kind: CommandClose}, nil
	}
	if !strings.HasPrefix(line, CallPrefix+callSep) {
		return Command{Kind: CommandUnknown}, nil
	}

	cmd := Command{Kind: CommandCall}
	fields := strings.Split(line, callSep)
	if len(fields) != 3 {
		return cmd, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedRequest, len(fields))
	}
	cmd.ID = fields[1]
	if cmd.ID == "" {
		return cmd, fmt.Errorf("%w: empty request id", ErrMalformedRequest)
	}
	q, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return cmd, fmt.Errorf("%w: quantity %q", ErrMalformedRequest, fields[2])
	}
	cmd.Quantity = q
	return cmd, nil
}

// FormatFloat renders v the way the simulator models expect numbers:
// the shortest decimal that round-trips, integral values keep a trailing
// ".0", and magnitudes outside [1e-4, 1e16) use exponent form.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
