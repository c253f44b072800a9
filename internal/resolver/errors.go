// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package resolver

import (
	"errors"
	"fmt"
)

// NotFoundError indicates that no tier could resolve a request id.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("no CO2e value found for request id %s", e.ID)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// UpstreamError indicates that a template exists but its live lookup failed.
type UpstreamError struct {
	ID         string
	StatusCode int    // 0 when no response was received
	Message    string // upstream message, if any
	Err        error  // transport or decoding cause, if any
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream lookup for %s failed (status %d): %s", e.ID, e.StatusCode, msg)
	}
	return fmt.Sprintf("upstream lookup for %s failed: %s", e.ID, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream returns true when err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}
