// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"io"
)

// Framer reads and writes whole protocol messages on one connection.
// Message boundaries are a property of the framing, not of the protocol:
// the line framing delimits by newline, the cpn framing by packet headers.
type Framer interface {
	ReadMessage() (string, error)
	WriteMessage(msg string) error
}

// NewFramerFunc builds a Framer on top of a connection.
type NewFramerFunc func(rw io.ReadWriter) Framer

// ConnHandler serves one simulator connection until it ends.
// The handler owns conn and must close it.
type ConnHandler func(ctx context.Context, conn io.ReadWriteCloser)

// Upstream represents a source of simulator connections.
// It acts as a Server and hands out one connection at a time.
type Upstream interface {
	// Start serves connections and blocks until ctx is done, or until the
	// first connection has been served when the upstream runs once.
	Start(ctx context.Context, handler ConnHandler) error
	Close() error
}
