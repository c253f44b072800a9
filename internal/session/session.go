// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ffutop/co2e-gateway/internal/resolver"
	"github.com/ffutop/co2e-gateway/transport"
)

// State is the position of a session in its lifecycle.
type State int

const (
	AwaitingInit State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingInit:
		return "awaiting-init"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Resolver turns a request id and quantity into a CO2e value.
type Resolver interface {
	Resolve(ctx context.Context, id string, quantity float64) (float64, error)
}

// Session serves one simulator connection.
//
// Requests are handled strictly in order: the reply to a request is written
// before the next one is read. A failed call_v1, malformed or unresolvable,
// is answered with an empty message and the session carries on.
type Session struct {
	ID string

	conn     io.ReadWriteCloser
	framer   transport.Framer
	resolver Resolver
	log      *slog.Logger

	state     State
	closeOnce sync.Once
	closeErr  error
}

// New creates a Session on conn. The session owns conn from now on.
func New(conn io.ReadWriteCloser, newFramer transport.NewFramerFunc, r Resolver) *Session {
	id := uuid.NewString()
	return &Session{
		ID:       id,
		conn:     conn,
		framer:   newFramer(conn),
		resolver: r,
		log:      slog.With("session", id),
		state:    AwaitingInit,
	}
}

// State returns the current state. It is only meaningful from the goroutine
// running the session, or after Run has returned.
func (s *Session) State() State {
	return s.state
}

// Close releases the connection. Only the first call closes it.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Run reads and answers messages until the simulator sends close, the
// connection fails or ctx is cancelled. The connection is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()
	stop := context.AfterFunc(ctx, func() {
		// Unblocks a pending read.
		s.Close()
	})
	defer stop()

	s.log.Info("Session started")
	for {
		msg, err := s.framer.ReadMessage()
		if err != nil {
			s.state = Closed
			if ctx.Err() != nil {
				s.log.Info("Session cancelled")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				s.log.Info("Simulator disconnected")
				return nil
			}
			s.log.Error("Session read failed", "err", err)
			return fmt.Errorf("session %s: %w", s.ID, err)
		}

		done, err := s.handle(ctx, msg)
		if err != nil {
			s.state = Closed
			s.log.Error("Session write failed", "err", err)
			return fmt.Errorf("session %s: %w", s.ID, err)
		}
		if done {
			s.log.Info("Session closed by simulator")
			return nil
		}
	}
}

// handle processes one message and reports whether the session is over.
func (s *Session) handle(ctx context.Context, msg string) (bool, error) {
	cmd, err := Parse(msg)
	if err != nil {
		s.log.Warn("Malformed request", "msg", msg, "err", err)
		return false, s.framer.WriteMessage("")
	}

	switch cmd.Kind {
	case CommandInit:
		s.state = Ready
		return false, s.framer.WriteMessage(MsgConfirmed)

	case CommandClose:
		s.state = Closed
		return true, nil

	case CommandCall:
		value, err := s.resolver.Resolve(ctx, cmd.ID, cmd.Quantity)
		if err != nil {
			s.log.Warn("Resolution failed", "id", cmd.ID, "quantity", cmd.Quantity, "kind", failureKind(err), "err", err)
			return false, s.framer.WriteMessage("")
		}
		s.log.Debug("Resolved", "id", cmd.ID, "quantity", cmd.Quantity, "co2e", value)
		return false, s.framer.WriteMessage(FormatFloat(value))
	}

	s.log.Debug("Ignoring unknown message", "msg", msg)
	return false, nil
}

func failureKind(err error) string {
	switch {
	case resolver.IsNotFound(err):
		return "not-found"
	case resolver.IsUpstream(err):
		return "upstream"
	}
	return "internal"
}

// Handler returns a transport.ConnHandler that runs a Session per connection.
func Handler(r Resolver, newFramer transport.NewFramerFunc) transport.ConnHandler {
	return func(ctx context.Context, conn io.ReadWriteCloser) {
		if err := New(conn, newFramer, r).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Session ended with error", "err", err)
		}
	}
}
