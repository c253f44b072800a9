// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/co2e-gateway/transport"
)

// Server accepts simulator connections on a TCP address.
// Connections are served one at a time: the next Accept only happens after
// the handler for the current connection has returned.
type Server struct {
	Address string
	// Once stops the server after the first connection has been served.
	Once bool

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new TCP Server.
func NewServer(address string, once bool) *Server {
	return &Server{
		Address: address,
		Once:    once,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.ConnHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer s.Close()
	slog.Info("Simulator TCP server listening", "addr", listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		s.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Check if closed
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		slog.Info("Simulator connected", "addr", conn.RemoteAddr())
		handler(ctx, conn)
		slog.Info("Simulator session ended", "addr", conn.RemoteAddr())

		if s.Once {
			return nil
		}
	}
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}
