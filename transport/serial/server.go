// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/co2e-gateway/internal/config"
	"github.com/ffutop/co2e-gateway/transport"
)

const defaultTimeout = 500 * time.Millisecond

// Server serves a simulator attached to a serial line.
// The port is opened for a session and reopened for the next one.
type Server struct {
	Config config.SerialConfig
	Once   bool

	// open is replaced in tests.
	open func(cfg *serial.Config) (io.ReadWriteCloser, error)

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewServer creates a new serial Server.
func NewServer(cfg config.SerialConfig, once bool) *Server {
	return &Server{
		Config: cfg,
		Once:   once,
		open: func(cfg *serial.Config) (io.ReadWriteCloser, error) {
			return serial.Open(cfg)
		},
	}
}

// Start opens the port and hands it to handler, repeatedly until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.ConnHandler) error {
	timeout := s.Config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	spConfig := &serial.Config{
		Address:  s.Config.Device,
		BaudRate: s.Config.BaudRate,
		DataBits: s.Config.DataBits,
		StopBits: s.Config.StopBits,
		Parity:   s.Config.Parity,
		Timeout:  timeout, // Read timeout
	}

	for {
		port, err := s.open(spConfig)
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
		}
		s.mu.Lock()
		s.port = port
		s.mu.Unlock()
		slog.Info("Simulator serial line open", "device", s.Config.Device)

		stop := context.AfterFunc(ctx, func() {
			s.Close()
		})
		handler(ctx, &patientPort{ctx: ctx, port: port})
		stop()

		if s.Once || ctx.Err() != nil {
			return nil
		}
	}
}

// Close closes the open port, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

// patientPort retries reads that hit the port's read timeout, so an idle
// simulator does not end its session.
type patientPort struct {
	ctx  context.Context
	port io.ReadWriteCloser
}

func (p *patientPort) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if n > 0 || !errors.Is(err, serial.ErrTimeout) {
			return n, err
		}
		if p.ctx.Err() != nil {
			return 0, p.ctx.Err()
		}
	}
}

func (p *patientPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *patientPort) Close() error {
	return p.port.Close()
}
