// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/co2e-gateway/internal/config"
)

// timeoutOnce returns serial.ErrTimeout on its first read, then delegates.
type timeoutOnce struct {
	net.Conn
	timedOut atomic.Bool
}

func (p *timeoutOnce) Read(b []byte) (int, error) {
	if !p.timedOut.Swap(true) {
		return 0, serial.ErrTimeout
	}
	return p.Conn.Read(b)
}

func TestServer_Once(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	var opened *serial.Config
	s := NewServer(config.SerialConfig{Device: "/dev/ttyTEST", BaudRate: 9600, Parity: "N"}, true)
	s.open = func(cfg *serial.Config) (io.ReadWriteCloser, error) {
		opened = cfg
		return &timeoutOnce{Conn: local}, nil
	}

	got := make(chan string, 1)
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(context.Background(), func(ctx context.Context, conn io.ReadWriteCloser) {
			defer conn.Close()
			buf := make([]byte, 4)
			n, _ := io.ReadFull(conn, buf)
			got <- string(buf[:n])
		})
	}()

	if _, err := remote.Write([]byte("init")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-got:
		if msg != "init" {
			t.Errorf("handler read %q, want %q", msg, "init")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not receive data")
	}
	if err := <-errChan; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if opened.Address != "/dev/ttyTEST" || opened.BaudRate != 9600 || opened.Timeout != defaultTimeout {
		t.Errorf("unexpected serial config: %+v", opened)
	}
}

func TestServer_OpenError(t *testing.T) {
	s := NewServer(config.SerialConfig{Device: "/dev/missing"}, false)
	s.open = func(cfg *serial.Config) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	if err := s.Start(context.Background(), func(context.Context, io.ReadWriteCloser) {}); err == nil {
		t.Fatal("expected open error")
	}
}
