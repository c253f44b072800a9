// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	// Pre-allocate a port to avoid racing on reading s.listener
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close() // Close so Server can bind to it immediately
	return addr
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Failed to connect to server after retries, last error: %v", err)
	return nil
}

// echoOnce replies to one line with the same line and closes the connection.
func echoOnce(served *atomic.Int32) func(ctx context.Context, conn io.ReadWriteCloser) {
	return func(ctx context.Context, conn io.ReadWriteCloser) {
		defer conn.Close()
		served.Add(1)
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return
		}
		io.WriteString(conn, line)
	}
}

func TestServer_SequentialSessions(t *testing.T) {
	addr := freeAddr(t)
	s := NewServer(addr, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served atomic.Int32
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(ctx, echoOnce(&served))
	}()

	for i := 0; i < 3; i++ {
		conn := dial(t, addr)
		if _, err := io.WriteString(conn, "init\n"); err != nil {
			t.Fatalf("Failed to write request: %v", err)
		}
		reply, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read response: %v", err)
		}
		if reply != "init\n" {
			t.Errorf("reply = %q, want %q", reply, "init\n")
		}
		conn.Close()
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
	if served.Load() != 3 {
		t.Errorf("served = %d, want 3", served.Load())
	}
}

func TestServer_Once(t *testing.T) {
	addr := freeAddr(t)
	s := NewServer(addr, true)

	var served atomic.Int32
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start(context.Background(), echoOnce(&served))
	}()

	conn := dial(t, addr)
	io.WriteString(conn, "close\n")
	bufio.NewReader(conn).ReadString('\n')
	conn.Close()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after the first session")
	}
	if s.Addr() != nil {
		t.Errorf("listener still open after Start returned")
	}
}

func TestServer_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	s := NewServer(l.Addr().String(), true)
	if err := s.Start(context.Background(), echoOnce(new(atomic.Int32))); err == nil {
		t.Fatal("expected error when address is in use")
	}
}
