// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package line

import (
	"bufio"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single line, excluding the delimiter.
const MaxMessageSize = 64 * 1024

// Framer delimits messages by '\n'. A trailing '\r' is dropped on read.
type Framer struct {
	scanner *bufio.Scanner
	w       io.Writer
}

// NewFramer creates a newline Framer on rw.
func NewFramer(rw io.ReadWriter) *Framer {
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, 4096), MaxMessageSize)
	return &Framer{
		scanner: scanner,
		w:       rw,
	}
}

// ReadMessage returns the next line. A final line without delimiter is
// returned as a message; io.EOF follows once the input is drained.
func (f *Framer) ReadMessage() (string, error) {
	if f.scanner.Scan() {
		return f.scanner.Text(), nil
	}
	if err := f.scanner.Err(); err != nil {
		return "", fmt.Errorf("line: read message: %w", err)
	}
	return "", io.EOF
}

// WriteMessage writes msg followed by '\n'.
func (f *Framer) WriteMessage(msg string) error {
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	if _, err := f.w.Write(buf); err != nil {
		return fmt.Errorf("line: write message: %w", err)
	}
	return nil
}
