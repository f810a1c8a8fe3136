// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

type MessageHandler func(string, *Repl) (string, error)

// ReadCloser combines the Reader and Closer interfaces
type ReadCloser interface {
	io.Reader
	io.Closer
}

type Repl struct {
	Input  ReadCloser
	Output io.WriteCloser
	// Written before every line of input is read. Empty means no prompt
	Prompt    string
	scanner   *bufio.Scanner
	writer    *bufio.Writer
	closeOnce *sync.Once
}

// Creates a new repl
// If no input is given, stdin will be used
// If no output is given, stdout will be used
// Note: The given reader and writer will be closed if the repl is started and then stops
func NewRepl(in ReadCloser, out io.WriteCloser) Repl {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return Repl{
		Input:     in,
		Output:    out,
		scanner:   bufio.NewScanner(in),
		writer:    bufio.NewWriter(out),
		closeOnce: &sync.Once{},
	}
}

func (r *Repl) write(text string) error {
	if text == "" {
		return nil
	}
	if _, err := r.writer.WriteString(text); err != nil {
		return fmt.Errorf("failed to write \"%s\": %w", text, err)
	}
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// Starts the repl
// Blocks execution until the repl closes
// All input will be passed to the handler func. Empty results are not written
// If it receives an error from the message handler or during writing, it calls Close
func (r *Repl) Run(onMessage MessageHandler) error {
	if err := r.write(r.Prompt); err != nil {
		r.Close()
		return err
	}
	for r.scanner.Scan() {
		newMessage := r.scanner.Text()
		res, err := onMessage(newMessage, r)
		if res != "" {
			res += "\n"
		}
		if err != nil {
			// Still show what the handler had to say about stopping
			_ = r.write(res)
			r.Close()
			return fmt.Errorf("message handler errored out on message \"%s\": %w", newMessage, err)
		}
		if err = r.write(res + r.Prompt); err != nil {
			r.Close()
			return err
		}
	}
	r.Close()
	return r.scanner.Err()
}

// Close stops the repl if it was still running
// This will also close the reader and writer. Calling it more than once does nothing
func (r *Repl) Close() {
	r.closeOnce.Do(func() {
		r.Input.Close()
		r.Output.Close()
	})
}
