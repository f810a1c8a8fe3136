// Package wrappers gives streams like stdin and stdout a Close that only cuts off
// the wrapper, leaving the wrapped stream open for the rest of the process
package wrappers

import (
	"errors"
	"io"
	"sync/atomic"
)

var ErrClosed = errors.New("closed")

type ReaderWrapper struct {
	closed  atomic.Bool
	wrapped io.Reader
}

func NewReaderWrapper(wraps io.Reader) *ReaderWrapper {
	return &ReaderWrapper{wrapped: wraps}
}

// Close implements repl.ReadCloser. Safe to call from any goroutine.
// A Read already blocked on the wrapped reader still returns whatever it gets
func (r *ReaderWrapper) Close() error {
	r.closed.Store(true)
	return nil
}

// Read implements repl.ReadCloser.
func (r *ReaderWrapper) Read(p []byte) (n int, err error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	n, err = r.wrapped.Read(p)
	if r.closed.Load() {
		return 0, ErrClosed
	}
	return n, err
}
