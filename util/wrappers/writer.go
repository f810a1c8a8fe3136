package wrappers

import (
	"io"
	"sync"
)

// WriterWrapper serializes writes, so output from several goroutines
// (say the console and an event watcher) never interleaves within one Write
type WriterWrapper struct {
	lock     sync.Mutex
	isClosed bool
	wrapped  io.Writer
}

func NewWriterWrapper(wraps io.Writer) *WriterWrapper {
	return &WriterWrapper{wrapped: wraps}
}

func (w *WriterWrapper) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.isClosed = true
	return nil
}

func (w *WriterWrapper) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.isClosed {
		return 0, ErrClosed
	}
	return w.wrapped.Write(p)
}
