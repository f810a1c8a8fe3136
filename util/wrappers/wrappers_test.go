package wrappers

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestReaderWrapperClose(t *testing.T) {
	r := NewReaderWrapper(strings.NewReader("hello"))
	buf := make([]byte, 2)
	if n, err := r.Read(buf); err != nil || n != 2 {
		t.Fatalf("expected 2 bytes, got %d, %v", n, err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(buf); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestWriterWrapperKeepsWritesWhole(t *testing.T) {
	out := bytes.Buffer{}
	w := NewWriterWrapper(&out)
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fmt.Fprintf(w, "writer %d line %d\n", i, j)
			}
		}()
	}
	wg.Wait()
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("expected 400 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "writer ") {
			t.Errorf("mangled line %q", line)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if out.Len() == 0 || strings.Contains(out.String(), "late") {
		t.Errorf("write after close reached the wrapped writer")
	}
}
