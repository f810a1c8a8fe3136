package repl

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mstarongithub/twm/util/wrappers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepl(input string) (*Repl, *bytes.Buffer) {
	out := &bytes.Buffer{}
	r := NewRepl(wrappers.NewReaderWrapper(strings.NewReader(input)), wrappers.NewWriterWrapper(out))
	return &r, out
}

func TestRunAnswersEveryLine(t *testing.T) {
	r, out := newTestRepl("one\n\ntwo\n")
	r.Prompt = "> "
	err := r.Run(func(in string, _ *Repl) (string, error) {
		return strings.ToUpper(in), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "> ONE\n> > TWO\n> ", out.String())

	_, err = r.Output.Write([]byte("x"))
	assert.ErrorIs(t, err, wrappers.ErrClosed)
}

func TestRunStopsOnHandlerError(t *testing.T) {
	r, out := newTestRepl("a\nquit\nb\n")
	stop := errors.New("stop")
	seen := []string{}
	err := r.Run(func(in string, _ *Repl) (string, error) {
		seen = append(seen, in)
		if in == "quit" {
			return "bye", stop
		}
		return "ok", nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"a", "quit"}, seen)
	assert.Equal(t, "ok\nbye\n", out.String())

	// Closing twice is fine
	r.Close()
}
