package util

import (
	"errors"
	"strings"
	"unicode"
)

var ErrUnterminatedQuote = errors.New("unterminated quote")

// Unpacks a slice into arguments
// If the slice has less elements than variables passed in, the rest of the variables are not modified
// If the slice has more elements than the variables passed in, the additional elements are ignored
// Copied and adjusted from https://stackoverflow.com/a/19832661
func Unpack[T any](toUnpack []T, unpackInto ...*T) {
	for i := 0; i < min(len(toUnpack), len(unpackInto)); i++ {
		*unpackInto[i] = toUnpack[i]
	}
}

// SplitArgs splits a command line on whitespace. Single or double quotes group words,
// a backslash outside of single quotes escapes the next character
func SplitArgs(line string) ([]string, error) {
	args := []string{}
	current := strings.Builder{}
	inArg := false
	var quote rune
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case unicode.IsSpace(r):
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
