package util

import (
	"errors"
	"slices"
	"testing"
)

func TestUnpack(t *testing.T) {
	var a, b, c string
	Unpack([]string{"one", "two"}, &a, &b, &c)
	if a != "one" || b != "two" || c != "" {
		t.Errorf("short slice: got %q %q %q", a, b, c)
	}
	Unpack([]string{"x", "y", "z", "w"}, &a, &b)
	if a != "x" || b != "y" {
		t.Errorf("long slice: got %q %q", a, b)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"foot", []string{"foot"}},
		{"  foot   -e  htop ", []string{"foot", "-e", "htop"}},
		{`sh -c "echo hi there"`, []string{"sh", "-c", "echo hi there"}},
		{`echo 'a "b"' c\ d`, []string{"echo", `a "b"`, "c d"}},
		{`printf ""`, []string{"printf", ""}},
	}
	for _, test := range tests {
		got, err := SplitArgs(test.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", test.in, err)
			continue
		}
		if !slices.Equal(got, test.want) {
			t.Errorf("%q: got %q, want %q", test.in, got, test.want)
		}
	}
}

func TestSplitArgsUnterminated(t *testing.T) {
	for _, in := range []string{`echo "hi`, `echo 'hi`, `echo \`} {
		if _, err := SplitArgs(in); !errors.Is(err, ErrUnterminatedQuote) {
			t.Errorf("%q: expected ErrUnterminatedQuote, got %v", in, err)
		}
	}
}
