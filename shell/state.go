package shell

import (
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
)

type StateFlags uint8

const (
	StateActivated StateFlags = 1 << iota
	StateMaximized
	StateFullscreen
	StateResizing
)

var stateNames = []struct {
	flag StateFlags
	name string
}{
	{StateMaximized, ipc.StateMaximized},
	{StateFullscreen, ipc.StateFullscreen},
	{StateResizing, ipc.StateResizing},
	{StateActivated, ipc.StateActivated},
}

// Strings returns the wire names of the set flags
func (f StateFlags) Strings() []string {
	out := []string{}
	for _, s := range stateNames {
		if f&s.flag != 0 {
			out = append(out, s.name)
		}
	}
	return out
}

// ToplevelState is what the compositor asks a toplevel to look like
type ToplevelState struct {
	// Zero means the client picks its own size
	Size   generaldata.Vector2i
	States StateFlags
}

func (s ToplevelState) Has(flag StateFlags) bool {
	return s.States&flag != 0
}

func (s *ToplevelState) Set(flag StateFlags, on bool) {
	if on {
		s.States |= flag
	} else {
		s.States &^= flag
	}
}

// Configure is one configure transaction sent to a toplevel
type Configure struct {
	Serial generaldata.Serial
	State  ToplevelState
}

type popupConfigure struct {
	serial generaldata.Serial
	// Relative to the parent's window geometry
	geometry generaldata.Rect
}
