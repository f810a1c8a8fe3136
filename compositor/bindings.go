package compositor

import (
	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/events"
	"github.com/mstarongithub/twm/seat"
	"github.com/sirupsen/logrus"
)

// Linux input keycodes
const (
	keyEscape = 1
	keyF1     = 59
)

// keyBindings is the compositor's own key handling. Only presses with Alt held are looked at,
// everything else goes to the client
func (st *State) keyBindings(ev seat.KeyEvent) seat.FilterResult {
	if ev.State != ipc.KeyPressed || ev.Modifiers&seat.ModAlt == 0 {
		return seat.Forward
	}
	switch ev.Key {
	case keyEscape:
		logrus.Infoln("Quit binding pressed")
		st.Quit("binding")
	case keyF1:
		st.cycleFocus()
	default:
		return seat.Forward
	}
	return seat.Intercept
}

// Quit asks the loop driving the compositor to stop after the current dispatch
func (st *State) Quit(reason string) {
	st.sink.Emit(events.LoopStopping, logrus.Fields{"reason": reason})
	st.stop()
}
