package compositor

import (
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/shell"
	"github.com/sirupsen/logrus"
)

// moveGrab drags a window around with the pointer until every button is released.
// Clients see no pointer events while it runs
type moveGrab struct {
	state  *State
	window *shell.Window
	// Pointer position relative to the window's location when the grab started
	offset generaldata.Point
}

func (g *moveGrab) Motion(s *seat.Seat, ev seat.MotionEvent) {
	loc := ev.Location.Sub(g.offset).Floor()
	g.state.space.MoveElement(g.window, loc)
}

func (g *moveGrab) Button(s *seat.Seat, ev seat.ButtonEvent) {
	if ev.State == ipc.ButtonReleased && s.ButtonsHeld() == 0 {
		s.ReleaseGrab(g)
	}
}

func (g *moveGrab) Axis(*seat.Seat, seat.AxisFrame) {}

func (g *moveGrab) Cancel(*seat.Seat) {
	logrus.WithField("window", g.window.Surface().ID()).Debugln("Move ended")
}

// resizeGrab resizes a window from one edge or corner. The side opposite to the grabbed edges stays put,
// which means windows grabbed at the top or left move once the client committed the new size
type resizeGrab struct {
	state  *State
	window *shell.Window
	// Window geometry in space coordinates when the grab started
	box   generaldata.Rect
	edges ipc.Edges
	ended bool
}

// target works out the new window geometry for the pointer at p
func (g *resizeGrab) target(p generaldata.Point) generaldata.Rect {
	left := g.box.Loc.X
	right := g.box.Loc.X + g.box.Size.X
	top := g.box.Loc.Y
	bottom := g.box.Loc.Y + g.box.Size.Y
	px := int(p.X)
	py := int(p.Y)

	if g.edges&ipc.EdgeTop != 0 {
		top = min(py, bottom-1)
	} else if g.edges&ipc.EdgeBottom != 0 {
		bottom = max(py, top+1)
	}
	if g.edges&ipc.EdgeLeft != 0 {
		left = min(px, right-1)
	} else if g.edges&ipc.EdgeRight != 0 {
		right = max(px, left+1)
	}
	size := g.window.ClampSize(generaldata.Vector2i{X: right - left, Y: bottom - top})
	return generaldata.Rect{Loc: generaldata.Vector2i{X: left, Y: top}, Size: size}
}

func (g *resizeGrab) Motion(s *seat.Seat, ev seat.MotionEvent) {
	box := g.target(ev.Location)
	g.window.WithPending(func(state *shell.ToplevelState) {
		state.Size = box.Size
	})
	g.window.SendPendingConfigure()
}

// settle keeps the anchored edges in place after the client committed a new size
func (g *resizeGrab) settle() {
	geo := g.window.Geometry()
	loc := g.box.Loc
	if g.edges&ipc.EdgeLeft != 0 {
		loc.X = g.box.Loc.X + g.box.Size.X - geo.Size.X
	}
	if g.edges&ipc.EdgeTop != 0 {
		loc.Y = g.box.Loc.Y + g.box.Size.Y - geo.Size.Y
	}
	g.state.space.MoveElement(g.window, loc.Sub(geo.Loc))
}

func (g *resizeGrab) Button(s *seat.Seat, ev seat.ButtonEvent) {
	if ev.State == ipc.ButtonReleased && s.ButtonsHeld() == 0 {
		s.ReleaseGrab(g)
	}
}

func (g *resizeGrab) Axis(*seat.Seat, seat.AxisFrame) {}

func (g *resizeGrab) Cancel(*seat.Seat) {
	if g.ended {
		return
	}
	g.ended = true
	// Configures for the last sizes may still be on their way
	g.state.settling = g
	g.window.WithPending(func(state *shell.ToplevelState) {
		state.Set(shell.StateResizing, false)
	})
	g.window.SendPendingConfigure()
	logrus.WithField("window", g.window.Surface().ID()).Debugln("Resize ended")
}
