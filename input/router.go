// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package input turns raw backend input into seat events: hit-testing, click to focus
// and scroll normalization happen here
package input

import (
	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/events"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/shell"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
)

// DefaultScrollFactor turns one wheel click into a continuous scroll distance
const DefaultScrollFactor = 3.0

type Router struct {
	space  *space.Space[*shell.Window]
	seat   *seat.Seat
	output *space.Output
	sink   events.Sink

	filter       seat.KeyFilter
	scrollFactor float64
}

func New(sp *space.Space[*shell.Window], st *seat.Seat, output *space.Output, sink events.Sink) *Router {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Router{
		space:        sp,
		seat:         st,
		output:       output,
		sink:         sink,
		scrollFactor: DefaultScrollFactor,
	}
}

// SetKeyFilter installs the filter every key goes through before reaching a client
func (r *Router) SetKeyFilter(filter seat.KeyFilter) {
	r.filter = filter
}

func (r *Router) SetScrollFactor(factor float64) {
	r.scrollFactor = factor
}

// Process applies one input event. Returns true when the backend reported it closed
func (r *Router) Process(ev backend.InputEvent) bool {
	switch e := ev.(type) {
	case backend.KeyboardKey:
		r.seat.Key(e.Key, e.State, e.Time, r.filter)
	case backend.PointerMotionAbsolute:
		r.motion(e)
	case backend.PointerButton:
		r.button(e)
	case backend.PointerAxis:
		r.axis(e)
	case backend.BackendClosed:
		logrus.Infoln("Input backend closed")
		return true
	default:
		logrus.WithField("event", ev).Warnln("Unknown input event")
	}
	return false
}

// toSpace maps a normalized device position onto the router's output in space coordinates
func (r *Router) toSpace(x, y float64) generaldata.Point {
	geo, ok := r.space.OutputGeometry(r.output)
	if !ok {
		geo = generaldata.Rect{Size: r.output.LogicalSize()}
	}
	p := r.output.Transform().TransformNormalized(generaldata.Point{X: x, Y: y})
	return generaldata.Point{
		X: float64(geo.Loc.X) + p.X*float64(geo.Size.X),
		Y: float64(geo.Loc.Y) + p.Y*float64(geo.Size.Y),
	}
}

// SurfaceUnder hit-tests the space. origin is the found surface's position in space coordinates
func (r *Router) SurfaceUnder(p generaldata.Point) (w *shell.Window, surf *surface.Surface, origin generaldata.Vector2i) {
	w, loc, ok := r.space.ElementUnder(p)
	if !ok {
		return nil, nil, generaldata.Vector2i{}
	}
	surf, offset, ok := w.Under(p.Sub(loc.ToPoint()))
	if !ok {
		return w, nil, generaldata.Vector2i{}
	}
	return w, surf, loc.Add(offset)
}

func (r *Router) motion(e backend.PointerMotionAbsolute) {
	p := r.toSpace(e.X, e.Y)
	_, surf, origin := r.SurfaceUnder(p)
	r.seat.Motion(p, surf, origin, e.Time)
}

// button does click to focus before the button reaches any client. A press on a window raises
// and focuses it, a press on nothing drops keyboard focus. Grabs skip all of that
func (r *Router) button(e backend.PointerButton) {
	if e.State == ipc.ButtonPressed && !r.seat.IsGrabbed() {
		w, surf, origin := r.SurfaceUnder(r.seat.PointerLocation())
		r.seat.SetPointerFocus(surf, origin)
		r.FocusWindow(w)
	}
	r.seat.Button(e.Button, e.State, e.Time)
}

// FocusWindow raises and activates w, deactivates every other window and gives w keyboard focus.
// nil clears focus and deactivates everything
func (r *Router) FocusWindow(w *shell.Window) {
	old := r.seat.KeyboardFocus()
	if w != nil {
		r.space.RaiseElement(w, true)
		if focus := r.seat.KeyboardFocus(); focus == nil || focus.Root() != w.Surface() {
			r.seat.SetKeyboardFocus(w.Surface())
		}
	} else {
		for _, other := range r.space.Elements() {
			other.SetActivated(false)
		}
		r.seat.SetKeyboardFocus(nil)
	}
	if now := r.seat.KeyboardFocus(); now != old {
		r.sink.Emit(events.FocusChanged, logrus.Fields{
			"from": surfaceID(old),
			"to":   surfaceID(now),
		})
	}
}

func surfaceID(s *surface.Surface) surface.ID {
	if s == nil {
		return 0
	}
	return s.ID()
}

// axis merges both axes into one frame. Wheel clicks without a continuous amount
// are scaled into one
func (r *Router) axis(e backend.PointerAxis) {
	frame := seat.NewAxisFrame(e.Source, e.Time)
	for _, axis := range []ipc.Axis{ipc.AxisVertical, ipc.AxisHorizontal} {
		amount := e.Amount[axis]
		discrete := e.AmountDiscrete[axis]
		if amount == 0 && discrete != 0 {
			amount = float64(discrete) * r.scrollFactor
		}
		if amount == 0 && discrete == 0 {
			continue
		}
		frame = frame.Value(axis, amount)
		if discrete != 0 {
			frame = frame.WithDiscrete(axis, discrete)
		}
	}
	r.seat.Axis(frame)
}
