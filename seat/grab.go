// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package seat

import (
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
)

type MotionEvent struct {
	// Pointer position in space coordinates
	Location generaldata.Point
	// Surface the hit test found under the pointer, may be nil
	Focus *surface.Surface
	// Focus position in space coordinates
	Origin generaldata.Vector2i
	Time   uint32
}

type ButtonEvent struct {
	Button uint32
	State  ipc.ButtonState
	Serial generaldata.Serial
	Time   uint32
}

// AxisFrame collects the scroll amounts of one pointer frame
type AxisFrame struct {
	Source   ipc.AxisSource
	Time     uint32
	Amount   [2]float64
	Discrete [2]int
	has      [2]bool
}

func NewAxisFrame(source ipc.AxisSource, time uint32) AxisFrame {
	return AxisFrame{Source: source, Time: time}
}

// Value sets the continuous amount of an axis
func (f AxisFrame) Value(axis ipc.Axis, amount float64) AxisFrame {
	f.Amount[axis] = amount
	f.has[axis] = true
	return f
}

// WithDiscrete sets the wheel click count of an axis
func (f AxisFrame) WithDiscrete(axis ipc.Axis, steps int) AxisFrame {
	f.Discrete[axis] = steps
	f.has[axis] = true
	return f
}

func (f AxisFrame) Has(axis ipc.Axis) bool {
	return f.has[axis]
}

func (f AxisFrame) IsEmpty() bool {
	return !f.has[ipc.AxisVertical] && !f.has[ipc.AxisHorizontal]
}

// PointerGrab takes over pointer routing while installed. Implementations decide
// where events go and are expected to call the seat's Send helpers or SetPointerFocus
type PointerGrab interface {
	Motion(s *Seat, ev MotionEvent)
	Button(s *Seat, ev ButtonEvent)
	Axis(s *Seat, frame AxisFrame)
	// Called once when the grab is removed or replaced
	Cancel(s *Seat)
}

// SetGrab installs g, cancelling the previous grab
func (s *Seat) SetGrab(g PointerGrab) {
	if prev := s.grab; prev != nil {
		s.grab = nil
		prev.Cancel(s)
	}
	s.grab = g
	logrus.WithField("seat", s.name).Debugln("Pointer grab installed")
}

// UnsetGrab removes the current grab, if any
func (s *Seat) UnsetGrab() {
	prev := s.grab
	if prev == nil {
		return
	}
	s.grab = nil
	prev.Cancel(s)
	logrus.WithField("seat", s.name).Debugln("Pointer grab removed")
}

// ReleaseGrab removes g if it is still the active grab
func (s *Seat) ReleaseGrab(g PointerGrab) {
	if s.grab == g {
		s.UnsetGrab()
	}
}

func (s *Seat) Grab() PointerGrab {
	return s.grab
}

func (s *Seat) IsGrabbed() bool {
	return s.grab != nil
}
