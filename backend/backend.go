// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package backend holds the narrow interfaces the compositor core talks to for input and rendering
package backend

import (
	"errors"
	"image/color"

	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
)

var (
	ErrClosed   = errors.New("backend closed")
	ErrNotBound = errors.New("render target not bound")
)

// InputEvent is one raw event from the input device backend
type InputEvent interface {
	isInputEvent()
}

type KeyboardKey struct {
	// evdev keycode
	Key   uint32
	State ipc.KeyState
	Time  uint32
}

// PointerMotionAbsolute carries a position normalized to [0,1] on both axes
// of the physical output, before the output transform
type PointerMotionAbsolute struct {
	X, Y float64
	Time uint32
}

type PointerButton struct {
	Button uint32
	State  ipc.ButtonState
	Time   uint32
}

// PointerAxis is one scroll event. A zero Amount on an axis with a non zero AmountDiscrete
// means the device only reported wheel clicks
type PointerAxis struct {
	Source         ipc.AxisSource
	Amount         [2]float64
	AmountDiscrete [2]int
	Time           uint32
}

// BackendClosed is sent once when the device backend goes away, e.g. its window got closed
type BackendClosed struct{}

func (KeyboardKey) isInputEvent()           {}
func (PointerMotionAbsolute) isInputEvent() {}
func (PointerButton) isInputEvent()         {}
func (PointerAxis) isInputEvent()           {}
func (BackendClosed) isInputEvent()         {}

// InputBackend hands out whatever input piled up since the last call.
// Dispatch never blocks. It returns ErrClosed once the backend is gone for good
type InputBackend interface {
	Dispatch(handle func(InputEvent)) error
}

// PendingInput is implemented by input backends that can tell whether input waits
// without taking it. Backends without it only get polled on the redraw tick
type PendingInput interface {
	Pending() bool
}

// Renderer draws a frame of render elements onto a target
type Renderer interface {
	// Bind makes the target ready for drawing a frame
	Bind() error
	// WindowSize is the physical size of the target in pixels
	WindowSize() generaldata.Vector2i
	// Render draws elements, back to front, inside the damaged regions. Both are output local and logical
	Render(output *space.Output, elements []space.RenderElement, damage []generaldata.Rect, clear color.Color) error
	// Submit presents the damaged regions of the finished frame
	Submit(damage []generaldata.Rect) error
}

// Backend is a device backend that does both input and output
type Backend interface {
	InputBackend
	Renderer
	// Output describes the display the backend draws to
	Output() *space.Output
	Close() error
}
