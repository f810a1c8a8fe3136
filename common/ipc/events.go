// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ipc

type KeyState uint32

const (
	KeyReleased KeyState = iota
	KeyPressed
)

type ButtonState uint32

const (
	ButtonReleased ButtonState = iota
	ButtonPressed
)

type Axis uint32

const (
	AxisVertical Axis = iota
	AxisHorizontal
)

type AxisSource uint32

const (
	AxisSourceWheel AxisSource = iota
	AxisSourceFinger
	AxisSourceContinuous
	AxisSourceWheelTilt
)

func (s AxisSource) String() string {
	switch s {
	case AxisSourceWheel:
		return "wheel"
	case AxisSourceFinger:
		return "finger"
	case AxisSourceContinuous:
		return "continuous"
	case AxisSourceWheelTilt:
		return "wheel-tilt"
	default:
		return "unknown"
	}
}

// Toplevel states as sent in configure events
const (
	StateMaximized  = "maximized"
	StateFullscreen = "fullscreen"
	StateResizing   = "resizing"
	StateActivated  = "activated"
)

type (
	// Toplevel configure. A zero size lets the client pick
	Configure struct {
		Surface uint32   `json:"surface"`
		Serial  uint32   `json:"serial"`
		Width   int      `json:"width"`
		Height  int      `json:"height"`
		States  []string `json:"states"`
	}
	ToplevelClose struct {
		Surface uint32 `json:"surface"`
	}
	// Position is relative to the parent's window geometry
	PopupConfigure struct {
		Surface uint32 `json:"surface"`
		Serial  uint32 `json:"serial"`
		X       int    `json:"x"`
		Y       int    `json:"y"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
	}
	PopupDone struct {
		Surface uint32 `json:"surface"`
	}
	PopupRepositioned struct {
		Surface uint32 `json:"surface"`
		Token   uint32 `json:"token"`
	}

	FrameDone struct {
		Callback uint32 `json:"callback"`
		// Milliseconds since the compositor started
		Time uint32 `json:"time"`
	}
	BufferRelease struct {
		Buffer uint32 `json:"buffer"`
	}

	KeyboardEnter struct {
		Serial  uint32   `json:"serial"`
		Surface uint32   `json:"surface"`
		Keys    []uint32 `json:"keys"`
	}
	KeyboardLeave struct {
		Serial  uint32 `json:"serial"`
		Surface uint32 `json:"surface"`
	}
	KeyboardKey struct {
		Serial uint32   `json:"serial"`
		Time   uint32   `json:"time"`
		Key    uint32   `json:"key"`
		State  KeyState `json:"state"`
	}
	KeyboardModifiers struct {
		Serial    uint32 `json:"serial"`
		Depressed uint32 `json:"depressed"`
		Latched   uint32 `json:"latched"`
		Locked    uint32 `json:"locked"`
		Group     uint32 `json:"group"`
	}
	// Rate in keys per second, delay in milliseconds
	KeyboardRepeatInfo struct {
		Rate  int `json:"rate"`
		Delay int `json:"delay"`
	}

	// Coordinates are surface local
	PointerEnter struct {
		Serial  uint32  `json:"serial"`
		Surface uint32  `json:"surface"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
	}
	PointerLeave struct {
		Serial  uint32 `json:"serial"`
		Surface uint32 `json:"surface"`
	}
	PointerMotion struct {
		Time uint32  `json:"time"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
	}
	PointerButton struct {
		Serial uint32      `json:"serial"`
		Time   uint32      `json:"time"`
		Button uint32      `json:"button"`
		State  ButtonState `json:"state"`
	}
	// One axis of a scroll frame. Discrete is only set for wheel clicks
	PointerAxis struct {
		Time     uint32     `json:"time"`
		Axis     Axis       `json:"axis"`
		Value    float64    `json:"value"`
		Discrete int        `json:"discrete,omitempty"`
		Source   AxisSource `json:"source"`
	}
	// Ends a group of pointer events that belong together
	PointerFrame struct{}

	// Sent to the keyboard focus. No mime types means the selection got cleared
	SelectionOffer struct {
		MimeTypes []string `json:"mime_types"`
	}
	DataSourceTarget struct {
		Source   uint32 `json:"source"`
		MimeType string `json:"mime_type"`
	}
	DataSourceAction struct {
		Source uint32    `json:"source"`
		Action DndAction `json:"action"`
	}
	DataSourceCancelled struct {
		Source uint32 `json:"source"`
	}
	DataSourceDropPerformed struct {
		Source uint32 `json:"source"`
	}
	DataSourceFinished struct {
		Source uint32 `json:"source"`
	}

	DndEnter struct {
		Serial        uint32    `json:"serial"`
		Surface       uint32    `json:"surface"`
		X             float64   `json:"x"`
		Y             float64   `json:"y"`
		MimeTypes     []string  `json:"mime_types"`
		SourceActions DndAction `json:"source_actions"`
	}
	DndLeave  struct{}
	DndMotion struct {
		Time uint32  `json:"time"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
	}
	DndDrop         struct{}
	DataOfferAction struct {
		Action DndAction `json:"action"`
	}
)

func (Configure) EventName() string               { return "toplevel.configure" }
func (ToplevelClose) EventName() string           { return "toplevel.close" }
func (PopupConfigure) EventName() string          { return "popup.configure" }
func (PopupDone) EventName() string               { return "popup.done" }
func (PopupRepositioned) EventName() string       { return "popup.repositioned" }
func (FrameDone) EventName() string               { return "frame.done" }
func (BufferRelease) EventName() string           { return "buffer.release" }
func (KeyboardEnter) EventName() string           { return "keyboard.enter" }
func (KeyboardLeave) EventName() string           { return "keyboard.leave" }
func (KeyboardKey) EventName() string             { return "keyboard.key" }
func (KeyboardModifiers) EventName() string       { return "keyboard.modifiers" }
func (KeyboardRepeatInfo) EventName() string      { return "keyboard.repeat_info" }
func (PointerEnter) EventName() string            { return "pointer.enter" }
func (PointerLeave) EventName() string            { return "pointer.leave" }
func (PointerMotion) EventName() string           { return "pointer.motion" }
func (PointerButton) EventName() string           { return "pointer.button" }
func (PointerAxis) EventName() string             { return "pointer.axis" }
func (PointerFrame) EventName() string            { return "pointer.frame" }
func (SelectionOffer) EventName() string          { return "data_device.selection" }
func (DataSourceTarget) EventName() string        { return "data_source.target" }
func (DataSourceAction) EventName() string        { return "data_source.action" }
func (DataSourceCancelled) EventName() string     { return "data_source.cancelled" }
func (DataSourceDropPerformed) EventName() string { return "data_source.dnd_drop_performed" }
func (DataSourceFinished) EventName() string      { return "data_source.dnd_finished" }
func (DndEnter) EventName() string                { return "data_device.enter" }
func (DndLeave) EventName() string                { return "data_device.leave" }
func (DndMotion) EventName() string               { return "data_device.motion" }
func (DndDrop) EventName() string                 { return "data_device.drop" }
func (DataOfferAction) EventName() string         { return "data_offer.action" }
