// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package seat tracks keyboard and pointer focus, pointer grabs and the serials
// that authorize client requests, and forwards input to the focused clients.
package seat

import (
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
)

// Modifiers uses the usual xkb modifier bits
type Modifiers uint32

const (
	ModShift Modifiers = 1 << 0
	ModCaps  Modifiers = 1 << 1
	ModCtrl  Modifiers = 1 << 2
	ModAlt   Modifiers = 1 << 3
	ModLogo  Modifiers = 1 << 6
)

// Linux input keycodes of the modifier keys
var modifierKeys = map[uint32]Modifiers{
	42:  ModShift,
	54:  ModShift,
	29:  ModCtrl,
	97:  ModCtrl,
	56:  ModAlt,
	100: ModAlt,
	125: ModLogo,
	126: ModLogo,
}

const keyCapsLock = 58

type FilterResult int

const (
	Forward FilterResult = iota
	Intercept
)

type KeyEvent struct {
	Key       uint32
	State     ipc.KeyState
	Time      uint32
	Serial    generaldata.Serial
	Modifiers Modifiers
}

// KeyFilter decides whether a key goes to the focused client
type KeyFilter func(ev KeyEvent) FilterResult

type FocusHook func(old, new *surface.Surface)

type Seat struct {
	name    string
	sender  ipc.Sender
	serials *generaldata.SerialCounter

	keyboardFocus *surface.Surface
	pressedKeys   []uint32
	modifiers     Modifiers
	repeatRate    int
	repeatDelay   int
	focusHooks    []FocusHook

	pointerLoc generaldata.Point
	// Pointer focus and its position in space coordinates
	pointerFocus  *surface.Surface
	pointerOrigin generaldata.Vector2i
	// Held buttons and the serial of their press
	pressed map[uint32]generaldata.Serial
	grab    PointerGrab

	lastInputSerial generaldata.Serial
}

func New(name string, sender ipc.Sender, serials *generaldata.SerialCounter) *Seat {
	return &Seat{
		name:        name,
		sender:      sender,
		serials:     serials,
		pressed:     make(map[uint32]generaldata.Serial),
		repeatRate:  25,
		repeatDelay: 600,
	}
}

func (s *Seat) Name() string {
	return s.name
}

// NextInputSerial hands out the serial for a new input event and remembers it as the latest
func (s *Seat) NextInputSerial() generaldata.Serial {
	s.lastInputSerial = s.serials.Next()
	return s.lastInputSerial
}

// NextSerial hands out a serial for events that are not input, like enter and leave
func (s *Seat) NextSerial() generaldata.Serial {
	return s.serials.Next()
}

func (s *Seat) LastInputSerial() generaldata.Serial {
	return s.lastInputSerial
}

// ValidateInputSerial reports whether serial is the one of the newest input event
func (s *Seat) ValidateInputSerial(serial generaldata.Serial) bool {
	return serial != 0 && serial == s.lastInputSerial
}

// ValidateButtonSerial reports whether serial belongs to a button press that is still held
// while the pointer is over the tree of surf. Guards move, resize and drag requests
func (s *Seat) ValidateButtonSerial(surf *surface.Surface, serial generaldata.Serial) bool {
	if serial == 0 || s.pointerFocus == nil || s.pointerFocus.Root() != surf.Root() {
		return false
	}
	for _, pressSerial := range s.pressed {
		if pressSerial == serial {
			return true
		}
	}
	return false
}

func (s *Seat) ButtonsHeld() int {
	return len(s.pressed)
}

func (s *Seat) SetRepeatInfo(rate, delay int) {
	s.repeatRate = rate
	s.repeatDelay = delay
}

func (s *Seat) Modifiers() Modifiers {
	return s.modifiers
}

func (s *Seat) KeyboardFocus() *surface.Surface {
	return s.keyboardFocus
}

// OnKeyboardFocus registers a hook that runs after every keyboard focus change
func (s *Seat) OnKeyboardFocus(hook FocusHook) {
	s.focusHooks = append(s.focusHooks, hook)
}

// SetKeyboardFocus moves keyboard focus to surf, nil clears it. Nothing happens if surf already has it
func (s *Seat) SetKeyboardFocus(surf *surface.Surface) {
	if surf != nil && surf.Destroyed() {
		surf = nil
	}
	old := s.keyboardFocus
	if old == surf {
		return
	}
	if old != nil && old.Alive() {
		s.sender.Send(old.Client(), ipc.KeyboardLeave{
			Serial:  uint32(s.serials.Next()),
			Surface: old.ObjectID(),
		})
	}
	s.keyboardFocus = surf
	if surf != nil {
		client := surf.Client()
		s.sender.Send(client, ipc.KeyboardRepeatInfo{Rate: s.repeatRate, Delay: s.repeatDelay})
		s.sender.Send(client, ipc.KeyboardEnter{
			Serial:  uint32(s.serials.Next()),
			Surface: surf.ObjectID(),
			Keys:    append([]uint32{}, s.pressedKeys...),
		})
		s.sendModifiers()
	}
	logrus.WithFields(logrus.Fields{
		"seat":  s.name,
		"focus": surfaceID(surf),
	}).Debugln("Keyboard focus changed")
	for _, hook := range s.focusHooks {
		hook(old, surf)
	}
}

// Key updates the keyboard state and forwards the key to the keyboard focus unless filter intercepts it.
// Modifier changes reach the client either way
func (s *Seat) Key(key uint32, state ipc.KeyState, time uint32, filter KeyFilter) FilterResult {
	serial := s.NextInputSerial()
	oldMods := s.modifiers
	s.updateKeys(key, state)

	ev := KeyEvent{
		Key:       key,
		State:     state,
		Time:      time,
		Serial:    serial,
		Modifiers: s.modifiers,
	}
	result := Forward
	if filter != nil {
		result = filter(ev)
	}

	if focus := s.keyboardFocus; focus != nil && focus.Alive() {
		if result == Forward {
			s.sender.Send(focus.Client(), ipc.KeyboardKey{
				Serial: uint32(serial),
				Time:   time,
				Key:    key,
				State:  state,
			})
		}
		if oldMods != s.modifiers {
			s.sendModifiers()
		}
	}
	return result
}

func (s *Seat) updateKeys(key uint32, state ipc.KeyState) {
	held := -1
	for i, k := range s.pressedKeys {
		if k == key {
			held = i
			break
		}
	}
	switch state {
	case ipc.KeyPressed:
		if held < 0 {
			s.pressedKeys = append(s.pressedKeys, key)
		}
		if mod, ok := modifierKeys[key]; ok {
			s.modifiers |= mod
		}
		if key == keyCapsLock {
			s.modifiers ^= ModCaps
		}
	case ipc.KeyReleased:
		if held >= 0 {
			s.pressedKeys = append(s.pressedKeys[:held], s.pressedKeys[held+1:]...)
		}
		if mod, ok := modifierKeys[key]; ok && !s.modifierHeld(mod) {
			s.modifiers &^= mod
		}
	}
}

func (s *Seat) modifierHeld(mod Modifiers) bool {
	for _, k := range s.pressedKeys {
		if modifierKeys[k] == mod {
			return true
		}
	}
	return false
}

func (s *Seat) sendModifiers() {
	focus := s.keyboardFocus
	if focus == nil {
		return
	}
	locked := s.modifiers & ModCaps
	s.sender.Send(focus.Client(), ipc.KeyboardModifiers{
		Serial:    uint32(s.serials.Next()),
		Depressed: uint32(s.modifiers &^ ModCaps),
		Locked:    uint32(locked),
	})
}

func (s *Seat) PointerLocation() generaldata.Point {
	return s.pointerLoc
}

// PointerFocus returns the surface under the pointer and where it sits in space coordinates
func (s *Seat) PointerFocus() (*surface.Surface, generaldata.Vector2i) {
	return s.pointerFocus, s.pointerOrigin
}

// Motion moves the pointer to loc. focus is whatever the hit test found there (may be nil),
// origin is that surface's position in space coordinates. An active grab decides what happens with it
func (s *Seat) Motion(loc generaldata.Point, focus *surface.Surface, origin generaldata.Vector2i, time uint32) {
	s.pointerLoc = loc
	ev := MotionEvent{Location: loc, Focus: focus, Origin: origin, Time: time}
	if s.grab != nil {
		s.grab.Motion(s, ev)
		return
	}
	s.SetPointerFocus(focus, origin)
	s.SendMotion(time)
}

// SetPointerFocus sends leave and enter when the surface under the pointer changes
func (s *Seat) SetPointerFocus(focus *surface.Surface, origin generaldata.Vector2i) {
	if focus != nil && focus.Destroyed() {
		focus = nil
	}
	if focus == s.pointerFocus {
		s.pointerOrigin = origin
		return
	}
	if old := s.pointerFocus; old != nil && old.Alive() {
		s.sender.Send(old.Client(), ipc.PointerLeave{
			Serial:  uint32(s.serials.Next()),
			Surface: old.ObjectID(),
		})
		s.sender.Send(old.Client(), ipc.PointerFrame{})
	}
	s.pointerFocus = focus
	s.pointerOrigin = origin
	if focus != nil {
		local := s.pointerLoc.Sub(origin.ToPoint())
		s.sender.Send(focus.Client(), ipc.PointerEnter{
			Serial:  uint32(s.serials.Next()),
			Surface: focus.ObjectID(),
			X:       local.X,
			Y:       local.Y,
		})
	}
}

// SendMotion tells the pointer focus where the pointer is now
func (s *Seat) SendMotion(time uint32) {
	focus := s.pointerFocus
	if focus == nil || focus.Destroyed() {
		return
	}
	local := s.pointerLoc.Sub(s.pointerOrigin.ToPoint())
	s.sender.Send(focus.Client(), ipc.PointerMotion{Time: time, X: local.X, Y: local.Y})
	s.sender.Send(focus.Client(), ipc.PointerFrame{})
}

// Button records the button state and hands the event to the grab or the pointer focus.
// Returns the serial the event got
func (s *Seat) Button(button uint32, state ipc.ButtonState, time uint32) generaldata.Serial {
	serial := s.NextInputSerial()
	if state == ipc.ButtonPressed {
		s.pressed[button] = serial
	} else {
		delete(s.pressed, button)
	}
	ev := ButtonEvent{Button: button, State: state, Serial: serial, Time: time}
	if s.grab != nil {
		s.grab.Button(s, ev)
	} else {
		s.SendButton(ev)
	}
	return serial
}

func (s *Seat) SendButton(ev ButtonEvent) {
	focus := s.pointerFocus
	if focus == nil || focus.Destroyed() {
		return
	}
	s.sender.Send(focus.Client(), ipc.PointerButton{
		Serial: uint32(ev.Serial),
		Time:   ev.Time,
		Button: ev.Button,
		State:  ev.State,
	})
	s.sender.Send(focus.Client(), ipc.PointerFrame{})
}

// Axis hands a scroll frame to the grab or the pointer focus
func (s *Seat) Axis(frame AxisFrame) {
	if s.grab != nil {
		s.grab.Axis(s, frame)
		return
	}
	s.SendAxis(frame)
}

func (s *Seat) SendAxis(frame AxisFrame) {
	focus := s.pointerFocus
	if focus == nil || focus.Destroyed() || frame.IsEmpty() {
		return
	}
	for _, axis := range []ipc.Axis{ipc.AxisVertical, ipc.AxisHorizontal} {
		if !frame.has[axis] {
			continue
		}
		s.sender.Send(focus.Client(), ipc.PointerAxis{
			Time:     frame.Time,
			Axis:     axis,
			Value:    frame.Amount[axis],
			Discrete: frame.Discrete[axis],
			Source:   frame.Source,
		})
	}
	s.sender.Send(focus.Client(), ipc.PointerFrame{})
}

// SurfaceDestroyed drops every reference the seat holds to surf. No leave events are sent,
// the client already knows
func (s *Seat) SurfaceDestroyed(surf *surface.Surface) {
	if s.pointerFocus == surf {
		s.pointerFocus = nil
	}
	if s.keyboardFocus == surf {
		s.keyboardFocus = nil
		for _, hook := range s.focusHooks {
			hook(surf, nil)
		}
	}
}

func surfaceID(surf *surface.Surface) surface.ID {
	if surf == nil {
		return 0
	}
	return surf.ID()
}
