// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package shell implements the window roles: toplevels and popups with their
// configure, ack and commit handshake.
package shell

import (
	"errors"

	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

var (
	ErrUnconfiguredBuffer = errors.New("surface has a buffer before its role was configured")
	ErrInvalidParent      = errors.New("popup parent is neither a toplevel nor a popup")
	ErrNoRole             = errors.New("surface has no shell role")
)

// Handler is where window management policy lives. The shell only tracks protocol state
type Handler interface {
	// A window got content for the first time since its initial configure
	Map(w *Window)
	// A window lost its content or its role
	Unmap(w *Window)
	// A commit applied an acked configure on a mapped window
	Configured(w *Window)
	Move(w *Window, serial generaldata.Serial)
	Resize(w *Window, serial generaldata.Serial, edges ipc.Edges)
	Maximize(w *Window, maximized bool)
	Fullscreen(w *Window, fullscreen bool, output string)
	Minimize(w *Window)
	ShowWindowMenu(w *Window, serial generaldata.Serial, at generaldata.Vector2i)
	// Where the window's surface origin is in space coordinates
	Locate(w *Window) (generaldata.Vector2i, bool)
}

type Shell struct {
	registry *surface.Registry
	seat     *seat.Seat
	sender   ipc.Sender
	serials  *generaldata.SerialCounter
	handler  Handler

	windows []*Window
	byRoot  map[*surface.Surface]*Window
	popups  map[*surface.Surface]*Popup
}

// New creates the shell and hooks it into the registry's commit and destroy notifications
func New(registry *surface.Registry, st *seat.Seat, sender ipc.Sender, serials *generaldata.SerialCounter, handler Handler) *Shell {
	sh := &Shell{
		registry: registry,
		seat:     st,
		sender:   sender,
		serials:  serials,
		handler:  handler,
		byRoot:   make(map[*surface.Surface]*Window),
		popups:   make(map[*surface.Surface]*Popup),
	}
	registry.OnCommit(sh.handleCommit)
	registry.OnDestroy(sh.handleDestroy)
	return sh
}

// NewToplevel gives surf the toplevel role
func (sh *Shell) NewToplevel(surf *surface.Surface) (*Window, error) {
	if surf.HasContent() {
		return nil, ErrUnconfiguredBuffer
	}
	if err := surf.SetRole(surface.RoleToplevel); err != nil {
		return nil, err
	}
	if w, ok := sh.byRoot[surf]; ok && !w.dead {
		return nil, surface.ErrRoleTaken
	}
	w := &Window{shell: sh, surface: surf}
	sh.windows = append(sh.windows, w)
	sh.byRoot[surf] = w
	logrus.WithFields(logrus.Fields{
		"surface": surf.ID(),
		"client":  surf.Client(),
	}).Debugln("New toplevel")
	return w, nil
}

// NewPopup gives surf the popup role, placed next to parent according to pos
func (sh *Shell) NewPopup(surf, parent *surface.Surface, pos ipc.Positioner) (*Popup, error) {
	if surf.HasContent() {
		return nil, ErrUnconfiguredBuffer
	}
	p := &Popup{
		shell:      sh,
		surface:    surf,
		positioner: pos,
		pending:    PositionerGeometry(pos),
	}
	if w, ok := sh.byRoot[parent]; ok && !w.dead {
		p.parentWindow = w
		p.root = w
	} else if pp, ok := sh.popups[parent]; ok && !pp.dead {
		p.parentPopup = pp
		p.root = pp.root
	} else {
		return nil, ErrInvalidParent
	}
	if err := surf.SetRole(surface.RolePopup); err != nil {
		return nil, err
	}
	sh.popups[surf] = p
	p.root.popups = append(p.root.popups, p)
	return p, nil
}

// Window returns the toplevel whose surface is surf
func (sh *Shell) Window(surf *surface.Surface) (*Window, bool) {
	w, ok := sh.byRoot[surf]
	if !ok || w.dead {
		return nil, false
	}
	return w, true
}

func (sh *Shell) Popup(surf *surface.Surface) (*Popup, bool) {
	p, ok := sh.popups[surf]
	if !ok || p.dead {
		return nil, false
	}
	return p, true
}

// WindowFor finds the toplevel owning any surface: the toplevel itself, one of its subsurfaces or a popup
func (sh *Shell) WindowFor(surf *surface.Surface) (*Window, bool) {
	if surf == nil {
		return nil, false
	}
	root := surf.Root()
	if w, ok := sh.Window(root); ok {
		return w, true
	}
	if p, ok := sh.Popup(root); ok {
		return p.root, !p.root.dead
	}
	return nil, false
}

// Windows returns the live toplevels in creation order
func (sh *Shell) Windows() []*Window {
	return sliceutils.Filter(append([]*Window(nil), sh.windows...), func(w *Window) bool {
		return w.Alive()
	})
}

// AckConfigure routes an ack to the toplevel or popup of surf
func (sh *Shell) AckConfigure(surf *surface.Surface, serial generaldata.Serial) error {
	if w, ok := sh.Window(surf); ok {
		w.AckConfigure(serial)
		return nil
	}
	if p, ok := sh.Popup(surf); ok {
		p.AckConfigure(serial)
		return nil
	}
	return ErrNoRole
}

// GrabPopup gives p an exclusive input grab, but only if serial is the seat's newest input serial.
// Stale requests are ignored. Returns whether the grab got installed
func (sh *Shell) GrabPopup(p *Popup, serial generaldata.Serial) bool {
	if p.dead || p.dismissed {
		return false
	}
	if !sh.seat.ValidateInputSerial(serial) {
		logrus.WithFields(logrus.Fields{
			"surface": p.surface.ID(),
			"serial":  serial,
			"latest":  sh.seat.LastInputSerial(),
		}).Debugln("Rejecting popup grab with stale serial")
		return false
	}
	if g, ok := sh.seat.Grab().(*PopupGrab); ok && !g.done && g.client() == p.surface.Client() {
		g.push(p)
	} else {
		sh.seat.SetGrab(&PopupGrab{shell: sh, popups: []*Popup{p}})
	}
	sh.seat.SetKeyboardFocus(p.surface)
	return true
}

// DestroyToplevel drops the toplevel role object. The surface itself stays around
func (sh *Shell) DestroyToplevel(w *Window) {
	if w.dead {
		return
	}
	w.destroy()
	sh.forgetWindow(w)
}

func (sh *Shell) DestroyPopup(p *Popup) {
	p.destroy()
	delete(sh.popups, p.surface)
	sh.restoreFocusFrom(p)
}

func (sh *Shell) forgetWindow(w *Window) {
	delete(sh.byRoot, w.surface)
	sh.windows = sliceutils.Filter(sh.windows, func(other *Window) bool {
		return other != w
	})
	for _, p := range w.popups {
		delete(sh.popups, p.surface)
	}
	if g, ok := sh.seat.Grab().(*PopupGrab); ok {
		if top := g.top(); top != nil && top.root == w {
			sh.seat.ReleaseGrab(g)
		}
	}
	if focus := sh.seat.KeyboardFocus(); focus != nil && focus.Root() == w.surface || w.ownsPopup(focus) {
		sh.seat.SetKeyboardFocus(nil)
	}
	sh.seat.SurfaceDestroyed(w.surface)
}

func (sh *Shell) handleCommit(surf *surface.Surface) {
	if w, ok := sh.Window(surf); ok {
		w.commit()
		return
	}
	if p, ok := sh.Popup(surf); ok {
		p.commit()
	}
}

func (sh *Shell) handleDestroy(surf *surface.Surface) {
	if w, ok := sh.byRoot[surf]; ok {
		sh.DestroyToplevel(w)
	}
	if p, ok := sh.popups[surf]; ok {
		sh.DestroyPopup(p)
	}
	sh.seat.SurfaceDestroyed(surf)
}

// restoreFocus hands keyboard focus back to the window once its popups are gone
func (sh *Shell) restoreFocus(w *Window) {
	focus := sh.seat.KeyboardFocus()
	if focus == nil {
		return
	}
	if p, ok := sh.popups[focus]; ok && p.root == w && w.Alive() {
		sh.seat.SetKeyboardFocus(w.surface)
	}
}

func (sh *Shell) restoreFocusFrom(p *Popup) {
	if sh.seat.KeyboardFocus() != p.surface {
		return
	}
	next := p.root.surface
	if p.parentPopup != nil && p.parentPopup.Visible() {
		next = p.parentPopup.surface
	}
	if p.root.Alive() {
		sh.seat.SetKeyboardFocus(next)
	} else {
		sh.seat.SetKeyboardFocus(nil)
	}
}

func (sh *Shell) popupLocation(p *Popup) (generaldata.Vector2i, bool) {
	if p == nil || !p.Visible() {
		return generaldata.Vector2i{}, false
	}
	loc, ok := sh.handler.Locate(p.root)
	if !ok {
		return generaldata.Vector2i{}, false
	}
	return loc.Add(p.Offset()), true
}

// Handler returns the policy the shell reports to
func (sh *Shell) Handler() Handler {
	return sh.handler
}
