// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package shell

import (
	"time"

	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
)

// Window is an xdg toplevel. It is what the window space stacks
type Window struct {
	shell   *Shell
	surface *surface.Surface

	title  string
	appID  string
	parent *Window

	minSize generaldata.Vector2i
	maxSize generaldata.Vector2i
	// Double buffered, applied on commit
	pendingWindowGeometry *generaldata.Rect
	windowGeometry        *generaldata.Rect

	// What the compositor wants
	pending ToplevelState
	// The newest state sent to the client
	lastSent ToplevelState
	inflight []Configure
	// Acked but not committed yet
	acked *Configure
	// What the client agreed to and committed
	current ToplevelState
	// Window geometry as of the last applied commit
	geometry generaldata.Rect

	initialSent  bool
	initialAcked bool
	mapped       bool
	minimized    bool
	dead         bool

	restore *generaldata.Rect
	popups  []*Popup
}

func (w *Window) Surface() *surface.Surface {
	return w.surface
}

func (w *Window) Title() string {
	return w.title
}

func (w *Window) AppID() string {
	return w.appID
}

func (w *Window) Parent() *Window {
	return w.parent
}

func (w *Window) MinSize() generaldata.Vector2i {
	return w.minSize
}

func (w *Window) MaxSize() generaldata.Vector2i {
	return w.maxSize
}

func (w *Window) SetTitle(title string) {
	w.title = title
}

func (w *Window) SetAppID(appID string) {
	w.appID = appID
}

// SetParent makes w a child of parent. Loops are broken by refusing the request
func (w *Window) SetParent(parent *Window) bool {
	for cur := parent; cur != nil; cur = cur.parent {
		if cur == w {
			return false
		}
	}
	w.parent = parent
	return true
}

// SetWindowGeometry queues the part of the surface tree that counts as the window, excluding shadows and such
func (w *Window) SetWindowGeometry(geo generaldata.Rect) {
	w.pendingWindowGeometry = &geo
}

func (w *Window) SetMinSize(size generaldata.Vector2i) {
	w.minSize = size
}

func (w *Window) SetMaxSize(size generaldata.Vector2i) {
	w.maxSize = size
}

// ClampSize fits size into the client's min and max size. Zero limits are ignored
func (w *Window) ClampSize(size generaldata.Vector2i) generaldata.Vector2i {
	clamp := func(v, lo, hi int) int {
		if lo > 0 && v < lo {
			v = lo
		}
		if hi > 0 && v > hi {
			v = hi
		}
		return max(v, 1)
	}
	return generaldata.Vector2i{
		X: clamp(size.X, w.minSize.X, w.maxSize.X),
		Y: clamp(size.Y, w.minSize.Y, w.maxSize.Y),
	}
}

func (w *Window) Mapped() bool {
	return w.mapped
}

func (w *Window) Minimized() bool {
	return w.minimized
}

func (w *Window) SetMinimized(minimized bool) {
	w.minimized = minimized
}

// SaveRestore remembers where the window was before it got maximized or fullscreened
func (w *Window) SaveRestore(geo generaldata.Rect) {
	if w.restore == nil {
		w.restore = &geo
	}
}

// TakeRestore returns and forgets the saved geometry
func (w *Window) TakeRestore() (generaldata.Rect, bool) {
	if w.restore == nil {
		return generaldata.Rect{}, false
	}
	geo := *w.restore
	w.restore = nil
	return geo, true
}

// Pending is the state the compositor wants the window in
func (w *Window) Pending() ToplevelState {
	return w.pending
}

// Current is the state the client acked and committed
func (w *Window) Current() ToplevelState {
	return w.current
}

// Activated reports whether the compositor considers the window active
func (w *Window) Activated() bool {
	return w.pending.Has(StateActivated)
}

// Inflight returns the configures that have been sent and not acked yet
func (w *Window) Inflight() []Configure {
	return append([]Configure(nil), w.inflight...)
}

// WithPending changes the pending state. Nothing is sent until SendPendingConfigure
func (w *Window) WithPending(fn func(state *ToplevelState)) {
	fn(&w.pending)
}

// SendConfigure sends the pending state as a new configure transaction, even if nothing changed
func (w *Window) SendConfigure() generaldata.Serial {
	serial := w.shell.serials.Next()
	state := w.pending
	w.inflight = append(w.inflight, Configure{Serial: serial, State: state})
	w.lastSent = state
	w.initialSent = true
	w.shell.sender.Send(w.surface.Client(), ipc.Configure{
		Surface: w.surface.ObjectID(),
		Serial:  uint32(serial),
		Width:   state.Size.X,
		Height:  state.Size.Y,
		States:  state.States.Strings(),
	})
	logrus.WithFields(logrus.Fields{
		"surface": w.surface.ID(),
		"serial":  serial,
		"size":    state.Size,
		"states":  state.States.Strings(),
	}).Debugln("Sent toplevel configure")
	return serial
}

// SendPendingConfigure sends a configure if the pending state differs from the last one sent.
// Before the initial configure nothing is sent, the initial configure will carry the state
func (w *Window) SendPendingConfigure() (generaldata.Serial, bool) {
	if !w.initialSent || w.dead || w.pending == w.lastSent {
		return 0, false
	}
	return w.SendConfigure(), true
}

// AckConfigure handles the client acking a configure. Only the newest configure can be acked,
// anything else is stale and ignored. Returns whether the ack was taken
func (w *Window) AckConfigure(serial generaldata.Serial) bool {
	n := len(w.inflight)
	if n == 0 || w.inflight[n-1].Serial != serial {
		logrus.WithFields(logrus.Fields{
			"surface": w.surface.ID(),
			"serial":  serial,
		}).Debugln("Ignoring ack of unknown or superseded configure")
		return false
	}
	c := w.inflight[n-1]
	w.inflight = nil
	w.acked = &c
	w.initialAcked = true
	return true
}

// Close asks the client to close the window
func (w *Window) Close() {
	w.shell.sender.Send(w.surface.Client(), ipc.ToplevelClose{Surface: w.surface.ObjectID()})
}

func (w *Window) computeGeometry() generaldata.Rect {
	if w.windowGeometry != nil && !w.windowGeometry.IsEmpty() {
		return *w.windowGeometry
	}
	return w.surface.Bbox()
}

func (w *Window) commit() {
	if w.dead {
		return
	}
	if w.pendingWindowGeometry != nil {
		w.windowGeometry = w.pendingWindowGeometry
		w.pendingWindowGeometry = nil
	}
	if !w.initialAcked {
		if !w.initialSent {
			w.SendConfigure()
		}
		// Content committed before the initial configure got acked never maps the window
		return
	}

	configured := false
	switch {
	case w.acked != nil:
		w.current = w.acked.State
		w.acked = nil
		w.geometry = w.computeGeometry()
		configured = true
	case len(w.inflight) == 0:
		w.geometry = w.computeGeometry()
	default:
		logrus.WithField("surface", w.surface.ID()).Debugln("Commit while a configure is outstanding, keeping geometry")
	}

	switch {
	case !w.mapped && w.surface.HasContent():
		w.mapped = true
		logrus.WithFields(logrus.Fields{
			"surface":  w.surface.ID(),
			"title":    w.title,
			"geometry": w.geometry,
		}).Infoln("Window mapped")
		w.shell.handler.Map(w)
	case w.mapped && !w.surface.HasContent():
		w.unmap()
	case configured && w.mapped:
		w.shell.handler.Configured(w)
	}
}

// unmap happens when the client commits a null buffer. The window has to go through
// the initial configure again before it can map
func (w *Window) unmap() {
	w.mapped = false
	w.initialSent = false
	w.initialAcked = false
	w.inflight = nil
	w.acked = nil
	for _, p := range w.popups {
		p.Dismiss()
	}
	logrus.WithField("surface", w.surface.ID()).Infoln("Window unmapped")
	w.shell.handler.Unmap(w)
}

func (w *Window) destroy() {
	if w.dead {
		return
	}
	wasMapped := w.mapped
	w.dead = true
	w.mapped = false
	for _, p := range w.popups {
		p.Dismiss()
	}
	if wasMapped {
		w.shell.handler.Unmap(w)
	}
}

// Geometry is the window geometry relative to the surface origin, as of the last applied commit
func (w *Window) Geometry() generaldata.Rect {
	return w.geometry
}

// Bbox covers the surface tree and every visible popup
func (w *Window) Bbox() generaldata.Rect {
	box := w.surface.Bbox()
	for _, p := range w.popups {
		if p.Visible() {
			box = box.Merge(p.surface.Bbox().Translate(p.Offset()))
		}
	}
	return box
}

// Under finds the surface under p, popups first. p and the offset are relative to the window's surface origin
func (w *Window) Under(p generaldata.Point) (*surface.Surface, generaldata.Vector2i, bool) {
	for i := len(w.popups) - 1; i >= 0; i-- {
		popup := w.popups[i]
		if !popup.Visible() {
			continue
		}
		off := popup.Offset()
		if s, sub, ok := popup.surface.Under(p.Sub(off.ToPoint())); ok {
			return s, sub.Add(off), true
		}
	}
	return w.surface.Under(p)
}

func (w *Window) IsInInputRegion(p generaldata.Point) bool {
	_, _, ok := w.Under(p)
	return ok
}

// SetActivated changes the activation flag and sends a configure if it changed
func (w *Window) SetActivated(activated bool) bool {
	if w.pending.Has(StateActivated) == activated {
		return false
	}
	w.pending.Set(StateActivated, activated)
	w.SendPendingConfigure()
	return true
}

func (w *Window) Alive() bool {
	return !w.dead && w.surface.Alive()
}

func (w *Window) ownsPopup(surf *surface.Surface) bool {
	for _, p := range w.popups {
		if surf != nil && p.surface == surf.Root() {
			return true
		}
	}
	return false
}

// Popups returns the popups of this window in stacking order
func (w *Window) Popups() []*Popup {
	return append([]*Popup(nil), w.popups...)
}

// RenderElements lists the surface tree followed by the visible popups, back to front
func (w *Window) RenderElements(loc generaldata.Vector2i) []space.RenderElement {
	out := renderTree(w.surface, loc)
	for _, p := range w.popups {
		if p.Visible() {
			out = append(out, renderTree(p.surface, loc.Add(p.Offset()))...)
		}
	}
	return out
}

func renderTree(root *surface.Surface, loc generaldata.Vector2i) []space.RenderElement {
	out := []space.RenderElement{}
	root.Tree(func(s *surface.Surface, offset generaldata.Vector2i) bool {
		if !s.HasContent() {
			return true
		}
		origin := loc.Add(offset)
		damage := []generaldata.Rect{}
		for _, d := range s.PendingDamage() {
			damage = append(damage, d.Translate(origin))
		}
		out = append(out, space.RenderElement{
			Surface:  s,
			Buffer:   s.Buffer(),
			Geometry: generaldata.Rect{Loc: origin, Size: s.Size()},
			Damage:   damage,
		})
		return true
	})
	return out
}

// SendFrame fires the frame callbacks of every surface of the window and forgets their damage
func (w *Window) SendFrame(_ *space.Output, elapsed time.Duration) {
	sendFrameTree(w.shell.sender, w.surface, elapsed)
	for _, p := range w.popups {
		if p.Visible() {
			sendFrameTree(w.shell.sender, p.surface, elapsed)
		}
	}
}

func sendFrameTree(sender ipc.Sender, root *surface.Surface, elapsed time.Duration) {
	ms := uint32(elapsed.Milliseconds())
	root.Tree(func(s *surface.Surface, _ generaldata.Vector2i) bool {
		s.TakeDamage()
		for _, cb := range s.TakeFrameCallbacks() {
			sender.Send(s.Client(), ipc.FrameDone{Callback: cb, Time: ms})
		}
		return true
	})
}
