// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package shell

import (
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// PositionerGeometry places a popup relative to its parent's window geometry
func PositionerGeometry(p ipc.Positioner) generaldata.Rect {
	ar := p.AnchorRect
	var x, y int
	switch {
	case p.Anchor&ipc.EdgeLeft != 0:
		x = ar.X
	case p.Anchor&ipc.EdgeRight != 0:
		x = ar.X + ar.Width
	default:
		x = ar.X + ar.Width/2
	}
	switch {
	case p.Anchor&ipc.EdgeTop != 0:
		y = ar.Y
	case p.Anchor&ipc.EdgeBottom != 0:
		y = ar.Y + ar.Height
	default:
		y = ar.Y + ar.Height/2
	}

	// Gravity says which way the popup grows from the anchor point
	switch {
	case p.Gravity&ipc.EdgeLeft != 0:
		x -= p.Width
	case p.Gravity&ipc.EdgeRight != 0:
	default:
		x -= p.Width / 2
	}
	switch {
	case p.Gravity&ipc.EdgeTop != 0:
		y -= p.Height
	case p.Gravity&ipc.EdgeBottom != 0:
	default:
		y -= p.Height / 2
	}
	return generaldata.NewRect(x+p.OffsetX, y+p.OffsetY, p.Width, p.Height)
}

// Popup is an xdg popup. It is drawn and hit tested as part of its root window
type Popup struct {
	shell   *Shell
	surface *surface.Surface
	root    *Window
	// Exactly one of these is set
	parentWindow *Window
	parentPopup  *Popup

	positioner ipc.Positioner
	pending    generaldata.Rect
	inflight   []popupConfigure
	acked      *popupConfigure
	// Applied geometry, relative to the parent's window geometry
	geometry generaldata.Rect

	initialSent  bool
	initialAcked bool
	mapped       bool
	dismissed    bool
	dead         bool
}

func (p *Popup) Surface() *surface.Surface {
	return p.surface
}

// Root is the toplevel the popup chain hangs off
func (p *Popup) Root() *Window {
	return p.root
}

func (p *Popup) ParentPopup() *Popup {
	return p.parentPopup
}

func (p *Popup) Geometry() generaldata.Rect {
	return p.geometry
}

func (p *Popup) Mapped() bool {
	return p.mapped
}

func (p *Popup) Dismissed() bool {
	return p.dismissed
}

// Visible reports whether the popup is drawn and takes input
func (p *Popup) Visible() bool {
	return p.mapped && !p.dismissed && !p.dead && p.surface.Alive()
}

// Offset is the popup surface origin relative to the root window's surface origin
func (p *Popup) Offset() generaldata.Vector2i {
	var parentOrigin generaldata.Vector2i
	if p.parentPopup != nil {
		parentOrigin = p.parentPopup.Offset()
	} else {
		parentOrigin = p.parentWindow.Geometry().Loc
	}
	return parentOrigin.Add(p.geometry.Loc)
}

func (p *Popup) sendConfigure() generaldata.Serial {
	serial := p.shell.serials.Next()
	p.inflight = append(p.inflight, popupConfigure{serial: serial, geometry: p.pending})
	p.initialSent = true
	p.shell.sender.Send(p.surface.Client(), ipc.PopupConfigure{
		Surface: p.surface.ObjectID(),
		Serial:  uint32(serial),
		X:       p.pending.Loc.X,
		Y:       p.pending.Loc.Y,
		Width:   p.pending.Size.X,
		Height:  p.pending.Size.Y,
	})
	return serial
}

// AckConfigure follows the same rules as for windows: only the newest configure counts
func (p *Popup) AckConfigure(serial generaldata.Serial) bool {
	n := len(p.inflight)
	if n == 0 || p.inflight[n-1].serial != serial {
		logrus.WithFields(logrus.Fields{
			"surface": p.surface.ID(),
			"serial":  serial,
		}).Debugln("Ignoring ack of unknown or superseded popup configure")
		return false
	}
	c := p.inflight[n-1]
	p.inflight = nil
	p.acked = &c
	p.initialAcked = true
	return true
}

// Reposition recomputes the popup's place from a new positioner and sends a configure for it
func (p *Popup) Reposition(pos ipc.Positioner, token uint32) {
	if p.dead || p.dismissed {
		return
	}
	p.positioner = pos
	p.pending = PositionerGeometry(pos)
	p.shell.sender.Send(p.surface.Client(), ipc.PopupRepositioned{
		Surface: p.surface.ObjectID(),
		Token:   token,
	})
	p.sendConfigure()
}

func (p *Popup) commit() {
	if p.dead || p.dismissed {
		return
	}
	if !p.initialAcked {
		if !p.initialSent {
			p.sendConfigure()
		}
		return
	}
	switch {
	case p.acked != nil:
		p.geometry = p.acked.geometry
		p.acked = nil
	case len(p.inflight) != 0:
		logrus.WithField("surface", p.surface.ID()).Debugln("Popup commit while a configure is outstanding")
	}
	if !p.mapped && p.surface.HasContent() {
		p.mapped = true
		logrus.WithFields(logrus.Fields{
			"surface":  p.surface.ID(),
			"geometry": p.geometry,
		}).Debugln("Popup mapped")
	} else if p.mapped && !p.surface.HasContent() {
		p.mapped = false
	}
}

// Dismiss closes the popup and every popup stacked on it, topmost first, telling the client
func (p *Popup) Dismiss() {
	if p.dismissed || p.dead {
		return
	}
	for _, child := range p.children() {
		child.Dismiss()
	}
	p.dismissed = true
	p.shell.sender.Send(p.surface.Client(), ipc.PopupDone{Surface: p.surface.ObjectID()})
	logrus.WithField("surface", p.surface.ID()).Debugln("Popup dismissed")
}

func (p *Popup) children() []*Popup {
	out := []*Popup{}
	for i := len(p.root.popups) - 1; i >= 0; i-- {
		if p.root.popups[i].parentPopup == p {
			out = append(out, p.root.popups[i])
		}
	}
	return out
}

func (p *Popup) destroy() {
	if p.dead {
		return
	}
	for _, child := range p.children() {
		child.Dismiss()
	}
	p.dead = true
	p.root.popups = sliceutils.Filter(p.root.popups, func(other *Popup) bool {
		return other != p
	})
	if g, ok := p.shell.seat.Grab().(*PopupGrab); ok {
		g.remove(p)
	}
}

// PopupGrab keeps pointer and keyboard with a client's popup chain until the user clicks elsewhere
type PopupGrab struct {
	shell  *Shell
	popups []*Popup
	// Set while the pointer is over something the grabbing client doesn't own
	outside bool
	done    bool
}

func (g *PopupGrab) top() *Popup {
	if len(g.popups) == 0 {
		return nil
	}
	return g.popups[len(g.popups)-1]
}

func (g *PopupGrab) client() generaldata.ClientID {
	if top := g.top(); top != nil {
		return top.surface.Client()
	}
	return 0
}

// Popups returns the grabbing popups, topmost last
func (g *PopupGrab) Popups() []*Popup {
	return append([]*Popup(nil), g.popups...)
}

func (g *PopupGrab) push(p *Popup) {
	g.popups = append(g.popups, p)
}

func (g *PopupGrab) remove(p *Popup) {
	if g.done {
		return
	}
	g.popups = sliceutils.Filter(g.popups, func(other *Popup) bool {
		return other != p
	})
	if len(g.popups) == 0 {
		g.done = true
		g.shell.seat.ReleaseGrab(g)
		g.shell.restoreFocus(p.root)
	}
}

func (g *PopupGrab) Motion(s *seat.Seat, ev seat.MotionEvent) {
	if ev.Focus != nil && ev.Focus.Client() == g.client() {
		g.outside = false
		s.SetPointerFocus(ev.Focus, ev.Origin)
	} else {
		g.outside = true
		top := g.top()
		if loc, ok := g.shell.popupLocation(top); ok {
			s.SetPointerFocus(top.surface, loc)
		} else {
			s.SetPointerFocus(nil, generaldata.Vector2i{})
		}
	}
	s.SendMotion(ev.Time)
}

func (g *PopupGrab) Button(s *seat.Seat, ev seat.ButtonEvent) {
	if ev.State == ipc.ButtonPressed && g.outside {
		logrus.Debugln("Click outside of the popup chain, dismissing")
		s.ReleaseGrab(g)
		return
	}
	s.SendButton(ev)
}

func (g *PopupGrab) Axis(s *seat.Seat, frame seat.AxisFrame) {
	s.SendAxis(frame)
}

// Cancel dismisses whatever is left of the chain
func (g *PopupGrab) Cancel(_ *seat.Seat) {
	if g.done {
		return
	}
	g.done = true
	var root *Window
	for i := len(g.popups) - 1; i >= 0; i-- {
		root = g.popups[i].root
		g.popups[i].Dismiss()
	}
	g.popups = nil
	if root != nil {
		g.shell.restoreFocus(root)
	}
}
