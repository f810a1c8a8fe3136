// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package datadevice

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
	ErrDragSerial = errors.New("drag serial does not match a held button press on the origin")
	ErrDragActive = errors.New("a drag is already in progress")
)

// Drag is one drag and drop session. It is the active drag from StartDrag until the drop or a cancel.
// A dropped drag with a source then only waits for the target's finish and no longer holds the pointer or the icon
type Drag struct {
	manager *Manager
	client  generaldata.ClientID
	// nil for drags that stay inside the client
	source *Source
	origin *surface.Surface
	icon   *surface.Surface

	target       *surface.Surface
	targetOrigin generaldata.Vector2i
	accepted     string
	offerActions ipc.DndAction
	preferred    ipc.DndAction
	action       ipc.DndAction

	dropped bool
	ended   bool
}

// Drag returns the active drag session, if any. Dropped sessions waiting for finish don't count
func (m *Manager) Drag() *Drag {
	return m.drag
}

// Awaiting returns the dropped sessions whose target hasn't finished yet, oldest first
func (m *Manager) Awaiting() []*Drag {
	return append([]*Drag(nil), m.awaiting...)
}

// StartDrag begins a drag from origin. serial has to be the press of a button that is still held
// over origin. icon may be nil
func (m *Manager) StartDrag(client generaldata.ClientID, src *Source, origin, icon *surface.Surface, serial generaldata.Serial) (*Drag, error) {
	if m.drag != nil {
		return nil, ErrDragActive
	}
	if origin == nil || origin.Client() != client || !m.seat.ValidateButtonSerial(origin, serial) {
		logrus.WithFields(logrus.Fields{
			"client": client,
			"serial": serial,
		}).Debugln("Rejecting drag with invalid serial")
		return nil, ErrDragSerial
	}
	if src != nil {
		if src.used {
			return nil, ErrSourceUsed
		}
		src.used = true
	}
	if icon != nil {
		if err := icon.SetRole(surface.RoleDndIcon); err != nil {
			return nil, err
		}
	}
	d := &Drag{
		manager: m,
		client:  client,
		source:  src,
		origin:  origin,
		icon:    icon,
	}
	m.drag = d
	// The drag owns the pointer now, the surface under it becomes the drop target instead
	focus, at := m.seat.PointerFocus()
	m.seat.SetPointerFocus(nil, generaldata.Vector2i{})
	m.seat.SetGrab(d)
	d.setTarget(m.seat, focus, at)
	logrus.WithFields(logrus.Fields{
		"client": client,
		"source": src != nil,
	}).Debugln("Drag started")
	return d, nil
}

// Icon is the surface drawn under the pointer during the drag
func (d *Drag) Icon() *surface.Surface {
	if d.icon == nil || d.icon.Destroyed() {
		return nil
	}
	return d.icon
}

func (d *Drag) Target() *surface.Surface {
	return d.target
}

func (d *Drag) Action() ipc.DndAction {
	return d.action
}

func (d *Drag) Dropped() bool {
	return d.dropped
}

func (d *Drag) targetClient() generaldata.ClientID {
	if d.target == nil {
		return 0
	}
	return d.target.Client()
}

func (d *Drag) sourceMimes() []string {
	if d.source == nil {
		return []string{}
	}
	return d.source.MimeTypes()
}

func (d *Drag) sourceActions() ipc.DndAction {
	if d.source == nil {
		return ipc.DndActionCopy | ipc.DndActionMove | ipc.DndActionAsk
	}
	return d.source.actions
}

func (d *Drag) sendToSource(ev ipc.Event) {
	if d.source != nil && !d.source.destroyed {
		d.manager.sender.Send(d.source.client, ev)
	}
}

// setTarget moves the drag over a new surface, sending leave and enter as needed
func (d *Drag) setTarget(s *seat.Seat, focus *surface.Surface, origin generaldata.Vector2i) {
	// Drags without a source only go to the dragging client
	if focus != nil && d.source == nil && focus.Client() != d.client {
		focus = nil
	}
	if focus == d.target {
		d.targetOrigin = origin
		return
	}
	if d.target != nil && d.target.Alive() {
		d.manager.sender.Send(d.target.Client(), ipc.DndLeave{})
	}
	d.target = focus
	d.targetOrigin = origin
	d.accepted = ""
	d.offerActions = ipc.DndActionNone
	d.preferred = ipc.DndActionNone
	d.updateAction()
	if focus == nil {
		d.sendToSource(ipc.DataSourceTarget{Source: d.source.idOrZero()})
		return
	}
	local := s.PointerLocation().Sub(origin.ToPoint())
	d.manager.sender.Send(focus.Client(), ipc.DndEnter{
		Serial:        uint32(s.NextSerial()),
		Surface:       focus.ObjectID(),
		X:             local.X,
		Y:             local.Y,
		MimeTypes:     d.sourceMimes(),
		SourceActions: d.sourceActions(),
	})
}

func (src *Source) idOrZero() uint32 {
	if src == nil {
		return 0
	}
	return src.id
}

// Motion implements seat.PointerGrab
func (d *Drag) Motion(s *seat.Seat, ev seat.MotionEvent) {
	if d.dropped {
		return
	}
	d.setTarget(s, ev.Focus, ev.Origin)
	if d.target == nil {
		return
	}
	local := ev.Location.Sub(d.targetOrigin.ToPoint())
	d.manager.sender.Send(d.target.Client(), ipc.DndMotion{Time: ev.Time, X: local.X, Y: local.Y})
}

// Button implements seat.PointerGrab. Releasing the last button drops
func (d *Drag) Button(s *seat.Seat, ev seat.ButtonEvent) {
	if ev.State != ipc.ButtonReleased || s.ButtonsHeld() > 0 {
		return
	}
	d.drop(s)
}

// Axis implements seat.PointerGrab. Scrolling does nothing during a drag
func (d *Drag) Axis(_ *seat.Seat, _ seat.AxisFrame) {}

// Cancel implements seat.PointerGrab
func (d *Drag) Cancel(_ *seat.Seat) {
	if !d.dropped {
		d.abort()
	}
}

func (d *Drag) drop(s *seat.Seat) {
	target := d.target
	acceptable := target != nil && target.Alive() &&
		(d.source == nil || d.accepted != "") && d.action != ipc.DndActionNone
	if !acceptable {
		logrus.Debugln("Drop was not accepted, cancelling drag")
		s.ReleaseGrab(d)
		d.abort()
		return
	}
	d.dropped = true
	d.manager.sender.Send(target.Client(), ipc.DndDrop{})
	d.sendToSource(ipc.DataSourceDropPerformed{Source: d.source.idOrZero()})
	s.ReleaseGrab(d)
	if d.manager.drag == d {
		d.manager.drag = nil
	}
	if d.source == nil {
		// Nothing to finish for client internal drags
		d.end()
	} else {
		d.manager.awaiting = append(d.manager.awaiting, d)
	}
	logrus.WithField("action", d.action).Debugln("Dropped")
}

// abort ends the session without a transfer
func (d *Drag) abort() {
	if d.ended {
		return
	}
	if d.target != nil && d.target.Alive() && !d.dropped {
		d.manager.sender.Send(d.target.Client(), ipc.DndLeave{})
	}
	d.sendToSource(ipc.DataSourceCancelled{Source: d.source.idOrZero()})
	d.end()
	d.manager.seat.ReleaseGrab(d)
}

func (d *Drag) end() {
	d.ended = true
	if d.manager.drag == d {
		d.manager.drag = nil
	}
	d.manager.awaiting = sliceutils.Filter(d.manager.awaiting, func(other *Drag) bool {
		return other != d
	})
	if d.source != nil {
		d.manager.DestroySourceQuietly(d.source)
	}
}

// updateAction picks the action from what both sides allow: the target's preference if possible,
// otherwise copy before move before ask
func (d *Drag) updateAction() {
	allowed := d.sourceActions() & d.offerActions
	action := ipc.DndActionNone
	switch {
	case d.preferred != ipc.DndActionNone && allowed&d.preferred != 0:
		action = d.preferred
	case allowed&ipc.DndActionCopy != 0:
		action = ipc.DndActionCopy
	case allowed&ipc.DndActionMove != 0:
		action = ipc.DndActionMove
	case allowed&ipc.DndActionAsk != 0:
		action = ipc.DndActionAsk
	}
	if action == d.action {
		return
	}
	d.action = action
	d.sendToSource(ipc.DataSourceAction{Source: d.source.idOrZero(), Action: action})
	if d.target != nil {
		d.manager.sender.Send(d.target.Client(), ipc.DataOfferAction{Action: action})
	}
}

// Accept records which mime type the target would take. "" means it would not take anything
func (m *Manager) Accept(client generaldata.ClientID, mime string) {
	d := m.drag
	if d == nil || d.target == nil || d.target.Client() != client || d.dropped {
		return
	}
	if mime != "" && d.source != nil && !containsString(d.source.mimeTypes, mime) {
		mime = ""
	}
	d.accepted = mime
	d.sendToSource(ipc.DataSourceTarget{Source: d.source.idOrZero(), MimeType: mime})
}

// SetOfferActions records what the target can do with the data and what it would prefer
func (m *Manager) SetOfferActions(client generaldata.ClientID, actions, preferred ipc.DndAction) {
	d := m.drag
	if d == nil || d.target == nil || d.target.Client() != client {
		return
	}
	d.offerActions = actions
	d.preferred = preferred
	d.updateAction()
}

// Finish is the target telling us the transfer after its newest drop is done
func (m *Manager) Finish(client generaldata.ClientID) {
	for i := len(m.awaiting) - 1; i >= 0; i-- {
		d := m.awaiting[i]
		if d.targetClient() != client {
			continue
		}
		d.sendToSource(ipc.DataSourceFinished{Source: d.source.idOrZero()})
		d.end()
		logrus.Debugln("Drag finished")
		return
	}
}

// DestroySourceQuietly forgets a source whose session ended, without notifying anyone
func (m *Manager) DestroySourceQuietly(src *Source) {
	src.destroyed = true
	delete(m.sources, sourceKey{src.client, src.id})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
