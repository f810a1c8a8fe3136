// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"errors"
	"fmt"

	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/datadevice"
	"github.com/mstarongithub/twm/events"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/shell"
	"github.com/mstarongithub/twm/surface"
	"github.com/mstarongithub/twm/transport"
	"github.com/sirupsen/logrus"
)

func (st *State) ClientConnected(c *transport.Client) {
	st.clients[c.ID()] = &clientState{
		client:   c,
		surfaces: make(map[uint32]*surface.Surface),
		buffers:  make(map[uint32]*surface.Buffer),
	}
	fields := logrus.Fields{"client": c.ID()}
	if creds := c.Credentials(); creds != nil {
		fields["pid"] = creds.PID
		fields["uid"] = creds.UID
	}
	st.sink.Emit(events.ClientConnected, fields)
}

// ClientDisconnected tears down everything the client owned, each object exactly once
func (st *State) ClientDisconnected(c *transport.Client) {
	id := c.ID()
	st.data.ClientGone(id)
	if cs, ok := st.clients[id]; ok {
		// Buffers go first, nobody is left to be told about releases
		for _, b := range cs.buffers {
			st.registry.BufferDestroyed(b)
		}
		delete(st.clients, id)
	}
	destroyed := st.registry.DestroyClient(id)
	st.sink.Emit(events.ClientDisconnected, logrus.Fields{
		"client":   id,
		"surfaces": destroyed,
	})
}

// ClientCount is the number of connected clients
func (st *State) ClientCount() int {
	return len(st.clients)
}

func (st *State) stateOf(c *transport.Client) *clientState {
	cs, ok := st.clients[c.ID()]
	if !ok {
		// Clients always get announced first, but don't fall over if one wasn't
		st.ClientConnected(c)
		cs = st.clients[c.ID()]
	}
	return cs
}

func (st *State) surface(c *transport.Client, id uint32) (*surface.Surface, error) {
	if err := c.Object(id, transport.KindSurface); err != nil {
		return nil, err
	}
	s, ok := st.stateOf(c).surfaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: surface %d", transport.ErrUnknownObject, id)
	}
	return s, nil
}

func (st *State) buffer(c *transport.Client, id uint32) (*surface.Buffer, error) {
	if err := c.Object(id, transport.KindBuffer); err != nil {
		return nil, err
	}
	b, ok := st.stateOf(c).buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", transport.ErrUnknownObject, id)
	}
	return b, nil
}

func (st *State) window(c *transport.Client, id uint32) (*shell.Window, error) {
	s, err := st.surface(c, id)
	if err != nil {
		return nil, err
	}
	w, ok := st.shell.Window(s)
	if !ok {
		return nil, ipc.NewProtocolError(id, ipc.ErrCodeRole, "surface %d is not a toplevel", id)
	}
	return w, nil
}

func (st *State) popup(c *transport.Client, id uint32) (*shell.Popup, error) {
	s, err := st.surface(c, id)
	if err != nil {
		return nil, err
	}
	p, ok := st.shell.Popup(s)
	if !ok {
		return nil, ipc.NewProtocolError(id, ipc.ErrCodeRole, "surface %d is not a popup", id)
	}
	return p, nil
}

// repeatedDestroy swallows the lookup error of a destroy request for an id the client already destroyed.
// Any other error comes back unchanged
func repeatedDestroy(c *transport.Client, id uint32, kind transport.Kind, err error) error {
	if !errors.Is(err, transport.ErrUnknownObject) || !c.Retired(id, kind) {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"client": c.ID(),
		"object": id,
		"kind":   kind,
	}).Debugln("Ignoring repeated destroy")
	return nil
}

// repeatedRoleDestroy is repeatedDestroy for role objects. Surfaces keep their role after the role object is gone,
// so a surface with the role but no live role object had it destroyed before
func (st *State) repeatedRoleDestroy(c *transport.Client, id uint32, role surface.Role, err error) error {
	if errors.Is(err, transport.ErrUnknownObject) {
		return repeatedDestroy(c, id, transport.KindSurface, err)
	}
	s, ok := st.stateOf(c).surfaces[id]
	if !ok || s.Role() != role {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"client":  c.ID(),
		"surface": id,
		"role":    role,
	}).Debugln("Ignoring repeated role destroy")
	return nil
}

// errSourceGone is a source the client still holds but whose drag session already ended
var errSourceGone = errors.New("data source is no longer usable")

// source looks up a data source. id 0 is a valid "no source" and gives nil
func (st *State) source(c *transport.Client, id uint32) (*datadevice.Source, error) {
	if id == 0 {
		return nil, nil
	}
	if err := c.Object(id, transport.KindDataSource); err != nil {
		return nil, err
	}
	src, ok := st.data.Source(c.ID(), id)
	if !ok {
		return nil, fmt.Errorf("%w: data source %d", errSourceGone, id)
	}
	return src, nil
}

// usableSource is source for requests that are meaningless on a finished source, those get dropped
func (st *State) usableSource(c *transport.Client, id uint32) (*datadevice.Source, bool, error) {
	if id == 0 {
		return nil, false, ipc.NewProtocolError(id, ipc.ErrCodeInvalidObject, "data source id 0")
	}
	src, err := st.source(c, id)
	if errors.Is(err, errSourceGone) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return src, true, nil
}

func toRect(r ipc.Rect) generaldata.Rect {
	return generaldata.NewRect(r.X, r.Y, r.Width, r.Height)
}

func toRegion(rects []ipc.Rect) *surface.Region {
	region := make(surface.Region, 0, len(rects))
	for _, r := range rects {
		region = append(region, toRect(r))
	}
	return &region
}

// roleError turns a refused role assignment into the protocol error the client gets
func roleError(id uint32, err error) error {
	if err == nil {
		return nil
	}
	return ipc.NewProtocolError(id, ipc.ErrCodeRole, "%s", err)
}

func validPositioner(id uint32, pos ipc.Positioner) error {
	if pos.Width <= 0 || pos.Height <= 0 || pos.AnchorRect.Width < 0 || pos.AnchorRect.Height < 0 {
		return ipc.NewProtocolError(id, ipc.ErrCodeInvalidArgs, "invalid positioner %dx%d", pos.Width, pos.Height)
	}
	return nil
}

// HandleRequest applies one client request. Protocol errors returned from here get the client disconnected
func (st *State) HandleRequest(c *transport.Client, req ipc.Request) error {
	logrus.WithFields(logrus.Fields{
		"client":  c.ID(),
		"request": req.RequestName(),
	}).Traceln("Handling request")

	switch r := req.(type) {
	case ipc.OutputRequest:
		st.sender.Send(c.ID(), st.describeOutputs(r))

	case ipc.CreateSurface:
		if err := c.AddObject(r.ID, transport.KindSurface); err != nil {
			return err
		}
		st.stateOf(c).surfaces[r.ID] = st.registry.Create(c.ID(), r.ID)
	case ipc.DestroySurface:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return repeatedDestroy(c, r.Surface, transport.KindSurface, err)
		}
		st.registry.Destroy(s)
		c.RemoveObject(r.Surface)
		delete(st.stateOf(c).surfaces, r.Surface)
	case ipc.CreateBuffer:
		return st.createBuffer(c, r)
	case ipc.DestroyBuffer:
		b, err := st.buffer(c, r.Buffer)
		if err != nil {
			return repeatedDestroy(c, r.Buffer, transport.KindBuffer, err)
		}
		st.registry.BufferDestroyed(b)
		c.RemoveObject(r.Buffer)
		delete(st.stateOf(c).buffers, r.Buffer)
	case ipc.Attach:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		var b *surface.Buffer
		if r.Buffer != 0 {
			if b, err = st.buffer(c, r.Buffer); err != nil {
				return err
			}
		}
		s.Attach(b, generaldata.Vector2i{X: r.X, Y: r.Y})
	case ipc.Damage:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		s.Damage(toRect(r.Rect))
	case ipc.SetInputRegion:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		if r.Infinite {
			s.SetInputRegion(nil)
		} else {
			s.SetInputRegion(toRegion(r.Rects))
		}
	case ipc.SetOpaqueRegion:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		s.SetOpaqueRegion(toRegion(r.Rects))
	case ipc.Frame:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		s.Frame(r.Callback)
	case ipc.Commit:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		st.registry.Commit(s)

	case ipc.GetSubsurface:
		child, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		parent, err := st.surface(c, r.Parent)
		if err != nil {
			return err
		}
		return roleError(r.Surface, st.registry.MakeSubsurface(child, parent))
	case ipc.SubsurfaceSetSync:
		s, err := st.subsurface(c, r.Surface)
		if err != nil {
			return err
		}
		s.SetSync(r.Sync)
	case ipc.SubsurfaceSetPosition:
		s, err := st.subsurface(c, r.Surface)
		if err != nil {
			return err
		}
		s.SetPosition(generaldata.Vector2i{X: r.X, Y: r.Y})
	case ipc.SubsurfacePlaceAbove:
		return st.restack(c, r.Surface, r.Sibling, (*surface.Surface).PlaceAbove)
	case ipc.SubsurfacePlaceBelow:
		return st.restack(c, r.Surface, r.Sibling, (*surface.Surface).PlaceBelow)

	case ipc.GetToplevel:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		_, err = st.shell.NewToplevel(s)
		return roleError(r.Surface, err)
	case ipc.DestroyToplevel:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return st.repeatedRoleDestroy(c, r.Surface, surface.RoleToplevel, err)
		}
		st.shell.DestroyToplevel(w)
	case ipc.SetTitle:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		w.SetTitle(r.Title)
	case ipc.SetAppID:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		w.SetAppID(r.AppID)
	case ipc.SetParent:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		var parent *shell.Window
		if r.Parent != 0 {
			if parent, err = st.window(c, r.Parent); err != nil {
				return err
			}
		}
		if !w.SetParent(parent) {
			return ipc.NewProtocolError(r.Surface, ipc.ErrCodeInvalidArgs, "parent %d would create a loop", r.Parent)
		}
	case ipc.SetWindowGeometry:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		if r.Rect.Width <= 0 || r.Rect.Height <= 0 {
			return ipc.NewProtocolError(r.Surface, ipc.ErrCodeInvalidArgs, "window geometry needs a positive size")
		}
		w.SetWindowGeometry(toRect(r.Rect))
	case ipc.SetMinSize:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		w.SetMinSize(generaldata.Vector2i{X: r.Width, Y: r.Height})
	case ipc.SetMaxSize:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		w.SetMaxSize(generaldata.Vector2i{X: r.Width, Y: r.Height})
	case ipc.Move:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		st.Move(w, generaldata.Serial(r.Serial))
	case ipc.Resize:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		st.Resize(w, generaldata.Serial(r.Serial), r.Edges)
	case ipc.SetMaximized:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		st.Maximize(w, r.Maximized)
	case ipc.SetFullscreen:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		st.Fullscreen(w, r.Fullscreen, r.Output)
	case ipc.SetMinimized:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		st.Minimize(w)
	case ipc.ShowWindowMenu:
		w, err := st.window(c, r.Surface)
		if err != nil {
			return err
		}
		st.ShowWindowMenu(w, generaldata.Serial(r.Serial), generaldata.Vector2i{X: r.X, Y: r.Y})
	case ipc.AckConfigure:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		if err := st.shell.AckConfigure(s, generaldata.Serial(r.Serial)); err != nil {
			return roleError(r.Surface, err)
		}

	case ipc.GetPopup:
		s, err := st.surface(c, r.Surface)
		if err != nil {
			return err
		}
		parent, err := st.surface(c, r.Parent)
		if err != nil {
			return err
		}
		if err := validPositioner(r.Surface, r.Positioner); err != nil {
			return err
		}
		_, err = st.shell.NewPopup(s, parent, r.Positioner)
		return roleError(r.Surface, err)
	case ipc.DestroyPopup:
		p, err := st.popup(c, r.Surface)
		if err != nil {
			return st.repeatedRoleDestroy(c, r.Surface, surface.RolePopup, err)
		}
		st.shell.DestroyPopup(p)
	case ipc.PopupGrab:
		p, err := st.popup(c, r.Surface)
		if err != nil {
			return err
		}
		if st.shell.GrabPopup(p, generaldata.Serial(r.Serial)) {
			st.sink.Emit(events.GrabStarted, logrus.Fields{"window": p.Root().Surface().ID(), "kind": "popup"})
		}
	case ipc.PopupReposition:
		p, err := st.popup(c, r.Surface)
		if err != nil {
			return err
		}
		if err := validPositioner(r.Surface, r.Positioner); err != nil {
			return err
		}
		p.Reposition(r.Positioner, r.Token)

	default:
		return st.handleDataRequest(c, req)
	}
	return nil
}

func (st *State) createBuffer(c *transport.Client, r ipc.CreateBuffer) error {
	if r.Width <= 0 || r.Height <= 0 {
		return ipc.NewProtocolError(r.ID, ipc.ErrCodeInvalidArgs, "buffer size %dx%d", r.Width, r.Height)
	}
	if len(r.Pixels) != 0 && len(r.Pixels) != r.Width*r.Height*4 {
		return ipc.NewProtocolError(r.ID, ipc.ErrCodeInvalidArgs, "%d bytes of pixels for a %dx%d buffer", len(r.Pixels), r.Width, r.Height)
	}
	if err := c.AddObject(r.ID, transport.KindBuffer); err != nil {
		return err
	}
	b := st.registry.NewBuffer(c.ID(), r.ID, generaldata.Vector2i{X: r.Width, Y: r.Height}, r.Scale)
	b.Color = r.Color
	b.Pixels = r.Pixels
	st.stateOf(c).buffers[r.ID] = b
	return nil
}

func (st *State) subsurface(c *transport.Client, id uint32) (*surface.Surface, error) {
	s, err := st.surface(c, id)
	if err != nil {
		return nil, err
	}
	if s.Role() != surface.RoleSubsurface {
		return nil, ipc.NewProtocolError(id, ipc.ErrCodeRole, "surface %d is not a subsurface", id)
	}
	return s, nil
}

func (st *State) restack(c *transport.Client, id, siblingID uint32, place func(*surface.Surface, *surface.Surface) error) error {
	s, err := st.subsurface(c, id)
	if err != nil {
		return err
	}
	sibling, err := st.surface(c, siblingID)
	if err != nil {
		return err
	}
	if err := place(s, sibling); err != nil {
		return ipc.NewProtocolError(id, ipc.ErrCodeInvalidArgs, "%s", err)
	}
	return nil
}

func (st *State) handleDataRequest(c *transport.Client, req ipc.Request) error {
	switch r := req.(type) {
	case ipc.CreateDataSource:
		if err := c.AddObject(r.ID, transport.KindDataSource); err != nil {
			return err
		}
		if _, err := st.data.CreateSource(c.ID(), r.ID); err != nil {
			return ipc.NewProtocolError(r.ID, ipc.ErrCodeInvalidObject, "%s", err)
		}
	case ipc.DataSourceOffer:
		src, ok, err := st.usableSource(c, r.Source)
		if !ok {
			return err
		}
		src.Offer(r.MimeType)
	case ipc.DataSourceSetActions:
		src, ok, err := st.usableSource(c, r.Source)
		if !ok {
			return err
		}
		src.SetActions(r.Actions)
	case ipc.DestroyDataSource:
		src, ok, err := st.usableSource(c, r.Source)
		if err != nil {
			return err
		}
		if ok {
			st.data.DestroySource(src)
		}
		c.RemoveObject(r.Source)
	case ipc.SetSelection:
		src, err := st.source(c, r.Source)
		if err != nil {
			return err
		}
		before := st.data.Selection()
		if err := st.data.SetSelection(c.ID(), src); err != nil {
			return ipc.NewProtocolError(r.Source, ipc.ErrCodeInvalidObject, "%s", err)
		}
		if after := st.data.Selection(); after != before {
			st.sink.Emit(events.SelectionChanged, logrus.Fields{
				"client": c.ID(),
				"mime":   selectionMimes(after),
			})
		}
	case ipc.StartDrag:
		return st.startDrag(c, r)
	case ipc.DataOfferAccept:
		st.data.Accept(c.ID(), r.MimeType)
	case ipc.DataOfferSetActions:
		st.data.SetOfferActions(c.ID(), r.Actions, r.Preferred)
	case ipc.DataOfferFinish:
		st.data.Finish(c.ID())
	default:
		return ipc.NewProtocolError(0, ipc.ErrCodeInvalidMethod, "unhandled request %s", req.RequestName())
	}
	return nil
}

func selectionMimes(src *datadevice.Source) []string {
	if src == nil {
		return []string{}
	}
	return src.MimeTypes()
}

func (st *State) startDrag(c *transport.Client, r ipc.StartDrag) error {
	src, err := st.source(c, r.Source)
	if err != nil {
		return err
	}
	origin, err := st.surface(c, r.Origin)
	if err != nil {
		return err
	}
	var icon *surface.Surface
	if r.Icon != 0 {
		if icon, err = st.surface(c, r.Icon); err != nil {
			return err
		}
	}
	_, err = st.data.StartDrag(c.ID(), src, origin, icon, generaldata.Serial(r.Serial))
	switch {
	case err == nil:
		st.sink.Emit(events.GrabStarted, logrus.Fields{"client": c.ID(), "kind": "drag"})
	case errors.Is(err, datadevice.ErrDragSerial), errors.Is(err, datadevice.ErrDragActive):
		logrus.WithError(err).WithField("client", c.ID()).Debugln("Ignoring drag request")
	case errors.Is(err, datadevice.ErrSourceUsed):
		return ipc.NewProtocolError(r.Source, ipc.ErrCodeInvalidObject, "%s", err)
	default:
		return roleError(r.Icon, err)
	}
	return nil
}
