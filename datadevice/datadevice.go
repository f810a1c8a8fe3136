// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package datadevice handles the selection (clipboard) and drag and drop sessions of a seat
package datadevice

import (
	"errors"
	"fmt"

	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
)

var (
	ErrSourceExists = errors.New("data source id already in use")
	ErrSourceUsed   = errors.New("data source already used for a selection or drag")
)

// Source is a client's offer of data in some mime types
type Source struct {
	client    generaldata.ClientID
	id        uint32
	mimeTypes []string
	actions   ipc.DndAction
	used      bool
	destroyed bool
}

func (s *Source) Client() generaldata.ClientID {
	return s.client
}

func (s *Source) ID() uint32 {
	return s.id
}

func (s *Source) MimeTypes() []string {
	return append([]string{}, s.mimeTypes...)
}

func (s *Source) Actions() ipc.DndAction {
	return s.actions
}

// Offer adds a mime type. Duplicates are ignored
func (s *Source) Offer(mime string) {
	for _, m := range s.mimeTypes {
		if m == mime {
			return
		}
	}
	s.mimeTypes = append(s.mimeTypes, mime)
}

func (s *Source) SetActions(actions ipc.DndAction) {
	s.actions = actions & (ipc.DndActionCopy | ipc.DndActionMove | ipc.DndActionAsk)
}

type sourceKey struct {
	client generaldata.ClientID
	id     uint32
}

// Manager owns the data sources of every client, the current selection and the drag session
type Manager struct {
	seat   *seat.Seat
	sender ipc.Sender

	sources   map[sourceKey]*Source
	selection *Source
	drag      *Drag
	awaiting  []*Drag
}

func NewManager(st *seat.Seat, sender ipc.Sender) *Manager {
	m := &Manager{
		seat:    st,
		sender:  sender,
		sources: make(map[sourceKey]*Source),
	}
	st.OnKeyboardFocus(func(_, focus *surface.Surface) {
		if focus != nil {
			m.offerSelection(focus.Client())
		}
	})
	return m
}

func (m *Manager) CreateSource(client generaldata.ClientID, id uint32) (*Source, error) {
	key := sourceKey{client, id}
	if _, ok := m.sources[key]; ok {
		return nil, fmt.Errorf("%w: %d", ErrSourceExists, id)
	}
	src := &Source{client: client, id: id}
	m.sources[key] = src
	return src, nil
}

func (m *Manager) Source(client generaldata.ClientID, id uint32) (*Source, bool) {
	src, ok := m.sources[sourceKey{client, id}]
	return src, ok
}

// Selection returns the source currently backing the clipboard
func (m *Manager) Selection() *Source {
	return m.selection
}

// SetSelection replaces the selection. Only the client with keyboard focus may do so,
// anyone else is ignored. src nil clears the selection
func (m *Manager) SetSelection(client generaldata.ClientID, src *Source) error {
	focus := m.seat.KeyboardFocus()
	if focus == nil || focus.Client() != client {
		logrus.WithField("client", client).Debugln("Ignoring selection from client without keyboard focus")
		return nil
	}
	if src != nil {
		if src.used && src != m.selection {
			return ErrSourceUsed
		}
		src.used = true
	}
	if old := m.selection; old != nil && old != src {
		m.cancel(old)
	}
	m.selection = src
	logrus.WithFields(logrus.Fields{
		"client": client,
		"mime":   m.selectionMimes(),
	}).Debugln("Selection changed")
	m.offerSelection(focus.Client())
	return nil
}

func (m *Manager) selectionMimes() []string {
	if m.selection == nil {
		return []string{}
	}
	return m.selection.MimeTypes()
}

func (m *Manager) offerSelection(client generaldata.ClientID) {
	m.sender.Send(client, ipc.SelectionOffer{MimeTypes: m.selectionMimes()})
}

func (m *Manager) cancel(src *Source) {
	if src.destroyed {
		return
	}
	m.sender.Send(src.client, ipc.DataSourceCancelled{Source: src.id})
}

// DestroySource forgets src. A selection it was backing is cleared, a drag it was feeding is cancelled
func (m *Manager) DestroySource(src *Source) {
	if src.destroyed {
		return
	}
	src.destroyed = true
	delete(m.sources, sourceKey{src.client, src.id})
	if m.selection == src {
		m.selection = nil
		if focus := m.seat.KeyboardFocus(); focus != nil {
			m.offerSelection(focus.Client())
		}
	}
	if m.drag != nil && m.drag.source == src {
		m.drag.abort()
	}
	for _, d := range m.Awaiting() {
		if d.source == src {
			d.abort()
		}
	}
}

// ClientGone destroys every source of a disconnected client
func (m *Manager) ClientGone(client generaldata.ClientID) {
	for key, src := range m.sources {
		if key.client == client {
			m.DestroySource(src)
		}
	}
	if m.drag != nil && (m.drag.client == client || m.drag.targetClient() == client) {
		m.drag.abort()
	}
	// A target that leaves without finishing cancels the transfer
	for _, d := range m.Awaiting() {
		if d.client == client || d.targetClient() == client {
			d.abort()
		}
	}
}
