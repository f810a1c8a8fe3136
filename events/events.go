// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package events is the structured event stream of the compositor.
// Things worth observing (clients coming and going, windows mapping, focus moving)
// are emitted as events instead of being printed
package events

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mstarongithub/twm/util/multiplexer"
	"github.com/sirupsen/logrus"
)

type Kind string

const (
	ClientConnected    = Kind("client.connected")
	ClientDisconnected = Kind("client.disconnected")
	WindowMapped       = Kind("window.mapped")
	WindowUnmapped     = Kind("window.unmapped")
	WindowConfigured   = Kind("window.configured")
	FocusChanged       = Kind("focus.changed")
	SelectionChanged   = Kind("selection.changed")
	GrabStarted        = Kind("grab.started")
	LoopStopping       = Kind("loop.stopping")
	FrameFailed        = Kind("frame.failed")
)

type Event struct {
	Kind   Kind
	Time   time.Time
	Fields logrus.Fields
}

// String renders the event as one line, fields sorted by name
func (e Event) String() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b := strings.Builder{}
	b.WriteString(e.Time.Format("15:04:05.000"))
	b.WriteString(" ")
	b.WriteString(string(e.Kind))
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

// Sink receives events. Emit is called from the control loop and must not block
type Sink interface {
	Emit(kind Kind, fields logrus.Fields)
}

// Discard drops everything
type Discard struct{}

func (Discard) Emit(Kind, logrus.Fields) {}

// LogSink writes every event to logrus
type LogSink struct {
	Level logrus.Level
}

func (s LogSink) Emit(kind Kind, fields logrus.Fields) {
	logrus.WithFields(fields).WithField("event", string(kind)).Log(s.Level, "Compositor event")
}

// Multi emits to every sink in order
type Multi []Sink

func (m Multi) Emit(kind Kind, fields logrus.Fields) {
	for _, s := range m {
		s.Emit(kind, fields)
	}
}

// Broadcast hands events to named subscribers, e.g. the console's watch command.
// Subscribers that fall behind miss events
type Broadcast struct {
	plexer *multiplexer.OneToMany[Event]
	now    func() time.Time
}

func NewBroadcast(buffer int) *Broadcast {
	b := &Broadcast{
		plexer: multiplexer.NewOneToMany[Event](buffer),
		now:    time.Now,
	}
	go b.plexer.StartPlexer()
	return b
}

func (b *Broadcast) Emit(kind Kind, fields logrus.Fields) {
	copied := make(logrus.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	if !b.plexer.TrySend(Event{Kind: kind, Time: b.now(), Fields: copied}) {
		logrus.WithField("event", string(kind)).Debugln("Event broadcast backed up, dropping event")
	}
}

// Subscribe returns a channel of every event from now on. Call Unsubscribe with the same name when done
func (b *Broadcast) Subscribe(name string, buffer int) (<-chan Event, error) {
	return b.plexer.MakeReceiver(name, buffer)
}

func (b *Broadcast) Unsubscribe(name string) {
	b.plexer.CloseReceiver(name)
}

func (b *Broadcast) Subscribers() []string {
	return b.plexer.Receivers()
}

// Close ends every subscription
func (b *Broadcast) Close() {
	b.plexer.CloseSender()
}
