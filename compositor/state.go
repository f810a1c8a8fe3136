// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package compositor holds the compositor state and window management policy,
// and drives it from the event loop
package compositor

import (
	"image/color"
	"time"

	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/datadevice"
	"github.com/mstarongithub/twm/events"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/input"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/shell"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/surface"
	"github.com/mstarongithub/twm/transport"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// Where new windows are placed relative to the output, and how far each one is shifted from the last
const cascadeStep = 32

type Options struct {
	Output *space.Output
	// Where events for clients go, usually the transport display
	Sender ipc.Sender
	Sink   events.Sink
	// Called when a key binding or the console asks the compositor to quit
	Stop         func()
	ScrollFactor float64
	Damage       space.DamageMode
	Background   color.Color
	RepeatRate   int
	RepeatDelay  int
}

// clientState is what the compositor knows about one client, besides what the registries track
type clientState struct {
	client   *transport.Client
	surfaces map[uint32]*surface.Surface
	buffers  map[uint32]*surface.Buffer
}

type State struct {
	serials  *generaldata.SerialCounter
	registry *surface.Registry
	space    *space.Space[*shell.Window]
	seat     *seat.Seat
	shell    *shell.Shell
	data     *datadevice.Manager
	router   *input.Router
	output   *space.Output
	damage   *space.DamageTracker

	sender     ipc.Sender
	sink       events.Sink
	stop       func()
	background color.Color

	clients    map[generaldata.ClientID]*clientState
	// Where a window's geometry should end up once its pending configure lands, in space coordinates
	placements map[*shell.Window]generaldata.Vector2i
	minimized  []*shell.Window
	// A finished resize whose last configures haven't been committed yet
	settling   *resizeGrab
	cascade    int
	started    time.Time
}

func New(opts Options) *State {
	if opts.Sink == nil {
		opts.Sink = events.Discard{}
	}
	if opts.Stop == nil {
		opts.Stop = func() {}
	}
	if opts.Background == nil {
		opts.Background = color.RGBA{R: 26, G: 26, B: 26, A: 255}
	}
	st := &State{
		serials:    &generaldata.SerialCounter{},
		registry:   surface.NewRegistry(),
		output:     opts.Output,
		damage:     space.NewDamageTracker(opts.Damage),
		sender:     opts.Sender,
		sink:       opts.Sink,
		stop:       opts.Stop,
		background: opts.Background,
		clients:    make(map[generaldata.ClientID]*clientState),
		placements: make(map[*shell.Window]generaldata.Vector2i),
		started:    time.Now(),
	}
	st.space = space.New[*shell.Window](st.registry)
	st.space.MapOutput(opts.Output, generaldata.Vector2i{})
	st.seat = seat.New("seat0", opts.Sender, st.serials)
	if opts.RepeatRate > 0 {
		st.seat.SetRepeatInfo(opts.RepeatRate, opts.RepeatDelay)
	}
	st.shell = shell.New(st.registry, st.seat, opts.Sender, st.serials, st)
	st.data = datadevice.NewManager(st.seat, opts.Sender)
	st.router = input.New(st.space, st.seat, opts.Output, opts.Sink)
	if opts.ScrollFactor > 0 {
		st.router.SetScrollFactor(opts.ScrollFactor)
	}
	st.router.SetKeyFilter(st.keyBindings)
	st.registry.OnRelease(func(b *surface.Buffer) {
		st.sender.Send(b.Client, ipc.BufferRelease{Buffer: b.ID})
	})
	return st
}

func (st *State) Space() *space.Space[*shell.Window] { return st.space }
func (st *State) Seat() *seat.Seat                   { return st.seat }
func (st *State) Shell() *shell.Shell                { return st.shell }
func (st *State) Data() *datadevice.Manager          { return st.data }
func (st *State) Router() *input.Router              { return st.router }
func (st *State) Output() *space.Output              { return st.output }
func (st *State) Surfaces() *surface.Registry        { return st.registry }

// Window finds a live toplevel by its surface id
func (st *State) Window(id surface.ID) (*shell.Window, bool) {
	surf, ok := st.registry.Get(id)
	if !ok {
		return nil, false
	}
	return st.shell.Window(surf)
}

// Minimized returns the windows waiting for Restore
func (st *State) Minimized() []*shell.Window {
	st.minimized = sliceutils.Filter(st.minimized, func(w *shell.Window) bool { return w.Alive() })
	return append([]*shell.Window(nil), st.minimized...)
}

func (st *State) outputGeometry() generaldata.Rect {
	geo, ok := st.space.OutputGeometry(st.output)
	if !ok {
		return generaldata.Rect{Size: st.output.LogicalSize()}
	}
	return geo
}

func windowFields(w *shell.Window) logrus.Fields {
	return logrus.Fields{
		"window": w.Surface().ID(),
		"client": w.Surface().Client(),
		"title":  w.Title(),
	}
}

// Map places a newly mapped window, cascading from the output's top left corner, and focuses it
func (st *State) Map(w *shell.Window) {
	if w.Minimized() {
		return
	}
	var loc generaldata.Vector2i
	if target, ok := st.placements[w]; ok {
		loc = target.Sub(w.Geometry().Loc)
		delete(st.placements, w)
	} else {
		out := st.outputGeometry()
		step := st.cascade % 10
		st.cascade++
		loc = out.Loc.Add(generaldata.Vector2i{X: cascadeStep * (step + 1), Y: cascadeStep * (step + 1)}).Sub(w.Geometry().Loc)
	}
	st.space.MapElement(w, loc, false)
	st.router.FocusWindow(w)
	fields := windowFields(w)
	fields["location"] = loc
	st.sink.Emit(events.WindowMapped, fields)
}

func (st *State) Unmap(w *shell.Window) {
	st.endGrabsOn(w)
	if !w.Alive() {
		delete(st.placements, w)
		if st.settling != nil && st.settling.window == w {
			st.settling = nil
		}
	}
	if !st.space.UnmapElement(w) {
		return
	}
	st.sink.Emit(events.WindowUnmapped, windowFields(w))
	st.focusAfterLoss(w)
}

// focusAfterLoss hands keyboard focus to the topmost remaining window if w had it
func (st *State) focusAfterLoss(w *shell.Window) {
	focus := st.seat.KeyboardFocus()
	if focus != nil && focus.Root() != w.Surface() {
		if owner, ok := st.shell.WindowFor(focus); !ok || owner != w {
			return
		}
	}
	elements := st.space.Elements()
	for i := len(elements) - 1; i >= 0; i-- {
		if elements[i] != w && elements[i].Alive() {
			st.router.FocusWindow(elements[i])
			return
		}
	}
	st.router.FocusWindow(nil)
}

// Configured moves a window to its target place once the configure that resized it got committed
func (st *State) Configured(w *shell.Window) {
	if g, ok := st.seat.Grab().(*resizeGrab); ok && g.window == w {
		g.settle()
	} else if g := st.settling; g != nil && g.window == w {
		g.settle()
		if len(w.Inflight()) == 0 {
			st.settling = nil
		}
	}
	if target, ok := st.placements[w]; ok {
		delete(st.placements, w)
		st.space.MoveElement(w, target.Sub(w.Geometry().Loc))
	}
	fields := windowFields(w)
	fields["geometry"] = w.Geometry()
	fields["states"] = w.Current().States.Strings()
	st.sink.Emit(events.WindowConfigured, fields)
}

func (st *State) Move(w *shell.Window, serial generaldata.Serial) {
	if !st.grabAllowed(w, serial) {
		return
	}
	loc, ok := st.space.ElementLocation(w)
	if !ok {
		return
	}
	st.seat.SetGrab(&moveGrab{
		state:  st,
		window: w,
		offset: st.seat.PointerLocation().Sub(loc.ToPoint()),
	})
	st.sink.Emit(events.GrabStarted, logrus.Fields{"window": w.Surface().ID(), "kind": "move"})
}

func (st *State) Resize(w *shell.Window, serial generaldata.Serial, edges ipc.Edges) {
	if !st.grabAllowed(w, serial) || edges == ipc.EdgeNone {
		return
	}
	box, ok := st.space.ElementGeometry(w)
	if !ok {
		return
	}
	w.WithPending(func(state *shell.ToplevelState) {
		state.Set(shell.StateResizing, true)
	})
	w.SendPendingConfigure()
	st.seat.SetGrab(&resizeGrab{
		state:  st,
		window: w,
		box:    box,
		edges:  edges,
	})
	st.sink.Emit(events.GrabStarted, logrus.Fields{"window": w.Surface().ID(), "kind": "resize"})
}

// grabAllowed denies move and resize to windows that don't hold the pointer with a pressed button
func (st *State) grabAllowed(w *shell.Window, serial generaldata.Serial) bool {
	if st.seat.IsGrabbed() || !st.seat.ValidateButtonSerial(w.Surface(), serial) {
		logrus.WithFields(logrus.Fields{
			"window": w.Surface().ID(),
			"serial": serial,
		}).Debugln("Denying interactive grab")
		return false
	}
	return true
}

func (st *State) endGrabsOn(w *shell.Window) {
	switch g := st.seat.Grab().(type) {
	case *moveGrab:
		if g.window == w {
			st.seat.ReleaseGrab(g)
		}
	case *resizeGrab:
		if g.window == w {
			st.seat.ReleaseGrab(g)
		}
	}
}

// Maximize sizes the window to the output. Unmaximizing brings back the geometry it had before
func (st *State) Maximize(w *shell.Window, maximized bool) {
	st.fill(w, shell.StateMaximized, maximized)
}

func (st *State) Fullscreen(w *shell.Window, fullscreen bool, output string) {
	if output != "" && output != st.output.Name() {
		logrus.WithField("output", output).Debugln("Unknown fullscreen output, using the current one")
	}
	st.fill(w, shell.StateFullscreen, fullscreen)
}

func (st *State) fill(w *shell.Window, flag shell.StateFlags, on bool) {
	if w.Pending().Has(flag) == on {
		w.SendPendingConfigure()
		return
	}
	if on {
		if geo, ok := st.space.ElementGeometry(w); ok {
			w.SaveRestore(geo)
		}
		out := st.outputGeometry()
		w.WithPending(func(state *shell.ToplevelState) {
			state.Set(flag, true)
			state.Size = out.Size
		})
		st.placements[w] = out.Loc
	} else {
		// Leaving fullscreen into a still maximized window keeps the output size
		other := (shell.StateMaximized | shell.StateFullscreen) &^ flag
		w.WithPending(func(state *shell.ToplevelState) {
			state.Set(flag, false)
			if state.States&other != 0 {
				return
			}
			if restore, ok := w.TakeRestore(); ok {
				state.Size = restore.Size
				st.placements[w] = restore.Loc
			} else {
				state.Size = generaldata.Vector2i{}
			}
		})
	}
	w.SendPendingConfigure()
}

// Minimize takes the window out of the space until Restore brings it back
func (st *State) Minimize(w *shell.Window) {
	if w.Minimized() {
		return
	}
	loc, mapped := st.space.ElementLocation(w)
	w.SetMinimized(true)
	if mapped {
		st.placements[w] = loc.Add(w.Geometry().Loc)
	}
	st.endGrabsOn(w)
	if st.space.UnmapElement(w) {
		w.SetActivated(false)
		st.focusAfterLoss(w)
		st.sink.Emit(events.WindowUnmapped, windowFields(w))
	}
	st.minimized = append(st.minimized, w)
}

// Restore maps a minimized window back where it was and focuses it
func (st *State) Restore(w *shell.Window) bool {
	if !w.Minimized() || !w.Alive() {
		return false
	}
	w.SetMinimized(false)
	st.minimized = sliceutils.Filter(st.minimized, func(other *shell.Window) bool { return other != w })
	if w.Mapped() {
		st.Map(w)
	}
	return true
}

func (st *State) ShowWindowMenu(w *shell.Window, serial generaldata.Serial, at generaldata.Vector2i) {
	logrus.WithFields(logrus.Fields{
		"window": w.Surface().ID(),
		"serial": serial,
		"at":     at,
	}).Infoln("Window menu requested, there is no menu to show")
}

func (st *State) Locate(w *shell.Window) (generaldata.Vector2i, bool) {
	return st.space.ElementLocation(w)
}

// cycleFocus focuses the window right below the top one, like alt tab with two windows
func (st *State) cycleFocus() {
	elements := st.space.Elements()
	if len(elements) < 2 {
		return
	}
	st.router.FocusWindow(elements[len(elements)-2])
}
