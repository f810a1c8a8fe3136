// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"errors"
	"fmt"
	"time"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/events"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
)

// PumpInput applies everything the input backend has queued.
// Returns true once the backend reported that it closed
func (st *State) PumpInput(in backend.InputBackend) bool {
	closed := false
	err := in.Dispatch(func(ev backend.InputEvent) {
		if st.router.Process(ev) {
			closed = true
		}
	})
	if errors.Is(err, backend.ErrClosed) {
		return true
	}
	if err != nil {
		logrus.WithError(err).Warnln("Failed to dispatch input")
	}
	return closed
}

// Render draws one frame of the space onto r
func (st *State) Render(r backend.Renderer) error {
	if err := r.Bind(); err != nil {
		return fmt.Errorf("bind render target: %w", err)
	}
	elements := st.space.RenderElements(st.output)
	elements = append(elements, st.dragIconElements()...)
	damage := st.damage.Damage(st.output.LogicalSize(), elements)
	if err := r.Render(st.output, elements, damage, st.background); err != nil {
		return fmt.Errorf("render frame: %w", err)
	}
	if err := r.Submit(damage); err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}
	return nil
}

// dragIconElements places the drag icon, if any, at the pointer
func (st *State) dragIconElements() []space.RenderElement {
	drag := st.data.Drag()
	if drag == nil || drag.Icon() == nil {
		return nil
	}
	out := st.outputGeometry()
	loc := st.seat.PointerLocation().Floor().Sub(out.Loc)
	elements := []space.RenderElement{}
	drag.Icon().Tree(func(s *surface.Surface, offset generaldata.Vector2i) bool {
		if !s.HasContent() {
			return true
		}
		origin := loc.Add(offset)
		damage := []generaldata.Rect{}
		for _, d := range s.PendingDamage() {
			damage = append(damage, d.Translate(origin))
		}
		elements = append(elements, space.RenderElement{
			Surface:  s,
			Buffer:   s.Buffer(),
			Geometry: generaldata.Rect{Loc: origin, Size: s.Size()},
			Damage:   damage,
		})
		return true
	})
	return elements
}

// SendFrames tells every window on the output, and the drag icon, that it may draw its next buffer
func (st *State) SendFrames() {
	elapsed := time.Since(st.started)
	for _, w := range st.space.ElementsForOutput(st.output) {
		if w.Alive() {
			w.SendFrame(st.output, elapsed)
		}
	}
	if drag := st.data.Drag(); drag != nil && drag.Icon() != nil {
		ms := uint32(elapsed.Milliseconds())
		drag.Icon().Tree(func(s *surface.Surface, _ generaldata.Vector2i) bool {
			s.TakeDamage()
			for _, cb := range s.TakeFrameCallbacks() {
				st.sender.Send(s.Client(), ipc.FrameDone{Callback: cb, Time: ms})
			}
			return true
		})
	}
}

// Tick is one redraw cycle: drain input, draw, hand out frame callbacks and prune dead windows.
// Returns false when the input backend closed and the loop should stop
func (st *State) Tick(in backend.InputBackend, r backend.Renderer) bool {
	if st.PumpInput(in) {
		return false
	}
	if err := st.Render(r); err != nil {
		logrus.WithError(err).Warnln("Frame failed")
		st.sink.Emit(events.FrameFailed, logrus.Fields{"error": err.Error()})
	}
	st.SendFrames()
	st.space.Refresh()
	return true
}

// describeOutputs answers an output.list request
func (st *State) describeOutputs(req ipc.OutputRequest) ipc.OutputResponse {
	resp := ipc.OutputResponse{Outputs: []string{}}
	for _, o := range st.space.Outputs() {
		if req.SpecifiesOutput && o.Name() != req.TargetOutput {
			continue
		}
		resp.Outputs = append(resp.Outputs, o.Name())
		if !req.IncludeModes {
			continue
		}
		if resp.OutputModes == nil {
			resp.OutputModes = make(map[string][]ipc.OutputMode)
		}
		modes := []ipc.OutputMode{}
		for _, m := range o.Modes() {
			modes = append(modes, ipc.OutputMode{
				Height:      m.Size.Y,
				Width:       m.Size.X,
				RefreshRate: m.Refresh,
			})
		}
		resp.OutputModes[o.Name()] = modes
	}
	resp.OutputsFound = len(resp.Outputs)
	return resp
}
