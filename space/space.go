// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package space keeps the z-ordered list of windows, maps them onto outputs
// and answers "what is under this point".
package space

import (
	"time"

	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// Element is anything the space can stack. In practice that is a shell window
type Element interface {
	comparable
	// Window geometry relative to the element's location
	Geometry() generaldata.Rect
	// Everything the element draws, relative to its location
	Bbox() generaldata.Rect
	// p is relative to the element's location
	IsInInputRegion(p generaldata.Point) bool
	// Returns whether the activation state changed
	SetActivated(activated bool) bool
	Alive() bool
	// loc is where the element sits relative to the output the elements are made for
	RenderElements(loc generaldata.Vector2i) []RenderElement
	SendFrame(output *Output, elapsed time.Duration)
}

// RenderElement is one surface to draw, already positioned in output local logical coordinates
type RenderElement struct {
	Surface *surface.Surface
	Buffer  *surface.Buffer
	// Output local, logical
	Geometry generaldata.Rect
	// Output local, logical
	Damage []generaldata.Rect
}

type mappedElement[E Element] struct {
	element  E
	location generaldata.Vector2i
}

type mappedOutput struct {
	output   *Output
	location generaldata.Vector2i
}

// Space is the window space. Elements are kept back to front, so the last one is on top.
// The space owns the surface registry
type Space[E Element] struct {
	registry *surface.Registry
	elements []*mappedElement[E]
	outputs  []*mappedOutput
}

func New[E Element](registry *surface.Registry) *Space[E] {
	return &Space[E]{
		registry: registry,
	}
}

func (s *Space[E]) Surfaces() *surface.Registry {
	return s.registry
}

func (s *Space[E]) find(e E) (int, *mappedElement[E]) {
	for i, m := range s.elements {
		if m.element == e {
			return i, m
		}
	}
	return -1, nil
}

// MapElement places e at loc on top of everything else. Mapping an already mapped element
// moves and raises it
func (s *Space[E]) MapElement(e E, loc generaldata.Vector2i, activate bool) {
	if i, m := s.find(e); m != nil {
		m.location = loc
		s.elements = append(s.elements[:i], s.elements[i+1:]...)
		s.elements = append(s.elements, m)
	} else {
		s.elements = append(s.elements, &mappedElement[E]{element: e, location: loc})
	}
	logrus.WithFields(logrus.Fields{
		"location": loc,
		"elements": len(s.elements),
	}).Debugln("Mapped element")
	if activate {
		s.activate(e)
	}
}

// RaiseElement moves e to the top. With activate set, e gets activated and every other element deactivated
func (s *Space[E]) RaiseElement(e E, activate bool) {
	i, m := s.find(e)
	if m == nil {
		return
	}
	s.elements = append(s.elements[:i], s.elements[i+1:]...)
	s.elements = append(s.elements, m)
	if activate {
		s.activate(e)
	}
}

// MoveElement changes where e sits without touching the stacking order
func (s *Space[E]) MoveElement(e E, loc generaldata.Vector2i) bool {
	_, m := s.find(e)
	if m == nil {
		return false
	}
	m.location = loc
	return true
}

func (s *Space[E]) activate(e E) {
	for _, m := range s.elements {
		m.element.SetActivated(m.element == e)
	}
}

// UnmapElement removes e from the space. Returns false if it wasn't mapped
func (s *Space[E]) UnmapElement(e E) bool {
	i, m := s.find(e)
	if m == nil {
		return false
	}
	s.elements = append(s.elements[:i], s.elements[i+1:]...)
	logrus.WithField("elements", len(s.elements)).Debugln("Unmapped element")
	return true
}

// ElementUnder returns the topmost element whose input region contains p, and its location
func (s *Space[E]) ElementUnder(p generaldata.Point) (E, generaldata.Vector2i, bool) {
	for i := len(s.elements) - 1; i >= 0; i-- {
		m := s.elements[i]
		if !m.element.Alive() {
			continue
		}
		if m.element.IsInInputRegion(p.Sub(m.location.ToPoint())) {
			return m.element, m.location, true
		}
	}
	var zero E
	return zero, generaldata.Vector2i{}, false
}

func (s *Space[E]) ElementLocation(e E) (generaldata.Vector2i, bool) {
	if _, m := s.find(e); m != nil {
		return m.location, true
	}
	return generaldata.Vector2i{}, false
}

// ElementGeometry is the element's window geometry in space coordinates
func (s *Space[E]) ElementGeometry(e E) (generaldata.Rect, bool) {
	_, m := s.find(e)
	if m == nil {
		return generaldata.Rect{}, false
	}
	return e.Geometry().Translate(m.location), true
}

// Elements returns the mapped elements back to front
func (s *Space[E]) Elements() []E {
	out := make([]E, 0, len(s.elements))
	for _, m := range s.elements {
		out = append(out, m.element)
	}
	return out
}

// ElementsForOutput returns the mapped elements whose bounding box overlaps o, back to front
func (s *Space[E]) ElementsForOutput(o *Output) []E {
	geo, ok := s.OutputGeometry(o)
	if !ok {
		return nil
	}
	out := []E{}
	for _, m := range s.elements {
		if m.element.Bbox().Translate(m.location).Overlaps(geo) {
			out = append(out, m.element)
		}
	}
	return out
}

// MapOutput places o at loc. Mapping it again moves it
func (s *Space[E]) MapOutput(o *Output, loc generaldata.Vector2i) {
	for _, m := range s.outputs {
		if m.output == o {
			m.location = loc
			return
		}
	}
	s.outputs = append(s.outputs, &mappedOutput{output: o, location: loc})
}

func (s *Space[E]) UnmapOutput(o *Output) {
	s.outputs = sliceutils.Filter(s.outputs, func(m *mappedOutput) bool {
		return m.output != o
	})
}

func (s *Space[E]) Outputs() []*Output {
	out := make([]*Output, 0, len(s.outputs))
	for _, m := range s.outputs {
		out = append(out, m.output)
	}
	return out
}

// OutputGeometry is the area o covers in space coordinates
func (s *Space[E]) OutputGeometry(o *Output) (generaldata.Rect, bool) {
	for _, m := range s.outputs {
		if m.output == o {
			return generaldata.Rect{Loc: m.location, Size: o.LogicalSize()}, true
		}
	}
	return generaldata.Rect{}, false
}

// OutputUnder returns the outputs covering p
func (s *Space[E]) OutputUnder(p generaldata.Point) []*Output {
	out := []*Output{}
	for _, m := range s.outputs {
		if (generaldata.Rect{Loc: m.location, Size: m.output.LogicalSize()}).Contains(p) {
			out = append(out, m.output)
		}
	}
	return out
}

// Refresh drops elements that died since the last call. Called once per frame from the render tick
func (s *Space[E]) Refresh() {
	before := len(s.elements)
	s.elements = sliceutils.Filter(s.elements, func(m *mappedElement[E]) bool {
		return m.element.Alive()
	})
	if dropped := before - len(s.elements); dropped > 0 {
		logrus.WithField("dropped", dropped).Debugln("Pruned dead elements from space")
	}
}

// RenderElements collects what to draw on o, back to front, in output local coordinates
func (s *Space[E]) RenderElements(o *Output) []RenderElement {
	geo, ok := s.OutputGeometry(o)
	if !ok {
		return nil
	}
	out := []RenderElement{}
	for _, m := range s.elements {
		if !m.element.Alive() {
			continue
		}
		if !m.element.Bbox().Translate(m.location).Overlaps(geo) {
			continue
		}
		out = append(out, m.element.RenderElements(m.location.Sub(geo.Loc))...)
	}
	return out
}
