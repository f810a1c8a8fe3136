// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package space

import (
	generaldata "github.com/mstarongithub/twm/general-data"
)

// Mode is a display mode. Refresh is in millihertz
type Mode struct {
	Size    generaldata.Vector2i
	Refresh int
}

type PhysicalProperties struct {
	// Physical size in millimeters
	Size  generaldata.Vector2i
	Make  string
	Model string
}

// Output is a physical or virtual display. It lives for as long as the process does
type Output struct {
	name      string
	physical  PhysicalProperties
	current   Mode
	preferred Mode
	transform generaldata.Transform
	scale     int
	modes     []Mode
}

func NewOutput(name string, physical PhysicalProperties) *Output {
	return &Output{
		name:     name,
		physical: physical,
		scale:    1,
	}
}

func (o *Output) Name() string {
	return o.name
}

func (o *Output) Physical() PhysicalProperties {
	return o.physical
}

func (o *Output) CurrentMode() Mode {
	return o.current
}

func (o *Output) PreferredMode() Mode {
	return o.preferred
}

// Modes lists every mode the output has been set to or advertised with
func (o *Output) Modes() []Mode {
	return append([]Mode(nil), o.modes...)
}

func (o *Output) Transform() generaldata.Transform {
	return o.transform
}

func (o *Output) Scale() int {
	return o.scale
}

// SetMode switches the current mode, remembering it in the mode list
func (o *Output) SetMode(mode Mode) {
	o.current = mode
	o.addMode(mode)
}

func (o *Output) SetPreferred(mode Mode) {
	o.preferred = mode
	o.addMode(mode)
}

func (o *Output) SetTransform(t generaldata.Transform) {
	o.transform = t
}

func (o *Output) SetScale(scale int) {
	o.scale = max(scale, 1)
}

func (o *Output) addMode(mode Mode) {
	for _, m := range o.modes {
		if m == mode {
			return
		}
	}
	o.modes = append(o.modes, mode)
}

// LogicalSize is the mode size after transform and scale, the size the output takes up in the space
func (o *Output) LogicalSize() generaldata.Vector2i {
	size := o.transform.TransformSize(o.current.Size)
	return generaldata.Vector2i{X: size.X / o.scale, Y: size.Y / o.scale}
}

// FrameInterval returns the refresh period in milliseconds, falling back to 60Hz
func (o *Output) FrameInterval() int {
	if o.current.Refresh <= 0 {
		return 16
	}
	return 1_000_000 / o.current.Refresh
}
