// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package generaldata holds the small value types shared by every part of the compositor:
// integer and float coordinates, rectangles, output transforms, serials and client ids.
package generaldata

import (
	"fmt"
	"math"
)

// Vector2i is a point or a size in integer logical units
type Vector2i struct {
	X int
	Y int
}

func (v Vector2i) Add(o Vector2i) Vector2i {
	return Vector2i{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vector2i) Sub(o Vector2i) Vector2i {
	return Vector2i{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vector2i) ToPoint() Point {
	return Point{X: float64(v.X), Y: float64(v.Y)}
}

func (v Vector2i) String() string {
	return fmt.Sprintf("%dx%d", v.X, v.Y)
}

// Point is a position in floating point logical units, used for the pointer
type Point struct {
	X float64
	Y float64
}

func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Floor rounds both coordinates towards negative infinity
func (p Point) Floor() Vector2i {
	return Vector2i{X: int(math.Floor(p.X)), Y: int(math.Floor(p.Y))}
}

// Rect is an axis aligned rectangle. Loc is the top left corner, Size is never negative for a valid rect
type Rect struct {
	Loc  Vector2i
	Size Vector2i
}

func NewRect(x, y, w, h int) Rect {
	return Rect{Loc: Vector2i{X: x, Y: y}, Size: Vector2i{X: w, Y: h}}
}

func (r Rect) IsEmpty() bool {
	return r.Size.X <= 0 || r.Size.Y <= 0
}

// Contains reports whether p lies inside r. The right and bottom edges are exclusive
func (r Rect) Contains(p Point) bool {
	return p.X >= float64(r.Loc.X) && p.Y >= float64(r.Loc.Y) &&
		p.X < float64(r.Loc.X+r.Size.X) && p.Y < float64(r.Loc.Y+r.Size.Y)
}

func (r Rect) Translate(by Vector2i) Rect {
	return Rect{Loc: r.Loc.Add(by), Size: r.Size}
}

func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).IsEmpty()
}

// Intersect returns the overlapping part of r and o. The result is empty if they don't overlap
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.Loc.X, o.Loc.X)
	y1 := max(r.Loc.Y, o.Loc.Y)
	x2 := min(r.Loc.X+r.Size.X, o.Loc.X+o.Size.X)
	y2 := min(r.Loc.Y+r.Size.Y, o.Loc.Y+o.Size.Y)
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return NewRect(x1, y1, x2-x1, y2-y1)
}

// Merge returns the smallest rect containing both r and o. Empty rects are ignored
func (r Rect) Merge(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x1 := min(r.Loc.X, o.Loc.X)
	y1 := min(r.Loc.Y, o.Loc.Y)
	x2 := max(r.Loc.X+r.Size.X, o.Loc.X+o.Size.X)
	y2 := max(r.Loc.Y+r.Size.Y, o.Loc.Y+o.Size.Y)
	return NewRect(x1, y1, x2-x1, y2-y1)
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.Loc.X, r.Loc.Y, r.Size.X, r.Size.Y)
}
