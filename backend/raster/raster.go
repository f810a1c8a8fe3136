// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package raster is the software renderer shared by the device backends.
// It draws render elements into an RGBA image the size of the output
package raster

import (
	"image"
	"image/color"

	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/surface"
	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
)

// Canvas is an output sized frame buffer. Drawing happens in logical output space
// scaled by the output scale. The physical image with the output transform applied
// is produced by Frame
type Canvas struct {
	img       *image.RGBA
	scale     int
	transform generaldata.Transform
	// Cache of converted pixel buffers
	converted map[*surface.Buffer]*image.RGBA
}

func NewCanvas() *Canvas {
	return &Canvas{
		img:       image.NewRGBA(image.Rectangle{}),
		scale:     1,
		converted: make(map[*surface.Buffer]*image.RGBA),
	}
}

// Resize makes the canvas fit o. Content is lost if the size changes
func (c *Canvas) Resize(o *space.Output) {
	c.scale = o.Scale()
	c.transform = o.Transform()
	logical := o.LogicalSize()
	size := image.Rect(0, 0, logical.X*c.scale, logical.Y*c.scale)
	if c.img.Bounds() != size {
		logrus.WithFields(logrus.Fields{
			"output": o.Name(),
			"size":   size.Size(),
		}).Debugln("Resizing canvas")
		c.img = image.NewRGBA(size)
	}
}

// Image is the canvas in logical orientation
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

func (c *Canvas) toPixels(r generaldata.Rect) image.Rectangle {
	return image.Rect(r.Loc.X*c.scale, r.Loc.Y*c.scale,
		(r.Loc.X+r.Size.X)*c.scale, (r.Loc.Y+r.Size.Y)*c.scale)
}

// Draw clears the damaged regions and draws elements into them, back to front
func (c *Canvas) Draw(elements []space.RenderElement, damage []generaldata.Rect, clear color.Color) {
	live := make(map[*surface.Buffer]bool, len(elements))
	for _, d := range damage {
		clip := c.toPixels(d).Intersect(c.img.Bounds())
		if clip.Empty() {
			continue
		}
		dst := c.img.SubImage(clip).(*image.RGBA)
		xdraw.Draw(dst, clip, image.NewUniform(clear), image.Point{}, xdraw.Src)
		for _, e := range elements {
			if e.Buffer == nil || e.Buffer.Destroyed() {
				continue
			}
			live[e.Buffer] = true
			c.drawElement(dst, e)
		}
	}
	for buf := range c.converted {
		if !live[buf] && (buf.Destroyed() || buf.Owner() == nil) {
			delete(c.converted, buf)
		}
	}
}

func (c *Canvas) drawElement(dst *image.RGBA, e space.RenderElement) {
	dr := c.toPixels(e.Geometry)
	if !dr.Overlaps(dst.Bounds()) {
		return
	}
	buf := e.Buffer
	if buf.Pixels == nil {
		xdraw.Draw(dst, dr, image.NewUniform(argb(buf.Color)), image.Point{}, xdraw.Over)
		return
	}
	src := c.pixels(buf)
	if src.Bounds().Size() == dr.Size() {
		xdraw.Draw(dst, dr, src, image.Point{}, xdraw.Over)
		return
	}
	// Buffer scale differs from the output scale
	xdraw.ApproxBiLinear.Scale(dst, dr, src, src.Bounds(), xdraw.Over, nil)
}

// pixels converts a buffer's premultiplied ARGB little endian bytes into an RGBA image.
// Buffers can't change their content, so the result is cached for as long as the buffer lives
func (c *Canvas) pixels(buf *surface.Buffer) *image.RGBA {
	if img, ok := c.converted[buf]; ok {
		return img
	}
	img := image.NewRGBA(image.Rect(0, 0, buf.Size.X, buf.Size.Y))
	n := min(len(buf.Pixels), len(img.Pix))
	for i := 0; i+3 < n; i += 4 {
		img.Pix[i+0] = buf.Pixels[i+2]
		img.Pix[i+1] = buf.Pixels[i+1]
		img.Pix[i+2] = buf.Pixels[i+0]
		img.Pix[i+3] = buf.Pixels[i+3]
	}
	c.converted[buf] = img
	return img
}

func argb(v uint32) color.RGBA {
	return color.RGBA{
		A: uint8(v >> 24),
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}
}

// Frame returns the canvas as the physical display sees it, with the output transform applied
func (c *Canvas) Frame() *image.RGBA {
	if c.transform == generaldata.TransformNormal {
		return c.img
	}
	logical := c.img.Bounds().Size()
	physical := c.transform.TransformSize(generaldata.Vector2i{X: logical.X, Y: logical.Y})
	out := image.NewRGBA(image.Rect(0, 0, physical.X, physical.Y))
	if physical.X == 0 || physical.Y == 0 {
		return out
	}
	for y := 0; y < physical.Y; y++ {
		for x := 0; x < physical.X; x++ {
			p := c.transform.TransformNormalized(generaldata.Point{
				X: (float64(x) + 0.5) / float64(physical.X),
				Y: (float64(y) + 0.5) / float64(physical.Y),
			})
			sx := min(int(p.X*float64(logical.X)), logical.X-1)
			sy := min(int(p.Y*float64(logical.Y)), logical.Y-1)
			out.SetRGBA(x, y, c.img.RGBAAt(sx, sy))
		}
	}
	return out
}

// PhysicalDamage maps logical damage rects to pixel rects in the transformed frame
func (c *Canvas) PhysicalDamage(damage []generaldata.Rect) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(damage))
	if c.transform != generaldata.TransformNormal {
		// Rotated damage is not worth the trouble, present everything
		return append(out, c.Frame().Bounds())
	}
	for _, d := range damage {
		if r := c.toPixels(d).Intersect(c.img.Bounds()); !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}
