// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package headless is a backend without any devices. Input is scripted through Push
// and frames are rendered into memory
package headless

import (
	"image"
	"image/color"
	"sync"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/backend/raster"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/sirupsen/logrus"
)

type Backend struct {
	output *space.Output
	canvas *raster.Canvas

	lock    sync.Mutex
	queue   []backend.InputEvent
	closing bool
	closed  bool

	bound     bool
	frames    int
	submitted [][]generaldata.Rect
}

func New(output *space.Output) *Backend {
	return &Backend{
		output: output,
		canvas: raster.NewCanvas(),
	}
}

func (b *Backend) Output() *space.Output {
	return b.output
}

// Push queues input for the next Dispatch. Safe to call from any goroutine
func (b *Backend) Push(events ...backend.InputEvent) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.queue = append(b.queue, events...)
}

// Pending implements backend.PendingInput
func (b *Backend) Pending() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return !b.closed && (len(b.queue) > 0 || b.closing)
}

// Dispatch implements backend.InputBackend
func (b *Backend) Dispatch(handle func(backend.InputEvent)) error {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return backend.ErrClosed
	}
	queue := b.queue
	b.queue = nil
	if b.closing {
		queue = append(queue, backend.BackendClosed{})
		b.closed = true
	}
	b.lock.Unlock()

	for _, ev := range queue {
		handle(ev)
	}
	return nil
}

// Close makes the next Dispatch report BackendClosed
func (b *Backend) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.closing = true
	logrus.Debugln("Headless backend closing")
	return nil
}

func (b *Backend) Bind() error {
	if b.closed {
		return backend.ErrClosed
	}
	b.canvas.Resize(b.output)
	b.bound = true
	return nil
}

func (b *Backend) WindowSize() generaldata.Vector2i {
	return b.output.CurrentMode().Size
}

func (b *Backend) Render(_ *space.Output, elements []space.RenderElement, damage []generaldata.Rect, clear color.Color) error {
	if !b.bound {
		return backend.ErrNotBound
	}
	b.canvas.Draw(elements, damage, clear)
	return nil
}

func (b *Backend) Submit(damage []generaldata.Rect) error {
	if !b.bound {
		return backend.ErrNotBound
	}
	b.bound = false
	b.frames++
	b.submitted = append(b.submitted, append([]generaldata.Rect(nil), damage...))
	return nil
}

// Frames counts submitted frames
func (b *Backend) Frames() int {
	return b.frames
}

// Submitted returns the damage of every submitted frame
func (b *Backend) Submitted() [][]generaldata.Rect {
	return b.submitted
}

// Frame is the last rendered frame as the display would show it
func (b *Backend) Frame() *image.RGBA {
	return b.canvas.Frame()
}
