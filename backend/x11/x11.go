// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package x11 runs the compositor inside a window on an X server.
// Input comes from the window's events, frames are uploaded with PutImage
package x11

import (
	"fmt"
	"image"
	"image/color"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/backend/raster"
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/sirupsen/logrus"
)

// evdev button codes
const (
	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnSide   = 0x113
	btnExtra  = 0x114
)

// X keycodes are evdev keycodes shifted by 8
const xKeycodeOffset = 8

const eventMask = xproto.EventMaskKeyPress | xproto.EventMaskKeyRelease |
	xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease |
	xproto.EventMaskPointerMotion | xproto.EventMaskStructureNotify |
	xproto.EventMaskExposure

type Backend struct {
	xu     *xgbutil.XUtil
	win    xproto.Window
	gc     xproto.Gcontext
	depth  byte
	delete xproto.Atom

	output *space.Output
	canvas *raster.Canvas
	size   generaldata.Vector2i
	bound  bool
	closed bool
}

// New connects to the X server from $DISPLAY and opens a window the size of the output's mode
func New(output *space.Output, title string) (*Backend, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}
	keybind.Initialize(xu)

	size := output.CurrentMode().Size
	b := &Backend{
		xu:     xu,
		depth:  xu.Screen().RootDepth,
		output: output,
		canvas: raster.NewCanvas(),
		size:   size,
	}
	if err = b.createWindow(title); err != nil {
		xu.Conn().Close()
		return nil, err
	}
	output.SetPreferred(output.CurrentMode())
	logrus.WithFields(logrus.Fields{
		"window": b.win,
		"size":   size,
	}).Infoln("Opened X11 window")
	return b, nil
}

func (b *Backend) createWindow(title string) error {
	conn := b.xu.Conn()
	screen := b.xu.Screen()

	win, err := xproto.NewWindowId(conn)
	if err != nil {
		return fmt.Errorf("allocating window id: %w", err)
	}
	err = xproto.CreateWindowChecked(conn, screen.RootDepth, win, b.xu.RootWin(),
		0, 0, uint16(b.size.X), uint16(b.size.Y), 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{screen.BlackPixel, eventMask}).Check()
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	b.win = win

	if err = ewmh.WmNameSet(b.xu, win, title); err != nil {
		logrus.WithError(err).Warnln("Failed to set window title")
	}
	if err = icccm.WmProtocolsSet(b.xu, win, []string{"WM_DELETE_WINDOW"}); err != nil {
		return fmt.Errorf("registering for WM_DELETE_WINDOW: %w", err)
	}
	if b.delete, err = xprop.Atm(b.xu, "WM_DELETE_WINDOW"); err != nil {
		return fmt.Errorf("looking up WM_DELETE_WINDOW: %w", err)
	}
	// The output mode is fixed, so is the window
	hints := &icccm.NormalHints{
		Flags:     icccm.SizeHintPMinSize | icccm.SizeHintPMaxSize,
		MinWidth:  uint(b.size.X),
		MinHeight: uint(b.size.Y),
		MaxWidth:  uint(b.size.X),
		MaxHeight: uint(b.size.Y),
	}
	if err = icccm.WmNormalHintsSet(b.xu, win, hints); err != nil {
		logrus.WithError(err).Warnln("Failed to set size hints")
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		return fmt.Errorf("allocating graphics context: %w", err)
	}
	xproto.CreateGC(conn, gc, xproto.Drawable(win), 0, nil)
	b.gc = gc

	xproto.MapWindow(conn, win)
	return nil
}

func (b *Backend) Output() *space.Output {
	return b.output
}

// Dispatch implements backend.InputBackend. It polls the X connection without blocking
func (b *Backend) Dispatch(handle func(backend.InputEvent)) error {
	if b.closed {
		return backend.ErrClosed
	}
	conn := b.xu.Conn()
	for {
		ev, xerr := conn.PollForEvent()
		if xerr != nil {
			logrus.WithField("error", xerr.Error()).Warnln("X11 protocol error")
			continue
		}
		if ev == nil {
			return nil
		}
		if b.translate(ev, handle) {
			b.closed = true
			handle(backend.BackendClosed{})
			return nil
		}
	}
}

// translate hands the backend events for one X event to handle. Returns true when the window went away
func (b *Backend) translate(ev any, handle func(backend.InputEvent)) bool {
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		logrus.WithField("key", keybind.LookupString(b.xu, e.State, e.Detail)).Debugln("X11 key press")
		handle(backend.KeyboardKey{Key: uint32(e.Detail) - xKeycodeOffset, State: ipc.KeyPressed, Time: uint32(e.Time)})
	case xproto.KeyReleaseEvent:
		handle(backend.KeyboardKey{Key: uint32(e.Detail) - xKeycodeOffset, State: ipc.KeyReleased, Time: uint32(e.Time)})
	case xproto.MotionNotifyEvent:
		handle(b.motion(e.EventX, e.EventY, uint32(e.Time)))
	case xproto.ButtonPressEvent:
		b.button(byte(e.Detail), ipc.ButtonPressed, uint32(e.Time), handle)
	case xproto.ButtonReleaseEvent:
		b.button(byte(e.Detail), ipc.ButtonReleased, uint32(e.Time), handle)
	case xproto.ClientMessageEvent:
		if e.Format == 32 && len(e.Data.Data32) > 0 && xproto.Atom(e.Data.Data32[0]) == b.delete {
			logrus.Infoln("X11 window closed")
			return true
		}
	case xproto.DestroyNotifyEvent:
		return e.Window == b.win
	case xproto.ExposeEvent:
		// Contents are re-uploaded with the next frame
	}
	return false
}

func (b *Backend) motion(x, y int16, time uint32) backend.PointerMotionAbsolute {
	return backend.PointerMotionAbsolute{
		X:    clamp01(float64(x) / float64(max(b.size.X, 1))),
		Y:    clamp01(float64(y) / float64(max(b.size.Y, 1))),
		Time: time,
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// button maps core X buttons. 4 to 7 are the scroll wheel, and only their press means anything
func (b *Backend) button(detail byte, state ipc.ButtonState, time uint32, handle func(backend.InputEvent)) {
	scroll := func(axis ipc.Axis, steps int) {
		if state != ipc.ButtonPressed {
			return
		}
		ev := backend.PointerAxis{Source: ipc.AxisSourceWheel, Time: time}
		ev.AmountDiscrete[axis] = steps
		handle(ev)
	}
	var code uint32
	switch detail {
	case 1:
		code = btnLeft
	case 2:
		code = btnMiddle
	case 3:
		code = btnRight
	case 4:
		scroll(ipc.AxisVertical, -1)
		return
	case 5:
		scroll(ipc.AxisVertical, 1)
		return
	case 6:
		scroll(ipc.AxisHorizontal, -1)
		return
	case 7:
		scroll(ipc.AxisHorizontal, 1)
		return
	case 8:
		code = btnSide
	case 9:
		code = btnExtra
	default:
		return
	}
	handle(backend.PointerButton{Button: code, State: state, Time: time})
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
	return b.size
}

func (b *Backend) Render(_ *space.Output, elements []space.RenderElement, damage []generaldata.Rect, clear color.Color) error {
	if !b.bound {
		return backend.ErrNotBound
	}
	b.canvas.Draw(elements, damage, clear)
	return nil
}

// Submit uploads the damaged parts of the frame to the window
func (b *Backend) Submit(damage []generaldata.Rect) error {
	if !b.bound {
		return backend.ErrNotBound
	}
	b.bound = false
	frame := b.canvas.Frame()
	for _, r := range b.canvas.PhysicalDamage(damage) {
		if err := b.putImage(frame, r); err != nil {
			return err
		}
	}
	return nil
}

// putImage sends r of img, split into as many requests as the server's request size limit needs
func (b *Backend) putImage(img *image.RGBA, r image.Rectangle) error {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	conn := b.xu.Conn()
	// Request length is counted in 4 byte units, the PutImage header takes 24 bytes
	maxBytes := int(xproto.Setup(conn).MaximumRequestLength)*4 - 24
	rowBytes := r.Dx() * 4
	rowsPerChunk := max(maxBytes/rowBytes, 1)

	for y := r.Min.Y; y < r.Max.Y; y += rowsPerChunk {
		rows := min(rowsPerChunk, r.Max.Y-y)
		data := make([]byte, 0, rows*rowBytes)
		for row := y; row < y+rows; row++ {
			off := img.PixOffset(r.Min.X, row)
			line := img.Pix[off : off+rowBytes]
			// ZPixmap at depth 24 is BGRX
			for i := 0; i < len(line); i += 4 {
				data = append(data, line[i+2], line[i+1], line[i], 0)
			}
		}
		err := xproto.PutImageChecked(conn, xproto.ImageFormatZPixmap, xproto.Drawable(b.win), b.gc,
			uint16(r.Dx()), uint16(rows), int16(r.Min.X), int16(y), 0, b.depth, data).Check()
		if err != nil {
			return fmt.Errorf("uploading frame: %w", err)
		}
	}
	return nil
}

func (b *Backend) Close() error {
	conn := b.xu.Conn()
	xproto.FreeGC(conn, b.gc)
	xproto.DestroyWindow(conn, b.win)
	conn.Close()
	b.closed = true
	return nil
}
