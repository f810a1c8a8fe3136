package input

import (
	"testing"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/common/ipc/ipctest"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/seat"
	"github.com/mstarongithub/twm/shell"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const btnLeft = 0x110

// spaceHandler maps windows into the space at whatever place is queued for them
type spaceHandler struct {
	space *space.Space[*shell.Window]
	next  generaldata.Vector2i
}

func (h *spaceHandler) Map(w *shell.Window) { h.space.MapElement(w, h.next, false) }
func (h *spaceHandler) Unmap(w *shell.Window) { h.space.UnmapElement(w) }
func (h *spaceHandler) Configured(*shell.Window) {}
func (h *spaceHandler) Move(*shell.Window, generaldata.Serial) {}
func (h *spaceHandler) Resize(*shell.Window, generaldata.Serial, ipc.Edges) {}
func (h *spaceHandler) Maximize(*shell.Window, bool) {}
func (h *spaceHandler) Fullscreen(*shell.Window, bool, string) {}
func (h *spaceHandler) Minimize(*shell.Window) {}
func (h *spaceHandler) ShowWindowMenu(*shell.Window, generaldata.Serial, generaldata.Vector2i) {}
func (h *spaceHandler) Locate(w *shell.Window) (generaldata.Vector2i, bool) {
	return h.space.ElementLocation(w)
}

type env struct {
	rec      *ipctest.Recorder
	registry *surface.Registry
	space    *space.Space[*shell.Window]
	seat     *seat.Seat
	shell    *shell.Shell
	handler  *spaceHandler
	output   *space.Output
	router   *Router
	nextBuf  uint32
}

func newEnv(t *testing.T) *env {
	t.Helper()
	rec := &ipctest.Recorder{}
	serials := &generaldata.SerialCounter{}
	registry := surface.NewRegistry()
	sp := space.New[*shell.Window](registry)
	st := seat.New("seat0", rec, serials)
	h := &spaceHandler{space: sp}
	o := space.NewOutput("test-0", space.PhysicalProperties{})
	o.SetMode(space.Mode{Size: generaldata.Vector2i{X: 1000, Y: 500}, Refresh: 60_000})
	sp.MapOutput(o, generaldata.Vector2i{})
	return &env{
		rec:      rec,
		registry: registry,
		space:    sp,
		seat:     st,
		shell:    shell.New(registry, st, rec, serials, h),
		handler:  h,
		output:   o,
		router:   New(sp, st, o, nil),
	}
}

func (e *env) mapWindow(t *testing.T, client generaldata.ClientID, object uint32, at generaldata.Vector2i, w, h int) *shell.Window {
	t.Helper()
	s := e.registry.Create(client, object)
	win, err := e.shell.NewToplevel(s)
	require.NoError(t, err)
	e.registry.Commit(s)
	inflight := win.Inflight()
	require.NotEmpty(t, inflight)
	require.True(t, win.AckConfigure(inflight[len(inflight)-1].Serial))
	e.nextBuf++
	s.Attach(e.registry.NewBuffer(client, e.nextBuf, generaldata.Vector2i{X: w, Y: h}, 1), generaldata.Vector2i{})
	e.handler.next = at
	e.registry.Commit(s)
	require.True(t, win.Mapped())
	return win
}

// moveTo moves the pointer to an absolute position in the 1000x500 output
func (e *env) moveTo(x, y float64) {
	e.router.Process(backend.PointerMotionAbsolute{X: x / 1000, Y: y / 500})
}

func (e *env) click() {
	e.router.Process(backend.PointerButton{Button: btnLeft, State: ipc.ButtonPressed})
	e.router.Process(backend.PointerButton{Button: btnLeft, State: ipc.ButtonReleased})
}

func (e *env) top() *shell.Window {
	els := e.space.Elements()
	return els[len(els)-1]
}

func TestClickRaisesAndFocusesFromAnyDepth(t *testing.T) {
	e := newEnv(t)
	wins := []*shell.Window{
		e.mapWindow(t, 1, 1, generaldata.Vector2i{X: 0, Y: 0}, 300, 300),
		e.mapWindow(t, 2, 1, generaldata.Vector2i{X: 100, Y: 100}, 300, 300),
		e.mapWindow(t, 3, 1, generaldata.Vector2i{X: 200, Y: 50}, 300, 300),
	}

	// Visible parts of each window
	clicks := []generaldata.Point{{X: 50, Y: 50}, {X: 150, Y: 390}, {X: 450, Y: 60}}
	for _, i := range []int{0, 2, 1, 0} {
		e.moveTo(clicks[i].X, clicks[i].Y)
		e.click()
		assert.Equal(t, wins[i], e.top(), "window %d should be on top", i)
		assert.Equal(t, wins[i].Surface(), e.seat.KeyboardFocus())
		for j, w := range wins {
			assert.Equal(t, i == j, w.Activated(), "window %d activation after clicking %d", j, i)
		}
	}
}

func TestClickOnNothingClearsFocus(t *testing.T) {
	e := newEnv(t)
	a := e.mapWindow(t, 1, 1, generaldata.Vector2i{}, 100, 100)
	e.moveTo(10, 10)
	e.click()
	require.True(t, a.Activated())

	e.rec.Reset()
	e.moveTo(900, 400)
	e.click()
	assert.Nil(t, e.seat.KeyboardFocus())
	assert.False(t, a.Activated())
	conf, ok := ipctest.Last[ipc.Configure](e.rec, 1)
	require.True(t, ok, "deactivation is sent as a configure")
	assert.NotContains(t, conf.States, ipc.StateActivated)
}

func TestButtonReachesClientAfterFocus(t *testing.T) {
	e := newEnv(t)
	e.mapWindow(t, 1, 1, generaldata.Vector2i{X: 10, Y: 20}, 100, 100)
	e.moveTo(30, 50)
	enter, ok := ipctest.Last[ipc.PointerEnter](e.rec, 1)
	require.True(t, ok)
	assert.Equal(t, 20.0, enter.X)
	assert.Equal(t, 30.0, enter.Y)

	e.rec.Reset()
	e.router.Process(backend.PointerButton{Button: btnLeft, State: ipc.ButtonPressed})

	names := e.rec.Names(1)
	require.Contains(t, names, "keyboard.enter")
	require.Contains(t, names, "pointer.button")
	enterAt, buttonAt := -1, -1
	for i, n := range names {
		if n == "keyboard.enter" && enterAt < 0 {
			enterAt = i
		}
		if n == "pointer.button" {
			buttonAt = i
		}
	}
	assert.Less(t, enterAt, buttonAt, "focus first, then the click")
}

func TestMotionUsesOutputTransform(t *testing.T) {
	e := newEnv(t)
	e.output.SetTransform(generaldata.Transform180)
	e.router.Process(backend.PointerMotionAbsolute{X: 0.25, Y: 0.25})
	assert.Equal(t, generaldata.Point{X: 750, Y: 375}, e.seat.PointerLocation())
}

func TestDiscreteScrollIsScaled(t *testing.T) {
	e := newEnv(t)
	e.mapWindow(t, 1, 1, generaldata.Vector2i{}, 100, 100)
	e.moveTo(10, 10)
	e.rec.Reset()

	ev := backend.PointerAxis{Source: ipc.AxisSourceWheel}
	ev.AmountDiscrete[ipc.AxisVertical] = 2
	e.router.Process(ev)
	axes := ipctest.All[ipc.PointerAxis](e.rec, 1)
	require.Len(t, axes, 1)
	assert.Equal(t, 6.0, axes[0].Value)
	assert.Equal(t, 2, axes[0].Discrete)

	e.rec.Reset()
	e.router.SetScrollFactor(10)
	ev = backend.PointerAxis{Source: ipc.AxisSourceFinger}
	ev.Amount[ipc.AxisHorizontal] = 1.5
	ev.AmountDiscrete[ipc.AxisVertical] = -1
	e.router.Process(ev)
	axes = ipctest.All[ipc.PointerAxis](e.rec, 1)
	require.Len(t, axes, 2, "both axes in one frame")
	assert.Equal(t, -10.0, axes[0].Value)
	assert.Equal(t, 1.5, axes[1].Value)
	assert.Equal(t, []string{"pointer.axis", "pointer.axis", "pointer.frame"}, e.rec.Names(1))
}

func TestKeyFilterAndBackendClosed(t *testing.T) {
	e := newEnv(t)
	a := e.mapWindow(t, 1, 1, generaldata.Vector2i{}, 100, 100)
	e.router.FocusWindow(a)
	e.rec.Reset()

	e.router.SetKeyFilter(func(ev seat.KeyEvent) seat.FilterResult {
		if ev.Key == 1 {
			return seat.Intercept
		}
		return seat.Forward
	})
	assert.False(t, e.router.Process(backend.KeyboardKey{Key: 1, State: ipc.KeyPressed}))
	assert.False(t, e.router.Process(backend.KeyboardKey{Key: 2, State: ipc.KeyPressed}))
	keys := ipctest.All[ipc.KeyboardKey](e.rec, 1)
	require.Len(t, keys, 1)
	assert.Equal(t, uint32(2), keys[0].Key)

	assert.True(t, e.router.Process(backend.BackendClosed{}))
}

func TestPopupGrabOwnsClicksOutside(t *testing.T) {
	e := newEnv(t)
	a := e.mapWindow(t, 1, 1, generaldata.Vector2i{}, 200, 200)
	b := e.mapWindow(t, 2, 1, generaldata.Vector2i{X: 500}, 100, 100)

	e.moveTo(20, 20)
	e.router.Process(backend.PointerButton{Button: btnLeft, State: ipc.ButtonPressed})
	press := e.seat.LastInputSerial()
	e.router.Process(backend.PointerButton{Button: btnLeft, State: ipc.ButtonReleased})
	require.Equal(t, a, e.top())

	s := e.registry.Create(1, 2)
	p, err := e.shell.NewPopup(s, a.Surface(), ipc.Positioner{
		Width: 40, Height: 40,
		AnchorRect: ipc.Rect{X: 10, Y: 10, Width: 1, Height: 1},
		Anchor:     ipc.EdgeTop | ipc.EdgeLeft,
		Gravity:    ipc.EdgeBottom | ipc.EdgeRight,
	})
	require.NoError(t, err)
	e.registry.Commit(s)
	conf, ok := ipctest.Last[ipc.PopupConfigure](e.rec, 1)
	require.True(t, ok)
	require.True(t, p.AckConfigure(generaldata.Serial(conf.Serial)))
	e.nextBuf++
	s.Attach(e.registry.NewBuffer(1, e.nextBuf, generaldata.Vector2i{X: 40, Y: 40}, 1), generaldata.Vector2i{})
	e.registry.Commit(s)

	// The release above made the press serial stale
	assert.False(t, e.shell.GrabPopup(p, press))
	require.True(t, e.shell.GrabPopup(p, e.seat.LastInputSerial()))

	// Over the popup the hit test finds it above its parent
	e.moveTo(30, 30)
	focus, _ := e.seat.PointerFocus()
	assert.Equal(t, p.Surface(), focus)

	e.moveTo(520, 20)
	e.rec.Reset()
	e.router.Process(backend.PointerButton{Button: btnLeft, State: ipc.ButtonPressed})
	assert.Equal(t, a, e.top(), "the grab keeps the click from raising the other window")
	assert.False(t, b.Activated())
	assert.Empty(t, ipctest.All[ipc.PointerButton](e.rec, 2))
	_, ok = ipctest.Last[ipc.PopupDone](e.rec, 1)
	assert.True(t, ok)
	assert.False(t, e.seat.IsGrabbed())
}
