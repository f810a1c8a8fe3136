package compositor

import (
	"net"
	"testing"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/common/ipc/ipctest"
	"github.com/mstarongithub/twm/events"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/shell"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/transport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	btnLeft = 0x110
	keyAlt  = 56
)

type eventLog struct {
	kinds []events.Kind
}

func (l *eventLog) Emit(kind events.Kind, _ logrus.Fields) {
	l.kinds = append(l.kinds, kind)
}

func (l *eventLog) count(kind events.Kind) int {
	n := 0
	for _, k := range l.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type harness struct {
	t       *testing.T
	st      *State
	rec     *ipctest.Recorder
	log     *eventLog
	display *transport.Display
	stops   int
	nextBuf uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, rec: &ipctest.Recorder{}, log: &eventLog{}, nextBuf: 1000}
	out := space.NewOutput("test-0", space.PhysicalProperties{})
	out.SetMode(space.Mode{Size: generaldata.Vector2i{X: 1000, Y: 500}, Refresh: 60_000})
	h.st = New(Options{
		Output: out,
		Sender: h.rec,
		Sink:   h.log,
		Stop:   func() { h.stops++ },
	})
	// The display only hands out clients here, events go to the recorder
	h.display = transport.NewDisplay(h.st)
	t.Cleanup(func() { h.display.Close() })
	return h
}

func (h *harness) connect() *transport.Client {
	server, client := net.Pipe()
	h.t.Cleanup(func() { client.Close() })
	return h.display.AddClient(server)
}

func (h *harness) do(c *transport.Client, reqs ...ipc.Request) {
	h.t.Helper()
	for _, req := range reqs {
		require.NoError(h.t, h.st.HandleRequest(c, req), req.RequestName())
	}
}

func (h *harness) lastConfigure(c *transport.Client, obj uint32) ipc.Configure {
	h.t.Helper()
	all := ipctest.All[ipc.Configure](h.rec, c.ID())
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Surface == obj {
			return all[i]
		}
	}
	h.t.Fatalf("no configure for surface %d", obj)
	return ipc.Configure{}
}

func (h *harness) ackLatest(c *transport.Client, obj uint32) {
	h.t.Helper()
	h.do(c, ipc.AckConfigure{Surface: obj, Serial: h.lastConfigure(c, obj).Serial})
}

func (h *harness) attach(c *transport.Client, obj uint32, w, ht int) {
	h.t.Helper()
	id := h.nextBuf
	h.nextBuf++
	h.do(c,
		ipc.CreateBuffer{ID: id, Width: w, Height: ht, Color: 0xff336699},
		ipc.Attach{Surface: obj, Buffer: id},
	)
}

func (h *harness) window(c *transport.Client, obj uint32) *shell.Window {
	h.t.Helper()
	w, err := h.st.window(c, obj)
	require.NoError(h.t, err)
	return w
}

// mapWindow runs a toplevel through its initial configure and maps it with a w x ht buffer
func (h *harness) mapWindow(c *transport.Client, obj uint32, w, ht int) *shell.Window {
	h.t.Helper()
	h.do(c,
		ipc.CreateSurface{ID: obj},
		ipc.GetToplevel{Surface: obj},
		ipc.Commit{Surface: obj},
	)
	h.ackLatest(c, obj)
	h.attach(c, obj, w, ht)
	h.do(c, ipc.Commit{Surface: obj})
	win := h.window(c, obj)
	require.True(h.t, win.Mapped())
	return win
}

func (h *harness) location(w *shell.Window) generaldata.Vector2i {
	h.t.Helper()
	loc, ok := h.st.Space().ElementLocation(w)
	require.True(h.t, ok)
	return loc
}

func (h *harness) top() *shell.Window {
	elements := h.st.Space().Elements()
	if len(elements) == 0 {
		return nil
	}
	return elements[len(elements)-1]
}

// pointer moves to a point in space coordinates. The output is 1000x500 at the origin
func (h *harness) pointer(x, y float64) {
	h.st.Router().Process(backend.PointerMotionAbsolute{X: x / 1000, Y: y / 500})
}

func (h *harness) button(state ipc.ButtonState) {
	h.st.Router().Process(backend.PointerButton{Button: btnLeft, State: state})
}

func (h *harness) key(key uint32, state ipc.KeyState) {
	h.st.Router().Process(backend.KeyboardKey{Key: key, State: state})
}

func TestNewWindowsCascadeAndTakeFocus(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect(), h.connect()
	winA := h.mapWindow(a, 1, 300, 200)
	winB := h.mapWindow(b, 1, 300, 200)

	assert.Equal(t, generaldata.Vector2i{X: 32, Y: 32}, h.location(winA))
	assert.Equal(t, generaldata.Vector2i{X: 64, Y: 64}, h.location(winB))
	assert.Equal(t, winB, h.top())
	assert.Equal(t, winB.Surface(), h.st.Seat().KeyboardFocus())
	assert.True(t, winB.Activated())
	assert.False(t, winA.Activated())
	assert.Equal(t, 2, h.log.count(events.WindowMapped))
}

func TestClickRaisesWindowBelow(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect(), h.connect()
	winA := h.mapWindow(a, 1, 300, 200)
	winB := h.mapWindow(b, 1, 300, 200)

	// Inside A, above where B starts
	h.pointer(125, 62.5)
	h.button(ipc.ButtonPressed)

	assert.Equal(t, winA, h.top())
	assert.Equal(t, winA.Surface(), h.st.Seat().KeyboardFocus())
	assert.True(t, winA.Activated())
	assert.False(t, winB.Activated())
	press, ok := ipctest.Last[ipc.PointerButton](h.rec, a.ID())
	require.True(t, ok)
	assert.Equal(t, ipc.ButtonPressed, press.State)
	_, ok = ipctest.Last[ipc.PointerButton](h.rec, b.ID())
	assert.False(t, ok)
}

func TestGeometryWaitsForAckAndCommit(t *testing.T) {
	h := newHarness(t)
	a := h.connect()
	win := h.mapWindow(a, 1, 300, 200)
	// Settle the activation configure
	h.ackLatest(a, 1)
	h.do(a, ipc.Commit{Surface: 1})

	h.do(a, ipc.SetMaximized{Surface: 1, Maximized: true})
	cfg := h.lastConfigure(a, 1)
	assert.Equal(t, 1000, cfg.Width)
	assert.Equal(t, 500, cfg.Height)
	assert.Contains(t, cfg.States, ipc.StateMaximized)

	// New content without an ack changes nothing
	h.attach(a, 1, 1000, 500)
	h.do(a, ipc.Commit{Surface: 1})
	assert.Equal(t, generaldata.Vector2i{X: 300, Y: 200}, win.Geometry().Size)
	assert.Equal(t, generaldata.Vector2i{X: 32, Y: 32}, h.location(win))

	// An outdated ack is ignored
	h.do(a, ipc.AckConfigure{Surface: 1, Serial: cfg.Serial - 1})
	assert.Len(t, win.Inflight(), 1)

	h.ackLatest(a, 1)
	h.do(a, ipc.Commit{Surface: 1})
	assert.Equal(t, generaldata.Vector2i{X: 1000, Y: 500}, win.Geometry().Size)
	assert.Equal(t, generaldata.Vector2i{}, h.location(win))
	assert.True(t, win.Current().Has(shell.StateMaximized))

	h.do(a, ipc.SetMaximized{Surface: 1, Maximized: false})
	cfg = h.lastConfigure(a, 1)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
	h.attach(a, 1, 300, 200)
	h.ackLatest(a, 1)
	h.do(a, ipc.Commit{Surface: 1})
	assert.Equal(t, generaldata.Vector2i{X: 300, Y: 200}, win.Geometry().Size)
	assert.Equal(t, generaldata.Vector2i{X: 32, Y: 32}, h.location(win))
}

func TestMoveGrabFollowsPointer(t *testing.T) {
	h := newHarness(t)
	a := h.connect()
	win := h.mapWindow(a, 1, 300, 200)

	h.pointer(125, 62.5)
	h.button(ipc.ButtonPressed)
	press, ok := ipctest.Last[ipc.PointerButton](h.rec, a.ID())
	require.True(t, ok)

	h.do(a, ipc.Move{Surface: 1, Serial: press.Serial + 100})
	assert.False(t, h.st.Seat().IsGrabbed())

	h.do(a, ipc.Move{Surface: 1, Serial: press.Serial})
	require.True(t, h.st.Seat().IsGrabbed())
	assert.Equal(t, 1, h.log.count(events.GrabStarted))

	h.rec.Reset()
	h.pointer(250, 125)
	assert.Equal(t, generaldata.Vector2i{X: 157, Y: 94}, h.location(win))
	assert.Empty(t, ipctest.All[ipc.PointerMotion](h.rec, a.ID()))

	h.button(ipc.ButtonReleased)
	assert.False(t, h.st.Seat().IsGrabbed())
}

func TestResizeFromLeftEdgeKeepsRightEdge(t *testing.T) {
	h := newHarness(t)
	a := h.connect()
	win := h.mapWindow(a, 1, 300, 200)

	h.pointer(125, 62.5)
	h.button(ipc.ButtonPressed)
	press, _ := ipctest.Last[ipc.PointerButton](h.rec, a.ID())
	h.do(a, ipc.Resize{Surface: 1, Serial: press.Serial, Edges: ipc.EdgeLeft})
	require.True(t, h.st.Seat().IsGrabbed())
	assert.Contains(t, h.lastConfigure(a, 1).States, ipc.StateResizing)

	h.pointer(62.5, 62.5)
	cfg := h.lastConfigure(a, 1)
	assert.Equal(t, 270, cfg.Width)
	assert.Equal(t, 200, cfg.Height)

	h.attach(a, 1, 270, 200)
	h.ackLatest(a, 1)
	h.do(a, ipc.Commit{Surface: 1})
	assert.Equal(t, generaldata.Vector2i{X: 270, Y: 200}, win.Geometry().Size)
	assert.Equal(t, generaldata.Vector2i{X: 62, Y: 32}, h.location(win))

	h.button(ipc.ButtonReleased)
	assert.False(t, h.st.Seat().IsGrabbed())
	assert.NotContains(t, h.lastConfigure(a, 1).States, ipc.StateResizing)
}

func TestMinimizeAndRestore(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect(), h.connect()
	winA := h.mapWindow(a, 1, 300, 200)
	winB := h.mapWindow(b, 1, 300, 200)

	h.do(b, ipc.SetMinimized{Surface: 1})
	assert.Equal(t, []*shell.Window{winA}, h.st.Space().Elements())
	assert.Equal(t, winA.Surface(), h.st.Seat().KeyboardFocus())
	assert.Equal(t, []*shell.Window{winB}, h.st.Minimized())
	assert.False(t, winB.Activated())

	require.True(t, h.st.Restore(winB))
	assert.Equal(t, winB, h.top())
	assert.Equal(t, generaldata.Vector2i{X: 64, Y: 64}, h.location(winB))
	assert.Equal(t, winB.Surface(), h.st.Seat().KeyboardFocus())
	assert.Empty(t, h.st.Minimized())
	assert.False(t, h.st.Restore(winB))
}

func TestAltEscapeStops(t *testing.T) {
	h := newHarness(t)
	a := h.connect()
	h.mapWindow(a, 1, 300, 200)

	h.key(keyAlt, ipc.KeyPressed)
	h.key(keyEscape, ipc.KeyPressed)
	assert.Equal(t, 1, h.stops)
	assert.Equal(t, 1, h.log.count(events.LoopStopping))

	keys := []uint32{}
	for _, k := range ipctest.All[ipc.KeyboardKey](h.rec, a.ID()) {
		keys = append(keys, k.Key)
	}
	assert.Contains(t, keys, uint32(keyAlt))
	assert.NotContains(t, keys, uint32(keyEscape))
}

func TestAltF1CyclesFocus(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect(), h.connect()
	winA := h.mapWindow(a, 1, 300, 200)
	h.mapWindow(b, 1, 300, 200)

	h.key(keyAlt, ipc.KeyPressed)
	h.key(keyF1, ipc.KeyPressed)
	assert.Equal(t, winA, h.top())
	assert.Equal(t, winA.Surface(), h.st.Seat().KeyboardFocus())
	assert.Zero(t, h.stops)
}

func TestDisconnectCleansUpClient(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect(), h.connect()
	winB := h.mapWindow(b, 1, 300, 200)
	h.mapWindow(a, 1, 300, 200)

	h.do(a,
		ipc.CreateDataSource{ID: 5},
		ipc.DataSourceOffer{Source: 5, MimeType: "text/plain"},
		ipc.SetSelection{Source: 5},
	)
	require.NotNil(t, h.st.Data().Selection())
	assert.Equal(t, 1, h.log.count(events.SelectionChanged))
	require.Equal(t, 2, h.st.ClientCount())

	h.display.Disconnect(a)

	assert.Equal(t, []*shell.Window{winB}, h.st.Space().Elements())
	assert.Equal(t, 1, h.st.Surfaces().Len())
	assert.Nil(t, h.st.Data().Selection())
	assert.Equal(t, 1, h.st.ClientCount())
	assert.Equal(t, winB.Surface(), h.st.Seat().KeyboardFocus())
	assert.Equal(t, 1, h.log.count(events.ClientDisconnected))

	// Disconnecting twice doesn't tear anything down again
	h.display.Disconnect(a)
	assert.Equal(t, 1, h.log.count(events.ClientDisconnected))
}

func TestRequestErrors(t *testing.T) {
	h := newHarness(t)
	a := h.connect()

	err := h.st.HandleRequest(a, ipc.Commit{Surface: 9})
	assert.ErrorIs(t, err, transport.ErrUnknownObject)

	h.do(a, ipc.CreateSurface{ID: 1}, ipc.GetToplevel{Surface: 1})
	var perr *ipc.ProtocolError
	err = h.st.HandleRequest(a, ipc.GetToplevel{Surface: 1})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ipc.ErrCodeRole, perr.Code)

	err = h.st.HandleRequest(a, ipc.CreateBuffer{ID: 2, Width: 2, Height: 2, Pixels: []byte{1, 2, 3}})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ipc.ErrCodeInvalidArgs, perr.Code)

	err = h.st.HandleRequest(a, ipc.CreateSurface{ID: 1})
	require.ErrorAs(t, err, &perr)

	h.do(a, ipc.CreateSurface{ID: 3})
	err = h.st.HandleRequest(a, ipc.SetTitle{Surface: 3, Title: "nope"})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ipc.ErrCodeRole, perr.Code)

	h.do(a, ipc.DestroySurface{Surface: 3})
	err = h.st.HandleRequest(a, ipc.Commit{Surface: 3})
	assert.ErrorIs(t, err, transport.ErrUnknownObject)
}

func TestRepeatedDestroyKeepsTheClient(t *testing.T) {
	h := newHarness(t)
	a := h.connect()
	h.mapWindow(a, 1, 300, 200)
	other := h.mapWindow(a, 2, 300, 200)

	h.do(a,
		ipc.DestroySurface{Surface: 1},
		ipc.DestroySurface{Surface: 1},
		ipc.DestroyBuffer{Buffer: 1000},
		ipc.DestroyBuffer{Buffer: 1000},
		ipc.DestroyToplevel{Surface: 1},
		ipc.DestroyToplevel{Surface: 2},
		ipc.DestroyToplevel{Surface: 2},
	)
	_, ok := h.display.Client(a.ID())
	assert.True(t, ok)
	assert.Zero(t, h.log.count(events.ClientDisconnected))
	assert.True(t, other.Surface().Alive())
	assert.Equal(t, 1, h.st.Surfaces().Len())

	// Ids that never existed are still errors
	err := h.st.HandleRequest(a, ipc.DestroySurface{Surface: 42})
	assert.ErrorIs(t, err, transport.ErrUnknownObject)
	// As is destroying a role the surface never had
	var perr *ipc.ProtocolError
	err = h.st.HandleRequest(a, ipc.DestroyPopup{Surface: 2})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ipc.ErrCodeRole, perr.Code)
}

func TestDragAndDropBetweenClients(t *testing.T) {
	h := newHarness(t)
	a, b := h.connect(), h.connect()
	h.mapWindow(a, 1, 300, 200)
	h.mapWindow(b, 1, 300, 200)

	h.pointer(125, 62.5)
	h.button(ipc.ButtonPressed)
	press, _ := ipctest.Last[ipc.PointerButton](h.rec, a.ID())

	h.do(a,
		ipc.CreateDataSource{ID: 7},
		ipc.DataSourceOffer{Source: 7, MimeType: "text/plain"},
		ipc.DataSourceSetActions{Source: 7, Actions: ipc.DndActionCopy | ipc.DndActionMove},
		ipc.StartDrag{Source: 7, Origin: 1, Serial: press.Serial},
	)
	require.NotNil(t, h.st.Data().Drag())
	assert.Equal(t, 1, h.log.count(events.GrabStarted))

	// Only B is here, A got raised by the click
	h.pointer(343.75, 250)
	enter, ok := ipctest.Last[ipc.DndEnter](h.rec, b.ID())
	require.True(t, ok)
	assert.Equal(t, []string{"text/plain"}, enter.MimeTypes)

	h.do(b,
		ipc.DataOfferAccept{Serial: enter.Serial, MimeType: "text/plain"},
		ipc.DataOfferSetActions{Actions: ipc.DndActionCopy, Preferred: ipc.DndActionCopy},
	)
	h.button(ipc.ButtonReleased)
	_, ok = ipctest.Last[ipc.DndDrop](h.rec, b.ID())
	assert.True(t, ok)
	_, ok = ipctest.Last[ipc.DataSourceDropPerformed](h.rec, a.ID())
	assert.True(t, ok)
	assert.Nil(t, h.st.Data().Drag(), "the drop ends the drag")
	assert.Len(t, h.st.Data().Awaiting(), 1)

	h.do(b, ipc.DataOfferFinish{})
	_, ok = ipctest.Last[ipc.DataSourceFinished](h.rec, a.ID())
	assert.True(t, ok)
	assert.Empty(t, h.st.Data().Awaiting())

	// The finished source can still be destroyed
	h.do(a, ipc.DestroyDataSource{Source: 7})
}

func TestOutputListRequest(t *testing.T) {
	h := newHarness(t)
	a := h.connect()

	h.do(a, ipc.OutputRequest{IncludeModes: true})
	resp, ok := ipctest.Last[ipc.OutputResponse](h.rec, a.ID())
	require.True(t, ok)
	assert.Equal(t, []string{"test-0"}, resp.Outputs)
	assert.Equal(t, 1, resp.OutputsFound)
	assert.Equal(t, []ipc.OutputMode{{Width: 1000, Height: 500, RefreshRate: 60_000}}, resp.OutputModes["test-0"])

	h.do(a, ipc.OutputRequest{SpecifiesOutput: true, TargetOutput: "missing"})
	resp, _ = ipctest.Last[ipc.OutputResponse](h.rec, a.ID())
	assert.Empty(t, resp.Outputs)
	assert.Zero(t, resp.OutputsFound)
}
