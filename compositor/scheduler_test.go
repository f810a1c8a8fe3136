package compositor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/backend/headless"
	"github.com/mstarongithub/twm/common/ipc"
	"github.com/mstarongithub/twm/common/ipc/ipctest"
	"github.com/mstarongithub/twm/eventloop"
	"github.com/mstarongithub/twm/events"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/space"
	"github.com/mstarongithub/twm/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOutput() *space.Output {
	out := space.NewOutput("headless-0", space.PhysicalProperties{})
	out.SetMode(space.Mode{Size: generaldata.Vector2i{X: 1000, Y: 500}, Refresh: 60_000})
	return out
}

func TestTickDrainsInputBeforeRendering(t *testing.T) {
	h := newHarness(t)
	hb := headless.New(h.st.Output())
	a := h.connect()
	h.mapWindow(a, 1, 300, 200)
	h.do(a, ipc.Frame{Surface: 1, Callback: 77}, ipc.Commit{Surface: 1})

	hb.Push(backend.PointerMotionAbsolute{X: 0.125, Y: 0.125})
	require.True(t, h.st.Tick(hb, hb))

	assert.Equal(t, generaldata.Point{X: 125, Y: 62.5}, h.st.Seat().PointerLocation())
	assert.Equal(t, 1, hb.Frames())
	done, ok := ipctest.Last[ipc.FrameDone](h.rec, a.ID())
	require.True(t, ok)
	assert.Equal(t, uint32(77), done.Callback)

	require.NoError(t, hb.Close())
	assert.False(t, h.st.Tick(hb, hb))
	assert.Equal(t, 1, hb.Frames())
}

func TestTickPrunesDeadWindows(t *testing.T) {
	h := newHarness(t)
	hb := headless.New(h.st.Output())
	a := h.connect()
	win := h.mapWindow(a, 1, 300, 200)

	h.do(a, ipc.DestroyToplevel{Surface: 1})
	assert.False(t, win.Alive())
	require.True(t, h.st.Tick(hb, hb))
	assert.Empty(t, h.st.Space().Elements())
}

// brokenTarget fails every bind, like a render target that went away
type brokenTarget struct {
	*headless.Backend
}

func (brokenTarget) Bind() error {
	return errors.New("no render target")
}

func TestFailedFrameKeepsTicking(t *testing.T) {
	h := newHarness(t)
	hb := headless.New(h.st.Output())
	a := h.connect()
	h.mapWindow(a, 1, 300, 200)
	h.do(a, ipc.Frame{Surface: 1, Callback: 9}, ipc.Commit{Surface: 1})

	require.True(t, h.st.Tick(hb, brokenTarget{hb}))
	assert.Equal(t, 1, h.log.count(events.FrameFailed))
	assert.Zero(t, hb.Frames())
	_, ok := ipctest.Last[ipc.FrameDone](h.rec, a.ID())
	assert.True(t, ok)

	require.True(t, h.st.Tick(hb, hb))
	assert.Equal(t, 1, hb.Frames())
}

type wireClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (c *wireClient) send(t *testing.T, reqs ...ipc.Request) {
	t.Helper()
	for _, req := range reqs {
		line, err := ipc.EncodeRequest(req)
		require.NoError(t, err)
		_, err = c.conn.Write(append(line, '\n'))
		require.NoError(t, err)
	}
}

// waitFor reads events until one named name shows up
func (c *wireClient) waitFor(t *testing.T, name string) map[string]any {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		line, err := c.reader.ReadBytes('\n')
		require.NoError(t, err)
		ev := map[string]any{}
		require.NoError(t, json.Unmarshal(line, &ev))
		if ev["event"] == name {
			return ev
		}
	}
}

func startScheduler(t *testing.T, hb *headless.Backend) (*Scheduler, string, chan error) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewScheduler(SchedulerOptions{
		State:         Options{Output: hb.Output()},
		Input:         hb,
		Renderer:      hb,
		SocketDir:     dir,
		FrameInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	name, err := s.Listen()
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	return s, filepath.Join(dir, name), done
}

func waitStopped(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerServesClientsUntilQuit(t *testing.T) {
	t.Setenv(transport.DisplayEnv, "before")
	hb := headless.New(testOutput())
	s, path, done := startScheduler(t, hb)
	assert.Equal(t, filepath.Base(path), os.Getenv(transport.DisplayEnv))

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	c := &wireClient{conn: conn, reader: bufio.NewReader(conn)}
	c.send(t,
		ipc.CreateSurface{ID: 1},
		ipc.GetToplevel{Surface: 1},
		ipc.Commit{Surface: 1},
	)
	ev := c.waitFor(t, "toplevel.configure")
	args, ok := ev["args"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, args["surface"])

	ctx := context.Background()
	out, err := s.Exec(ctx, func(st *State) (string, error) {
		return strconv.Itoa(st.ClientCount()), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	_, err = s.Exec(ctx, func(st *State) (string, error) {
		st.Quit("console")
		return "", nil
	})
	require.NoError(t, err)
	waitStopped(t, done)

	assert.Equal(t, "before", os.Getenv(transport.DisplayEnv))
	assert.Positive(t, hb.Frames())
	_, err = s.Exec(ctx, func(*State) (string, error) { return "", nil })
	assert.ErrorIs(t, err, eventloop.ErrStopped)
}

func TestSchedulerStopsWhenBackendCloses(t *testing.T) {
	hb := headless.New(testOutput())
	_, _, done := startScheduler(t, hb)
	require.NoError(t, hb.Close())
	waitStopped(t, done)
}

func TestSchedulerRegistersSourcesInOrder(t *testing.T) {
	hb := headless.New(testOutput())
	s, err := NewScheduler(SchedulerOptions{
		State:    Options{Output: hb.Output()},
		Input:    hb,
		Renderer: hb,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{SourceClients, SourceListener, SourceInput, SourceAdmin, TimerRedraw}, s.Loop().Sources())
}
