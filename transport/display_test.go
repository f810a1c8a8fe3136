package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mstarongithub/twm/common/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	connected    []*Client
	disconnected []*Client
	requests     []ipc.Request
	// Returned for every request when set
	fail error
}

func (h *recordingHandler) ClientConnected(c *Client) { h.connected = append(h.connected, c) }
func (h *recordingHandler) ClientDisconnected(c *Client) {
	h.disconnected = append(h.disconnected, c)
}
func (h *recordingHandler) HandleRequest(c *Client, req ipc.Request) error {
	h.requests = append(h.requests, req)
	if create, ok := req.(ipc.CreateSurface); ok {
		if err := c.AddObject(create.ID, KindSurface); err != nil {
			return err
		}
	}
	if commit, ok := req.(ipc.Commit); ok {
		if err := c.Object(commit.Surface, KindSurface); err != nil {
			return err
		}
	}
	return h.fail
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, dir, name string) *testClient {
	t.Helper()
	conn, err := net.Dial("unix", filepath.Join(dir, name))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, req ipc.Request) {
	t.Helper()
	line, err := ipc.EncodeRequest(req)
	require.NoError(t, err)
	_, err = c.conn.Write(append(line, '\n'))
	require.NoError(t, err)
}

func (c *testClient) next(t *testing.T) map[string]any {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadBytes('\n')
	require.NoError(t, err)
	ev := map[string]any{}
	require.NoError(t, json.Unmarshal(line, &ev))
	return ev
}

func listen(t *testing.T) (*Display, *recordingHandler, string) {
	t.Helper()
	dir := t.TempDir()
	h := &recordingHandler{}
	d := NewDisplay(h)
	_, err := d.Listen(dir)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, h, dir
}

func acceptOne(t *testing.T, d *Display) {
	t.Helper()
	require.Eventually(t, d.PendingConnections, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, d.AcceptPending())
}

func TestListenPicksFreeNames(t *testing.T) {
	dir := t.TempDir()
	first := NewDisplay(&recordingHandler{})
	name, err := first.Listen(dir)
	require.NoError(t, err)
	defer first.Close()
	assert.Equal(t, "twm-0", name)

	second := NewDisplay(&recordingHandler{})
	name, err = second.Listen(dir)
	require.NoError(t, err)
	assert.Equal(t, "twm-1", name)
	require.NoError(t, second.Close())
	_, err = os.Stat(filepath.Join(dir, "twm-1"))
	assert.True(t, os.IsNotExist(err), "socket is removed on close")

	// A leftover socket file nobody listens on gets reused
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: filepath.Join(dir, "twm-1"), Net: "unix"})
	require.NoError(t, err)
	stale.SetUnlinkOnClose(false)
	stale.Close()
	third := NewDisplay(&recordingHandler{})
	name, err = third.Listen(dir)
	require.NoError(t, err)
	defer third.Close()
	assert.Equal(t, "twm-1", name)
}

func TestRequestsReachHandlerAndEventsGoOut(t *testing.T) {
	dir := t.TempDir()
	h := &recordingHandler{}
	d := NewDisplay(h)
	woken := make(chan struct{}, 64)
	d.OnWake(func() {
		select {
		case woken <- struct{}{}:
		default:
		}
	})
	_, err := d.Listen(dir)
	require.NoError(t, err)
	defer d.Close()
	c := dial(t, dir, d.Name())
	acceptOne(t, d)
	require.Len(t, h.connected, 1)
	client := h.connected[0]
	if creds := client.Credentials(); assert.NotNil(t, creds) {
		assert.Equal(t, int32(os.Getpid()), creds.PID)
	}

	c.send(t, ipc.CreateSurface{ID: 5})
	c.send(t, ipc.Commit{Surface: 5})
	require.Eventually(t, func() bool { return d.ingress.Pending() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, d.DispatchClients())
	assert.Equal(t, []ipc.Request{ipc.CreateSurface{ID: 5}, ipc.Commit{Surface: 5}}, h.requests)
	assert.Equal(t, map[Kind]int{KindSurface: 1}, client.Objects())
	assert.NotEmpty(t, woken)

	d.Send(client.ID(), ipc.FrameDone{Callback: 9})
	assert.Equal(t, 1, client.Queued())
	d.FlushClients()
	assert.Equal(t, 0, client.Queued())
	ev := c.next(t)
	assert.Equal(t, "frame.done", ev["event"])
}

func TestProtocolErrorDisconnectsOnlyThatClient(t *testing.T) {
	d, h, dir := listen(t)
	bad := dial(t, dir, d.Name())
	acceptOne(t, d)
	good := dial(t, dir, d.Name())
	acceptOne(t, d)

	bad.send(t, ipc.Commit{Surface: 77})
	require.Eventually(t, d.PendingRequests, 2*time.Second, 5*time.Millisecond)
	d.DispatchClients()

	ev := bad.next(t)
	assert.Equal(t, "error", ev["event"])
	args := ev["args"].(map[string]any)
	assert.Equal(t, float64(ipc.ErrCodeInvalidObject), args["code"])
	require.Len(t, h.disconnected, 1)
	assert.Equal(t, h.connected[0], h.disconnected[0])
	_, ok := d.Client(h.connected[0].ID())
	assert.False(t, ok)

	good.send(t, ipc.CreateSurface{ID: 1})
	require.Eventually(t, d.PendingRequests, 2*time.Second, 5*time.Millisecond)
	d.DispatchClients()
	assert.Len(t, d.Clients(), 1)
}

func TestMalformedAndUnknownRequests(t *testing.T) {
	d, h, dir := listen(t)
	c := dial(t, dir, d.Name())
	acceptOne(t, d)

	_, err := c.conn.Write([]byte(`{"op": "surface.teleport", "args": {}}` + "\n"))
	require.NoError(t, err)
	require.Eventually(t, d.PendingRequests, 2*time.Second, 5*time.Millisecond)
	d.DispatchClients()
	ev := c.next(t)
	assert.Equal(t, "error", ev["event"])
	assert.Empty(t, h.requests)
	assert.Len(t, h.disconnected, 1)
}

func TestNonProtocolErrorsKeepTheClient(t *testing.T) {
	d, h, dir := listen(t)
	c := dial(t, dir, d.Name())
	acceptOne(t, d)
	h.fail = errors.New("backend hiccup")

	c.send(t, ipc.CreateSurface{ID: 1})
	require.Eventually(t, d.PendingRequests, 2*time.Second, 5*time.Millisecond)
	d.DispatchClients()
	assert.Empty(t, h.disconnected)
	assert.Len(t, d.Clients(), 1)
}

func TestHangupDisconnectsOnce(t *testing.T) {
	d, h, dir := listen(t)
	c := dial(t, dir, d.Name())
	acceptOne(t, d)
	client := h.connected[0]

	c.conn.Close()
	require.Eventually(t, d.PendingRequests, 2*time.Second, 5*time.Millisecond)
	d.DispatchClients()
	require.Len(t, h.disconnected, 1)

	d.Disconnect(client)
	d.Send(client.ID(), ipc.FrameDone{})
	d.FlushClients()
	assert.Len(t, h.disconnected, 1)
}

func TestObjectIDsAreUniquePerClient(t *testing.T) {
	c := &Client{objects: map[uint32]Kind{}}
	require.NoError(t, c.AddObject(1, KindSurface))
	require.NoError(t, c.AddObject(2, KindBuffer))

	var perr *ipc.ProtocolError
	assert.ErrorAs(t, c.AddObject(1, KindBuffer), &perr)
	assert.ErrorAs(t, c.AddObject(0, KindSurface), &perr)
	assert.ErrorIs(t, c.Object(2, KindSurface), ErrUnknownObject)
	assert.NoError(t, c.Object(2, KindBuffer))
	assert.Equal(t, []uint32{1}, c.ObjectIDs(KindSurface))

	c.RemoveObject(1)
	assert.ErrorIs(t, c.Object(1, KindSurface), ErrUnknownObject)
	assert.True(t, c.Retired(1, KindSurface))
	assert.False(t, c.Retired(1, KindBuffer))
	assert.False(t, c.Retired(3, KindSurface), "never created")

	// Reusing the id makes it live again
	require.NoError(t, c.AddObject(1, KindBuffer))
	assert.False(t, c.Retired(1, KindSurface))
}

func TestFlushDoesNotWaitForSlowReaders(t *testing.T) {
	h := &recordingHandler{}
	d := NewDisplay(h)
	defer d.Close()
	server, peer := net.Pipe()
	defer peer.Close()
	// peer never reads
	client := d.AddClient(server)

	start := time.Now()
	d.Send(client.ID(), ipc.FrameDone{Callback: 1})
	d.FlushClients()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, h.disconnected)

	// The writer is stuck on the first batch, the rest piles up until the client counts as stalled
	for i := 0; i < writeBacklog+1 && len(h.disconnected) == 0; i++ {
		d.Send(client.ID(), ipc.FrameDone{Callback: uint32(i)})
		d.FlushClients()
	}
	assert.Less(t, time.Since(start), writeTimeout)
	require.Len(t, h.disconnected, 1)
	_, ok := d.Client(client.ID())
	assert.False(t, ok)
}

func TestPublishDisplayRestores(t *testing.T) {
	t.Setenv(DisplayEnv, "previous")
	restore := PublishDisplay("twm-3")
	assert.Equal(t, "twm-3", os.Getenv(DisplayEnv))
	restore()
	assert.Equal(t, "previous", os.Getenv(DisplayEnv))

	require.NoError(t, os.Unsetenv(DisplayEnv))
	restore = PublishDisplay("twm-4")
	restore()
	_, set := os.LookupEnv(DisplayEnv)
	assert.False(t, set)
}
