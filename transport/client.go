// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Kind tags what a client object id refers to
type Kind string

const (
	KindSurface    = Kind("surface")
	KindBuffer     = Kind("buffer")
	KindDataSource = Kind("data_source")
)

const (
	// Biggest request line a client may send. Raw pixel buffers are the big ones
	maxLineSize = 64 << 20
	// A client that doesn't read its events for this long gets dropped
	writeTimeout = time.Second
	// Flushed batches waiting for the writer before the client counts as stalled
	writeBacklog = 64
)

var ErrClientStalled = errors.New("client stopped reading its events")

// Credentials of the process on the other end of the socket
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// Client is the transport side of one connection: its object table and its event queue.
// Only touched from the loop goroutine, except for the reader and writer
type Client struct {
	id          generaldata.ClientID
	conn        net.Conn
	credentials *Credentials
	objects     map[uint32]Kind
	// Ids the client destroyed and hasn't reused yet
	retired  map[uint32]Kind
	outgoing [][]byte
	writes   chan []byte
	closed   bool
}

func (c *Client) ID() generaldata.ClientID {
	return c.id
}

// Credentials is nil when the connection isn't a unix socket
func (c *Client) Credentials() *Credentials {
	return c.credentials
}

// AddObject claims id for an object of the given kind. Ids are unique per client, across kinds
func (c *Client) AddObject(id uint32, kind Kind) error {
	if id == 0 {
		return ipc.NewProtocolError(id, ipc.ErrCodeInvalidObject, "object id 0 is reserved")
	}
	if existing, ok := c.objects[id]; ok {
		return ipc.NewProtocolError(id, ipc.ErrCodeInvalidObject, "id %d already used by a %s", id, existing)
	}
	c.objects[id] = kind
	delete(c.retired, id)
	return nil
}

// Object checks that id is a live object of the given kind
func (c *Client) Object(id uint32, kind Kind) error {
	if existing, ok := c.objects[id]; !ok || existing != kind {
		return fmt.Errorf("%w: %s %d", ErrUnknownObject, kind, id)
	}
	return nil
}

func (c *Client) RemoveObject(id uint32) {
	kind, ok := c.objects[id]
	if !ok {
		return
	}
	delete(c.objects, id)
	if c.retired == nil {
		c.retired = make(map[uint32]Kind)
	}
	c.retired[id] = kind
}

// Retired reports whether id was an object of kind that the client already destroyed
func (c *Client) Retired(id uint32, kind Kind) bool {
	retired, ok := c.retired[id]
	return ok && retired == kind
}

// Objects counts the live objects per kind
func (c *Client) Objects() map[Kind]int {
	counts := map[Kind]int{}
	for _, kind := range c.objects {
		counts[kind]++
	}
	return counts
}

// ObjectIDs lists every live id of a kind, sorted
func (c *Client) ObjectIDs(kind Kind) []uint32 {
	ids := []uint32{}
	for id, k := range c.objects {
		if k == kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Queued is the number of events waiting for the next flush
func (c *Client) Queued() int {
	return len(c.outgoing)
}

func (c *Client) queue(ev ipc.Event) {
	if c.closed {
		return
	}
	line, err := ipc.EncodeEvent(ev)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"client": c.id,
			"event":  ev.EventName(),
		}).Errorln("Failed to encode event")
		return
	}
	c.outgoing = append(c.outgoing, append(line, '\n'))
}

// flush hands the queued events to the writer goroutine without waiting for the socket
func (c *Client) flush() error {
	if len(c.outgoing) == 0 || c.closed {
		return nil
	}
	buf := make([]byte, 0, 4096)
	for _, line := range c.outgoing {
		buf = append(buf, line...)
	}
	c.outgoing = c.outgoing[:0]
	select {
	case c.writes <- buf:
		return nil
	default:
		return fmt.Errorf("%w: client %d", ErrClientStalled, c.id)
	}
}

// write puts flushed batches on the wire until the client is disconnected. Runs on its own goroutine.
// The connection gets closed here, after whatever was flushed before the disconnect went out
func (c *Client) write() {
	failed := false
	for buf := range c.writes {
		if failed {
			continue
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			logrus.WithError(err).WithField("client", c.id).Debugln("Connection doesn't take write deadlines")
		}
		if _, err := c.conn.Write(buf); err != nil {
			logrus.WithError(err).WithField("client", c.id).Debugln("Writing events failed")
			failed = true
			// The reader notices and reports the hangup
			c.conn.Close()
		}
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logrus.WithError(err).WithField("client", c.id).Debugln("Closing client connection")
	}
}

// message is what the reader goroutine hands to the loop
type message struct {
	client generaldata.ClientID
	req    ipc.Request
	err    error
	hangup bool
}

// read decodes requests until the connection ends. Runs on its own goroutine
func (c *Client) read(out func(message) error) {
	reader := bufio.NewReaderSize(c.conn, 64*1024)
	for {
		line, err := readLine(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logrus.WithError(err).WithField("client", c.id).Debugln("Client read failed")
			}
			_ = out(message{client: c.id, hangup: true})
			return
		}
		if len(line) == 0 {
			continue
		}
		msg := message{client: c.id}
		env := ipc.RequestEnvelope{}
		if err := json.Unmarshal(line, &env); err != nil {
			msg.err = ipc.NewProtocolError(0, ipc.ErrCodeInvalidMethod, "malformed request: %s", err)
		} else {
			msg.req, msg.err = ipc.DecodeRequest(env)
		}
		if out(msg) != nil {
			return
		}
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line := []byte{}
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("request longer than %d bytes", maxLineSize)
		}
		switch {
		case err == nil:
			return line[:len(line)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

// peerCredentials asks the kernel who is on the other end of a unix socket
func peerCredentials(conn net.Conn) (*Credentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, nil
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, err
	}
	if credErr != nil {
		return nil, credErr
	}
	return &Credentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
