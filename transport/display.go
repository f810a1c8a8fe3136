// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package transport is the client side boundary: a unix socket speaking newline delimited json.
// Reading and writing happen on two goroutines per client, everything else on the loop goroutine
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"

	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/util/multiplexer"
	"github.com/sirupsen/logrus"
)

// DisplayEnv tells clients which socket to connect to
const DisplayEnv = "TWM_DISPLAY"

const (
	maxDisplays   = 32
	ingressBuffer = 1024
	acceptBuffer  = 16
)

var (
	ErrUnknownObject = errors.New("unknown object")
	ErrNoFreeSocket  = errors.New("no free socket name")
)

// Handler is the compositor side of the transport
type Handler interface {
	ClientConnected(c *Client)
	// A returned ipc.ProtocolError or ErrUnknownObject disconnects the client, anything else is logged
	HandleRequest(c *Client, req ipc.Request) error
	// Called exactly once per client, after which the client is gone
	ClientDisconnected(c *Client)
}

type Display struct {
	handler Handler

	listener *net.UnixListener
	name     string
	path     string

	clients map[generaldata.ClientID]*Client
	nextID  generaldata.ClientID

	ingress  *multiplexer.ManyToOne[message]
	accepted *multiplexer.ManyToOne[net.Conn]
}

func NewDisplay(handler Handler) *Display {
	return &Display{
		handler:  handler,
		clients:  make(map[generaldata.ClientID]*Client),
		ingress:  multiplexer.NewManyToOne(make(chan message, ingressBuffer)),
		accepted: multiplexer.NewManyToOne(make(chan net.Conn, acceptBuffer)),
	}
}

// SetHandler replaces the handler. Set it before Listen
func (d *Display) SetHandler(handler Handler) {
	d.handler = handler
}

// OnWake sets what runs whenever a request or connection arrives, usually the loop's Wake. Set it before Listen
func (d *Display) OnWake(wake func()) {
	d.ingress.OnSend(wake)
	d.accepted.OnSend(wake)
}

// Name is the socket name clients should use, empty before Listen
func (d *Display) Name() string {
	return d.name
}

// Listen binds the first free twm-N socket in dir and starts accepting connections in the background
func (d *Display) Listen(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating socket dir %s: %w", dir, err)
	}
	for i := 0; i < maxDisplays; i++ {
		name := fmt.Sprintf("twm-%d", i)
		path := filepath.Join(dir, name)
		if inUse(path) {
			continue
		}
		listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
		if err != nil {
			logrus.WithError(err).WithField("socket", path).Debugln("Socket not usable, trying the next one")
			continue
		}
		listener.SetUnlinkOnClose(true)
		d.listener = listener
		d.name = name
		d.path = path
		go d.acceptLoop(listener)
		logrus.WithField("socket", path).Infoln("Listening for clients")
		return name, nil
	}
	return "", fmt.Errorf("%w in %s", ErrNoFreeSocket, dir)
}

// inUse reports whether someone is listening on path. A socket file nobody listens on gets removed
func inUse(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return true
	}
	logrus.WithField("socket", path).Debugln("Removing stale socket")
	return os.Remove(path) != nil
}

func (d *Display) acceptLoop(listener *net.UnixListener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logrus.WithError(err).Errorln("Accepting clients failed")
			}
			return
		}
		if d.accepted.Send(conn) != nil {
			conn.Close()
			return
		}
	}
}

// PendingConnections reports whether accepted connections wait for AcceptPending
func (d *Display) PendingConnections() bool {
	return d.accepted.Pending() > 0
}

// AcceptPending registers every waiting connection as a client
func (d *Display) AcceptPending() int {
	n := 0
	for {
		conn, ok := d.accepted.TryReceive()
		if !ok {
			return n
		}
		d.AddClient(conn)
		n++
	}
}

// AddClient registers a connection as a new client and starts reading from it
func (d *Display) AddClient(conn net.Conn) *Client {
	d.nextID++
	c := &Client{
		id:      d.nextID,
		conn:    conn,
		objects: make(map[uint32]Kind),
		retired: make(map[uint32]Kind),
		writes:  make(chan []byte, writeBacklog),
	}
	creds, err := peerCredentials(conn)
	if err != nil {
		logrus.WithError(err).WithField("client", c.id).Warnln("Failed to get peer credentials")
	}
	c.credentials = creds
	d.clients[c.id] = c

	fields := logrus.Fields{"client": c.id}
	if creds != nil {
		fields["pid"] = creds.PID
		fields["uid"] = creds.UID
	}
	logrus.WithFields(fields).Infoln("Client connected")
	go c.read(d.ingress.Send)
	go c.write()
	d.handler.ClientConnected(c)
	return c
}

func (d *Display) Client(id generaldata.ClientID) (*Client, bool) {
	c, ok := d.clients[id]
	return c, ok
}

// Clients returns every connected client ordered by id
func (d *Display) Clients() []*Client {
	clients := make([]*Client, 0, len(d.clients))
	for _, c := range d.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// PendingRequests reports whether requests wait for DispatchClients
func (d *Display) PendingRequests() bool {
	return d.ingress.Pending() > 0
}

// DispatchClients hands every queued request to the handler. Returns how many got handled
func (d *Display) DispatchClients() int {
	n := 0
	for {
		msg, ok := d.ingress.TryReceive()
		if !ok {
			return n
		}
		c, ok := d.clients[msg.client]
		if !ok {
			// Requests that were in flight when the client got dropped
			continue
		}
		switch {
		case msg.hangup:
			d.Disconnect(c)
		case msg.err != nil:
			d.fail(c, msg.err)
		default:
			if err := d.handler.HandleRequest(c, msg.req); err != nil {
				d.fail(c, err)
			}
			n++
		}
	}
}

// fail deals with an error coming out of a request
func (d *Display) fail(c *Client, err error) {
	var perr *ipc.ProtocolError
	switch {
	case errors.As(err, &perr):
	case errors.Is(err, ErrUnknownObject):
		perr = ipc.NewProtocolError(0, ipc.ErrCodeInvalidObject, "%s", err)
	default:
		logrus.WithError(err).WithField("client", c.id).Warnln("Request failed")
		return
	}
	d.PostError(c, perr)
}

// PostError sends a protocol error to the client and disconnects it
func (d *Display) PostError(c *Client, perr *ipc.ProtocolError) {
	logrus.WithError(perr).WithField("client", c.id).Warnln("Protocol error, disconnecting client")
	c.queue(perr)
	if err := c.flush(); err != nil {
		logrus.WithError(err).WithField("client", c.id).Debugln("Couldn't deliver protocol error")
	}
	d.Disconnect(c)
}

// Send implements ipc.Sender. Events are only queued, FlushClients writes them
func (d *Display) Send(client generaldata.ClientID, ev ipc.Event) {
	c, ok := d.clients[client]
	if !ok {
		return
	}
	c.queue(ev)
}

// FlushClients hands every queued event to the client writers. Never waits on a socket;
// a client whose writer is still that far behind gets dropped
func (d *Display) FlushClients() {
	for _, c := range d.Clients() {
		if err := c.flush(); err != nil {
			logrus.WithError(err).WithField("client", c.id).Warnln("Dropping client")
			c.conn.Close()
			d.Disconnect(c)
		}
	}
}

// Disconnect drops a client. Calling it again for the same client does nothing
func (d *Display) Disconnect(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	c.outgoing = nil
	if c.writes != nil {
		// The writer closes the connection once it is through
		close(c.writes)
	} else {
		c.conn.Close()
	}
	delete(d.clients, c.id)
	logrus.WithField("client", c.id).Infoln("Client disconnected")
	d.handler.ClientDisconnected(c)
}

// Close stops listening, drops every client and removes the socket
func (d *Display) Close() error {
	var err error
	if d.listener != nil {
		err = d.listener.Close()
		d.listener = nil
	}
	for _, c := range d.Clients() {
		d.Disconnect(c)
	}
	d.accepted.Close()
	for {
		conn, ok := d.accepted.TryReceive()
		if !ok || conn == nil {
			break
		}
		conn.Close()
	}
	d.ingress.Close()
	return err
}
