// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mstarongithub/twm/backend"
	"github.com/mstarongithub/twm/eventloop"
	"github.com/mstarongithub/twm/transport"
	"github.com/mstarongithub/twm/util/multiplexer"
	"github.com/sirupsen/logrus"
)

// Names of the loop sources, in the order they get serviced
const (
	SourceClients  = "clients"
	SourceListener = "listener"
	SourceInput    = "input"
	SourceAdmin    = "admin"
	TimerRedraw    = "redraw"
)

const (
	DefaultFrameInterval = 16 * time.Millisecond
	adminBuffer          = 16
)

// Command runs on the control loop with full access to the compositor state
type Command func(st *State) (string, error)

type adminRequest struct {
	run   Command
	reply chan adminReply
}

type adminReply struct {
	out string
	err error
}

type SchedulerOptions struct {
	State    Options
	Input    backend.InputBackend
	Renderer backend.Renderer
	// Where the listening socket goes
	SocketDir     string
	FrameInterval time.Duration
}

// Scheduler owns the event loop and drives the compositor state from it.
// Everything touching the state happens on the goroutine calling Run
type Scheduler struct {
	loop     *eventloop.Loop
	state    *State
	display  *transport.Display
	input    backend.InputBackend
	renderer backend.Renderer
	admin    *multiplexer.ManyToOne[adminRequest]

	socketDir string
	interval  time.Duration
	restore   func()
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Input == nil || opts.Renderer == nil {
		return nil, errors.New("scheduler needs an input backend and a renderer")
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	s := &Scheduler{
		loop:      eventloop.New(),
		display:   transport.NewDisplay(nil),
		input:     opts.Input,
		renderer:  opts.Renderer,
		admin:     multiplexer.NewManyToOne(make(chan adminRequest, adminBuffer)),
		socketDir: opts.SocketDir,
		interval:  opts.FrameInterval,
	}
	stateOpts := opts.State
	stateOpts.Sender = s.display
	userStop := stateOpts.Stop
	stateOpts.Stop = func() {
		if userStop != nil {
			userStop()
		}
		s.loop.Stop()
	}
	s.state = New(stateOpts)
	s.display.SetHandler(s.state)
	s.display.OnWake(s.loop.Wake)
	s.admin.OnSend(s.loop.Wake)

	if err := s.register(); err != nil {
		return nil, fmt.Errorf("registering loop sources: %w", err)
	}
	return s, nil
}

func (s *Scheduler) register() error {
	if err := s.loop.Insert(SourceClients, eventloop.SourceFunc{
		ReadyFunc: s.display.PendingRequests,
		DispatchFunc: func() (eventloop.PostAction, error) {
			s.display.DispatchClients()
			return eventloop.Continue, nil
		},
	}); err != nil {
		return err
	}
	if err := s.loop.Insert(SourceListener, eventloop.SourceFunc{
		ReadyFunc: s.display.PendingConnections,
		DispatchFunc: func() (eventloop.PostAction, error) {
			s.display.AcceptPending()
			return eventloop.Continue, nil
		},
	}); err != nil {
		return err
	}
	if pending, ok := s.input.(backend.PendingInput); ok {
		if err := s.loop.Insert(SourceInput, eventloop.SourceFunc{
			ReadyFunc: pending.Pending,
			DispatchFunc: func() (eventloop.PostAction, error) {
				if s.state.PumpInput(s.input) {
					s.stop("input backend closed")
					return eventloop.Remove, nil
				}
				return eventloop.Continue, nil
			},
		}); err != nil {
			return err
		}
	}
	if err := s.loop.Insert(SourceAdmin, eventloop.SourceFunc{
		ReadyFunc:    func() bool { return s.admin.Pending() > 0 },
		DispatchFunc: s.runCommands,
	}); err != nil {
		return err
	}
	return s.loop.InsertTimer(TimerRedraw, s.interval, s.redraw)
}

// redraw is the frame tick. Input is drained before anything reads the space
func (s *Scheduler) redraw(time.Time) eventloop.TimeoutAction {
	if !s.state.Tick(s.input, s.renderer) {
		s.stop("input backend closed")
		s.display.FlushClients()
		return eventloop.Drop()
	}
	s.display.FlushClients()
	if s.loop.Stopped() {
		return eventloop.Drop()
	}
	return eventloop.ToDuration(s.interval)
}

func (s *Scheduler) stop(reason string) {
	if s.loop.Stopped() {
		return
	}
	s.state.Quit(reason)
}

func (s *Scheduler) runCommands() (eventloop.PostAction, error) {
	for {
		req, ok := s.admin.TryReceive()
		if !ok {
			return eventloop.Continue, nil
		}
		out, err := req.run(s.state)
		req.reply <- adminReply{out: out, err: err}
	}
}

// Exec runs cmd on the control loop and waits for its answer. Safe to call from any goroutine
func (s *Scheduler) Exec(ctx context.Context, cmd Command) (string, error) {
	reply := make(chan adminReply, 1)
	if err := s.admin.Send(adminRequest{run: cmd, reply: reply}); err != nil {
		return "", eventloop.ErrStopped
	}
	select {
	case r := <-reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Scheduler) State() *State {
	return s.state
}

func (s *Scheduler) Loop() *eventloop.Loop {
	return s.loop
}

func (s *Scheduler) Display() *transport.Display {
	return s.display
}

// Listen opens the client socket and publishes its name in the environment.
// Returns the socket name
func (s *Scheduler) Listen() (string, error) {
	name, err := s.display.Listen(s.socketDir)
	if err != nil {
		return "", err
	}
	s.restore = transport.PublishDisplay(name)
	return name, nil
}

// Run drives the loop until it gets stopped or ctx ends, then drops every client
func (s *Scheduler) Run(ctx context.Context) error {
	logrus.WithField("interval", s.interval).Infoln("Starting event loop")
	err := s.loop.Run(ctx)
	s.shutdown()
	return err
}

func (s *Scheduler) shutdown() {
	s.admin.Close()
	for {
		req, ok := s.admin.TryReceive()
		if !ok {
			break
		}
		req.reply <- adminReply{err: eventloop.ErrStopped}
	}
	s.display.FlushClients()
	if err := s.display.Close(); err != nil {
		logrus.WithError(err).Warnln("Closing the client socket failed")
	}
	if s.restore != nil {
		s.restore()
		s.restore = nil
	}
	logrus.Infoln("Compositor shut down")
}
