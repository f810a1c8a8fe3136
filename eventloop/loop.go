// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package eventloop is a small single goroutine event loop.
// Sources are polled, never blocked on. Other goroutines only ever wake or stop the loop,
// everything a source does happens on the goroutine calling Dispatch
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

var (
	ErrStopped   = errors.New("event loop stopped")
	ErrNameTaken = errors.New("source name already in use")
)

type PostAction int

const (
	// Keep the source registered
	Continue PostAction = iota
	// Drop the source after this dispatch
	Remove
)

// Source is anything the loop can poll. Ready must not block.
// Dispatch is only called when Ready returned true
type Source interface {
	Ready() bool
	Dispatch() (PostAction, error)
}

// SourceFunc wraps a pair of functions as a Source
type SourceFunc struct {
	ReadyFunc    func() bool
	DispatchFunc func() (PostAction, error)
}

func (s SourceFunc) Ready() bool                   { return s.ReadyFunc() }
func (s SourceFunc) Dispatch() (PostAction, error) { return s.DispatchFunc() }

// TimeoutAction is what a timer callback wants to happen next
type TimeoutAction struct {
	drop  bool
	after time.Duration
}

// ToDuration fires the timer again d after the callback returned
func ToDuration(d time.Duration) TimeoutAction {
	return TimeoutAction{after: d}
}

// Drop removes the timer
func Drop() TimeoutAction {
	return TimeoutAction{drop: true}
}

// TimerFunc gets the deadline the timer was scheduled for
type TimerFunc func(deadline time.Time) TimeoutAction

type registered struct {
	name    string
	source  Source
	removed bool
}

type timer struct {
	name     string
	deadline time.Time
	callback TimerFunc
	removed  bool
}

type Loop struct {
	sources []*registered
	timers  []*timer

	wake     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
}

func (l *Loop) nameTaken(name string) bool {
	for _, s := range l.sources {
		if s.name == name && !s.removed {
			return true
		}
	}
	for _, t := range l.timers {
		if t.name == name && !t.removed {
			return true
		}
	}
	return false
}

// Insert registers a source. Sources are polled in the order they got inserted
func (l *Loop) Insert(name string, source Source) error {
	if l.nameTaken(name) {
		return fmt.Errorf("inserting %s: %w", name, ErrNameTaken)
	}
	l.sources = append(l.sources, &registered{name: name, source: source})
	logrus.WithField("source", name).Debugln("Inserted event source")
	return nil
}

// InsertTimer registers a timer that first fires after the given duration
func (l *Loop) InsertTimer(name string, after time.Duration, callback TimerFunc) error {
	if l.nameTaken(name) {
		return fmt.Errorf("inserting timer %s: %w", name, ErrNameTaken)
	}
	l.timers = append(l.timers, &timer{
		name:     name,
		deadline: l.now().Add(after),
		callback: callback,
	})
	logrus.WithFields(logrus.Fields{
		"timer": name,
		"after": after,
	}).Debugln("Inserted timer")
	return nil
}

// Remove unregisters a source or timer. Safe to call from inside a dispatch
func (l *Loop) Remove(name string) bool {
	found := false
	for _, s := range l.sources {
		if s.name == name && !s.removed {
			s.removed = true
			found = true
		}
	}
	for _, t := range l.timers {
		if t.name == name && !t.removed {
			t.removed = true
			found = true
		}
	}
	return found
}

// Sources lists the names of every live source and timer
func (l *Loop) Sources() []string {
	names := []string{}
	for _, s := range l.sources {
		if !s.removed {
			names = append(names, s.name)
		}
	}
	for _, t := range l.timers {
		if !t.removed {
			names = append(names, t.name)
		}
	}
	return names
}

// Wake makes a blocked Dispatch poll its sources again. Safe from any goroutine
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop makes the loop stop after the dispatch in progress. Safe from any goroutine
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		logrus.Debugln("Event loop stop requested")
		close(l.stopped)
	})
}

func (l *Loop) Stopped() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

// Signal returns a handle other goroutines can hold on to without getting the loop itself
func (l *Loop) Signal() Signal {
	return Signal{loop: l}
}

type Signal struct {
	loop *Loop
}

func (s Signal) Wake() { s.loop.Wake() }
func (s Signal) Stop() { s.loop.Stop() }

func (l *Loop) readySources() []*registered {
	ready := []*registered{}
	for _, s := range l.sources {
		if !s.removed && s.source.Ready() {
			ready = append(ready, s)
		}
	}
	return ready
}

func (l *Loop) nextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range l.timers {
		if t.removed {
			continue
		}
		if !found || t.deadline.Before(next) {
			next = t.deadline
			found = true
		}
	}
	return next, found
}

// wait blocks until something might be ready: a wake up, a stop, a timer deadline or the timeout.
// A negative timeout waits without limit
func (l *Loop) wait(timeout time.Duration) {
	var limit <-chan time.Time
	deadline, hasTimer := l.nextDeadline()
	wait := timeout
	if hasTimer {
		untilTimer := max(deadline.Sub(l.now()), 0)
		if wait < 0 || untilTimer < wait {
			wait = untilTimer
		}
	}
	if wait == 0 {
		return
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		limit = t.C
	}
	select {
	case <-l.wake:
	case <-l.stopped:
	case <-limit:
	}
}

// Dispatch waits up to timeout for something to do, then runs every ready source in insertion order,
// followed by every due timer. Source errors are logged and don't end the loop.
// Returns ErrStopped once the loop got stopped
func (l *Loop) Dispatch(timeout time.Duration) error {
	if l.Stopped() {
		return ErrStopped
	}
	ready := l.readySources()
	if len(ready) == 0 && !l.timerDue() {
		l.wait(timeout)
		if l.Stopped() {
			return ErrStopped
		}
		ready = l.readySources()
	}

	for _, s := range ready {
		if s.removed {
			continue
		}
		action, err := s.source.Dispatch()
		if err != nil {
			logrus.WithError(err).WithField("source", s.name).Errorln("Event source failed")
		}
		if action == Remove {
			s.removed = true
		}
	}
	l.runTimers()

	l.sources = sliceutils.Filter(l.sources, func(s *registered) bool { return !s.removed })
	l.timers = sliceutils.Filter(l.timers, func(t *timer) bool { return !t.removed })
	return nil
}

func (l *Loop) timerDue() bool {
	deadline, ok := l.nextDeadline()
	return ok && !deadline.After(l.now())
}

func (l *Loop) runTimers() {
	now := l.now()
	due := []*timer{}
	for _, t := range l.timers {
		if !t.removed && !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		if t.removed {
			continue
		}
		action := t.callback(t.deadline)
		if action.drop {
			t.removed = true
			continue
		}
		t.deadline = l.now().Add(action.after)
	}
}

// Run dispatches until the loop gets stopped or ctx is done
func (l *Loop) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-done:
		}
	}()

	for {
		if err := l.Dispatch(-1); err != nil {
			if errors.Is(err, ErrStopped) {
				logrus.Infoln("Event loop stopped")
				return nil
			}
			return err
		}
	}
}
