// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("multiplexer has been closed")

// A many to one multiplexer
// Yes, channels technically already are that, but there are a bunch of problems with using raw channels as multiplexer:
// If any of the senders tries to send to a closed channel, it explodes
// Thus, wrap it inside a struct that handles that case of a closed channel
type ManyToOne[T any] struct {
	outbound chan T
	done     chan struct{}
	lock     sync.RWMutex
	once     sync.Once
	closed   bool
	// Called after every successful send, e.g. to wake up whoever drains the receiver
	onSend func()
}

// NewManyToOne creates a new ManyToOne multiplexer
// The given channel will be where all messages will be sent to
func NewManyToOne[T any](receiver chan T) *ManyToOne[T] {
	return &ManyToOne[T]{
		outbound: receiver,
		done:     make(chan struct{}),
	}
}

// OnSend registers a func to run after each message got queued. Set it before anyone sends
func (m *ManyToOne[T]) OnSend(fn func()) {
	m.onSend = fn
}

// Send a message to this many to one plexer
// Blocks while the receiver is full. If closed, the message won't get sent
func (m *ManyToOne[T]) Send(msg T) error {
	m.lock.RLock()
	if m.closed {
		m.lock.RUnlock()
		return ErrClosed
	}
	select {
	case m.outbound <- msg:
	case <-m.done:
		m.lock.RUnlock()
		return ErrClosed
	}
	m.lock.RUnlock()
	if m.onSend != nil {
		m.onSend()
	}
	return nil
}

// TryReceive takes one queued message without blocking
func (m *ManyToOne[T]) TryReceive() (T, bool) {
	select {
	case msg, ok := <-m.outbound:
		return msg, ok
	default:
		var zero T
		return zero, false
	}
}

// Pending is the number of queued messages
func (m *ManyToOne[T]) Pending() int {
	return len(m.outbound)
}

// Closes the channel and marks the plexer as closed
// Senders stuck on a full receiver are let go first
func (m *ManyToOne[T]) Close() {
	m.once.Do(func() {
		close(m.done)
		m.lock.Lock()
		m.closed = true
		close(m.outbound)
		m.lock.Unlock()
	})
}
