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

var ErrReceiverExists = errors.New("receiver with that name already exists")

// OneToMany copies every message to all named receivers.
// A receiver that can't keep up misses messages instead of stalling the sender
type OneToMany[T any] struct {
	inbound   chan T
	outbound  map[string]chan T // Use map here to give names to outbound channels
	lock      sync.Mutex
	closeChan chan any
	closed    bool
	dropped   map[string]int
}

// NewOneToMany creates a plexer whose sender queue holds up to buffer messages
func NewOneToMany[T any](buffer int) *OneToMany[T] {
	return &OneToMany[T]{
		inbound:   make(chan T, buffer),
		outbound:  make(map[string]chan T),
		closeChan: make(chan any),
		dropped:   make(map[string]int),
	}
}

// Get the channel to send things into
func (o *OneToMany[T]) GetSender() chan<- T {
	return o.inbound
}

// TrySend queues msg without blocking. Returns false if the plexer is backed up
func (o *OneToMany[T]) TrySend(msg T) bool {
	o.lock.Lock()
	closed := o.closed
	o.lock.Unlock()
	if closed {
		return false
	}
	select {
	case o.inbound <- msg:
		return true
	default:
		return false
	}
}

// Create a new receiver for the multiplexer to send messages to.
// Please do not close this manually, instead use the CloseReceiver func
func (o *OneToMany[T]) MakeReceiver(name string, buffer int) (<-chan T, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	// Only allow new receivers to be made
	if _, ok := o.outbound[name]; ok {
		return nil, ErrReceiverExists
	}
	rec := make(chan T, buffer)
	o.outbound[name] = rec
	return rec, nil
}

// Closes a receiver channel with the given name and removes it from the multiplexer
func (o *OneToMany[T]) CloseReceiver(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	if val, ok := o.outbound[name]; ok {
		close(val)
		delete(o.outbound, name)
		delete(o.dropped, name)
	}
}

// Receivers lists the names of the current receivers
func (o *OneToMany[T]) Receivers() []string {
	o.lock.Lock()
	defer o.lock.Unlock()
	names := make([]string, 0, len(o.outbound))
	for name := range o.outbound {
		names = append(names, name)
	}
	return names
}

// Dropped is how many messages the named receiver missed because it was full
func (o *OneToMany[T]) Dropped(name string) int {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.dropped[name]
}

// Start this one to many multiplexer
// intended to run as a goroutine (`go plexer.StartPlexer()`)
func (o *OneToMany[T]) StartPlexer() {
	for {
		select {
		// Message gotten from inbound channel
		case msg := <-o.inbound:
			o.lock.Lock()
			// Send it to all outbound channels that have room
			for name, c := range o.outbound {
				select {
				case c <- msg:
				default:
					o.dropped[name]++
				}
			}
			o.lock.Unlock()
		// Told to close the plexer including sender
		case <-o.closeChan:
			o.lock.Lock()
			// First close all outbound channels
			// No need to send any signal there as readers will just stop
			for name, c := range o.outbound {
				close(c)
				delete(o.outbound, name)
			}
			// Inbound stays open, TrySend checks closed instead
			o.closed = true
			o.lock.Unlock()
			return
		}
	}
}

// Close the sender and all receiver channels, mark the plexer as closed and stop the distribution goroutine (all by sending one signal)
func (o *OneToMany[T]) CloseSender() {
	o.closeChan <- 1
}
