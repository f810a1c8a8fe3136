// Package ipctest has an ipc.Sender that records instead of sending
package ipctest

import (
	"github.com/mstarongithub/twm/common/ipc"
	generaldata "github.com/mstarongithub/twm/general-data"
)

type Sent struct {
	Client generaldata.ClientID
	Event  ipc.Event
}

type Recorder struct {
	Sent []Sent
}

func (r *Recorder) Send(client generaldata.ClientID, ev ipc.Event) {
	r.Sent = append(r.Sent, Sent{Client: client, Event: ev})
}

func (r *Recorder) Reset() {
	r.Sent = nil
}

// For returns everything sent to client, oldest first
func (r *Recorder) For(client generaldata.ClientID) []ipc.Event {
	out := []ipc.Event{}
	for _, s := range r.Sent {
		if s.Client == client {
			out = append(out, s.Event)
		}
	}
	return out
}

// Names returns the event names sent to client, oldest first
func (r *Recorder) Names(client generaldata.ClientID) []string {
	out := []string{}
	for _, ev := range r.For(client) {
		out = append(out, ev.EventName())
	}
	return out
}

// All returns every event of type T sent to client
func All[T ipc.Event](r *Recorder, client generaldata.ClientID) []T {
	out := []T{}
	for _, ev := range r.For(client) {
		if typed, ok := ev.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// Last returns the newest event of type T sent to client
func Last[T ipc.Event](r *Recorder, client generaldata.ClientID) (T, bool) {
	all := All[T](r, client)
	if len(all) == 0 {
		var zero T
		return zero, false
	}
	return all[len(all)-1], true
}
