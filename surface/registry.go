// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package surface

import (
	"fmt"

	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/sirupsen/logrus"
)

type (
	// Called after a client commit applied state, with the committed surface.
	// Not called for synced subsurfaces, they are applied as part of their parent's commit
	CommitHook func(s *Surface)
	// Called exactly once per surface, after it got destroyed
	DestroyHook func(s *Surface)
	// Called when the compositor stops using a buffer and hands it back to the client
	ReleaseHook func(b *Buffer)
)

// Registry owns every live surface. It is owned by the window space and only used from the control loop
type Registry struct {
	surfaces map[ID]*Surface
	nextID   ID

	commitHooks  []CommitHook
	destroyHooks []DestroyHook
	onRelease    ReleaseHook
}

func NewRegistry() *Registry {
	return &Registry{
		surfaces: make(map[ID]*Surface),
	}
}

func (r *Registry) OnCommit(hook CommitHook) {
	r.commitHooks = append(r.commitHooks, hook)
}

func (r *Registry) OnDestroy(hook DestroyHook) {
	r.destroyHooks = append(r.destroyHooks, hook)
}

func (r *Registry) OnRelease(hook ReleaseHook) {
	r.onRelease = hook
}

// Create makes a new surface without role or content for the given client.
// objectID is the id the client knows the surface by
func (r *Registry) Create(client generaldata.ClientID, objectID uint32) *Surface {
	r.nextID++
	s := &Surface{
		id:       r.nextID,
		objectID: objectID,
		client:   client,
		registry: r,
	}
	r.surfaces[s.id] = s
	logrus.WithFields(logrus.Fields{
		"surface": s.id,
		"client":  client,
	}).Debugln("New surface")
	return s
}

func (r *Registry) Get(id ID) (*Surface, bool) {
	s, ok := r.surfaces[id]
	return s, ok
}

func (r *Registry) Len() int {
	return len(r.surfaces)
}

// Surfaces returns every live surface, in no particular order
func (r *Registry) Surfaces() []*Surface {
	out := make([]*Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		out = append(out, s)
	}
	return out
}

// NewBuffer registers client content. The buffer belongs to the client until a surface shows it
func (r *Registry) NewBuffer(client generaldata.ClientID, id uint32, size generaldata.Vector2i, scale int) *Buffer {
	return &Buffer{
		ID:     id,
		Client: client,
		Size:   size,
		Scale:  max(scale, 1),
	}
}

// MakeSubsurface turns child into a subsurface of parent. New subsurfaces start synchronized
// and stacked on top of their siblings
func (r *Registry) MakeSubsurface(child, parent *Surface) error {
	if child.destroyed || parent.destroyed {
		return ErrDestroyed
	}
	for cur := parent; cur != nil; cur = cur.parent {
		if cur == child {
			return ErrCyclicTree
		}
	}
	if err := child.SetRole(RoleSubsurface); err != nil {
		return err
	}
	if child.parent != nil {
		return fmt.Errorf("surface %d already is a subsurface", child.id)
	}
	child.parent = parent
	child.sync = true
	parent.children = append(parent.children, child)
	return nil
}

// Commit makes the pending state of s current. If s is an effectively synchronized
// subsurface the state is cached until its parent commits. Returns whether state was applied
func (r *Registry) Commit(s *Surface) bool {
	if s.destroyed {
		return false
	}
	if s.IsSync() {
		if s.cached == nil {
			s.cached = &State{}
		}
		s.cached.merge(&s.pending)
		s.pending = State{}
		logrus.WithField("surface", s.id).Debugln("Cached commit of synchronized subsurface")
		return false
	}
	if s.cached == nil {
		s.cached = &State{}
	}
	s.cached.merge(&s.pending)
	s.pending = State{}
	r.apply(s)
	for _, hook := range r.commitHooks {
		hook(s)
	}
	return true
}

// apply moves cached state into current, then applies every synced child that has cached state,
// along with the pending subsurface positions
func (r *Registry) apply(s *Surface) {
	next := s.cached
	s.cached = nil
	if next == nil {
		next = &State{}
	}
	prev := s.current.Buffer

	if next.BufferAttached {
		s.current.Buffer = next.Buffer
		s.current.BufferOffset = next.BufferOffset
		if next.Buffer != nil {
			if next.Buffer.destroyed {
				// Destroyed before the commit reached us, treat it like a null attach
				s.current.Buffer = nil
			} else {
				next.Buffer.owner = s
				s.damage = append(s.damage, generaldata.Rect{Size: next.Buffer.LogicalSize()})
			}
		}
		if prev != nil && prev != s.current.Buffer {
			r.release(prev)
		}
	}
	if s.current.Buffer != nil {
		s.damage = append(s.damage, next.Damage...)
	}
	if next.InputRegion != nil {
		s.current.InputRegion = next.InputRegion
	}
	if next.OpaqueRegion != nil {
		s.current.OpaqueRegion = next.OpaqueRegion
	}
	s.current.FrameCallbacks = append(s.current.FrameCallbacks, next.FrameCallbacks...)
	s.commits++

	for _, c := range s.children {
		if c.pendingPosition != nil {
			c.position = *c.pendingPosition
			c.pendingPosition = nil
		}
		if c.IsSync() && c.cached != nil {
			r.apply(c)
		}
	}
}

func (r *Registry) release(b *Buffer) {
	if b.owner == nil {
		return
	}
	b.owner = nil
	if b.destroyed {
		return
	}
	if r.onRelease != nil {
		r.onRelease(b)
	}
}

// BufferDestroyed is called when the client destroys a buffer. Surfaces showing it
// lose their content, pending attaches of it become null attaches
func (r *Registry) BufferDestroyed(b *Buffer) {
	if b.destroyed {
		return
	}
	b.destroyed = true
	if owner := b.owner; owner != nil {
		if owner.current.Buffer == b {
			owner.current.Buffer = nil
		}
		b.owner = nil
	}
	for _, s := range r.surfaces {
		if s.pending.Buffer == b {
			s.pending.Buffer = nil
		}
		if s.cached != nil && s.cached.Buffer == b {
			s.cached.Buffer = nil
		}
	}
	logrus.WithFields(logrus.Fields{
		"buffer": b.ID,
		"client": b.Client,
	}).Debugln("Buffer destroyed")
}

// Destroy removes s. Subsurfaces of s stay alive but are detached and no longer shown.
// Returns false if s was already destroyed, so destruction happens exactly once
func (r *Registry) Destroy(s *Surface) bool {
	if s.destroyed {
		return false
	}
	s.destroyed = true
	if s.parent != nil {
		s.parent.removeChild(s)
		s.parent = nil
	}
	for _, c := range s.children {
		c.parent = nil
	}
	s.children = nil
	s.below = 0
	if b := s.current.Buffer; b != nil {
		r.release(b)
		s.current.Buffer = nil
	}
	s.pending = State{}
	s.cached = nil
	delete(r.surfaces, s.id)

	logrus.WithFields(logrus.Fields{
		"surface": s.id,
		"client":  s.client,
	}).Debugln("Surface destroyed")
	for _, hook := range r.destroyHooks {
		hook(s)
	}
	return true
}

// DestroyClient destroys every surface of a disconnected client
func (r *Registry) DestroyClient(client generaldata.ClientID) int {
	count := 0
	for _, s := range r.Surfaces() {
		if s.client == client && r.Destroy(s) {
			count++
		}
	}
	return count
}
