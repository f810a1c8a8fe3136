// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package surface

import (
	"errors"
	"fmt"

	generaldata "github.com/mstarongithub/twm/general-data"
)

type ID uint32

type Role string

const (
	RoleNone       = Role("")
	RoleToplevel   = Role("xdg_toplevel")
	RolePopup      = Role("xdg_popup")
	RoleSubsurface = Role("subsurface")
	RoleDndIcon    = Role("dnd_icon")
)

var (
	ErrRoleTaken  = errors.New("surface already has a different role")
	ErrDestroyed  = errors.New("surface has been destroyed")
	ErrCyclicTree = errors.New("subsurface parent would create a cycle")
)

// Region is a union of rectangles in surface local coordinates
type Region []generaldata.Rect

func (r Region) Contains(p generaldata.Point) bool {
	for _, rect := range r {
		if rect.Contains(p) {
			return true
		}
	}
	return false
}

// State is one generation of double buffered surface state
type State struct {
	Buffer *Buffer
	// Set when the client attached something (possibly nil) since the last commit
	BufferAttached bool
	BufferOffset   generaldata.Vector2i
	Damage         []generaldata.Rect
	// nil means the whole surface accepts input
	InputRegion    *Region
	OpaqueRegion   *Region
	FrameCallbacks []uint32
}

// merge folds newer pending state on top of s. Used both for applying and for caching synced subsurfaces
func (s *State) merge(newer *State) {
	if newer.BufferAttached {
		s.Buffer = newer.Buffer
		s.BufferAttached = true
		s.BufferOffset = newer.BufferOffset
	}
	s.Damage = append(s.Damage, newer.Damage...)
	if newer.InputRegion != nil {
		s.InputRegion = newer.InputRegion
	}
	if newer.OpaqueRegion != nil {
		s.OpaqueRegion = newer.OpaqueRegion
	}
	s.FrameCallbacks = append(s.FrameCallbacks, newer.FrameCallbacks...)
}

// Surface is a client owned rectangle of content with double buffered state.
// Everything in here is only touched from the control loop
type Surface struct {
	id       ID
	objectID uint32
	client   generaldata.ClientID
	registry *Registry
	role     Role

	pending State
	// Non nil while a synchronized subsurface holds committed state that waits for its parent
	cached  *State
	current State

	parent *Surface
	// Children in stacking order, bottom first. The first below of them are stacked under the surface itself
	children []*Surface
	below    int
	position generaldata.Vector2i
	// Position changes are applied when the parent commits
	pendingPosition *generaldata.Vector2i
	sync            bool

	// Surface local damage collected since the last frame
	damage    []generaldata.Rect
	destroyed bool
	commits   int
}

func (s *Surface) ID() ID {
	return s.id
}

// ObjectID is the client side id of the surface, used when addressing events to the client
func (s *Surface) ObjectID() uint32 {
	return s.objectID
}

func (s *Surface) Client() generaldata.ClientID {
	return s.client
}

func (s *Surface) Role() Role {
	return s.role
}

// SetRole gives the surface a role. A surface keeps the first role it is given
// and may only be assigned that same role again
func (s *Surface) SetRole(role Role) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if s.role != RoleNone && s.role != role {
		return fmt.Errorf("%w: has %s, wants %s", ErrRoleTaken, s.role, role)
	}
	s.role = role
	return nil
}

func (s *Surface) Destroyed() bool {
	return s.destroyed
}

// Alive is the inverse of Destroyed. Reads nicer in filters
func (s *Surface) Alive() bool {
	return !s.destroyed
}

// Attach sets the pending buffer. A nil buffer detaches on the next commit
func (s *Surface) Attach(buf *Buffer, offset generaldata.Vector2i) {
	s.pending.Buffer = buf
	s.pending.BufferAttached = true
	s.pending.BufferOffset = offset
}

func (s *Surface) Damage(r generaldata.Rect) {
	s.pending.Damage = append(s.pending.Damage, r)
}

// SetInputRegion replaces the pending input region. nil resets it to "everything"
func (s *Surface) SetInputRegion(r *Region) {
	if r == nil {
		r = &Region{generaldata.NewRect(-1<<30, -1<<30, 1<<31, 1<<31)}
	}
	s.pending.InputRegion = r
}

func (s *Surface) SetOpaqueRegion(r *Region) {
	if r == nil {
		r = &Region{}
	}
	s.pending.OpaqueRegion = r
}

// Frame registers a callback that fires with the next frame done this surface takes part in
func (s *Surface) Frame(callback uint32) {
	s.pending.FrameCallbacks = append(s.pending.FrameCallbacks, callback)
}

// Current returns a copy of the applied state
func (s *Surface) Current() State {
	return s.current
}

// Buffer returns the buffer that is currently on screen, if any
func (s *Surface) Buffer() *Buffer {
	return s.current.Buffer
}

// HasContent reports whether the surface would draw anything
func (s *Surface) HasContent() bool {
	return !s.destroyed && s.current.Buffer != nil && !s.current.Buffer.Destroyed()
}

// Size is the logical size of the current buffer, zero without one
func (s *Surface) Size() generaldata.Vector2i {
	if !s.HasContent() {
		return generaldata.Vector2i{}
	}
	return s.current.Buffer.LogicalSize()
}

// Commits counts the applied commits. Mostly useful for tests and inspection
func (s *Surface) Commits() int {
	return s.commits
}

func (s *Surface) Parent() *Surface {
	return s.parent
}

// Root walks up the subsurface tree
func (s *Surface) Root() *Surface {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Children returns the subsurfaces in stacking order, bottom first
func (s *Surface) Children() []*Surface {
	return append([]*Surface(nil), s.children...)
}

// ChildrenBelow returns the subsurfaces stacked under s, bottom first
func (s *Surface) ChildrenBelow() []*Surface {
	return append([]*Surface(nil), s.children[:s.below]...)
}

// removeChild unlinks child from the stacking order
func (s *Surface) removeChild(child *Surface) {
	for i, c := range s.children {
		if c == child {
			if i < s.below {
				s.below--
			}
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

func (s *Surface) insertChild(idx int, child *Surface, below bool) {
	s.children = append(s.children[:idx], append([]*Surface{child}, s.children[idx:]...)...)
	if below {
		s.below++
	}
}

// Position of a subsurface relative to its parent
func (s *Surface) Position() generaldata.Vector2i {
	return s.position
}

// SetPosition queues a new subsurface position. It takes effect when the parent commits
func (s *Surface) SetPosition(p generaldata.Vector2i) {
	s.pendingPosition = &p
}

// SetSync switches the subsurface between synchronized and desynchronized mode.
// Switching to desync applies cached state right away, like a commit would
func (s *Surface) SetSync(sync bool) {
	if s.sync == sync {
		return
	}
	s.sync = sync
	if !sync && !s.IsSync() && s.cached != nil {
		s.registry.apply(s)
	}
}

// IsSync reports whether the surface is an effectively synchronized subsurface:
// it is set to sync itself or one of its ancestors is
func (s *Surface) IsSync() bool {
	for cur := s; cur != nil && cur.parent != nil; cur = cur.parent {
		if cur.sync {
			return true
		}
	}
	return false
}

// PlaceAbove restacks a subsurface directly above sibling. The sibling may also be the parent,
// which puts s right above the parent, under every other child stacked above it
func (s *Surface) PlaceAbove(sibling *Surface) error {
	return s.restack(sibling, true)
}

// PlaceBelow restacks a subsurface directly below sibling. Below the parent means under the parent itself
func (s *Surface) PlaceBelow(sibling *Surface) error {
	return s.restack(sibling, false)
}

func (s *Surface) restack(sibling *Surface, above bool) error {
	parent := s.parent
	if parent == nil {
		return fmt.Errorf("surface %d is not a subsurface", s.id)
	}
	if sibling == s {
		return fmt.Errorf("surface %d can't be stacked relative to itself", s.id)
	}
	if sibling != parent && sibling.parent != parent {
		return fmt.Errorf("surface %d is not a sibling of %d", sibling.id, s.id)
	}
	parent.removeChild(s)
	if sibling == parent {
		// The parent sits between children[:below] and children[below:]
		parent.insertChild(parent.below, s, !above)
		return nil
	}
	for i, c := range parent.children {
		if c == sibling {
			idx := i
			if above {
				idx++
			}
			parent.insertChild(idx, s, i < parent.below)
			return nil
		}
	}
	return nil
}

// PendingDamage returns the damage collected since the last TakeDamage, without clearing it
func (s *Surface) PendingDamage() []generaldata.Rect {
	return s.damage
}

// TakeDamage returns and clears the damage collected since the last call
func (s *Surface) TakeDamage() []generaldata.Rect {
	d := s.damage
	s.damage = nil
	return d
}

// TakeFrameCallbacks returns and clears the callbacks of the current state
func (s *Surface) TakeFrameCallbacks() []uint32 {
	cbs := s.current.FrameCallbacks
	s.current.FrameCallbacks = nil
	return cbs
}

// Tree calls fn for s and every subsurface of it, bottom to top, with the offset
// of each surface relative to s. Stops early if fn returns false
func (s *Surface) Tree(fn func(surf *Surface, offset generaldata.Vector2i) bool) bool {
	return s.walk(generaldata.Vector2i{}, fn)
}

func (s *Surface) walk(offset generaldata.Vector2i, fn func(*Surface, generaldata.Vector2i) bool) bool {
	for i, c := range s.children {
		if i == s.below && !fn(s, offset) {
			return false
		}
		if !c.walk(offset.Add(c.position), fn) {
			return false
		}
	}
	if s.below == len(s.children) {
		return fn(s, offset)
	}
	return true
}

// Bbox is the area covered by s and its subsurfaces, relative to s
func (s *Surface) Bbox() generaldata.Rect {
	var box generaldata.Rect
	s.Tree(func(surf *Surface, offset generaldata.Vector2i) bool {
		if surf.HasContent() {
			box = box.Merge(generaldata.Rect{Loc: offset, Size: surf.Size()})
		}
		return true
	})
	return box
}

// Under finds the topmost surface in the tree whose input region contains p.
// p and the returned offset are relative to s
func (s *Surface) Under(p generaldata.Point) (*Surface, generaldata.Vector2i, bool) {
	for i := len(s.children) - 1; i >= 0; i-- {
		if i == s.below-1 && s.acceptsInput(p) {
			return s, generaldata.Vector2i{}, true
		}
		c := s.children[i]
		if found, off, ok := c.Under(p.Sub(c.position.ToPoint())); ok {
			return found, off.Add(c.position), true
		}
	}
	if s.below == 0 && s.acceptsInput(p) {
		return s, generaldata.Vector2i{}, true
	}
	return nil, generaldata.Vector2i{}, false
}

func (s *Surface) acceptsInput(p generaldata.Point) bool {
	if !s.HasContent() {
		return false
	}
	size := s.Size()
	if !(generaldata.Rect{Size: size}).Contains(p) {
		return false
	}
	if s.current.InputRegion == nil {
		return true
	}
	return s.current.InputRegion.Contains(p)
}
