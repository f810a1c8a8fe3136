// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ipc

import (
	"reflect"
)

// Rect as it travels on the wire
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Resize edges, same bit layout as wlroots.Edges
type Edges uint32

const (
	EdgeNone   Edges = 0
	EdgeTop    Edges = 1
	EdgeBottom Edges = 2
	EdgeLeft   Edges = 4
	EdgeRight  Edges = 8
)

// Drag and drop actions, a bit mask
type DndAction uint32

const (
	DndActionNone DndAction = 0
	DndActionCopy DndAction = 1
	DndActionMove DndAction = 2
	DndActionAsk  DndAction = 4
)

type Positioner struct {
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	AnchorRect Rect  `json:"anchor_rect"`
	Anchor     Edges `json:"anchor"`
	Gravity    Edges `json:"gravity"`
	OffsetX    int   `json:"offset_x"`
	OffsetY    int   `json:"offset_y"`
}

type (
	// Surfaces and buffers

	CreateSurface struct {
		ID uint32 `json:"id"`
	}
	DestroySurface struct {
		Surface uint32 `json:"surface"`
	}
	// A buffer either carries raw pixels (premultiplied ARGB8888, row major) or a solid colour
	CreateBuffer struct {
		ID     uint32 `json:"id"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Scale  int    `json:"scale,omitempty"`
		Color  uint32 `json:"color,omitempty"`
		Pixels []byte `json:"pixels,omitempty"`
	}
	DestroyBuffer struct {
		Buffer uint32 `json:"buffer"`
	}
	// Buffer 0 detaches
	Attach struct {
		Surface uint32 `json:"surface"`
		Buffer  uint32 `json:"buffer"`
		X       int    `json:"x"`
		Y       int    `json:"y"`
	}
	Damage struct {
		Surface uint32 `json:"surface"`
		Rect    Rect   `json:"rect"`
	}
	// An empty Rects list with Infinite set resets the region
	SetInputRegion struct {
		Surface  uint32 `json:"surface"`
		Rects    []Rect `json:"rects"`
		Infinite bool   `json:"infinite"`
	}
	SetOpaqueRegion struct {
		Surface uint32 `json:"surface"`
		Rects   []Rect `json:"rects"`
	}
	Frame struct {
		Surface  uint32 `json:"surface"`
		Callback uint32 `json:"callback"`
	}
	Commit struct {
		Surface uint32 `json:"surface"`
	}

	// Subsurfaces, addressed by the child surface id

	GetSubsurface struct {
		Surface uint32 `json:"surface"`
		Parent  uint32 `json:"parent"`
	}
	SubsurfaceSetSync struct {
		Surface uint32 `json:"surface"`
		Sync    bool   `json:"sync"`
	}
	SubsurfaceSetPosition struct {
		Surface uint32 `json:"surface"`
		X       int    `json:"x"`
		Y       int    `json:"y"`
	}
	SubsurfacePlaceAbove struct {
		Surface uint32 `json:"surface"`
		Sibling uint32 `json:"sibling"`
	}
	SubsurfacePlaceBelow struct {
		Surface uint32 `json:"surface"`
		Sibling uint32 `json:"sibling"`
	}

	// Toplevels, addressed by their surface id

	GetToplevel struct {
		Surface uint32 `json:"surface"`
	}
	DestroyToplevel struct {
		Surface uint32 `json:"surface"`
	}
	SetTitle struct {
		Surface uint32 `json:"surface"`
		Title   string `json:"title"`
	}
	SetAppID struct {
		Surface uint32 `json:"surface"`
		AppID   string `json:"app_id"`
	}
	// Parent 0 clears the parent
	SetParent struct {
		Surface uint32 `json:"surface"`
		Parent  uint32 `json:"parent"`
	}
	SetWindowGeometry struct {
		Surface uint32 `json:"surface"`
		Rect    Rect   `json:"rect"`
	}
	SetMinSize struct {
		Surface uint32 `json:"surface"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
	}
	SetMaxSize struct {
		Surface uint32 `json:"surface"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
	}
	Move struct {
		Surface uint32 `json:"surface"`
		Serial  uint32 `json:"serial"`
	}
	Resize struct {
		Surface uint32 `json:"surface"`
		Serial  uint32 `json:"serial"`
		Edges   Edges  `json:"edges"`
	}
	SetMaximized struct {
		Surface   uint32 `json:"surface"`
		Maximized bool   `json:"maximized"`
	}
	SetFullscreen struct {
		Surface    uint32 `json:"surface"`
		Fullscreen bool   `json:"fullscreen"`
		Output     string `json:"output,omitempty"`
	}
	SetMinimized struct {
		Surface uint32 `json:"surface"`
	}
	ShowWindowMenu struct {
		Surface uint32 `json:"surface"`
		Serial  uint32 `json:"serial"`
		X       int    `json:"x"`
		Y       int    `json:"y"`
	}
	// Used for toplevels and popups alike
	AckConfigure struct {
		Surface uint32 `json:"surface"`
		Serial  uint32 `json:"serial"`
	}

	// Popups, addressed by their surface id

	GetPopup struct {
		Surface    uint32     `json:"surface"`
		Parent     uint32     `json:"parent"`
		Positioner Positioner `json:"positioner"`
	}
	DestroyPopup struct {
		Surface uint32 `json:"surface"`
	}
	PopupGrab struct {
		Surface uint32 `json:"surface"`
		Serial  uint32 `json:"serial"`
	}
	PopupReposition struct {
		Surface    uint32     `json:"surface"`
		Positioner Positioner `json:"positioner"`
		Token      uint32     `json:"token"`
	}

	// Data device

	CreateDataSource struct {
		ID uint32 `json:"id"`
	}
	DataSourceOffer struct {
		Source   uint32 `json:"source"`
		MimeType string `json:"mime_type"`
	}
	DataSourceSetActions struct {
		Source  uint32    `json:"source"`
		Actions DndAction `json:"actions"`
	}
	DestroyDataSource struct {
		Source uint32 `json:"source"`
	}
	// Source 0 clears the selection
	SetSelection struct {
		Source uint32 `json:"source"`
		Serial uint32 `json:"serial"`
	}
	// Source 0 starts a drag that stays inside the client. Icon 0 means no icon
	StartDrag struct {
		Source uint32 `json:"source"`
		Origin uint32 `json:"origin"`
		Icon   uint32 `json:"icon"`
		Serial uint32 `json:"serial"`
	}
	// MimeType "" rejects the offer
	DataOfferAccept struct {
		Serial   uint32 `json:"serial"`
		MimeType string `json:"mime_type"`
	}
	DataOfferSetActions struct {
		Actions   DndAction `json:"actions"`
		Preferred DndAction `json:"preferred"`
	}
	DataOfferFinish struct{}
)

func (CreateSurface) RequestName() string         { return "surface.create" }
func (DestroySurface) RequestName() string        { return "surface.destroy" }
func (CreateBuffer) RequestName() string          { return "buffer.create" }
func (DestroyBuffer) RequestName() string         { return "buffer.destroy" }
func (Attach) RequestName() string                { return "surface.attach" }
func (Damage) RequestName() string                { return "surface.damage" }
func (SetInputRegion) RequestName() string        { return "surface.set_input_region" }
func (SetOpaqueRegion) RequestName() string       { return "surface.set_opaque_region" }
func (Frame) RequestName() string                 { return "surface.frame" }
func (Commit) RequestName() string                { return "surface.commit" }
func (GetSubsurface) RequestName() string         { return "subsurface.get" }
func (SubsurfaceSetSync) RequestName() string     { return "subsurface.set_sync" }
func (SubsurfaceSetPosition) RequestName() string { return "subsurface.set_position" }
func (SubsurfacePlaceAbove) RequestName() string  { return "subsurface.place_above" }
func (SubsurfacePlaceBelow) RequestName() string  { return "subsurface.place_below" }
func (GetToplevel) RequestName() string           { return "toplevel.get" }
func (DestroyToplevel) RequestName() string       { return "toplevel.destroy" }
func (SetTitle) RequestName() string              { return "toplevel.set_title" }
func (SetAppID) RequestName() string              { return "toplevel.set_app_id" }
func (SetParent) RequestName() string             { return "toplevel.set_parent" }
func (SetWindowGeometry) RequestName() string     { return "toplevel.set_window_geometry" }
func (SetMinSize) RequestName() string            { return "toplevel.set_min_size" }
func (SetMaxSize) RequestName() string            { return "toplevel.set_max_size" }
func (Move) RequestName() string                  { return "toplevel.move" }
func (Resize) RequestName() string                { return "toplevel.resize" }
func (SetMaximized) RequestName() string          { return "toplevel.set_maximized" }
func (SetFullscreen) RequestName() string         { return "toplevel.set_fullscreen" }
func (SetMinimized) RequestName() string          { return "toplevel.set_minimized" }
func (ShowWindowMenu) RequestName() string        { return "toplevel.show_window_menu" }
func (AckConfigure) RequestName() string          { return "xdg.ack_configure" }
func (GetPopup) RequestName() string              { return "popup.get" }
func (DestroyPopup) RequestName() string          { return "popup.destroy" }
func (PopupGrab) RequestName() string             { return "popup.grab" }
func (PopupReposition) RequestName() string       { return "popup.reposition" }
func (CreateDataSource) RequestName() string      { return "data_source.create" }
func (DataSourceOffer) RequestName() string       { return "data_source.offer" }
func (DataSourceSetActions) RequestName() string  { return "data_source.set_actions" }
func (DestroyDataSource) RequestName() string     { return "data_source.destroy" }
func (SetSelection) RequestName() string          { return "data_device.set_selection" }
func (StartDrag) RequestName() string             { return "data_device.start_drag" }
func (DataOfferAccept) RequestName() string       { return "data_offer.accept" }
func (DataOfferSetActions) RequestName() string   { return "data_offer.set_actions" }
func (DataOfferFinish) RequestName() string       { return "data_offer.finish" }

func init() {
	for _, factory := range []func() Request{
		func() Request { return &OutputRequest{} },
		func() Request { return &CreateSurface{} },
		func() Request { return &DestroySurface{} },
		func() Request { return &CreateBuffer{} },
		func() Request { return &DestroyBuffer{} },
		func() Request { return &Attach{} },
		func() Request { return &Damage{} },
		func() Request { return &SetInputRegion{} },
		func() Request { return &SetOpaqueRegion{} },
		func() Request { return &Frame{} },
		func() Request { return &Commit{} },
		func() Request { return &GetSubsurface{} },
		func() Request { return &SubsurfaceSetSync{} },
		func() Request { return &SubsurfaceSetPosition{} },
		func() Request { return &SubsurfacePlaceAbove{} },
		func() Request { return &SubsurfacePlaceBelow{} },
		func() Request { return &GetToplevel{} },
		func() Request { return &DestroyToplevel{} },
		func() Request { return &SetTitle{} },
		func() Request { return &SetAppID{} },
		func() Request { return &SetParent{} },
		func() Request { return &SetWindowGeometry{} },
		func() Request { return &SetMinSize{} },
		func() Request { return &SetMaxSize{} },
		func() Request { return &Move{} },
		func() Request { return &Resize{} },
		func() Request { return &SetMaximized{} },
		func() Request { return &SetFullscreen{} },
		func() Request { return &SetMinimized{} },
		func() Request { return &ShowWindowMenu{} },
		func() Request { return &AckConfigure{} },
		func() Request { return &GetPopup{} },
		func() Request { return &DestroyPopup{} },
		func() Request { return &PopupGrab{} },
		func() Request { return &PopupReposition{} },
		func() Request { return &CreateDataSource{} },
		func() Request { return &DataSourceOffer{} },
		func() Request { return &DataSourceSetActions{} },
		func() Request { return &DestroyDataSource{} },
		func() Request { return &SetSelection{} },
		func() Request { return &StartDrag{} },
		func() Request { return &DataOfferAccept{} },
		func() Request { return &DataOfferSetActions{} },
		func() Request { return &DataOfferFinish{} },
	} {
		registerRequest(factory)
	}
}

func deref(req Request) Request {
	v := reflect.ValueOf(req)
	if v.Kind() != reflect.Pointer {
		return req
	}
	return v.Elem().Interface().(Request)
}
