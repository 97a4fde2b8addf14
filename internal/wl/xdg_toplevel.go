//go:build linux

package wl

import (
	"slices"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// xdg_toplevel request opcodes.
const (
	xdgToplevelDestroy         wire.Opcode = 0  // destroy()
	xdgToplevelSetParent       wire.Opcode = 1  // set_parent(parent: object)
	xdgToplevelSetTitle        wire.Opcode = 2  // set_title(title: string)
	xdgToplevelSetAppID        wire.Opcode = 3  // set_app_id(app_id: string)
	xdgToplevelShowWindowMenu  wire.Opcode = 4  // show_window_menu(seat, serial, x, y)
	xdgToplevelMove            wire.Opcode = 5  // move(seat: object, serial: uint)
	xdgToplevelResize          wire.Opcode = 6  // resize(seat: object, serial: uint, edges: uint)
	xdgToplevelSetMaxSize      wire.Opcode = 7  // set_max_size(width: int, height: int)
	xdgToplevelSetMinSize      wire.Opcode = 8  // set_min_size(width: int, height: int)
	xdgToplevelSetMaximized    wire.Opcode = 9  // set_maximized()
	xdgToplevelUnsetMaximized  wire.Opcode = 10 // unset_maximized()
	xdgToplevelSetFullscreen   wire.Opcode = 11 // set_fullscreen(output: object)
	xdgToplevelUnsetFullscreen wire.Opcode = 12 // unset_fullscreen()
	xdgToplevelSetMinimized    wire.Opcode = 13 // set_minimized()
)

// xdg_toplevel event opcodes.
const (
	xdgToplevelEventConfigure wire.Opcode = 0 // configure(width: int, height: int, states: array)
	xdgToplevelEventClose     wire.Opcode = 1 // close()
)

// xdg_toplevel state values carried in configure.
const (
	ToplevelStateMaximized  uint32 = 1
	ToplevelStateFullscreen uint32 = 2
	ToplevelStateResizing   uint32 = 3
	ToplevelStateActivated  uint32 = 4
)

// XdgToplevel is a top-level application window. Position and Size are
// assigned by the layout reconciler.
type XdgToplevel struct {
	id  wire.ObjectID
	xdg wire.ObjectID

	Title    string
	AppID    string
	Position geom.Point
	Size     *geom.Point

	states []uint32
}

// ID returns the toplevel's object ID.
func (t *XdgToplevel) ID() wire.ObjectID {
	return t.id
}

// XdgSurfaceID returns the parent xdg_surface.
func (t *XdgToplevel) XdgSurfaceID() wire.ObjectID {
	return t.xdg
}

// AddState inserts a state value if not already present.
func (t *XdgToplevel) AddState(state uint32) {
	if !slices.Contains(t.states, state) {
		t.states = append(t.states, state)
	}
}

// RemoveState drops a state value.
func (t *XdgToplevel) RemoveState(state uint32) {
	t.states = slices.DeleteFunc(t.states, func(s uint32) bool { return s == state })
}

// HasState reports whether a state value is set.
func (t *XdgToplevel) HasState(state uint32) bool {
	return slices.Contains(t.states, state)
}

// Configure emits xdg_toplevel.configure with the current size and states,
// followed by the xdg_surface.configure that carries the serial.
func (t *XdgToplevel) Configure(c *Client) error {
	var size geom.Point
	if t.Size != nil {
		size = *t.Size
	}

	states := make([]byte, 0, len(t.states)*4)
	for _, s := range t.states {
		states = append(states, byte(s), byte(s>>8), byte(s>>16), byte(s>>24))
	}

	b := wire.NewMessageBuilder()
	b.PutInt32(size.X).PutInt32(size.Y).PutArray(states)
	if err := c.Send(b.Build(t.id, xdgToplevelEventConfigure)); err != nil {
		return err
	}

	xdg, err := Get[*XdgSurface](c, t.xdg)
	if err != nil {
		return err
	}
	return xdg.Configure(c)
}

// Close asks the client to close this window.
func (t *XdgToplevel) Close(c *Client) error {
	return c.Send(wire.NewMessageBuilder().Build(t.id, xdgToplevelEventClose))
}

// Handle dispatches xdg_toplevel requests.
func (t *XdgToplevel) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgToplevelDestroy:
		c.PushChange(Change{Kind: ChangeRemoveToplevel, ClientFD: c.FD(), Toplevel: t.id})
		return c.RemoveObject(t.id)

	case xdgToplevelSetParent:
		_, err := d.Object()
		return err

	case xdgToplevelSetTitle:
		title, err := d.String()
		if err != nil {
			return err
		}
		t.Title = title
		return nil

	case xdgToplevelSetAppID:
		appID, err := d.String()
		if err != nil {
			return err
		}
		t.AppID = appID
		return nil

	case xdgToplevelShowWindowMenu:
		for _, read := range []func() error{
			func() error { _, err := d.Object(); return err },
			func() error { _, err := d.Uint32(); return err },
			func() error { _, err := d.Int32(); return err },
			func() error { _, err := d.Int32(); return err },
		} {
			if err := read(); err != nil {
				return err
			}
		}
		return nil

	case xdgToplevelMove:
		seatID, err := d.Object()
		if err != nil {
			return err
		}
		if _, err := d.Uint32(); err != nil { // serial
			return err
		}

		seat, err := Get[*Seat](c, seatID)
		if err != nil {
			return err
		}
		seat.Moving = &MoveGrab{
			Toplevel:        t.id,
			WindowStartPos:  t.Position,
			PointerStartPos: seat.PointerPosition,
		}
		return nil

	case xdgToplevelResize:
		// Arguments are read and ignored: the tiling layout owns window sizes.
		for _, read := range []func() error{
			func() error { _, err := d.Object(); return err },
			func() error { _, err := d.Uint32(); return err },
			func() error { _, err := d.Uint32(); return err },
		} {
			if err := read(); err != nil {
				return err
			}
		}
		return nil

	case xdgToplevelSetMaxSize, xdgToplevelSetMinSize:
		if _, err := d.Int32(); err != nil {
			return err
		}
		_, err := d.Int32()
		return err

	case xdgToplevelSetMaximized, xdgToplevelUnsetMaximized, xdgToplevelSetMinimized:
		return nil

	case xdgToplevelSetFullscreen:
		if _, err := d.Object(); err != nil { // output
			return err
		}
		t.AddState(ToplevelStateFullscreen)
		return t.Configure(c)

	case xdgToplevelUnsetFullscreen:
		t.RemoveState(ToplevelStateFullscreen)
		return t.Configure(c)

	default:
		return protocolErrorf(t.id, DisplayErrorInvalidMethod, "unknown op %d in xdg_toplevel", op)
	}
}
