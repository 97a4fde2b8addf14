//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// xdg_surface request opcodes.
const (
	xdgSurfaceDestroy           wire.Opcode = 0 // destroy()
	xdgSurfaceGetToplevel       wire.Opcode = 1 // get_toplevel(id: new_id<xdg_toplevel>)
	xdgSurfaceGetPopup          wire.Opcode = 2 // get_popup(id: new_id<xdg_popup>, parent: object, positioner: object)
	xdgSurfaceSetWindowGeometry wire.Opcode = 3 // set_window_geometry(x: int, y: int, width: int, height: int)
	xdgSurfaceAckConfigure      wire.Opcode = 4 // ack_configure(serial: uint)
)

// xdg_surface event opcodes.
const (
	xdgSurfaceEventConfigure wire.Opcode = 0 // configure(serial: uint)
)

// XdgSurface adapts a wl_surface into the xdg-shell. The window geometry
// offset shifts where the toplevel content sits relative to its frame.
type XdgSurface struct {
	id      wire.ObjectID
	surface wire.ObjectID

	// Position is the window-geometry offset set by the client.
	Position geom.Point

	popups []wire.ObjectID

	// lastSerial and ackedSerial track the configure handshake. Commits are
	// not gated on the ack; the serials are recorded for diagnostics.
	lastSerial  uint32
	ackedSerial uint32
}

// SurfaceID returns the underlying wl_surface.
func (x *XdgSurface) SurfaceID() wire.ObjectID {
	return x.surface
}

// Popups returns the live popup children.
func (x *XdgSurface) Popups() []wire.ObjectID {
	return x.popups
}

// Configure emits xdg_surface.configure with a fresh serial.
func (x *XdgSurface) Configure(c *Client) error {
	x.lastSerial = c.Display().NextSerial()

	b := wire.NewMessageBuilder()
	b.PutUint32(x.lastSerial)
	return c.Send(b.Build(x.id, xdgSurfaceEventConfigure))
}

// Handle dispatches xdg_surface requests.
func (x *XdgSurface) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgSurfaceDestroy:
		return c.RemoveObject(x.id)

	case xdgSurfaceGetToplevel:
		id, err := d.Object()
		if err != nil {
			return err
		}

		surface, err := Get[*Surface](c, x.surface)
		if err != nil {
			return err
		}
		if err := surface.SetRole(RoleToplevel); err != nil {
			return err
		}

		toplevel := &XdgToplevel{
			id:       id,
			xdg:      x.id,
			Position: c.StartPosition,
		}
		if err := c.AddObject(id, toplevel); err != nil {
			return err
		}

		c.PushChange(Change{Kind: ChangePush, ClientFD: c.FD(), Toplevel: id})
		return nil

	case xdgSurfaceGetPopup:
		id, err := d.Object()
		if err != nil {
			return err
		}
		parentID, err := d.Object()
		if err != nil {
			return err
		}
		positionerID, err := d.Object()
		if err != nil {
			return err
		}

		surface, err := Get[*Surface](c, x.surface)
		if err != nil {
			return err
		}
		if err := surface.SetRole(RolePopup); err != nil {
			return err
		}

		popup := &XdgPopup{id: id, xdg: x.id, parentXdg: parentID}
		if err := c.AddObject(id, popup); err != nil {
			return err
		}

		var pos, size geom.Point
		if positioner, err := Get[*XdgPositioner](c, positionerID); err == nil {
			pos, size = positioner.Finalize()
		}

		if !parentID.IsNull() {
			parent, err := Get[*XdgSurface](c, parentID)
			if err != nil {
				return err
			}
			parent.popups = append(parent.popups, id)
		}

		return popup.Configure(c, pos, size)

	case xdgSurfaceSetWindowGeometry:
		x1, err := d.Int32()
		if err != nil {
			return err
		}
		y1, err := d.Int32()
		if err != nil {
			return err
		}
		if _, err := d.Int32(); err != nil { // width
			return err
		}
		if _, err := d.Int32(); err != nil { // height
			return err
		}
		x.Position = geom.Pt(x1, y1)
		return nil

	case xdgSurfaceAckConfigure:
		serial, err := d.Uint32()
		if err != nil {
			return err
		}
		x.ackedSerial = serial
		return nil

	default:
		return protocolErrorf(x.id, DisplayErrorInvalidMethod, "unknown op %d in xdg_surface", op)
	}
}

// removePopup drops a destroyed popup from the child list.
func (x *XdgSurface) removePopup(id wire.ObjectID) {
	for i, popup := range x.popups {
		if popup == id {
			x.popups = append(x.popups[:i], x.popups[i+1:]...)
			return
		}
	}
}
