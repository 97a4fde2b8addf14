//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// xdg_popup request opcodes.
const (
	xdgPopupDestroy    wire.Opcode = 0 // destroy()
	xdgPopupGrab       wire.Opcode = 1 // grab(seat: object, serial: uint)
	xdgPopupReposition wire.Opcode = 2 // reposition(positioner: object, token: uint)
)

// xdg_popup event opcodes.
const (
	xdgPopupEventConfigure    wire.Opcode = 0 // configure(x: int, y: int, width: int, height: int)
	xdgPopupEventPopupDone    wire.Opcode = 1 // popup_done()
	xdgPopupEventRepositioned wire.Opcode = 2 // repositioned(token: uint)
)

// XdgPopup is a transient surface positioned relative to a parent
// xdg_surface by an xdg_positioner.
type XdgPopup struct {
	id        wire.ObjectID
	xdg       wire.ObjectID
	parentXdg wire.ObjectID

	Position geom.Point
	Size     geom.Point
}

// XdgSurfaceID returns the popup's own xdg_surface.
func (p *XdgPopup) XdgSurfaceID() wire.ObjectID {
	return p.xdg
}

// Configure emits xdg_popup.configure with the computed geometry and chases
// it with the serial-carrying xdg_surface.configure.
func (p *XdgPopup) Configure(c *Client, pos, size geom.Point) error {
	p.Position = pos
	p.Size = size

	b := wire.NewMessageBuilder()
	b.PutInt32(pos.X).PutInt32(pos.Y).PutInt32(size.X).PutInt32(size.Y)
	if err := c.Send(b.Build(p.id, xdgPopupEventConfigure)); err != nil {
		return err
	}

	xdg, err := Get[*XdgSurface](c, p.xdg)
	if err != nil {
		return err
	}
	return xdg.Configure(c)
}

// repositioned acknowledges a reposition token.
func (p *XdgPopup) repositioned(c *Client, token uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(token)
	return c.Send(b.Build(p.id, xdgPopupEventRepositioned))
}

// Handle dispatches xdg_popup requests.
func (p *XdgPopup) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgPopupDestroy:
		if !p.parentXdg.IsNull() {
			if parent, err := Get[*XdgSurface](c, p.parentXdg); err == nil {
				parent.removePopup(p.id)
			}
		}
		return c.RemoveObject(p.id)

	case xdgPopupGrab:
		if _, err := d.Object(); err != nil { // seat
			return err
		}
		_, err := d.Uint32() // serial
		return err

	case xdgPopupReposition:
		positionerID, err := d.Object()
		if err != nil {
			return err
		}
		token, err := d.Uint32()
		if err != nil {
			return err
		}

		if err := p.repositioned(c, token); err != nil {
			return err
		}

		positioner, err := Get[*XdgPositioner](c, positionerID)
		if err != nil {
			return err
		}
		pos, size := positioner.Finalize()
		return p.Configure(c, pos, size)

	default:
		return protocolErrorf(p.id, DisplayErrorInvalidMethod, "unknown op %d in xdg_popup", op)
	}
}
