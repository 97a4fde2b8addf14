//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// xdg_wm_base request opcodes.
const (
	xdgWmBaseDestroy          wire.Opcode = 0 // destroy()
	xdgWmBaseCreatePositioner wire.Opcode = 1 // create_positioner(id: new_id<xdg_positioner>)
	xdgWmBaseGetXdgSurface    wire.Opcode = 2 // get_xdg_surface(id: new_id<xdg_surface>, surface: object<wl_surface>)
	xdgWmBasePong             wire.Opcode = 3 // pong(serial: uint)
)

// xdg_wm_base event opcodes.
const (
	xdgWmBaseEventPing wire.Opcode = 0 // ping(serial: uint)
)

// XdgWmBase is the xdg_wm_base global, the entry point to the xdg-shell.
type XdgWmBase struct {
	id wire.ObjectID
}

// Interface implements Global.
func (*XdgWmBase) Interface() string { return IfaceXdgWmBase }

// Version implements Global.
func (*XdgWmBase) Version() uint32 { return 6 }

// Bind implements Global.
func (*XdgWmBase) Bind(c *Client, id wire.ObjectID, version uint32) error {
	return c.AddObject(id, &XdgWmBase{id: id})
}

// Ping asks the client to prove responsiveness.
func (x *XdgWmBase) Ping(c *Client, serial uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial)
	return c.Send(b.Build(x.id, xdgWmBaseEventPing))
}

// Handle dispatches xdg_wm_base requests.
func (x *XdgWmBase) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgWmBaseDestroy:
		return c.RemoveObject(x.id)

	case xdgWmBaseCreatePositioner:
		id, err := d.Object()
		if err != nil {
			return err
		}
		return c.AddObject(id, &XdgPositioner{id: id})

	case xdgWmBaseGetXdgSurface:
		id, err := d.Object()
		if err != nil {
			return err
		}
		surfaceID, err := d.Object()
		if err != nil {
			return err
		}
		if _, err := Get[*Surface](c, surfaceID); err != nil {
			return err
		}
		return c.AddObject(id, &XdgSurface{id: id, surface: surfaceID})

	case xdgWmBasePong:
		_, err := d.Uint32()
		return err

	default:
		return protocolErrorf(x.id, DisplayErrorInvalidMethod, "unknown op %d in xdg_wm_base", op)
	}
}
