//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// wl_compositor request opcodes.
const (
	compositorCreateSurface wire.Opcode = 0 // create_surface(id: new_id<wl_surface>)
	compositorCreateRegion  wire.Opcode = 1 // create_region(id: new_id<wl_region>)
)

// Compositor is the wl_compositor global, the factory for surfaces and
// regions.
type Compositor struct {
	id wire.ObjectID
}

// Interface implements Global.
func (*Compositor) Interface() string { return IfaceCompositor }

// Version implements Global.
func (*Compositor) Version() uint32 { return 4 }

// Bind implements Global.
func (*Compositor) Bind(c *Client, id wire.ObjectID, version uint32) error {
	return c.AddObject(id, &Compositor{id: id})
}

// Handle dispatches wl_compositor requests.
func (comp *Compositor) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case compositorCreateSurface:
		id, err := d.Object()
		if err != nil {
			return err
		}
		return c.AddObject(id, NewSurface(id))

	case compositorCreateRegion:
		id, err := d.Object()
		if err != nil {
			return err
		}
		return c.AddObject(id, &Region{id: id})

	default:
		return protocolErrorf(comp.id, DisplayErrorInvalidMethod, "unknown op %d in wl_compositor", op)
	}
}
