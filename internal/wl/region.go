//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_region request opcodes.
const (
	regionDestroy  wire.Opcode = 0 // destroy()
	regionAdd      wire.Opcode = 1 // add(x: int, y: int, width: int, height: int)
	regionSubtract wire.Opcode = 2 // subtract(x: int, y: int, width: int, height: int)
)

// Region is a client-built set of rectangles, consumed by
// wl_surface.set_input_region. Subtract is accepted and ignored; the hit
// test only needs additive regions for the hosted clients.
type Region struct {
	id    wire.ObjectID
	areas []geom.Rect
}

// Handle dispatches wl_region requests.
func (r *Region) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case regionDestroy:
		return c.RemoveObject(r.id)

	case regionAdd:
		x, err := d.Int32()
		if err != nil {
			return err
		}
		y, err := d.Int32()
		if err != nil {
			return err
		}
		w, err := d.Int32()
		if err != nil {
			return err
		}
		h, err := d.Int32()
		if err != nil {
			return err
		}
		r.areas = append(r.areas, geom.Rct(x, y, w, h))
		return nil

	case regionSubtract:
		for i := 0; i < 4; i++ {
			if _, err := d.Int32(); err != nil {
				return err
			}
		}
		return nil

	default:
		return protocolErrorf(r.id, DisplayErrorInvalidMethod, "unknown op %d in wl_region", op)
	}
}
