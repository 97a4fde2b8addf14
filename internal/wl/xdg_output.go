//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// zxdg_output_manager_v1 request opcodes.
const (
	xdgOutputManagerDestroy      wire.Opcode = 0 // destroy()
	xdgOutputManagerGetXdgOutput wire.Opcode = 1 // get_xdg_output(id: new_id, output: object)
)

// zxdg_output_v1 request opcodes.
const (
	xdgOutputDestroy wire.Opcode = 0 // destroy()
)

// zxdg_output_v1 event opcodes.
const (
	xdgOutputEventLogicalPosition wire.Opcode = 0 // logical_position(x: int, y: int)
	xdgOutputEventLogicalSize     wire.Opcode = 1 // logical_size(width: int, height: int)
	xdgOutputEventDone            wire.Opcode = 2 // done()
)

// XdgOutputManager is the zxdg_output_manager_v1 global.
type XdgOutputManager struct {
	id      wire.ObjectID
	globals *Globals
	version uint32
}

// Interface implements Global.
func (*XdgOutputManager) Interface() string { return IfaceXdgOutputManager }

// Version implements Global.
func (*XdgOutputManager) Version() uint32 { return 3 }

// Bind implements Global.
func (m *XdgOutputManager) Bind(c *Client, id wire.ObjectID, version uint32) error {
	return c.AddObject(id, &XdgOutputManager{id: id, globals: m.globals, version: version})
}

// Handle dispatches zxdg_output_manager_v1 requests.
func (m *XdgOutputManager) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgOutputManagerDestroy:
		return c.RemoveObject(m.id)

	case xdgOutputManagerGetXdgOutput:
		id, err := d.Object()
		if err != nil {
			return err
		}
		outputID, err := d.Object()
		if err != nil {
			return err
		}

		xo := &XdgOutput{id: id}
		if err := c.AddObject(id, xo); err != nil {
			return err
		}

		size := m.globals.Output.Size
		if err := xo.logicalPosition(c, 0, 0); err != nil {
			return err
		}
		if err := xo.logicalSize(c, size.X, size.Y); err != nil {
			return err
		}

		// Since v3 the wl_output.done event closes the property group.
		if m.version < 3 {
			return c.Send(wire.NewMessageBuilder().Build(id, xdgOutputEventDone))
		}
		output, err := Get[*Output](c, outputID)
		if err != nil {
			return err
		}
		return output.Done(c)

	default:
		return protocolErrorf(m.id, DisplayErrorInvalidMethod, "unknown op %d in zxdg_output_manager_v1", op)
	}
}

// XdgOutput reports the logical geometry of a wl_output.
type XdgOutput struct {
	id wire.ObjectID
}

func (xo *XdgOutput) logicalPosition(c *Client, x, y int32) error {
	b := wire.NewMessageBuilder()
	b.PutInt32(x).PutInt32(y)
	return c.Send(b.Build(xo.id, xdgOutputEventLogicalPosition))
}

func (xo *XdgOutput) logicalSize(c *Client, width, height int32) error {
	b := wire.NewMessageBuilder()
	b.PutInt32(width).PutInt32(height)
	return c.Send(b.Build(xo.id, xdgOutputEventLogicalSize))
}

// Handle dispatches zxdg_output_v1 requests.
func (xo *XdgOutput) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgOutputDestroy:
		return c.RemoveObject(xo.id)

	default:
		return protocolErrorf(xo.id, DisplayErrorInvalidMethod, "unknown op %d in zxdg_output_v1", op)
	}
}
