//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// wl_output request opcodes.
const (
	outputRelease wire.Opcode = 0 // release()
)

// wl_output event opcodes.
const (
	outputEventGeometry wire.Opcode = 0 // geometry(x, y, physical_width, physical_height, subpixel, make, model, transform)
	outputEventMode     wire.Opcode = 1 // mode(flags: uint, width: int, height: int, refresh: int)
	outputEventDone     wire.Opcode = 2 // done()
	outputEventScale    wire.Opcode = 3 // scale(factor: int)
)

// Mode flag bits.
const (
	outputModeCurrent   uint32 = 1
	outputModePreferred uint32 = 2
)

// Output is the wl_output global and its per-client bindings. Binding
// announces the single physical output's geometry, current mode and scale.
type Output struct {
	id      wire.ObjectID
	globals *Globals
}

// Interface implements Global.
func (*Output) Interface() string { return IfaceOutput }

// Version implements Global.
func (*Output) Version() uint32 { return 3 }

// Bind implements Global.
func (o *Output) Bind(c *Client, id wire.ObjectID, version uint32) error {
	bound := &Output{id: id, globals: o.globals}
	if err := c.AddObject(id, bound); err != nil {
		return err
	}

	info := o.globals.Output
	if err := bound.geometry(c, info); err != nil {
		return err
	}
	if err := bound.mode(c, outputModeCurrent|outputModePreferred, info); err != nil {
		return err
	}
	if err := bound.scale(c, 1); err != nil {
		return err
	}
	return bound.Done(c)
}

func (o *Output) geometry(c *Client, info OutputInfo) error {
	b := wire.NewMessageBuilder()
	b.PutInt32(0).PutInt32(0).
		PutInt32(info.PhysicalMM.X).PutInt32(info.PhysicalMM.Y).
		PutInt32(0). // subpixel unknown
		PutString(info.Make).PutString(info.Model).
		PutInt32(0) // transform normal
	return c.Send(b.Build(o.id, outputEventGeometry))
}

func (o *Output) mode(c *Client, flags uint32, info OutputInfo) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(flags).PutInt32(info.Size.X).PutInt32(info.Size.Y).PutInt32(info.RefreshMHz)
	return c.Send(b.Build(o.id, outputEventMode))
}

func (o *Output) scale(c *Client, factor int32) error {
	b := wire.NewMessageBuilder()
	b.PutInt32(factor)
	return c.Send(b.Build(o.id, outputEventScale))
}

// Done emits wl_output.done, ending an atomic property group.
func (o *Output) Done(c *Client) error {
	return c.Send(wire.NewMessageBuilder().Build(o.id, outputEventDone))
}

// Handle dispatches wl_output requests.
func (o *Output) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case outputRelease:
		return c.RemoveObject(o.id)

	default:
		return protocolErrorf(o.id, DisplayErrorInvalidMethod, "unknown op %d in wl_output", op)
	}
}
