//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_pointer request opcodes.
const (
	pointerSetCursor wire.Opcode = 0 // set_cursor(serial: uint, surface: object, hotspot_x: int, hotspot_y: int)
	pointerRelease   wire.Opcode = 1 // release()
)

// wl_pointer event opcodes.
const (
	pointerEventEnter        wire.Opcode = 0 // enter(serial, surface, surface_x: fixed, surface_y: fixed)
	pointerEventLeave        wire.Opcode = 1 // leave(serial, surface)
	pointerEventMotion       wire.Opcode = 2 // motion(time, surface_x: fixed, surface_y: fixed)
	pointerEventButton       wire.Opcode = 3 // button(serial, time, button, state)
	pointerEventAxis         wire.Opcode = 4 // axis(time, axis, value: fixed)
	pointerEventFrame        wire.Opcode = 5 // frame()
	pointerEventAxisSource   wire.Opcode = 6 // axis_source(axis_source: uint)
	pointerEventAxisStop     wire.Opcode = 7 // axis_stop(time, axis)
	pointerEventAxisDiscrete wire.Opcode = 8 // axis_discrete(axis, discrete: int)
)

// AxisSourceWheel is the only axis source this compositor produces.
const AxisSourceWheel uint32 = 0

// Pointer is a client's wl_pointer. Every logical input event ends with a
// frame event.
type Pointer struct {
	id   wire.ObjectID
	seat wire.ObjectID

	// HideCursor is set when the client asked for a null cursor surface.
	HideCursor bool
}

// Enter emits pointer enter with surface-local coordinates.
func (p *Pointer) Enter(c *Client, serial uint32, surface wire.ObjectID, pos geom.Point) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutObject(surface).
		PutFixed(wire.FixedFromInt(pos.X)).PutFixed(wire.FixedFromInt(pos.Y))
	return c.Send(b.Build(p.id, pointerEventEnter))
}

// Leave emits pointer leave.
func (p *Pointer) Leave(c *Client, serial uint32, surface wire.ObjectID) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutObject(surface)
	return c.Send(b.Build(p.id, pointerEventLeave))
}

// Motion emits pointer motion.
func (p *Pointer) Motion(c *Client, pos geom.Point) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(c.Display().TimeMS()).
		PutFixed(wire.FixedFromInt(pos.X)).PutFixed(wire.FixedFromInt(pos.Y))
	return c.Send(b.Build(p.id, pointerEventMotion))
}

// Button emits a button press or release.
func (p *Pointer) Button(c *Client, serial, button, state uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutUint32(c.Display().TimeMS()).PutUint32(button).PutUint32(state)
	return c.Send(b.Build(p.id, pointerEventButton))
}

// Axis emits continuous scroll.
func (p *Pointer) Axis(c *Client, axis uint32, value float64) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(c.Display().TimeMS()).PutUint32(axis).PutFixed(wire.FixedFromFloat(value))
	return c.Send(b.Build(p.id, pointerEventAxis))
}

// AxisSource emits the source of the current scroll sequence.
func (p *Pointer) AxisSource(c *Client, source uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(source)
	return c.Send(b.Build(p.id, pointerEventAxisSource))
}

// AxisDiscrete emits the discrete step count of the current scroll.
func (p *Pointer) AxisDiscrete(c *Client, axis uint32, discrete int32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(axis).PutInt32(discrete)
	return c.Send(b.Build(p.id, pointerEventAxisDiscrete))
}

// Frame terminates a logical input event group.
func (p *Pointer) Frame(c *Client) error {
	return c.Send(wire.NewMessageBuilder().Build(p.id, pointerEventFrame))
}

// Handle dispatches wl_pointer requests.
func (p *Pointer) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case pointerSetCursor:
		if _, err := d.Uint32(); err != nil { // serial
			return err
		}
		surfaceID, err := d.Object()
		if err != nil {
			return err
		}
		if _, err := d.Int32(); err != nil { // hotspot_x
			return err
		}
		if _, err := d.Int32(); err != nil { // hotspot_y
			return err
		}

		p.HideCursor = surfaceID.IsNull()
		if !surfaceID.IsNull() {
			surface, err := Get[*Surface](c, surfaceID)
			if err != nil {
				return err
			}
			if err := surface.SetRole(RoleCursor); err != nil {
				return err
			}
		}
		return nil

	case pointerRelease:
		return c.RemoveObject(p.id)

	default:
		return protocolErrorf(p.id, DisplayErrorInvalidMethod, "unknown op %d in wl_pointer", op)
	}
}
