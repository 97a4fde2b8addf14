//go:build linux

package wl

import (
	"time"

	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_display request opcodes.
const (
	displaySync        wire.Opcode = 0 // sync(callback: new_id<wl_callback>)
	displayGetRegistry wire.Opcode = 1 // get_registry(registry: new_id<wl_registry>)
)

// wl_display event opcodes.
const (
	displayEventError    wire.Opcode = 0 // error(object_id: object, code: uint, message: string)
	displayEventDeleteID wire.Opcode = 1 // delete_id(id: uint)
)

// Display is object 1 on every connection. It owns the per-client serial
// counter and the event time base.
type Display struct {
	globals *Globals
	started time.Time
	serial  uint32
}

// NewDisplay creates the wl_display for one client.
func NewDisplay(globals *Globals) *Display {
	return &Display{globals: globals, started: time.Now()}
}

// Serial returns the serial that the next NextSerial call will issue.
func (d *Display) Serial() uint32 {
	return d.serial
}

// NextSerial issues a fresh serial for an outgoing event.
func (d *Display) NextSerial() uint32 {
	ret := d.serial
	d.serial++
	return ret
}

// TimeMS returns the connection-relative event timestamp in milliseconds.
func (d *Display) TimeMS() uint32 {
	return uint32(time.Since(d.started).Milliseconds())
}

// Globals returns the shared global registry.
func (d *Display) Globals() *Globals {
	return d.globals
}

// Error emits wl_display.error.
func (d *Display) Error(c *Client, object wire.ObjectID, code uint32, message string) error {
	b := wire.NewMessageBuilder()
	b.PutObject(object).PutUint32(code).PutString(message)
	return c.Send(b.Build(1, displayEventError))
}

// DeleteID emits wl_display.delete_id, allowing the client to reuse id.
func (d *Display) DeleteID(c *Client, id wire.ObjectID) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(uint32(id))
	return c.Send(b.Build(1, displayEventDeleteID))
}

// Handle dispatches wl_display requests.
func (d *Display) Handle(c *Client, op wire.Opcode, dec *wire.Decoder) error {
	switch op {
	case displaySync:
		id, err := dec.Object()
		if err != nil {
			return err
		}

		cb := &Callback{id: id}
		if err := c.AddObject(id, cb); err != nil {
			return err
		}
		return cb.Done(c, d.serial)

	case displayGetRegistry:
		id, err := dec.Object()
		if err != nil {
			return err
		}

		reg := &Registry{id: id}
		if err := c.AddObject(id, reg); err != nil {
			return err
		}

		for i, g := range d.globals.list {
			if err := reg.Global(c, uint32(i+1), g.Interface(), g.Version()); err != nil {
				return err
			}
		}
		return nil

	default:
		return protocolErrorf(1, DisplayErrorInvalidMethod, "unknown op %d in wl_display", op)
	}
}
