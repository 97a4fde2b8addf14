//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// wl_callback event opcodes.
const (
	callbackEventDone wire.Opcode = 0 // done(callback_data: uint)
)

// Callback is a one-shot completion object: it fires done once and is
// deleted immediately after.
type Callback struct {
	id wire.ObjectID
}

// Done emits wl_callback.done and retires the object.
func (cb *Callback) Done(c *Client, data uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(data)
	if err := c.Send(b.Build(cb.id, callbackEventDone)); err != nil {
		return err
	}
	return c.RemoveObject(cb.id)
}

// Handle rejects all requests; wl_callback has none.
func (cb *Callback) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	return protocolErrorf(cb.id, DisplayErrorInvalidMethod, "unknown op %d in wl_callback", op)
}
