//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_seat capability bits.
const (
	SeatCapabilityPointer  uint32 = 1
	SeatCapabilityKeyboard uint32 = 2
)

// wl_seat request opcodes.
const (
	seatGetPointer  wire.Opcode = 0 // get_pointer(id: new_id<wl_pointer>)
	seatGetKeyboard wire.Opcode = 1 // get_keyboard(id: new_id<wl_keyboard>)
	seatGetTouch    wire.Opcode = 2 // get_touch(id: new_id<wl_touch>)
	seatRelease     wire.Opcode = 3 // release()
)

// wl_seat event opcodes.
const (
	seatEventCapabilities wire.Opcode = 0 // capabilities(capabilities: uint)
	seatEventName         wire.Opcode = 1 // name(name: string)
)

// Keyboard repeat parameters announced to every new wl_keyboard.
const (
	keyRepeatRate  int32 = 33
	keyRepeatDelay int32 = 500
)

// MoveGrab records an interactive xdg_toplevel.move in progress: the grabbed
// toplevel follows the pointer until the button is released.
type MoveGrab struct {
	Toplevel        wire.ObjectID
	WindowStartPos  geom.Point
	PointerStartPos geom.Point
}

// Seat is the wl_seat global and its per-client bindings.
type Seat struct {
	id      wire.ObjectID
	globals *Globals

	// PointerPosition mirrors the global cursor for move grabs.
	PointerPosition geom.Point

	// Moving is non-nil while an interactive move grab is active.
	Moving *MoveGrab
}

// Interface implements Global.
func (*Seat) Interface() string { return IfaceSeat }

// Version implements Global.
func (*Seat) Version() uint32 { return 7 }

// Bind implements Global.
func (s *Seat) Bind(c *Client, id wire.ObjectID, version uint32) error {
	bound := &Seat{id: id, globals: s.globals}
	if err := c.AddObject(id, bound); err != nil {
		return err
	}
	return bound.capabilities(c, SeatCapabilityPointer|SeatCapabilityKeyboard)
}

func (s *Seat) capabilities(c *Client, caps uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(caps)
	return c.Send(b.Build(s.id, seatEventCapabilities))
}

// ID returns the seat's object ID.
func (s *Seat) ID() wire.ObjectID {
	return s.id
}

// Handle dispatches wl_seat requests.
func (s *Seat) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case seatGetPointer:
		id, err := d.Object()
		if err != nil {
			return err
		}
		return c.AddObject(id, &Pointer{id: id, seat: s.id})

	case seatGetKeyboard:
		id, err := d.Object()
		if err != nil {
			return err
		}

		kb := &Keyboard{id: id, seat: s.id}
		if err := c.AddObject(id, kb); err != nil {
			return err
		}

		keymap := s.globals.Keymap
		if keymap.FD >= 0 {
			if err := kb.Keymap(c, keymap.FD, uint32(keymap.Size)); err != nil {
				return err
			}
		}
		return kb.RepeatInfo(c, keyRepeatRate, keyRepeatDelay)

	case seatGetTouch:
		// Touch is out of scope; the object would never emit events, so the
		// capability is not advertised and the request is a client error.
		id, err := d.Object()
		if err != nil {
			return err
		}
		return protocolErrorf(id, DisplayErrorInvalidMethod, "seat has no touch capability")

	case seatRelease:
		return c.RemoveObject(s.id)

	default:
		return protocolErrorf(s.id, DisplayErrorInvalidMethod, "unknown op %d in wl_seat", op)
	}
}
