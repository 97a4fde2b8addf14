//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/input"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_keyboard request opcodes.
const (
	keyboardRelease wire.Opcode = 0 // release()
)

// wl_keyboard event opcodes.
const (
	keyboardEventKeymap     wire.Opcode = 0 // keymap(format: uint, fd: fd, size: uint)
	keyboardEventEnter      wire.Opcode = 1 // enter(serial, surface, keys: array)
	keyboardEventLeave      wire.Opcode = 2 // leave(serial, surface)
	keyboardEventKey        wire.Opcode = 3 // key(serial, time, key, state)
	keyboardEventModifiers  wire.Opcode = 4 // modifiers(serial, depressed, latched, locked, group)
	keyboardEventRepeatInfo wire.Opcode = 5 // repeat_info(rate: int, delay: int)
)

// keymapFormatXkbV1 is the only keymap format the protocol defines.
const keymapFormatXkbV1 uint32 = 1

// Keyboard is a client's wl_keyboard. Keys mirrors the delivered pressed
// state per evdev code so repeat-identical events are suppressed.
type Keyboard struct {
	id   wire.ObjectID
	seat wire.ObjectID

	Keys input.PressedState
}

// Keymap hands the client the serialized xkb keymap.
func (k *Keyboard) Keymap(c *Client, fd int, size uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(keymapFormatXkbV1).PutFD(fd).PutUint32(size)
	return c.Send(b.Build(k.id, keyboardEventKeymap))
}

// Enter emits keyboard focus enter. The keys array carries the currently
// pressed keys; this compositor always reports none.
func (k *Keyboard) Enter(c *Client, serial uint32, surface wire.ObjectID) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutObject(surface).PutArray(nil)
	return c.Send(b.Build(k.id, keyboardEventEnter))
}

// Leave emits keyboard focus leave.
func (k *Keyboard) Leave(c *Client, serial uint32, surface wire.ObjectID) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutObject(surface)
	return c.Send(b.Build(k.id, keyboardEventLeave))
}

// Key emits a key press or release.
func (k *Keyboard) Key(c *Client, serial, key, state uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutUint32(c.Display().TimeMS()).PutUint32(key).PutUint32(state)
	return c.Send(b.Build(k.id, keyboardEventKey))
}

// Modifiers emits the xkb modifier state.
func (k *Keyboard) Modifiers(c *Client, serial, depressed, latched, locked, group uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutUint32(depressed).PutUint32(latched).PutUint32(locked).PutUint32(group)
	return c.Send(b.Build(k.id, keyboardEventModifiers))
}

// RepeatInfo announces the key repeat rate and delay.
func (k *Keyboard) RepeatInfo(c *Client, rate, delay int32) error {
	b := wire.NewMessageBuilder()
	b.PutInt32(rate).PutInt32(delay)
	return c.Send(b.Build(k.id, keyboardEventRepeatInfo))
}

// Handle dispatches wl_keyboard requests.
func (k *Keyboard) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case keyboardRelease:
		return c.RemoveObject(k.id)

	default:
		return protocolErrorf(k.id, DisplayErrorInvalidMethod, "unknown op %d in wl_keyboard", op)
	}
}
