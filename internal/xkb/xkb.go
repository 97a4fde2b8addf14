//go:build linux && cgo

// Package xkb wraps libxkbcommon: it compiles the configured RMLVO layout,
// serializes the keymap into a memfd for wl_keyboard.keymap, and tracks the
// modifier state fed by raw evdev codes.
package xkb

/*
#cgo pkg-config: xkbcommon
#include <stdlib.h>
#include <string.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// evdevOffset converts evdev codes to xkb keycodes.
const evdevOffset = 8

// State owns the xkb context, keymap and state plus the serialized keymap
// file shared with clients.
type State struct {
	ctx    *C.struct_xkb_context
	keymap *C.struct_xkb_keymap
	state  *C.struct_xkb_state

	keymapFD   int
	keymapSize uint64
}

// New compiles a keymap for the given xkb layout name (e.g. "us", "de").
func New(layout string) (*State, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, errors.New("xkb: context_new failed")
	}

	clayout := C.CString(layout)
	defer C.free(unsafe.Pointer(clayout))

	names := C.struct_xkb_rule_names{layout: clayout}
	keymap := C.xkb_keymap_new_from_names(ctx, &names, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if keymap == nil {
		C.xkb_context_unref(ctx)
		return nil, fmt.Errorf("xkb: no keymap for layout %q", layout)
	}

	state := C.xkb_state_new(keymap)
	if state == nil {
		C.xkb_keymap_unref(keymap)
		C.xkb_context_unref(ctx)
		return nil, errors.New("xkb: state_new failed")
	}

	s := &State{ctx: ctx, keymap: keymap, state: state, keymapFD: -1}
	if err := s.serializeKeymap(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// serializeKeymap writes the keymap string into an anonymous file whose fd
// is handed to every new wl_keyboard.
func (s *State) serializeKeymap() error {
	cstr := C.xkb_keymap_get_as_string(s.keymap, C.XKB_KEYMAP_FORMAT_TEXT_V1)
	if cstr == nil {
		return errors.New("xkb: keymap serialization failed")
	}
	defer C.free(unsafe.Pointer(cstr))

	data := C.GoBytes(unsafe.Pointer(cstr), C.int(C.strlen(cstr))+1)

	fd, err := unix.MemfdCreate("tatami-keymap", unix.MFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("xkb: keymap memfd: %w", err)
	}
	if _, err := unix.Write(fd, data); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("xkb: keymap write: %w", err)
	}

	s.keymapFD = fd
	s.keymapSize = uint64(len(data))
	return nil
}

// KeymapFile returns the serialized keymap fd and size.
func (s *State) KeymapFile() (int, uint64) {
	return s.keymapFD, s.keymapSize
}

// UpdateKey feeds an evdev key transition into the state machine.
func (s *State) UpdateKey(code uint32, pressed bool) {
	direction := C.enum_xkb_key_direction(C.XKB_KEY_UP)
	if pressed {
		direction = C.XKB_KEY_DOWN
	}
	C.xkb_state_update_key(s.state, C.xkb_keycode_t(code+evdevOffset), direction)
}

// Modifiers serializes the current modifier masks and group.
func (s *State) Modifiers() (depressed, latched, locked, group uint32) {
	depressed = uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_DEPRESSED))
	latched = uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LATCHED))
	locked = uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LOCKED))
	group = uint32(C.xkb_state_serialize_layout(s.state, C.XKB_STATE_LAYOUT_EFFECTIVE))
	return depressed, latched, locked, group
}

// Destroy releases everything, including the keymap file.
func (s *State) Destroy() {
	if s.keymapFD >= 0 {
		_ = unix.Close(s.keymapFD)
		s.keymapFD = -1
	}
	if s.state != nil {
		C.xkb_state_unref(s.state)
		s.state = nil
	}
	if s.keymap != nil {
		C.xkb_keymap_unref(s.keymap)
		s.keymap = nil
	}
	if s.ctx != nil {
		C.xkb_context_unref(s.ctx)
		s.ctx = nil
	}
}
