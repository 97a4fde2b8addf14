//go:build linux && cgo

// Package libinput wraps the udev-backed libinput context that sources
// keyboard and pointer events from the kernel's evdev layer.
package libinput

/*
#cgo pkg-config: libinput libudev
#include <stdlib.h>
#include <fcntl.h>
#include <unistd.h>
#include <libinput.h>
#include <libudev.h>

static int openRestricted(const char *path, int flags, void *user_data) {
	return open(path, flags);
}

static void closeRestricted(int fd, void *user_data) {
	close(fd);
}

static const struct libinput_interface iface = {
	.open_restricted = openRestricted,
	.close_restricted = closeRestricted,
};

static struct libinput *createContext(struct udev *udev) {
	return libinput_udev_create_context(&iface, NULL, udev);
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

// Event types surfaced to the compositor.
type EventType int

const (
	EventNone EventType = iota
	EventKeyboardKey
	EventPointerMotion
	EventPointerButton
	EventPointerScrollWheel
)

// Event is one input event in compositor terms.
type Event struct {
	Type EventType

	// Keyboard: evdev code and pressed state.
	Key        uint32
	KeyPressed bool

	// Pointer motion: unaccelerated deltas.
	DX, DY float64

	// Pointer button: evdev button code and pressed state.
	Button        uint32
	ButtonPressed bool

	// Scroll: v120 value per axis (vertical = axis 0).
	Axis uint32
	V120 float64
}

// Context owns the udev instance and the libinput context assigned to
// seat0.
type Context struct {
	udev *C.struct_udev
	li   *C.struct_libinput
}

// New creates the context and assigns seat0.
func New() (*Context, error) {
	udev := C.udev_new()
	if udev == nil {
		return nil, errors.New("libinput: udev_new failed")
	}

	li := C.createContext(udev)
	if li == nil {
		C.udev_unref(udev)
		return nil, errors.New("libinput: create context failed")
	}

	seat := C.CString("seat0")
	defer C.free(unsafe.Pointer(seat))
	if C.libinput_udev_assign_seat(li, seat) != 0 {
		C.libinput_unref(li)
		C.udev_unref(udev)
		return nil, errors.New("libinput: assign seat0 failed")
	}

	return &Context{udev: udev, li: li}, nil
}

// FD returns the pollable descriptor.
func (ctx *Context) FD() int {
	return int(C.libinput_get_fd(ctx.li))
}

// Dispatch drains the kernel queue and returns the pending events.
func (ctx *Context) Dispatch() []Event {
	C.libinput_dispatch(ctx.li)

	var events []Event
	for {
		ev := C.libinput_get_event(ctx.li)
		if ev == nil {
			break
		}
		if out, ok := convert(ev); ok {
			events = append(events, out)
		}
		C.libinput_event_destroy(ev)
	}
	return events
}

// convert maps a libinput event to the compositor event type.
func convert(ev *C.struct_libinput_event) (Event, bool) {
	switch C.libinput_event_get_type(ev) {
	case C.LIBINPUT_EVENT_KEYBOARD_KEY:
		kb := C.libinput_event_get_keyboard_event(ev)
		return Event{
			Type:       EventKeyboardKey,
			Key:        uint32(C.libinput_event_keyboard_get_key(kb)),
			KeyPressed: C.libinput_event_keyboard_get_key_state(kb) == C.LIBINPUT_KEY_STATE_PRESSED,
		}, true

	case C.LIBINPUT_EVENT_POINTER_MOTION:
		pt := C.libinput_event_get_pointer_event(ev)
		return Event{
			Type: EventPointerMotion,
			DX:   float64(C.libinput_event_pointer_get_dx_unaccelerated(pt)),
			DY:   float64(C.libinput_event_pointer_get_dy_unaccelerated(pt)),
		}, true

	case C.LIBINPUT_EVENT_POINTER_BUTTON:
		pt := C.libinput_event_get_pointer_event(ev)
		return Event{
			Type:          EventPointerButton,
			Button:        uint32(C.libinput_event_pointer_get_button(pt)),
			ButtonPressed: C.libinput_event_pointer_get_button_state(pt) == C.LIBINPUT_BUTTON_STATE_PRESSED,
		}, true

	case C.LIBINPUT_EVENT_POINTER_SCROLL_WHEEL:
		pt := C.libinput_event_get_pointer_event(ev)
		return Event{
			Type: EventPointerScrollWheel,
			Axis: 0,
			V120: float64(C.libinput_event_pointer_get_scroll_value_v120(pt,
				C.LIBINPUT_POINTER_AXIS_SCROLL_VERTICAL)),
		}, true
	}

	return Event{}, false
}

// Destroy releases the context.
func (ctx *Context) Destroy() {
	if ctx.li != nil {
		C.libinput_unref(ctx.li)
		ctx.li = nil
	}
	if ctx.udev != nil {
		C.udev_unref(ctx.udev)
		ctx.udev = nil
	}
}
