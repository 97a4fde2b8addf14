// Package input provides the evdev key and button codes the compositor
// routes, plus the event state values shared with the Wayland protocol.
package input

// Key is a Linux evdev key code.
type Key = uint32

// Evdev key codes used by the compositor hotkeys and tests.
const (
	KeyEsc   Key = 1
	Key1     Key = 2
	Key2     Key = 3
	KeyQ     Key = 16
	KeyW     Key = 17
	KeyE     Key = 18
	KeyT     Key = 20
	KeyEnter Key = 28
	KeyCtrl  Key = 29
	KeyA     Key = 30
	KeyC     Key = 46
	KeyShift Key = 42
	KeyAlt   Key = 56
	KeySpace Key = 57
)

// Key event states (wl_keyboard.key_state and libinput agree).
const (
	KeyReleased uint32 = 0
	KeyPressed  uint32 = 1
)

// Evdev button codes.
const (
	ButtonLeft   uint32 = 0x110
	ButtonRight  uint32 = 0x111
	ButtonMiddle uint32 = 0x112
)

// Button event states (wl_pointer.button_state and libinput agree).
const (
	ButtonReleased uint32 = 0
	ButtonPressed  uint32 = 1
)

// Serialized xkb modifier masks for the standard modifier mapping.
const (
	ModShift uint32 = 1 << 0
	ModLock  uint32 = 1 << 1
	ModCtrl  uint32 = 1 << 2
	ModAlt   uint32 = 1 << 3
	ModLogo  uint32 = 1 << 6
)

// Scroll axes (wl_pointer.axis and libinput agree).
const (
	AxisVertical   uint32 = 0
	AxisHorizontal uint32 = 1
)

// PressedState tracks per-code pressed state for one logical device, used
// to suppress repeat-identical transitions.
type PressedState struct {
	keys [256]bool
}

// Update records a transition and reports whether it changed the state.
func (p *PressedState) Update(code Key, pressed bool) bool {
	if int(code) >= len(p.keys) {
		return false
	}
	if p.keys[code] == pressed {
		return false
	}
	p.keys[code] = pressed
	return true
}

// IsPressed reports the tracked state of a key.
func (p *PressedState) IsPressed(code Key) bool {
	return int(code) < len(p.keys) && p.keys[code]
}
