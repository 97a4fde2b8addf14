//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/geom"

// OutputInfo describes the one physical output advertised to clients.
type OutputInfo struct {
	Size       geom.Point
	RefreshMHz int32
	PhysicalMM geom.Point
	Make       string
	Model      string
}

// KeymapInfo is the serialized xkb keymap handed to every new wl_keyboard.
type KeymapInfo struct {
	FD   int
	Size uint64
}

// Globals is the process-wide registry of bindable interfaces plus the
// shared facts their bind handlers need. Global names are 1-based positions
// in registration order.
type Globals struct {
	list []Global

	Output OutputInfo
	Keymap KeymapInfo

	// MainDevice is the DRM device's dev_t, published via dmabuf feedback.
	MainDevice uint64
}

// NewGlobals creates an empty registry with the given output description.
func NewGlobals(output OutputInfo) *Globals {
	return &Globals{Output: output}
}

// Register appends a global. Registration order fixes the advertised names.
func (g *Globals) Register(global Global) {
	g.list = append(g.list, global)
}

// Lookup resolves a registry name to its global.
func (g *Globals) Lookup(name uint32) (Global, bool) {
	if name == 0 || int(name) > len(g.list) {
		return nil, false
	}
	return g.list[name-1], true
}

// RegisterDefaults installs the full interface set in the order clients see
// it advertised.
func (g *Globals) RegisterDefaults() {
	g.Register(&Shm{globals: g})
	g.Register(&Compositor{})
	g.Register(&Subcompositor{})
	g.Register(&DataDeviceManager{})
	g.Register(&Seat{globals: g})
	g.Register(&Output{globals: g})
	g.Register(&XdgWmBase{})
	g.Register(&LinuxDmabuf{globals: g})
	g.Register(&Presentation{})
	g.Register(&LayerShell{})
	g.Register(&XdgOutputManager{globals: g})
}
