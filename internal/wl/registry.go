//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// wl_registry request opcodes.
const (
	registryBind wire.Opcode = 0 // bind(name: uint, interface: string, version: uint, id: new_id)
)

// wl_registry event opcodes.
const (
	registryEventGlobal       wire.Opcode = 0 // global(name: uint, interface: string, version: uint)
	registryEventGlobalRemove wire.Opcode = 1 // global_remove(name: uint)
)

// Registry lets a client enumerate and bind the advertised globals.
type Registry struct {
	id wire.ObjectID
}

// Global emits one wl_registry.global advertisement.
func (r *Registry) Global(c *Client, name uint32, iface string, version uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(name).PutString(iface).PutUint32(version)
	return c.Send(b.Build(r.id, registryEventGlobal))
}

// Handle dispatches wl_registry requests.
func (r *Registry) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case registryBind:
		name, err := d.Uint32()
		if err != nil {
			return err
		}
		iface, err := d.String()
		if err != nil {
			return err
		}
		version, err := d.Uint32()
		if err != nil {
			return err
		}
		id, err := d.Object()
		if err != nil {
			return err
		}

		global, ok := c.Display().Globals().Lookup(name)
		if !ok {
			return protocolErrorf(r.id, DisplayErrorInvalidObject, "bind of unknown global %d", name)
		}
		if global.Interface() != iface {
			return protocolErrorf(r.id, DisplayErrorInvalidObject,
				"global %d is %s, not %s", name, global.Interface(), iface)
		}
		if version > global.Version() {
			return protocolErrorf(r.id, DisplayErrorInvalidObject,
				"version %d exceeds %s version %d", version, iface, global.Version())
		}

		c.Log().Debug().Uint32("name", name).Str("interface", iface).
			Uint32("version", version).Uint32("id", uint32(id)).Msg("bind")

		return global.Bind(c, id, version)

	default:
		return protocolErrorf(r.id, DisplayErrorInvalidMethod, "unknown op %d in wl_registry", op)
	}
}
