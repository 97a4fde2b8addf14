//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// zwlr_layer_shell_v1 request opcodes.
const (
	layerShellGetLayerSurface wire.Opcode = 0 // get_layer_surface(id: new_id, surface: object, output: object, layer: uint, namespace: string)
	layerShellDestroy         wire.Opcode = 1 // destroy()
)

// zwlr_layer_surface_v1 request opcodes.
const (
	layerSurfaceSetSize                   wire.Opcode = 0 // set_size(width: uint, height: uint)
	layerSurfaceSetAnchor                 wire.Opcode = 1 // set_anchor(anchor: uint)
	layerSurfaceSetExclusiveZone          wire.Opcode = 2 // set_exclusive_zone(zone: int)
	layerSurfaceSetMargin                 wire.Opcode = 3 // set_margin(top: int, right: int, bottom: int, left: int)
	layerSurfaceSetKeyboardInteractivity  wire.Opcode = 4 // set_keyboard_interactivity(keyboard_interactivity: uint)
	layerSurfaceGetPopup                  wire.Opcode = 5 // get_popup(popup: object)
	layerSurfaceAckConfigure              wire.Opcode = 6 // ack_configure(serial: uint)
	layerSurfaceDestroy                   wire.Opcode = 7 // destroy()
	layerSurfaceSetLayer                  wire.Opcode = 8 // set_layer(layer: uint)
)

// zwlr_layer_surface_v1 event opcodes.
const (
	layerSurfaceEventConfigure wire.Opcode = 0 // configure(serial: uint, width: uint, height: uint)
	layerSurfaceEventClosed    wire.Opcode = 1 // closed()
)

// LayerShell is the zwlr_layer_shell_v1 global.
type LayerShell struct {
	id wire.ObjectID
}

// Interface implements Global.
func (*LayerShell) Interface() string { return IfaceLayerShell }

// Version implements Global.
func (*LayerShell) Version() uint32 { return 3 }

// Bind implements Global.
func (*LayerShell) Bind(c *Client, id wire.ObjectID, version uint32) error {
	return c.AddObject(id, &LayerShell{id: id})
}

// Handle dispatches zwlr_layer_shell_v1 requests.
func (ls *LayerShell) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case layerShellGetLayerSurface:
		id, err := d.Object()
		if err != nil {
			return err
		}
		surfaceID, err := d.Object()
		if err != nil {
			return err
		}
		if _, err := d.Object(); err != nil { // output
			return err
		}
		if _, err := d.Uint32(); err != nil { // layer
			return err
		}
		if _, err := d.String(); err != nil { // namespace
			return err
		}

		if err := c.AddObject(id, &LayerSurface{id: id, surface: surfaceID}); err != nil {
			return err
		}

		surface, err := Get[*Surface](c, surfaceID)
		if err != nil {
			return err
		}
		return surface.setLayerRole(id)

	case layerShellDestroy:
		return c.RemoveObject(ls.id)

	default:
		return protocolErrorf(ls.id, DisplayErrorInvalidMethod, "unknown op %d in zwlr_layer_shell_v1", op)
	}
}

// LayerSurface is a surface anchored to the output rather than the window
// stack. The first commit answers with a zero-size configure; afterwards it
// participates in routing like a toplevel.
type LayerSurface struct {
	id      wire.ObjectID
	surface wire.ObjectID
}

// Configure emits zwlr_layer_surface_v1.configure.
func (ls *LayerSurface) Configure(c *Client, serial, width, height uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(serial).PutUint32(width).PutUint32(height)
	return c.Send(b.Build(ls.id, layerSurfaceEventConfigure))
}

// Handle dispatches zwlr_layer_surface_v1 requests.
func (ls *LayerSurface) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case layerSurfaceSetSize:
		if _, err := d.Uint32(); err != nil {
			return err
		}
		_, err := d.Uint32()
		return err

	case layerSurfaceSetAnchor, layerSurfaceSetKeyboardInteractivity, layerSurfaceSetLayer:
		_, err := d.Uint32()
		return err

	case layerSurfaceSetExclusiveZone:
		_, err := d.Int32()
		return err

	case layerSurfaceSetMargin:
		for i := 0; i < 4; i++ {
			if _, err := d.Int32(); err != nil {
				return err
			}
		}
		return nil

	case layerSurfaceGetPopup:
		_, err := d.Object()
		return err

	case layerSurfaceAckConfigure:
		_, err := d.Uint32()
		return err

	case layerSurfaceDestroy:
		return c.RemoveObject(ls.id)

	default:
		return protocolErrorf(ls.id, DisplayErrorInvalidMethod, "unknown op %d in zwlr_layer_surface_v1", op)
	}
}
