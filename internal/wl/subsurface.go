//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_subcompositor request opcodes.
const (
	subcompositorDestroy       wire.Opcode = 0 // destroy()
	subcompositorGetSubsurface wire.Opcode = 1 // get_subsurface(id: new_id, surface: object, parent: object)
)

// wl_subsurface request opcodes.
const (
	subsurfaceDestroy     wire.Opcode = 0 // destroy()
	subsurfaceSetPosition wire.Opcode = 1 // set_position(x: int, y: int)
	subsurfacePlaceAbove  wire.Opcode = 2 // place_above(sibling: object)
	subsurfacePlaceBelow  wire.Opcode = 3 // place_below(sibling: object)
	subsurfaceSetSync     wire.Opcode = 4 // set_sync()
	subsurfaceSetDesync   wire.Opcode = 5 // set_desync()
)

// Subcompositor is the wl_subcompositor global.
type Subcompositor struct {
	id wire.ObjectID
}

// Interface implements Global.
func (*Subcompositor) Interface() string { return IfaceSubcompositor }

// Version implements Global.
func (*Subcompositor) Version() uint32 { return 1 }

// Bind implements Global.
func (*Subcompositor) Bind(c *Client, id wire.ObjectID, version uint32) error {
	return c.AddObject(id, &Subcompositor{id: id})
}

// Handle dispatches wl_subcompositor requests.
func (sc *Subcompositor) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case subcompositorDestroy:
		return c.RemoveObject(sc.id)

	case subcompositorGetSubsurface:
		id, err := d.Object()
		if err != nil {
			return err
		}
		surfaceID, err := d.Object()
		if err != nil {
			return err
		}
		parentID, err := d.Object()
		if err != nil {
			return err
		}

		surface, err := Get[*Surface](c, surfaceID)
		if err != nil {
			return err
		}
		parent, err := Get[*Surface](c, parentID)
		if err != nil {
			return err
		}

		// The subsurface graph must stay acyclic: the new parent may not be
		// the surface itself or any of its descendants.
		if surfaceID == parentID || isDescendant(c, surface, parentID) {
			return protocolErrorf(surfaceID, DisplayErrorImplementation,
				"surface %d would become its own ancestor", surfaceID)
		}

		if err := surface.setSubsurfaceRole(parentID); err != nil {
			return err
		}
		parent.addChild(id)

		return c.AddObject(id, &SubSurface{
			id:      id,
			surface: surfaceID,
			parent:  parentID,
		})

	default:
		return protocolErrorf(sc.id, DisplayErrorInvalidMethod, "unknown op %d in wl_subcompositor", op)
	}
}

// isDescendant reports whether needle is in root's subsurface subtree.
func isDescendant(c *Client, root *Surface, needle wire.ObjectID) bool {
	found := false
	_ = root.walkSubtree(c, func(child *Surface) error {
		if child.id == needle {
			found = true
		}
		return nil
	})
	return found
}

// SubSurface ties a surface into its parent's tree with a position and a
// commit mode.
type SubSurface struct {
	id       wire.ObjectID
	surface  wire.ObjectID
	parent   wire.ObjectID
	position geom.Point
}

// Surface returns the wl_surface this subsurface wraps.
func (ss *SubSurface) Surface() wire.ObjectID {
	return ss.surface
}

// Position returns the parent-relative position.
func (ss *SubSurface) Position() geom.Point {
	return ss.position
}

// Handle dispatches wl_subsurface requests.
func (ss *SubSurface) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case subsurfaceDestroy:
		if parent, err := Get[*Surface](c, ss.parent); err == nil {
			parent.removeChild(ss.id)
		}
		return c.RemoveObject(ss.id)

	case subsurfaceSetPosition:
		x, err := d.Int32()
		if err != nil {
			return err
		}
		y, err := d.Int32()
		if err != nil {
			return err
		}
		ss.position = geom.Pt(x, y)
		return nil

	case subsurfacePlaceAbove, subsurfacePlaceBelow:
		siblingSurface, err := d.Object()
		if err != nil {
			return err
		}

		parent, err := Get[*Surface](c, ss.parent)
		if err != nil {
			return err
		}
		parent.removeChild(ss.id)

		// Anchor by the sibling's subsurface entry; the parent surface
		// itself anchors at the bottom of the child list.
		idx := -1
		for i, childID := range parent.children {
			sub, err := Get[*SubSurface](c, childID)
			if err != nil {
				continue
			}
			if sub.surface == siblingSurface {
				idx = i
				break
			}
		}

		switch {
		case idx < 0 && op == subsurfacePlaceAbove:
			parent.children = append([]wire.ObjectID{ss.id}, parent.children...)
		case idx < 0:
			parent.children = append(parent.children, ss.id)
		case op == subsurfacePlaceAbove:
			parent.children = insertAt(parent.children, idx+1, ss.id)
		default:
			parent.children = insertAt(parent.children, idx, ss.id)
		}
		return nil

	case subsurfaceSetSync:
		if surface, err := Get[*Surface](c, ss.surface); err == nil {
			surface.sync = true
		}
		return nil

	case subsurfaceSetDesync:
		if surface, err := Get[*Surface](c, ss.surface); err == nil {
			surface.sync = false
		}
		return nil

	default:
		return protocolErrorf(ss.id, DisplayErrorInvalidMethod, "unknown op %d in wl_subsurface", op)
	}
}

// insertAt places id at index i in children.
func insertAt(children []wire.ObjectID, i int, id wire.ObjectID) []wire.ObjectID {
	children = append(children, 0)
	copy(children[i+1:], children[i:])
	children[i] = id
	return children
}
