//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// xdg_positioner request opcodes.
const (
	xdgPositionerDestroy             wire.Opcode = 0 // destroy()
	xdgPositionerSetSize             wire.Opcode = 1 // set_size(width: int, height: int)
	xdgPositionerSetAnchorRect       wire.Opcode = 2 // set_anchor_rect(x: int, y: int, width: int, height: int)
	xdgPositionerSetAnchor           wire.Opcode = 3 // set_anchor(anchor: uint)
	xdgPositionerSetGravity          wire.Opcode = 4 // set_gravity(gravity: uint)
	xdgPositionerSetConstraintAdjust wire.Opcode = 5 // set_constraint_adjustment(constraint_adjustment: uint)
	xdgPositionerSetOffset           wire.Opcode = 6 // set_offset(x: int, y: int)
	xdgPositionerSetReactive         wire.Opcode = 7 // set_reactive()
	xdgPositionerSetParentSize       wire.Opcode = 8 // set_parent_size(parent_width: int, parent_height: int)
	xdgPositionerSetParentConfigure  wire.Opcode = 9 // set_parent_configure(serial: uint)
)

// Anchor and gravity values share one enum space.
const (
	positionerNone        uint32 = 0
	positionerTop         uint32 = 1
	positionerBottom      uint32 = 2
	positionerLeft        uint32 = 3
	positionerRight       uint32 = 4
	positionerTopLeft     uint32 = 5
	positionerBottomLeft  uint32 = 6
	positionerTopRight    uint32 = 7
	positionerBottomRight uint32 = 8
)

// XdgPositioner accumulates the placement rules for a popup. Finalize turns
// them into a parent-relative geometry.
type XdgPositioner struct {
	id wire.ObjectID

	size       geom.Point
	anchorRect geom.Rect
	anchor     uint32
	gravity    uint32
	offset     geom.Point
}

// Finalize computes the popup position and size. The anchor picks a point on
// the anchor rectangle; the gravity says which way the popup extends from it.
func (p *XdgPositioner) Finalize() (geom.Point, geom.Point) {
	anchor := p.anchorRect.Pos
	anchor.X += anchorComponent(p.anchor, positionerLeft, positionerRight, p.anchorRect.Size.X)
	anchor.Y += anchorComponent(p.anchor, positionerTop, positionerBottom, p.anchorRect.Size.Y)

	pos := anchor
	pos.X += gravityShift(p.gravity, positionerLeft, positionerRight, p.size.X)
	pos.Y += gravityShift(p.gravity, positionerTop, positionerBottom, p.size.Y)

	return pos.Add(p.offset), p.size
}

// anchorComponent places the anchor point along one axis: at the near edge,
// far edge, or centered.
func anchorComponent(anchor, near, far uint32, extent int32) int32 {
	switch {
	case anchorMatches(anchor, near):
		return 0
	case anchorMatches(anchor, far):
		return extent
	default:
		return extent / 2
	}
}

// anchorMatches reports whether the composite anchor includes the edge.
func anchorMatches(anchor, edge uint32) bool {
	if anchor == edge {
		return true
	}
	switch edge {
	case positionerTop:
		return anchor == positionerTopLeft || anchor == positionerTopRight
	case positionerBottom:
		return anchor == positionerBottomLeft || anchor == positionerBottomRight
	case positionerLeft:
		return anchor == positionerTopLeft || anchor == positionerBottomLeft
	case positionerRight:
		return anchor == positionerTopRight || anchor == positionerBottomRight
	}
	return false
}

// gravityShift moves the popup so it extends toward the gravity edge.
func gravityShift(gravity, near, far uint32, extent int32) int32 {
	switch {
	case anchorMatches(gravity, near):
		return -extent
	case anchorMatches(gravity, far):
		return 0
	default:
		return -extent / 2
	}
}

// Handle dispatches xdg_positioner requests.
func (p *XdgPositioner) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case xdgPositionerDestroy:
		return c.RemoveObject(p.id)

	case xdgPositionerSetSize:
		w, err := d.Int32()
		if err != nil {
			return err
		}
		h, err := d.Int32()
		if err != nil {
			return err
		}
		p.size = geom.Pt(w, h)
		return nil

	case xdgPositionerSetAnchorRect:
		x, err := d.Int32()
		if err != nil {
			return err
		}
		y, err := d.Int32()
		if err != nil {
			return err
		}
		w, err := d.Int32()
		if err != nil {
			return err
		}
		h, err := d.Int32()
		if err != nil {
			return err
		}
		p.anchorRect = geom.Rct(x, y, w, h)
		return nil

	case xdgPositionerSetAnchor:
		anchor, err := d.Uint32()
		if err != nil {
			return err
		}
		p.anchor = anchor
		return nil

	case xdgPositionerSetGravity:
		gravity, err := d.Uint32()
		if err != nil {
			return err
		}
		p.gravity = gravity
		return nil

	case xdgPositionerSetConstraintAdjust:
		_, err := d.Uint32()
		return err

	case xdgPositionerSetOffset:
		x, err := d.Int32()
		if err != nil {
			return err
		}
		y, err := d.Int32()
		if err != nil {
			return err
		}
		p.offset = geom.Pt(x, y)
		return nil

	case xdgPositionerSetReactive:
		return nil

	case xdgPositionerSetParentSize:
		if _, err := d.Int32(); err != nil {
			return err
		}
		_, err := d.Int32()
		return err

	case xdgPositionerSetParentConfigure:
		_, err := d.Uint32()
		return err

	default:
		return protocolErrorf(p.id, DisplayErrorInvalidMethod, "unknown op %d in xdg_positioner", op)
	}
}
