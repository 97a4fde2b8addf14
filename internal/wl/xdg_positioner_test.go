//go:build linux

package wl

import (
	"testing"

	"github.com/tatami-wm/tatami/internal/geom"
)

func TestPositionerFinalize(t *testing.T) {
	tests := []struct {
		name     string
		anchor   uint32
		gravity  uint32
		offset   geom.Point
		wantPos  geom.Point
	}{
		{
			// Menu below a menubar item: anchor the rect's bottom-left,
			// extend down-right.
			name:    "bottom left anchor bottom right gravity",
			anchor:  positionerBottomLeft,
			gravity: positionerBottomRight,
			wantPos: geom.Pt(100, 70),
		},
		{
			name:    "top anchor top gravity pops upward",
			anchor:  positionerTop,
			gravity: positionerTop,
			wantPos: geom.Pt(115, -60), // centered x minus half width, above the rect
		},
		{
			name:    "centered with no anchor or gravity",
			anchor:  positionerNone,
			gravity: positionerNone,
			wantPos: geom.Pt(115, 5),
		},
		{
			name:    "offset shifts the result",
			anchor:  positionerBottomLeft,
			gravity: positionerBottomRight,
			offset:  geom.Pt(3, -2),
			wantPos: geom.Pt(103, 68),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &XdgPositioner{
				size:       geom.Pt(50, 100),
				anchorRect: geom.Rct(100, 40, 80, 30),
				anchor:     tt.anchor,
				gravity:    tt.gravity,
				offset:     tt.offset,
			}

			pos, size := p.Finalize()
			if pos != tt.wantPos {
				t.Errorf("pos = %v, want %v", pos, tt.wantPos)
			}
			if size != geom.Pt(50, 100) {
				t.Errorf("size = %v", size)
			}
		})
	}
}
