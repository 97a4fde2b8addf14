//go:build linux

package comp

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wl"
)

// ComposeFrame draws the current window stack into the renderer's next
// framebuffer: layer surfaces first, then the stacked windows back to
// front, each with its subsurface tree and popups. Dmabuf-backed surfaces
// are pinned for the duration of the pass.
func (s *State) ComposeFrame(r render.Renderer) {
	r.BeginFrame()

	for _, c := range s.Clients {
		for _, surface := range wl.ObjectsOf[*wl.Surface](c) {
			if surface.Role() == wl.RoleLayerSurface {
				s.drawSurfaceTree(r, c, surface, geom.Point{})
			}
		}
	}

	for i := len(s.windowStack) - 1; i >= 0; i-- {
		entry := s.windowStack[i]
		c, toplevel, surface, base, ok := s.toplevelSurface(entry)
		if !ok {
			continue
		}

		s.drawSurfaceTree(r, c, surface, base)

		xdg, err := wl.Get[*wl.XdgSurface](c, toplevel.XdgSurfaceID())
		if err != nil {
			continue
		}
		for _, popupID := range xdg.Popups() {
			popup, err := wl.Get[*wl.XdgPopup](c, popupID)
			if err != nil {
				continue
			}
			popupXdg, err := wl.Get[*wl.XdgSurface](c, popup.XdgSurfaceID())
			if err != nil {
				continue
			}
			popupSurface, err := wl.Get[*wl.Surface](c, popupXdg.SurfaceID())
			if err != nil {
				continue
			}
			s.drawSurfaceTree(r, c, popupSurface, base.Sub(popupXdg.Position).Add(popup.Position))
		}
	}
}

// drawSurfaceTree draws one surface and its mapped subsurfaces and swaps
// each surface's rendered-buffer pin to the buffer consumed by this pass.
func (s *State) drawSurfaceTree(r render.Renderer, c *wl.Client, surface *wl.Surface, base geom.Point) {
	for _, fb := range surface.FrontBuffers(c) {
		tex, ok := fb.Surface.Texture()
		if !ok {
			continue
		}

		r.DrawTexturedQuad(tex, geom.Rect{
			Pos:  base.Add(fb.Offset),
			Size: fb.Surface.Size(),
		})
		fb.Surface.SetRendered(c, fb.Surface.AttachedRef())
	}
}

// FlipCompleted runs after a page-flip retired the previous frame: frame
// callbacks fire, presentation feedback resolves, and the buffers that just
// left the scanout are released.
func (s *State) FlipCompleted(tvSec uint64, tvNsec uint32, seq uint64, refreshNS uint32) {
	for _, entry := range s.windowStack {
		c, toplevel, surface, _, ok := s.toplevelSurface(entry)
		if !ok {
			continue
		}

		now := c.Display().TimeMS()
		if err := surface.Frame(c, now); err != nil {
			s.DropClient(entry.FD)
			continue
		}
		if err := surface.PresentationFeedback(c, tvSec, tvNsec, refreshNS, seq, 0); err != nil {
			s.DropClient(entry.FD)
			continue
		}

		retireTree(c, surface)

		xdg, err := wl.Get[*wl.XdgSurface](c, toplevel.XdgSurfaceID())
		if err != nil {
			continue
		}
		for _, popupID := range xdg.Popups() {
			popup, err := wl.Get[*wl.XdgPopup](c, popupID)
			if err != nil {
				continue
			}
			popupXdg, err := wl.Get[*wl.XdgSurface](c, popup.XdgSurfaceID())
			if err != nil {
				continue
			}
			if popupSurface, err := wl.Get[*wl.Surface](c, popupXdg.SurfaceID()); err == nil {
				_ = popupSurface.Frame(c, now)
				retireTree(c, popupSurface)
			}
		}
	}

	for _, c := range s.Clients {
		for _, surface := range wl.ObjectsOf[*wl.Surface](c) {
			if surface.Role() == wl.RoleLayerSurface {
				_ = surface.Frame(c, c.Display().TimeMS())
				retireTree(c, surface)
			}
		}
	}
}

// retireTree moves every surface's rendered pin into the displayed slot.
func retireTree(c *wl.Client, surface *wl.Surface) {
	for _, fb := range surface.FrontBuffers(c) {
		fb.Surface.RetireDisplayed(c)
	}
}
