//go:build linux

package comp

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/input"
	"github.com/tatami-wm/tatami/internal/wire"
	"github.com/tatami-wm/tatami/internal/wl"
)

// PointerMotion accumulates an unaccelerated delta into the cursor,
// clamps it to the output, and recomputes pointer focus.
func (s *State) PointerMotion(dx, dy float64) {
	s.cursorX += dx
	s.cursorY += dy

	if s.cursorX < 0 {
		s.cursorX = 0
	}
	if s.cursorY < 0 {
		s.cursorY = 0
	}
	if max := float64(s.OutputSize.X - 1); s.cursorX > max {
		s.cursorX = max
	}
	if max := float64(s.OutputSize.Y - 1); s.cursorY > max {
		s.cursorY = max
	}

	s.Cursor = geom.Pt(int32(s.cursorX), int32(s.cursorY))

	for _, c := range s.Clients {
		for _, seat := range wl.ObjectsOf[*wl.Seat](c) {
			seat.PointerPosition = s.Cursor
		}
	}

	if s.dragGrabbedToplevel() {
		return
	}

	s.updatePointerFocus()
}

// dragGrabbedToplevel services an active interactive move: the grabbed
// toplevel follows the cursor and no focus recompute happens.
func (s *State) dragGrabbedToplevel() bool {
	for _, c := range s.Clients {
		for _, seat := range wl.ObjectsOf[*wl.Seat](c) {
			grab := seat.Moving
			if grab == nil {
				continue
			}
			if toplevel, err := wl.Get[*wl.XdgToplevel](c, grab.Toplevel); err == nil {
				toplevel.Position = grab.WindowStartPos.Add(s.Cursor.Sub(grab.PointerStartPos))
			}
			return true
		}
	}
	return false
}

// updatePointerFocus re-derives pointerOver from the window stack and emits
// the enter/leave/motion events the transition requires.
func (s *State) updatePointerFocus() {
	old := s.pointerOver
	s.pointerOver = s.hitTest()
	current := s.pointerOver

	if old == nil && current == nil {
		return
	}

	sameSurface := old != nil && current != nil &&
		old.FD == current.FD && old.Surface == current.Surface

	switch {
	case sameSurface && old.Pos == current.Pos:
		return

	case sameSurface:
		c := s.Clients[current.FD]
		for _, p := range wl.ObjectsOf[*wl.Pointer](c) {
			_ = p.Motion(c, current.Pos)
			_ = p.Frame(c)
		}

	default:
		if old != nil {
			if c, ok := s.Clients[old.FD]; ok {
				serial := c.Display().NextSerial()
				for _, p := range wl.ObjectsOf[*wl.Pointer](c) {
					_ = p.Leave(c, serial, old.Surface)
					_ = p.Frame(c)
				}
			}
		}
		if current != nil {
			if c, ok := s.Clients[current.FD]; ok {
				serial := c.Display().NextSerial()
				for _, p := range wl.ObjectsOf[*wl.Pointer](c) {
					_ = p.Enter(c, serial, current.Surface, current.Pos)
					_ = p.Frame(c)
				}
			}
		}
	}
}

// hitTest finds the topmost surface under the cursor: popups, then the
// surface trees of the stacked windows front to back, then layer surfaces.
func (s *State) hitTest() *PointerOver {
	for _, entry := range s.windowStack {
		c, toplevel, surface, base, ok := s.toplevelSurface(entry)
		if !ok {
			continue
		}

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

			popupBase := base.Sub(popupXdg.Position).Add(popup.Position)
			if hit := s.surfaceAt(c, entry.Toplevel, popupSurface, popupBase); hit != nil {
				return hit
			}
		}

		if hit := s.surfaceAt(c, entry.Toplevel, surface, base); hit != nil {
			return hit
		}
	}

	// Layer surfaces route like windows but sit at the output origin and
	// never participate in the stack.
	for fd, c := range s.Clients {
		for _, surface := range wl.ObjectsOf[*wl.Surface](c) {
			if surface.Role() != wl.RoleLayerSurface {
				continue
			}
			if hit := s.surfaceAt(c, 0, surface, geom.Point{}); hit != nil {
				hit.FD = fd
				return hit
			}
		}
	}

	return nil
}

// surfaceAt hit-tests one surface tree, topmost subsurface first.
func (s *State) surfaceAt(c *wl.Client, toplevel wire.ObjectID, surface *wl.Surface, base geom.Point) *PointerOver {
	children := surface.Children()
	for i := len(children) - 1; i >= 0; i-- {
		sub, err := wl.Get[*wl.SubSurface](c, children[i])
		if err != nil {
			continue
		}
		child, err := wl.Get[*wl.Surface](c, sub.Surface())
		if err != nil {
			continue
		}
		if hit := s.surfaceAt(c, toplevel, child, base.Add(sub.Position())); hit != nil {
			return hit
		}
	}

	local := s.Cursor.Sub(base)
	if surface.HitRegion(local) {
		return &PointerOver{
			FD:       c.FD(),
			Toplevel: toplevel,
			Surface:  surface.ID(),
			Pos:      local,
		}
	}
	return nil
}

// PointerButton routes a button event to the focused surface and raises its
// window when a press lands on a window that is not topmost.
func (s *State) PointerButton(button, state uint32) {
	// A button release ends any interactive move grab.
	for _, c := range s.Clients {
		for _, seat := range wl.ObjectsOf[*wl.Seat](c) {
			if seat.Moving != nil && state == input.ButtonReleased {
				seat.Moving = nil
				return
			}
		}
	}

	focus := s.pointerOver
	if focus == nil {
		return
	}
	c, ok := s.Clients[focus.FD]
	if !ok {
		return
	}

	serial := c.Display().NextSerial()
	for _, p := range wl.ObjectsOf[*wl.Pointer](c) {
		_ = p.Button(c, serial, button, state)
		_ = p.Frame(c)
	}

	if focus.Toplevel.IsNull() || state != input.ButtonPressed {
		return
	}
	if front, ok := s.FocusedWindow(); ok {
		clicked := StackEntry{FD: focus.FD, Toplevel: focus.Toplevel}
		if front != clicked {
			s.PushChange(wl.Change{Kind: wl.ChangePick, ClientFD: focus.FD, Toplevel: focus.Toplevel})
		}
	}
}

// PointerScroll routes a v120 high-resolution wheel event.
func (s *State) PointerScroll(axis uint32, v120 float64) {
	focus := s.pointerOver
	if focus == nil {
		return
	}
	c, ok := s.Clients[focus.FD]
	if !ok {
		return
	}

	for _, p := range wl.ObjectsOf[*wl.Pointer](c) {
		_ = p.AxisSource(c, wl.AxisSourceWheel)
		_ = p.AxisDiscrete(c, axis, int32(v120/120.0))
		_ = p.Axis(c, axis, v120/12.0)
		_ = p.Frame(c)
	}
}

// KeyboardKey updates the xkb state, handles compositor hotkeys while Alt
// is held, and otherwise routes the key to the focused client.
func (s *State) KeyboardKey(code, state uint32) {
	pressed := state == input.KeyPressed

	if s.Keymap != nil {
		s.Keymap.UpdateKey(code, pressed)
	}
	depressed, latched, locked, group := s.modifiers()

	if depressed&input.ModAlt != 0 && pressed {
		switch code {
		case input.KeyEsc:
			s.RequestQuit()
			return
		case input.KeyT:
			s.spawnTerminal()
			return
		case input.KeyC:
			if front, ok := s.FocusedWindow(); ok {
				if c, ok := s.Clients[front.FD]; ok {
					if toplevel, err := wl.Get[*wl.XdgToplevel](c, front.Toplevel); err == nil {
						_ = toplevel.Close(c)
					}
				}
			}
			return
		}
	}

	front, ok := s.FocusedWindow()
	if !ok {
		return
	}
	c, ok := s.Clients[front.FD]
	if !ok {
		return
	}

	serial := c.Display().NextSerial()
	for _, kb := range wl.ObjectsOf[*wl.Keyboard](c) {
		if kb.Keys.Update(code, pressed) {
			_ = kb.Key(c, serial, code, state)
		}
		_ = kb.Modifiers(c, serial, depressed, latched, locked, group)
	}
}
