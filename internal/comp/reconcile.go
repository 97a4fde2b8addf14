//go:build linux

package comp

import (
	"slices"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wl"
)

// Reconcile drains the change journal, applies it to the window stack,
// recomputes the layout and moves keyboard focus. It runs between event
// batches, never during request handling.
func (s *State) Reconcile() {
	changes := s.drainChanges()

	var old *StackEntry
	if len(s.windowStack) > 0 {
		entry := s.windowStack[0]
		old = &entry
	}

	leaveFromOld := false

	for i, change := range changes {
		raised := false

		switch change.Kind {
		case wl.ChangePush:
			s.windowStack = append([]StackEntry{{FD: change.ClientFD, Toplevel: change.Toplevel}}, s.windowStack...)
			raised = true

		case wl.ChangeRemoveToplevel:
			s.windowStack = slices.DeleteFunc(s.windowStack, func(e StackEntry) bool {
				return e.FD == change.ClientFD && e.Toplevel == change.Toplevel
			})
			if s.pointerOver != nil && s.pointerOver.FD == change.ClientFD &&
				s.pointerOver.Toplevel == change.Toplevel {
				s.pointerOver = nil
			}

		case wl.ChangeRemoveSurface:
			if s.pointerOver != nil && s.pointerOver.FD == change.ClientFD &&
				s.pointerOver.Surface == change.Surface {
				s.pointerOver = nil
			}

		case wl.ChangeRemoveClient:
			s.windowStack = slices.DeleteFunc(s.windowStack, func(e StackEntry) bool {
				return e.FD == change.ClientFD
			})
			if s.pointerOver != nil && s.pointerOver.FD == change.ClientFD {
				s.pointerOver = nil
			}
			if c, ok := s.Clients[change.ClientFD]; ok {
				c.ReleaseResources()
			}
			delete(s.Clients, change.ClientFD)
			s.clientOrder = slices.DeleteFunc(s.clientOrder, func(fd int) bool {
				return fd == change.ClientFD
			})

		case wl.ChangePick:
			idx := slices.IndexFunc(s.windowStack, func(e StackEntry) bool {
				return e.FD == change.ClientFD && e.Toplevel == change.Toplevel
			})
			if idx < 0 {
				continue
			}
			entry := s.windowStack[idx]
			s.windowStack = append(s.windowStack[:idx], s.windowStack[idx+1:]...)
			s.windowStack = append([]StackEntry{entry}, s.windowStack...)
			raised = true
		}

		if raised {
			leaveFromOld = true
		}
	}

	if len(changes) == 0 {
		return
	}

	var current *StackEntry
	if len(s.windowStack) > 0 {
		entry := s.windowStack[0]
		current = &entry
	}

	s.applyLayout(old, current, leaveFromOld)
	s.transferFocus(old, current, leaveFromOld)
}

// Layout returns the output rectangle assigned to the window at the given
// stack index: one window fills the output, otherwise the front window
// takes the left half and the rest stack in the right column.
func Layout(index, count int, output geom.Point) geom.Rect {
	switch {
	case count <= 1:
		return geom.Rect{Size: output}
	case index == 0:
		return geom.Rct(0, 0, output.X/2, output.Y)
	default:
		frac := output.Y / int32(count-1)
		return geom.Rct(output.X/2, frac*int32(index-1), output.X/2, frac)
	}
}

// applyLayout assigns every stacked toplevel its slot and reconfigures those
// that are not in the middle of a focus handoff (those get their configure
// from transferFocus, carrying the activation change).
func (s *State) applyLayout(old, current *StackEntry, leaveFromOld bool) {
	handoff := old == nil || current == nil || *old != *current || leaveFromOld
	for index, entry := range s.windowStack {
		c, toplevel, _, _, ok := s.toplevelSurface(entry)
		if !ok {
			continue
		}

		slot := Layout(index, len(s.windowStack), s.OutputSize)
		toplevel.Position = slot.Pos
		size := slot.Size
		toplevel.Size = &size

		isOld := old != nil && *old == entry
		isCurrent := current != nil && *current == entry
		if !(isCurrent && handoff) && !(isOld && leaveFromOld) {
			if err := toplevel.Configure(c); err != nil {
				s.DropClient(entry.FD)
			}
		}
	}
}

// transferFocus moves the keyboard focus and the activated state from old to
// current.
func (s *State) transferFocus(old, current *StackEntry, leaveFromOld bool) {
	if old != nil && current != nil && *old == *current && !leaveFromOld {
		return
	}

	if leaveFromOld && old != nil {
		if c, toplevel, surface, _, ok := s.toplevelSurface(*old); ok {
			serial := c.Display().NextSerial()
			for _, kb := range wl.ObjectsOf[*wl.Keyboard](c) {
				_ = kb.Leave(c, serial, surface.ID())
			}

			toplevel.RemoveState(wl.ToplevelStateActivated)
			if err := toplevel.Configure(c); err != nil {
				s.DropClient(old.FD)
			}
		}
	}

	if current != nil {
		if c, toplevel, surface, _, ok := s.toplevelSurface(*current); ok {
			serial := c.Display().NextSerial()
			for _, kb := range wl.ObjectsOf[*wl.Keyboard](c) {
				_ = kb.Enter(c, serial, surface.ID())
				depressed, latched, locked, group := s.modifiers()
				_ = kb.Modifiers(c, serial, depressed, latched, locked, group)
			}

			toplevel.AddState(wl.ToplevelStateActivated)
			if err := toplevel.Configure(c); err != nil {
				s.DropClient(current.FD)
			}
		}
	}
}

// modifiers reads the xkb modifier state, tolerating a missing keymap.
func (s *State) modifiers() (uint32, uint32, uint32, uint32) {
	if s.Keymap == nil {
		return 0, 0, 0, 0
	}
	return s.Keymap.Modifiers()
}
