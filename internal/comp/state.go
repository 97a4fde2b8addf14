//go:build linux

// Package comp holds the single compositor state value threaded through
// every event-loop callback: connected clients, the window stack, pointer
// and keyboard focus, and the change reconciler that keeps them coherent.
package comp

import (
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
	"github.com/tatami-wm/tatami/internal/wl"
)

// Keymap is the compositor's view of the xkb state. Raw evdev codes go in,
// wayland modifier masks come out.
type Keymap interface {
	// UpdateKey feeds a key transition into the xkb state machine.
	UpdateKey(code uint32, pressed bool)

	// Modifiers returns the serialized depressed, latched and locked
	// modifier masks and the active group.
	Modifiers() (depressed, latched, locked, group uint32)
}

// StackEntry identifies one toplevel in the window stack.
type StackEntry struct {
	FD       int
	Toplevel wire.ObjectID
}

// PointerOver records which surface currently holds pointer focus.
type PointerOver struct {
	FD       int
	Toplevel wire.ObjectID
	Surface  wire.ObjectID
	Pos      geom.Point
}

// State is the compositor's entire mutable world. It is owned by the event
// loop and never accessed concurrently.
type State struct {
	Clients map[int]*wl.Client

	// clientOrder preserves connection order so change draining is
	// deterministic.
	clientOrder []int

	// windowStack is ordered front (focused) to back.
	windowStack []StackEntry

	pointerOver *PointerOver

	// cursorX/Y accumulate unaccelerated deltas; Cursor is the clamped
	// integer position.
	cursorX, cursorY float64
	Cursor           geom.Point

	OutputSize geom.Point

	Keymap Keymap

	// SocketName is exported to spawned clients as WAYLAND_DISPLAY.
	SocketName string

	// Terminal is the command launched by the spawn hotkey.
	Terminal string

	changes []wl.Change
	quit    bool

	log zerolog.Logger
}

// NewState creates an empty compositor state for one output.
func NewState(outputSize geom.Point, log zerolog.Logger) *State {
	return &State{
		Clients:    make(map[int]*wl.Client),
		OutputSize: outputSize,
		Terminal:   "foot",
		log:        log,
	}
}

// Log returns the compositor-scoped logger.
func (s *State) Log() *zerolog.Logger {
	return &s.log
}

// Quit reports whether a shutdown was requested.
func (s *State) Quit() bool {
	return s.quit
}

// RequestQuit asks the event loop to exit after the current turn.
func (s *State) RequestQuit() {
	s.quit = true
}

// AddClient registers a new connection.
func (s *State) AddClient(c *wl.Client) {
	s.Clients[c.FD()] = c
	s.clientOrder = append(s.clientOrder, c.FD())
}

// DropClient tears a client down cooperatively: its socket closes, its
// stack entries and focus go away in the next reconcile, and no partial
// state stays visible to other clients.
func (s *State) DropClient(fd int) {
	c, ok := s.Clients[fd]
	if !ok {
		return
	}

	c.Close()
	s.changes = append(s.changes, wl.Change{Kind: wl.ChangeRemoveClient, ClientFD: fd})
	s.log.Info().Int("client", fd).Msg("client disconnected")
}

// WindowStack returns the current stack, front first.
func (s *State) WindowStack() []StackEntry {
	return s.windowStack
}

// FocusedWindow returns the front stack entry.
func (s *State) FocusedWindow() (StackEntry, bool) {
	if len(s.windowStack) == 0 {
		return StackEntry{}, false
	}
	return s.windowStack[0], true
}

// PointerFocus returns the surface under the cursor.
func (s *State) PointerFocus() *PointerOver {
	return s.pointerOver
}

// PushChange journals a compositor-originated change.
func (s *State) PushChange(ch wl.Change) {
	s.changes = append(s.changes, ch)
}

// drainChanges collects the compositor's and every client's journal, in
// connection order.
func (s *State) drainChanges() []wl.Change {
	changes := s.changes
	s.changes = nil

	for _, fd := range s.clientOrder {
		if c, ok := s.Clients[fd]; ok {
			changes = append(changes, c.DrainChanges()...)
		}
	}
	return changes
}

// FlushClients writes every client's pending events, dropping clients whose
// socket went away.
func (s *State) FlushClients() {
	for fd, c := range s.Clients {
		if err := c.Flush(); err != nil {
			s.DropClient(fd)
		}
	}
}

// spawnTerminal launches the configured terminal scoped to this
// compositor's socket.
func (s *State) spawnTerminal() {
	cmd := exec.Command(s.Terminal)
	cmd.Env = append(cmd.Environ(), "WAYLAND_DISPLAY="+s.SocketName)

	if err := cmd.Start(); err != nil {
		s.log.Warn().Err(err).Str("terminal", s.Terminal).Msg("spawn failed")
		return
	}
	go func() { _ = cmd.Wait() }()
}

// toplevelSurface resolves a stack entry down to its wl_surface and the
// output position of its content.
func (s *State) toplevelSurface(entry StackEntry) (*wl.Client, *wl.XdgToplevel, *wl.Surface, geom.Point, bool) {
	c, ok := s.Clients[entry.FD]
	if !ok {
		return nil, nil, nil, geom.Point{}, false
	}

	toplevel, err := wl.Get[*wl.XdgToplevel](c, entry.Toplevel)
	if err != nil {
		return nil, nil, nil, geom.Point{}, false
	}
	xdg, err := wl.Get[*wl.XdgSurface](c, toplevel.XdgSurfaceID())
	if err != nil {
		return nil, nil, nil, geom.Point{}, false
	}
	surface, err := wl.Get[*wl.Surface](c, xdg.SurfaceID())
	if err != nil {
		return nil, nil, nil, geom.Point{}, false
	}

	return c, toplevel, surface, toplevel.Position.Sub(xdg.Position), true
}
