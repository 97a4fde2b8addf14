//go:build linux

package wl

import "github.com/tatami-wm/tatami/internal/wire"

// ChangeKind enumerates window-stack mutations journaled during request
// handling and applied between event-loop turns.
type ChangeKind int

const (
	// ChangePush adds a new toplevel to the front of the stack.
	ChangePush ChangeKind = iota

	// ChangeRemoveToplevel drops a destroyed toplevel from the stack.
	ChangeRemoveToplevel

	// ChangeRemoveSurface invalidates pointer focus over a destroyed surface.
	ChangeRemoveSurface

	// ChangeRemoveClient tears down every trace of a disconnected client.
	ChangeRemoveClient

	// ChangePick raises an existing toplevel to the front.
	ChangePick
)

// Change is one journaled window-stack mutation.
type Change struct {
	Kind     ChangeKind
	ClientFD int
	Toplevel wire.ObjectID
	Surface  wire.ObjectID
}
