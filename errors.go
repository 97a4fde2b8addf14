package tatami

import "errors"

// Common errors.
var (
	// ErrCompositorRunning means the socket lock is held by another
	// compositor instance.
	ErrCompositorRunning = errors.New("tatami: another compositor owns this socket")

	// ErrNoRuntimeDir means XDG_RUNTIME_DIR is unset, so there is nowhere
	// to create the socket.
	ErrNoRuntimeDir = errors.New("tatami: XDG_RUNTIME_DIR not set")
)
