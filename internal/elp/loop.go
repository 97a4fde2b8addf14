//go:build linux

// Package elp is the single-threaded event loop multiplexing every fd the
// compositor owns: the listener, client sockets, the DRM device, libinput,
// eventfds and timerfds. Sources register a callback; each Turn polls once
// and dispatches the ready sources.
package elp

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Callback services one readable fd. Returning remove=true unregisters the
// source after the call.
type Callback func() (remove bool, err error)

// Loop is a poll(2) multiplexer over registered sources.
type Loop struct {
	sources map[int]Callback
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{sources: make(map[int]Callback)}
}

// Add registers a callback for a readable fd.
func (l *Loop) Add(fd int, cb Callback) {
	l.sources[fd] = cb
}

// Remove unregisters a source.
func (l *Loop) Remove(fd int) {
	delete(l.sources, fd)
}

// Turn blocks until at least one source is ready and dispatches every ready
// one. EINTR restarts the wait.
func (l *Loop) Turn() error {
	fds := make([]unix.PollFd, 0, len(l.sources))
	for fd := range l.sources {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("elp: poll: %w", err)
		}
	}

	for _, pfd := range fds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}

		cb, ok := l.sources[int(pfd.Fd)]
		if !ok {
			// Removed by an earlier callback in this turn.
			continue
		}

		remove, err := cb()
		if remove {
			l.Remove(int(pfd.Fd))
		}
		if err != nil {
			return err
		}
	}

	return nil
}
