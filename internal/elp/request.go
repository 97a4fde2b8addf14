//go:build linux

package elp

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/wire"
)

// Request is one decoded-but-untyped client request read off a socket.
type Request struct {
	Object wire.ObjectID
	Opcode wire.Opcode
	Params []byte
	FDs    []int
}

// ErrClientClosed marks an orderly or abrupt client hangup, including a
// short read in the middle of a header.
var ErrClientClosed = errors.New("elp: client closed connection")

// ErrWouldBlock means the socket has no complete header queued; the caller
// returns to the poll loop.
var ErrWouldBlock = errors.New("elp: no request pending")

// ReadRequest reads exactly one request from a client socket: the 8-byte
// header with any SCM_RIGHTS ancillary fds in the same recvmsg, then the
// known-size body. The header read does not block so the caller can drain
// a readable socket to exhaustion; the body read is a small atomic
// blocking operation.
func ReadRequest(fd int) (*Request, error) {
	header := make([]byte, wire.HeaderSize)
	oob := make([]byte, 256)

	n, oobn, _, _, err := unix.Recvmsg(fd, header, oob, unix.MSG_CMSG_CLOEXEC|unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		if errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE) {
			return nil, ErrClientClosed
		}
		return nil, fmt.Errorf("elp: recvmsg: %w", err)
	}
	if n < wire.HeaderSize {
		// EOF, or a torn header from a client that died mid-write.
		return nil, ErrClientClosed
	}

	fds, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, err
	}

	object, opcode, size, err := wire.ParseHeader(header)
	if err != nil {
		return nil, err
	}

	params := make([]byte, size-wire.HeaderSize)
	for read := 0; read < len(params); {
		n, err := unix.Read(fd, params[read:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, ErrClientClosed
		}
		if n == 0 {
			return nil, ErrClientClosed
		}
		read += n
	}

	return &Request{Object: object, Opcode: opcode, Params: params, FDs: fds}, nil
}

// parseRights extracts SCM_RIGHTS fds from ancillary data.
func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("elp: parse control message: %w", err)
	}

	var fds []int
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		got, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("elp: parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}
