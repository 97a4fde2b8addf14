//go:build linux

package elp

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/wire"
)

// socketpair returns a connected pair, closed with the test.
func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadRequest(t *testing.T) {
	server, client := socketpair(t)

	enc := wire.NewEncoder(32)
	enc.PutUint32(7)
	enc.PutString("hi")
	msg := wire.Message{ObjectID: 3, Opcode: 2, Args: enc.Bytes()}

	data, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(client, data); err != nil {
		t.Fatal(err)
	}

	req, err := ReadRequest(server)
	if err != nil {
		t.Fatal(err)
	}
	if req.Object != 3 || req.Opcode != 2 {
		t.Errorf("header = (%d, %d), want (3, 2)", req.Object, req.Opcode)
	}

	d := wire.NewDecoder(req.Params, nil)
	if v, _ := d.Uint32(); v != 7 {
		t.Errorf("first arg = %d, want 7", v)
	}
	if s, _ := d.String(); s != "hi" {
		t.Errorf("second arg = %q, want hi", s)
	}
}

func TestReadRequestWouldBlock(t *testing.T) {
	server, _ := socketpair(t)

	if _, err := ReadRequest(server); !errors.Is(err, ErrWouldBlock) {
		t.Errorf("empty socket: got %v, want ErrWouldBlock", err)
	}
}

func TestReadRequestShortHeaderIsDisconnect(t *testing.T) {
	server, client := socketpair(t)

	// A client that dies after sending only the 4-byte object id.
	if _, err := unix.Write(client, []byte{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	_ = unix.Close(client)

	if _, err := ReadRequest(server); !errors.Is(err, ErrClientClosed) {
		t.Errorf("short header: got %v, want ErrClientClosed", err)
	}
}

func TestReadRequestEOF(t *testing.T) {
	server, client := socketpair(t)
	_ = unix.Close(client)

	if _, err := ReadRequest(server); !errors.Is(err, ErrClientClosed) {
		t.Errorf("EOF: got %v, want ErrClientClosed", err)
	}
}

func TestReadRequestWithFDs(t *testing.T) {
	server, client := socketpair(t)

	passFD, err := unix.MemfdCreate("payload", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(passFD)

	msg := wire.Message{ObjectID: 5, Opcode: 0}
	data, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}

	rights := unix.UnixRights(passFD)
	if err := unix.Sendmsg(client, data, rights, nil, 0); err != nil {
		t.Fatal(err)
	}

	req, err := ReadRequest(server)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.FDs) != 1 {
		t.Fatalf("got %d fds, want 1", len(req.FDs))
	}
	_ = unix.Close(req.FDs[0])
}

func TestEventFD(t *testing.T) {
	e, err := NewEventFD()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if err := e.Notify(); err != nil {
		t.Fatal(err)
	}
	if err := e.Notify(); err != nil {
		t.Fatal(err)
	}

	n, err := e.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("drained %d, want 2", n)
	}

	// Drained eventfd reads empty.
	if n, _ := e.Drain(); n != 0 {
		t.Errorf("second drain = %d, want 0", n)
	}
}

func TestLoopDispatchesReadySource(t *testing.T) {
	loop := New()

	e, err := NewEventFD()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	fired := 0
	loop.Add(e.FD(), func() (bool, error) {
		fired++
		_, err := e.Drain()
		return true, err
	})

	if err := e.Notify(); err != nil {
		t.Fatal(err)
	}
	if err := loop.Turn(); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Errorf("callback fired %d times, want 1", fired)
	}

	// remove=true unregistered the source.
	if len(loop.sources) != 0 {
		t.Errorf("source not removed")
	}
}

func TestTimerFD(t *testing.T) {
	timer, err := NewTimerFD()
	if err != nil {
		t.Fatal(err)
	}
	defer timer.Close()

	if err := timer.ArmAfter(1); err != nil {
		t.Fatal(err)
	}

	fds := []unix.PollFd{{Fd: int32(timer.FD()), Events: unix.POLLIN}}
	if _, err := unix.Poll(fds, 1000); err != nil {
		t.Fatal(err)
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		t.Fatal("timer never fired")
	}
	if err := timer.Ack(); err != nil {
		t.Fatal(err)
	}
}
