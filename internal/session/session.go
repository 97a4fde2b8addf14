//go:build linux

// Package session negotiates device access with systemd-logind over D-Bus
// so the compositor can open DRM and input nodes without running as root.
// When no logind session is available it falls back to opening devices
// directly, which works from a TTY the user owns.
package session

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const (
	logindService  = "org.freedesktop.login1"
	logindManager  = "/org/freedesktop/login1"
	sessionIface   = "org.freedesktop.login1.Session"
	managerIface   = "org.freedesktop.login1.Manager"
)

// Session is a logind-controlled seat session, or a direct-open fallback.
type Session struct {
	conn    *dbus.Conn
	session dbus.BusObject
}

// Take connects to the system bus and takes control of the caller's
// session. A nil *Session with nil error means no logind is available and
// devices should be opened directly.
func Take() (*Session, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, nil
	}

	manager := conn.Object(logindService, logindManager)

	var sessionPath dbus.ObjectPath
	call := manager.Call(managerIface+".GetSessionByPID", 0, uint32(os.Getpid()))
	if call.Err != nil || call.Store(&sessionPath) != nil {
		_ = conn.Close()
		return nil, nil
	}

	session := conn.Object(logindService, sessionPath)
	if call := session.Call(sessionIface+".TakeControl", 0, false); call.Err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session: TakeControl: %w", call.Err)
	}

	return &Session{conn: conn, session: session}, nil
}

// OpenDevice opens a device node, through logind when controlled, directly
// otherwise.
func (s *Session) OpenDevice(path string) (int, error) {
	if s == nil {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err != nil {
			return -1, fmt.Errorf("session: open %s: %w", path, err)
		}
		return fd, nil
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return -1, fmt.Errorf("session: stat %s: %w", path, err)
	}

	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))

	var fd dbus.UnixFD
	var inactive bool
	call := s.session.Call(sessionIface+".TakeDevice", 0, major, minor)
	if call.Err != nil {
		return -1, fmt.Errorf("session: TakeDevice %s: %w", path, call.Err)
	}
	if err := call.Store(&fd, &inactive); err != nil {
		return -1, fmt.Errorf("session: TakeDevice reply: %w", err)
	}

	return int(fd), nil
}

// Release gives control back to logind.
func (s *Session) Release() {
	if s == nil {
		return
	}
	_ = s.session.Call(sessionIface+".ReleaseControl", 0).Err
	_ = s.conn.Close()
}
