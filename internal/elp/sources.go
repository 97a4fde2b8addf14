//go:build linux

package elp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// EventFD is an eventfd-backed wakeup channel. Producers (for example an
// input thread) Notify; the loop side Drain()s on readiness.
type EventFD struct {
	fd int
}

// NewEventFD creates a non-blocking eventfd.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("elp: eventfd: %w", err)
	}
	return &EventFD{fd: fd}, nil
}

// FD returns the pollable descriptor.
func (e *EventFD) FD() int {
	return e.fd
}

// Notify increments the counter, waking the loop.
func (e *EventFD) Notify() error {
	buf := [8]byte{0: 1}
	_, err := unix.Write(e.fd, buf[:])
	return err
}

// Drain reads and resets the counter, returning the number of notifies.
func (e *EventFD) Drain() (uint64, error) {
	var buf [8]byte
	if _, err := unix.Read(e.fd, buf[:]); err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return 0, err
	}

	var n uint64
	for i := 7; i >= 0; i-- {
		n = n<<8 | uint64(buf[i])
	}
	return n, nil
}

// Close releases the descriptor.
func (e *EventFD) Close() {
	_ = unix.Close(e.fd)
}

// TimerFD is a CLOCK_MONOTONIC timerfd source.
type TimerFD struct {
	fd int
}

// NewTimerFD creates a non-blocking monotonic timer.
func NewTimerFD() (*TimerFD, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("elp: timerfd: %w", err)
	}
	return &TimerFD{fd: fd}, nil
}

// FD returns the pollable descriptor.
func (t *TimerFD) FD() int {
	return t.fd
}

// ArmAfter arms a one-shot expiry the given milliseconds from now.
func (t *TimerFD) ArmAfter(ms int64) error {
	spec := unix.ItimerSpec{
		Value: unix.Timespec{Sec: ms / 1000, Nsec: (ms % 1000) * 1_000_000},
	}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// Ack consumes an expiry so the fd stops polling readable.
func (t *TimerFD) Ack() error {
	var buf [8]byte
	_, err := unix.Read(t.fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Close releases the descriptor.
func (t *TimerFD) Close() {
	_ = unix.Close(t.fd)
}
