//go:build linux

package drm

import (
	"fmt"

	"golang.org/x/sys/unix"
	"honnef.co/go/safeish"
)

// Event record layout: u32 type | u32 length | payload. FLIP_COMPLETE
// events carry a vblank payload; everything else is skipped by length.
const (
	eventFlipComplete uint32 = 0x02
	eventRecordSize          = 32
)

// eventVBlank is the kernel's drm_event_vblank, including the leading
// drm_event header.
type eventVBlank struct {
	Type     uint32
	Length   uint32
	UserData uint64
	TvSec    uint32
	TvUsec   uint32
	Sequence uint32
	CrtcID   uint32
}

// FlipEvent is one page-flip completion.
type FlipEvent struct {
	UserData uint64
	TvSec    uint32
	TvUsec   uint32
	Sequence uint32
	CrtcID   uint32
}

// ReadEvents drains the device fd and returns the flip completions. Other
// event types are skipped by their declared length.
func (d *Device) ReadEvents() ([]FlipEvent, error) {
	buf := make([]byte, 4096)

	n, err := unix.Read(d.FD(), buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("drm: read events: %w", err)
	}

	return parseEvents(buf[:n])
}

// parseEvents walks the packed event records.
func parseEvents(buf []byte) ([]FlipEvent, error) {
	var events []FlipEvent

	for len(buf) >= 8 {
		header := safeish.Cast[*eventVBlank](&buf[0])
		if header.Length < 8 || int(header.Length) > len(buf) {
			return events, fmt.Errorf("drm: truncated event record (len %d of %d)", header.Length, len(buf))
		}

		if header.Type == eventFlipComplete && header.Length >= eventRecordSize {
			events = append(events, FlipEvent{
				UserData: header.UserData,
				TvSec:    header.TvSec,
				TvUsec:   header.TvUsec,
				Sequence: header.Sequence,
				CrtcID:   header.CrtcID,
			})
		}

		buf = buf[header.Length:]
	}

	return events, nil
}
