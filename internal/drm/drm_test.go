//go:build linux

package drm

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

func TestIoctlNumbers(t *testing.T) {
	// Cross-checked against drm.h on amd64.
	tests := []struct {
		name string
		nr   uintptr
		size uintptr
		want uintptr
	}{
		{"GET_RESOURCES", ioctlModeGetResources, unsafe.Sizeof(cardRes{}), 0xC04064A0},
		{"GET_CONNECTOR", ioctlModeGetConnector, unsafe.Sizeof(getConnector{}), 0xC05064A7},
		{"SET_CLIENT_CAP", ioctlSetClientCap, unsafe.Sizeof(clientCap{}), 0xC010640D},
		{"ATOMIC", ioctlModeAtomic, unsafe.Sizeof(atomicArg{}), 0xC03864BC},
		{"ADD_FB2", ioctlModeAddFB2, unsafe.Sizeof(fbCmd2{}), 0xC06864B8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := iowr(tt.nr, tt.size); got != tt.want {
				t.Errorf("iowr(%#x, %d) = %#x, want %#x", tt.nr, tt.size, got, tt.want)
			}
		})
	}
}

func TestStructSizes(t *testing.T) {
	tests := []struct {
		name string
		size uintptr
		want uintptr
	}{
		{"cardRes", unsafe.Sizeof(cardRes{}), 64},
		{"getConnector", unsafe.Sizeof(getConnector{}), 80},
		{"ModeInfo", unsafe.Sizeof(ModeInfo{}), 68},
		{"atomicArg", unsafe.Sizeof(atomicArg{}), 56},
		{"fbCmd2", unsafe.Sizeof(fbCmd2{}), 104},
		{"eventVBlank", unsafe.Sizeof(eventVBlank{}), 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.size != tt.want {
				t.Errorf("sizeof = %d, want %d", tt.size, tt.want)
			}
		})
	}
}

// record serializes one event record for parse tests.
func record(typ, length uint32, userData uint64, tvSec, tvUsec, seq, crtc uint32) []byte {
	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:], typ)
	binary.LittleEndian.PutUint32(buf[4:], length)
	if length >= 32 {
		binary.LittleEndian.PutUint64(buf[8:], userData)
		binary.LittleEndian.PutUint32(buf[16:], tvSec)
		binary.LittleEndian.PutUint32(buf[20:], tvUsec)
		binary.LittleEndian.PutUint32(buf[24:], seq)
		binary.LittleEndian.PutUint32(buf[28:], crtc)
	}
	return buf
}

func TestParseEvents(t *testing.T) {
	var buf []byte
	buf = append(buf, record(0x01, 32, 0, 0, 0, 0, 0)...) // vblank, skipped
	buf = append(buf, record(0x02, 32, 7, 100, 500, 42, 9)...)
	buf = append(buf, record(0x02, 32, 8, 101, 0, 43, 9)...)

	events, err := parseEvents(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d flip events, want 2", len(events))
	}

	if events[0].UserData != 7 || events[0].TvSec != 100 || events[0].TvUsec != 500 ||
		events[0].Sequence != 42 || events[0].CrtcID != 9 {
		t.Errorf("first event wrong: %+v", events[0])
	}
	if events[1].Sequence != 43 {
		t.Errorf("second event sequence = %d, want 43", events[1].Sequence)
	}
}

func TestParseEventsTruncated(t *testing.T) {
	buf := record(0x02, 32, 1, 2, 3, 4, 5)
	if _, err := parseEvents(buf[:20]); err == nil {
		t.Error("truncated record parsed without error")
	}
}

func TestAtomicRequestGrouping(t *testing.T) {
	req := NewAtomicRequest()
	req.Add(40, 1, 10) // connector
	req.Add(50, 2, 20) // crtc
	req.Add(50, 3, 30)
	req.Add(60, 4, 40) // plane
	req.Add(60, 5, 50)
	req.Add(60, 6, 60)

	objs, counts, props, values := req.group()

	wantObjs := []uint32{40, 50, 60}
	wantCounts := []uint32{1, 2, 3}
	if len(objs) != 3 {
		t.Fatalf("objs = %v", objs)
	}
	for i := range wantObjs {
		if objs[i] != wantObjs[i] || counts[i] != wantCounts[i] {
			t.Errorf("group %d = (%d, %d), want (%d, %d)", i, objs[i], counts[i], wantObjs[i], wantCounts[i])
		}
	}
	if len(props) != 6 || len(values) != 6 {
		t.Fatalf("flattened %d props / %d values, want 6", len(props), len(values))
	}
	if props[3] != 4 || values[3] != 40 {
		t.Errorf("prop order broken: %v %v", props, values)
	}
}

func TestModeRefresh(t *testing.T) {
	// 2560x1440@144: clock 586 MHz, totals 2720x1481.
	mode := ModeInfo{
		Clock:    586594,
		HDisplay: 2560,
		HTotal:   2720,
		VDisplay: 1440,
		VTotal:   1481,
		VRefresh: 144,
	}

	mhz := mode.RefreshMHz()
	if mhz < 145000 || mhz > 146000 {
		t.Errorf("refresh = %d mHz, want ~145630", mhz)
	}

	// Zero totals fall back to the coarse field.
	coarse := ModeInfo{VRefresh: 60}
	if got := coarse.RefreshMHz(); got != 60000 {
		t.Errorf("fallback refresh = %d, want 60000", got)
	}
}

func TestPreferredMode(t *testing.T) {
	conn := Connector{
		Modes: []ModeInfo{
			{HDisplay: 1920, VDisplay: 1080},
			{HDisplay: 2560, VDisplay: 1440, Type: ModeTypePreferred},
		},
	}

	mode, ok := conn.PreferredMode()
	if !ok || mode.HDisplay != 2560 {
		t.Errorf("preferred mode = %+v", mode)
	}

	// Without a preferred flag the first mode wins.
	conn.Modes[1].Type = 0
	mode, _ = conn.PreferredMode()
	if mode.HDisplay != 1920 {
		t.Errorf("fallback mode = %+v", mode)
	}
}
