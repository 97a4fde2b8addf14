//go:build linux

// Package drm speaks the kernel mode-setting interface directly: resource
// discovery, connector/CRTC/plane properties, framebuffer registration,
// property blobs and atomic commits, plus the page-flip event stream.
package drm

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers, _IOWR('d', nr, size).
const (
	ioctlSetClientCap      = 0x0D
	ioctlModeGetResources  = 0xA0
	ioctlModeGetCrtc       = 0xA1
	ioctlModeSetCrtc       = 0xA2
	ioctlModeGetEncoder    = 0xA6
	ioctlModeGetConnector  = 0xA7
	ioctlModeGetProperty   = 0xAA
	ioctlModeAddFB         = 0xAE
	ioctlModePageFlip      = 0xB0
	ioctlModeGetPlaneRes   = 0xB5
	ioctlModeGetPlane      = 0xB6
	ioctlModeAddFB2        = 0xB8
	ioctlModeObjGetProps   = 0xB9
	ioctlModeAtomic        = 0xBC
	ioctlModeCreatePropBlob = 0xBD
)

// Client capabilities.
const (
	CapUniversalPlanes uint64 = 2
	CapAtomic          uint64 = 3
)

// Connector connection states.
const (
	ConnectionConnected uint32 = 1
)

// Mode type flag: the connector's preferred mode.
const ModeTypePreferred uint32 = 1 << 3

// Object types for OBJ_GET_PROPERTIES.
const (
	ObjectCrtc      uint32 = 0xCCCCCCCC
	ObjectConnector uint32 = 0xC0C0C0C0
	ObjectPlane     uint32 = 0xEEEEEEEE
)

// Plane type property values.
const (
	PlaneTypeOverlay uint64 = 0
	PlaneTypePrimary uint64 = 1
	PlaneTypeCursor  uint64 = 2
)

// Atomic commit flags.
const (
	FlagPageFlipEvent uint32 = 0x1
	FlagAtomicNonblock uint32 = 0x200
	FlagAllowModeset  uint32 = 0x400
)

// ErrBusy marks an atomic commit rejected because a flip is outstanding;
// the compositor defers until the pending page-flip lands.
var ErrBusy = errors.New("drm: commit would block on pending flip")

// Device is an open DRM card node.
type Device struct {
	f *os.File
}

// Open opens the card node read-write.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("drm: open %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// OpenFD adopts an already-open card fd, e.g. one leased from logind.
func OpenFD(fd int, name string) *Device {
	return &Device{f: os.NewFile(uintptr(fd), name)}
}

// FD returns the device descriptor for polling.
func (d *Device) FD() int {
	return int(d.f.Fd())
}

// Rdev returns the device number, published in dmabuf feedback.
func (d *Device) Rdev() (uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(d.FD(), &st); err != nil {
		return 0, fmt.Errorf("drm: fstat: %w", err)
	}
	return uint64(st.Rdev), nil
}

// Close releases the node.
func (d *Device) Close() error {
	return d.f.Close()
}

// iowr builds a _IOWR('d', nr, size) request number.
func iowr(nr, size uintptr) uintptr {
	const (
		write = 1
		read  = 2
	)
	return (read|write)<<30 | size<<16 | 'd'<<8 | nr
}

// ioctl issues one request, retrying EINTR.
func (d *Device) ioctl(nr uintptr, arg unsafe.Pointer, size uintptr) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), iowr(nr, size), uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

// SetClientCap enables a client capability (universal planes, atomic).
func (d *Device) SetClientCap(capability, value uint64) error {
	arg := clientCap{Capability: capability, Value: value}
	if err := d.ioctl(ioctlSetClientCap, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return fmt.Errorf("drm: set client cap %d: %w", capability, err)
	}
	return nil
}

// Resources enumerates the card's fbs, CRTCs, connectors and encoders. The
// kernel tells us the counts on the first call; the second fills the arrays.
func (d *Device) Resources() (*Resources, error) {
	var arg cardRes
	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get resources: %w", err)
	}

	res := &Resources{
		FBs:        make([]uint32, arg.CountFBs),
		CRTCs:      make([]uint32, arg.CountCRTCs),
		Connectors: make([]uint32, arg.CountConnectors),
		Encoders:   make([]uint32, arg.CountEncoders),
	}

	if arg.CountFBs > 0 {
		arg.FBIDPtr = uint64(uintptr(unsafe.Pointer(&res.FBs[0])))
	}
	if arg.CountCRTCs > 0 {
		arg.CRTCIDPtr = uint64(uintptr(unsafe.Pointer(&res.CRTCs[0])))
	}
	if arg.CountConnectors > 0 {
		arg.ConnectorIDPtr = uint64(uintptr(unsafe.Pointer(&res.Connectors[0])))
	}
	if arg.CountEncoders > 0 {
		arg.EncoderIDPtr = uint64(uintptr(unsafe.Pointer(&res.Encoders[0])))
	}

	if err := d.ioctl(ioctlModeGetResources, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get resources: %w", err)
	}
	return res, nil
}

// Connector fetches one connector with its modes.
func (d *Device) Connector(id uint32) (*Connector, error) {
	var arg getConnector
	arg.ConnectorID = id
	if err := d.ioctl(ioctlModeGetConnector, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get connector %d: %w", id, err)
	}

	conn := &Connector{
		ID:         id,
		Type:       arg.ConnectorType,
		Connection: arg.Connection,
		PhysMM:     [2]uint32{arg.MMWidth, arg.MMHeight},
		EncoderID:  arg.EncoderID,
		Modes:      make([]ModeInfo, arg.CountModes),
	}

	props := make([]uint32, arg.CountProps)
	values := make([]uint64, arg.CountProps)
	encoders := make([]uint32, arg.CountEncoders)

	if arg.CountModes > 0 {
		arg.ModesPtr = uint64(uintptr(unsafe.Pointer(&conn.Modes[0])))
	}
	if arg.CountProps > 0 {
		arg.PropsPtr = uint64(uintptr(unsafe.Pointer(&props[0])))
		arg.PropValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}
	if arg.CountEncoders > 0 {
		arg.EncodersPtr = uint64(uintptr(unsafe.Pointer(&encoders[0])))
	}

	if err := d.ioctl(ioctlModeGetConnector, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get connector %d: %w", id, err)
	}

	conn.Modes = conn.Modes[:arg.CountModes]
	return conn, nil
}

// Encoder fetches one encoder.
func (d *Device) Encoder(id uint32) (*Encoder, error) {
	var arg getEncoder
	arg.EncoderID = id
	if err := d.ioctl(ioctlModeGetEncoder, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get encoder %d: %w", id, err)
	}
	return &Encoder{
		ID:            arg.EncoderID,
		CrtcID:        arg.CrtcID,
		PossibleCrtcs: arg.PossibleCrtcs,
	}, nil
}

// Crtc fetches one CRTC.
func (d *Device) Crtc(id uint32) (*Crtc, error) {
	var arg crtcArg
	arg.CrtcID = id
	if err := d.ioctl(ioctlModeGetCrtc, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get crtc %d: %w", id, err)
	}
	return &Crtc{ID: arg.CrtcID, FBID: arg.FBID, ModeValid: arg.ModeValid != 0, Mode: arg.Mode}, nil
}

// PlaneResources enumerates plane IDs.
func (d *Device) PlaneResources() ([]uint32, error) {
	var arg planeRes
	if err := d.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get plane resources: %w", err)
	}

	planes := make([]uint32, arg.CountPlanes)
	if arg.CountPlanes > 0 {
		arg.PlaneIDPtr = uint64(uintptr(unsafe.Pointer(&planes[0])))
	}

	if err := d.ioctl(ioctlModeGetPlaneRes, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get plane resources: %w", err)
	}
	return planes[:arg.CountPlanes], nil
}

// Plane fetches one plane.
func (d *Device) Plane(id uint32) (*Plane, error) {
	var arg getPlane
	arg.PlaneID = id
	if err := d.ioctl(ioctlModeGetPlane, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get plane %d: %w", id, err)
	}
	return &Plane{ID: arg.PlaneID, CrtcID: arg.CrtcID, PossibleCrtcs: arg.PossibleCrtcs}, nil
}

// CreateBlob uploads opaque property data (a mode, for CRTC.MODE_ID) and
// returns the blob id.
func (d *Device) CreateBlob(data []byte) (uint32, error) {
	arg := createBlob{
		Data:   uint64(uintptr(unsafe.Pointer(&data[0]))),
		Length: uint32(len(data)),
	}
	if err := d.ioctl(ioctlModeCreatePropBlob, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return 0, fmt.Errorf("drm: create blob: %w", err)
	}
	return arg.BlobID, nil
}

// AddFB2 registers a framebuffer over buffer-object handles with per-plane
// pitches, offsets and an explicit modifier.
func (d *Device) AddFB2(width, height, fourcc uint32, handles, pitches, offsets [4]uint32, modifiers [4]uint64) (uint32, error) {
	const modifiersFlag = 1 << 1

	arg := fbCmd2{
		Width:       width,
		Height:      height,
		PixelFormat: fourcc,
		Flags:       modifiersFlag,
		Handles:     handles,
		Pitches:     pitches,
		Offsets:     offsets,
		Modifier:    modifiers,
	}
	if err := d.ioctl(ioctlModeAddFB2, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return 0, fmt.Errorf("drm: add fb2 %dx%d: %w", width, height, err)
	}
	return arg.FBID, nil
}

// AddFB registers a legacy single-plane framebuffer.
func (d *Device) AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	arg := fbCmd{
		Width:  width,
		Height: height,
		Pitch:  pitch,
		BPP:    uint32(bpp),
		Depth:  uint32(depth),
		Handle: handle,
	}
	if err := d.ioctl(ioctlModeAddFB, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return 0, fmt.Errorf("drm: add fb %dx%d: %w", width, height, err)
	}
	return arg.FBID, nil
}

// SetCrtc programs a CRTC through the legacy path. The atomic path is the
// one the output loop uses; this remains for recovery modesets.
func (d *Device) SetCrtc(crtcID, fbID uint32, connectors []uint32, mode *ModeInfo) error {
	var arg crtcArg
	arg.CrtcID = crtcID
	arg.FBID = fbID
	if len(connectors) > 0 {
		arg.SetConnectorsPtr = uint64(uintptr(unsafe.Pointer(&connectors[0])))
		arg.CountConnectors = uint32(len(connectors))
	}
	if mode != nil {
		arg.Mode = *mode
		arg.ModeValid = 1
	}

	if err := d.ioctl(ioctlModeSetCrtc, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return fmt.Errorf("drm: set crtc %d: %w", crtcID, err)
	}
	return nil
}

// PageFlip schedules a legacy page flip with an event.
func (d *Device) PageFlip(crtcID, fbID uint32, userData uint64) error {
	arg := crtcPageFlip{
		CrtcID:   crtcID,
		FBID:     fbID,
		Flags:    FlagPageFlipEvent,
		UserData: userData,
	}
	if err := d.ioctl(ioctlModePageFlip, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return ErrBusy
		}
		return fmt.Errorf("drm: page flip: %w", err)
	}
	return nil
}
