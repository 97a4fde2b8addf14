//go:build linux

package drm

// Kernel ABI structs. Layouts match drm_mode.h; pointers travel as u64.

type clientCap struct {
	Capability uint64
	Value      uint64
}

type cardRes struct {
	FBIDPtr         uint64
	CRTCIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFBs        uint32
	CountCRTCs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type getConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MMWidth         uint32
	MMHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type getEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// ModeInfo is a display timing. The refresh in millihertz derives from the
// pixel clock and totals.
type ModeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

// RefreshMHz returns the vertical refresh in millihertz.
func (m *ModeInfo) RefreshMHz() int32 {
	if m.HTotal == 0 || m.VTotal == 0 {
		return int32(m.VRefresh) * 1000
	}
	return int32(uint64(m.Clock) * 1_000_000 / (uint64(m.HTotal) * uint64(m.VTotal)))
}

// Preferred reports whether this is the connector's preferred mode.
func (m *ModeInfo) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

type crtcArg struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FBID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             ModeInfo
}

type crtcPageFlip struct {
	CrtcID   uint32
	FBID     uint32
	Flags    uint32
	Reserved uint32
	UserData uint64
}

type planeRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	_           uint32
}

type getPlane struct {
	PlaneID       uint32
	CrtcID        uint32
	FBID          uint32
	PossibleCrtcs uint32
	GammaSize     uint32
	CountFormats  uint32
	FormatTypePtr uint64
}

type fbCmd struct {
	FBID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	BPP    uint32
	Depth  uint32
	Handle uint32
}

type fbCmd2 struct {
	FBID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	Modifier    [4]uint64
}

type objGetProps struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
}

type getProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [32]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

type createBlob struct {
	Data   uint64
	Length uint32
	BlobID uint32
}

type atomicArg struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

// Resources lists the card's mode-setting objects.
type Resources struct {
	FBs        []uint32
	CRTCs      []uint32
	Connectors []uint32
	Encoders   []uint32
}

// CrtcIndex returns the bit index of a CRTC id, as used in possible_crtcs
// masks.
func (r *Resources) CrtcIndex(crtcID uint32) int {
	for i, id := range r.CRTCs {
		if id == crtcID {
			return i
		}
	}
	return -1
}

// Connector is a physical output port.
type Connector struct {
	ID         uint32
	Type       uint32
	Connection uint32
	PhysMM     [2]uint32
	EncoderID  uint32
	Modes      []ModeInfo
}

// Connected reports an attached display.
func (c *Connector) Connected() bool {
	return c.Connection == ConnectionConnected
}

// PreferredMode picks the preferred mode, falling back to the first.
func (c *Connector) PreferredMode() (ModeInfo, bool) {
	for _, mode := range c.Modes {
		if mode.Preferred() {
			return mode, true
		}
	}
	if len(c.Modes) > 0 {
		return c.Modes[0], true
	}
	return ModeInfo{}, false
}

// Encoder routes a connector to a CRTC.
type Encoder struct {
	ID            uint32
	CrtcID        uint32
	PossibleCrtcs uint32
}

// Crtc is a scanout engine.
type Crtc struct {
	ID        uint32
	FBID      uint32
	ModeValid bool
	Mode      ModeInfo
}

// Plane is a scanout layer bound to a CRTC.
type Plane struct {
	ID            uint32
	CrtcID        uint32
	PossibleCrtcs uint32
}
