//go:build linux && cgo

// Package output drives the physical display: modeset selection, the GBM
// swapchain, and the atomic commit/page-flip rendezvous that paces the
// compositor.
package output

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tatami-wm/tatami/internal/drm"
	"github.com/tatami-wm/tatami/internal/gbm"
	"github.com/tatami-wm/tatami/internal/geom"
)

// ErrNoOutput means no connected connector (or no usable mode/plane) was
// found; fatal at startup.
var ErrNoOutput = errors.New("output: no usable connector")

// Screen is the single output: one connector, one CRTC, one primary plane,
// one GBM swapchain sized to the mode.
type Screen struct {
	dev *drm.Device

	connector *drm.Connector
	mode      drm.ModeInfo
	crtcID    uint32
	planeID   uint32

	connProps  *drm.Properties
	crtcProps  *drm.Properties
	planeProps *drm.Properties

	modeBlob uint32

	gbmDev     *gbm.Device
	gbmSurface *gbm.Surface

	// pending is the BO submitted in the in-flight commit; displayed is
	// the one currently scanned out.
	pending   *gbm.BO
	displayed *gbm.BO

	needsModeset bool
	flipPending  bool
	deferred     bool
	sequence     uint64

	log zerolog.Logger
}

// NewScreen picks the first connected connector, its preferred mode, the
// CRTC its encoder points at, and the primary plane that can feed that
// CRTC, then builds the swapchain.
func NewScreen(dev *drm.Device, log zerolog.Logger) (*Screen, error) {
	if err := dev.SetClientCap(drm.CapUniversalPlanes, 1); err != nil {
		return nil, err
	}
	if err := dev.SetClientCap(drm.CapAtomic, 1); err != nil {
		return nil, err
	}

	resources, err := dev.Resources()
	if err != nil {
		return nil, err
	}

	var connector *drm.Connector
	for _, id := range resources.Connectors {
		conn, err := dev.Connector(id)
		if err != nil {
			return nil, err
		}
		if conn.Connected() {
			connector = conn
			break
		}
	}
	if connector == nil {
		return nil, ErrNoOutput
	}

	mode, ok := connector.PreferredMode()
	if !ok {
		return nil, fmt.Errorf("%w: connector %d has no modes", ErrNoOutput, connector.ID)
	}

	crtcID, err := pickCrtc(dev, resources, connector)
	if err != nil {
		return nil, err
	}

	planeID, err := pickPrimaryPlane(dev, resources, crtcID)
	if err != nil {
		return nil, err
	}

	s := &Screen{
		dev:          dev,
		connector:    connector,
		mode:         mode,
		crtcID:       crtcID,
		planeID:      planeID,
		needsModeset: true,
		log:          log.With().Str("comp", "output").Logger(),
	}

	if s.connProps, err = dev.ObjectProperties(connector.ID, drm.ObjectConnector); err != nil {
		return nil, err
	}
	if s.crtcProps, err = dev.ObjectProperties(crtcID, drm.ObjectCrtc); err != nil {
		return nil, err
	}
	if s.planeProps, err = dev.ObjectProperties(planeID, drm.ObjectPlane); err != nil {
		return nil, err
	}

	if s.gbmDev, err = gbm.CreateDevice(dev.FD()); err != nil {
		return nil, err
	}
	s.gbmSurface, err = s.gbmDev.CreateSurface(uint32(mode.HDisplay), uint32(mode.VDisplay),
		gbm.FormatXRGB8888, gbm.UseScanout|gbm.UseRendering)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint32("connector", connector.ID).
		Uint32("crtc", crtcID).
		Uint32("plane", planeID).
		Int32("width", int32(mode.HDisplay)).
		Int32("height", int32(mode.VDisplay)).
		Int32("refresh_mHz", mode.RefreshMHz()).
		Msg("output selected")

	return s, nil
}

// pickCrtc resolves the connector's encoder to its CRTC, falling back to
// the first CRTC the encoder could drive.
func pickCrtc(dev *drm.Device, resources *drm.Resources, connector *drm.Connector) (uint32, error) {
	if connector.EncoderID != 0 {
		encoder, err := dev.Encoder(connector.EncoderID)
		if err != nil {
			return 0, err
		}
		if encoder.CrtcID != 0 {
			return encoder.CrtcID, nil
		}
		for i, crtcID := range resources.CRTCs {
			if encoder.PossibleCrtcs&(1<<uint(i)) != 0 {
				return crtcID, nil
			}
		}
	}
	if len(resources.CRTCs) > 0 {
		return resources.CRTCs[0], nil
	}
	return 0, fmt.Errorf("%w: no CRTC", ErrNoOutput)
}

// pickPrimaryPlane finds the primary-type plane whose possible_crtcs mask
// covers the chosen CRTC.
func pickPrimaryPlane(dev *drm.Device, resources *drm.Resources, crtcID uint32) (uint32, error) {
	crtcIndex := resources.CrtcIndex(crtcID)
	if crtcIndex < 0 {
		return 0, fmt.Errorf("%w: crtc %d not in resources", ErrNoOutput, crtcID)
	}

	planes, err := dev.PlaneResources()
	if err != nil {
		return 0, err
	}

	for _, id := range planes {
		plane, err := dev.Plane(id)
		if err != nil {
			return 0, err
		}
		if plane.PossibleCrtcs&(1<<uint(crtcIndex)) == 0 {
			continue
		}

		props, err := dev.ObjectProperties(id, drm.ObjectPlane)
		if err != nil {
			return 0, err
		}
		if kind, ok := props.Value("type"); ok && kind == drm.PlaneTypePrimary {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: no primary plane for crtc %d", ErrNoOutput, crtcID)
}

// Mode returns the programmed mode.
func (s *Screen) Mode() drm.ModeInfo {
	return s.mode
}

// Size returns the mode size in pixels.
func (s *Screen) Size() geom.Point {
	return geom.Pt(int32(s.mode.HDisplay), int32(s.mode.VDisplay))
}

// RefreshNS returns the frame period in nanoseconds.
func (s *Screen) RefreshNS() uint32 {
	mhz := s.mode.RefreshMHz()
	if mhz <= 0 {
		return 0
	}
	return uint32(1_000_000_000_000 / int64(mhz))
}

// GBMDevice exposes the buffer manager for renderer setup.
func (s *Screen) GBMDevice() *gbm.Device {
	return s.gbmDev
}

// GBMSurface exposes the swapchain for renderer setup.
func (s *Screen) GBMSurface() *gbm.Surface {
	return s.gbmSurface
}

// FlipPending reports an outstanding atomic commit; at most one is ever in
// flight.
func (s *Screen) FlipPending() bool {
	return s.flipPending
}

// MarkDeferred remembers that a frame wanted to go out while a flip was
// pending; HandleFlip reports it so the loop re-composes immediately.
func (s *Screen) MarkDeferred() {
	s.deferred = true
}

// SubmitFrame locks the freshly swapped front buffer, ensures it has a DRM
// framebuffer, and submits the atomic commit. The first commit programs
// the full mode with ALLOW_MODESET; later ones are non-blocking flips.
func (s *Screen) SubmitFrame() error {
	if s.flipPending {
		s.deferred = true
		return nil
	}

	bo, err := s.gbmSurface.LockFrontBuffer()
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}

	fbID, ok := bo.FBID()
	if !ok {
		fbID, err = s.registerFB(bo)
		if err != nil {
			bo.Release()
			return err
		}
		bo.SetFBID(fbID)
	}

	req := drm.NewAtomicRequest()
	flags := drm.FlagPageFlipEvent | drm.FlagAtomicNonblock

	if s.needsModeset {
		flags |= drm.FlagAllowModeset

		if s.modeBlob == 0 {
			blob, err := s.dev.CreateBlob(modeBytes(&s.mode))
			if err != nil {
				return err
			}
			s.modeBlob = blob
		}

		connCrtc, err := s.connProps.MustID("CRTC_ID")
		if err != nil {
			return err
		}
		crtcMode, err := s.crtcProps.MustID("MODE_ID")
		if err != nil {
			return err
		}
		crtcActive, err := s.crtcProps.MustID("ACTIVE")
		if err != nil {
			return err
		}

		req.Add(s.connector.ID, connCrtc, uint64(s.crtcID))
		req.Add(s.crtcID, crtcMode, uint64(s.modeBlob))
		req.Add(s.crtcID, crtcActive, 1)
	}

	if err := s.addPlaneProps(req, fbID); err != nil {
		return err
	}

	if err := s.dev.Commit(req, flags, 0); err != nil {
		bo.Release()
		if errors.Is(err, drm.ErrBusy) {
			// Back-pressure: wait for the pending flip, no queued commits.
			s.deferred = true
			return nil
		}
		return err
	}

	s.needsModeset = false
	s.flipPending = true
	s.pending = bo
	return nil
}

// addPlaneProps stages the full plane state: framebuffer, CRTC binding,
// and the source (16.16 fixed) and destination rectangles.
func (s *Screen) addPlaneProps(req *drm.AtomicRequest, fbID uint32) error {
	w := uint64(s.mode.HDisplay)
	h := uint64(s.mode.VDisplay)

	for _, prop := range []struct {
		name  string
		value uint64
	}{
		{"FB_ID", uint64(fbID)},
		{"CRTC_ID", uint64(s.crtcID)},
		{"SRC_X", 0},
		{"SRC_Y", 0},
		{"SRC_W", w << 16},
		{"SRC_H", h << 16},
		{"CRTC_X", 0},
		{"CRTC_Y", 0},
		{"CRTC_W", w},
		{"CRTC_H", h},
	} {
		id, err := s.planeProps.MustID(prop.name)
		if err != nil {
			return err
		}
		req.Add(s.planeID, id, prop.value)
	}
	return nil
}

// registerFB adds a DRM framebuffer over the BO.
func (s *Screen) registerFB(bo *gbm.BO) (uint32, error) {
	handles := [4]uint32{bo.Handle()}
	pitches := [4]uint32{bo.Stride()}
	var offsets [4]uint32
	modifiers := [4]uint64{bo.Modifier()}

	return s.dev.AddFB2(uint32(s.mode.HDisplay), uint32(s.mode.VDisplay),
		uint32(gbm.FormatXRGB8888), handles, pitches, offsets, modifiers)
}

// HandleFlip retires the displayed buffer after a flip completion and
// reports whether a deferred frame should be composed now.
func (s *Screen) HandleFlip(ev drm.FlipEvent) bool {
	s.flipPending = false
	s.sequence = uint64(ev.Sequence)

	if s.displayed != nil {
		s.displayed.Release()
	}
	s.displayed = s.pending
	s.pending = nil

	redo := s.deferred
	s.deferred = false
	return redo
}

// Sequence returns the last flip's vblank counter.
func (s *Screen) Sequence() uint64 {
	return s.sequence
}

// Close tears the swapchain down.
func (s *Screen) Close() {
	if s.gbmSurface != nil {
		s.gbmSurface.Destroy()
	}
	if s.gbmDev != nil {
		s.gbmDev.Destroy()
	}
}

// modeBytes serializes a ModeInfo for CREATE_BLOB. The struct is already
// the kernel layout.
func modeBytes(mode *drm.ModeInfo) []byte {
	buf := make([]byte, 0, 68)
	put32 := func(v uint32) { buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }
	put16 := func(v uint16) { buf = append(buf, byte(v), byte(v>>8)) }

	put32(mode.Clock)
	put16(mode.HDisplay)
	put16(mode.HSyncStart)
	put16(mode.HSyncEnd)
	put16(mode.HTotal)
	put16(mode.HSkew)
	put16(mode.VDisplay)
	put16(mode.VSyncStart)
	put16(mode.VSyncEnd)
	put16(mode.VTotal)
	put16(mode.VScan)
	put32(mode.VRefresh)
	put32(mode.Flags)
	put32(mode.Type)
	buf = append(buf, mode.Name[:]...)
	return buf
}
