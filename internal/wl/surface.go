//go:build linux

package wl

import (
	"errors"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_surface request opcodes.
const (
	surfaceDestroy            wire.Opcode = 0  // destroy()
	surfaceAttach             wire.Opcode = 1  // attach(buffer: object, x: int, y: int)
	surfaceDamage             wire.Opcode = 2  // damage(x: int, y: int, width: int, height: int)
	surfaceFrame              wire.Opcode = 3  // frame(callback: new_id<wl_callback>)
	surfaceSetOpaqueRegion    wire.Opcode = 4  // set_opaque_region(region: object)
	surfaceSetInputRegion     wire.Opcode = 5  // set_input_region(region: object)
	surfaceCommit             wire.Opcode = 6  // commit()
	surfaceSetBufferTransform wire.Opcode = 7  // set_buffer_transform(transform: int)
	surfaceSetBufferScale     wire.Opcode = 8  // set_buffer_scale(scale: int)
	surfaceDamageBuffer       wire.Opcode = 9  // damage_buffer(x: int, y: int, width: int, height: int)
	surfaceOffset             wire.Opcode = 10 // offset(x: int, y: int)
)

// RoleKind classifies a surface. A role is assigned at most once; asking for
// a second, different role is a protocol error.
type RoleKind int

const (
	RoleNone RoleKind = iota
	RoleToplevel
	RolePopup
	RoleSubsurface
	RoleCursor
	RoleLayerSurface
)

// InputRegion is a staged input region. Whole marks the null region, which
// means the entire surface accepts input.
type InputRegion struct {
	Whole bool
	Areas []geom.Rect
}

// SurfaceState is one side of the double-buffered surface state.
type SurfaceState struct {
	// buffer is nil when no attach happened since the last publish; a
	// pointer to the null ID records an explicit attach(nil).
	buffer         *wire.ObjectID
	frameCallbacks []wire.ObjectID
	inputRegion    *InputRegion
	offset         *geom.Point
	feedback       *wire.ObjectID
}

// mergeInto publishes s into dst and clears s. Frame callbacks append;
// everything else is last-writer-wins.
func (s *SurfaceState) mergeInto(dst *SurfaceState) {
	if s.buffer != nil {
		dst.buffer = s.buffer
		s.buffer = nil
	}

	dst.frameCallbacks = append(dst.frameCallbacks, s.frameCallbacks...)
	s.frameCallbacks = nil

	if s.inputRegion != nil {
		dst.inputRegion = s.inputRegion
		s.inputRegion = nil
	}
	if s.offset != nil {
		dst.offset = s.offset
		s.offset = nil
	}
	if s.feedback != nil {
		dst.feedback = s.feedback
		s.feedback = nil
	}
}

// AttachedBuffer is a shared reference on a client buffer that is in use by
// the compositor (attached, being rendered, or scanned out). wl_buffer.release
// fires exactly when the count drops to zero and the object still exists.
type AttachedBuffer struct {
	Buffer wire.ObjectID
	refs   *int
}

// NewAttachedBuffer takes the first reference on a buffer.
func NewAttachedBuffer(id wire.ObjectID) *AttachedBuffer {
	refs := 1
	return &AttachedBuffer{Buffer: id, refs: &refs}
}

// Clone takes another reference on the same buffer.
func (a *AttachedBuffer) Clone() *AttachedBuffer {
	*a.refs++
	return &AttachedBuffer{Buffer: a.Buffer, refs: a.refs}
}

// Refs returns the live reference count.
func (a *AttachedBuffer) Refs() int {
	return *a.refs
}

// Release drops one reference, emitting wl_buffer.release on the last one
// if the buffer object has not been destroyed meanwhile.
func (a *AttachedBuffer) Release(c *Client) error {
	if *a.refs <= 0 {
		panic("wl: attached buffer over-released")
	}
	*a.refs--
	if *a.refs > 0 {
		return nil
	}

	buf, err := Get[*Buffer](c, a.Buffer)
	if err != nil {
		return nil
	}
	return buf.Release(c)
}

// texKind tracks what backs the surface's render texture.
type texKind int

const (
	texNone texKind = iota

	// texShm: the compositor owns a GPU copy of the shm pixels.
	texShm

	// texDmabuf: the texture belongs to the attached client buffer, held
	// alive through an AttachedBuffer reference.
	texDmabuf
)

// Surface is the central compositing primitive.
type Surface struct {
	id wire.ObjectID

	// children holds wl_subsurface IDs in back-to-front paint order.
	children []wire.ObjectID

	role RoleKind

	// Subsurface role state.
	parent       wire.ObjectID
	sync         bool
	stateToApply SurfaceState

	// Layer-surface role state.
	layerSurface  wire.ObjectID
	initialCommit bool

	pending SurfaceState
	current SurfaceState

	texKind texKind
	texture render.Texture
	texSize geom.Point

	// attached holds the dmabuf currently backing texture; rendered and
	// displayed pin buffers consumed by the in-flight and scanned-out
	// frames.
	attached  *AttachedBuffer
	rendered  *AttachedBuffer
	displayed *AttachedBuffer
}

// NewSurface creates an unroled surface.
func NewSurface(id wire.ObjectID) *Surface {
	return &Surface{id: id}
}

// ID returns the surface's object ID.
func (s *Surface) ID() wire.ObjectID {
	return s.id
}

// Role returns the assigned role kind.
func (s *Surface) Role() RoleKind {
	return s.role
}

// Parent returns the parent surface for subsurface roles.
func (s *Surface) Parent() wire.ObjectID {
	return s.parent
}

// Children returns the subsurface IDs in back-to-front order.
func (s *Surface) Children() []wire.ObjectID {
	return s.children
}

// Size returns the pixel size of the current texture; zero when nothing is
// attached.
func (s *Surface) Size() geom.Point {
	return s.texSize
}

// Texture returns the render texture and whether one is valid this frame.
func (s *Surface) Texture() (render.Texture, bool) {
	if s.texKind == texNone {
		return render.NoTexture, false
	}
	return s.texture, true
}

// HitRegion reports whether a surface-local point is inside the input
// region; the null region means the whole surface.
func (s *Surface) HitRegion(pt geom.Point) bool {
	region := s.current.inputRegion
	if region == nil || region.Whole {
		return geom.Rect{Size: s.texSize}.Contains(pt)
	}
	for _, area := range region.Areas {
		if area.Contains(pt) {
			return true
		}
	}
	return false
}

// SetRole assigns a role. Re-assigning the same kind is a no-op; a different
// kind is a protocol error.
func (s *Surface) SetRole(kind RoleKind) error {
	if s.role == kind {
		return nil
	}
	if s.role != RoleNone {
		return protocolErrorf(s.id, DisplayErrorImplementation, "surface %d already has a role", s.id)
	}
	s.role = kind
	return nil
}

// setSubsurfaceRole marks the surface as a synced subsurface of parent.
func (s *Surface) setSubsurfaceRole(parent wire.ObjectID) error {
	if err := s.SetRole(RoleSubsurface); err != nil {
		return err
	}
	s.parent = parent
	s.sync = true
	return nil
}

// setLayerRole marks the surface as a layer surface awaiting its initial
// commit configure.
func (s *Surface) setLayerRole(layerSurface wire.ObjectID) error {
	if err := s.SetRole(RoleLayerSurface); err != nil {
		return err
	}
	s.layerSurface = layerSurface
	s.initialCommit = true
	return nil
}

// addChild appends a subsurface on top of the existing children.
func (s *Surface) addChild(id wire.ObjectID) {
	s.children = append(s.children, id)
}

// removeChild drops a destroyed subsurface.
func (s *Surface) removeChild(id wire.ObjectID) {
	for i, child := range s.children {
		if child == id {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// Commit publishes pending state. A commit on a toplevel, popup or layer
// surface atomically flushes its whole synced subtree; a commit on a synced
// subsurface only stages.
func (s *Surface) Commit(c *Client) error {
	if s.role == RoleLayerSurface && s.initialCommit {
		s.initialCommit = false

		ls, err := Get[*LayerSurface](c, s.layerSurface)
		if err != nil {
			return err
		}
		return ls.Configure(c, c.Display().NextSerial(), 0, 0)
	}

	if s.role == RoleSubsurface && s.sync {
		s.pending.mergeInto(&s.stateToApply)
		return nil
	}

	s.pending.mergeInto(&s.current)
	if err := s.reconcileTexture(c); err != nil {
		return err
	}

	return s.walkSubtree(c, func(child *Surface) error {
		if !child.sync {
			return nil
		}
		child.stateToApply.mergeInto(&child.current)
		return child.reconcileTexture(c)
	})
}

// reconcileTexture folds current.buffer into the render texture: shm buffers
// are copied to a GPU texture and released immediately; dmabufs are attached
// by reference and pinned until scanout retires them.
func (s *Surface) reconcileTexture(c *Client) error {
	bufID := s.current.buffer
	if bufID == nil {
		return nil
	}
	s.current.buffer = nil

	if bufID.IsNull() {
		s.dropTexture(c)
		return nil
	}

	buf, err := Get[*Buffer](c, *bufID)
	if err != nil {
		return err
	}

	switch backing := buf.backing.(type) {
	case *ShmBacking:
		if s.texKind == texDmabuf {
			s.dropTexture(c)
		}
		existing := s.texture
		if s.texKind == texShm && s.texSize != backing.Size {
			c.Renderer().ReleaseTexture(existing)
			existing = render.NoTexture
		}

		tex, err := c.Renderer().UploadShm(existing, backing.Pool.Data(),
			backing.Offset, backing.Stride, backing.Size, backing.Format)
		if err != nil {
			if errors.Is(err, render.ErrUploadFailed) {
				// Transient GPU failure: skip this surface for the frame.
				c.Log().Warn().Err(err).Uint32("surface", uint32(s.id)).Msg("shm upload failed")
				s.texKind = texNone
				return buf.Release(c)
			}
			return err
		}

		s.texKind = texShm
		s.texture = tex
		s.texSize = backing.Size

		// The pixels are copied; the client may reuse the buffer now.
		return buf.Release(c)

	case *DmabufBacking:
		s.dropTexture(c)

		s.texKind = texDmabuf
		s.texture = backing.Texture
		s.texSize = backing.Size
		s.attached = NewAttachedBuffer(*bufID)
		return nil

	default:
		return protocolErrorf(*bufID, DisplayErrorImplementation, "buffer %d has no backing storage", *bufID)
	}
}

// dropTexture releases whatever currently backs the render texture.
func (s *Surface) dropTexture(c *Client) {
	switch s.texKind {
	case texShm:
		c.Renderer().ReleaseTexture(s.texture)
	case texDmabuf:
		_ = s.attached.Release(c)
		s.attached = nil
	}
	s.texKind = texNone
	s.texture = render.NoTexture
	s.texSize = geom.Point{}
}

// AttachedRef clones the dmabuf reference currently backing the texture, or
// returns nil for shm/none surfaces.
func (s *Surface) AttachedRef() *AttachedBuffer {
	if s.texKind != texDmabuf {
		return nil
	}
	return s.attached.Clone()
}

// SetRendered swaps the buffer pinned by the in-flight composition pass.
func (s *Surface) SetRendered(c *Client, ref *AttachedBuffer) {
	if s.rendered != nil {
		_ = s.rendered.Release(c)
	}
	s.rendered = ref
}

// RetireDisplayed moves the rendered pin into the scanned-out slot,
// releasing the buffer that just left the screen.
func (s *Surface) RetireDisplayed(c *Client) {
	if s.displayed != nil {
		_ = s.displayed.Release(c)
	}
	s.displayed = s.rendered
	s.rendered = nil
}

// walkSubtree visits the subsurface tree depth-first.
func (s *Surface) walkSubtree(c *Client, fn func(*Surface) error) error {
	for _, childID := range s.children {
		sub, err := Get[*SubSurface](c, childID)
		if err != nil {
			continue
		}
		child, err := Get[*Surface](c, sub.surface)
		if err != nil {
			continue
		}

		if err := fn(child); err != nil {
			return err
		}
		if err := child.walkSubtree(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// FrontBuffer is one paintable surface of a tree with its offset relative
// to the tree root.
type FrontBuffer struct {
	Offset  geom.Point
	Surface *Surface
}

// FrontBuffers returns the surface and its mapped subsurfaces back to
// front.
func (s *Surface) FrontBuffers(c *Client) []FrontBuffer {
	if s.texKind == texNone {
		return nil
	}

	ret := []FrontBuffer{{Surface: s}}

	for _, childID := range s.children {
		sub, err := Get[*SubSurface](c, childID)
		if err != nil {
			continue
		}
		child, err := Get[*Surface](c, sub.surface)
		if err != nil {
			continue
		}
		for _, fb := range child.FrontBuffers(c) {
			fb.Offset = fb.Offset.Add(sub.position)
			ret = append(ret, fb)
		}
	}
	return ret
}

// Frame fires the pending frame callbacks for this tree with the given
// timestamp. Callbacks are deleted after firing.
func (s *Surface) Frame(c *Client, ms uint32) error {
	for _, id := range s.current.frameCallbacks {
		cb, err := Get[*Callback](c, id)
		if err != nil {
			continue
		}
		if err := cb.Done(c, ms); err != nil {
			return err
		}
	}
	s.current.frameCallbacks = nil

	return s.walkSubtree(c, func(child *Surface) error {
		return child.Frame(c, ms)
	})
}

// PresentationFeedback resolves the presentation feedback for this tree
// after the carrying frame was scanned out.
func (s *Surface) PresentationFeedback(c *Client, tvSec uint64, tvNsec, refreshNS uint32, seq uint64, flags uint32) error {
	if s.current.feedback != nil {
		fb, err := Get[*PresentationFeedback](c, *s.current.feedback)
		s.current.feedback = nil
		if err == nil {
			if outputs := ObjectsOf[*Output](c); len(outputs) > 0 {
				if err := fb.SyncOutput(c, outputs[0].id); err != nil {
					return err
				}
			}
			if err := fb.Presented(c, tvSec, tvNsec, refreshNS, seq, flags); err != nil {
				return err
			}
		}
	}

	return s.walkSubtree(c, func(child *Surface) error {
		return child.PresentationFeedback(c, tvSec, tvNsec, refreshNS, seq, flags)
	})
}

// releaseAllRefs drops every buffer pin this surface holds. Used on destroy.
func (s *Surface) releaseAllRefs(c *Client) {
	if s.texKind == texDmabuf {
		_ = s.attached.Release(c)
		s.attached = nil
	}
	if s.rendered != nil {
		_ = s.rendered.Release(c)
		s.rendered = nil
	}
	if s.displayed != nil {
		_ = s.displayed.Release(c)
		s.displayed = nil
	}
	if s.texKind == texShm {
		c.Renderer().ReleaseTexture(s.texture)
	}
	s.texKind = texNone
}

// Handle dispatches wl_surface requests.
func (s *Surface) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case surfaceDestroy:
		s.releaseAllRefs(c)
		c.PushChange(Change{Kind: ChangeRemoveSurface, ClientFD: c.FD(), Surface: s.id})
		return c.RemoveObject(s.id)

	case surfaceAttach:
		buffer, err := d.Object()
		if err != nil {
			return err
		}
		x, err := d.Int32()
		if err != nil {
			return err
		}
		y, err := d.Int32()
		if err != nil {
			return err
		}

		s.pending.buffer = &buffer
		s.pending.offset = &geom.Point{X: x, Y: y}
		return nil

	case surfaceDamage, surfaceDamageBuffer:
		// Full-frame redraw: damage is accepted and ignored.
		for i := 0; i < 4; i++ {
			if _, err := d.Int32(); err != nil {
				return err
			}
		}
		return nil

	case surfaceFrame:
		id, err := d.Object()
		if err != nil {
			return err
		}
		if err := c.AddObject(id, &Callback{id: id}); err != nil {
			return err
		}
		s.pending.frameCallbacks = append(s.pending.frameCallbacks, id)
		return nil

	case surfaceSetOpaqueRegion:
		_, err := d.Object()
		return err

	case surfaceSetInputRegion:
		regionID, err := d.Object()
		if err != nil {
			return err
		}

		if regionID.IsNull() {
			s.pending.inputRegion = &InputRegion{Whole: true}
			return nil
		}

		region, err := Get[*Region](c, regionID)
		if err != nil {
			return err
		}
		areas := make([]geom.Rect, len(region.areas))
		copy(areas, region.areas)
		s.pending.inputRegion = &InputRegion{Areas: areas}
		return nil

	case surfaceCommit:
		return s.Commit(c)

	case surfaceSetBufferTransform:
		_, err := d.Int32()
		return err

	case surfaceSetBufferScale:
		_, err := d.Int32()
		return err

	case surfaceOffset:
		x, err := d.Int32()
		if err != nil {
			return err
		}
		y, err := d.Int32()
		if err != nil {
			return err
		}
		s.pending.offset = &geom.Point{X: x, Y: y}
		return nil

	default:
		return protocolErrorf(s.id, DisplayErrorInvalidMethod, "unknown op %d in wl_surface", op)
	}
}
