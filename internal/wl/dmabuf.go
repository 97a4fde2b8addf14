//go:build linux

package wl

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wire"
)

// zwp_linux_dmabuf_v1 request opcodes.
const (
	dmabufDestroy            wire.Opcode = 0 // destroy()
	dmabufCreateParams       wire.Opcode = 1 // create_params(params_id: new_id)
	dmabufGetDefaultFeedback wire.Opcode = 2 // get_default_feedback(id: new_id)
	dmabufGetSurfaceFeedback wire.Opcode = 3 // get_surface_feedback(id: new_id, surface: object)
)

// zwp_linux_buffer_params_v1 request opcodes.
const (
	paramsDestroy     wire.Opcode = 0 // destroy()
	paramsAdd         wire.Opcode = 1 // add(fd: fd, plane_idx: uint, offset: uint, stride: uint, modifier_hi: uint, modifier_lo: uint)
	paramsCreate      wire.Opcode = 2 // create(width: int, height: int, format: uint, flags: uint)
	paramsCreateImmed wire.Opcode = 3 // create_immed(buffer_id: new_id, width: int, height: int, format: uint, flags: uint)
)

// zwp_linux_buffer_params_v1 event opcodes.
const (
	paramsEventCreated wire.Opcode = 0 // created(buffer: new_id<wl_buffer>)
	paramsEventFailed  wire.Opcode = 1 // failed()
)

// zwp_linux_dmabuf_feedback_v1 event opcodes.
const (
	feedbackEventDone                wire.Opcode = 0 // done()
	feedbackEventFormatTable        wire.Opcode = 1 // format_table(fd: fd, size: uint)
	feedbackEventMainDevice         wire.Opcode = 2 // main_device(device: array)
	feedbackEventTrancheDone        wire.Opcode = 3 // tranche_done()
	feedbackEventTrancheTargetDevice wire.Opcode = 4 // tranche_target_device(device: array)
	feedbackEventTrancheFormats     wire.Opcode = 5 // tranche_formats(indices: array)
	feedbackEventTrancheFlags       wire.Opcode = 6 // tranche_flags(flags: uint)
)

// Drm fourcc codes for the supported formats.
const (
	FourccARGB8888 uint32 = 0x34325241
	FourccXRGB8888 uint32 = 0x34325258
)

// Modifier values published in the format table.
const (
	ModifierLinear  uint64 = 0
	ModifierInvalid uint64 = 0x00FFFFFFFFFFFFFF
)

// maxDmabufPlanes caps the per-buffer plane count.
const maxDmabufPlanes = 4

// LinuxDmabuf is the zwp_linux_dmabuf_v1 global. The shared format table
// file is built once and its fd handed to every feedback object.
type LinuxDmabuf struct {
	id      wire.ObjectID
	globals *Globals

	formatTableFD   int
	formatTableSize uint32
}

// Interface implements Global.
func (*LinuxDmabuf) Interface() string { return IfaceLinuxDmabuf }

// Version implements Global.
func (*LinuxDmabuf) Version() uint32 { return 5 }

// Bind implements Global.
func (ld *LinuxDmabuf) Bind(c *Client, id wire.ObjectID, version uint32) error {
	if ld.formatTableFD == 0 {
		if err := ld.buildFormatTable(); err != nil {
			return err
		}
	}
	return c.AddObject(id, &LinuxDmabuf{
		id:              id,
		globals:         ld.globals,
		formatTableFD:   ld.formatTableFD,
		formatTableSize: ld.formatTableSize,
	})
}

// buildFormatTable writes the (format, modifier) pairs into a memfd shared
// with every client. Each entry is 16 bytes: u32 format, u32 pad, u64
// modifier.
func (ld *LinuxDmabuf) buildFormatTable() error {
	fd, err := unix.MemfdCreate("tatami-formats", unix.MFD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("wl: dmabuf format table memfd: %w", err)
	}

	var table []byte
	for _, format := range []uint32{FourccARGB8888, FourccXRGB8888} {
		for _, modifier := range []uint64{ModifierLinear, ModifierInvalid} {
			entry := make([]byte, 16)
			binary.LittleEndian.PutUint32(entry, format)
			binary.LittleEndian.PutUint64(entry[8:], modifier)
			table = append(table, entry...)
		}
	}

	if _, err := unix.Write(fd, table); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("wl: dmabuf format table write: %w", err)
	}

	ld.formatTableFD = fd
	ld.formatTableSize = uint32(len(table))
	return nil
}

// Handle dispatches zwp_linux_dmabuf_v1 requests.
func (ld *LinuxDmabuf) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case dmabufDestroy:
		return c.RemoveObject(ld.id)

	case dmabufCreateParams:
		id, err := d.Object()
		if err != nil {
			return err
		}
		return c.AddObject(id, &BufferParams{id: id})

	case dmabufGetDefaultFeedback, dmabufGetSurfaceFeedback:
		id, err := d.Object()
		if err != nil {
			return err
		}
		if op == dmabufGetSurfaceFeedback {
			if _, err := d.Object(); err != nil { // surface
				return err
			}
		}

		fb := &DmabufFeedback{id: id, dmabuf: ld}
		if err := c.AddObject(id, fb); err != nil {
			return err
		}
		return fb.announce(c)

	default:
		return protocolErrorf(ld.id, DisplayErrorInvalidMethod, "unknown op %d in zwp_linux_dmabuf_v1", op)
	}
}

// dmabufPlane is one staged plane of a pending import.
type dmabufPlane struct {
	fd     int
	offset uint32
	stride uint32
}

// BufferParams stages dmabuf planes until create or create_immed imports
// them. All planes must agree on the modifier.
type BufferParams struct {
	id       wire.ObjectID
	planes   []dmabufPlane
	modifier *uint64
	used     bool
}

// Handle dispatches zwp_linux_buffer_params_v1 requests.
func (bp *BufferParams) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case paramsDestroy:
		return c.RemoveObject(bp.id)

	case paramsAdd:
		fd, err := d.FD()
		if err != nil {
			return err
		}
		planeIdx, err := d.Uint32()
		if err != nil {
			return err
		}
		offset, err := d.Uint32()
		if err != nil {
			return err
		}
		stride, err := d.Uint32()
		if err != nil {
			return err
		}
		modHi, err := d.Uint32()
		if err != nil {
			return err
		}
		modLo, err := d.Uint32()
		if err != nil {
			return err
		}

		if planeIdx >= maxDmabufPlanes || int(planeIdx) != len(bp.planes) {
			return protocolErrorf(bp.id, DisplayErrorImplementation, "plane index %d out of order", planeIdx)
		}

		modifier := uint64(modHi)<<32 | uint64(modLo)
		if bp.modifier != nil && *bp.modifier != modifier {
			return protocolErrorf(bp.id, DisplayErrorImplementation,
				"plane modifier %#x differs from %#x", modifier, *bp.modifier)
		}
		bp.modifier = &modifier

		bp.planes = append(bp.planes, dmabufPlane{fd: fd, offset: offset, stride: stride})
		return nil

	case paramsCreate:
		width, height, format, err := bp.readCreateArgs(d)
		if err != nil {
			return err
		}

		buf, err := bp.importBuffer(c, 0, width, height, format)
		if err != nil {
			// Import failure on the async path is reported to the client,
			// not fatal to it.
			c.Log().Warn().Err(err).Msg("dmabuf import failed")
			return c.Send(wire.NewMessageBuilder().Build(bp.id, paramsEventFailed))
		}

		b := wire.NewMessageBuilder()
		b.PutObject(buf.id)
		return c.Send(b.Build(bp.id, paramsEventCreated))

	case paramsCreateImmed:
		bufferID, err := d.Object()
		if err != nil {
			return err
		}
		width, height, format, err := bp.readCreateArgs(d)
		if err != nil {
			return err
		}

		if _, err := bp.importBuffer(c, bufferID, width, height, format); err != nil {
			return protocolErrorf(bp.id, DisplayErrorImplementation, "dmabuf import failed: %v", err)
		}
		return nil

	default:
		return protocolErrorf(bp.id, DisplayErrorInvalidMethod, "unknown op %d in zwp_linux_buffer_params_v1", op)
	}
}

// readCreateArgs decodes the shared tail of create and create_immed.
func (bp *BufferParams) readCreateArgs(d *wire.Decoder) (int32, int32, uint32, error) {
	width, err := d.Int32()
	if err != nil {
		return 0, 0, 0, err
	}
	height, err := d.Int32()
	if err != nil {
		return 0, 0, 0, err
	}
	format, err := d.Uint32()
	if err != nil {
		return 0, 0, 0, err
	}
	if _, err := d.Uint32(); err != nil { // flags, passed through unvalidated
		return 0, 0, 0, err
	}
	return width, height, format, nil
}

// importBuffer hands the staged planes to the GPU backend and wraps the
// resulting texture as a wl_buffer. A zero id asks for a server-allocated
// one (the async create path).
func (bp *BufferParams) importBuffer(c *Client, id wire.ObjectID, width, height int32, format uint32) (*Buffer, error) {
	if bp.used {
		return nil, protocolErrorf(bp.id, DisplayErrorImplementation, "buffer params already used")
	}
	if len(bp.planes) == 0 || bp.modifier == nil {
		return nil, protocolErrorf(bp.id, DisplayErrorImplementation, "create without planes")
	}
	bp.used = true

	planes := make([]render.DmabufPlane, len(bp.planes))
	for i, plane := range bp.planes {
		planes[i] = render.DmabufPlane{FD: plane.fd, Offset: plane.offset, Stride: plane.stride}
	}

	size := geom.Pt(width, height)
	tex, err := c.Renderer().ImportDmabuf(size, format, *bp.modifier, planes)
	if err != nil {
		return nil, err
	}

	buf := &Buffer{
		backing: &DmabufBacking{
			Size:     size,
			Fourcc:   format,
			Modifier: *bp.modifier,
			Texture:  tex,
		},
	}

	if id.IsNull() {
		buf.id = c.AddServerObject(buf)
	} else {
		buf.id = id
		if err := c.AddObject(id, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DmabufFeedback publishes the supported (format, modifier) tranches.
type DmabufFeedback struct {
	id     wire.ObjectID
	dmabuf *LinuxDmabuf
}

// announce sends the complete feedback sequence: format table, main device,
// one tranche covering every table entry, done.
func (fb *DmabufFeedback) announce(c *Client) error {
	b := wire.NewMessageBuilder()
	b.PutFD(fb.dmabuf.formatTableFD).PutUint32(fb.dmabuf.formatTableSize)
	if err := c.Send(b.Build(fb.id, feedbackEventFormatTable)); err != nil {
		return err
	}

	dev := make([]byte, 8)
	binary.LittleEndian.PutUint64(dev, fb.dmabuf.globals.MainDevice)

	b = wire.NewMessageBuilder()
	b.PutArray(dev)
	if err := c.Send(b.Build(fb.id, feedbackEventMainDevice)); err != nil {
		return err
	}

	b = wire.NewMessageBuilder()
	b.PutArray(dev)
	if err := c.Send(b.Build(fb.id, feedbackEventTrancheTargetDevice)); err != nil {
		return err
	}

	b = wire.NewMessageBuilder()
	b.PutUint32(0)
	if err := c.Send(b.Build(fb.id, feedbackEventTrancheFlags)); err != nil {
		return err
	}

	entries := fb.dmabuf.formatTableSize / 16
	indices := make([]byte, 0, entries*2)
	for i := uint32(0); i < entries; i++ {
		indices = append(indices, byte(i), byte(i>>8))
	}

	b = wire.NewMessageBuilder()
	b.PutArray(indices)
	if err := c.Send(b.Build(fb.id, feedbackEventTrancheFormats)); err != nil {
		return err
	}

	if err := c.Send(wire.NewMessageBuilder().Build(fb.id, feedbackEventTrancheDone)); err != nil {
		return err
	}
	return c.Send(wire.NewMessageBuilder().Build(fb.id, feedbackEventDone))
}

// Handle dispatches zwp_linux_dmabuf_feedback_v1 requests.
func (fb *DmabufFeedback) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case 0: // destroy()
		return c.RemoveObject(fb.id)

	default:
		return protocolErrorf(fb.id, DisplayErrorInvalidMethod, "unknown op %d in zwp_linux_dmabuf_feedback_v1", op)
	}
}
