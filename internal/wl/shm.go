//go:build linux

package wl

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_shm request opcodes.
const (
	shmCreatePool wire.Opcode = 0 // create_pool(id: new_id<wl_shm_pool>, fd: fd, size: int)
)

// wl_shm event opcodes.
const (
	shmEventFormat wire.Opcode = 0 // format(format: uint)
)

// wl_shm_pool request opcodes.
const (
	shmPoolCreateBuffer wire.Opcode = 0 // create_buffer(id: new_id, offset: int, width: int, height: int, stride: int, format: uint)
	shmPoolDestroy      wire.Opcode = 1 // destroy()
	shmPoolResize       wire.Opcode = 2 // resize(size: int)
)

// Supported wl_shm_format values.
const (
	ShmFormatARGB8888 uint32 = 0
	ShmFormatXRGB8888 uint32 = 1
)

// Shm is the wl_shm global. Binding announces the supported formats.
type Shm struct {
	id      wire.ObjectID
	globals *Globals
}

// Interface implements Global.
func (*Shm) Interface() string { return IfaceShm }

// Version implements Global.
func (*Shm) Version() uint32 { return 1 }

// Bind implements Global.
func (s *Shm) Bind(c *Client, id wire.ObjectID, version uint32) error {
	bound := &Shm{id: id, globals: s.globals}
	if err := c.AddObject(id, bound); err != nil {
		return err
	}

	for _, format := range []uint32{ShmFormatARGB8888, ShmFormatXRGB8888} {
		if err := bound.format(c, format); err != nil {
			return err
		}
	}
	return nil
}

// format emits wl_shm.format.
func (s *Shm) format(c *Client, format uint32) error {
	b := wire.NewMessageBuilder()
	b.PutUint32(format)
	return c.Send(b.Build(s.id, shmEventFormat))
}

// Handle dispatches wl_shm requests.
func (s *Shm) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case shmCreatePool:
		id, err := d.Object()
		if err != nil {
			return err
		}
		fd, err := d.FD()
		if err != nil {
			return err
		}
		size, err := d.Int32()
		if err != nil {
			return err
		}

		pool, err := newShmPool(id, fd, size)
		if err != nil {
			return err
		}
		return c.AddObject(id, pool)

	default:
		return protocolErrorf(s.id, DisplayErrorInvalidMethod, "unknown op %d in wl_shm", op)
	}
}

// ShmPool owns a shared memory mapping of a client-provided fd. Buffers are
// views into the mapping.
type ShmPool struct {
	id   wire.ObjectID
	fd   int
	size int32
	data []byte
}

// newShmPool maps the client fd.
func newShmPool(id wire.ObjectID, fd int, size int32) (*ShmPool, error) {
	pool := &ShmPool{id: id, fd: fd, size: size}
	if err := pool.remap(); err != nil {
		return nil, err
	}
	return pool, nil
}

// remap re-establishes the mapping after creation or a resize.
func (p *ShmPool) remap() error {
	p.unmap()

	if p.size <= 0 {
		return protocolErrorf(p.id, DisplayErrorImplementation, "shm pool size %d invalid", p.size)
	}

	data, err := unix.Mmap(p.fd, 0, int(p.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("wl: shm mmap of %d bytes: %w", p.size, err)
	}
	p.data = data
	return nil
}

// unmap drops the mapping. Called before a remap and on client teardown.
func (p *ShmPool) unmap() {
	if p.data != nil {
		_ = unix.Munmap(p.data)
		p.data = nil
	}
}

// Data returns the mapped pool bytes.
func (p *ShmPool) Data() []byte {
	return p.data
}

// Handle dispatches wl_shm_pool requests.
func (p *ShmPool) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case shmPoolCreateBuffer:
		id, err := d.Object()
		if err != nil {
			return err
		}
		offset, err := d.Int32()
		if err != nil {
			return err
		}
		width, err := d.Int32()
		if err != nil {
			return err
		}
		height, err := d.Int32()
		if err != nil {
			return err
		}
		stride, err := d.Int32()
		if err != nil {
			return err
		}
		format, err := d.Uint32()
		if err != nil {
			return err
		}

		if format != ShmFormatARGB8888 && format != ShmFormatXRGB8888 {
			return protocolErrorf(p.id, DisplayErrorImplementation, "unsupported shm format %#x", format)
		}
		if offset < 0 || stride < width*4 || int64(offset)+int64(stride)*int64(height) > int64(p.size) {
			return protocolErrorf(p.id, DisplayErrorImplementation,
				"buffer %dx%d stride %d offset %d exceeds pool of %d bytes",
				width, height, stride, offset, p.size)
		}

		return c.AddObject(id, &Buffer{
			id: id,
			backing: &ShmBacking{
				Pool:   p,
				Offset: offset,
				Stride: stride,
				Size:   geom.Pt(width, height),
				Format: format,
			},
		})

	case shmPoolDestroy:
		// Buffers keep the mapping alive through their pool pointer; the
		// mapping itself is torn down with the client.
		return c.RemoveObject(p.id)

	case shmPoolResize:
		size, err := d.Int32()
		if err != nil {
			return err
		}
		if size < p.size {
			return protocolErrorf(p.id, DisplayErrorImplementation, "shm pool shrink from %d to %d", p.size, size)
		}
		p.size = size
		return p.remap()

	default:
		return protocolErrorf(p.id, DisplayErrorInvalidMethod, "unknown op %d in wl_shm_pool", op)
	}
}
