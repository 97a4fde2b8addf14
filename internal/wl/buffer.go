//go:build linux

package wl

import (
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wire"
)

// wl_buffer request opcodes.
const (
	bufferDestroy wire.Opcode = 0 // destroy()
)

// wl_buffer event opcodes.
const (
	bufferEventRelease wire.Opcode = 0 // release()
)

// ShmBacking is a wl_buffer view into an shm pool.
type ShmBacking struct {
	Pool   *ShmPool
	Offset int32
	Stride int32
	Size   geom.Point
	Format uint32
}

// DmabufBacking is a wl_buffer wrapping an imported dmabuf texture.
type DmabufBacking struct {
	Size     geom.Point
	Fourcc   uint32
	Modifier uint64
	Texture  render.Texture
}

// Buffer is client pixel storage attached to surfaces. The backing is one of
// ShmBacking or DmabufBacking.
type Buffer struct {
	id      wire.ObjectID
	backing any
}

// ID returns the buffer's object ID.
func (b *Buffer) ID() wire.ObjectID {
	return b.id
}

// Backing returns the backing storage.
func (b *Buffer) Backing() any {
	return b.backing
}

// Release emits wl_buffer.release, telling the client it may reuse the
// storage.
func (b *Buffer) Release(c *Client) error {
	msg := wire.NewMessageBuilder().Build(b.id, bufferEventRelease)
	return c.Send(msg)
}

// Handle dispatches wl_buffer requests.
func (b *Buffer) Handle(c *Client, op wire.Opcode, d *wire.Decoder) error {
	switch op {
	case bufferDestroy:
		if backing, ok := b.backing.(*DmabufBacking); ok {
			c.Renderer().ReleaseTexture(backing.Texture)
		}
		return c.RemoveObject(b.id)

	default:
		return protocolErrorf(b.id, DisplayErrorInvalidMethod, "unknown op %d in wl_buffer", op)
	}
}
