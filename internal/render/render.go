//go:build linux

// Package render defines the boundary to the GPU backend that rasterizes
// surface textures into the output framebuffer, plus the EGL/GLES3
// implementation running on top of a GBM surface.
//
// The compositor core only depends on the Renderer interface; tests swap in
// a fake.
package render

import (
	"errors"

	"github.com/tatami-wm/tatami/internal/geom"
)

// Errors reported by renderer implementations.
var (
	// ErrUploadFailed is a transient texture upload failure. The surface is
	// skipped for the frame; the client stays alive.
	ErrUploadFailed = errors.New("render: texture upload failed")

	// ErrContextLost is fatal. The compositor terminates.
	ErrContextLost = errors.New("render: GPU context lost")
)

// Texture is an opaque handle to GPU-resident image data.
type Texture uint64

// NoTexture is the zero, invalid texture handle.
const NoTexture Texture = 0

// DmabufPlane describes one plane of a dmabuf import.
type DmabufPlane struct {
	FD     int
	Offset uint32
	Stride uint32
}

// Renderer is the GPU backend contract (spec'd at the compositor boundary).
// All calls happen on the compositor thread between BeginFrame and EndFrame,
// except UploadShm, ImportDmabuf and ReleaseTexture which may happen during
// request handling.
type Renderer interface {
	// UploadShm copies the pixel rectangle out of a mapped shm pool into a
	// GPU texture. A valid existing texture is refilled in place at the new
	// size and returned; NoTexture makes it allocate and return a new one.
	UploadShm(existing Texture, pool []byte, offset, stride int32, size geom.Point, format uint32) (Texture, error)

	// ImportDmabuf wraps client-provided dmabuf planes as a GPU texture
	// without copying.
	ImportDmabuf(size geom.Point, fourcc uint32, modifier uint64, planes []DmabufPlane) (Texture, error)

	// DrawTexturedQuad draws texture into dst (output pixels), sampling the
	// full source rectangle.
	DrawTexturedQuad(tex Texture, dst geom.Rect)

	// BeginFrame prepares the next framebuffer for drawing.
	BeginFrame()

	// EndFrame finishes drawing and swaps the backing surface.
	EndFrame() error

	// ReleaseTexture frees a texture previously returned by UploadShm or
	// ImportDmabuf.
	ReleaseTexture(tex Texture)
}
