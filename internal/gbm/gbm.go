//go:build linux && cgo

// Package gbm wraps the generic buffer manager: scanout-capable buffer
// allocation for the output swapchain.
package gbm

/*
#cgo pkg-config: gbm
#include <stdlib.h>
#include <gbm.h>
*/
import "C"

import (
	"errors"
	"unsafe"
)

// Surface format and use flags for the primary swapchain.
const (
	FormatXRGB8888 = C.GBM_FORMAT_XRGB8888

	UseScanout   = C.GBM_BO_USE_SCANOUT
	UseRendering = C.GBM_BO_USE_RENDERING
)

// Device wraps a gbm_device allocated on the DRM fd.
type Device struct {
	hnd *C.struct_gbm_device
}

// CreateDevice creates a buffer manager over the card fd.
func CreateDevice(fd int) (*Device, error) {
	hnd := C.gbm_create_device(C.int(fd))
	if hnd == nil {
		return nil, errors.New("gbm: create device failed")
	}
	return &Device{hnd: hnd}, nil
}

// Handle exposes the native pointer for EGL platform display creation.
func (d *Device) Handle() unsafe.Pointer {
	return unsafe.Pointer(d.hnd)
}

// Destroy releases the device.
func (d *Device) Destroy() {
	if d.hnd != nil {
		C.gbm_device_destroy(d.hnd)
		d.hnd = nil
	}
}

// Surface is the swapchain the renderer draws into; each swap yields a
// buffer object the CRTC can scan out.
type Surface struct {
	hnd *C.struct_gbm_surface

	// fbIDs caches the DRM framebuffer id per locked BO, standing in for
	// gbm_bo user data.
	fbIDs map[*C.struct_gbm_bo]uint32
}

// CreateSurface allocates a scanout surface of the mode's size.
func (d *Device) CreateSurface(width, height uint32, format uint32, flags uint32) (*Surface, error) {
	hnd := C.gbm_surface_create(d.hnd, C.uint32_t(width), C.uint32_t(height),
		C.uint32_t(format), C.uint32_t(flags))
	if hnd == nil {
		return nil, errors.New("gbm: create surface failed")
	}
	return &Surface{hnd: hnd, fbIDs: make(map[*C.struct_gbm_bo]uint32)}, nil
}

// Handle exposes the native pointer for EGL window surface creation.
func (s *Surface) Handle() unsafe.Pointer {
	return unsafe.Pointer(s.hnd)
}

// Destroy releases the surface.
func (s *Surface) Destroy() {
	if s.hnd != nil {
		C.gbm_surface_destroy(s.hnd)
		s.hnd = nil
	}
}

// BO is a locked front buffer.
type BO struct {
	hnd     *C.struct_gbm_bo
	surface *Surface
}

// LockFrontBuffer takes the buffer most recently swapped to.
func (s *Surface) LockFrontBuffer() (*BO, error) {
	hnd := C.gbm_surface_lock_front_buffer(s.hnd)
	if hnd == nil {
		return nil, errors.New("gbm: lock front buffer failed")
	}
	return &BO{hnd: hnd, surface: s}, nil
}

// Release returns the buffer to the swapchain once scanout moved on.
func (bo *BO) Release() {
	C.gbm_surface_release_buffer(bo.surface.hnd, bo.hnd)
}

// Handle returns the DRM handle for AddFB2. gbm_bo_get_handle returns a
// union, which cgo exposes as raw bytes; the u32 member is first.
func (bo *BO) Handle() uint32 {
	handle := C.gbm_bo_get_handle(bo.hnd)
	return *(*uint32)(unsafe.Pointer(&handle))
}

// Stride returns the row pitch in bytes.
func (bo *BO) Stride() uint32 {
	return uint32(C.gbm_bo_get_stride(bo.hnd))
}

// Modifier returns the format modifier the BO was allocated with.
func (bo *BO) Modifier() uint64 {
	return uint64(C.gbm_bo_get_modifier(bo.hnd))
}

// FBID returns the cached framebuffer id for this BO, or false if
// register has not run yet.
func (bo *BO) FBID() (uint32, bool) {
	id, ok := bo.surface.fbIDs[bo.hnd]
	return id, ok
}

// SetFBID caches the framebuffer id for the BO's lifetime.
func (bo *BO) SetFBID(id uint32) {
	bo.surface.fbIDs[bo.hnd] = id
}
