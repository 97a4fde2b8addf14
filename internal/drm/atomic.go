//go:build linux

package drm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AtomicRequest accumulates (object, property, value) triples for one
// atomic commit. Properties of the same object must be added contiguously;
// the builder groups them for the kernel's counted layout.
type AtomicRequest struct {
	props []atomicProp
}

type atomicProp struct {
	object   uint32
	property uint32
	value    uint64
}

// NewAtomicRequest creates an empty request.
func NewAtomicRequest() *AtomicRequest {
	return &AtomicRequest{}
}

// Add stages one property write.
func (r *AtomicRequest) Add(object, property uint32, value uint64) {
	r.props = append(r.props, atomicProp{object: object, property: property, value: value})
}

// Reset clears the request for reuse.
func (r *AtomicRequest) Reset() {
	r.props = r.props[:0]
}

// Len returns the number of staged writes.
func (r *AtomicRequest) Len() int {
	return len(r.props)
}

// group flattens the staged props into the kernel's parallel arrays:
// distinct object ids with per-object property counts, then the property
// and value arrays in order.
func (r *AtomicRequest) group() (objs []uint32, counts []uint32, props []uint32, values []uint64) {
	last := uint32(0xFFFFFFFF)
	for _, p := range r.props {
		if p.object != last {
			objs = append(objs, p.object)
			counts = append(counts, 0)
			last = p.object
		}
		counts[len(counts)-1]++
		props = append(props, p.property)
		values = append(values, p.value)
	}
	return objs, counts, props, values
}

// Commit submits the request. EBUSY maps to ErrBusy so the output loop can
// defer to the pending flip.
func (d *Device) Commit(r *AtomicRequest, flags uint32, userData uint64) error {
	objs, counts, props, values := r.group()
	if len(objs) == 0 {
		return nil
	}

	arg := atomicArg{
		Flags:         flags,
		CountObjs:     uint32(len(objs)),
		ObjsPtr:       uint64(uintptr(unsafe.Pointer(&objs[0]))),
		CountPropsPtr: uint64(uintptr(unsafe.Pointer(&counts[0]))),
		PropsPtr:      uint64(uintptr(unsafe.Pointer(&props[0]))),
		PropValuesPtr: uint64(uintptr(unsafe.Pointer(&values[0]))),
		UserData:      userData,
	}

	if err := d.ioctl(ioctlModeAtomic, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return ErrBusy
		}
		return fmt.Errorf("drm: atomic commit: %w", err)
	}
	return nil
}
