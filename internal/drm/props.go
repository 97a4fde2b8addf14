//go:build linux

package drm

import (
	"fmt"
	"unsafe"

	"honnef.co/go/safeish"
)

// Properties maps a mode object's property names to their ids and current
// values.
type Properties struct {
	ObjectID uint32
	ids      map[string]uint32
	values   map[string]uint64
}

// ObjectProperties fetches every property of a mode object and resolves the
// names.
func (d *Device) ObjectProperties(objectID, objectType uint32) (*Properties, error) {
	var arg objGetProps
	arg.ObjID = objectID
	arg.ObjType = objectType
	if err := d.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get properties of %d: %w", objectID, err)
	}

	ids := make([]uint32, arg.CountProps)
	values := make([]uint64, arg.CountProps)
	if arg.CountProps > 0 {
		arg.PropsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
		arg.PropValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	}

	if err := d.ioctl(ioctlModeObjGetProps, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return nil, fmt.Errorf("drm: get properties of %d: %w", objectID, err)
	}

	props := &Properties{
		ObjectID: objectID,
		ids:      make(map[string]uint32, arg.CountProps),
		values:   make(map[string]uint64, arg.CountProps),
	}

	for i := uint32(0); i < arg.CountProps; i++ {
		name, err := d.propertyName(ids[i])
		if err != nil {
			return nil, err
		}
		props.ids[name] = ids[i]
		props.values[name] = values[i]
	}
	return props, nil
}

// propertyName resolves one property id to its name.
func (d *Device) propertyName(id uint32) (string, error) {
	var arg getProperty
	arg.PropID = id

	// Enum and value arrays are not needed for name resolution.
	arg.CountValues = 0
	arg.CountEnumBlobs = 0

	if err := d.ioctl(ioctlModeGetProperty, unsafe.Pointer(&arg), unsafe.Sizeof(arg)); err != nil {
		return "", fmt.Errorf("drm: get property %d: %w", id, err)
	}

	n := safeish.FindNull(&arg.Name[0])
	return string(arg.Name[:n]), nil
}

// ID returns a property's id by name.
func (p *Properties) ID(name string) (uint32, bool) {
	id, ok := p.ids[name]
	return id, ok
}

// Value returns a property's current value by name.
func (p *Properties) Value(name string) (uint64, bool) {
	v, ok := p.values[name]
	return v, ok
}

// MustID returns a property id, erroring on absence. Missing required
// properties are a fatal KMS condition.
func (p *Properties) MustID(name string) (uint32, error) {
	id, ok := p.ids[name]
	if !ok {
		return 0, fmt.Errorf("drm: object %d has no %q property", p.ObjectID, name)
	}
	return id, nil
}
