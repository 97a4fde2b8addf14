//go:build linux

package wl

import (
	"fmt"
	"maps"
	"slices"

	"github.com/tatami-wm/tatami/internal/wire"
)

// ID allocation ranges. Clients allocate from the low range; IDs the server
// creates on the client's behalf come from the high range.
const (
	clientIDMax   wire.ObjectID = 0xFEFFFFFF
	serverIDStart wire.ObjectID = 0xFF000000
)

// Table is a client's sparse map from object ID to protocol object. All
// interfaces share the one store so handlers can traverse heterogeneously.
type Table struct {
	objects map[wire.ObjectID]Object
}

// NewTable creates an empty object table.
func NewTable() *Table {
	return &Table{objects: make(map[wire.ObjectID]Object)}
}

// Insert registers obj under id. Fails with ErrObjectInUse when the slot is
// occupied.
func (t *Table) Insert(id wire.ObjectID, obj Object) error {
	if _, ok := t.objects[id]; ok {
		return fmt.Errorf("%w: %d", ErrObjectInUse, id)
	}
	t.objects[id] = obj
	return nil
}

// Get looks up the object under id.
func (t *Table) Get(id wire.ObjectID) (Object, error) {
	obj, ok := t.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return obj, nil
}

// Remove deletes the object under id. Callers must afterwards emit
// wl_display.delete_id so the client may reuse the slot.
func (t *Table) Remove(id wire.ObjectID) error {
	if _, ok := t.objects[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	delete(t.objects, id)
	return nil
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	return len(t.objects)
}

// IDs returns the live object IDs in ascending order.
func (t *Table) IDs() []wire.ObjectID {
	return slices.Sorted(maps.Keys(t.objects))
}

// ObjectsOf enumerates, ordered by ID, every object of type T in the
// client's table. Protocol broadcasts ("every wl_pointer on this client")
// are built on this.
func ObjectsOf[T Object](c *Client) []T {
	var ret []T
	for _, id := range c.store.IDs() {
		if obj, ok := c.store.objects[id].(T); ok {
			ret = append(ret, obj)
		}
	}
	return ret
}

// Get resolves id to a T, failing with ErrUnknownObject for missing slots
// and a protocol error for interface mismatches.
func Get[T Object](c *Client, id wire.ObjectID) (T, error) {
	var zero T

	obj, err := c.store.Get(id)
	if err != nil {
		return zero, err
	}

	typed, ok := obj.(T)
	if !ok {
		return zero, protocolErrorf(id, DisplayErrorInvalidObject, "object %d has wrong interface (%T)", id, obj)
	}
	return typed, nil
}
