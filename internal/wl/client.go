//go:build linux

package wl

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wire"
)

// maxOutbound is the outbound buffer threshold past which a client that
// stops reading is disconnected instead of growing without bound.
const maxOutbound = 1 << 20

// Client is one connection on the compositor socket, identified by its
// socket file descriptor. It owns the object table, the fd queues, the
// outbound buffer and the change journal for this connection.
type Client struct {
	fd    int
	store *Table

	// recvFDs queues file descriptors received via SCM_RIGHTS until a
	// request argument consumes them.
	recvFDs []int

	// outBuf and outFDs accumulate events until Flush.
	outBuf []byte
	outFDs []int

	changes []Change

	// StartPosition seeds where this client's toplevels appear before the
	// layout reconciler places them.
	StartPosition geom.Point

	renderer render.Renderer
	log      zerolog.Logger

	nextServerID wire.ObjectID
	gone         bool
}

// NewClient wraps an accepted connection. The caller installs the Display
// object afterwards via AddObject(1, …).
func NewClient(fd int, start geom.Point, renderer render.Renderer, log zerolog.Logger) *Client {
	return &Client{
		fd:            fd,
		store:         NewTable(),
		StartPosition: start,
		renderer:      renderer,
		log:           log.With().Int("client", fd).Logger(),
		nextServerID:  serverIDStart,
	}
}

// FD returns the client's socket file descriptor, its identity.
func (c *Client) FD() int {
	return c.fd
}

// Renderer returns the GPU backend handle used by commits on this client.
func (c *Client) Renderer() render.Renderer {
	return c.renderer
}

// Log returns the client-scoped logger.
func (c *Client) Log() *zerolog.Logger {
	return &c.log
}

// Display returns the client's wl_display, which is always object 1.
func (c *Client) Display() *Display {
	d, err := Get[*Display](c, 1)
	if err != nil {
		panic("wl: client has no display object")
	}
	return d
}

// AddObject inserts a client-allocated object. A duplicate ID is a protocol
// error on the client.
func (c *Client) AddObject(id wire.ObjectID, obj Object) error {
	if id.IsNull() || id > clientIDMax {
		return protocolErrorf(1, DisplayErrorInvalidObject, "new id %d outside client range", id)
	}
	if err := c.store.Insert(id, obj); err != nil {
		return protocolErrorf(1, DisplayErrorInvalidObject, "id %d already in use", id)
	}
	return nil
}

// AddServerObject inserts an object under a fresh server-allocated ID.
func (c *Client) AddServerObject(obj Object) wire.ObjectID {
	id := c.nextServerID
	c.nextServerID++

	if err := c.store.Insert(id, obj); err != nil {
		panic(fmt.Sprintf("wl: server id %d reused", id))
	}
	return id
}

// RemoveObject deletes an object and tells the client the ID is reusable.
// delete_id is queued after any event already referring to the ID.
func (c *Client) RemoveObject(id wire.ObjectID) error {
	if err := c.store.Remove(id); err != nil {
		return err
	}
	return c.Display().DeleteID(c, id)
}

// GetObject looks up an object without asserting its interface.
func (c *Client) GetObject(id wire.ObjectID) (Object, error) {
	return c.store.Get(id)
}

// HasObject reports whether id is live in the table.
func (c *Client) HasObject(id wire.ObjectID) bool {
	_, err := c.store.Get(id)
	return err == nil
}

// PushChange journals a window-stack mutation for the reconciler.
func (c *Client) PushChange(ch Change) {
	c.changes = append(c.changes, ch)
}

// DrainChanges takes and clears the journaled changes.
func (c *Client) DrainChanges() []Change {
	ret := c.changes
	c.changes = nil
	return ret
}

// QueueReceivedFDs appends fds that arrived as ancillary data on a request.
func (c *Client) QueueReceivedFDs(fds []int) {
	c.recvFDs = append(c.recvFDs, fds...)
}

// Dispatch decodes and runs one request against the target object.
func (c *Client) Dispatch(object wire.ObjectID, op wire.Opcode, params []byte) error {
	obj, err := c.store.Get(object)
	if err != nil {
		return protocolErrorf(object, DisplayErrorInvalidObject, "unknown object %d", object)
	}

	d := wire.NewDecoder(params, c.recvFDs)
	err = obj.Handle(c, op, d)
	c.recvFDs = c.recvFDs[d.FDsConsumed():]

	if err != nil {
		return err
	}
	return d.Finish()
}

// Send queues an event for delivery on the next Flush.
func (c *Client) Send(msg *wire.Message) error {
	if c.gone {
		return ErrClientGone
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	if len(c.outBuf)+len(data) > maxOutbound {
		c.gone = true
		return fmt.Errorf("%w: outbound buffer overflow", ErrClientGone)
	}

	c.outBuf = append(c.outBuf, data...)
	c.outFDs = append(c.outFDs, msg.FDs...)
	return nil
}

// PendingOut returns the bytes queued for the client. Used by tests and the
// flush path.
func (c *Client) PendingOut() []byte {
	return c.outBuf
}

// ClearPendingOut drops queued events without writing them.
func (c *Client) ClearPendingOut() {
	c.outBuf = c.outBuf[:0]
	c.outFDs = c.outFDs[:0]
}

// Flush writes the outbound buffer and its file descriptors in one sendmsg.
// A peer that went away surfaces as ErrClientGone.
func (c *Client) Flush() error {
	if len(c.outBuf) == 0 {
		return nil
	}
	if c.gone {
		return ErrClientGone
	}

	var oob []byte
	if len(c.outFDs) > 0 {
		oob = unix.UnixRights(c.outFDs...)
	}

	err := unix.Sendmsg(c.fd, c.outBuf, oob, nil, 0)
	c.outBuf = c.outBuf[:0]
	c.outFDs = c.outFDs[:0]

	if err != nil {
		if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
			c.gone = true
			return ErrClientGone
		}
		return fmt.Errorf("wl: flush to client %d: %w", c.fd, err)
	}
	return nil
}

// SendError delivers wl_display.error for a protocol fault. The client is
// dropped by the caller afterwards.
func (c *Client) SendError(pe *ProtocolError) {
	if err := c.Display().Error(c, pe.Object, pe.Code, pe.Message); err != nil {
		return
	}
	_ = c.Flush()
}

// Close releases the socket. Object teardown happens in the reconciler,
// which calls ReleaseResources once the client leaves the window stack.
func (c *Client) Close() {
	c.gone = true
	_ = unix.Close(c.fd)
}

// ReleaseResources frees everything the client's objects hold outside its
// own table: GPU textures behind surfaces, imported dmabuf textures, and
// shm pool mappings. Buffer release events queued here go nowhere (the
// socket is gone); only the backing resources matter.
func (c *Client) ReleaseResources() {
	for _, surface := range ObjectsOf[*Surface](c) {
		surface.releaseAllRefs(c)
	}
	for _, buf := range ObjectsOf[*Buffer](c) {
		if backing, ok := buf.backing.(*DmabufBacking); ok {
			c.renderer.ReleaseTexture(backing.Texture)
		}
	}
	for _, pool := range ObjectsOf[*ShmPool](c) {
		pool.unmap()
	}
}
