//go:build linux

package wl

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wire"
)

// fakeRenderer counts backend calls and hands out sequential textures.
type fakeRenderer struct {
	next     render.Texture
	uploads  int
	imports  int
	releases int
	failNext bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{next: 1}
}

func (f *fakeRenderer) UploadShm(existing render.Texture, pool []byte, offset, stride int32, size geom.Point, format uint32) (render.Texture, error) {
	if f.failNext {
		f.failNext = false
		return render.NoTexture, render.ErrUploadFailed
	}
	f.uploads++
	if existing != render.NoTexture {
		return existing, nil
	}
	tex := f.next
	f.next++
	return tex, nil
}

func (f *fakeRenderer) ImportDmabuf(size geom.Point, fourcc uint32, modifier uint64, planes []render.DmabufPlane) (render.Texture, error) {
	f.imports++
	tex := f.next
	f.next++
	return tex, nil
}

func (f *fakeRenderer) DrawTexturedQuad(tex render.Texture, dst geom.Rect) {}
func (f *fakeRenderer) BeginFrame()                                       {}
func (f *fakeRenderer) EndFrame() error                                   { return nil }
func (f *fakeRenderer) ReleaseTexture(tex render.Texture)                 { f.releases++ }

// event is a decoded outbound event.
type event struct {
	Object wire.ObjectID
	Opcode wire.Opcode
	Args   []byte
}

// newTestClient builds a client with a display but no real socket; events
// queue in the outbound buffer where drainEvents reads them.
func newTestClient(t *testing.T) (*Client, *fakeRenderer) {
	t.Helper()

	r := newFakeRenderer()
	globals := NewGlobals(OutputInfo{
		Size:       geom.Pt(2560, 1440),
		RefreshMHz: 144000,
		Make:       "test",
		Model:      "test",
	})
	globals.Keymap = KeymapInfo{FD: -1}
	globals.RegisterDefaults()

	c := NewClient(-1, geom.Pt(10, 10), r, zerolog.Nop())
	if err := c.AddObject(1, NewDisplay(globals)); err != nil {
		t.Fatal(err)
	}
	return c, r
}

// drainEvents parses and clears the client's outbound buffer.
func drainEvents(t *testing.T, c *Client) []event {
	t.Helper()

	buf := c.PendingOut()
	var events []event
	for len(buf) > 0 {
		object, opcode, size, err := wire.ParseHeader(buf)
		if err != nil {
			t.Fatalf("parse event header: %v", err)
		}
		args := make([]byte, size-wire.HeaderSize)
		copy(args, buf[wire.HeaderSize:size])
		events = append(events, event{Object: object, Opcode: opcode, Args: args})
		buf = buf[size:]
	}
	c.ClearPendingOut()
	return events
}

// dispatch runs one request built by fn against the client.
func dispatch(t *testing.T, c *Client, object wire.ObjectID, op wire.Opcode, fn func(*wire.Encoder)) {
	t.Helper()
	if err := dispatchErr(c, object, op, fn); err != nil {
		t.Fatalf("dispatch %d@%d: %v", op, object, err)
	}
}

func dispatchErr(c *Client, object wire.ObjectID, op wire.Opcode, fn func(*wire.Encoder)) error {
	enc := wire.NewEncoder(64)
	if fn != nil {
		fn(enc)
	}
	return c.Dispatch(object, op, enc.Bytes())
}

// shmFD creates a sized memfd standing in for a client shm pool.
func shmFD(t *testing.T, size int64) int {
	t.Helper()
	fd, err := unix.MemfdCreate("test-pool", unix.MFD_CLOEXEC)
	if err != nil {
		t.Fatal(err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = unix.Close(fd) })
	return fd
}

// bindGlobals runs get_registry and binds every advertised global under a
// predictable id, returning interface name → bound id.
func bindGlobals(t *testing.T, c *Client) map[string]wire.ObjectID {
	t.Helper()

	dispatch(t, c, 1, displayGetRegistry, func(e *wire.Encoder) { e.PutObject(2) })

	bound := make(map[string]wire.ObjectID)
	next := wire.ObjectID(100)
	for _, ev := range drainEvents(t, c) {
		if ev.Object != 2 || ev.Opcode != registryEventGlobal {
			continue
		}
		d := wire.NewDecoder(ev.Args, nil)
		name, _ := d.Uint32()
		iface, _ := d.String()
		version, _ := d.Uint32()

		id := next
		next++
		dispatch(t, c, 2, registryBind, func(e *wire.Encoder) {
			e.PutUint32(name)
			e.PutString(iface)
			e.PutUint32(version)
			e.PutObject(id)
		})
		bound[iface] = id
	}
	drainEvents(t, c)
	return bound
}

func TestBindAndRoundtrip(t *testing.T) {
	c, _ := newTestClient(t)

	dispatch(t, c, 1, displayGetRegistry, func(e *wire.Encoder) { e.PutObject(2) })
	dispatch(t, c, 1, displaySync, func(e *wire.Encoder) { e.PutObject(3) })

	events := drainEvents(t, c)
	if len(events) < 3 {
		t.Fatalf("got %d events, want globals + done + delete_id", len(events))
	}

	globals := 0
	for _, ev := range events[:len(events)-2] {
		if ev.Object != 2 || ev.Opcode != registryEventGlobal {
			t.Fatalf("expected registry.global, got %d@%d", ev.Opcode, ev.Object)
		}
		globals++
	}
	if globals != 11 {
		t.Errorf("advertised %d globals, want 11", globals)
	}

	done := events[len(events)-2]
	if done.Object != 3 || done.Opcode != callbackEventDone {
		t.Fatalf("expected callback.done on 3, got %d@%d", done.Opcode, done.Object)
	}
	d := wire.NewDecoder(done.Args, nil)
	if serial, _ := d.Uint32(); serial != 0 {
		t.Errorf("done serial = %d, want 0", serial)
	}

	del := events[len(events)-1]
	if del.Object != 1 || del.Opcode != displayEventDeleteID {
		t.Fatalf("expected delete_id, got %d@%d", del.Opcode, del.Object)
	}
	d = wire.NewDecoder(del.Args, nil)
	if id, _ := d.Uint32(); id != 3 {
		t.Errorf("delete_id = %d, want 3", id)
	}

	// The callback ID is reusable after delete_id.
	dispatch(t, c, 1, displaySync, func(e *wire.Encoder) { e.PutObject(3) })
}

func TestShmSurfaceLifecycle(t *testing.T) {
	c, r := newTestClient(t)
	bound := bindGlobals(t, c)

	fd := shmFD(t, 4096)
	c.QueueReceivedFDs([]int{fd})

	shm := bound[IfaceShm]
	dispatch(t, c, shm, shmCreatePool, func(e *wire.Encoder) {
		e.PutObject(9)
		e.PutInt32(4096)
	})
	dispatch(t, c, 9, shmPoolCreateBuffer, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(4)
		e.PutInt32(4)
		e.PutInt32(16)
		e.PutUint32(ShmFormatARGB8888)
	})

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })

	wm := bound[IfaceXdgWmBase]
	dispatch(t, c, wm, xdgWmBaseGetXdgSurface, func(e *wire.Encoder) {
		e.PutObject(12)
		e.PutObject(11)
	})
	dispatch(t, c, 12, xdgSurfaceGetToplevel, func(e *wire.Encoder) { e.PutObject(13) })

	changes := c.DrainChanges()
	if len(changes) != 1 || changes[0].Kind != ChangePush || changes[0].Toplevel != 13 {
		t.Fatalf("expected Push change for toplevel 13, got %+v", changes)
	}

	// Frame callback, attach, commit.
	dispatch(t, c, 11, surfaceFrame, func(e *wire.Encoder) { e.PutObject(14) })
	dispatch(t, c, 11, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	drainEvents(t, c)
	dispatch(t, c, 11, surfaceCommit, nil)

	if r.uploads != 1 {
		t.Errorf("uploads = %d, want 1", r.uploads)
	}

	events := drainEvents(t, c)
	if len(events) != 1 || events[0].Object != 10 || events[0].Opcode != bufferEventRelease {
		t.Fatalf("expected exactly one wl_buffer.release on 10, got %+v", events)
	}

	// The page flip fires the frame callback.
	surface, err := Get[*Surface](c, 11)
	if err != nil {
		t.Fatal(err)
	}
	if err := surface.Frame(c, 12345); err != nil {
		t.Fatal(err)
	}

	events = drainEvents(t, c)
	if len(events) != 2 {
		t.Fatalf("expected done + delete_id, got %+v", events)
	}
	if events[0].Object != 14 || events[0].Opcode != callbackEventDone {
		t.Fatalf("expected callback.done on 14, got %d@%d", events[0].Opcode, events[0].Object)
	}
	d := wire.NewDecoder(events[0].Args, nil)
	if ms, _ := d.Uint32(); ms != 12345 {
		t.Errorf("frame time = %d, want 12345", ms)
	}

	// Callbacks fire once.
	if err := surface.Frame(c, 99); err != nil {
		t.Fatal(err)
	}
	if events := drainEvents(t, c); len(events) != 0 {
		t.Errorf("frame callbacks fired twice: %+v", events)
	}
}

func TestAttachNullReleasesShmTexture(t *testing.T) {
	c, r := newTestClient(t)
	bound := bindGlobals(t, c)

	fd := shmFD(t, 4096)
	c.QueueReceivedFDs([]int{fd})
	dispatch(t, c, bound[IfaceShm], shmCreatePool, func(e *wire.Encoder) {
		e.PutObject(9)
		e.PutInt32(4096)
	})
	dispatch(t, c, 9, shmPoolCreateBuffer, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(4)
		e.PutInt32(4)
		e.PutInt32(16)
		e.PutUint32(ShmFormatXRGB8888)
	})
	dispatch(t, c, bound[IfaceCompositor], compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })

	dispatch(t, c, 11, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 11, surfaceCommit, nil)
	drainEvents(t, c)

	dispatch(t, c, 11, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(0)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 11, surfaceCommit, nil)

	if r.releases != 1 {
		t.Errorf("texture releases = %d, want 1", r.releases)
	}

	surface, _ := Get[*Surface](c, 11)
	if _, ok := surface.Texture(); ok {
		t.Error("surface still has a texture after attach(null)")
	}

	// Only the first commit released the buffer.
	if events := drainEvents(t, c); len(events) != 0 {
		t.Errorf("attach(null) commit emitted %+v", events)
	}
}

func TestSubsurfaceSyncCommit(t *testing.T) {
	c, r := newTestClient(t)
	bound := bindGlobals(t, c)

	fd := shmFD(t, 8192)
	c.QueueReceivedFDs([]int{fd})
	dispatch(t, c, bound[IfaceShm], shmCreatePool, func(e *wire.Encoder) {
		e.PutObject(9)
		e.PutInt32(8192)
	})
	for _, id := range []wire.ObjectID{10, 20} {
		bufID := id
		dispatch(t, c, 9, shmPoolCreateBuffer, func(e *wire.Encoder) {
			e.PutObject(bufID)
			e.PutInt32(0)
			e.PutInt32(4)
			e.PutInt32(4)
			e.PutInt32(16)
			e.PutUint32(ShmFormatARGB8888)
		})
	}

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) }) // parent
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(12) }) // child

	dispatch(t, c, bound[IfaceSubcompositor], subcompositorGetSubsurface, func(e *wire.Encoder) {
		e.PutObject(13)
		e.PutObject(12)
		e.PutObject(11)
	})

	// Committing the synced child publishes nothing.
	dispatch(t, c, 12, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(20)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 12, surfaceCommit, nil)

	if r.uploads != 0 {
		t.Fatalf("synced child commit uploaded a texture")
	}

	// Committing the parent publishes both.
	dispatch(t, c, 11, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 11, surfaceCommit, nil)

	if r.uploads != 2 {
		t.Errorf("uploads after parent commit = %d, want 2", r.uploads)
	}

	parent, _ := Get[*Surface](c, 11)
	child, _ := Get[*Surface](c, 12)
	if _, ok := parent.Texture(); !ok {
		t.Error("parent has no texture after commit")
	}
	if _, ok := child.Texture(); !ok {
		t.Error("synced child not published by parent commit")
	}
}

func TestSubsurfaceDesyncCommitsAlone(t *testing.T) {
	c, r := newTestClient(t)
	bound := bindGlobals(t, c)

	fd := shmFD(t, 4096)
	c.QueueReceivedFDs([]int{fd})
	dispatch(t, c, bound[IfaceShm], shmCreatePool, func(e *wire.Encoder) {
		e.PutObject(9)
		e.PutInt32(4096)
	})
	dispatch(t, c, 9, shmPoolCreateBuffer, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(4)
		e.PutInt32(4)
		e.PutInt32(16)
		e.PutUint32(ShmFormatARGB8888)
	})

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(12) })
	dispatch(t, c, bound[IfaceSubcompositor], subcompositorGetSubsurface, func(e *wire.Encoder) {
		e.PutObject(13)
		e.PutObject(12)
		e.PutObject(11)
	})

	dispatch(t, c, 13, subsurfaceSetDesync, nil)
	dispatch(t, c, 12, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 12, surfaceCommit, nil)

	if r.uploads != 1 {
		t.Errorf("desync child commit uploads = %d, want 1", r.uploads)
	}
}

func TestDoubleRoleIsProtocolError(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(12) })

	dispatch(t, c, bound[IfaceXdgWmBase], xdgWmBaseGetXdgSurface, func(e *wire.Encoder) {
		e.PutObject(13)
		e.PutObject(11)
	})
	dispatch(t, c, 13, xdgSurfaceGetToplevel, func(e *wire.Encoder) { e.PutObject(14) })

	// A toplevel surface cannot become a subsurface.
	err := dispatchErr(c, bound[IfaceSubcompositor], subcompositorGetSubsurface, func(e *wire.Encoder) {
		e.PutObject(15)
		e.PutObject(11)
		e.PutObject(12)
	})

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestSubsurfaceCycleRejected(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(12) })

	dispatch(t, c, bound[IfaceSubcompositor], subcompositorGetSubsurface, func(e *wire.Encoder) {
		e.PutObject(13)
		e.PutObject(12)
		e.PutObject(11)
	})

	// The parent may not become a subsurface of its own descendant.
	err := dispatchErr(c, bound[IfaceSubcompositor], subcompositorGetSubsurface, func(e *wire.Encoder) {
		e.PutObject(14)
		e.PutObject(11)
		e.PutObject(12)
	})

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestUnknownObjectIsProtocolError(t *testing.T) {
	c, _ := newTestClient(t)

	err := dispatchErr(c, 999, 0, nil)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if pe.Code != DisplayErrorInvalidObject {
		t.Errorf("code = %d, want invalid_object", pe.Code)
	}
}

func TestBindVersionTooHigh(t *testing.T) {
	c, _ := newTestClient(t)
	dispatch(t, c, 1, displayGetRegistry, func(e *wire.Encoder) { e.PutObject(2) })
	drainEvents(t, c)

	// wl_shm is global name 1 with version 1.
	err := dispatchErr(c, 2, registryBind, func(e *wire.Encoder) {
		e.PutUint32(1)
		e.PutString(IfaceShm)
		e.PutUint32(99)
		e.PutObject(50)
	})

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestSeatKeyboardAnnouncements(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	dispatch(t, c, bound[IfaceSeat], seatGetKeyboard, func(e *wire.Encoder) { e.PutObject(30) })

	events := drainEvents(t, c)
	if len(events) != 1 {
		t.Fatalf("got %d events, want repeat_info", len(events))
	}
	if events[0].Opcode != keyboardEventRepeatInfo {
		t.Fatalf("expected repeat_info, got op %d", events[0].Opcode)
	}

	d := wire.NewDecoder(events[0].Args, nil)
	rate, _ := d.Int32()
	delay, _ := d.Int32()
	if rate != 33 || delay != 500 {
		t.Errorf("repeat_info = (%d, %d), want (33, 500)", rate, delay)
	}
}

func TestAttachedBufferRelease(t *testing.T) {
	c, _ := newTestClient(t)

	if err := c.AddObject(10, &Buffer{id: 10, backing: &DmabufBacking{}}); err != nil {
		t.Fatal(err)
	}

	ref := NewAttachedBuffer(10)
	clone := ref.Clone()
	if ref.Refs() != 2 {
		t.Fatalf("refs = %d, want 2", ref.Refs())
	}

	if err := ref.Release(c); err != nil {
		t.Fatal(err)
	}
	if events := drainEvents(t, c); len(events) != 0 {
		t.Fatalf("release fired with live holders: %+v", events)
	}

	if err := clone.Release(c); err != nil {
		t.Fatal(err)
	}
	events := drainEvents(t, c)
	if len(events) != 1 || events[0].Object != 10 || events[0].Opcode != bufferEventRelease {
		t.Fatalf("expected exactly one release, got %+v", events)
	}
}

func TestAttachedBufferReleaseAfterDestroy(t *testing.T) {
	c, r := newTestClient(t)

	if err := c.AddObject(10, &Buffer{id: 10, backing: &DmabufBacking{Texture: 7}}); err != nil {
		t.Fatal(err)
	}

	ref := NewAttachedBuffer(10)

	dispatch(t, c, 10, bufferDestroy, nil)
	drainEvents(t, c)
	if r.releases != 1 {
		t.Errorf("dmabuf texture not released on destroy")
	}

	// The object is gone; dropping the last ref must not emit anything.
	if err := ref.Release(c); err != nil {
		t.Fatal(err)
	}
	if events := drainEvents(t, c); len(events) != 0 {
		t.Fatalf("release after destroy emitted %+v", events)
	}
}

func TestLayerSurfaceInitialCommit(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })

	dispatch(t, c, bound[IfaceLayerShell], layerShellGetLayerSurface, func(e *wire.Encoder) {
		e.PutObject(12)
		e.PutObject(11)
		e.PutObject(0)
		e.PutUint32(0)
		e.PutString("panel")
	})

	dispatch(t, c, 11, surfaceCommit, nil)

	events := drainEvents(t, c)
	if len(events) != 1 || events[0].Object != 12 || events[0].Opcode != layerSurfaceEventConfigure {
		t.Fatalf("expected layer configure, got %+v", events)
	}

	d := wire.NewDecoder(events[0].Args, nil)
	d.Uint32() // serial
	w, _ := d.Uint32()
	h, _ := d.Uint32()
	if w != 0 || h != 0 {
		t.Errorf("initial configure size = (%d, %d), want (0, 0)", w, h)
	}

	// The second commit publishes normally, without another configure.
	dispatch(t, c, 11, surfaceCommit, nil)
	if events := drainEvents(t, c); len(events) != 0 {
		t.Errorf("second commit emitted %+v", events)
	}
}

func TestDmabufCreateImmed(t *testing.T) {
	c, r := newTestClient(t)
	bound := bindGlobals(t, c)

	dmabuf := bound[IfaceLinuxDmabuf]
	dispatch(t, c, dmabuf, dmabufCreateParams, func(e *wire.Encoder) { e.PutObject(20) })

	c.QueueReceivedFDs([]int{shmFD(t, 4096)})
	dispatch(t, c, 20, paramsAdd, func(e *wire.Encoder) {
		e.PutUint32(0)
		e.PutUint32(0)
		e.PutUint32(7680)
		e.PutUint32(0)
		e.PutUint32(0)
	})

	dispatch(t, c, 20, paramsCreateImmed, func(e *wire.Encoder) {
		e.PutObject(21)
		e.PutInt32(1920)
		e.PutInt32(1080)
		e.PutUint32(FourccXRGB8888)
		e.PutUint32(0)
	})

	if r.imports != 1 {
		t.Fatalf("imports = %d, want 1", r.imports)
	}

	buf, err := Get[*Buffer](c, 21)
	if err != nil {
		t.Fatal(err)
	}
	backing, ok := buf.Backing().(*DmabufBacking)
	if !ok {
		t.Fatalf("buffer backing is %T", buf.Backing())
	}
	if backing.Size != geom.Pt(1920, 1080) {
		t.Errorf("size = %v", backing.Size)
	}
}

func TestDmabufModifierMismatch(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	dispatch(t, c, bound[IfaceLinuxDmabuf], dmabufCreateParams, func(e *wire.Encoder) { e.PutObject(20) })

	c.QueueReceivedFDs([]int{shmFD(t, 4096), shmFD(t, 4096)})
	dispatch(t, c, 20, paramsAdd, func(e *wire.Encoder) {
		e.PutUint32(0)
		e.PutUint32(0)
		e.PutUint32(7680)
		e.PutUint32(0)
		e.PutUint32(0)
	})

	err := dispatchErr(c, 20, paramsAdd, func(e *wire.Encoder) {
		e.PutUint32(1)
		e.PutUint32(0)
		e.PutUint32(7680)
		e.PutUint32(1)
		e.PutUint32(0)
	})

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected protocol error on modifier mismatch, got %v", err)
	}
}

func TestPresentationFeedback(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	comp := bound[IfaceCompositor]
	dispatch(t, c, comp, compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })

	dispatch(t, c, bound[IfacePresentation], presentationFeedback, func(e *wire.Encoder) {
		e.PutObject(11)
		e.PutObject(30)
	})
	drainEvents(t, c)

	surface, _ := Get[*Surface](c, 11)
	dispatch(t, c, 11, surfaceCommit, nil)

	if err := surface.PresentationFeedback(c, 5, 100, 6_944_444, 42, 0); err != nil {
		t.Fatal(err)
	}

	events := drainEvents(t, c)
	// sync_output, presented, delete_id.
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Opcode != presentationFeedbackEventSyncOutput || events[0].Object != 30 {
		t.Errorf("expected sync_output, got %+v", events[0])
	}
	if events[1].Opcode != presentationFeedbackEventPresented || events[1].Object != 30 {
		t.Errorf("expected presented, got %+v", events[1])
	}

	d := wire.NewDecoder(events[1].Args, nil)
	secHi, _ := d.Uint32()
	secLo, _ := d.Uint32()
	nsec, _ := d.Uint32()
	refresh, _ := d.Uint32()
	seqHi, _ := d.Uint32()
	seqLo, _ := d.Uint32()
	if secHi != 0 || secLo != 5 || nsec != 100 || refresh != 6_944_444 || seqHi != 0 || seqLo != 42 {
		t.Errorf("presented args wrong: %d %d %d %d %d %d", secHi, secLo, nsec, refresh, seqHi, seqLo)
	}

	// Resolved feedback does not fire again.
	if err := surface.PresentationFeedback(c, 6, 0, 0, 43, 0); err != nil {
		t.Fatal(err)
	}
	if events := drainEvents(t, c); len(events) != 0 {
		t.Errorf("feedback fired twice: %+v", events)
	}
}

func TestReleaseResourcesFreesTexturesAndPools(t *testing.T) {
	c, r := newTestClient(t)
	bound := bindGlobals(t, c)

	// One shm-backed surface.
	fd := shmFD(t, 4096)
	c.QueueReceivedFDs([]int{fd})
	dispatch(t, c, bound[IfaceShm], shmCreatePool, func(e *wire.Encoder) {
		e.PutObject(9)
		e.PutInt32(4096)
	})
	dispatch(t, c, 9, shmPoolCreateBuffer, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(4)
		e.PutInt32(4)
		e.PutInt32(16)
		e.PutUint32(ShmFormatARGB8888)
	})
	dispatch(t, c, bound[IfaceCompositor], compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })
	dispatch(t, c, 11, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(10)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 11, surfaceCommit, nil)

	// One imported dmabuf, attached to a second surface.
	dispatch(t, c, bound[IfaceLinuxDmabuf], dmabufCreateParams, func(e *wire.Encoder) { e.PutObject(20) })
	c.QueueReceivedFDs([]int{shmFD(t, 4096)})
	dispatch(t, c, 20, paramsAdd, func(e *wire.Encoder) {
		e.PutUint32(0)
		e.PutUint32(0)
		e.PutUint32(7680)
		e.PutUint32(0)
		e.PutUint32(0)
	})
	dispatch(t, c, 20, paramsCreateImmed, func(e *wire.Encoder) {
		e.PutObject(21)
		e.PutInt32(1920)
		e.PutInt32(1080)
		e.PutUint32(FourccXRGB8888)
		e.PutUint32(0)
	})
	dispatch(t, c, bound[IfaceCompositor], compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(22) })
	dispatch(t, c, 22, surfaceAttach, func(e *wire.Encoder) {
		e.PutObject(21)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	dispatch(t, c, 22, surfaceCommit, nil)
	drainEvents(t, c)

	pool, err := Get[*ShmPool](c, 9)
	if err != nil {
		t.Fatal(err)
	}
	if pool.Data() == nil {
		t.Fatal("pool not mapped before teardown")
	}

	c.ReleaseResources()

	// The shm surface texture and the dmabuf import are both freed.
	if r.releases != 2 {
		t.Errorf("texture releases = %d, want 2", r.releases)
	}
	if pool.Data() != nil {
		t.Error("pool mapping survived teardown")
	}

	surface, _ := Get[*Surface](c, 11)
	if _, ok := surface.Texture(); ok {
		t.Error("surface still holds a texture after teardown")
	}
}

func TestSurfaceDestroyJournalsChange(t *testing.T) {
	c, _ := newTestClient(t)
	bound := bindGlobals(t, c)

	dispatch(t, c, bound[IfaceCompositor], compositorCreateSurface, func(e *wire.Encoder) { e.PutObject(11) })
	c.DrainChanges()

	dispatch(t, c, 11, surfaceDestroy, nil)

	changes := c.DrainChanges()
	if len(changes) != 1 || changes[0].Kind != ChangeRemoveSurface || changes[0].Surface != 11 {
		t.Fatalf("expected RemoveSurface change, got %+v", changes)
	}

	if c.HasObject(11) {
		t.Error("surface object still live after destroy")
	}
}
