//go:build linux

package comp

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/input"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/wire"
	"github.com/tatami-wm/tatami/internal/wl"
)

// fakeRenderer satisfies render.Renderer without a GPU.
type fakeRenderer struct {
	next     render.Texture
	draws    int
	releases int
}

func (f *fakeRenderer) UploadShm(existing render.Texture, pool []byte, offset, stride int32, size geom.Point, format uint32) (render.Texture, error) {
	if existing != render.NoTexture {
		return existing, nil
	}
	f.next++
	return f.next, nil
}

func (f *fakeRenderer) ImportDmabuf(size geom.Point, fourcc uint32, modifier uint64, planes []render.DmabufPlane) (render.Texture, error) {
	f.next++
	return f.next, nil
}

func (f *fakeRenderer) DrawTexturedQuad(tex render.Texture, dst geom.Rect) { f.draws++ }
func (f *fakeRenderer) BeginFrame()                                       {}
func (f *fakeRenderer) EndFrame() error                                   { return nil }
func (f *fakeRenderer) ReleaseTexture(tex render.Texture)                 { f.releases++ }

// fakeKeymap reports a fixed depressed mask.
type fakeKeymap struct {
	depressed uint32
}

func (f *fakeKeymap) UpdateKey(code uint32, pressed bool)                       {}
func (f *fakeKeymap) Modifiers() (uint32, uint32, uint32, uint32)               { return f.depressed, 0, 0, 0 }

// harness drives a State with synthetic clients.
type harness struct {
	t        *testing.T
	state    *State
	renderer *fakeRenderer
	globals  *wl.Globals
	nextFD   int
}

func newHarness(t *testing.T) *harness {
	globals := wl.NewGlobals(wl.OutputInfo{
		Size:       geom.Pt(2560, 1440),
		RefreshMHz: 144000,
		Make:       "test",
		Model:      "test",
	})
	globals.Keymap = wl.KeymapInfo{FD: -1}
	globals.RegisterDefaults()

	return &harness{
		t:        t,
		state:    NewState(geom.Pt(2560, 1440), zerolog.Nop()),
		renderer: &fakeRenderer{},
		globals:  globals,
		nextFD:   -2, // fake fds stay negative so Close never hits a real one
	}
}

// request dispatches one raw request, failing the test on error.
func (h *harness) request(c *wl.Client, object wire.ObjectID, op wire.Opcode, fn func(*wire.Encoder)) {
	h.t.Helper()
	enc := wire.NewEncoder(64)
	if fn != nil {
		fn(enc)
	}
	require.NoError(h.t, c.Dispatch(object, op, enc.Bytes()))
}

// newClient connects a synthetic client with compositor, xdg_wm_base and
// seat bound under fixed IDs (3, 4, 5), plus shm under 6.
func (h *harness) newClient() *wl.Client {
	h.t.Helper()

	fd := h.nextFD
	h.nextFD--

	c := wl.NewClient(fd, geom.Pt(10, 10), h.renderer, zerolog.Nop())
	require.NoError(h.t, c.AddObject(1, wl.NewDisplay(h.globals)))
	h.state.AddClient(c)

	h.request(c, 1, 1, func(e *wire.Encoder) { e.PutObject(2) }) // get_registry

	bind := func(name uint32, iface string, version uint32, id wire.ObjectID) {
		h.request(c, 2, 0, func(e *wire.Encoder) {
			e.PutUint32(name)
			e.PutString(iface)
			e.PutUint32(version)
			e.PutObject(id)
		})
	}
	// Registration order in Globals fixes the names.
	bind(2, "wl_compositor", 4, 3)
	bind(7, "xdg_wm_base", 6, 4)
	bind(5, "wl_seat", 7, 5)
	bind(1, "wl_shm", 1, 6)
	bind(8, "zwp_linux_dmabuf_v1", 5, 9)

	h.drain(c)
	return c
}

// addToplevel builds surface→xdg_surface→xdg_toplevel under the given IDs
// and attaches a 16×16 shm buffer so the surface has a hit region.
func (h *harness) addToplevel(c *wl.Client, surface, xdg, toplevel wire.ObjectID) {
	h.t.Helper()

	h.request(c, 3, 0, func(e *wire.Encoder) { e.PutObject(surface) }) // create_surface
	h.request(c, 4, 2, func(e *wire.Encoder) {                        // get_xdg_surface
		e.PutObject(xdg)
		e.PutObject(surface)
	})
	h.request(c, xdg, 1, func(e *wire.Encoder) { e.PutObject(toplevel) }) // get_toplevel

	poolFD, err := unix.MemfdCreate("pool", unix.MFD_CLOEXEC)
	require.NoError(h.t, err)
	require.NoError(h.t, unix.Ftruncate(poolFD, 1024))
	h.t.Cleanup(func() { _ = unix.Close(poolFD) })

	c.QueueReceivedFDs([]int{poolFD})
	pool := surface + 50
	buffer := surface + 51
	h.request(c, 6, 0, func(e *wire.Encoder) { // create_pool
		e.PutObject(pool)
		e.PutInt32(1024)
	})
	h.request(c, pool, 0, func(e *wire.Encoder) { // create_buffer
		e.PutObject(buffer)
		e.PutInt32(0)
		e.PutInt32(16)
		e.PutInt32(16)
		e.PutInt32(64)
		e.PutUint32(0)
	})
	h.request(c, surface, 1, func(e *wire.Encoder) { // attach
		e.PutObject(buffer)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	h.request(c, surface, 6, nil) // commit
	h.drain(c)
}

// addInputs creates a pointer (id 7) and keyboard (id 8) on the client.
func (h *harness) addInputs(c *wl.Client) {
	h.request(c, 5, 0, func(e *wire.Encoder) { e.PutObject(7) })
	h.request(c, 5, 1, func(e *wire.Encoder) { e.PutObject(8) })
	h.drain(c)
}

// drain parses and clears a client's queued events.
func (h *harness) drain(c *wl.Client) []event {
	h.t.Helper()

	buf := c.PendingOut()
	var events []event
	for len(buf) > 0 {
		object, opcode, size, err := wire.ParseHeader(buf)
		require.NoError(h.t, err)
		args := make([]byte, size-wire.HeaderSize)
		copy(args, buf[wire.HeaderSize:size])
		events = append(events, event{Object: object, Opcode: opcode, Args: args})
		buf = buf[size:]
	}
	c.ClearPendingOut()
	return events
}

type event struct {
	Object wire.ObjectID
	Opcode wire.Opcode
	Args   []byte
}

// find returns the events emitted by one object with one opcode.
func find(events []event, object wire.ObjectID, opcode wire.Opcode) []event {
	var out []event
	for _, ev := range events {
		if ev.Object == object && ev.Opcode == opcode {
			out = append(out, ev)
		}
	}
	return out
}

func TestLayout(t *testing.T) {
	output := geom.Pt(2560, 1440)

	tests := []struct {
		name         string
		index, count int
		want         geom.Rect
	}{
		{"single fills output", 0, 1, geom.Rct(0, 0, 2560, 1440)},
		{"front takes left half", 0, 2, geom.Rct(0, 0, 1280, 1440)},
		{"second takes right column", 1, 2, geom.Rct(1280, 0, 1280, 1440)},
		{"three way front", 0, 3, geom.Rct(0, 0, 1280, 1440)},
		{"three way upper right", 1, 3, geom.Rct(1280, 0, 1280, 720)},
		{"three way lower right", 2, 3, geom.Rct(1280, 720, 1280, 720)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Layout(tt.index, tt.count, output))
		})
	}
}

func TestReconcileConfiguresNewToplevel(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)

	h.state.Reconcile()

	front, ok := h.state.FocusedWindow()
	require.True(t, ok)
	require.Equal(t, wire.ObjectID(13), front.Toplevel)

	events := h.drain(c)

	// xdg_toplevel.configure carries the full output size and the
	// activated state.
	configures := find(events, 13, 0)
	require.Len(t, configures, 1)

	d := wire.NewDecoder(configures[0].Args, nil)
	w, _ := d.Int32()
	hgt, _ := d.Int32()
	states, _ := d.Array()
	require.Equal(t, int32(2560), w)
	require.Equal(t, int32(1440), hgt)
	require.Equal(t, []byte{4, 0, 0, 0}, states) // activated

	// Followed by xdg_surface.configure with a serial.
	surfConfigures := find(events, 12, 0)
	require.Len(t, surfConfigures, 1)
	d = wire.NewDecoder(surfConfigures[0].Args, nil)
	serial, _ := d.Uint32()
	require.Equal(t, uint32(1), serial)

	// An empty journal leaves everything alone.
	h.state.Reconcile()
	require.Empty(t, h.drain(c))
}

func TestReconcileTwoWindowTiling(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.state.Reconcile()
	h.drain(c)

	h.addToplevel(c, 21, 22, 23)
	h.state.Reconcile()

	front, _ := h.state.FocusedWindow()
	require.Equal(t, wire.ObjectID(23), front.Toplevel)

	tl13, err := wl.Get[*wl.XdgToplevel](c, 13)
	require.NoError(t, err)
	tl23, err := wl.Get[*wl.XdgToplevel](c, 23)
	require.NoError(t, err)

	require.Equal(t, geom.Pt(0, 0), tl23.Position)
	require.Equal(t, geom.Pt(1280, 1440), *tl23.Size)
	require.Equal(t, geom.Pt(1280, 0), tl13.Position)
	require.Equal(t, geom.Pt(1280, 1440), *tl13.Size)

	require.False(t, tl13.HasState(wl.ToplevelStateActivated))
	require.True(t, tl23.HasState(wl.ToplevelStateActivated))
}

func TestFocusTransferOnClick(t *testing.T) {
	h := newHarness(t)

	cb := h.newClient() // will end up in the right column
	h.addToplevel(cb, 11, 12, 13)
	h.addInputs(cb)

	ca := h.newClient() // focused, left half
	h.addToplevel(ca, 11, 12, 13)
	h.addInputs(ca)

	h.state.Reconcile()
	h.drain(ca)
	h.drain(cb)

	front, _ := h.state.FocusedWindow()
	require.Equal(t, ca.FD(), front.FD)

	// Move over A's window first.
	h.state.PointerMotion(5, 5)
	require.NotNil(t, h.state.PointerFocus())
	require.Equal(t, ca.FD(), h.state.PointerFocus().FD)
	h.drain(ca)

	// Cross into B's window: A gets leave+frame, B gets enter+frame.
	h.state.PointerMotion(1283, 0)
	require.Equal(t, cb.FD(), h.state.PointerFocus().FD)

	aEvents := h.drain(ca)
	require.Len(t, find(aEvents, 7, 1), 1) // pointer.leave
	require.Len(t, find(aEvents, 7, 5), 1) // pointer.frame

	bEvents := h.drain(cb)
	require.Len(t, find(bEvents, 7, 0), 1) // pointer.enter
	require.Len(t, find(bEvents, 7, 5), 1) // pointer.frame

	// Click raises B.
	h.state.PointerButton(input.ButtonLeft, input.ButtonPressed)

	bEvents = h.drain(cb)
	require.Len(t, find(bEvents, 7, 3), 1) // pointer.button

	h.state.Reconcile()

	front, _ = h.state.FocusedWindow()
	require.Equal(t, cb.FD(), front.FD)

	// Keyboard focus moved: leave to A, enter to B.
	aEvents = h.drain(ca)
	require.Len(t, find(aEvents, 8, 2), 1) // keyboard.leave

	bEvents = h.drain(cb)
	require.Len(t, find(bEvents, 8, 1), 1) // keyboard.enter
}

func TestPointerMotionWithinSurface(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.addInputs(c)
	h.state.Reconcile()
	h.drain(c)

	h.state.PointerMotion(4, 4)
	h.drain(c)

	h.state.PointerMotion(2, 1)
	events := h.drain(c)
	motions := find(events, 7, 2)
	require.Len(t, motions, 1)
	require.Len(t, find(events, 7, 0), 0) // no re-enter

	d := wire.NewDecoder(motions[0].Args, nil)
	d.Uint32() // time
	x, _ := d.Fixed()
	y, _ := d.Fixed()
	require.Equal(t, int32(6), x.Int())
	require.Equal(t, int32(5), y.Int())
}

func TestScrollRouting(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.addInputs(c)
	h.state.Reconcile()
	h.state.PointerMotion(4, 4)
	h.drain(c)

	h.state.PointerScroll(input.AxisVertical, 120)

	events := h.drain(c)
	require.Len(t, events, 4)
	require.Equal(t, wire.Opcode(6), events[0].Opcode) // axis_source
	require.Equal(t, wire.Opcode(8), events[1].Opcode) // axis_discrete
	require.Equal(t, wire.Opcode(4), events[2].Opcode) // axis
	require.Equal(t, wire.Opcode(5), events[3].Opcode) // frame

	d := wire.NewDecoder(events[1].Args, nil)
	d.Uint32() // axis
	discrete, _ := d.Int32()
	require.Equal(t, int32(1), discrete)

	d = wire.NewDecoder(events[2].Args, nil)
	d.Uint32() // time
	d.Uint32() // axis
	value, _ := d.Fixed()
	require.InDelta(t, 10.0, value.Float(), 0.01)
}

func TestHotkeyQuit(t *testing.T) {
	h := newHarness(t)
	h.state.Keymap = &fakeKeymap{depressed: input.ModAlt}

	h.state.KeyboardKey(input.KeyEsc, input.KeyPressed)
	require.True(t, h.state.Quit())
}

func TestHotkeyCloseFocused(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.state.Reconcile()
	h.drain(c)

	h.state.Keymap = &fakeKeymap{depressed: input.ModAlt}
	h.state.KeyboardKey(input.KeyC, input.KeyPressed)

	events := h.drain(c)
	require.Len(t, find(events, 13, 1), 1) // xdg_toplevel.close
}

func TestKeyRoutingSuppressesRepeats(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.addInputs(c)
	h.state.Reconcile()
	h.drain(c)

	h.state.KeyboardKey(input.KeyA, input.KeyPressed)
	h.state.KeyboardKey(input.KeyA, input.KeyPressed)
	h.state.KeyboardKey(input.KeyA, input.KeyReleased)

	events := h.drain(c)
	keys := find(events, 8, 3)       // keyboard.key
	modifiers := find(events, 8, 4)  // keyboard.modifiers
	require.Len(t, keys, 2)          // press + release, repeat suppressed
	require.Len(t, modifiers, 3)     // every event updates modifiers
}

func TestClientDisconnectReconciles(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.addInputs(c)
	h.state.Reconcile()
	h.state.PointerMotion(4, 4)
	h.drain(c)

	require.NotNil(t, h.state.PointerFocus())

	h.state.DropClient(c.FD())
	h.state.Reconcile()

	_, ok := h.state.FocusedWindow()
	require.False(t, ok)
	require.Nil(t, h.state.PointerFocus())
	require.Empty(t, h.state.Clients)

	// Teardown freed the surface's GPU texture.
	require.Equal(t, 1, h.renderer.releases)
}

func TestComposeDrawsStack(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.state.Reconcile()
	h.drain(c)

	h.state.ComposeFrame(h.renderer)
	require.Equal(t, 1, h.renderer.draws)
}

func TestDmabufHeldWhileScannedOut(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.state.Reconcile()
	h.drain(c)

	// Import a dmabuf as buffer 30 and attach it.
	planeFD, err := unix.MemfdCreate("plane", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(planeFD) })

	c.QueueReceivedFDs([]int{planeFD})
	h.request(c, 9, 1, func(e *wire.Encoder) { e.PutObject(20) }) // create_params
	h.request(c, 20, 1, func(e *wire.Encoder) {                  // add
		e.PutUint32(0)
		e.PutUint32(0)
		e.PutUint32(7680)
		e.PutUint32(0)
		e.PutUint32(0)
	})
	h.request(c, 20, 3, func(e *wire.Encoder) { // create_immed
		e.PutObject(30)
		e.PutInt32(1920)
		e.PutInt32(1080)
		e.PutUint32(0x34325258) // XRGB8888
		e.PutUint32(0)
	})

	h.request(c, 11, 1, func(e *wire.Encoder) { // attach
		e.PutObject(30)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	h.request(c, 11, 6, nil) // commit
	h.drain(c)

	// Render and flip: the dmabuf moves to the scanout slot.
	h.state.ComposeFrame(h.renderer)
	h.state.FlipCompleted(1, 0, 1, 6_944_444)
	require.Empty(t, find(h.drain(c), 30, 0), "release while scanned out")

	// A new shm attach replaces the dmabuf, but scanout still holds it.
	h.request(c, 11, 1, func(e *wire.Encoder) { // attach the shm buffer again
		e.PutObject(62)
		e.PutInt32(0)
		e.PutInt32(0)
	})
	h.request(c, 11, 6, nil)
	require.Empty(t, find(h.drain(c), 30, 0), "release before the flip retired it")

	// The flip that retires the dmabuf from scanout releases it, once.
	h.state.ComposeFrame(h.renderer)
	h.state.FlipCompleted(2, 0, 2, 6_944_444)
	require.Len(t, find(h.drain(c), 30, 0), 1)

	// And never again.
	h.state.ComposeFrame(h.renderer)
	h.state.FlipCompleted(3, 0, 3, 6_944_444)
	require.Empty(t, find(h.drain(c), 30, 0))
}

func TestFlipCompletedFiresFrameCallbacks(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	h.addToplevel(c, 11, 12, 13)
	h.state.Reconcile()
	h.drain(c)

	// Queue a frame callback and commit it.
	h.request(c, 11, 3, func(e *wire.Encoder) { e.PutObject(40) })
	h.request(c, 11, 6, nil)
	h.drain(c)

	h.state.FlipCompleted(1, 0, 1, 6_944_444)

	events := h.drain(c)
	require.Len(t, find(events, 40, 0), 1) // callback.done

	// Fired callbacks are gone.
	h.state.FlipCompleted(2, 0, 2, 6_944_444)
	require.Empty(t, find(h.drain(c), 40, 0))
}
