//go:build linux && cgo

package tatami

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/tatami-wm/tatami/internal/comp"
	"github.com/tatami-wm/tatami/internal/config"
	"github.com/tatami-wm/tatami/internal/drm"
	"github.com/tatami-wm/tatami/internal/elp"
	"github.com/tatami-wm/tatami/internal/geom"
	"github.com/tatami-wm/tatami/internal/libinput"
	"github.com/tatami-wm/tatami/internal/output"
	"github.com/tatami-wm/tatami/internal/render"
	"github.com/tatami-wm/tatami/internal/session"
	"github.com/tatami-wm/tatami/internal/wl"
	"github.com/tatami-wm/tatami/internal/xkb"
)

// Compositor wires the configuration, session, output, renderer and
// protocol engine together and runs the event loop.
type Compositor struct {
	cfg config.Config
	log zerolog.Logger

	sess     *session.Session
	dev      *drm.Device
	screen   *output.Screen
	renderer render.Renderer
	xkbState *xkb.State
	globals  *wl.Globals
	state    *comp.State
	loop     *elp.Loop

	listenFD int
	lockFD   int
	sockPath string

	clientIndex int
	cfgEvents   chan config.Config
	cfgWake     *elp.EventFD
	stopWatch   func()
}

// New creates a compositor for the given configuration.
func New(cfg config.Config, log zerolog.Logger) *Compositor {
	return &Compositor{
		cfg:      cfg,
		log:      log,
		listenFD: -1,
		lockFD:   -1,
	}
}

// Run brings the compositor up and blocks until Alt+Esc or a fatal error.
func (t *Compositor) Run() error {
	if err := t.setup(); err != nil {
		return err
	}
	defer t.teardown()

	// The first frame carries the modeset; every later one is paced by
	// page-flip completions.
	t.state.Reconcile()
	if err := t.composeAndSubmit(); err != nil {
		return err
	}

	for !t.state.Quit() {
		if err := t.loop.Turn(); err != nil {
			return err
		}

		t.state.Reconcile()
		t.state.FlushClients()
	}

	t.log.Info().Msg("shutting down")
	return nil
}

// setup builds every subsystem in dependency order.
func (t *Compositor) setup() error {
	var err error

	t.sess, err = session.Take()
	if err != nil {
		return err
	}

	cardFD, err := t.sess.OpenDevice(t.cfg.Card)
	if err != nil {
		return err
	}
	t.dev = drm.OpenFD(cardFD, t.cfg.Card)

	t.screen, err = output.NewScreen(t.dev, t.log)
	if err != nil {
		return err
	}

	size := t.screen.Size()
	t.renderer, err = render.NewEGL(t.screen.GBMDevice().Handle(), t.screen.GBMSurface().Handle(), size)
	if err != nil {
		return err
	}

	t.xkbState, err = xkb.New(t.cfg.Keymap)
	if err != nil {
		return err
	}

	mode := t.screen.Mode()
	t.globals = wl.NewGlobals(wl.OutputInfo{
		Size:       size,
		RefreshMHz: mode.RefreshMHz(),
		PhysicalMM: geom.Pt(600, 340),
		Make:       "tatami",
		Model:      "kms",
	})

	keymapFD, keymapSize := t.xkbState.KeymapFile()
	t.globals.Keymap = wl.KeymapInfo{FD: keymapFD, Size: keymapSize}
	if rdev, err := t.dev.Rdev(); err == nil {
		t.globals.MainDevice = rdev
	}
	t.globals.RegisterDefaults()

	t.state = comp.NewState(size, t.log)
	t.state.Keymap = t.xkbState
	t.state.SocketName = t.cfg.SocketName()
	t.state.Terminal = t.cfg.Terminal

	if err := t.listen(); err != nil {
		return err
	}

	t.loop = elp.New()
	t.loop.Add(t.listenFD, t.acceptClient)
	t.loop.Add(t.dev.FD(), t.drmReady)

	if li, err := libinput.New(); err != nil {
		// Input loss leaves clients usable; log and continue headless.
		t.log.Warn().Err(err).Msg("libinput unavailable")
	} else {
		t.loop.Add(li.FD(), func() (bool, error) {
			for _, ev := range li.Dispatch() {
				t.routeInput(ev)
			}
			return false, nil
		})
	}

	t.watchConfig()
	t.armPing()

	t.log.Info().Str("socket", t.sockPath).Msg("compositor ready")
	return nil
}

// pingIntervalMS is how often xdg_wm_base clients are pinged.
const pingIntervalMS = 5000

// armPing pings every xdg_wm_base periodically so unresponsive clients can
// be spotted in the logs.
func (t *Compositor) armPing() {
	timer, err := elp.NewTimerFD()
	if err != nil {
		return
	}
	if err := timer.ArmAfter(pingIntervalMS); err != nil {
		timer.Close()
		return
	}

	t.loop.Add(timer.FD(), func() (bool, error) {
		if err := timer.Ack(); err != nil {
			return false, nil
		}

		for _, c := range t.state.Clients {
			serial := c.Display().NextSerial()
			for _, wm := range wl.ObjectsOf[*wl.XdgWmBase](c) {
				_ = wm.Ping(c, serial)
			}
		}

		_ = timer.ArmAfter(pingIntervalMS)
		return false, nil
	})
}

// listen claims the socket lock and binds the listening socket.
func (t *Compositor) listen() error {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return ErrNoRuntimeDir
	}

	name := t.cfg.SocketName()
	t.sockPath = filepath.Join(runtimeDir, name)
	lockPath := t.sockPath + ".lock"

	lockFD, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return fmt.Errorf("tatami: open %s: %w", lockPath, err)
	}
	if err := unix.Flock(lockFD, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(lockFD)
		return fmt.Errorf("%w (%s)", ErrCompositorRunning, lockPath)
	}
	t.lockFD = lockFD

	// A stale socket from a crashed instance is safe to remove once the
	// lock is ours.
	_ = os.Remove(t.sockPath)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("tatami: socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: t.sockPath}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tatami: bind %s: %w", t.sockPath, err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tatami: listen: %w", err)
	}

	t.listenFD = fd
	return nil
}

// acceptClient admits one connection and registers its socket with the
// loop.
func (t *Compositor) acceptClient() (bool, error) {
	fd, _, err := unix.Accept(t.listenFD)
	if err != nil {
		t.log.Warn().Err(err).Msg("accept failed")
		return false, nil
	}

	start := geom.Pt(int32(100*t.clientIndex+10), int32(100*t.clientIndex+10))
	t.clientIndex++

	client := wl.NewClient(fd, start, t.renderer, t.log)
	if err := client.AddObject(1, wl.NewDisplay(t.globals)); err != nil {
		client.Close()
		return false, nil
	}
	t.state.AddClient(client)

	t.loop.Add(fd, func() (bool, error) {
		return t.clientReady(client), nil
	})

	t.log.Info().Int("client", fd).Msg("client connected")
	return false, nil
}

// clientReady drains one client's socket, dispatching every complete
// request. Protocol faults are reported through wl_display.error before
// the client drops.
func (t *Compositor) clientReady(client *wl.Client) (remove bool) {
	fd := client.FD()

	for {
		req, err := elp.ReadRequest(fd)
		switch {
		case errors.Is(err, elp.ErrWouldBlock):
			return false

		case errors.Is(err, elp.ErrClientClosed):
			t.state.DropClient(fd)
			return true

		case err != nil:
			t.log.Warn().Err(err).Int("client", fd).Msg("request read failed")
			t.state.DropClient(fd)
			return true
		}

		client.QueueReceivedFDs(req.FDs)

		if err := client.Dispatch(req.Object, req.Opcode, req.Params); err != nil {
			var pe *wl.ProtocolError
			if errors.As(err, &pe) {
				t.log.Warn().Int("client", fd).Str("error", pe.Message).Msg("protocol error")
				client.SendError(pe)
			} else if !errors.Is(err, wl.ErrClientGone) {
				t.log.Warn().Err(err).Int("client", fd).Msg("dispatch failed")
				client.SendError(&wl.ProtocolError{
					Object:  req.Object,
					Code:    wl.DisplayErrorImplementation,
					Message: err.Error(),
				})
			}
			t.state.DropClient(fd)
			return true
		}
	}
}

// drmReady consumes page-flip completions: release retired buffers, fire
// frame callbacks and presentation feedback, then compose the next frame.
func (t *Compositor) drmReady() (bool, error) {
	events, err := t.dev.ReadEvents()
	if err != nil {
		return false, err
	}

	for _, ev := range events {
		t.screen.HandleFlip(ev)
		t.state.FlipCompleted(uint64(ev.TvSec), ev.TvUsec*1000, t.screen.Sequence(), t.screen.RefreshNS())
	}

	if len(events) > 0 {
		t.state.Reconcile()
		if err := t.composeAndSubmit(); err != nil {
			return false, err
		}
		t.state.FlushClients()
	}
	return false, nil
}

// composeAndSubmit draws the stack and submits the atomic commit.
func (t *Compositor) composeAndSubmit() error {
	if t.screen.FlipPending() {
		t.screen.MarkDeferred()
		return nil
	}

	t.state.ComposeFrame(t.renderer)
	if err := t.renderer.EndFrame(); err != nil {
		return err
	}
	return t.screen.SubmitFrame()
}

// routeInput maps one libinput event onto the compositor state.
func (t *Compositor) routeInput(ev libinput.Event) {
	switch ev.Type {
	case libinput.EventPointerMotion:
		t.state.PointerMotion(ev.DX, ev.DY)

	case libinput.EventPointerButton:
		state := uint32(0)
		if ev.ButtonPressed {
			state = 1
		}
		t.state.PointerButton(ev.Button, state)

	case libinput.EventPointerScrollWheel:
		t.state.PointerScroll(ev.Axis, ev.V120)

	case libinput.EventKeyboardKey:
		state := uint32(0)
		if ev.KeyPressed {
			state = 1
		}
		t.state.KeyboardKey(ev.Key, state)
	}
}

// watchConfig hot-swaps the keymap when the config file changes. The
// fsnotify goroutine posts over an eventfd so all mutation stays on the
// loop thread.
func (t *Compositor) watchConfig() {
	wake, err := elp.NewEventFD()
	if err != nil {
		return
	}

	t.cfgWake = wake
	t.cfgEvents = make(chan config.Config, 4)

	stop, err := config.Watch(func(cfg config.Config) {
		select {
		case t.cfgEvents <- cfg:
			_ = wake.Notify()
		default:
		}
	})
	if err != nil {
		wake.Close()
		t.cfgWake = nil
		return
	}
	t.stopWatch = stop

	t.loop.Add(wake.FD(), func() (bool, error) {
		if _, err := wake.Drain(); err != nil {
			return false, nil
		}
		for {
			select {
			case cfg := <-t.cfgEvents:
				t.applyConfig(cfg)
			default:
				return false, nil
			}
		}
	})
}

// applyConfig applies a runtime config change: a new keymap layout is
// recompiled and pushed to every keyboard.
func (t *Compositor) applyConfig(cfg config.Config) {
	t.state.Terminal = cfg.Terminal

	if cfg.Keymap == t.cfg.Keymap {
		return
	}

	fresh, err := xkb.New(cfg.Keymap)
	if err != nil {
		t.log.Warn().Err(err).Str("keymap", cfg.Keymap).Msg("keymap reload failed")
		return
	}

	old := t.xkbState
	t.xkbState = fresh
	t.state.Keymap = fresh
	t.cfg.Keymap = cfg.Keymap

	fd, size := fresh.KeymapFile()
	t.globals.Keymap = wl.KeymapInfo{FD: fd, Size: size}

	for _, c := range t.state.Clients {
		for _, kb := range wl.ObjectsOf[*wl.Keyboard](c) {
			_ = kb.Keymap(c, fd, uint32(size))
		}
	}
	t.state.FlushClients()

	old.Destroy()
	t.log.Info().Str("keymap", cfg.Keymap).Msg("keymap reloaded")
}

// teardown releases sockets, devices and the session.
func (t *Compositor) teardown() {
	if t.stopWatch != nil {
		t.stopWatch()
	}
	if t.cfgWake != nil {
		t.cfgWake.Close()
	}

	for fd := range t.state.Clients {
		t.state.DropClient(fd)
	}
	t.state.Reconcile()

	if t.listenFD >= 0 {
		_ = unix.Close(t.listenFD)
		_ = os.Remove(t.sockPath)
	}
	if t.lockFD >= 0 {
		_ = unix.Close(t.lockFD)
		_ = os.Remove(t.sockPath + ".lock")
	}

	if t.screen != nil {
		t.screen.Close()
	}
	if t.xkbState != nil {
		t.xkbState.Destroy()
	}
	if t.dev != nil {
		_ = t.dev.Close()
	}
	t.sess.Release()
}
