// Package session drives the dock's compositor surface.
//
// A Session owns every protocol object the dock holds and reacts to
// compositor events through Handle. It binds the globals it needs, runs the
// xdg configure/ack handshake, and on every loop iteration refreshes the
// capture cache, renders a frame and commits it in a fresh shared buffer.
// All of it runs on the goroutine that calls Run; only Snapshot may be
// called from elsewhere.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/sdock/internal/capture"
	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/bryanchriswhite/sdock/internal/render"
)

var (
	// ErrNoSurface means the compositor global has not been bound yet
	ErrNoSurface = errors.New("no surface")
	// ErrNoShm means the shm global has not been bound yet
	ErrNoShm = errors.New("no shm")
	// ErrNotConfigured means no xdg_surface.configure has been acked yet
	ErrNotConfigured = errors.New("surface not configured")
)

// State is the session's position in the surface lifecycle
type State int

const (
	StateDisconnected State = iota
	StateRegistering
	StateAwaitingGlobals
	StateSurfaceCreated
	StateAwaitingConfigure
	StateConfigured
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateRegistering:
		return "registering"
	case StateAwaitingGlobals:
		return "awaiting-globals"
	case StateSurfaceCreated:
		return "surface-created"
	case StateAwaitingConfigure:
		return "awaiting-configure"
	case StateConfigured:
		return "configured"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Panel is the negotiated surface size. Both dimensions are always > 0.
type Panel struct {
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// Configure applies a proposed toplevel size. Non-positive dimensions are
// ignored individually.
func (p Panel) Configure(width, height int32) Panel {
	if width > 0 {
		p.Width = width
	}
	if height > 0 {
		p.Height = height
	}
	return p
}

// Status is a point-in-time copy of the session's observable state
type Status struct {
	State          string `json:"state"`
	Panel          Panel  `json:"panel"`
	Configured     bool   `json:"configured"`
	Running        bool   `json:"running"`
	Frames         uint64 `json:"frames"`
	Outputs        int    `json:"outputs"`
	CaptureBackend string `json:"capture_backend,omitempty"`
	HasCapture     bool   `json:"has_capture"`
}

// Options configures a Session
type Options struct {
	Title string
	AppID string

	// Capturer feeds the capture cache. Nil renders the fallback gradient.
	Capturer capture.Capturer

	// Allocate provides shared memory for each frame. Nil uses the
	// platform default.
	Allocate AllocFunc

	// Sink, when set, receives every committed frame
	Sink FrameSink
}

// Session is the dock's surface state machine
type Session struct {
	title string
	appID string

	conn       Connection
	registry   Registry
	compositor Compositor
	surface    Surface
	shm        Shm
	seat       Seat
	wmBase     WmBase
	xdgSurface XdgSurface
	toplevel   Toplevel
	buffer     Buffer
	bound      map[string]bool
	outputs    int

	state           State
	configured      bool
	panel           Panel
	redrawNecessary bool
	framePending    bool
	running         bool
	frames          uint64

	capturer capture.Capturer
	cache    *capture.Cache
	allocate AllocFunc
	sink     FrameSink

	statusMu sync.RWMutex
	status   Status
}

// New creates a disconnected session
func New(opts Options) *Session {
	s := &Session{
		title:    opts.Title,
		appID:    opts.AppID,
		bound:    make(map[string]bool),
		state:    StateDisconnected,
		panel:    Panel{Width: 1, Height: 1},
		capturer: opts.Capturer,
		cache:    capture.NewCache(),
		allocate: opts.Allocate,
		sink:     opts.Sink,
	}
	if s.allocate == nil {
		s.allocate = defaultAllocator
	}
	s.publish()
	return s
}

// Start installs the session as conn's event handler and requests the
// registry. Globals arrive during the following dispatches.
func (s *Session) Start(conn Connection) error {
	log := logger.WithComponent("session")

	s.conn = conn
	s.running = true
	conn.SetHandler(s.Handle)
	s.setState(StateRegistering)

	registry, err := conn.GetRegistry()
	if err != nil {
		s.running = false
		return fmt.Errorf("failed to get registry: %w", err)
	}
	s.registry = registry
	s.setState(StateAwaitingGlobals)

	log.Debug().Msg("Registry requested, waiting for globals")
	return nil
}

// Handle reacts to one compositor event
func (s *Session) Handle(ev Event) {
	log := logger.WithComponent("session")

	switch e := ev.(type) {
	case GlobalEvent:
		s.handleGlobal(e)

	case GlobalRemoveEvent:
		log.Debug().Uint32("name", e.Name).Msg("Global removed")

	case ToplevelConfigureEvent:
		next := s.panel.Configure(e.Width, e.Height)
		if next != s.panel {
			log.Info().
				Int32("width", next.Width).
				Int32("height", next.Height).
				Msg("Panel resized")
			s.panel = next
			s.redrawNecessary = true
		}

	case SurfaceConfigureEvent:
		if s.xdgSurface == nil {
			log.Warn().Uint32("serial", e.Serial).Msg("Configure without an xdg surface")
			break
		}
		if err := s.xdgSurface.AckConfigure(e.Serial); err != nil {
			log.Error().Err(err).Uint32("serial", e.Serial).Msg("Failed to ack configure")
			break
		}
		s.configured = true
		s.setState(StateConfigured)
		s.tryDraw()

	case ToplevelCloseEvent:
		log.Info().Msg("Compositor asked the dock to close")
		s.shutdown()

	case PingEvent:
		if s.wmBase != nil {
			if err := s.wmBase.Pong(e.Serial); err != nil {
				log.Error().Err(err).Uint32("serial", e.Serial).Msg("Failed to answer ping")
			}
		}

	case SeatCapabilitiesEvent:
		s.handleCapabilities(e.Capabilities)

	case KeyEvent:
		log.Debug().Uint32("key", e.Key).Uint32("state", e.State).Msg("Key")
		if e.Key == KeyEscape {
			log.Info().Msg("Escape pressed")
			s.shutdown()
		}

	case PointerButtonEvent:
		log.Debug().Uint32("button", e.Button).Uint32("state", e.State).Msg("Pointer button")

	case FrameDoneEvent:
		// Redraw follows the dispatch that delivered this
		s.framePending = false

	case DisplayErrorEvent:
		log.Error().Uint32("code", e.Code).Str("message", e.Message).Msg("Compositor reported a protocol error")

	default:
		log.Debug().Str("event", fmt.Sprintf("%T", ev)).Msg("Ignoring unhandled event")
	}

	s.publish()
}

func (s *Session) handleGlobal(e GlobalEvent) {
	log := logger.WithComponent("session").With().
		Uint32("name", e.Name).
		Str("interface", e.Interface).
		Uint32("version", e.Version).
		Logger()

	switch e.Interface {
	case InterfaceCompositor, InterfaceShm, InterfaceSeat, InterfaceWmBase, InterfaceOutput:
	default:
		log.Debug().Msg("Ignoring global")
		return
	}
	if s.bound[e.Interface] {
		log.Debug().Msg("Global already bound")
		return
	}
	if s.registry == nil {
		log.Warn().Msg("Global announced before the registry was requested")
		return
	}

	var err error
	switch e.Interface {
	case InterfaceCompositor:
		err = s.bindCompositor(e.Name)
	case InterfaceShm:
		s.shm, err = s.registry.BindShm(e.Name, bindVersion)
		if err == nil {
			s.tryDraw()
		}
	case InterfaceSeat:
		s.seat, err = s.registry.BindSeat(e.Name, bindVersion)
	case InterfaceWmBase:
		s.wmBase, err = s.registry.BindWmBase(e.Name, bindVersion)
		if err == nil {
			s.initShell()
		}
	case InterfaceOutput:
		err = s.registry.BindOutput(e.Name, bindVersion)
		if err == nil {
			s.outputs++
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to bind global")
		return
	}

	s.bound[e.Interface] = true
	log.Debug().Msg("Bound global")
}

func (s *Session) bindCompositor(name uint32) error {
	compositor, err := s.registry.BindCompositor(name, bindVersion)
	if err != nil {
		return err
	}
	s.compositor = compositor

	surface, err := compositor.CreateSurface()
	if err != nil {
		return fmt.Errorf("failed to create surface: %w", err)
	}
	s.surface = surface
	s.setState(StateSurfaceCreated)
	s.initShell()
	return nil
}

// initShell turns the surface into a toplevel once both the surface and
// xdg_wm_base exist, whichever arrived last.
func (s *Session) initShell() {
	log := logger.WithComponent("session")

	if s.surface == nil || s.wmBase == nil || s.xdgSurface != nil {
		return
	}

	xdgSurface, err := s.wmBase.GetXdgSurface(s.surface)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get xdg surface")
		return
	}
	toplevel, err := xdgSurface.GetToplevel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get toplevel")
		xdgSurface.Destroy()
		return
	}
	s.xdgSurface = xdgSurface
	s.toplevel = toplevel

	if err := toplevel.SetTitle(s.title); err != nil {
		log.Warn().Err(err).Msg("Failed to set title")
	}
	if err := toplevel.SetAppID(s.appID); err != nil {
		log.Warn().Err(err).Msg("Failed to set app id")
	}
	if err := s.surface.Commit(); err != nil {
		log.Error().Err(err).Msg("Failed to commit surface")
		return
	}

	s.setState(StateAwaitingConfigure)
	log.Info().Str("title", s.title).Str("app_id", s.appID).Msg("Toplevel created, waiting for configure")
}

func (s *Session) handleCapabilities(caps uint32) {
	log := logger.WithComponent("session")

	if s.seat == nil {
		return
	}
	if caps&CapabilityKeyboard != 0 {
		if err := s.seat.GetKeyboard(); err != nil {
			log.Warn().Err(err).Msg("Failed to get keyboard")
		}
	}
	if caps&CapabilityPointer != 0 {
		if err := s.seat.GetPointer(); err != nil {
			log.Warn().Err(err).Msg("Failed to get pointer")
		}
	}
}

func (s *Session) shutdown() {
	s.running = false
	s.setState(StateClosed)
}

// setState moves to next. Closed is terminal.
func (s *Session) setState(next State) {
	if s.state == StateClosed {
		return
	}
	if next < s.state && next != StateClosed {
		// A late global must not move the session backwards
		return
	}
	s.state = next
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Panel returns the negotiated panel size
func (s *Session) Panel() Panel {
	return s.panel
}

// Running reports whether the loop should keep going
func (s *Session) Running() bool {
	return s.running
}

// RedrawNecessary reports whether the panel changed since the last commit
func (s *Session) RedrawNecessary() bool {
	return s.redrawNecessary
}

// Redraw refreshes the capture cache and draws a frame
func (s *Session) Redraw() {
	s.refreshCapture()
	s.tryDraw()
}

func (s *Session) refreshCapture() {
	log := logger.WithComponent("session")

	if s.capturer == nil {
		return
	}
	outputs := s.capturer.Outputs()
	if len(outputs) == 0 {
		return
	}

	out := outputs[0]
	region := capture.DockRegion(s.panel.Width, s.panel.Height, out)
	if region.Empty() {
		return
	}

	frame, err := s.capturer.CaptureOutputFrame(out, region.Size(), out.Transform, &region)
	if err != nil {
		log.Warn().Err(err).Str("backend", s.capturer.Name()).Msg("Capture failed, keeping cached frame")
		return
	}
	s.cache.Update(frame)
}

func (s *Session) tryDraw() {
	log := logger.WithComponent("session")

	err := s.Draw()
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSurface), errors.Is(err, ErrNoShm), errors.Is(err, ErrNotConfigured):
		log.Debug().Err(err).Msg("Skipping draw")
	default:
		log.Error().Err(err).Msg("Draw failed")
	}
}

// Draw renders the current panel into a new shared buffer and commits it.
// It returns ErrNoSurface, ErrNoShm or ErrNotConfigured when a prerequisite
// is missing; the next call retries.
func (s *Session) Draw() error {
	if s.surface == nil {
		return ErrNoSurface
	}
	if s.shm == nil {
		return ErrNoShm
	}
	if !s.configured {
		return ErrNotConfigured
	}

	w, h := s.panel.Width, s.panel.Height
	stride := w * 4
	size := int(stride) * int(h)

	// Panels below the renderer's minimum commit a transparent buffer
	pix := render.Render(uint32(w), uint32(h), s.cache.Get())

	mem, err := s.allocate(size)
	if err != nil {
		return fmt.Errorf("failed to allocate %d bytes of shared memory: %w", size, err)
	}
	defer func() {
		if err := mem.Close(); err != nil {
			logger.WithComponent("session").Warn().Err(err).Msg("Failed to release shared memory")
		}
	}()
	copy(mem.Bytes(), pix)

	pool, err := s.shm.CreatePool(mem.Fd(), int32(size))
	if err != nil {
		return fmt.Errorf("failed to create shm pool: %w", err)
	}
	buffer, err := pool.CreateBuffer(0, w, h, stride, ShmFormatARGB8888)
	if err != nil {
		pool.Destroy()
		return fmt.Errorf("failed to create buffer: %w", err)
	}
	if err := pool.Destroy(); err != nil {
		buffer.Destroy()
		return fmt.Errorf("failed to destroy shm pool: %w", err)
	}

	if err := s.surface.Attach(buffer, 0, 0); err != nil {
		buffer.Destroy()
		return fmt.Errorf("failed to attach buffer: %w", err)
	}
	if err := s.surface.Damage(0, 0, w, h); err != nil {
		buffer.Destroy()
		return fmt.Errorf("failed to damage surface: %w", err)
	}
	// One callback in flight at a time; its done event re-arms the next
	requested := false
	if !s.framePending {
		if err := s.surface.Frame(); err != nil {
			buffer.Destroy()
			return fmt.Errorf("failed to request frame callback: %w", err)
		}
		requested = true
	}
	if err := s.surface.Commit(); err != nil {
		buffer.Destroy()
		return fmt.Errorf("failed to commit surface: %w", err)
	}
	if requested {
		s.framePending = true
	}

	if s.buffer != nil {
		if err := s.buffer.Destroy(); err != nil {
			logger.WithComponent("session").Warn().Err(err).Msg("Failed to destroy previous buffer")
		}
	}
	s.buffer = buffer
	s.redrawNecessary = false
	s.frames++

	if s.sink != nil && len(pix) > 0 {
		s.sink.WriteFrame(int(w), int(h), pix)
	}
	s.publish()
	return nil
}

// Run dispatches compositor events and redraws after each batch until the
// dock is closed. It returns nil on a clean close.
func (s *Session) Run(ctx context.Context) error {
	log := logger.WithComponent("session")

	if s.conn == nil {
		return errors.New("session not started")
	}

	log.Info().Msg("Dock running, press <ESC> to quit")
	for s.running {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.conn.Dispatch(); err != nil {
			return fmt.Errorf("dispatch failed: %w", err)
		}
		if !s.running {
			break
		}
		s.Redraw()
	}

	log.Info().Uint64("frames", s.frames).Msg("Dock closed, goodbye")
	return nil
}

// Close destroys every protocol object the session holds and closes the
// connection.
func (s *Session) Close() error {
	var errs []error
	destroy := func(what string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy %s: %w", what, err))
		}
	}

	if s.buffer != nil {
		destroy("buffer", s.buffer.Destroy)
		s.buffer = nil
	}
	if s.toplevel != nil {
		destroy("toplevel", s.toplevel.Destroy)
		s.toplevel = nil
	}
	if s.xdgSurface != nil {
		destroy("xdg surface", s.xdgSurface.Destroy)
		s.xdgSurface = nil
	}
	if s.surface != nil {
		destroy("surface", s.surface.Destroy)
		s.surface = nil
	}
	if s.wmBase != nil {
		destroy("wm base", s.wmBase.Destroy)
		s.wmBase = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		s.conn = nil
	}

	s.running = false
	s.setState(StateClosed)
	s.publish()
	return errors.Join(errs...)
}

func (s *Session) publish() {
	st := Status{
		State:      s.state.String(),
		Panel:      s.panel,
		Configured: s.configured,
		Running:    s.running,
		Frames:     s.frames,
		Outputs:    s.outputs,
		HasCapture: s.cache.Get() != nil,
	}
	if s.capturer != nil {
		st.CaptureBackend = s.capturer.Name()
	}

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Snapshot returns the latest published status. Safe for concurrent use.
func (s *Session) Snapshot() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}
