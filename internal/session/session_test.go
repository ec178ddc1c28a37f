package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"reflect"
	"strings"
	"testing"

	"github.com/bryanchriswhite/sdock/internal/capture"
)

// recorder collects protocol requests in the order they were issued
type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) has(call string) bool {
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// indexOf returns the position of the first call equal to call, or -1
func (r *recorder) indexOf(call string) int {
	for i, c := range r.calls {
		if c == call {
			return i
		}
	}
	return -1
}

func (r *recorder) reset() {
	r.calls = nil
}

type fakeConn struct {
	rec      *recorder
	handler  func(Event)
	queue    [][]Event
	dispErr  error
	closed   bool
	registry *fakeRegistry
}

func (c *fakeConn) SetHandler(h func(Event)) { c.handler = h }

func (c *fakeConn) GetRegistry() (Registry, error) {
	c.rec.add("get_registry")
	c.registry = &fakeRegistry{rec: c.rec}
	return c.registry, nil
}

// Dispatch delivers the next queued batch. An exhausted queue reports an
// error so a broken loop cannot spin forever.
func (c *fakeConn) Dispatch() error {
	if len(c.queue) == 0 {
		if c.dispErr != nil {
			return c.dispErr
		}
		return errors.New("no more events")
	}
	batch := c.queue[0]
	c.queue = c.queue[1:]
	for _, ev := range batch {
		c.handler(ev)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.rec.add("close")
	c.closed = true
	return nil
}

type fakeRegistry struct {
	rec *recorder
}

func (r *fakeRegistry) BindCompositor(name, version uint32) (Compositor, error) {
	r.rec.add("bind wl_compositor v%d", version)
	return &fakeCompositor{rec: r.rec}, nil
}

func (r *fakeRegistry) BindShm(name, version uint32) (Shm, error) {
	r.rec.add("bind wl_shm v%d", version)
	return &fakeShm{rec: r.rec}, nil
}

func (r *fakeRegistry) BindSeat(name, version uint32) (Seat, error) {
	r.rec.add("bind wl_seat v%d", version)
	return &fakeSeat{rec: r.rec}, nil
}

func (r *fakeRegistry) BindWmBase(name, version uint32) (WmBase, error) {
	r.rec.add("bind xdg_wm_base v%d", version)
	return &fakeWmBase{rec: r.rec}, nil
}

func (r *fakeRegistry) BindOutput(name, version uint32) error {
	r.rec.add("bind wl_output v%d", version)
	return nil
}

type fakeCompositor struct {
	rec *recorder
}

func (c *fakeCompositor) CreateSurface() (Surface, error) {
	c.rec.add("create_surface")
	return &fakeSurface{rec: c.rec}, nil
}

type fakeSurface struct {
	rec *recorder

	// failures injected per request name
	failDamage error
	failFrame  error
	failCommit error
}

func (s *fakeSurface) Attach(b Buffer, x, y int32) error {
	s.rec.add("attach %s", b.(*fakeBuffer).id)
	return nil
}

func (s *fakeSurface) Damage(x, y, w, h int32) error {
	s.rec.add("damage %dx%d", w, h)
	return s.failDamage
}

func (s *fakeSurface) Frame() error {
	s.rec.add("frame")
	return s.failFrame
}

func (s *fakeSurface) Commit() error {
	s.rec.add("commit")
	return s.failCommit
}

func (s *fakeSurface) Destroy() error {
	s.rec.add("destroy surface")
	return nil
}

type fakeShm struct {
	rec     *recorder
	buffers int
}

func (s *fakeShm) CreatePool(fd int, size int32) (ShmPool, error) {
	s.rec.add("create_pool %d", size)
	return &fakePool{rec: s.rec, shm: s}, nil
}

type fakePool struct {
	rec *recorder
	shm *fakeShm
}

func (p *fakePool) CreateBuffer(offset, w, h, stride int32, format uint32) (Buffer, error) {
	p.shm.buffers++
	id := fmt.Sprintf("buf%d", p.shm.buffers)
	p.rec.add("create_buffer %s %dx%d stride=%d format=%d", id, w, h, stride, format)
	return &fakeBuffer{rec: p.rec, id: id}, nil
}

func (p *fakePool) Destroy() error {
	p.rec.add("destroy pool")
	return nil
}

type fakeBuffer struct {
	rec *recorder
	id  string
}

func (b *fakeBuffer) Destroy() error {
	b.rec.add("destroy %s", b.id)
	return nil
}

type fakeSeat struct {
	rec *recorder
}

func (s *fakeSeat) GetKeyboard() error {
	s.rec.add("get_keyboard")
	return nil
}

func (s *fakeSeat) GetPointer() error {
	s.rec.add("get_pointer")
	return nil
}

type fakeWmBase struct {
	rec *recorder
}

func (w *fakeWmBase) GetXdgSurface(s Surface) (XdgSurface, error) {
	w.rec.add("get_xdg_surface")
	return &fakeXdgSurface{rec: w.rec}, nil
}

func (w *fakeWmBase) Pong(serial uint32) error {
	w.rec.add("pong %d", serial)
	return nil
}

func (w *fakeWmBase) Destroy() error {
	w.rec.add("destroy wm_base")
	return nil
}

type fakeXdgSurface struct {
	rec *recorder
}

func (x *fakeXdgSurface) GetToplevel() (Toplevel, error) {
	x.rec.add("get_toplevel")
	return &fakeToplevel{rec: x.rec}, nil
}

func (x *fakeXdgSurface) AckConfigure(serial uint32) error {
	x.rec.add("ack_configure %d", serial)
	return nil
}

func (x *fakeXdgSurface) Destroy() error {
	x.rec.add("destroy xdg_surface")
	return nil
}

type fakeToplevel struct {
	rec *recorder
}

func (t *fakeToplevel) SetTitle(title string) error {
	t.rec.add("set_title %s", title)
	return nil
}

func (t *fakeToplevel) SetAppID(appID string) error {
	t.rec.add("set_app_id %s", appID)
	return nil
}

func (t *fakeToplevel) Destroy() error {
	t.rec.add("destroy toplevel")
	return nil
}

type fakeMemory struct {
	data   []byte
	closed bool
}

func (m *fakeMemory) Fd() int       { return 3 }
func (m *fakeMemory) Bytes() []byte { return m.data }
func (m *fakeMemory) Close() error {
	m.closed = true
	return nil
}

type fakeSink struct {
	frames int
	w, h   int
	last   []byte
}

func (s *fakeSink) WriteFrame(w, h int, pix []byte) {
	s.frames++
	s.w, s.h = w, h
	s.last = pix
}

type harness struct {
	s      *Session
	conn   *fakeConn
	rec    *recorder
	allocs []*fakeMemory
	sink   *fakeSink
}

func newHarness(t *testing.T, capturer capture.Capturer) *harness {
	t.Helper()

	h := &harness{rec: &recorder{}, sink: &fakeSink{}}
	h.conn = &fakeConn{rec: h.rec}
	h.s = New(Options{
		Title:    "sdock",
		AppID:    "sdock",
		Capturer: capturer,
		Sink:     h.sink,
		Allocate: func(size int) (SharedMemory, error) {
			m := &fakeMemory{data: make([]byte, size)}
			h.allocs = append(h.allocs, m)
			return m, nil
		},
	})
	if err := h.s.Start(h.conn); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

func allGlobals() []Event {
	return []Event{
		GlobalEvent{Name: 1, Interface: InterfaceCompositor, Version: 6},
		GlobalEvent{Name: 2, Interface: InterfaceShm, Version: 1},
		GlobalEvent{Name: 3, Interface: InterfaceSeat, Version: 9},
		GlobalEvent{Name: 4, Interface: InterfaceWmBase, Version: 6},
		GlobalEvent{Name: 5, Interface: InterfaceOutput, Version: 4},
	}
}

// configured drives h through the handshake to a (w, h) panel
func (h *harness) configured(w, ht int32) {
	for _, ev := range allGlobals() {
		h.s.Handle(ev)
	}
	h.s.Handle(ToplevelConfigureEvent{Width: w, Height: ht})
	h.s.Handle(SurfaceConfigureEvent{Serial: 7})
}

func TestStartRequestsRegistry(t *testing.T) {
	h := newHarness(t, nil)

	if got := h.s.State(); got != StateAwaitingGlobals {
		t.Errorf("State() = %v, want %v", got, StateAwaitingGlobals)
	}
	if !h.s.Running() {
		t.Error("session should be running after Start")
	}
	if !h.rec.has("get_registry") {
		t.Errorf("registry not requested: %v", h.rec.calls)
	}
	if h.s.Panel() != (Panel{Width: 1, Height: 1}) {
		t.Errorf("initial panel = %+v, want 1x1", h.s.Panel())
	}
}

func TestGlobalsBoundOnceAtVersionOne(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 2; i++ {
		for _, ev := range allGlobals() {
			h.s.Handle(ev)
		}
	}
	h.s.Handle(GlobalEvent{Name: 9, Interface: "zwp_linux_dmabuf_v1", Version: 4})

	for _, iface := range []string{InterfaceCompositor, InterfaceShm, InterfaceSeat, InterfaceWmBase, InterfaceOutput} {
		if n := h.rec.count("bind " + iface + " "); n != 1 {
			t.Errorf("%s bound %d times, want 1", iface, n)
		}
		if !h.rec.has("bind " + iface + " v1") {
			t.Errorf("%s not bound at version 1: %v", iface, h.rec.calls)
		}
	}
	if h.rec.count("bind zwp") != 0 {
		t.Error("unknown global was bound")
	}
	if n := h.rec.count("create_surface"); n != 1 {
		t.Errorf("create_surface called %d times, want 1", n)
	}
}

func TestShellInitEitherOrder(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
	}{
		{
			name: "compositor first",
			events: []Event{
				GlobalEvent{Name: 1, Interface: InterfaceCompositor, Version: 1},
				GlobalEvent{Name: 2, Interface: InterfaceWmBase, Version: 1},
			},
		},
		{
			name: "wm base first",
			events: []Event{
				GlobalEvent{Name: 2, Interface: InterfaceWmBase, Version: 1},
				GlobalEvent{Name: 1, Interface: InterfaceCompositor, Version: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			for _, ev := range tt.events {
				h.s.Handle(ev)
			}

			if got := h.s.State(); got != StateAwaitingConfigure {
				t.Errorf("State() = %v, want %v", got, StateAwaitingConfigure)
			}
			for _, call := range []string{"get_xdg_surface", "get_toplevel", "set_title sdock", "set_app_id sdock", "commit"} {
				if !h.rec.has(call) {
					t.Errorf("missing %q in %v", call, h.rec.calls)
				}
			}
			if h.rec.indexOf("get_toplevel") > h.rec.indexOf("commit") {
				t.Errorf("commit issued before toplevel creation: %v", h.rec.calls)
			}
		})
	}
}

func TestPanelConfigure(t *testing.T) {
	tests := []struct {
		name       string
		start      Panel
		w, h       int32
		want       Panel
		wantRedraw bool
	}{
		{"both positive", Panel{1, 1}, 400, 100, Panel{400, 100}, true},
		{"zero width keeps width", Panel{400, 100}, 0, 80, Panel{400, 80}, true},
		{"negative height keeps height", Panel{400, 100}, 500, -1, Panel{500, 100}, true},
		{"both zero", Panel{400, 100}, 0, 0, Panel{400, 100}, false},
		{"unchanged", Panel{400, 100}, 400, 100, Panel{400, 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.start.Configure(tt.w, tt.h); got != tt.want {
				t.Errorf("Configure(%d, %d) = %+v, want %+v", tt.w, tt.h, got, tt.want)
			}

			h := newHarness(t, nil)
			h.s.Handle(ToplevelConfigureEvent{Width: tt.start.Width, Height: tt.start.Height})
			h.s.redrawNecessary = false

			h.s.Handle(ToplevelConfigureEvent{Width: tt.w, Height: tt.h})
			if got := h.s.Panel(); got != tt.want {
				t.Errorf("Panel() = %+v, want %+v", got, tt.want)
			}
			if got := h.s.RedrawNecessary(); got != tt.wantRedraw {
				t.Errorf("RedrawNecessary() = %v, want %v", got, tt.wantRedraw)
			}
			if h.s.Panel().Width <= 0 || h.s.Panel().Height <= 0 {
				t.Errorf("panel dimension not positive: %+v", h.s.Panel())
			}
		})
	}
}

func TestConfigureAckThenDraw(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(400, 100)

	if got := h.s.State(); got != StateConfigured {
		t.Fatalf("State() = %v, want %v", got, StateConfigured)
	}

	want := []string{
		"ack_configure 7",
		"create_pool 160000",
		"create_buffer buf1 400x100 stride=1600 format=0",
		"destroy pool",
		"attach buf1",
		"damage 400x100",
		"frame",
		"commit",
	}
	start := h.rec.indexOf("ack_configure 7")
	if start < 0 || start+len(want) > len(h.rec.calls) {
		t.Fatalf("unexpected calls: %v", h.rec.calls)
	}
	if got := h.rec.calls[start : start+len(want)]; !reflect.DeepEqual(got, want) {
		t.Errorf("draw sequence = %v, want %v", got, want)
	}

	if h.s.RedrawNecessary() {
		t.Error("RedrawNecessary should be cleared after a commit")
	}
	if len(h.allocs) != 1 || len(h.allocs[0].data) != 400*100*4 {
		t.Fatalf("expected one 160000 byte allocation, got %d", len(h.allocs))
	}
	if !h.allocs[0].closed {
		t.Error("shared memory mapping not released after the buffer was created")
	}
	if h.sink.frames != 1 || h.sink.w != 400 || h.sink.h != 100 {
		t.Errorf("sink got %d frames of %dx%d", h.sink.frames, h.sink.w, h.sink.h)
	}
	// Interior glass falls back to the gradient without a capture
	if a := h.allocs[0].data[(60*400+200)*4+3]; a != 0xE0 {
		t.Errorf("interior alpha = %#x, want 0xe0", a)
	}
}

func TestDrawSkipsUntilPrerequisites(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.s.Draw(); !errors.Is(err, ErrNoSurface) {
		t.Errorf("Draw() without surface = %v, want ErrNoSurface", err)
	}

	h.s.Handle(GlobalEvent{Name: 1, Interface: InterfaceCompositor, Version: 1})
	if err := h.s.Draw(); !errors.Is(err, ErrNoShm) {
		t.Errorf("Draw() without shm = %v, want ErrNoShm", err)
	}

	h.s.Handle(GlobalEvent{Name: 2, Interface: InterfaceShm, Version: 1})
	if err := h.s.Draw(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Draw() before configure = %v, want ErrNotConfigured", err)
	}

	if len(h.allocs) != 0 || h.rec.count("create_pool") != 0 {
		t.Errorf("skipped draws must not allocate: %v", h.rec.calls)
	}
	if h.rec.count("attach") != 0 {
		t.Errorf("skipped draws must not attach: %v", h.rec.calls)
	}
}

func TestPreviousBufferDestroyedAfterCommit(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(100, 40)
	h.rec.reset()

	h.s.Redraw()

	commit := h.rec.indexOf("commit")
	destroy := h.rec.indexOf("destroy buf1")
	if commit < 0 || destroy < 0 {
		t.Fatalf("missing commit or destroy: %v", h.rec.calls)
	}
	if destroy < commit {
		t.Errorf("previous buffer destroyed before the superseding commit: %v", h.rec.calls)
	}
	if !h.rec.has("attach buf2") {
		t.Errorf("second frame did not use a new buffer: %v", h.rec.calls)
	}
	if h.rec.has("destroy buf2") {
		t.Error("current buffer destroyed")
	}
}

func TestTinyPanelCommitsTransparentBuffer(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(0, 0) // keeps the initial 1x1

	if !h.rec.has("create_buffer buf1 1x1 stride=4 format=0") {
		t.Fatalf("expected a 1x1 buffer: %v", h.rec.calls)
	}
	for _, b := range h.allocs[0].data {
		if b != 0 {
			t.Fatalf("tiny panel buffer not transparent: %v", h.allocs[0].data)
		}
	}
	if h.sink.frames != 0 {
		t.Error("empty render should not reach the sink")
	}
}

func TestPingPong(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(400, 100)
	before := h.s.State()

	h.s.Handle(PingEvent{Serial: 42})

	if !h.rec.has("pong 42") {
		t.Errorf("ping not answered: %v", h.rec.calls)
	}
	if h.s.State() != before {
		t.Errorf("ping changed state to %v", h.s.State())
	}
}

func TestSeatCapabilities(t *testing.T) {
	h := newHarness(t, nil)
	h.s.Handle(GlobalEvent{Name: 3, Interface: InterfaceSeat, Version: 1})

	h.s.Handle(SeatCapabilitiesEvent{Capabilities: CapabilityKeyboard | CapabilityPointer})

	if !h.rec.has("get_keyboard") || !h.rec.has("get_pointer") {
		t.Errorf("input devices not acquired: %v", h.rec.calls)
	}

	h.s.Handle(PointerButtonEvent{Button: 0x110, State: 1})
	if !h.s.Running() {
		t.Error("pointer events must not close the dock")
	}
}

// Scenario C: Escape closes the dock from any state
func TestEscapeClosesFromAnyState(t *testing.T) {
	setups := map[string]func(h *harness){
		"awaiting globals": func(h *harness) {},
		"surface created": func(h *harness) {
			h.s.Handle(GlobalEvent{Name: 1, Interface: InterfaceCompositor, Version: 1})
		},
		"configured": func(h *harness) { h.configured(400, 100) },
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			setup(h)

			h.s.Handle(KeyEvent{Key: 30, State: 1})
			if !h.s.Running() {
				t.Fatal("non-escape key closed the dock")
			}

			h.s.Handle(KeyEvent{Key: KeyEscape, State: 1})
			if h.s.Running() {
				t.Error("Running() = true after escape")
			}
			if h.s.State() != StateClosed {
				t.Errorf("State() = %v, want %v", h.s.State(), StateClosed)
			}
		})
	}
}

func TestFrameCallbackRequestedOncePerDone(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(400, 100)

	for i := 0; i < 5; i++ {
		h.s.Handle(KeyEvent{Key: 30, State: 1})
		h.s.Redraw()
	}

	if got := h.rec.count("frame"); got != 1 {
		t.Fatalf("frame requests = %d, want 1 outstanding: %v", got, h.rec.calls)
	}
	if got := h.rec.count("commit"); got != 6 {
		t.Errorf("commits = %d, want 6", got)
	}

	h.s.Handle(FrameDoneEvent{Time: 16})
	h.s.Redraw()
	if got := h.rec.count("frame"); got != 2 {
		t.Errorf("frame requests after done = %d, want 2", got)
	}
}

func TestFailedSubmitDestroysNewBuffer(t *testing.T) {
	cases := map[string]func(s *fakeSurface){
		"damage": func(s *fakeSurface) { s.failDamage = errors.New("damage failed") },
		"frame":  func(s *fakeSurface) { s.failFrame = errors.New("frame failed") },
		"commit": func(s *fakeSurface) { s.failCommit = errors.New("commit failed") },
	}

	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.configured(400, 100)
			// Re-arm the frame request so the frame case reaches Frame()
			h.s.Handle(FrameDoneEvent{})
			surface := h.s.surface.(*fakeSurface)
			inject(surface)
			h.rec.reset()

			if err := h.s.Draw(); err == nil {
				t.Fatal("Draw() = nil, want error")
			}
			if !h.rec.has("attach buf2") {
				t.Fatalf("new buffer never attached: %v", h.rec.calls)
			}
			if !h.rec.has("destroy buf2") {
				t.Errorf("new buffer leaked: %v", h.rec.calls)
			}
			if h.rec.has("destroy buf1") {
				t.Error("committed buffer destroyed by a failed draw")
			}
			if h.s.buffer.(*fakeBuffer).id != "buf1" {
				t.Errorf("current buffer = %s, want buf1", h.s.buffer.(*fakeBuffer).id)
			}
			if h.s.Snapshot().Frames != 1 {
				t.Errorf("Frames = %d after failed draw, want 1", h.s.Snapshot().Frames)
			}
		})
	}
}

// Scenario B: a close while configured ends Run cleanly
func TestRunReturnsNilAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.queue = [][]Event{
		allGlobals(),
		{ToplevelConfigureEvent{Width: 400, Height: 100}, SurfaceConfigureEvent{Serial: 1}},
		{FrameDoneEvent{}},
		{ToplevelCloseEvent{}},
	}

	if err := h.s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if h.s.Running() {
		t.Error("still running after close")
	}
	if h.s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.s.State())
	}
	if len(h.conn.queue) != 0 {
		t.Errorf("%d batches left undispatched", len(h.conn.queue))
	}
	// One draw on configure plus one redraw per later batch before the close
	if got := h.s.Snapshot().Frames; got != 3 {
		t.Errorf("Frames = %d, want 3", got)
	}
}

func TestRunDispatchError(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.dispErr = errors.New("broken pipe")

	err := h.s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("Run() = %v, want dispatch error", err)
	}
}

func TestRunHonoursContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestCloseDestroysObjects(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(100, 40)
	h.rec.reset()

	if err := h.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{"destroy buf1", "destroy toplevel", "destroy xdg_surface", "destroy surface", "destroy wm_base", "close"}
	if !reflect.DeepEqual(h.rec.calls, want) {
		t.Errorf("Close calls = %v, want %v", h.rec.calls, want)
	}
	if h.s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.s.State())
	}
}

func TestLateGlobalDoesNotRegressState(t *testing.T) {
	h := newHarness(t, nil)
	h.s.Handle(GlobalEvent{Name: 4, Interface: InterfaceWmBase, Version: 1})
	h.s.Handle(GlobalEvent{Name: 1, Interface: InterfaceCompositor, Version: 1})
	if h.s.State() != StateAwaitingConfigure {
		t.Fatalf("State() = %v", h.s.State())
	}

	h.s.Handle(GlobalEvent{Name: 2, Interface: InterfaceShm, Version: 1})
	h.s.Handle(DisplayErrorEvent{Code: 1, Message: "invalid method"})
	if h.s.State() != StateAwaitingConfigure {
		t.Errorf("State() regressed to %v", h.s.State())
	}
}

// stubCapturer serves one fixed frame and records requested regions
type stubCapturer struct {
	frame   *capture.Frame
	err     error
	regions []image.Rectangle
	sizes   []image.Point
}

func (c *stubCapturer) Start() error { return nil }
func (c *stubCapturer) Stop() error  { return nil }
func (c *stubCapturer) Name() string { return "stub" }
func (c *stubCapturer) Outputs() []capture.Output {
	return []capture.Output{{Name: "screen", Width: 1920, Height: 1080}}
}
func (c *stubCapturer) CaptureOutputFrame(out capture.Output, size image.Point, tr capture.Transform, region *image.Rectangle) (*capture.Frame, error) {
	c.regions = append(c.regions, *region)
	c.sizes = append(c.sizes, size)
	return c.frame, c.err
}

func solidFrame(w, h uint32, b, g, r byte) *capture.Frame {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2] = b, g, r
	}
	return &capture.Frame{Width: w, Height: h, Format: capture.FormatBGRX8888, Pixels: pix}
}

func TestRedrawUsesCapture(t *testing.T) {
	c := &stubCapturer{frame: solidFrame(200, 200, 100, 110, 120)}
	h := newHarness(t, c)
	h.configured(400, 100)

	h.s.Redraw()

	if len(c.regions) == 0 {
		t.Fatal("capture not refreshed")
	}
	if want := image.Rect(100, 880, 300, 1080); c.regions[0] != want {
		t.Errorf("capture region = %v, want %v", c.regions[0], want)
	}
	// The expected size is the region's, so an in-bounds capture is not clipped
	for i, size := range c.sizes {
		if size != c.regions[i].Size() {
			t.Errorf("capture %d size = %v, want region size %v", i, size, c.regions[i].Size())
		}
	}

	last := h.allocs[len(h.allocs)-1].data
	px := last[(60*400+200)*4 : (60*400+200)*4+4]
	if want := []byte{88, 98, 108, 0xFF}; !reflect.DeepEqual(px, want) {
		t.Errorf("glass pixel = %v, want %v", px, want)
	}

	st := h.s.Snapshot()
	if !st.HasCapture || st.CaptureBackend != "stub" {
		t.Errorf("status = %+v", st)
	}
}

func TestCaptureErrorKeepsCache(t *testing.T) {
	c := &stubCapturer{frame: solidFrame(200, 200, 100, 110, 120)}
	h := newHarness(t, c)
	h.configured(400, 100)
	h.s.Redraw()

	c.frame, c.err = nil, errors.New("capture failed")
	h.s.Redraw()

	last := h.allocs[len(h.allocs)-1].data
	if a := last[(60*400+200)*4+3]; a != 0xFF {
		t.Errorf("interior alpha = %#x, want 0xff from the stale capture", a)
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.configured(400, 100)

	st := h.s.Snapshot()
	want := Status{
		State:      "configured",
		Panel:      Panel{Width: 400, Height: 100},
		Configured: true,
		Running:    true,
		Frames:     1,
		Outputs:    1,
	}
	if st != want {
		t.Errorf("Snapshot() = %+v, want %+v", st, want)
	}
}

func TestStateString(t *testing.T) {
	if got := StateAwaitingConfigure.String(); got != "awaiting-configure" {
		t.Errorf("String() = %q", got)
	}
	if got := State(99).String(); got != "state(99)" {
		t.Errorf("String() = %q", got)
	}
}
