//go:build linux

package session

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	xdg_shell "github.com/rajveermalviya/go-wayland/wayland/stable/xdg-shell"
	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/bryanchriswhite/sdock/internal/shm"
)

// wlConnection adapts a go-wayland display to Connection. Every proxy the
// adapter creates reports its events through emit.
type wlConnection struct {
	display *client.Display
	ctx     *client.Context
	handler func(Event)
}

// Connect opens the compositor connection named by addr, or by
// $WAYLAND_DISPLAY when addr is empty.
func Connect(addr string) (Connection, error) {
	display, err := client.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wayland display: %w", err)
	}

	c := &wlConnection{
		display: display,
		ctx:     display.Context(),
		handler: func(Event) {},
	}
	display.SetErrorHandler(func(e client.DisplayErrorEvent) {
		c.emit(DisplayErrorEvent{Code: e.Code, Message: e.Message})
	})
	return c, nil
}

func (c *wlConnection) emit(ev Event) {
	c.handler(ev)
}

func (c *wlConnection) SetHandler(h func(Event)) {
	c.handler = h
}

func (c *wlConnection) GetRegistry() (Registry, error) {
	registry, err := c.display.GetRegistry()
	if err != nil {
		return nil, err
	}
	registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		c.emit(GlobalEvent{Name: e.Name, Interface: e.Interface, Version: e.Version})
	})
	registry.SetGlobalRemoveHandler(func(e client.RegistryGlobalRemoveEvent) {
		c.emit(GlobalRemoveEvent{Name: e.Name})
	})
	return &wlRegistry{conn: c, registry: registry}, nil
}

func (c *wlConnection) Dispatch() error {
	return c.ctx.Dispatch()
}

func (c *wlConnection) Close() error {
	return c.ctx.Close()
}

type wlRegistry struct {
	conn     *wlConnection
	registry *client.Registry
}

func (r *wlRegistry) BindCompositor(name, version uint32) (Compositor, error) {
	compositor := client.NewCompositor(r.conn.ctx)
	if err := r.registry.Bind(name, InterfaceCompositor, version, compositor); err != nil {
		return nil, err
	}
	return &wlCompositor{conn: r.conn, compositor: compositor}, nil
}

func (r *wlRegistry) BindShm(name, version uint32) (Shm, error) {
	s := client.NewShm(r.conn.ctx)
	if err := r.registry.Bind(name, InterfaceShm, version, s); err != nil {
		return nil, err
	}
	return &wlShm{shm: s}, nil
}

func (r *wlRegistry) BindSeat(name, version uint32) (Seat, error) {
	seat := client.NewSeat(r.conn.ctx)
	if err := r.registry.Bind(name, InterfaceSeat, version, seat); err != nil {
		return nil, err
	}
	seat.SetCapabilitiesHandler(func(e client.SeatCapabilitiesEvent) {
		r.conn.emit(SeatCapabilitiesEvent{Capabilities: e.Capabilities})
	})
	return &wlSeat{conn: r.conn, seat: seat}, nil
}

func (r *wlRegistry) BindWmBase(name, version uint32) (WmBase, error) {
	wmBase := xdg_shell.NewWmBase(r.conn.ctx)
	if err := r.registry.Bind(name, InterfaceWmBase, version, wmBase); err != nil {
		return nil, err
	}
	wmBase.SetPingHandler(func(e xdg_shell.WmBasePingEvent) {
		r.conn.emit(PingEvent{Serial: e.Serial})
	})
	return &wlWmBase{conn: r.conn, wmBase: wmBase}, nil
}

func (r *wlRegistry) BindOutput(name, version uint32) error {
	output := client.NewOutput(r.conn.ctx)
	if err := r.registry.Bind(name, InterfaceOutput, version, output); err != nil {
		return err
	}
	output.SetModeHandler(func(e client.OutputModeEvent) {
		logger.WithComponent("wayland").Debug().
			Uint32("output", name).
			Int32("width", e.Width).
			Int32("height", e.Height).
			Int32("refresh_mhz", e.Refresh).
			Msg("Output mode")
	})
	return nil
}

type wlCompositor struct {
	conn       *wlConnection
	compositor *client.Compositor
}

func (c *wlCompositor) CreateSurface() (Surface, error) {
	surface, err := c.compositor.CreateSurface()
	if err != nil {
		return nil, err
	}
	return &wlSurface{conn: c.conn, surface: surface}, nil
}

type wlSurface struct {
	conn    *wlConnection
	surface *client.Surface
}

func (s *wlSurface) Attach(b Buffer, x, y int32) error {
	var buf *client.Buffer
	if wb, ok := b.(*wlBuffer); ok && wb != nil {
		buf = wb.buffer
	}
	return s.surface.Attach(buf, x, y)
}

func (s *wlSurface) Damage(x, y, width, height int32) error {
	return s.surface.Damage(x, y, width, height)
}

func (s *wlSurface) Frame() error {
	cb, err := s.surface.Frame()
	if err != nil {
		return err
	}
	cb.SetDoneHandler(func(e client.CallbackDoneEvent) {
		// wl_callback is destroyed by the compositor; drop our proxy
		cb.Destroy()
		s.conn.emit(FrameDoneEvent{Time: e.CallbackData})
	})
	return nil
}

func (s *wlSurface) Commit() error {
	return s.surface.Commit()
}

func (s *wlSurface) Destroy() error {
	return s.surface.Destroy()
}

type wlShm struct {
	shm *client.Shm
}

func (s *wlShm) CreatePool(fd int, size int32) (ShmPool, error) {
	pool, err := s.shm.CreatePool(fd, size)
	if err != nil {
		return nil, err
	}
	return &wlShmPool{pool: pool}, nil
}

type wlShmPool struct {
	pool *client.ShmPool
}

func (p *wlShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (Buffer, error) {
	buffer, err := p.pool.CreateBuffer(offset, width, height, stride, format)
	if err != nil {
		return nil, err
	}
	return &wlBuffer{buffer: buffer}, nil
}

func (p *wlShmPool) Destroy() error {
	return p.pool.Destroy()
}

type wlBuffer struct {
	buffer *client.Buffer
}

func (b *wlBuffer) Destroy() error {
	return b.buffer.Destroy()
}

type wlSeat struct {
	conn     *wlConnection
	seat     *client.Seat
	keyboard *client.Keyboard
	pointer  *client.Pointer
}

func (s *wlSeat) GetKeyboard() error {
	if s.keyboard != nil {
		return nil
	}
	keyboard, err := s.seat.GetKeyboard()
	if err != nil {
		return err
	}
	keyboard.SetKeymapHandler(func(e client.KeyboardKeymapEvent) {
		// Only raw key codes are used, the keymap is never mapped
		unix.Close(e.Fd)
	})
	keyboard.SetKeyHandler(func(e client.KeyboardKeyEvent) {
		s.conn.emit(KeyEvent{Key: e.Key, State: e.State})
	})
	s.keyboard = keyboard
	return nil
}

func (s *wlSeat) GetPointer() error {
	if s.pointer != nil {
		return nil
	}
	pointer, err := s.seat.GetPointer()
	if err != nil {
		return err
	}
	pointer.SetButtonHandler(func(e client.PointerButtonEvent) {
		s.conn.emit(PointerButtonEvent{Button: e.Button, State: e.State})
	})
	s.pointer = pointer
	return nil
}

type wlWmBase struct {
	conn   *wlConnection
	wmBase *xdg_shell.WmBase
}

func (w *wlWmBase) GetXdgSurface(s Surface) (XdgSurface, error) {
	ws, ok := s.(*wlSurface)
	if !ok {
		return nil, fmt.Errorf("unsupported surface type %T", s)
	}
	xdgSurface, err := w.wmBase.GetXdgSurface(ws.surface)
	if err != nil {
		return nil, err
	}
	xdgSurface.SetConfigureHandler(func(e xdg_shell.SurfaceConfigureEvent) {
		w.conn.emit(SurfaceConfigureEvent{Serial: e.Serial})
	})
	return &wlXdgSurface{conn: w.conn, xdgSurface: xdgSurface}, nil
}

func (w *wlWmBase) Pong(serial uint32) error {
	return w.wmBase.Pong(serial)
}

func (w *wlWmBase) Destroy() error {
	return w.wmBase.Destroy()
}

type wlXdgSurface struct {
	conn       *wlConnection
	xdgSurface *xdg_shell.Surface
}

func (x *wlXdgSurface) GetToplevel() (Toplevel, error) {
	toplevel, err := x.xdgSurface.GetToplevel()
	if err != nil {
		return nil, err
	}
	toplevel.SetConfigureHandler(func(e xdg_shell.ToplevelConfigureEvent) {
		x.conn.emit(ToplevelConfigureEvent{Width: e.Width, Height: e.Height})
	})
	toplevel.SetCloseHandler(func(xdg_shell.ToplevelCloseEvent) {
		x.conn.emit(ToplevelCloseEvent{})
	})
	return &wlToplevel{toplevel: toplevel}, nil
}

func (x *wlXdgSurface) AckConfigure(serial uint32) error {
	return x.xdgSurface.AckConfigure(serial)
}

func (x *wlXdgSurface) Destroy() error {
	return x.xdgSurface.Destroy()
}

type wlToplevel struct {
	toplevel *xdg_shell.Toplevel
}

func (t *wlToplevel) SetTitle(title string) error {
	return t.toplevel.SetTitle(title)
}

func (t *wlToplevel) SetAppID(appID string) error {
	return t.toplevel.SetAppId(appID)
}

func (t *wlToplevel) Destroy() error {
	return t.toplevel.Destroy()
}

func defaultAllocator(size int) (SharedMemory, error) {
	region, err := shm.Allocate(size)
	if err != nil {
		return nil, err
	}
	return region, nil
}
