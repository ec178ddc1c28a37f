package session

// Event is one compositor event the session reacts to. Each variant maps to
// one protocol event; the session handles them in a single type switch.
type Event interface {
	isEvent()
}

// GlobalEvent is wl_registry.global
type GlobalEvent struct {
	Name      uint32
	Interface string
	Version   uint32
}

// GlobalRemoveEvent is wl_registry.global_remove
type GlobalRemoveEvent struct {
	Name uint32
}

// ToplevelConfigureEvent is xdg_toplevel.configure. Zero or negative sizes
// mean the compositor leaves the choice to the client.
type ToplevelConfigureEvent struct {
	Width  int32
	Height int32
}

// ToplevelCloseEvent is xdg_toplevel.close
type ToplevelCloseEvent struct{}

// SurfaceConfigureEvent is xdg_surface.configure
type SurfaceConfigureEvent struct {
	Serial uint32
}

// PingEvent is xdg_wm_base.ping
type PingEvent struct {
	Serial uint32
}

// SeatCapabilitiesEvent is wl_seat.capabilities
type SeatCapabilitiesEvent struct {
	Capabilities uint32
}

// KeyEvent is wl_keyboard.key
type KeyEvent struct {
	Key   uint32
	State uint32
}

// PointerButtonEvent is wl_pointer.button
type PointerButtonEvent struct {
	Button uint32
	State  uint32
}

// FrameDoneEvent is wl_callback.done for a surface frame request
type FrameDoneEvent struct {
	Time uint32
}

// DisplayErrorEvent is wl_display.error. The compositor disconnects the
// client right after sending it.
type DisplayErrorEvent struct {
	Code    uint32
	Message string
}

func (GlobalEvent) isEvent()            {}
func (GlobalRemoveEvent) isEvent()      {}
func (ToplevelConfigureEvent) isEvent() {}
func (ToplevelCloseEvent) isEvent()     {}
func (SurfaceConfigureEvent) isEvent()  {}
func (PingEvent) isEvent()              {}
func (SeatCapabilitiesEvent) isEvent()  {}
func (KeyEvent) isEvent()               {}
func (PointerButtonEvent) isEvent()     {}
func (FrameDoneEvent) isEvent()         {}
func (DisplayErrorEvent) isEvent()      {}
