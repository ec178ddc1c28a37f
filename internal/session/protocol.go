package session

// The interfaces below are the slice of the Wayland client protocol the
// session drives. wayland.go implements them on go-wayland proxies; tests
// implement them with recording fakes.

// Global interface names the session binds
const (
	InterfaceCompositor = "wl_compositor"
	InterfaceShm        = "wl_shm"
	InterfaceSeat       = "wl_seat"
	InterfaceOutput     = "wl_output"
	InterfaceWmBase     = "xdg_wm_base"
)

// bindVersion is the version every global is bound at
const bindVersion = 1

// ShmFormatARGB8888 is wl_shm format 0: little-endian B, G, R, A bytes
const ShmFormatARGB8888 uint32 = 0

// Seat capability bits
const (
	CapabilityPointer  uint32 = 1
	CapabilityKeyboard uint32 = 2
)

// KeyEscape is the evdev key code wl_keyboard reports for Escape
const KeyEscape uint32 = 1

// Connection is a live compositor connection
type Connection interface {
	// SetHandler installs the function every incoming event is delivered
	// to. Events are only delivered from inside Dispatch.
	SetHandler(h func(Event))
	GetRegistry() (Registry, error)
	// Dispatch blocks until at least one event has been read and handled
	Dispatch() error
	Close() error
}

// Registry binds advertised globals
type Registry interface {
	BindCompositor(name, version uint32) (Compositor, error)
	BindShm(name, version uint32) (Shm, error)
	BindSeat(name, version uint32) (Seat, error)
	BindWmBase(name, version uint32) (WmBase, error)
	BindOutput(name, version uint32) error
}

type Compositor interface {
	CreateSurface() (Surface, error)
}

type Surface interface {
	Attach(b Buffer, x, y int32) error
	Damage(x, y, width, height int32) error
	// Frame requests a FrameDoneEvent for the next commit
	Frame() error
	Commit() error
	Destroy() error
}

type Shm interface {
	CreatePool(fd int, size int32) (ShmPool, error)
}

type ShmPool interface {
	CreateBuffer(offset, width, height, stride int32, format uint32) (Buffer, error)
	Destroy() error
}

type Buffer interface {
	Destroy() error
}

type Seat interface {
	GetKeyboard() error
	GetPointer() error
}

type WmBase interface {
	GetXdgSurface(s Surface) (XdgSurface, error)
	Pong(serial uint32) error
	Destroy() error
}

type XdgSurface interface {
	GetToplevel() (Toplevel, error)
	AckConfigure(serial uint32) error
	Destroy() error
}

type Toplevel interface {
	SetTitle(title string) error
	SetAppID(appID string) error
	Destroy() error
}

// SharedMemory is a mapped, fd-backed region a pool can be created from
type SharedMemory interface {
	Fd() int
	Bytes() []byte
	Close() error
}

// AllocFunc allocates size bytes of shared memory
type AllocFunc func(size int) (SharedMemory, error)

// FrameSink receives every committed frame. The pixel slice is not touched
// by the session after the call.
type FrameSink interface {
	WriteFrame(width, height int, pix []byte)
}
