package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/sdock/internal/logger"
)

// X11Capturer captures screen regions from the X11/XWayland root window
type X11Capturer struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	format PixelFormat
	mu     sync.Mutex
}

// NewX11Capturer creates a new X11 capturer. The connection is opened by Start.
func NewX11Capturer() *X11Capturer {
	return &X11Capturer{}
}

// Start connects to the X server and works out the root pixel layout
func (c *X11Capturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c.conn = conn
	c.screen = screen
	c.root = screen.Root
	c.format = rootFormat(setup, screen.RootDepth)

	logger.WithComponent("x11-capturer").Info().
		Uint8("depth", screen.RootDepth).
		Uint16("width", screen.WidthInPixels).
		Uint16("height", screen.HeightInPixels).
		Stringer("format", c.format).
		Msg("X11 capturer initialized")

	return nil
}

// rootFormat maps the root depth onto a pixel format. ZPixmap data at depth
// 24 or 32 with 32 bits per pixel in LSB-first order is BGRX.
func rootFormat(setup *xproto.SetupInfo, depth byte) PixelFormat {
	if depth != 24 && depth != 32 {
		return FormatOther
	}
	if setup.ImageByteOrder != xproto.ImageOrderLSBFirst {
		return FormatOther
	}
	for _, f := range setup.PixmapFormats {
		if f.Depth == depth && f.BitsPerPixel == 32 {
			return FormatBGRX8888
		}
	}
	return FormatOther
}

// Stop closes the X11 connection
func (c *X11Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "X11"
}

// Outputs returns the root screen as the single output
func (c *X11Capturer) Outputs() []Output {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.screen == nil {
		return nil
	}
	return []Output{{
		Name:      "root",
		Width:     int32(c.screen.WidthInPixels),
		Height:    int32(c.screen.HeightInPixels),
		Transform: TransformNormal,
	}}
}

// CaptureOutputFrame reads region from the root window. The root window is
// already in screen orientation, so only TransformNormal is accepted.
func (c *X11Capturer) CaptureOutputFrame(output Output, size image.Point, transform Transform, region *image.Rectangle) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("X11 capturer not started")
	}
	if transform != TransformNormal {
		return nil, fmt.Errorf("unsupported output transform %d", transform)
	}

	r := image.Rect(0, 0, int(output.Width), int(output.Height))
	if region != nil {
		r = region.Intersect(r)
	}
	if r.Empty() {
		return nil, nil
	}

	log := logger.WithComponent("x11-capturer")
	if r.Dx() != size.X || r.Dy() != size.Y {
		log.Debug().
			Int("want_width", size.X).
			Int("want_height", size.Y).
			Int("width", r.Dx()).
			Int("height", r.Dy()).
			Msg("Capture region clipped to output")
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(r.Min.X), int16(r.Min.Y),
		uint16(r.Dx()), uint16(r.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return &Frame{
		Width:  uint32(r.Dx()),
		Height: uint32(r.Dy()),
		Format: c.format,
		Pixels: reply.Data,
	}, nil
}
