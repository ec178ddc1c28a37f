package capture

import (
	"image"
)

// PixelFormat identifies the byte layout of a captured frame
type PixelFormat int

const (
	// FormatOther is any layout the renderer cannot consume
	FormatOther PixelFormat = iota
	// FormatBGRX8888 is 32 bits per pixel, bytes B, G, R, unused
	FormatBGRX8888
)

func (f PixelFormat) String() string {
	switch f {
	case FormatBGRX8888:
		return "BGRX8888"
	default:
		return "other"
	}
}

// Transform mirrors the output transform a compositor reports
type Transform int

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
)

// Frame is one captured screen region. Pixels are row-major with a stride of
// Width*4 bytes. A Frame is never mutated once it has been handed out.
type Frame struct {
	Width  uint32
	Height uint32
	Format PixelFormat
	Pixels []byte
}

// Empty reports whether the frame carries no usable pixels
func (f *Frame) Empty() bool {
	return f == nil || f.Width == 0 || f.Height == 0 || len(f.Pixels) == 0
}

// Output describes a display the capturer can read from
type Output struct {
	Name      string
	Width     int32
	Height    int32
	Transform Transform
}

// Capturer defines the interface for screen capture backends
type Capturer interface {
	// Start initializes the capturer and any required resources
	Start() error

	// Stop releases resources
	Stop() error

	// Name returns a human-readable name for this capturer
	Name() string

	// Outputs lists the displays this capturer can read
	Outputs() []Output

	// CaptureOutputFrame captures region (or the whole output when region
	// is nil) from output. size is the expected frame size. A nil frame
	// with a nil error means the capture succeeded but produced no data.
	CaptureOutputFrame(output Output, size image.Point, transform Transform, region *image.Rectangle) (*Frame, error)
}

// DockRegion returns the screen region the dock reflects: half the panel's
// width, centred the same way the dock is, and twice the panel's height
// directly above the bottom of the output. The result is clipped to the
// output and may be empty.
func DockRegion(panelW, panelH int32, out Output) image.Rectangle {
	dockW := panelW / 2
	margin := (panelW - dockW) / 2
	h := panelH * 2

	r := image.Rect(int(margin), int(out.Height-h), int(margin+dockW), int(out.Height))
	return r.Intersect(image.Rect(0, 0, int(out.Width), int(out.Height)))
}
