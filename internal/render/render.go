// Package render produces the dock's pixels.
//
// Render is a pure function of the panel size and the cached capture: the
// same inputs always yield the same bytes. The output is BGRA, row-major,
// exactly width*height*4 bytes, which is what the shared buffer expects.
package render

import (
	"image"

	"github.com/bryanchriswhite/sdock/internal/capture"
	"github.com/bryanchriswhite/sdock/internal/geometry"
)

const (
	// MetalDarken is subtracted from every glass channel, floored at 0.
	MetalDarken = 12

	// ReflectionXOffset is added to dockW/2 when mapping a dock column to a
	// capture column, compensating for the capture region's own margin.
	ReflectionXOffset = 6

	glassAlpha    = 0xFF
	fallbackAlpha = 0xE0
)

type class uint8

const (
	classClear class = iota
	classShadow
	classBorder
	classGlass
)

// Render draws a width x height dock. frame may be nil; any glass pixel the
// frame cannot supply falls back to a diagonal gradient. Panels smaller than
// geometry.MinDimension in either direction render as nil.
func Render(width, height uint32, frame *capture.Frame) []byte {
	if width < geometry.MinDimension || height < geometry.MinDimension {
		return nil
	}

	w, h := int(width), int(height)
	pix := make([]byte, w*h*4)
	classes := make([]class, w*h)

	dockW := w / 2
	margin := (w - dockW) / 2
	sw := geometry.ShadowWidth

	for y := 0; y < h; y++ {
		inset := geometry.DockXInset(y, h, geometry.DockAngleDegrees)
		left := margin + inset
		right := w - margin - inset
		yDist := float64(sw - y)

		for x := margin; x < w-margin; x++ {
			side := min(x-left, right-x)
			if side <= 0 {
				continue
			}

			idx := y*w + x
			px := pix[idx*4 : idx*4+4]
			sideDist := float64(sw - side)

			switch {
			case y < sw && side < sw:
				px[3] = geometry.ShadowAlpha(geometry.CornerDistance(sideDist, yDist))
				classes[idx] = classShadow
			case y < sw:
				px[3] = geometry.ShadowAlpha(yDist)
				classes[idx] = classShadow
			case side < sw:
				px[3] = geometry.ShadowAlpha(sideDist)
				classes[idx] = classShadow
			case side == sw:
				px[3] = 0xFF
				classes[idx] = classBorder
			default:
				glass(px, x, y, w, h, dockW, frame)
				classes[idx] = classGlass
			}
		}
	}

	blur(pix, classes, w, h)
	return pix
}

// glass fills one interior pixel from the vertically reflected capture, or
// with the fallback gradient when the capture does not cover it.
func glass(px []byte, x, y, w, h, dockW int, frame *capture.Frame) {
	cx := x - (dockW/2 + ReflectionXOffset)
	cy := (h - y) + geometry.ShadowWidth

	if b, g, r, ok := capturedPixel(frame, cx, cy); ok {
		px[0] = darken(b)
		px[1] = darken(g)
		px[2] = darken(r)
		px[3] = glassAlpha
		return
	}

	px[0] = byte(min((w-x)*255/w, y*255/h))
	px[1] = byte(min(x*255/w, (h-y)*255/h))
	px[2] = byte(min((w-x)*255/w, (h-y)*255/h))
	px[3] = fallbackAlpha
}

func capturedPixel(f *capture.Frame, cx, cy int) (b, g, r byte, ok bool) {
	if f.Empty() || f.Format != capture.FormatBGRX8888 {
		return 0, 0, 0, false
	}
	if cx < 0 || cy < 0 || cx >= int(f.Width) || cy >= int(f.Height) {
		return 0, 0, 0, false
	}
	i := (cy*int(f.Width) + cx) * 4
	if i+4 > len(f.Pixels) {
		return 0, 0, 0, false
	}
	return f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2], true
}

func darken(c byte) byte {
	if c < MetalDarken {
		return 0
	}
	return c - MetalDarken
}

// blur replaces each shadow pixel's alpha with the mean of its four axis
// neighbours. Neighbours are read from a snapshot taken before the pass and
// clamped at the buffer edges.
func blur(pix []byte, classes []class, w, h int) {
	alpha := make([]byte, w*h)
	for i := range alpha {
		alpha[i] = pix[i*4+3]
	}

	for y := 0; y < h; y++ {
		up := max(y-1, 0) * w
		down := min(y+1, h-1) * w
		row := y * w
		for x := 0; x < w; x++ {
			if classes[row+x] != classShadow {
				continue
			}
			left := max(x-1, 0)
			right := min(x+1, w-1)

			sum := int(alpha[up+x]) + int(alpha[down+x]) + int(alpha[row+left]) + int(alpha[row+right])
			pix[(row+x)*4+3] = byte(sum / 4)
		}
	}
}

// ToImage converts a rendered BGRA frame into an NRGBA image. A frame whose
// length does not match width*height*4 yields an empty (transparent) image.
func ToImage(width, height int, pix []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if len(pix) != width*height*4 {
		return img
	}
	for i := 0; i < len(pix); i += 4 {
		img.Pix[i+0] = pix[i+2]
		img.Pix[i+1] = pix[i+1]
		img.Pix[i+2] = pix[i+0]
		img.Pix[i+3] = pix[i+3]
	}
	return img
}
