package capture

import (
	"github.com/bryanchriswhite/sdock/internal/logger"
)

// Cache holds the most recent usable capture. Stale pixels are preferred
// over none, so a failed or unusable capture never clears it.
type Cache struct {
	frame *Frame
}

// NewCache returns an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Update replaces the cached frame with f when f is present, non-empty and
// in BGRX8888. It reports whether the cache changed.
func (c *Cache) Update(f *Frame) bool {
	log := logger.WithComponent("capture-cache")

	if f.Empty() {
		log.Debug().Msg("Capture returned no pixels, keeping cached frame")
		return false
	}
	if f.Format != FormatBGRX8888 {
		log.Warn().
			Stringer("format", f.Format).
			Uint32("width", f.Width).
			Uint32("height", f.Height).
			Msg("Unrecognized capture pixel format, keeping cached frame")
		return false
	}

	c.frame = f
	return true
}

// Get returns the cached frame, or nil if nothing has been captured yet.
// Callers must treat the frame as read-only.
func (c *Cache) Get() *Frame {
	return c.frame
}
