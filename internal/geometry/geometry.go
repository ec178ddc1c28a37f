// Package geometry holds the pure math behind the dock shape and its shadow.
package geometry

import "math"

const (
	// ShadowWidth is the width in pixels of the shadow rim along the dock edges.
	ShadowWidth = 24

	// DockAngleDegrees is the lean of the dock's side edges.
	DockAngleDegrees = 30.0

	// MinDimension is the smallest panel width or height that has any
	// meaningful geometry. Anything smaller renders as nothing.
	MinDimension = 12
)

// sin(30°) evaluates to just under 0.5 in float64.
const insetEpsilon = 1e-9

// DockXInset returns how far the dock's edge is pulled in from each side at
// the given row. The inset is largest on the top row and shrinks linearly to
// zero at the bottom, giving a trapezoid that narrows toward the top.
func DockXInset(row, height int, angleDeg float64) int {
	if height <= 0 {
		return 0
	}
	if row >= height {
		return 0
	}
	// |sin θ| * H * (H-y)/H, with the H terms cancelled
	inset := math.Abs(math.Sin(angleDeg*math.Pi/180)) * float64(height-row)
	return int(inset + insetEpsilon)
}

// CornerDistance is the Euclidean combination of a horizontal and vertical
// distance to the edges meeting at a corner.
func CornerDistance(dx, dy float64) float64 {
	return math.Sqrt(dx*dx + dy*dy)
}

// ShadowFalloff maps a distance in [0, ShadowWidth] linearly onto [0, 255].
// Distances outside that range are clamped.
func ShadowFalloff(distance float64) uint8 {
	if distance <= 0 {
		return 0
	}
	if distance >= ShadowWidth {
		return 255
	}
	return uint8(distance / ShadowWidth * 255)
}

// ShadowAlpha is the alpha of a shadow pixel at the given distance from the
// shadow's inner boundary: opaque at the boundary, clear at ShadowWidth.
func ShadowAlpha(distance float64) uint8 {
	return 255 - ShadowFalloff(distance)
}
