// Package geometry provides the normalized coordinate model used by mapping
// templates. All spatial addressing is done with rectangles expressed as
// fractions of the rasterized page size, so stored coordinates stay valid
// regardless of resolution or zoom.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// RoundTripTolerance is the maximum deviation allowed when a rectangle is
// denormalized to pixels and normalized back at the same page size.
const RoundTripTolerance = 0.001

// NormalizedRect is a rectangle with every component in [0, 1], relative to
// the dimensions of the rasterized page image it was captured against.
type NormalizedRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewNormalizedRect constructs a rectangle, clamping each component into
// [0, 1] and shrinking width/height so the rectangle never extends past the
// page edge. Out-of-range input is clamped, not rejected.
func NewNormalizedRect(x, y, width, height float64) NormalizedRect {
	x = clamp01(x)
	y = clamp01(y)
	width = clamp01(width)
	height = clamp01(height)
	if x+width > 1 {
		width = 1 - x
	}
	if y+height > 1 {
		height = 1 - y
	}
	return NormalizedRect{X: x, Y: y, Width: width, Height: height}
}

// IsZero reports whether the rectangle has no area.
func (r NormalizedRect) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Validate checks that all components are in range. Rectangles built through
// NewNormalizedRect always pass; this guards values decoded from JSON.
func (r NormalizedRect) Validate() error {
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"x", r.X}, {"y", r.Y}, {"width", r.Width}, {"height", r.Height},
	} {
		if math.IsNaN(c.value) || c.value < 0 || c.value > 1 {
			return fmt.Errorf("coordinate %q out of range: %v", c.name, c.value)
		}
	}
	if r.X+r.Width > 1+RoundTripTolerance {
		return fmt.Errorf("rectangle extends past right edge: x=%v width=%v", r.X, r.Width)
	}
	if r.Y+r.Height > 1+RoundTripTolerance {
		return fmt.Errorf("rectangle extends past bottom edge: y=%v height=%v", r.Y, r.Height)
	}
	return nil
}

// Denormalize maps the rectangle onto an image of the given pixel size.
// Components round to the nearest pixel, which keeps the normalize round
// trip within tolerance even on small raster sizes. The result is clamped
// to the image bounds and never empty when the rectangle has area.
func (r NormalizedRect) Denormalize(imageWidth, imageHeight int) image.Rectangle {
	x := int(math.Round(r.X * float64(imageWidth)))
	y := int(math.Round(r.Y * float64(imageHeight)))
	w := int(math.Round(r.Width * float64(imageWidth)))
	h := int(math.Round(r.Height * float64(imageHeight)))

	x = clampInt(x, 0, imageWidth)
	y = clampInt(y, 0, imageHeight)
	w = clampInt(w, 1, imageWidth-x)
	h = clampInt(h, 1, imageHeight-y)

	return image.Rect(x, y, x+w, y+h)
}

// ViewportTransform describes the zoom and pan state of an interactive page
// preview. It is passed explicitly so normalization stays a pure function of
// its inputs instead of reading live widget state.
type ViewportTransform struct {
	Zoom float64
	PanX float64
	PanY float64
}

// IdentityViewport is the transform of an unzoomed, unpanned preview.
func IdentityViewport() ViewportTransform {
	return ViewportTransform{Zoom: 1}
}

// Normalize converts a rectangle in device pixels into normalized page
// coordinates, undoing the viewport transform first.
func Normalize(deviceRect image.Rectangle, imageWidth, imageHeight int, vt ViewportTransform) (NormalizedRect, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return NormalizedRect{}, fmt.Errorf("invalid image size %dx%d", imageWidth, imageHeight)
	}
	zoom := vt.Zoom
	if zoom <= 0 {
		zoom = 1
	}

	x := (float64(deviceRect.Min.X) - vt.PanX) / zoom
	y := (float64(deviceRect.Min.Y) - vt.PanY) / zoom
	w := float64(deviceRect.Dx()) / zoom
	h := float64(deviceRect.Dy()) / zoom

	return NewNormalizedRect(
		x/float64(imageWidth),
		y/float64(imageHeight),
		w/float64(imageWidth),
		h/float64(imageHeight),
	), nil
}

// CellRect composes a table cell rectangle from a column band and a row band:
// horizontal extent from the column, vertical extent from the row.
func CellRect(column, row NormalizedRect) NormalizedRect {
	return NewNormalizedRect(column.X, row.Y, column.Width, row.Height)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
