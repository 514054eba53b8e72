// Package dimension computes final embed sizes under page constraints.
//
// All functions are pure. Sizes are in device-independent pixels; page
// bounds are in inches and converted with the configured DPI.
package dimension

import "math"

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either side is non-positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Override holds author-declared sizes. A zero field means absent.
type Override struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Bounds is the printable page area.
type Bounds struct {
	MaxW float64 // inches
	MaxH float64 // inches
	DPI  float64
}

// PixelWidth returns MaxW in pixels, or +Inf when unbounded.
func (b Bounds) PixelWidth() float64 {
	if b.MaxW <= 0 || b.DPI <= 0 {
		return math.Inf(1)
	}
	return b.MaxW * b.DPI
}

// PixelHeight returns MaxH in pixels, or +Inf when unbounded.
func (b Bounds) PixelHeight() float64 {
	if b.MaxH <= 0 || b.DPI <= 0 {
		return math.Inf(1)
	}
	return b.MaxH * b.DPI
}

// Apply resolves an override against the intrinsic size. A single override
// derives the other side from the intrinsic aspect ratio. When both are set
// they are used as given.
func Apply(intrinsic Size, o Override) Size {
	switch {
	case o.Width > 0 && o.Height > 0:
		return Size{Width: o.Width, Height: o.Height}
	case o.Width > 0:
		if intrinsic.Width <= 0 {
			return Size{Width: o.Width, Height: intrinsic.Height}
		}
		return Size{Width: o.Width, Height: o.Width * intrinsic.Height / intrinsic.Width}
	case o.Height > 0:
		if intrinsic.Height <= 0 {
			return Size{Width: intrinsic.Width, Height: o.Height}
		}
		return Size{Width: o.Height * intrinsic.Width / intrinsic.Height, Height: o.Height}
	}
	return intrinsic
}

// Scale returns the uniform factor that fits s into b without upscaling.
func Scale(s Size, b Bounds) float64 {
	if s.Empty() {
		return 1
	}
	return math.Min(math.Min(b.PixelWidth()/s.Width, b.PixelHeight()/s.Height), 1)
}

// Fit applies the override and scales the result into the page bounds.
// The aspect ratio of the override-or-intrinsic size is preserved and the
// result never exceeds it.
func Fit(intrinsic Size, o Override, b Bounds) Size {
	s := Apply(intrinsic, o)
	k := Scale(s, b)
	return Size{Width: s.Width * k, Height: s.Height * k}
}
