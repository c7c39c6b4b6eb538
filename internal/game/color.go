package game

import "math"

// RGBA is a non-premultiplied 8-bit color.
type RGBA struct {
	R, G, B, A uint8
}

// Default ball colors.
var (
	BallColor  = RGBA{R: 0, G: 0, B: 255, A: 255}
	TrailColor = RGBA{R: 0, G: 200, B: 255, A: 255}
)

// WithFade returns c with its alpha scaled down by the fade fraction
// (0 = untouched, 1 = fully transparent).
func (c RGBA) WithFade(fade float64) RGBA {
	alpha := math.Round((1 - fade) * 255)
	if math.IsNaN(alpha) || alpha < 0 {
		alpha = 0
	}
	if alpha > 255 {
		alpha = 255
	}
	c.A = uint8(alpha)
	return c
}

// Opacity returns the alpha channel as a fraction in [0, 1].
func (c RGBA) Opacity() float64 {
	return float64(c.A) / 255
}
