package ui

import (
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/diegok/fidgetball/internal/protocol"
)

const (
	BallChar      = '\u2588' // █
	SmallBallChar = '\u25CF' // ●
	TrailChar     = '\u00B7' // ·

	// curveSamples is how many points each quadratic trail segment is cut into.
	curveSamples = 8
)

// Viewport maps field units onto a block of terminal cells.
type Viewport struct {
	Cols, Rows    int
	Width, Height float64
}

// NewViewport creates a viewport showing a width x height field in
// cols x rows cells.
func NewViewport(cols, rows, width, height int) Viewport {
	return Viewport{Cols: cols, Rows: rows, Width: float64(width), Height: float64(height)}
}

func (v Viewport) valid() bool {
	return v.Cols > 0 && v.Rows > 0 && v.Width > 0 && v.Height > 0
}

// ToCell returns the cell containing field point (x, y), clamped to the
// viewport.
func (v Viewport) ToCell(x, y float64) (int, int) {
	col := int(math.Floor(x * float64(v.Cols) / v.Width))
	row := int(math.Floor(y * float64(v.Rows) / v.Height))
	return clampInt(col, 0, v.Cols-1), clampInt(row, 0, v.Rows-1)
}

// ToField returns the field point at the center of a cell.
func (v Viewport) ToField(col, row int) (float64, float64) {
	return (float64(col) + 0.5) * v.Width / float64(v.Cols),
		(float64(row) + 0.5) * v.Height / float64(v.Rows)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Blend flattens a straight-alpha color onto the background.
func Blend(c protocol.Color) tcell.Color {
	fg := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	r, g, b := Background.RGB()
	bg := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}

	alpha := float64(c.A) / 255
	mixed := bg.BlendRgb(fg, alpha).Clamped()
	r8, g8, b8 := mixed.RGB255()
	return tcell.NewRGBColor(int32(r8), int32(g8), int32(b8))
}

// QuadraticPoints samples a trail: a start point followed by (control, end)
// pairs.
func QuadraticPoints(trail []protocol.Point, perSegment int) []protocol.Point {
	if len(trail) == 0 {
		return nil
	}
	if perSegment < 1 {
		perSegment = 1
	}
	out := []protocol.Point{trail[0]}
	start := trail[0]
	for i := 1; i+1 < len(trail); i += 2 {
		ctrl, end := trail[i], trail[i+1]
		for s := 1; s <= perSegment; s++ {
			t := float64(s) / float64(perSegment)
			u := 1 - t
			out = append(out, protocol.Point{
				X: u*u*start.X + 2*u*t*ctrl.X + t*t*end.X,
				Y: u*u*start.Y + 2*u*t*ctrl.Y + t*t*end.Y,
			})
		}
		start = end
	}
	return out
}

// Renderer handles rendering all screens
type Renderer struct {
	screen *Screen
}

// NewRenderer creates a new renderer with the given screen
func NewRenderer(screen *Screen) *Renderer {
	return &Renderer{screen: screen}
}

// Viewport returns the viewport a frame of the given field size is drawn in.
func (r *Renderer) Viewport(width, height int) Viewport {
	cols, rows := r.screen.FieldSize()
	return NewViewport(cols, rows, width, height)
}

// RenderField draws walls, trails and balls, plus a status line.
func (r *Renderer) RenderField(frame protocol.Frame, status string) {
	r.screen.Clear()
	screenW, screenH := r.screen.Size()
	vp := r.Viewport(frame.Width, frame.Height)

	fieldStyle := tcell.StyleDefault.Background(Background)
	r.screen.FillRect(0, 0, vp.Cols, vp.Rows, fieldStyle, ' ')

	if vp.valid() {
		for _, w := range frame.Walls {
			r.drawWall(vp, w)
		}
		for _, b := range frame.Balls {
			r.drawTrail(vp, b)
		}
		for _, b := range frame.Balls {
			r.drawBall(vp, b)
		}
	}

	// Status bar at bottom
	statusY := screenH - 1
	statusStyle := tcell.StyleDefault.Background(tcell.ColorDarkGray).Foreground(tcell.ColorWhite)
	r.screen.FillRect(0, statusY, screenW, 1, statusStyle, ' ')
	r.screen.DrawText(0, statusY, status, statusStyle)

	r.screen.Show()
}

func (r *Renderer) drawWall(vp Viewport, w protocol.Segment) {
	c1, r1 := vp.ToCell(w.X1, w.Y1)
	c2, r2 := vp.ToCell(w.X2, w.Y2)

	ch := '\u2500' // ─
	if abs(c2-c1) < abs(r2-r1) {
		ch = '\u2502' // │
	}
	style := tcell.StyleDefault.Background(Background).Foreground(tcell.ColorDarkGray)

	steps := max(abs(c2-c1), abs(r2-r1))
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		col := c1 + int(math.Round(t*float64(c2-c1)))
		row := r1 + int(math.Round(t*float64(r2-r1)))
		r.screen.SetCell(col, row, style, ch)
	}
}

func (r *Renderer) drawTrail(vp Viewport, b protocol.BallView) {
	if len(b.Trail) == 0 || b.TrailColor.A == 0 {
		return
	}
	style := tcell.StyleDefault.Background(Background).Foreground(Blend(b.TrailColor))
	for _, p := range QuadraticPoints(b.Trail, curveSamples) {
		col, row := vp.ToCell(p.X, p.Y)
		r.screen.SetCell(col, row, style, TrailChar)
	}
}

func (r *Renderer) drawBall(vp Viewport, b protocol.BallView) {
	if b.Color.A == 0 {
		return
	}
	style := tcell.StyleDefault.Background(Background).Foreground(Blend(b.Color))

	minCol, minRow := vp.ToCell(b.X-b.Radius, b.Y-b.Radius)
	maxCol, maxRow := vp.ToCell(b.X+b.Radius, b.Y+b.Radius)

	filled := false
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			x, y := vp.ToField(col, row)
			if math.Hypot(x-b.X, y-b.Y) <= b.Radius {
				r.screen.SetCell(col, row, style, BallChar)
				filled = true
			}
		}
	}
	if !filled {
		col, row := vp.ToCell(b.X, b.Y)
		r.screen.SetCell(col, row, style, SmallBallChar)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RenderMessage displays a centered title and message, used while
// connecting and on errors.
func (r *Renderer) RenderMessage(title, message, hint string, titleColor tcell.Color) {
	r.screen.Clear()
	screenW, screenH := r.screen.Size()

	titleStyle := tcell.StyleDefault.Bold(true).Foreground(titleColor)
	r.screen.DrawText((screenW-len(title))/2, screenH/2-2, title, titleStyle)

	// Truncate if too long
	maxLen := screenW - 4
	if maxLen > 3 && len(message) > maxLen {
		message = message[:maxLen-3] + "..."
	}
	r.screen.DrawText((screenW-len(message))/2, screenH/2, message, tcell.StyleDefault.Foreground(tcell.ColorWhite))

	r.screen.DrawText((screenW-len(hint))/2, screenH/2+3, hint, tcell.StyleDefault.Foreground(tcell.ColorGray))

	r.screen.Show()
}

// RenderConnecting displays the connecting screen
func (r *Renderer) RenderConnecting(addr string) {
	r.RenderMessage("FIDGETBALL", "Connecting to "+addr+"...", "Press 'q' to cancel", tcell.ColorTeal)
}

// RenderError displays an error screen
func (r *Renderer) RenderError(err string) {
	r.RenderMessage("ERROR", err, "Press any key to continue", tcell.ColorRed)
}
