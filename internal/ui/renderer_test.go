package ui

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/diegok/fidgetball/internal/protocol"
)

func newTestRenderer(t *testing.T, w, h int) (*Renderer, tcell.SimulationScreen) {
	t.Helper()
	sim := tcell.NewSimulationScreen("UTF-8")
	if err := sim.Init(); err != nil {
		t.Fatalf("failed to init screen: %v", err)
	}
	t.Cleanup(sim.Fini)
	sim.SetSize(w, h)
	return NewRenderer(NewScreen(sim)), sim
}

func TestViewport_RoundTrip(t *testing.T) {
	vp := NewViewport(80, 23, 800, 460)

	tests := []struct {
		x, y     float64
		col, row int
	}{
		{0, 0, 0, 0},
		{9.99, 19.99, 0, 0},
		{10, 20, 1, 1},
		{795, 455, 79, 22},
		{800, 460, 79, 22},
		{-50, 9999, 0, 22},
	}
	for _, tt := range tests {
		col, row := vp.ToCell(tt.x, tt.y)
		if col != tt.col || row != tt.row {
			t.Errorf("ToCell(%v,%v) = (%d,%d), want (%d,%d)", tt.x, tt.y, col, row, tt.col, tt.row)
		}
	}

	x, y := vp.ToField(3, 4)
	if x != 35 || y != 90 {
		t.Errorf("expected cell center (35,90), got (%v,%v)", x, y)
	}
	col, row := vp.ToCell(x, y)
	if col != 3 || row != 4 {
		t.Errorf("expected round trip to (3,4), got (%d,%d)", col, row)
	}
}

func TestViewport_Scaled(t *testing.T) {
	// A 40x10 field shown on an 80x20 terminal.
	vp := NewViewport(80, 20, 400, 200)
	col, row := vp.ToCell(200, 100)
	if col != 40 || row != 10 {
		t.Errorf("expected center cell (40,10), got (%d,%d)", col, row)
	}
}

func TestBlend(t *testing.T) {
	tests := []struct {
		name    string
		in      protocol.Color
		r, g, b int32
	}{
		{"opaque", protocol.Color{R: 0, G: 0, B: 255, A: 255}, 0, 0, 255},
		{"transparent", protocol.Color{R: 0, G: 0, B: 255, A: 0}, 0, 0, 0},
		{"half", protocol.Color{R: 0, G: 200, B: 255, A: 128}, 0, 100, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := Blend(tt.in).RGB()
			if r != tt.r || g != tt.g || b != tt.b {
				t.Errorf("expected (%d,%d,%d), got (%d,%d,%d)", tt.r, tt.g, tt.b, r, g, b)
			}
		})
	}
}

func TestQuadraticPoints(t *testing.T) {
	if QuadraticPoints(nil, 4) != nil {
		t.Error("expected no points for an empty trail")
	}

	trail := []protocol.Point{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	pts := QuadraticPoints(trail, 4)
	if len(pts) != 9 {
		t.Fatalf("expected 9 points, got %d", len(pts))
	}
	if pts[4] != (protocol.Point{X: 5, Y: 0}) {
		t.Errorf("expected first segment to end at (5,0), got %v", pts[4])
	}
	if pts[8] != (protocol.Point{X: 10, Y: 10}) {
		t.Errorf("expected last segment to end at (10,10), got %v", pts[8])
	}
	// Second curve: start (5,0), control (10,0), end (10,10), at t=0.5.
	if pts[6] != (protocol.Point{X: 8.75, Y: 2.5}) {
		t.Errorf("expected midpoint (8.75,2.5), got %v", pts[6])
	}
}

func TestRenderField(t *testing.T) {
	r, sim := newTestRenderer(t, 40, 11)

	frame := protocol.Frame{
		Width:  400,
		Height: 200,
		Walls: []protocol.Segment{
			{X1: 400, Y1: 200, X2: 0, Y2: 200},
			{X1: 0, Y1: 0, X2: 0, Y2: 200},
		},
		Balls: []protocol.BallView{
			{X: 200, Y: 100, Radius: 30, Color: protocol.Color{B: 255, A: 255}},
			{X: 55, Y: 25, Radius: 1, Color: protocol.Color{B: 255, A: 255}},
			{X: 300, Y: 50, Radius: 30, Color: protocol.Color{B: 255, A: 0}},
		},
	}
	r.RenderField(frame, "balls: 3")

	if ch, _, _, _ := sim.GetContent(20, 5); ch != BallChar {
		t.Errorf("expected ball at center cell, got %q", ch)
	}
	if ch, _, _, _ := sim.GetContent(5, 1); ch != SmallBallChar {
		t.Errorf("expected small ball marker, got %q", ch)
	}
	if ch, _, _, _ := sim.GetContent(30, 2); ch == BallChar {
		t.Error("expected fully faded ball to be skipped")
	}
	if ch, _, _, _ := sim.GetContent(20, 9); ch != '─' {
		t.Errorf("expected bottom wall, got %q", ch)
	}
	if ch, _, _, _ := sim.GetContent(0, 5); ch != '│' {
		t.Errorf("expected left wall, got %q", ch)
	}

	var status strings.Builder
	for x := 0; x < 8; x++ {
		ch, _, _, _ := sim.GetContent(x, 10)
		status.WriteRune(ch)
	}
	if status.String() != "balls: 3" {
		t.Errorf("expected status line, got %q", status.String())
	}
}

func TestRenderField_Trail(t *testing.T) {
	r, sim := newTestRenderer(t, 40, 11)

	frame := protocol.Frame{
		Width:  400,
		Height: 200,
		Balls: []protocol.BallView{{
			X: 355, Y: 25, Radius: 1,
			Color:      protocol.Color{B: 255, A: 255},
			TrailColor: protocol.Color{G: 200, B: 255, A: 77},
			Trail: []protocol.Point{
				{X: 15, Y: 25}, {X: 15, Y: 25}, {X: 185, Y: 25}, {X: 355, Y: 25}, {X: 355, Y: 25},
			},
		}},
	}
	r.RenderField(frame, "")

	if ch, _, _, _ := sim.GetContent(1, 1); ch != TrailChar {
		t.Errorf("expected trail at its start, got %q", ch)
	}
	if ch, _, _, _ := sim.GetContent(35, 1); ch != SmallBallChar {
		t.Errorf("expected ball drawn over its trail, got %q", ch)
	}
}
