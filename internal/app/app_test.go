package app

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/diegok/fidgetball/internal/config"
	"github.com/diegok/fidgetball/internal/ui"
)

func newTestApp(t *testing.T, cols, rows int) (*App, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("failed to init screen: %v", err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(cols, rows)

	a := NewApp(config.Default())
	a.attach(ui.NewScreen(screen))
	return a, screen
}

func newLocalApp(t *testing.T, cols, rows int) (*App, tcell.SimulationScreen) {
	t.Helper()
	a, screen := newTestApp(t, cols, rows)
	if err := a.startLocal(); err != nil {
		t.Fatalf("failed to start local field: %v", err)
	}
	t.Cleanup(a.sim.Stop)
	return a, screen
}

func screenText(screen tcell.SimulationScreen) string {
	w, h := screen.Size()
	var sb strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := screen.GetContent(x, y)
			sb.WriteRune(r)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestApp_LocalFieldFitsTerminal(t *testing.T) {
	a, _ := newLocalApp(t, 80, 24)

	if w, h := a.sim.Size(); w != 800 || h != 460 {
		t.Errorf("expected field 800x460, got %dx%d", w, h)
	}
	if !a.sim.Running() {
		t.Error("expected the simulation to be running")
	}
}

func TestApp_DragAndFling(t *testing.T) {
	a, _ := newLocalApp(t, 80, 24)

	a.handleEvent(tcell.NewEventMouse(40, 10, tcell.Button1, tcell.ModNone))
	ball, ok := a.sim.HeldBall(0)
	if !ok {
		t.Fatal("expected a held ball under pointer 0")
	}
	if p := ball.RenderPosition(); p.X != 405 || p.Y != 210 {
		t.Errorf("expected ball at (405,210), got %v", p)
	}

	a.handleEvent(tcell.NewEventMouse(42, 10, tcell.Button1, tcell.ModNone))
	if p := ball.RenderPosition(); p.X != 425 {
		t.Errorf("expected ball dragged to x=425, got %v", p)
	}

	a.handleEvent(tcell.NewEventMouse(42, 10, tcell.ButtonNone, tcell.ModNone))
	if _, ok := a.sim.HeldBall(0); ok {
		t.Error("expected the ball to be released")
	}
	if !ball.InFlight() {
		t.Error("expected the ball in flight")
	}
}

func TestApp_SecondaryButtonIsSecondPointer(t *testing.T) {
	a, _ := newLocalApp(t, 80, 24)

	a.handleEvent(tcell.NewEventMouse(10, 5, tcell.Button1|tcell.Button2, tcell.ModNone))

	if _, ok := a.sim.HeldBall(0); !ok {
		t.Error("expected a ball under pointer 0")
	}
	if _, ok := a.sim.HeldBall(1); !ok {
		t.Error("expected a ball under pointer 1")
	}
	if n := len(a.sim.Balls()); n != 2 {
		t.Errorf("expected 2 balls, got %d", n)
	}
}

func TestApp_ResizeRebuildsField(t *testing.T) {
	a, screen := newLocalApp(t, 80, 24)

	a.handleEvent(tcell.NewEventMouse(40, 10, tcell.Button1, tcell.ModNone))

	screen.SetSize(60, 20)
	a.handleEvent(tcell.NewEventResize(60, 20))

	if w, h := a.sim.Size(); w != 600 || h != 380 {
		t.Errorf("expected field 600x380, got %dx%d", w, h)
	}
	if a.pointers.Held(0) {
		t.Error("expected pointer 0 let go on resize")
	}
	if n := len(a.sim.Balls()); n != 0 {
		t.Errorf("expected an empty field, got %d balls", n)
	}
}

func TestApp_FocusPausesField(t *testing.T) {
	a, _ := newLocalApp(t, 80, 24)

	a.handleEvent(tcell.NewEventMouse(40, 10, tcell.Button1, tcell.ModNone))
	ball, _ := a.sim.HeldBall(0)

	a.setFocus(false)
	if a.sim.Running() {
		t.Error("expected the simulation paused")
	}
	if !ball.InFlight() {
		t.Error("expected the held ball released on focus loss")
	}

	a.handleEvent(tcell.NewEventMouse(10, 10, tcell.Button1, tcell.ModNone))
	if _, ok := a.sim.HeldBall(0); ok {
		t.Error("expected mouse input ignored while unfocused")
	}

	a.setFocus(true)
	if !a.sim.Running() {
		t.Error("expected the simulation resumed")
	}
}

func TestApp_Keys(t *testing.T) {
	a, _ := newTestApp(t, 80, 24)

	if a.handleKey(tcell.KeyRune, 'x') {
		t.Error("expected 'x' not to quit")
	}
	if a.handleKey(tcell.KeyRune, 'm'); !a.buzzer.Muted() {
		t.Error("expected 'm' to mute")
	}
	if a.handleKey(tcell.KeyRune, 'M'); a.buzzer.Muted() {
		t.Error("expected 'M' to unmute")
	}
	if !a.handleKey(tcell.KeyRune, 'q') {
		t.Error("expected 'q' to quit")
	}
	if !a.handleKey(tcell.KeyEscape, 0) {
		t.Error("expected Escape to quit")
	}
}

func TestApp_RenderLocal(t *testing.T) {
	a, screen := newLocalApp(t, 80, 24)
	a.buzzer.SetMuted(true)

	a.render()

	text := screenText(screen)
	for _, want := range []string{"local", "balls: 0", "muted", "Q: quit"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected status bar to contain %q", want)
		}
	}
}

func TestApp_RenderWaitsForFrame(t *testing.T) {
	a, screen := newTestApp(t, 80, 24)

	a.render()

	if text := screenText(screen); !strings.Contains(text, "Waiting for the field") {
		t.Error("expected a waiting message before the first frame")
	}
}

func TestHasPort(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"localhost", false},
		{"localhost:5656", true},
		{"192.168.1.10", false},
		{"192.168.1.10:7000", true},
	}
	for _, tt := range tests {
		if got := hasPort(tt.addr); got != tt.want {
			t.Errorf("hasPort(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestGenerateRandomName(t *testing.T) {
	name := generateRandomName()
	if name == "" {
		t.Fatal("expected a name")
	}
	if strings.ContainsAny(name, " \t") {
		t.Errorf("expected no whitespace in %q", name)
	}
}
