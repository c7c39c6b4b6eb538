package ui

import (
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/diegok/fidgetball/internal/protocol"
)

// VelocityWindow is how far back the release velocity looks.
const VelocityWindow = 100 * time.Millisecond

// PointerButtons maps mouse buttons to pointer ids: the primary button is
// pointer 0, the secondary button pointer 1.
var PointerButtons = []tcell.ButtonMask{tcell.Button1, tcell.Button2}

// IsQuitKey returns true if the key should quit the application
func IsQuitKey(key tcell.Key, r rune) bool {
	if key == tcell.KeyEscape || key == tcell.KeyCtrlC {
		return true
	}
	if key == tcell.KeyRune && (r == 'q' || r == 'Q') {
		return true
	}
	return false
}

// IsMuteKey returns true if the key should toggle haptics
func IsMuteKey(key tcell.Key, r rune) bool {
	return key == tcell.KeyRune && (r == 'm' || r == 'M')
}

type sample struct {
	at   time.Time
	x, y float64
}

// velocityTracker estimates pointer velocity from recent samples.
type velocityTracker struct {
	window  time.Duration
	samples []sample
}

func (v *velocityTracker) reset() {
	v.samples = v.samples[:0]
}

func (v *velocityTracker) add(at time.Time, x, y float64) {
	v.samples = append(v.samples, sample{at: at, x: x, y: y})

	cutoff := at.Add(-v.window)
	drop := 0
	for drop < len(v.samples)-1 && v.samples[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		v.samples = append(v.samples[:0], v.samples[drop:]...)
	}
}

// velocity returns the average velocity over the window ending at the
// newest sample, in field units per second.
func (v *velocityTracker) velocity() (float64, float64) {
	if len(v.samples) < 2 {
		return 0, 0
	}
	first, last := v.samples[0], v.samples[len(v.samples)-1]
	dt := last.at.Sub(first.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}
	return (last.x - first.x) / dt, (last.y - first.y) / dt
}

// Pointers turns mouse button state into per-pointer touch events.
type Pointers struct {
	Fling float64

	buttons  tcell.ButtonMask
	trackers map[int]*velocityTracker
	last     map[int]protocol.Point
}

// NewPointers creates a tracker whose release velocities are scaled by fling.
func NewPointers(fling float64) *Pointers {
	return &Pointers{
		Fling:    fling,
		trackers: make(map[int]*velocityTracker),
		last:     make(map[int]protocol.Point),
	}
}

func (p *Pointers) tracker(id int) *velocityTracker {
	t, ok := p.trackers[id]
	if !ok {
		t = &velocityTracker{window: VelocityWindow}
		p.trackers[id] = t
	}
	return t
}

// Held reports whether pointer id is currently down.
func (p *Pointers) Held(id int) bool {
	if id < 0 || id >= len(PointerButtons) {
		return false
	}
	return p.buttons&PointerButtons[id] != 0
}

// Mouse feeds one mouse sample at field position (x, y) and returns the
// resulting pointer events.
func (p *Pointers) Mouse(buttons tcell.ButtonMask, x, y float64, at time.Time) []protocol.PointerEvent {
	var events []protocol.PointerEvent

	for id, mask := range PointerButtons {
		was := p.buttons&mask != 0
		is := buttons&mask != 0
		t := p.tracker(id)

		switch {
		case !was && is:
			t.reset()
			t.add(at, x, y)
			p.last[id] = protocol.Point{X: x, Y: y}
			events = append(events, protocol.PointerEvent{Kind: protocol.PointerDown, Pointer: id, X: x, Y: y})

		case was && is:
			t.add(at, x, y)
			if prev := p.last[id]; prev.X == x && prev.Y == y {
				continue
			}
			p.last[id] = protocol.Point{X: x, Y: y}
			events = append(events, protocol.PointerEvent{Kind: protocol.PointerMove, Pointer: id, X: x, Y: y})

		case was && !is:
			t.add(at, x, y)
			vx, vy := t.velocity()
			t.reset()
			delete(p.last, id)
			events = append(events, protocol.PointerEvent{
				Kind: protocol.PointerUp, Pointer: id,
				X: x, Y: y,
				VX: vx * p.Fling, VY: vy * p.Fling,
			})
		}
	}

	p.buttons = buttons
	return events
}

// ReleaseAll lets go of every held pointer at its last position with no
// velocity.
func (p *Pointers) ReleaseAll() []protocol.PointerEvent {
	var events []protocol.PointerEvent
	for id := range PointerButtons {
		if !p.Held(id) {
			continue
		}
		pos := p.last[id]
		p.tracker(id).reset()
		delete(p.last, id)
		events = append(events, protocol.PointerEvent{Kind: protocol.PointerUp, Pointer: id, X: pos.X, Y: pos.Y})
	}
	p.buttons = 0
	return events
}
