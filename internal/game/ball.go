package game

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidRadius is returned when a ball would have a non-positive radius.
var ErrInvalidRadius = errors.New("ball radius must be positive")

// Lifetime controls how long a released ball lives and how it fades out.
type Lifetime struct {
	DeletionDelay     time.Duration // time after release before the ball is removed
	BallFade          time.Duration // fade window ending exactly at DeletionDelay
	TrailFade         time.Duration // trail fade window starting at release
	TrailInitialAlpha float64       // trail opacity while the ball is held
	TrailWidthRatio   float64       // trail stroke width relative to the radius
}

// DefaultLifetime returns the stock fade timings.
func DefaultLifetime() Lifetime {
	return Lifetime{
		DeletionDelay:     5 * time.Second,
		BallFade:          2 * time.Second,
		TrailFade:         750 * time.Millisecond,
		TrailInitialAlpha: 0.3,
		TrailWidthRatio:   0.2,
	}
}

// Ball is a simulated circle.
//
// Position and Velocity are authoritative and belong to whoever currently
// drives the ball: the input side while it is held, the tick loop once it is
// in flight. Other goroutines must go through RenderPosition and Snapshot.
type Ball struct {
	Position Vec2
	Velocity Vec2
	Radius   float64

	Color      RGBA
	TrailColor RGBA

	inFlight       atomic.Bool
	collisionCount int

	mu          sync.RWMutex
	renderPos   Vec2
	releaseTime time.Time
	trail       []Vec2
	lastTrail   Vec2
}

// BallView is a copy of everything the renderer needs for one ball.
type BallView struct {
	Position     Vec2
	Radius       float64
	Color        RGBA
	TrailColor   RGBA
	TrailWidth   float64
	Trail        []Vec2
	TrailVisible bool
	InFlight     bool
}

// NewBall creates a held ball at pos.
func NewBall(pos Vec2, radius float64, color, trailColor RGBA) (*Ball, error) {
	if !(radius > 0) {
		return nil, ErrInvalidRadius
	}
	return &Ball{
		Position:   pos,
		Radius:     radius,
		Color:      color,
		TrailColor: trailColor,
		renderPos:  pos,
		trail:      []Vec2{pos},
		lastTrail:  pos,
	}, nil
}

// InFlight reports whether the ball has been released.
func (b *Ball) InFlight() bool {
	return b.inFlight.Load()
}

// CollisionCount returns the number of haptic collisions since release.
func (b *Ball) CollisionCount() int {
	return b.collisionCount
}

func (b *Ball) recordCollision() {
	b.collisionCount++
}

// ReleaseTime returns the release instant, or the zero time while held.
func (b *Ball) ReleaseTime() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.releaseTime
}

// Launch starts applying physics to the ball with the given velocity.
// It returns false if the ball was already in flight.
func (b *Ball) Launch(velocity Vec2, now time.Time) bool {
	if b.inFlight.Load() {
		return false
	}
	b.Velocity = velocity

	b.mu.Lock()
	b.releaseTime = now
	b.mu.Unlock()

	// Store last: the tick loop reads Position/Velocity only after seeing this.
	b.inFlight.Store(true)
	return true
}

// Publish copies Position into the render snapshot. While the ball is held
// it also extends the trail with a quadratic segment towards the new point.
func (b *Ball) Publish() {
	held := !b.inFlight.Load()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.renderPos = b.Position
	if held && b.Position != b.lastTrail {
		b.trail = append(b.trail, b.lastTrail, b.lastTrail.Midpoint(b.Position))
		b.lastTrail = b.Position
	}
}

// RenderPosition returns the last published position.
func (b *Ball) RenderPosition() Vec2 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.renderPos
}

// Trail returns a copy of the trail control points: a start point followed
// by (control, end) pairs of quadratic curves.
func (b *Ball) Trail() []Vec2 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Vec2, len(b.trail))
	copy(out, b.trail)
	return out
}

// sinceRelease returns the time elapsed since release and whether the ball
// has been released at all.
func (b *Ball) sinceRelease(now time.Time) (time.Duration, bool) {
	rt := b.ReleaseTime()
	if rt.IsZero() {
		return 0, false
	}
	return now.Sub(rt), true
}

// ShouldBeDeleted reports whether more than delay has passed since release.
func (b *Ball) ShouldBeDeleted(now time.Time, delay time.Duration) bool {
	since, released := b.sinceRelease(now)
	return released && since > delay
}

// BodyColor returns the ball color with the end-of-life fade applied.
func (b *Ball) BodyColor(now time.Time, lt Lifetime) RGBA {
	since, released := b.sinceRelease(now)
	if !released || lt.BallFade <= 0 {
		return b.Color
	}
	intoFade := since - (lt.DeletionDelay - lt.BallFade)
	if intoFade <= 0 {
		return b.Color
	}
	return b.Color.WithFade(float64(intoFade) / float64(lt.BallFade))
}

// TrailColorAt returns the trail color: faint while held, fading to nothing
// over the trail window after release.
func (b *Ball) TrailColorAt(now time.Time, lt Lifetime) RGBA {
	progress := 0.0
	if since, released := b.sinceRelease(now); released && since > 0 {
		if lt.TrailFade <= 0 {
			progress = 1
		} else {
			progress = float64(since) / float64(lt.TrailFade)
		}
	}
	fade := progress*lt.TrailInitialAlpha + (1 - lt.TrailInitialAlpha)
	return b.TrailColor.WithFade(fade)
}

// TrailVisible reports whether the trail still needs drawing.
func (b *Ball) TrailVisible(now time.Time, lt Lifetime) bool {
	since, released := b.sinceRelease(now)
	return !released || since <= lt.TrailFade
}

// Snapshot returns a consistent render view of the ball at time now.
func (b *Ball) Snapshot(now time.Time, lt Lifetime) BallView {
	view := BallView{
		Radius:       b.Radius,
		Color:        b.BodyColor(now, lt),
		TrailColor:   b.TrailColorAt(now, lt),
		TrailWidth:   b.Radius * lt.TrailWidthRatio,
		TrailVisible: b.TrailVisible(now, lt),
		InFlight:     b.InFlight(),
	}
	view.Position = b.RenderPosition()
	if view.TrailVisible {
		view.Trail = b.Trail()
	}
	return view
}
