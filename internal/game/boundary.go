package game

import (
	"errors"
	"math"
)

var (
	// ErrDegenerateBoundary is returned for a boundary whose ends coincide.
	ErrDegenerateBoundary = errors.New("boundary start and end must differ")
	// ErrInvalidRestitution is returned for a restitution outside [0, 1].
	ErrInvalidRestitution = errors.New("restitution must be within [0, 1]")
)

// NoCollision is returned by TimeAfterCollision when the ball is moving away
// from, or parallel to, the boundary.
var NoCollision = math.Inf(-1)

// Boundary is a half-plane with collision. The solid side lies to the left
// of the directed line from Start to End, that is where
// (p - Start) x tangent > 0.
type Boundary struct {
	Start       Vec2
	End         Vec2
	Restitution float64

	tangent Vec2
}

// NewBoundary builds a boundary and rejects degenerate geometry up front so
// no NaN can reach the tick loop.
func NewBoundary(start, end Vec2, restitution float64) (*Boundary, error) {
	if !start.IsFinite() || !end.IsFinite() {
		return nil, ErrDegenerateBoundary
	}
	d := end.Sub(start)
	if d.Len() == 0 {
		return nil, ErrDegenerateBoundary
	}
	if math.IsNaN(restitution) || restitution < 0 || restitution > 1 {
		return nil, ErrInvalidRestitution
	}
	return &Boundary{
		Start:       start,
		End:         end,
		Restitution: restitution,
		tangent:     d.Normalize(),
	}, nil
}

// Tangent returns the unit vector from Start towards End.
func (h *Boundary) Tangent() Vec2 {
	return h.tangent
}

// Penetration returns how far the ball reaches into the solid side.
// Positive values mean overlap.
func (h *Boundary) Penetration(b *Ball) float64 {
	return b.Position.Sub(h.Start).Cross(h.tangent) + b.Radius
}

// TimeAfterCollision returns how long ago the ball's leading edge touched
// the line. A value in (0, dt] means the contact happened during the last
// step of length dt. Balls not approaching the solid side get NoCollision.
func (h *Boundary) TimeAfterCollision(b *Ball) float64 {
	approach := b.Velocity.Cross(h.tangent)
	if !(approach > 0) {
		return NoCollision
	}
	return h.Penetration(b) / approach
}

// Resolve rewinds the ball to the moment of contact, reflects the normal
// component of its velocity damped by the restitution, and replays the
// remaining t seconds with the corrected velocity.
func (h *Boundary) Resolve(b *Ball, t float64) {
	parallel := b.Velocity.ProjectOnto(h.tangent)
	perpendicular := b.Velocity.ProjectOnto(h.tangent.Ortho())

	corrected := parallel.Sub(perpendicular.Mul(h.Restitution))
	atContact := b.Position.Sub(b.Velocity.Mul(t))

	b.Position = atContact.Add(corrected.Mul(t))
	b.Velocity = corrected
}
