package game

import "fmt"

// collisionSlack widens the accepted collision window slightly past the
// step length to absorb timer jitter.
const collisionSlack = 0.1

// Obstacle is anything a ball can bounce off.
type Obstacle interface {
	// Collide corrects the ball for any boundary it crossed during the last
	// dt seconds and returns the number of boundaries applied.
	Collide(b *Ball, dt float64) int
	// Boundaries returns the obstacle outline for drawing.
	Boundaries() []*Boundary
}

// Rect is an axis-aligned rectangle in field units.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Box is a rectangle made of four boundaries.
type Box struct {
	Bounds Rect
	sides  []*Boundary
}

// NewBox builds a box. With inward set, the solid sides face outwards so
// balls are kept inside the rectangle; otherwise balls are kept out of it.
func NewBox(bounds Rect, restitution float64, inward bool) (*Box, error) {
	bottomLeft := V(bounds.Left, bounds.Bottom)
	bottomRight := V(bounds.Right, bounds.Bottom)
	topRight := V(bounds.Right, bounds.Top)
	topLeft := V(bounds.Left, bounds.Top)

	corners := [][2]Vec2{
		{bottomLeft, bottomRight},
		{bottomRight, topRight},
		{topRight, topLeft},
		{topLeft, bottomLeft},
	}

	sides := make([]*Boundary, 0, len(corners))
	for _, c := range corners {
		start, end := c[0], c[1]
		if inward {
			start, end = end, start
		}
		side, err := NewBoundary(start, end, restitution)
		if err != nil {
			return nil, fmt.Errorf("failed to build box side: %w", err)
		}
		sides = append(sides, side)
	}

	return &Box{Bounds: bounds, sides: sides}, nil
}

// Boundaries returns bottom, right, top and left in that order.
func (x *Box) Boundaries() []*Boundary {
	return x.sides
}

// Collide applies every side the ball crossed during the last dt seconds.
// Sides are resolved one after another against the already-corrected state,
// which approximates corner hits rather than solving them jointly.
func (x *Box) Collide(b *Ball, dt float64) int {
	hits := 0
	limit := dt * (1 + collisionSlack)
	for _, side := range x.sides {
		t := side.TimeAfterCollision(b)
		// NaN fails both comparisons.
		if t >= 0 && t <= limit {
			side.Resolve(b, t)
			hits++
		}
	}
	return hits
}
