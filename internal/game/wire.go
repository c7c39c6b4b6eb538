package game

import "github.com/diegok/fidgetball/internal/protocol"

// HandlePointer applies one touch sample to the ball held by pointer id.
func (s *Simulation) HandlePointer(id int, ev protocol.PointerEvent) {
	pos := V(ev.X, ev.Y)
	switch ev.Kind {
	case protocol.PointerDown:
		s.CreateHeldBall(id, pos)
	case protocol.PointerMove:
		s.MoveHeldBall(id, pos)
	case protocol.PointerUp:
		s.MoveHeldBall(id, pos)
		s.ReleaseBall(id, V(ev.VX, ev.VY))
	}
}

// ToProtocolFrame converts the current field to its wire form.
func (s *Simulation) ToProtocolFrame() protocol.Frame {
	views := s.Frame()
	w, h := s.Size()

	frame := protocol.Frame{
		Tick:   s.Ticks(),
		Width:  w,
		Height: h,
		Balls:  make([]protocol.BallView, len(views)),
	}
	for i, v := range views {
		frame.Balls[i] = toProtocolBall(v)
	}
	for _, o := range s.Obstacles() {
		for _, b := range o.Boundaries() {
			frame.Walls = append(frame.Walls, protocol.Segment{
				X1: b.Start.X, Y1: b.Start.Y,
				X2: b.End.X, Y2: b.End.Y,
			})
		}
	}
	return frame
}

func toProtocolBall(v BallView) protocol.BallView {
	out := protocol.BallView{
		X:          v.Position.X,
		Y:          v.Position.Y,
		Radius:     v.Radius,
		Color:      protocol.Color(v.Color),
		TrailColor: protocol.Color(v.TrailColor),
		TrailWidth: v.TrailWidth,
		InFlight:   v.InFlight,
	}
	if v.TrailVisible && len(v.Trail) > 0 {
		out.Trail = make([]protocol.Point, len(v.Trail))
		for i, p := range v.Trail {
			out.Trail[i] = protocol.Point{X: p.X, Y: p.Y}
		}
	}
	return out
}
