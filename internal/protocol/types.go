package protocol

import (
	"encoding/gob"
	"time"
)

// Field units per terminal cell. Cells are about twice as tall as they are
// wide, so this keeps the field roughly isotropic.
const (
	CellWidth  = 10
	CellHeight = 20
)

// FieldSize converts a terminal size in cells to field units.
func FieldSize(cols, rows int) (int, int) {
	return cols * CellWidth, rows * CellHeight
}

// MessageType identifies the type of network message
type MessageType int

const (
	MsgJoinRequest MessageType = iota
	MsgJoinResponse
	MsgPointer
	MsgResize
	MsgFrame
	MsgPulse
)

// Message is the wrapper for all network messages
type Message struct {
	Type    MessageType
	Payload interface{}
}

// PointerKind is the phase of a touch.
type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
)

func (k PointerKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	}
	return "unknown"
}

// JoinRequest is sent by a client wanting to join the field
type JoinRequest struct {
	PlayerName     string
	TerminalWidth  int
	TerminalHeight int
}

// JoinResponse is sent by the server in response to a join request
type JoinResponse struct {
	PlayerID string
	Accepted bool
	Reason   string
}

// PointerEvent is one touch sample in field units. Velocity is only
// meaningful on PointerUp.
type PointerEvent struct {
	Kind    PointerKind
	Pointer int
	X, Y    float64
	VX, VY  float64
}

// Resize tells the server that a client's terminal changed size.
type Resize struct {
	TerminalWidth  int
	TerminalHeight int
}

// Point is a position in field units.
type Point struct {
	X, Y float64
}

// Color is a straight-alpha RGBA color.
type Color struct {
	R, G, B, A uint8
}

// BallView is everything a client needs to draw one ball.
type BallView struct {
	X, Y       float64
	Radius     float64
	Color      Color
	TrailColor Color
	TrailWidth float64
	// Trail holds a start point followed by (control, end) pairs of
	// quadratic curves. Empty once the trail has faded.
	Trail    []Point
	InFlight bool
}

// Segment is a wall outline.
type Segment struct {
	X1, Y1 float64
	X2, Y2 float64
}

// Frame is a full snapshot of the field.
type Frame struct {
	Tick    uint64
	Width   int
	Height  int
	Balls   []BallView
	Walls   []Segment
	Players int
}

// Pulse asks the client to vibrate once.
type Pulse struct {
	Duration time.Duration
}

func init() {
	// Register all payload types with gob for network serialization
	gob.Register(JoinRequest{})
	gob.Register(JoinResponse{})
	gob.Register(PointerEvent{})
	gob.Register(Resize{})
	gob.Register(Frame{})
	gob.Register(Pulse{})
}
