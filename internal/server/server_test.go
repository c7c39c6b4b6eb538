package server

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/diegok/fidgetball/internal/client"
	"github.com/diegok/fidgetball/internal/config"
	"github.com/diegok/fidgetball/internal/protocol"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Port = 0
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// join connects a pipe to the server and completes the handshake.
func join(t *testing.T, s *Server, cols, rows int) (*protocol.Codec, net.Conn, protocol.JoinResponse) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	go s.handleConnection(serverSide)

	codec := protocol.NewCodec(clientSide)
	if err := codec.Send(protocol.MsgJoinRequest, protocol.JoinRequest{
		PlayerName:     "tester",
		TerminalWidth:  cols,
		TerminalHeight: rows,
	}); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}
	msg, err := codec.Expect(protocol.MsgJoinResponse)
	if err != nil {
		t.Fatalf("failed to read join response: %v", err)
	}
	return codec, clientSide, msg.Payload.(protocol.JoinResponse)
}

func TestServer_JoinAssignsSession(t *testing.T) {
	s := newTestServer(t)

	_, conn, resp := join(t, s, 60, 20)
	defer conn.Close()

	if !resp.Accepted {
		t.Fatalf("expected join accepted, got %q", resp.Reason)
	}
	if _, err := uuid.Parse(resp.PlayerID); err != nil {
		t.Errorf("expected a uuid session id, got %q", resp.PlayerID)
	}

	waitFor(t, "client registration", func() bool { return s.ClientCount() == 1 })
	waitFor(t, "field 600x380", func() bool {
		w, h := s.Simulation().Size()
		return w == 600 && h == 380
	})
}

func TestServer_RejectsSmallTerminal(t *testing.T) {
	s := newTestServer(t)

	_, conn, resp := join(t, s, MinTermWidth-1, 30)
	defer conn.Close()

	if resp.Accepted {
		t.Fatal("expected join rejected")
	}
	if resp.Reason == "" {
		t.Error("expected a rejection reason")
	}
	if s.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", s.ClientCount())
	}
}

func TestServer_RejectsMissingJoin(t *testing.T) {
	s := newTestServer(t)
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	done := make(chan struct{})
	go func() {
		s.handleConnection(serverSide)
		close(done)
	}()

	codec := protocol.NewCodec(clientSide)
	go codec.Send(protocol.MsgPointer, protocol.PointerEvent{})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the connection to be dropped")
	}
	if s.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", s.ClientCount())
	}
}

func TestServer_PointerNamespacing(t *testing.T) {
	s := newTestServer(t)
	sim := s.Simulation()

	codecA, connA, _ := join(t, s, 80, 24)
	defer connA.Close()
	codecB, connB, _ := join(t, s, 80, 24)
	defer connB.Close()
	waitFor(t, "two clients", func() bool { return s.ClientCount() == 2 })

	codecA.Send(protocol.MsgPointer, protocol.PointerEvent{Kind: protocol.PointerDown, Pointer: 0, X: 100, Y: 100})
	codecB.Send(protocol.MsgPointer, protocol.PointerEvent{Kind: protocol.PointerDown, Pointer: 0, X: 500, Y: 300})

	waitFor(t, "both balls", func() bool {
		_, okA := sim.HeldBall(1 << 8)
		_, okB := sim.HeldBall(2 << 8)
		return okA && okB
	})
	if n := len(sim.Balls()); n != 2 {
		t.Errorf("expected 2 balls, got %d", n)
	}

	codecA.Send(protocol.MsgPointer, protocol.PointerEvent{Kind: protocol.PointerMove, Pointer: 0, X: 150, Y: 120})
	waitFor(t, "move", func() bool {
		b, ok := sim.HeldBall(1 << 8)
		return ok && b.RenderPosition().X == 150
	})
	b, _ := sim.HeldBall(2 << 8)
	if b.RenderPosition().X != 500 {
		t.Errorf("expected other client's ball untouched, got %v", b.RenderPosition())
	}
}

func TestServer_DisconnectReleasesHeldBalls(t *testing.T) {
	s := newTestServer(t)
	sim := s.Simulation()

	codec, conn, _ := join(t, s, 80, 24)
	waitFor(t, "client", func() bool { return s.ClientCount() == 1 })

	codec.Send(protocol.MsgPointer, protocol.PointerEvent{Kind: protocol.PointerDown, Pointer: 1, X: 300, Y: 200})
	waitFor(t, "held ball", func() bool {
		_, ok := sim.HeldBall(1<<8 | 1)
		return ok
	})
	ball, _ := sim.HeldBall(1<<8 | 1)

	conn.Close()

	waitFor(t, "disconnect", func() bool { return s.ClientCount() == 0 })
	if _, ok := sim.HeldBall(1<<8 | 1); ok {
		t.Error("expected the held ball to be released")
	}
	if !ball.InFlight() {
		t.Error("expected the released ball in flight")
	}
	if ball.Velocity.X != 0 {
		t.Errorf("expected a still release, got velocity %v", ball.Velocity)
	}
}

func TestServer_FieldFollowsSmallestTerminal(t *testing.T) {
	s := newTestServer(t)
	sim := s.Simulation()

	_, connA, _ := join(t, s, 100, 30)
	defer connA.Close()
	waitFor(t, "first client", func() bool { return s.ClientCount() == 1 })

	codecB, connB, _ := join(t, s, 60, 40)
	wantW, wantH := fieldSize(60, 30)
	if wantW != 600 || wantH != 29*protocol.CellHeight {
		t.Fatalf("fieldSize(60, 30) = %dx%d", wantW, wantH)
	}
	waitFor(t, fmt.Sprintf("field %dx%d", wantW, wantH), func() bool {
		w, h := sim.Size()
		return w == wantW && h == wantH
	})

	codecB.Send(protocol.MsgResize, protocol.Resize{TerminalWidth: 120, TerminalHeight: 40})
	wantW, wantH = fieldSize(100, 30)
	waitFor(t, fmt.Sprintf("field %dx%d", wantW, wantH), func() bool {
		w, h := sim.Size()
		return w == wantW && h == wantH
	})

	connB.Close()
	waitFor(t, "second client gone", func() bool { return s.ClientCount() == 1 })
	if w, h := sim.Size(); w != wantW || h != wantH {
		t.Errorf("expected field %dx%d, got %dx%d", wantW, wantH, w, h)
	}
}

func TestClientBallID(t *testing.T) {
	c := &Client{ID: 3}
	tests := []struct {
		pointer int
		want    int
	}{
		{0, 768},
		{1, 769},
		{255, 1023},
		{256, 768},
	}
	for _, tt := range tests {
		if got := c.BallID(tt.pointer); got != tt.want {
			t.Errorf("BallID(%d) = %d, want %d", tt.pointer, got, tt.want)
		}
	}
}

func TestServer_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	c := client.NewClient("e2e", 80, 24)
	if err := c.Connect(fmt.Sprintf("127.0.0.1:%d", s.Port())); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	var frame protocol.Frame
	select {
	case frame = <-c.Frames:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	if frame.Width != 800 || frame.Height != 460 {
		t.Errorf("expected field 800x460, got %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Walls) != 4 {
		t.Errorf("expected 4 walls, got %d", len(frame.Walls))
	}

	// Throw a ball hard at the floor.
	c.SendPointer(protocol.PointerEvent{Kind: protocol.PointerDown, X: 400, Y: 400})
	c.SendPointer(protocol.PointerEvent{Kind: protocol.PointerUp, X: 400, Y: 420, VY: 5000})

	select {
	case p := <-c.Pulses:
		if p.Duration <= 0 {
			t.Errorf("expected a positive pulse, got %v", p.Duration)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a haptic pulse")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-c.Frames:
			if len(f.Balls) == 1 && f.Balls[0].InFlight && f.Players == 1 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the ball in flight")
		}
	}
}

func TestServer_SpectatorFeed(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 0
	cfg.SpectatePort = freePort(t)
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(s.Stop)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	url := fmt.Sprintf("ws://127.0.0.1:%d/field", cfg.SpectatePort)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial spectator feed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var frame protocol.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if frame.Width != 800 || frame.Height != 460 {
		t.Errorf("expected field 800x460, got %dx%d", frame.Width, frame.Height)
	}

	if st := s.Status(); st.Players != 0 || st.Width != 800 {
		t.Errorf("unexpected status %+v", st)
	}
}

// freePort asks the kernel for a port nobody is using right now.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
