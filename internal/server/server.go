package server

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diegok/fidgetball/internal/config"
	"github.com/diegok/fidgetball/internal/game"
	"github.com/diegok/fidgetball/internal/haptic"
	"github.com/diegok/fidgetball/internal/protocol"
	"github.com/diegok/fidgetball/internal/spectate"
)

// Server constants
const (
	MinTermWidth  = 20
	MinTermHeight = 8

	// Terminal size the field starts with before anyone joins.
	DefaultTermWidth  = 80
	DefaultTermHeight = 24

	joinTimeout = 5 * time.Second
)

// Server hosts one shared field and streams it to every connected terminal.
type Server struct {
	cfg      *config.Config
	listener net.Listener
	mu       sync.RWMutex
	clients  map[int]*Client
	nextID   int
	resizeMu sync.Mutex // serializes resizeField
	termW    int
	termH    int
	sim      *game.Simulation
	haptics  *haptic.Dispatcher
	watchers *spectate.Hub
	feed     *spectate.Server
	done     chan struct{}
}

// NewServer creates a new server with the given configuration
func NewServer(cfg *config.Config) (*Server, error) {
	params := game.DefaultParams()
	params.Gravity = cfg.Gravity
	params.Restitution = cfg.Restitution

	s := &Server{
		cfg:      cfg,
		clients:  make(map[int]*Client),
		nextID:   1,
		termW:    DefaultTermWidth,
		termH:    DefaultTermHeight,
		watchers: spectate.NewHub(),
		done:     make(chan struct{}),
	}

	// Pulses from the host simulation are relayed to every terminal, each of
	// which buzzes (or not) on its own.
	s.haptics = haptic.NewDispatcher(haptic.VibratorFunc(s.broadcastPulse), nil)

	w, h := fieldSize(s.termW, s.termH)
	sim, err := game.NewSimulation(w, h, params, game.SystemClock{}, s.haptics)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}
	s.sim = sim

	return s, nil
}

// fieldSize converts a terminal size to field units, leaving out the
// status bar row.
func fieldSize(cols, rows int) (int, int) {
	return protocol.FieldSize(cols, rows-1)
}

// Simulation returns the hosted simulation.
func (s *Server) Simulation() *game.Simulation {
	return s.sim
}

// Start begins listening for connections and running the field
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	if s.cfg.SpectatePort > 0 {
		feed, err := spectate.Listen(s.cfg.SpectatePort, s.watchers, s.Status)
		if err != nil {
			listener.Close()
			return err
		}
		s.feed = feed
	}

	s.sim.Start(float64(s.cfg.FPS))

	go s.acceptLoop()
	go s.frameLoop()

	log.Printf("server: listening on %s", listener.Addr())
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Stop gracefully shuts down the server
func (s *Server) Stop() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
		close(s.done)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.sim.Stop()

	if s.feed != nil {
		s.feed.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.mu.Unlock()

	log.Printf("server: stopped")
}

// LocalAddresses returns host:port for every non-loopback IPv4 interface.
func LocalAddresses(port int) []string {
	var addresses []string

	interfaces, err := net.Interfaces()
	if err != nil {
		return addresses
	}

	for _, iface := range interfaces {
		// Skip loopback and down interfaces
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			// Only include IPv4 addresses
			if ip != nil && ip.To4() != nil {
				addresses = append(addresses, fmt.Sprintf("%s:%d", ip.String(), port))
			}
		}
	}

	return addresses
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection processes a new client connection
func (s *Server) handleConnection(conn net.Conn) {
	s.mu.Lock()
	clientID := s.nextID
	s.nextID++
	s.mu.Unlock()

	client := NewClient(clientID, conn)

	// Wait for join request
	conn.SetReadDeadline(time.Now().Add(joinTimeout))
	msg, err := client.Codec.Expect(protocol.MsgJoinRequest)
	if err != nil {
		log.Printf("server: client %d from %s sent no join request: %v", clientID, conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	joinReq, ok := msg.Payload.(protocol.JoinRequest)
	if !ok {
		conn.Close()
		return
	}

	// Validate terminal size
	if joinReq.TerminalWidth < MinTermWidth || joinReq.TerminalHeight < MinTermHeight {
		client.SendDirect(&protocol.Message{
			Type: protocol.MsgJoinResponse,
			Payload: protocol.JoinResponse{
				Accepted: false,
				Reason:   fmt.Sprintf("Terminal too small. Minimum: %dx%d", MinTermWidth, MinTermHeight),
			},
		})
		conn.Close()
		return
	}

	// Set client info
	client.SessionID = uuid.NewString()
	client.Name = joinReq.PlayerName
	if client.Name == "" {
		client.Name = fmt.Sprintf("Player%d", clientID)
	}
	client.Width = joinReq.TerminalWidth
	client.Height = joinReq.TerminalHeight

	// Send accept response
	err = client.SendDirect(&protocol.Message{
		Type: protocol.MsgJoinResponse,
		Payload: protocol.JoinResponse{
			PlayerID: client.SessionID,
			Accepted: true,
		},
	})
	if err != nil {
		conn.Close()
		return
	}

	// Add to clients map
	s.mu.Lock()
	s.clients[clientID] = client
	s.mu.Unlock()

	log.Printf("server: %s joined as client %d (session %s, %dx%d)",
		client.Name, clientID, client.SessionID, client.Width, client.Height)

	s.resizeField()

	// Start client writer
	client.StartWriter()

	// Read messages from client
	for {
		select {
		case <-s.done:
			return
		case <-client.done:
			s.handleDisconnect(clientID)
			return
		default:
		}

		msg, err := client.Codec.Decode()
		if err != nil {
			s.handleDisconnect(clientID)
			return
		}

		s.handleMessage(client, msg)
	}
}

// handleDisconnect lets go of everything the client was holding
func (s *Server) handleDisconnect(clientID int) {
	s.mu.Lock()
	client, exists := s.clients[clientID]
	if !exists {
		s.mu.Unlock()
		return
	}

	client.Close()
	delete(s.clients, clientID)
	s.mu.Unlock()

	for _, p := range client.heldPointers() {
		s.sim.ReleaseBall(client.BallID(p), game.Vec2{})
	}

	log.Printf("server: %s (client %d) left", client.Name, clientID)

	s.resizeField()
}

// handleMessage processes incoming messages from clients
func (s *Server) handleMessage(client *Client, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgPointer:
		ev, ok := msg.Payload.(protocol.PointerEvent)
		if !ok {
			return
		}
		client.track(ev)
		s.sim.HandlePointer(client.BallID(ev.Pointer), ev)

	case protocol.MsgResize:
		size, ok := msg.Payload.(protocol.Resize)
		if !ok || size.TerminalWidth < MinTermWidth || size.TerminalHeight < MinTermHeight {
			return
		}
		s.mu.Lock()
		client.Width = size.TerminalWidth
		client.Height = size.TerminalHeight
		s.mu.Unlock()
		s.resizeField()
	}
}

// resizeField fits the field to the smallest connected terminal. Changing
// the size clears the field.
func (s *Server) resizeField() {
	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()

	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}

	minW, minH := 0, 0
	for _, client := range s.clients {
		if minW == 0 || client.Width < minW {
			minW = client.Width
		}
		if minH == 0 || client.Height < minH {
			minH = client.Height
		}
	}

	if minW == s.termW && minH == s.termH {
		s.mu.Unlock()
		return
	}
	s.termW, s.termH = minW, minH
	s.mu.Unlock()

	w, h := fieldSize(minW, minH)
	if err := s.sim.ConfigureField(w, h); err != nil {
		log.Printf("server: failed to resize field to %dx%d: %v", w, h, err)
		return
	}
	log.Printf("server: field is now %dx%d (%dx%d cells)", w, h, minW, minH)
}

// frameLoop streams the field to every client at the simulation rate
func (s *Server) frameLoop() {
	ticker := time.NewTicker(game.TickPeriod(float64(s.cfg.FPS)))
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			frame := s.sim.ToProtocolFrame()

			s.mu.RLock()
			frame.Players = len(s.clients)
			s.mu.RUnlock()

			s.broadcast(&protocol.Message{Type: protocol.MsgFrame, Payload: frame})
			s.watchers.Broadcast(frame)
		}
	}
}

// broadcastPulse relays one haptic pulse to every client
func (s *Server) broadcastPulse(d time.Duration) {
	s.broadcast(&protocol.Message{Type: protocol.MsgPulse, Payload: protocol.Pulse{Duration: d}})
}

// broadcast sends a message to all connected clients
func (s *Server) broadcast(msg *protocol.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		client.Send(msg)
	}
}

// Status summarizes the field for the spectator API.
func (s *Server) Status() spectate.Status {
	w, h := s.sim.Size()
	return spectate.Status{
		Players: s.ClientCount(),
		Balls:   len(s.sim.Balls()),
		Tick:    s.sim.Ticks(),
		Width:   w,
		Height:  h,
	}
}

// ClientCount returns the number of joined clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
