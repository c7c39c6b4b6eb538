package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/diegok/fidgetball/internal/protocol"
)

const (
	channelBufferSize = 16
	connectTimeout    = 5 * time.Second
)

// ErrNotConnected is returned by the Send methods before Connect or after
// the connection dropped.
var ErrNotConnected = errors.New("not connected to server")

// Client represents a network client that connects to a fidgetball server.
type Client struct {
	Name      string
	PlayerID  string
	width     int
	height    int
	conn      net.Conn
	codec     *protocol.Codec
	mu        sync.Mutex
	connected bool
	Frames    chan protocol.Frame
	Pulses    chan protocol.Pulse
	Error     chan error
	done      chan struct{}
}

// NewClient creates a new client with the given name and terminal dimensions.
func NewClient(name string, width, height int) *Client {
	return &Client{
		Name:   name,
		width:  width,
		height: height,
		Frames: make(chan protocol.Frame, channelBufferSize),
		Pulses: make(chan protocol.Pulse, channelBufferSize),
		Error:  make(chan error, channelBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect establishes a connection to the server at the given address.
// It sends a JoinRequest and waits for a JoinResponse before returning.
func (c *Client) Connect(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	return c.Attach(conn)
}

// Attach runs the join handshake over an already open connection.
func (c *Client) Attach(conn net.Conn) error {
	c.conn = conn
	c.codec = protocol.NewCodec(conn)

	// Send join request
	width, height := c.TerminalSize()
	err := c.codec.Send(protocol.MsgJoinRequest, protocol.JoinRequest{
		PlayerName:     c.Name,
		TerminalWidth:  width,
		TerminalHeight: height,
	})
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to send join request: %w", err)
	}

	// Set read deadline for join response
	c.conn.SetReadDeadline(time.Now().Add(connectTimeout))

	msg, err := c.codec.Expect(protocol.MsgJoinResponse)
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to receive join response: %w", err)
	}

	// Clear read deadline
	c.conn.SetReadDeadline(time.Time{})

	resp, ok := msg.Payload.(protocol.JoinResponse)
	if !ok {
		c.conn.Close()
		return fmt.Errorf("invalid join response payload")
	}

	if !resp.Accepted {
		c.conn.Close()
		return fmt.Errorf("join request rejected: %s", resp.Reason)
	}

	c.PlayerID = resp.PlayerID
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	// Start receive loop
	go c.receiveLoop()

	return nil
}

func (c *Client) send(typ protocol.MessageType, payload interface{}) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return c.codec.Send(typ, payload)
}

// SendPointer forwards a touch event in field units to the server.
func (c *Client) SendPointer(ev protocol.PointerEvent) error {
	return c.send(protocol.MsgPointer, ev)
}

// SendResize reports a new terminal size to the server.
func (c *Client) SendResize(width, height int) error {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
	return c.send(protocol.MsgResize, protocol.Resize{TerminalWidth: width, TerminalHeight: height})
}

// TerminalSize returns the terminal size last reported to the server.
func (c *Client) TerminalSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Close closes the connection to the server.
func (c *Client) Close() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// IsConnected returns true if the client is connected to the server.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// receiveLoop continuously reads messages from the server and dispatches them.
func (c *Client) receiveLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		msg, err := c.codec.Decode()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				select {
				case c.Error <- fmt.Errorf("receive error: %w", err):
				default:
					// Drop error if channel is full
				}
				return
			}
		}

		c.dispatchMessage(msg)
	}
}

// dispatchMessage routes a message to the appropriate channel.
func (c *Client) dispatchMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgFrame:
		if frame, ok := msg.Payload.(protocol.Frame); ok {
			// Only the newest frame matters
			select {
			case c.Frames <- frame:
			default:
				select {
				case <-c.Frames:
				default:
				}
				select {
				case c.Frames <- frame:
				default:
				}
			}
		}

	case protocol.MsgPulse:
		if pulse, ok := msg.Payload.(protocol.Pulse); ok {
			select {
			case c.Pulses <- pulse:
			default:
				// Drop pulse if channel is full
			}
		}
	}
}
