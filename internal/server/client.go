package server

import (
	"net"
	"sync"

	"github.com/diegok/fidgetball/internal/protocol"
)

const sendBufferSize = 64

// maxPointers is the number of pointer ids a single connection can use.
const maxPointers = 1 << 8

// Client represents a connected player on the server
type Client struct {
	ID        int
	SessionID string
	Name      string
	Width     int
	Height    int
	conn      net.Conn
	Codec     *protocol.Codec
	sendCh    chan *protocol.Message
	done      chan struct{}
	mu        sync.Mutex
	held      map[int]struct{}
}

// NewClient creates a new client with the given connection
func NewClient(id int, conn net.Conn) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		Codec:  protocol.NewCodec(conn),
		sendCh: make(chan *protocol.Message, sendBufferSize),
		done:   make(chan struct{}),
		held:   make(map[int]struct{}),
	}
}

// BallID returns the simulation-wide id for one of this client's pointers.
func (c *Client) BallID(pointer int) int {
	return c.ID<<8 | pointer&(maxPointers-1)
}

// track records whether pointer is holding a ball after ev.
func (c *Client) track(ev protocol.PointerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case protocol.PointerDown:
		c.held[ev.Pointer&(maxPointers-1)] = struct{}{}
	case protocol.PointerUp:
		delete(c.held, ev.Pointer&(maxPointers-1))
	}
}

// heldPointers returns and forgets every pointer still holding a ball.
func (c *Client) heldPointers() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pointers := make([]int, 0, len(c.held))
	for p := range c.held {
		pointers = append(pointers, p)
	}
	c.held = make(map[int]struct{})
	return pointers
}

// StartWriter starts the goroutine that writes messages to the connection
func (c *Client) StartWriter() {
	go func() {
		for {
			select {
			case <-c.done:
				return
			case msg := <-c.sendCh:
				if err := c.Codec.Encode(msg); err != nil {
					c.Close()
					return
				}
			}
		}
	}()
}

// Send queues a message to be sent to the client (non-blocking)
func (c *Client) Send(msg *protocol.Message) bool {
	select {
	case c.sendCh <- msg:
		return true
	default:
		// Buffer full, drop message
		return false
	}
}

// SendDirect sends a message immediately (for handshake)
func (c *Client) SendDirect(msg *protocol.Message) error {
	return c.Codec.Encode(msg)
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}

	if c.conn != nil {
		c.conn.Close()
	}
}
