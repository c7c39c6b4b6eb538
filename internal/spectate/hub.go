package spectate

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 8
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only feed, any page may watch
	},
}

// spectator is one connected websocket watcher
type spectator struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans field frames out to every connected spectator.
type Hub struct {
	mu         sync.RWMutex
	spectators map[string]*spectator
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{spectators: make(map[string]*spectator)}
}

// Count returns the number of connected spectators.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.spectators)
}

// Broadcast sends v as JSON to every spectator. Slow spectators miss frames
// instead of holding up the caller.
func (h *Hub) Broadcast(v interface{}) {
	if h.Count() == 0 {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("spectate: failed to marshal frame: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.spectators {
		select {
		case s.send <- data:
		default:
			// Buffer full, drop frame
		}
	}
}

// Close disconnects every spectator.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.spectators {
		delete(h.spectators, id)
		close(s.send)
	}
}

// Serve upgrades the request to a websocket and streams frames until the
// spectator goes away.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("spectate: upgrade failed for %s: %v", c.Request.RemoteAddr, err)
		return
	}

	s := &spectator{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register(s)
	log.Printf("spectate: %s watching from %s", s.id, c.Request.RemoteAddr)

	go s.writePump()
	s.readPump()

	h.unregister(s)
	log.Printf("spectate: %s left", s.id)
}

func (h *Hub) register(s *spectator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spectators[s.id] = s
}

func (h *Hub) unregister(s *spectator) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.spectators[s.id]; ok {
		delete(h.spectators, s.id)
		close(s.send)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *spectator) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards anything the spectator sends and returns once the
// connection is gone.
func (s *spectator) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
