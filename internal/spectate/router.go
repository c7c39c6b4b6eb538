package spectate

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 2 * time.Second

// Status is the /status payload.
type Status struct {
	Players    int    `json:"players"`
	Spectators int    `json:"spectators"`
	Balls      int    `json:"balls"`
	Tick       uint64 `json:"tick"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// StatusFunc reports the current state of the hosted field.
type StatusFunc func() Status

// NewRouter builds the spectator HTTP API:
//
//	GET /health  liveness
//	GET /status  field summary
//	GET /field   websocket stream of JSON frames
func NewRouter(hub *Hub, status StatusFunc) *gin.Engine {
	// Debug mode prints to stdout, which belongs to the terminal UI.
	gin.SetMode(gin.ReleaseMode)

	started := time.Now()
	router := gin.New()
	router.Use(gin.RecoveryWithWriter(log.Writer()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "fidgetball",
			"uptime":  time.Since(started).Round(time.Second).String(),
		})
	})

	router.GET("/status", func(c *gin.Context) {
		st := status()
		st.Spectators = hub.Count()
		c.JSON(http.StatusOK, st)
	})

	router.GET("/field", hub.Serve)

	return router
}

// Server is a running spectator endpoint.
type Server struct {
	hub      *Hub
	http     *http.Server
	listener net.Listener
}

// Listen starts serving the spectator API on port.
func Listen(port int, hub *Hub, status StatusFunc) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start spectator feed: %w", err)
	}

	s := &Server{
		hub:      hub,
		listener: listener,
		http: &http.Server{
			Handler:           NewRouter(hub, status),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("spectate: server error: %v", err)
		}
	}()

	log.Printf("spectate: listening on %s", listener.Addr())
	return s, nil
}

// Port returns the port the feed is listening on.
func (s *Server) Port() int {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Close disconnects all spectators and stops the HTTP server.
func (s *Server) Close() error {
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
