// Package websocket pushes engine events to connected strip displays. The
// server fans every broadcast out to all clients; slow clients are dropped
// rather than allowed to stall the feed.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vatefs/efsd/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API middleware already enforces CORS; the upgrade accepts any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the broadcast hub
type Server struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a websocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients: make(map[*client]struct{}),
		logger:  log.Named("websocket"),
	}
}

// HandleWS upgrades an HTTP request and serves the connection until it closes
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("WebSocket client connected",
		logger.String("remote_addr", r.RemoteAddr),
		logger.Int("clients", count))

	go s.writePump(c)
	s.readPump(c)
}

// Broadcast marshals v and queues it for every connected client
func (s *Server) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal broadcast message", logger.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Send buffer full: the client is not keeping up
			s.dropLocked(c)
		}
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.dropLocked(c)
	}
}

func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	c.conn.Close()
}

// readPump drains inbound frames; the display protocol is one-way, so
// anything received is discarded, but the read loop drives pong handling and
// close detection.
func (s *Server) readPump(c *client) {
	defer func() {
		s.mu.Lock()
		s.dropLocked(c)
		s.mu.Unlock()
		s.logger.Debug("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
