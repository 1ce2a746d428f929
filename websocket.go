package tiltmeter

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	broadcastBuffer = 64
	writeWait       = 10 * time.Second
)

// WebSocketServer pushes every message it is given to all connected clients
// as JSON text frames.
type WebSocketServer struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	upgrader   websocket.Upgrader
	clientsMux sync.Mutex
	log        *logrus.Entry

	// WriteTimeout bounds each frame write; a client that stalls longer is
	// dropped.
	WriteTimeout time.Duration
}

func NewWebSocketServer() *WebSocketServer {
	return &WebSocketServer{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan interface{}, broadcastBuffer),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:          logrus.WithField("component", "websocket"),
		WriteTimeout: writeWait,
	}
}

// Run delivers broadcasts until ctx is done, then disconnects all clients.
func (s *WebSocketServer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.clientsMux.Lock()
			for client := range s.clients {
				client.Close()
				delete(s.clients, client)
			}
			s.clientsMux.Unlock()
			return
		case msg := <-s.broadcast:
			s.send(msg)
		}
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	defer ws.Close()

	s.clientsMux.Lock()
	s.clients[ws] = true
	s.clientsMux.Unlock()

	s.log.WithField("remote", r.RemoteAddr).Info("New WebSocket client connected")
	defer func() {
		s.clientsMux.Lock()
		delete(s.clients, ws)
		s.clientsMux.Unlock()
		s.log.WithField("remote", r.RemoteAddr).Info("WebSocket client disconnected")
	}()

	for {
		// Reads only detect the close; clients never send anything useful.
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (s *WebSocketServer) Clients() int {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	return len(s.clients)
}

func (s *WebSocketServer) send(msg interface{}) {
	message, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Error("Error marshaling message")
		return
	}

	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	for client := range s.clients {
		client.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			s.log.WithError(err).Warn("WebSocket write error")
			client.Close()
			delete(s.clients, client)
		}
	}
}

// Broadcast queues msg for delivery. It never blocks; messages are dropped
// while the queue is full.
func (s *WebSocketServer) Broadcast(msg interface{}) {
	select {
	case s.broadcast <- msg:
	default:
		s.log.Warn("Broadcast queue full, dropping message")
	}
}

func (s *WebSocketServer) WriteReading(r Reading) error {
	s.Broadcast(r)
	return nil
}
