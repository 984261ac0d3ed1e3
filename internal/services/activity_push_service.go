package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"ticket-backend/internal/events"
	"ticket-backend/internal/metrics"
	"ticket-backend/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ActivityConnection one activity feed client. An empty Wallet receives every event.
type ActivityConnection struct {
	ID     string
	Wallet string
	Conn   *websocket.Conn
	Send   chan []byte
}

// ActivityMessage what clients receive
type ActivityMessage struct {
	Type      string       `json:"type"`
	MessageID string       `json:"message_id"`
	Timestamp string       `json:"timestamp"`
	Event     events.Event `json:"event"`
}

// ActivityPushService fans domain events out to websocket clients
type ActivityPushService struct {
	connections map[string]*ActivityConnection
	hub         chan events.Event
	register    chan *ActivityConnection
	unregister  chan *ActivityConnection
	mutex       sync.RWMutex
	done        chan struct{}
}

// NewActivityPushService creates the push service and starts its hub
func NewActivityPushService() *ActivityPushService {
	s := &ActivityPushService{
		connections: make(map[string]*ActivityConnection),
		hub:         make(chan events.Event, 256),
		register:    make(chan *ActivityConnection),
		unregister:  make(chan *ActivityConnection),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *ActivityPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case event := <-s.hub:
			s.handleBroadcast(event)
		case <-s.done:
			return
		}
	}
}

// Close stops the hub
func (s *ActivityPushService) Close() {
	close(s.done)
}

// Publish implements events.Publisher. A full hub drops the event.
func (s *ActivityPushService) Publish(ctx context.Context, event events.Event) error {
	select {
	case s.hub <- event:
	default:
		log.Printf("⚠️ [ActivityPush] Hub full, dropping %s", event.Type)
	}
	return nil
}

// Register adds a connection
func (s *ActivityPushService) Register(conn *ActivityConnection) {
	select {
	case s.register <- conn:
	case <-s.done:
	}
}

// Unregister removes a connection and closes its send channel
func (s *ActivityPushService) Unregister(conn *ActivityConnection) {
	select {
	case s.unregister <- conn:
	case <-s.done:
	}
}

func (s *ActivityPushService) handleRegister(conn *ActivityConnection) {
	s.mutex.Lock()
	s.connections[conn.ID] = conn
	count := len(s.connections)
	s.mutex.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	log.Printf("📱 [ActivityPush] Connection registered: wallet=%s, connID=%s", utils.ShortAddress(conn.Wallet), conn.ID)
}

func (s *ActivityPushService) handleUnregister(conn *ActivityConnection) {
	s.mutex.Lock()
	if _, exists := s.connections[conn.ID]; !exists {
		s.mutex.Unlock()
		return
	}
	delete(s.connections, conn.ID)
	count := len(s.connections)
	s.mutex.Unlock()

	close(conn.Send)
	metrics.WebSocketClients.Set(float64(count))
	log.Printf("📱 [ActivityPush] Connection unregistered: connID=%s", conn.ID)
}

func (s *ActivityPushService) handleBroadcast(event events.Event) {
	data, err := json.Marshal(ActivityMessage{
		Type:      string(event.Type),
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     event,
	})
	if err != nil {
		log.Printf("❌ [ActivityPush] Failed to marshal %s: %v", event.Type, err)
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, conn := range s.connections {
		if !concerns(event, conn.Wallet) {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			log.Printf("⚠️ [ActivityPush] Send buffer full for connection %s", conn.ID)
		}
	}
}

// concerns reports whether a client filtered on wallet should see event
func concerns(event events.Event, wallet string) bool {
	if wallet == "" {
		return true
	}
	for _, w := range event.Wallets {
		if utils.SameAddress(w, wallet) {
			return true
		}
	}
	return false
}

// ActiveConnections number of connected clients
func (s *ActivityPushService) ActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// HandleWebSocket upgrades the request and streams activity to it
func (s *ActivityPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, wallet string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [ActivityPush] WebSocket upgrade failed: %v", err)
		return
	}
	conn := &ActivityConnection{
		ID:     uuid.NewString(),
		Wallet: utils.NormalizeAddress(wallet),
		Conn:   ws,
		Send:   make(chan []byte, 64),
	}
	s.Register(conn)

	go s.writePump(conn)
	go s.readPump(conn)
}

func (s *ActivityPushService) writePump(conn *ActivityConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ [ActivityPush] Write failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames until the connection closes
func (s *ActivityPushService) readPump(conn *ActivityConnection) {
	defer s.Unregister(conn)

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
