// Package hub fans out frames to the WebSocket subscribers of a session.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrBufferFull is returned when a send buffer cannot take more frames.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending to a removed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection represents a single WebSocket subscriber.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex

	sendMu sync.Mutex
	closed bool
}

// sessionMessage is a frame addressed to every connection of a session.
type sessionMessage struct {
	sessionID string
	data      []byte
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan sessionMessage
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan sessionMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.bindLocked(conn, conn.SessionID)
			h.mu.Unlock()
			slog.Info("websocket connection registered", "conn_id", conn.ID, "session_id", conn.SessionID)

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var full []*Connection
			for connID := range h.sessions[msg.sessionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				if err := conn.enqueue(msg.data); errors.Is(err, ErrBufferFull) {
					full = append(full, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range full {
				slog.Warn("websocket buffer full, closing", "conn_id", conn.ID)
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	h.unbindLocked(conn)
	conn.closeSend()
	slog.Info("websocket connection unregistered", "conn_id", conn.ID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		conn.closeSend()
		delete(h.connections, id)
	}
	h.sessions = make(map[string]map[string]bool)
}

// NewConnection creates a connection subscribed to sessionID. It still has to
// be registered.
func (h *Hub) NewConnection(ws *websocket.Conn, sessionID string) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      ws,
		Send:      make(chan []byte, 64),
	}
}

// Register registers a connection with the hub. Once the hub has stopped the
// connection is closed instead.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.closeSend()
	}
}

// Unregister unregisters a connection from the hub. It returns immediately
// once the hub has stopped.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BindSession moves a connection to another session.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(conn)
	h.bindLocked(conn, sessionID)
}

func (h *Hub) bindLocked(conn *Connection, sessionID string) {
	conn.SessionID = sessionID
	if sessionID == "" {
		return
	}
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.SessionID == "" || h.sessions[conn.SessionID] == nil {
		return
	}
	delete(h.sessions[conn.SessionID], conn.ID)
	if len(h.sessions[conn.SessionID]) == 0 {
		delete(h.sessions, conn.SessionID)
	}
}

// Broadcast queues data for every connection of a session. It never blocks:
// when the queue is full the frame is dropped and ErrBufferFull returned.
func (h *Hub) Broadcast(sessionID string, data []byte) error {
	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// BroadcastJSON sends a JSON message to all connections of a session.
func (h *Hub) BroadcastJSON(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Broadcast(sessionID, data)
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.enqueue(data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if a session has any active connections.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}

// enqueue hands data to the write pump without blocking.
func (c *Connection) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// closeSend closes Send once; later sends fail with ErrConnectionClosed.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
