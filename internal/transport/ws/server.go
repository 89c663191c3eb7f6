// Package ws serves the WebSocket subscription endpoint.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/stockpilot/internal/hub"
)

const (
	maxMessageSize = 4096
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
)

// subscribeMessage rebinds a connection to another session.
type subscribeMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type ackMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Server handles WebSocket connections.
type Server struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(h *hub.Hub) *Server {
	return &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and subscribes it to the session
// named by the session_id query parameter.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = "default"
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "err", err)
		return nil
	}

	conn := s.hub.NewConnection(ws, sessionID)
	s.hub.Register(conn)
	ws.SetReadLimit(maxMessageSize)

	_ = s.hub.SendJSONToConnection(conn, ackMessage{Type: "subscribed", Ts: time.Now().UnixMilli(), SessionID: sessionID})

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

// readPump reads subscribe messages until the socket closes.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "conn_id", conn.ID, "err", err)
			}
			return
		}
		s.handleMessage(conn, data)
	}
}

func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var msg subscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "subscribe" || msg.SessionID == "" {
		_ = s.hub.SendJSONToConnection(conn, ackMessage{Type: "error", Ts: time.Now().UnixMilli(), Error: "expected {\"type\":\"subscribe\",\"session_id\":...}"})
		return
	}
	s.hub.BindSession(conn, msg.SessionID)
	_ = s.hub.SendJSONToConnection(conn, ackMessage{Type: "subscribed", Ts: time.Now().UnixMilli(), SessionID: msg.SessionID})
}

// writePump writes queued frames and keepalive pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			deadline := time.Now().Add(writeTimeout)
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{}, deadline)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message, deadline); err != nil {
				slog.Warn("failed to write websocket frame", "conn_id", conn.ID, "err", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
