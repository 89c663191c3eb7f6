package domain

import (
	"encoding/json"
	"time"
)

// Session groups the turns of one conversation.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoredMessage is a history entry mirrored to the database.
type StoredMessage struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one processed user input.
type Turn struct {
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	Status    TurnStatus      `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// Event represents a trace event of a turn.
type Event struct {
	EventID string          `json:"event_id"`
	TurnID  string          `json:"turn_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
