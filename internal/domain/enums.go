// Package domain defines the core domain models for the assistant.
package domain

// Role is the author of a conversation entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind distinguishes the two content part variants.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image_url"
)

// TurnStatus represents the status of a conversation turn.
type TurnStatus string

const (
	TurnStatusRunning TurnStatus = "RUNNING"
	TurnStatusDone    TurnStatus = "DONE"
	TurnStatusFailed  TurnStatus = "FAILED"
)

// EventType represents the type of a trace event.
type EventType string

const (
	EventTypeTurnStarted    EventType = "turn_started"
	EventTypeUserInput      EventType = "user_input"
	EventTypeLLMCallStarted EventType = "llm_call_started"
	EventTypeLLMCallDone    EventType = "llm_call_done"
	EventTypePolicyDecision EventType = "policy_decision"
	EventTypeToolDispatched EventType = "tool_dispatched"
	EventTypeTurnDone       EventType = "turn_done"
	EventTypeTurnFailed     EventType = "turn_failed"
)

// FrameType tags frames pushed to WebSocket subscribers.
type FrameType string

const (
	FrameTypeEnvelope    FrameType = "envelope"
	FrameTypeToolRequest FrameType = "tool_request"
)
