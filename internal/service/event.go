package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/memory"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, turnID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		TurnID:  turnID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// trace records an event and only logs when that fails.
func (s *Service) trace(ctx context.Context, turnID string, eventType domain.EventType, payload interface{}) {
	if turnID == "" {
		return
	}
	if err := s.recordEvent(ctx, turnID, eventType, payload); err != nil {
		slog.Warn("failed to record event", "turn_id", turnID, "type", eventType, "err", err)
	}
}

// remember appends an entry to the conversation and mirrors it to the store.
func (s *Service) remember(ctx context.Context, conv *memory.Conversation, turnID string, role domain.Role, content string) string {
	conv.Append(role, content)

	msg := &domain.StoredMessage{
		MessageID: "msg_" + uuid.New().String()[:8],
		SessionID: conv.Key(),
		TurnID:    turnID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		slog.Warn("failed to persist message", "session_id", conv.Key(), "role", role, "err", err)
	}
	return msg.MessageID
}

// startTurn persists a RUNNING turn. Persistence failures are logged and the
// turn proceeds without a trace.
func (s *Service) startTurn(ctx context.Context, sessionKey string) string {
	if _, err := s.store.GetOrCreateSession(ctx, sessionKey); err != nil {
		slog.Warn("failed to persist session", "session_id", sessionKey, "err", err)
		return ""
	}

	turn := &domain.Turn{
		TurnID:    "turn_" + uuid.New().String()[:8],
		SessionID: sessionKey,
		Status:    domain.TurnStatusRunning,
		StartedAt: s.now(),
	}
	if err := s.store.CreateTurn(ctx, turn); err != nil {
		slog.Warn("failed to persist turn", "session_id", sessionKey, "err", err)
		return ""
	}
	s.trace(ctx, turn.TurnID, domain.EventTypeTurnStarted, domain.TurnStartedPayload{SessionID: sessionKey})
	return turn.TurnID
}

// finishTurn records the outcome of a turn.
func (s *Service) finishTurn(ctx context.Context, turnID string, env *domain.Envelope, turnErr error) {
	if turnID == "" {
		return
	}
	// The request context may already be cancelled when the turn failed.
	ctx = context.WithoutCancel(ctx)

	if turnErr != nil {
		code := "internal"
		switch {
		case domain.IsInputError(turnErr):
			code = "input"
		case isUpstream(turnErr):
			code = "upstream"
		}
		payload := domain.TurnFailedPayload{Code: code, Message: turnErr.Error()}
		s.trace(ctx, turnID, domain.EventTypeTurnFailed, payload)
		errData, _ := json.Marshal(payload)
		if err := s.store.UpdateTurnCompleted(ctx, turnID, domain.TurnStatusFailed, errData); err != nil {
			slog.Warn("failed to complete turn", "turn_id", turnID, "err", err)
		}
		return
	}

	payload := domain.TurnDonePayload{Reply: env.AssistantReply}
	if len(env.ToolCalls) > 0 {
		payload.ToolName = env.ToolCalls[0].Name
	}
	s.trace(ctx, turnID, domain.EventTypeTurnDone, payload)
	if err := s.store.UpdateTurnCompleted(ctx, turnID, domain.TurnStatusDone, nil); err != nil {
		slog.Warn("failed to complete turn", "turn_id", turnID, "err", err)
	}
}
