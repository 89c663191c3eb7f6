package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// GetMessages returns the persisted history of a session.
func (s *Service) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.StoredMessage, error) {
	messages, err := s.store.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []domain.StoredMessage{}
	}
	return messages, nil
}

// GetTurnEvents returns a turn and its trace. The turn is nil when unknown.
func (s *Service) GetTurnEvents(ctx context.Context, turnID string, afterTs int64, limit int) (*domain.Turn, []domain.Event, error) {
	turn, err := s.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get turn: %w", err)
	}
	if turn == nil {
		return nil, nil, nil
	}
	events, err := s.store.GetEvents(ctx, turnID, afterTs, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return turn, events, nil
}
