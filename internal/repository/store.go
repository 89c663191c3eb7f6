// Package repository persists sessions, history and turn traces.
package repository

import (
	"context"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// Store is the persistence used by the service layer.
type Store interface {
	GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error)
	CreateMessage(ctx context.Context, message *domain.StoredMessage) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.StoredMessage, error)
	CreateTurn(ctx context.Context, turn *domain.Turn) error
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)
	UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, errData []byte) error
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, turnID string, afterTs int64, limit int) ([]domain.Event, error)
	Close() error
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
