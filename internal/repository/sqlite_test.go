package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/stockpilot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.GetOrCreateSession(ctx, "s1")
	require.NoError(t, err)
	second, err := store.GetOrCreateSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	for i := 0; i < 5; i++ {
		err := store.CreateMessage(ctx, &domain.StoredMessage{
			MessageID: fmt.Sprintf("m%d", i),
			SessionID: "s1",
			Role:      domain.RoleUser,
			Content:   fmt.Sprintf("hello %d", i),
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	all, err := store.GetMessages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m0", all[0].MessageID)
	assert.Equal(t, "", all[0].TurnID)

	recent, err := store.GetMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m3", recent[0].MessageID)
	assert.Equal(t, "m4", recent[1].MessageID)

	none, err := store.GetMessages(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStoreTurnsAndEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetOrCreateSession(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, store.CreateTurn(ctx, &domain.Turn{
		TurnID:    "t1",
		SessionID: "s1",
		Status:    domain.TurnStatusRunning,
		StartedAt: time.Now(),
	}))

	for i, typ := range []domain.EventType{domain.EventTypeTurnStarted, domain.EventTypeLLMCallDone, domain.EventTypeTurnDone} {
		require.NoError(t, store.CreateEvent(ctx, &domain.Event{
			EventID: fmt.Sprintf("e%d", i),
			TurnID:  "t1",
			Ts:      int64(100 + i),
			Type:    typ,
			Payload: json.RawMessage(`{"n":1}`),
		}))
	}

	events, err := store.GetEvents(ctx, "t1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventTypeTurnStarted, events[0].Type)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Payload))

	after, err := store.GetEvents(ctx, "t1", 100, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "e1", after[0].EventID)

	require.NoError(t, store.UpdateTurnCompleted(ctx, "t1", domain.TurnStatusFailed, []byte(`{"code":"upstream"}`)))
	turn, err := store.GetTurn(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, domain.TurnStatusFailed, turn.Status)
	assert.NotNil(t, turn.EndedAt)
	assert.JSONEq(t, `{"code":"upstream"}`, string(turn.Error))

	missing, err := store.GetTurn(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStoreEventRequiresTurn(t *testing.T) {
	store := newTestStore(t)
	err := store.CreateEvent(context.Background(), &domain.Event{EventID: "e1", TurnID: "missing", Ts: 1, Type: domain.EventTypeTurnDone})
	assert.Error(t, err)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "stockpilot.db")

	store, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	_, err = store.GetOrCreateSession(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	session, err := reopened.GetOrCreateSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.SessionID)
}
