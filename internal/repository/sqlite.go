package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (turn_id) REFERENCES turns(turn_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_turn ON events(turn_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetOrCreateSession returns the session, creating it on first use. An
// existing session has its updated_at refreshed.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, now, now)
	if err != nil {
		return nil, err
	}

	var session domain.Session
	var updated sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.CreatedAt, &updated)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		session.UpdatedAt = updated.Time
	}
	return &session, nil
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.StoredMessage) error {
	var turnID sql.NullString
	if message.TurnID != "" {
		turnID = sql.NullString{String: message.TurnID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, turn_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, turnID, message.Role, message.Content, message.CreatedAt)
	return err
}

// GetMessages retrieves messages for a session in insertion order. A positive
// limit keeps only the most recent ones.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.StoredMessage, error) {
	query := `SELECT message_id, session_id, turn_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY rowid DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.StoredMessage
	for rows.Next() {
		var msg domain.StoredMessage
		var turnID sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &turnID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.TurnID = turnID.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateTurn creates a new turn.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *domain.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, status, started_at) VALUES (?, ?, ?, ?)`,
		turn.TurnID, turn.SessionID, turn.Status, turn.StartedAt)
	return err
}

// GetTurn retrieves a turn by ID.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.Turn, error) {
	var turn domain.Turn
	var endedAt sql.NullTime
	var errData sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT turn_id, session_id, status, started_at, ended_at, error FROM turns WHERE turn_id = ?`,
		turnID).Scan(&turn.TurnID, &turn.SessionID, &turn.Status, &turn.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		turn.EndedAt = &endedAt.Time
	}
	if errData.Valid && errData.String != "" {
		turn.Error = json.RawMessage(errData.String)
	}
	return &turn, nil
}

// UpdateTurnCompleted marks a turn as finished.
func (s *SQLiteStore) UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, errData []byte) error {
	var errStr sql.NullString
	if len(errData) > 0 {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET status = ?, ended_at = ?, error = ? WHERE turn_id = ?`,
		status, time.Now(), errStr, turnID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.TurnID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a turn.
func (s *SQLiteStore) GetEvents(ctx context.Context, turnID string, afterTs int64, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, turn_id, ts, type, payload FROM events WHERE turn_id = ?`
	args := []interface{}{turnID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.TurnID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
