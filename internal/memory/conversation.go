// Package memory keeps the bounded conversation history of each session.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// DefaultHistoryLimit is the number of recent entries sent with each request.
const DefaultHistoryLimit = 8

// Conversation is the history of one session. Index 0 always holds the system
// message. Safe for concurrent use.
type Conversation struct {
	key   string
	limit int

	// turn serializes whole turns on this conversation.
	turn chan struct{}

	mu      sync.RWMutex
	history []domain.Message
}

// NewConversation creates a conversation seeded with the system prompt.
func NewConversation(key, systemPrompt string, limit int) *Conversation {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Conversation{
		key:     key,
		limit:   limit,
		turn:    make(chan struct{}, 1),
		history: []domain.Message{{Role: domain.RoleSystem, Content: systemPrompt}},
	}
}

// Key returns the session key the conversation belongs to.
func (c *Conversation) Key() string {
	return c.key
}

// AcquireTurn blocks until no other turn runs on this conversation. The
// returned func releases the turn.
func (c *Conversation) AcquireTurn(ctx context.Context) (func(), error) {
	select {
	case c.turn <- struct{}{}:
		return func() { <-c.turn }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Append adds an entry to the end of the history.
func (c *Conversation) Append(role domain.Role, content any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, domain.Message{Role: role, Content: content})
}

// Sanitize rewrites every entry whose content is neither text nor a list of
// content parts into its JSON text form. A list of parts is either
// []domain.ContentPart or a []any whose elements are objects carrying a
// "type" key. Applying it twice changes nothing.
func (c *Conversation) Sanitize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, msg := range c.history {
		c.history[i].Content = sanitizeContent(msg.Content)
	}
}

func sanitizeContent(content any) any {
	switch v := content.(type) {
	case string, []domain.ContentPart:
		return v
	case []any:
		if isPartList(v) {
			return v
		}
	}
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprint(content)
	}
	return string(data)
}

func isPartList(items []any) bool {
	for _, item := range items {
		part, ok := item.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := part["type"]; !ok {
			return false
		}
	}
	return true
}

// BuildRequest returns the message list for one model call: the system
// message, the most recent non-system entries of the window and the current
// user payload.
func (c *Conversation) BuildRequest(payload any) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := max(len(c.history)-c.limit, 0)
	out := make([]domain.Message, 0, c.limit+2)
	out = append(out, cloneMessage(c.history[0]))
	for _, msg := range c.history[start:] {
		if msg.Role == domain.RoleSystem {
			continue
		}
		out = append(out, cloneMessage(msg))
	}
	return append(out, domain.Message{Role: domain.RoleUser, Content: payload})
}

// Messages returns a defensive copy of the full history.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]domain.Message, len(c.history))
	for i, msg := range c.history {
		copied[i] = cloneMessage(msg)
	}
	return copied
}

// Len returns the number of history entries, the system message included.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

func cloneMessage(msg domain.Message) domain.Message {
	switch parts := msg.Content.(type) {
	case []domain.ContentPart:
		msg.Content = slices.Clone(parts)
	case []any:
		msg.Content = slices.Clone(parts)
	}
	return msg
}
