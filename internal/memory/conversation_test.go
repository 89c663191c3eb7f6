package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/stockpilot/internal/domain"
)

func TestNewConversationSeedsSystemMessage(t *testing.T) {
	c := NewConversation("s1", "be helpful", 0)
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Content: "be helpful"}, msgs[0])
	assert.Equal(t, "s1", c.Key())
}

func TestBuildRequestWindow(t *testing.T) {
	c := NewConversation("s1", "sys", 8)
	for i := 0; i < 12; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		c.Append(role, fmt.Sprintf("m%d", i))
	}

	payload := []domain.ContentPart{domain.TextPart("now")}
	req := c.BuildRequest(payload)

	require.Len(t, req, 10)
	assert.Equal(t, domain.RoleSystem, req[0].Role)
	assert.Equal(t, "sys", req[0].Content)
	for i := 1; i <= 8; i++ {
		assert.NotEqual(t, domain.RoleSystem, req[i].Role)
		assert.Equal(t, fmt.Sprintf("m%d", i+3), req[i].Content)
	}
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: payload}, req[9])
}

func TestBuildRequestShortHistory(t *testing.T) {
	c := NewConversation("s1", "sys", 8)
	c.Append(domain.RoleUser, "Hi")

	req := c.BuildRequest("Hi")
	require.Len(t, req, 3)
	assert.Equal(t, domain.RoleSystem, req[0].Role)
	assert.Equal(t, "Hi", req[1].Content)
	assert.Equal(t, "Hi", req[2].Content)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	c := NewConversation("s1", "sys", 8)
	c.Append(domain.RoleUser, map[string]any{"foo": []any{1, "x"}})
	c.Append(domain.RoleUser, []domain.ContentPart{domain.TextPart("kept")})
	c.Append(domain.RoleAssistant, 42)
	c.Append(domain.RoleAssistant, nil)
	c.Append(domain.RoleUser, []any{map[string]any{"type": "text", "text": "raw"}})
	c.Append(domain.RoleUser, []any{"loose", 1})

	c.Sanitize()
	first := c.Messages()
	c.Sanitize()
	second := c.Messages()

	assert.Equal(t, first, second)
	assert.Equal(t, `{"foo":[1,"x"]}`, first[1].Content)
	assert.Equal(t, []domain.ContentPart{domain.TextPart("kept")}, first[2].Content)
	assert.Equal(t, "42", first[3].Content)
	assert.Equal(t, "null", first[4].Content)
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "raw"}}, first[5].Content)
	assert.Equal(t, `["loose",1]`, first[6].Content)
	for _, msg := range first {
		switch msg.Content.(type) {
		case string, []domain.ContentPart, []any:
		default:
			t.Fatalf("unsanitized content %T", msg.Content)
		}
	}
}

func TestMessagesIsDefensiveCopy(t *testing.T) {
	c := NewConversation("s1", "sys", 8)
	c.Append(domain.RoleUser, []domain.ContentPart{domain.TextPart("a")})

	msgs := c.Messages()
	msgs[1].Content.([]domain.ContentPart)[0].Text = "mutated"
	msgs[0].Content = "changed"

	again := c.Messages()
	assert.Equal(t, "sys", again[0].Content)
	assert.Equal(t, "a", again[1].Content.([]domain.ContentPart)[0].Text)
}

func TestAcquireTurnSerializes(t *testing.T) {
	c := NewConversation("s1", "sys", 8)
	release, err := c.AcquireTurn(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.AcquireTurn(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := c.AcquireTurn(context.Background())
	require.NoError(t, err)
	release2()
}

func TestStoreKeepsSessionsApart(t *testing.T) {
	s := NewStore("sys", 8)
	a := s.Get("a")
	b := s.Get("b")
	a.Append(domain.RoleUser, "only in a")

	assert.Same(t, a, s.Get("a"))
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, s.Len())
}

func TestStoreConcurrentGet(t *testing.T) {
	s := NewStore("sys", 8)
	var wg sync.WaitGroup
	convs := make([]*Conversation, 16)
	for i := range convs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convs[i] = s.Get("shared")
		}(i)
	}
	wg.Wait()
	for _, c := range convs {
		assert.Same(t, convs[0], c)
	}
}
