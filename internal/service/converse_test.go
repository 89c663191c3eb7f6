package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/stockpilot/internal/adapter/llm"
	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/input"
	"github.com/xiaot623/stockpilot/internal/tools"
)

func historyContents(env *testEnv, key string) []any {
	msgs := env.svc.memory.Get(key).Messages()
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestConverseTextReply(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){replyText("Hello!")}})

	got, err := env.svc.Converse(context.Background(), "s1", input.FromText("Hi"))
	require.NoError(t, err)
	assert.Equal(t, &domain.Envelope{AssistantReply: "Hello!", ToolCalls: []domain.ToolInvocation{}, Messages: []string{"Hello!"}}, got)

	assert.Equal(t, []any{"You are the dashboard assistant.", "Hi", "Hello!"}, historyContents(env, "s1"))

	req := env.llm.lastRequest()
	assert.Equal(t, "gpt-test", req.Model)
	assert.Equal(t, "auto", req.ToolChoice)
	require.Len(t, req.Tools, 6)
	assert.Equal(t, tools.SelectStock, req.Tools[0].Function.Name)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "Hi", req.Messages[1].Content)
	assert.Equal(t, []domain.ContentPart{domain.TextPart("Hi")}, req.Messages[2].Content)

	stored, err := env.svc.GetMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, domain.RoleAssistant, stored[1].Role)

	turn, events, err := env.svc.GetTurnEvents(context.Background(), stored[0].TurnID, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, domain.TurnStatusDone, turn.Status)
	var types []domain.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventTypeTurnStarted,
		domain.EventTypeUserInput,
		domain.EventTypeLLMCallStarted,
		domain.EventTypeLLMCallDone,
		domain.EventTypeTurnDone,
	}, types)
}

func TestConverseEmptyContentReply(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
			return &llm.ChatCompletionResponse{Choices: []llm.Choice{{Message: &llm.ChatMessage{Role: "assistant"}}}}, nil
		},
	}})

	got, err := env.svc.Converse(context.Background(), "s1", input.FromText("..."))
	require.NoError(t, err)
	assert.Equal(t, "", got.AssistantReply)
	assert.Equal(t, []string{""}, got.Messages)
	assert.Equal(t, []any{"You are the dashboard assistant.", "...", ""}, historyContents(env, "s1"))
}

func TestConverseToolCallWithStockHint(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyTools(toolCall(tools.SelectStock, `{"stock":"Apple"}`)),
	}})

	got, err := env.svc.Converse(context.Background(), "s1", input.FromObject(map[string]any{
		"text":  "Show me Apple",
		"stock": "Tesla",
	}))
	require.NoError(t, err)

	assert.Equal(t, "I've selected Apple stock for you.", got.AssistantReply)
	assert.Equal(t, []domain.ToolInvocation{{Name: tools.SelectStock, Arguments: map[string]any{"stock": "Apple"}}}, got.ToolCalls)
	assert.Equal(t, []string{"I've selected Apple stock for you."}, got.Messages)

	assert.Equal(t, []any{
		"You are the dashboard assistant.",
		"Show me Apple",
		`For context: this screenshot is of stock "Tesla".`,
		"I've selected Apple stock for you.",
	}, historyContents(env, "s1"))

	assert.Equal(t, []string{"tool_request"}, env.publisher.types())
	frame := env.publisher.frames[0]
	assert.Equal(t, "s1", frame["session_id"])
	assert.Equal(t, map[string]any{"name": "select_stock", "arguments": map[string]any{"stock": "Apple"}}, frame["tool"])
}

func TestConverseModelFailureKeepsNote(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyError(errors.New("LLM API error [503]: overloaded")),
	}})

	_, err := env.svc.Converse(context.Background(), "s1", input.FromText("Hi"))
	require.Error(t, err)
	var up *domain.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "llm", up.Service)

	assert.Equal(t, []any{"You are the dashboard assistant.", "Hi"}, historyContents(env, "s1"))

	stored, err := env.svc.GetMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	turn, _, err := env.svc.GetTurnEvents(context.Background(), stored[0].TurnID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnStatusFailed, turn.Status)
}

func TestConverseNoChoices(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
			return &llm.ChatCompletionResponse{}, nil
		},
	}})

	_, err := env.svc.Converse(context.Background(), "s1", input.FromText("Hi"))
	assert.ErrorIs(t, err, errNoChoices)
}

func TestConverseDispatchesOnlyFirstTool(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyTools(
			toolCall(tools.OpenTrainingArea, `{}`),
			toolCall(tools.SelectStock, `{"stock":"Uber"}`),
		),
	}})

	var dispatched []string
	require.NoError(t, env.svc.Tools().Register(tools.SelectStock, func(ctx context.Context, name string, args map[string]any) error {
		dispatched = append(dispatched, name)
		return nil
	}))

	got, err := env.svc.Converse(context.Background(), "s1", input.FromText("train"))
	require.NoError(t, err)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, tools.OpenTrainingArea, got.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{}, got.ToolCalls[0].Arguments)
	assert.Equal(t, "I've opened the training area for you.", got.AssistantReply)
	assert.Empty(t, dispatched)
	assert.Equal(t, []string{"tool_request"}, env.publisher.types())
}

func TestConverseMalformedArguments(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyTools(toolCall(tools.SelectStock, `{"stock":`)),
	}})

	got, err := env.svc.Converse(context.Background(), "s1", input.FromText("stock please"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got.ToolCalls[0].Arguments)
	assert.Equal(t, "I've selected the requested stock for you.", got.AssistantReply)
}

func TestConverseHandlerReceivesSession(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyTools(toolCall(tools.ToggleActualData, "")),
	}})

	var session string
	require.NoError(t, env.svc.Tools().Register(tools.ToggleActualData, func(ctx context.Context, name string, args map[string]any) error {
		session = SessionFromContext(ctx)
		return nil
	}))

	_, err := env.svc.Converse(context.Background(), "kiosk-3", input.FromText("toggle"))
	require.NoError(t, err)
	assert.Equal(t, "kiosk-3", session)
	assert.Empty(t, env.publisher.types())
}

func TestConverseDispatchErrorPropagates(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyTools(toolCall(tools.DeleteDataPoints, "{}")),
	}})
	boom := errors.New("chart not ready")
	require.NoError(t, env.svc.Tools().Register(tools.DeleteDataPoints, func(context.Context, string, map[string]any) error {
		return boom
	}))

	_, err := env.svc.Converse(context.Background(), "s1", input.FromText("clear"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []any{"You are the dashboard assistant.", "clear"}, historyContents(env, "s1"))
}

func TestConversePolicyBlocksDisabledTool(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{replies: []func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error){
		replyTools(toolCall(tools.TakeScreenshot, "{}")),
	}}, withDisabledTools(tools.TakeScreenshot))

	got, err := env.svc.Converse(context.Background(), "s1", input.FromText("screenshot"))
	require.NoError(t, err)
	assert.Empty(t, got.ToolCalls)
	assert.Equal(t, "The take_screenshot action is currently disabled.", got.AssistantReply)
	assert.Empty(t, env.publisher.types())
}

func TestConverseWindowIsBounded(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{})

	for i := 0; i < 12; i++ {
		_, err := env.svc.Converse(context.Background(), "s1", input.FromText(fmt.Sprintf("turn %d", i)))
		require.NoError(t, err)
	}

	req := env.llm.lastRequest()
	require.Len(t, req.Messages, 10)
	assert.Equal(t, "system", req.Messages[0].Role)
	for _, m := range req.Messages[1:] {
		assert.NotEqual(t, "system", m.Role)
	}
	assert.Equal(t, "turn 11", req.Messages[8].Content)
	assert.Equal(t, []domain.ContentPart{domain.TextPart("turn 11")}, req.Messages[9].Content)
}

func TestConverseSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{})

	_, err := env.svc.Converse(context.Background(), "a", input.FromText("only a"))
	require.NoError(t, err)
	_, err = env.svc.Converse(context.Background(), "b", input.FromText("only b"))
	require.NoError(t, err)

	req := env.llm.lastRequest()
	for _, m := range req.Messages {
		assert.NotEqual(t, "only a", m.Content)
	}
}

func TestConverseSameSessionTurnsDoNotInterleave(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Converse(context.Background(), "shared", input.FromText(fmt.Sprintf("q%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs := env.svc.memory.Get("shared").Messages()
	require.Len(t, msgs, 13)
	for i := 1; i < len(msgs); i += 2 {
		assert.Equal(t, domain.RoleUser, msgs[i].Role)
		assert.Equal(t, domain.RoleAssistant, msgs[i+1].Role)
	}
}

func TestConverseAbsentInput(t *testing.T) {
	env := newTestEnv(t, &scriptedLLM{})

	_, err := env.svc.Converse(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, "No input received", historyContents(env, "s1")[1])
	assert.Equal(t, []domain.ContentPart{domain.TextPart("No input received")}, env.llm.lastRequest().Messages[2].Content)
}
