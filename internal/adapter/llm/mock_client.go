package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MockClient is an offline LLMClient. It selects a stock when the latest user
// text names one of the stocks in the select_stock tool, and echoes otherwise.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := lastUserText(req.Messages)
	msg := &ChatMessage{Role: "assistant"}
	finish := "stop"

	if stock := mentionedStock(req.Tools, text); stock != "" {
		args, _ := json.Marshal(map[string]string{"stock": stock})
		msg.ToolCalls = []ToolCall{{
			ID:   fmt.Sprintf("mock-call-%d", time.Now().UnixNano()),
			Type: "function",
			Function: ToolCallFunction{
				Name:      "select_stock",
				Arguments: string(args),
			},
		}}
		finish = "tool_calls"
	} else if text == "" {
		msg.Content = "[MOCK] This is a mock response from the LLM client."
	} else {
		msg.Content = fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(text, 100))
	}

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: &Usage{},
	}, nil
}

// lastUserText returns the text of the most recent user message, joining the
// text parts of a multimodal message.
func lastUserText(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		switch c := messages[i].Content.(type) {
		case string:
			return c
		default:
			data, err := json.Marshal(c)
			if err != nil {
				return ""
			}
			var parts []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal(data, &parts); err != nil {
				return ""
			}
			var texts []string
			for _, p := range parts {
				if p.Type == "text" && p.Text != "" {
					texts = append(texts, p.Text)
				}
			}
			return strings.Join(texts, " ")
		}
	}
	return ""
}

// mentionedStock finds a stock enum value of the select_stock tool in text.
func mentionedStock(tools []Tool, text string) string {
	lower := strings.ToLower(text)
	for _, tool := range tools {
		if tool.Function.Name != "select_stock" {
			continue
		}
		params, ok := tool.Function.Parameters.(map[string]any)
		if !ok {
			return ""
		}
		props, _ := params["properties"].(map[string]any)
		stock, _ := props["stock"].(map[string]any)
		options, _ := stock["enum"].([]string)
		for _, opt := range options {
			if strings.Contains(lower, strings.ToLower(opt)) {
				return opt
			}
		}
	}
	return ""
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
