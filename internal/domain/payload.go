package domain

// TurnStartedPayload is the payload for turn_started event.
type TurnStartedPayload struct {
	SessionID string `json:"session_id"`
}

// UserInputPayload is the payload for user_input event.
type UserInputPayload struct {
	MessageID string `json:"message_id"`
	Note      string `json:"note"`
	Stock     string `json:"stock,omitempty"`
}

// LLMCallStartedPayload is the payload for llm_call_started event.
type LLMCallStartedPayload struct {
	Model    string `json:"model"`
	Messages int    `json:"messages"`
	Tools    int    `json:"tools"`
}

// LLMCallDonePayload is the payload for llm_call_done event.
type LLMCallDonePayload struct {
	Model            string `json:"model"`
	LatencyMs        int64  `json:"latency_ms"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	ToolCalls        int    `json:"tool_calls"`
	Error            string `json:"error,omitempty"`
}

// PolicyDecisionPayload is the payload for policy_decision event.
type PolicyDecisionPayload struct {
	ToolName string `json:"tool_name"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// ToolDispatchedPayload is the payload for tool_dispatched event.
type ToolDispatchedPayload struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Error     string         `json:"error,omitempty"`
}

// TurnDonePayload is the payload for turn_done event.
type TurnDonePayload struct {
	Reply    string `json:"reply"`
	ToolName string `json:"tool_name,omitempty"`
}

// TurnFailedPayload is the payload for turn_failed event.
type TurnFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
