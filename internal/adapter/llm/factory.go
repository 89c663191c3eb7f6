package llm

import (
	"log/slog"
	"time"
)

// ModeMock selects the mock client.
const ModeMock = "MOCK"

// NewLLMClient creates a client for mode. MOCK returns a MockClient;
// anything else returns a real Client.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration) LLMClient {
	if mode == ModeMock {
		slog.Info("mock mode detected, using mock LLM client")
		return NewMockClient()
	}

	return NewClient(baseURL, apiKey, timeout)
}
