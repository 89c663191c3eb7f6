package speech

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ModeMock selects the mock engines.
const ModeMock = "MOCK"

// MockEngine is an offline Transcriber and Synthesizer. Uploaded audio is
// treated as UTF-8 text, and synthesis returns the text bytes.
type MockEngine struct{}

var (
	_ Transcriber = MockEngine{}
	_ Synthesizer = MockEngine{}
)

// Name identifies the engine in logs.
func (MockEngine) Name() string { return "mock" }

// Transcribe returns the audio bytes as text.
func (MockEngine) Transcribe(ctx context.Context, audio []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(audio)), nil
}

// Synthesize returns the text itself as the audio payload.
func (MockEngine) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(req.Text), nil
}

// Engine is both halves of the audio pipeline.
type Engine interface {
	Transcriber
	Synthesizer
}

// NewEngine returns the mock engine for MOCK mode and an HTTP client otherwise.
func NewEngine(mode, baseURL, apiKey, sttModel string, timeout time.Duration) Engine {
	if mode == ModeMock {
		slog.Info("mock mode detected, using mock speech engine")
		return MockEngine{}
	}
	return NewClient(baseURL, apiKey, sttModel, timeout)
}
