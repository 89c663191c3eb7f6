package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/stockpilot/internal/adapter/llm"
	"github.com/xiaot623/stockpilot/internal/adapter/speech"
	"github.com/xiaot623/stockpilot/internal/config"
	"github.com/xiaot623/stockpilot/internal/memory"
	"github.com/xiaot623/stockpilot/internal/policy"
	"github.com/xiaot623/stockpilot/internal/storage"
	"github.com/xiaot623/stockpilot/tests/helpers"
)

// scriptedLLM answers each call with the next scripted reply and keeps the
// requests it saw.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []func(req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
	requests []*llm.ChatCompletionRequest
}

func (f *scriptedLLM) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return textResponse("ok"), nil
	}
	next := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return next(req)
}

func (f *scriptedLLM) lastRequest() *llm.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func replyText(text string) func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		return textResponse(text), nil
	}
}

func replyTools(calls ...llm.ToolCall) func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		return &llm.ChatCompletionResponse{
			Model: "test",
			Choices: []llm.Choice{{
				Message: &llm.ChatMessage{Role: "assistant", ToolCalls: calls},
			}},
		}, nil
	}
}

func replyError(err error) func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return func(*llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
		return nil, err
	}
}

func textResponse(text string) *llm.ChatCompletionResponse {
	return &llm.ChatCompletionResponse{
		Model:   "test",
		Choices: []llm.Choice{{Message: &llm.ChatMessage{Role: "assistant", Content: text}}},
		Usage:   &llm.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
	}
}

func toolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_" + name, Type: "function", Function: llm.ToolCallFunction{Name: name, Arguments: args}}
}

// recordingPublisher keeps every pushed frame.
type recordingPublisher struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (p *recordingPublisher) BroadcastJSON(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.frames))
	for i, f := range p.frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

type failingSynth struct{}

func (failingSynth) Name() string { return "failing" }

func (failingSynth) Synthesize(context.Context, speech.SynthesisRequest) ([]byte, error) {
	return nil, errors.New("tts down")
}

type testEnv struct {
	svc       *Service
	llm       *scriptedLLM
	publisher *recordingPublisher
	cfg       *config.Config
	audioDir  string
}

type testOption func(*config.Config, *Dependencies)

func withDisabledTools(names ...string) testOption {
	return func(cfg *config.Config, _ *Dependencies) { cfg.DisabledTools = names }
}

func withSynthesizer(s speech.Synthesizer) testOption {
	return func(_ *config.Config, deps *Dependencies) { deps.Synthesizer = s }
}

func withServerTTS(on bool) testOption {
	return func(cfg *config.Config, _ *Dependencies) { cfg.UseServerTTS = on }
}

func newTestEnv(t *testing.T, llmClient *scriptedLLM, opts ...testOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	cfg := &config.Config{
		LLMModel:           "gpt-test",
		TTSModel:           "tts-1",
		TTSVoice:           "nova",
		UseServerTTS:       false,
		HistoryLimit:       8,
		DataDir:            dir,
		AudioRetention:     5 * time.Minute,
		AudioSweepInterval: 2 * time.Minute,
	}
	images, err := storage.NewImageStore(cfg.ImageDir())
	require.NoError(t, err)
	audio, err := storage.NewAudioStore(cfg.AudioDir(), cfg.AudioRetention)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	deps := Dependencies{
		Store:       helpers.NewTestSQLiteStore(t),
		Memory:      memory.NewStore("You are the dashboard assistant.", cfg.HistoryLimit),
		LLM:         llmClient,
		Transcriber: speech.MockEngine{},
		Synthesizer: speech.MockEngine{},
		Publisher:   publisher,
		Images:      images,
		Audio:       audio,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy, cfg.DisabledTools)
	require.NoError(t, err)
	deps.PolicyEngine = engine

	return &testEnv{
		svc:       New(cfg, deps),
		llm:       llmClient,
		publisher: publisher,
		cfg:       cfg,
		audioDir:  cfg.AudioDir(),
	}
}
