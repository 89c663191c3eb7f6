// Package service runs conversation turns and the media work around them.
package service

import (
	"context"
	"time"

	"github.com/xiaot623/stockpilot/internal/adapter/llm"
	"github.com/xiaot623/stockpilot/internal/adapter/speech"
	"github.com/xiaot623/stockpilot/internal/config"
	"github.com/xiaot623/stockpilot/internal/memory"
	"github.com/xiaot623/stockpilot/internal/policy"
	"github.com/xiaot623/stockpilot/internal/repository"
	"github.com/xiaot623/stockpilot/internal/storage"
	"github.com/xiaot623/stockpilot/internal/tools"
)

// Publisher pushes frames to the live subscribers of a session.
type Publisher interface {
	BroadcastJSON(sessionID string, v interface{}) error
}

// Dependencies are the collaborators of a Service. Publisher may be nil.
type Dependencies struct {
	Store        repository.Store
	Memory       *memory.Store
	LLM          llm.LLMClient
	Transcriber  speech.Transcriber
	Synthesizer  speech.Synthesizer
	PolicyEngine *policy.Engine
	Publisher    Publisher
	Images       *storage.ImageStore
	Audio        *storage.AudioStore
}

type Service struct {
	store        repository.Store
	memory       *memory.Store
	llmClient    llm.LLMClient
	transcriber  speech.Transcriber
	synthesizer  speech.Synthesizer
	policyEngine *policy.Engine
	publisher    Publisher
	images       *storage.ImageStore
	audio        *storage.AudioStore
	dispatcher   *tools.Dispatcher
	config       *config.Config
	now          func() time.Time
}

func New(cfg *config.Config, deps Dependencies) *Service {
	s := &Service{
		store:        deps.Store,
		memory:       deps.Memory,
		llmClient:    deps.LLM,
		transcriber:  deps.Transcriber,
		synthesizer:  deps.Synthesizer,
		policyEngine: deps.PolicyEngine,
		publisher:    deps.Publisher,
		images:       deps.Images,
		audio:        deps.Audio,
		dispatcher:   tools.NewDispatcher(),
		config:       cfg,
		now:          time.Now,
	}
	s.dispatcher.RegisterFallback(s.forwardToClient)
	return s
}

// Tools returns the dispatcher used for selected tool calls. Handlers
// registered on it take precedence over forwarding to subscribers.
func (s *Service) Tools() *tools.Dispatcher {
	return s.dispatcher
}

type sessionKeyCtx struct{}

func withSession(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx{}, key)
}

// SessionFromContext returns the session key of the turn a tool handler runs in.
func SessionFromContext(ctx context.Context) string {
	key, _ := ctx.Value(sessionKeyCtx{}).(string)
	return key
}
