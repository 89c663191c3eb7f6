package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xiaot623/stockpilot/internal/adapter/llm"
	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/input"
	"github.com/xiaot623/stockpilot/internal/memory"
	"github.com/xiaot623/stockpilot/internal/policy"
	"github.com/xiaot623/stockpilot/internal/tools"
)

var errNoChoices = errors.New("response has no choices")

// Converse runs one turn for the session: the input is normalized and
// recorded, the model is called with the recent history and the tool catalog,
// and at most one selected tool is dispatched. Turns on the same session run
// one at a time.
func (s *Service) Converse(ctx context.Context, sessionKey string, in *input.Input) (*domain.Envelope, error) {
	conv := s.memory.Get(sessionKey)
	release, err := conv.AcquireTurn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	turnID := s.startTurn(ctx, sessionKey)
	env, err := s.runTurn(ctx, conv, turnID, in)
	s.finishTurn(ctx, turnID, env, err)
	return env, err
}

func (s *Service) runTurn(ctx context.Context, conv *memory.Conversation, turnID string, in *input.Input) (*domain.Envelope, error) {
	normalized := input.Normalize(in)

	msgID := s.remember(ctx, conv, turnID, domain.RoleUser, normalized.Note)
	userInput := domain.UserInputPayload{MessageID: msgID, Note: normalized.Note}
	if in.HasStock() {
		userInput.Stock = strings.TrimSpace(in.Stock)
		s.remember(ctx, conv, turnID, domain.RoleUser, fmt.Sprintf("For context: this screenshot is of stock %q.", userInput.Stock))
	}
	s.trace(ctx, turnID, domain.EventTypeUserInput, userInput)

	conv.Sanitize()
	req := &llm.ChatCompletionRequest{
		Model:      s.config.LLMModel,
		Messages:   toChatMessages(conv.BuildRequest(normalized.Payload)),
		Tools:      toolSpecs(),
		ToolChoice: "auto",
	}

	resp, err := s.complete(ctx, turnID, req)
	if err != nil {
		return nil, domain.Upstream("llm", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, domain.Upstream("llm", errNoChoices)
	}
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) == 0 {
		reply := msg.Text()
		s.remember(ctx, conv, turnID, domain.RoleAssistant, reply)
		return domain.NewEnvelope(reply), nil
	}

	if len(msg.ToolCalls) > 1 {
		slog.Info("model selected several tools, dispatching the first", "turn_id", turnID, "count", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	inv := domain.ToolInvocation{
		Name:      call.Function.Name,
		Arguments: tools.ParseArguments(call.Function.Arguments),
	}

	decision, err := s.checkPolicy(ctx, turnID, inv)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed() {
		reply := fmt.Sprintf("The %s action is currently disabled.", inv.Name)
		s.remember(ctx, conv, turnID, domain.RoleAssistant, reply)
		return domain.NewEnvelope(reply), nil
	}

	dispatched := domain.ToolDispatchedPayload{ToolName: inv.Name, Arguments: inv.Arguments}
	if err := s.dispatcher.Dispatch(withSession(ctx, conv.Key()), inv.Name, inv.Arguments); err != nil {
		dispatched.Error = err.Error()
		s.trace(ctx, turnID, domain.EventTypeToolDispatched, dispatched)
		return nil, fmt.Errorf("failed to dispatch %s: %w", inv.Name, err)
	}
	s.trace(ctx, turnID, domain.EventTypeToolDispatched, dispatched)

	reply := tools.Acknowledge(inv.Name, inv.Arguments)
	s.remember(ctx, conv, turnID, domain.RoleAssistant, reply)
	return domain.NewEnvelope(reply, inv), nil
}

// complete calls the model and traces the call.
func (s *Service) complete(ctx context.Context, turnID string, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	startTime := time.Now()
	s.trace(ctx, turnID, domain.EventTypeLLMCallStarted, domain.LLMCallStartedPayload{
		Model:    req.Model,
		Messages: len(req.Messages),
		Tools:    len(req.Tools),
	})

	resp, err := s.llmClient.CreateChatCompletion(ctx, req)

	payload := domain.LLMCallDonePayload{
		Model:     req.Model,
		LatencyMs: time.Since(startTime).Milliseconds(),
	}
	if err != nil {
		payload.Error = err.Error()
		s.trace(context.WithoutCancel(ctx), turnID, domain.EventTypeLLMCallDone, payload)
		slog.Error("model call failed", "turn_id", turnID, "err", err)
		return nil, err
	}
	if resp.Model != "" {
		payload.Model = resp.Model
	}
	if resp.Usage != nil {
		payload.PromptTokens = resp.Usage.PromptTokens
		payload.CompletionTokens = resp.Usage.CompletionTokens
		payload.TotalTokens = resp.Usage.TotalTokens
	}
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		payload.ToolCalls = len(resp.Choices[0].Message.ToolCalls)
	}
	s.trace(ctx, turnID, domain.EventTypeLLMCallDone, payload)
	return resp, nil
}

// checkPolicy evaluates the tool policy. Without an engine every tool runs.
func (s *Service) checkPolicy(ctx context.Context, turnID string, inv domain.ToolInvocation) (policy.Decision, error) {
	if s.policyEngine == nil {
		return policy.Decision{Decision: policy.DecisionAllow}, nil
	}
	decision, err := s.policyEngine.Evaluate(ctx, inv.Name, inv.Arguments)
	if err != nil {
		return policy.Decision{}, err
	}
	s.trace(ctx, turnID, domain.EventTypePolicyDecision, domain.PolicyDecisionPayload{
		ToolName: inv.Name,
		Decision: decision.Decision,
		Reason:   decision.Reason,
	})
	return decision, nil
}

// forwardToClient pushes a selected tool to the session's subscribers. A
// failed push is logged: the requesting client still gets the call in the
// response envelope.
func (s *Service) forwardToClient(ctx context.Context, name string, args map[string]any) error {
	if s.publisher == nil {
		return nil
	}
	key := SessionFromContext(ctx)
	frame := domain.Frame{
		Type:      domain.FrameTypeToolRequest,
		SessionID: key,
		Ts:        s.now().UnixMilli(),
		Tool:      &domain.ToolInvocation{Name: name, Arguments: args},
	}
	if err := s.publisher.BroadcastJSON(key, frame); err != nil {
		slog.Warn("failed to push tool request", "session_id", key, "tool", name, "err", err)
	}
	return nil
}

func toChatMessages(messages []domain.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func toolSpecs() []llm.Tool {
	defs := tools.Definitions()
	out := make([]llm.Tool, len(defs))
	for i, d := range defs {
		out[i] = llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return out
}

func isUpstream(err error) bool {
	var up *domain.UpstreamError
	return errors.As(err, &up)
}
