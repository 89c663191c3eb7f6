package service

import (
	"context"
	"log/slog"

	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/input"
)

// TurnRequest is one conversation request as received at the boundary.
// When Audio is set it is transcribed and replaces Input.
type TurnRequest struct {
	SessionKey    string
	Input         *input.Input
	Audio         []byte
	AudioFilename string
}

// Respond runs a full request: optional transcription, the conversation
// turn, optional speech synthesis and the push to live subscribers.
func (s *Service) Respond(ctx context.Context, req TurnRequest) (*domain.Envelope, error) {
	in := req.Input
	var transcription string
	if req.Audio != nil {
		text, err := s.Transcribe(ctx, req.Audio, req.AudioFilename)
		if err != nil {
			return nil, err
		}
		transcription = text
		in = input.FromText(text)
	}

	env, err := s.Converse(ctx, req.SessionKey, in)
	if err != nil {
		return nil, err
	}
	env.Transcription = transcription

	audioURL, err := s.Synthesize(ctx, env.AssistantReply)
	if err != nil {
		slog.Error("speech synthesis failed, replying without audio", "session_id", req.SessionKey, "err", err)
	}
	env.AudioURL = audioURL

	s.publishEnvelope(req.SessionKey, env)
	return env, nil
}

func (s *Service) publishEnvelope(sessionKey string, env *domain.Envelope) {
	if s.publisher == nil {
		return
	}
	frame := domain.Frame{
		Type:      domain.FrameTypeEnvelope,
		SessionID: sessionKey,
		Ts:        s.now().UnixMilli(),
		Envelope:  env,
	}
	if err := s.publisher.BroadcastJSON(sessionKey, frame); err != nil {
		slog.Warn("failed to push envelope", "session_id", sessionKey, "err", err)
	}
}
