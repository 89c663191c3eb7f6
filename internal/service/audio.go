package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/xiaot623/stockpilot/internal/adapter/speech"
	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/storage"
)

// Transcribe turns an uploaded recording into text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", domain.NewInputError("Missing or invalid input")
	}
	text, err := s.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		slog.Error("transcription failed", "engine", s.transcriber.Name(), "err", err)
		return "", domain.Upstream("stt", err)
	}
	return text, nil
}

// Synthesize speaks text into a new audio file and returns its public URL.
// It returns "" when server speech is disabled or text is empty. Expired
// files are purged first.
func (s *Service) Synthesize(ctx context.Context, text string) (string, error) {
	if !s.config.UseServerTTS || text == "" || s.synthesizer == nil {
		return "", nil
	}

	s.sweepExpiredAudio(ctx)

	data, err := s.synthesizer.Synthesize(ctx, speech.SynthesisRequest{
		Text:  text,
		Voice: s.config.TTSVoice,
		Model: s.config.TTSModel,
	})
	if err != nil {
		return "", domain.Upstream("tts", err)
	}

	name, err := s.audio.Write(data, s.now())
	if err != nil {
		return "", err
	}
	return storage.AudioURLPrefix + name, nil
}

// RunAudioSweeper removes expired audio files once at startup and then on
// every sweep interval until ctx is done.
func (s *Service) RunAudioSweeper(ctx context.Context) {
	interval := s.config.AudioSweepInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	s.sweepExpiredAudio(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredAudio(ctx)
		}
	}
}

func (s *Service) sweepExpiredAudio(ctx context.Context) {
	if s.audio == nil || ctx.Err() != nil {
		return
	}
	removed, err := s.audio.RemoveExpired(s.now())
	if err != nil {
		slog.Warn("audio sweep failed", "err", err)
		return
	}
	if removed > 0 {
		slog.Info("removed expired audio files", "count", removed)
	}
}
