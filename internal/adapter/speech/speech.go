// Package speech provides speech-to-text and text-to-speech clients for the
// upstream audio endpoints.
package speech

import "context"

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// SynthesisRequest describes one text-to-speech call.
type SynthesisRequest struct {
	Text  string
	Voice string
	Model string
}

// Synthesizer turns text into encoded audio (mp3).
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}
