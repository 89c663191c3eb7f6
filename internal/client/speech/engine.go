// Package speech runs push-to-talk voice capture: one listening session at a
// time, accumulating final transcripts until the user stops or the session
// times out, then sending the transcript as a text turn.
package speech

import (
	"context"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// Recognition error codes reported by engines.
const (
	ErrCodeNotAllowed        = "not-allowed"
	ErrCodeNetwork           = "network"
	ErrCodeServiceNotAllowed = "service-not-allowed"
	ErrCodeAborted           = "aborted"
	ErrCodeNoSpeech          = "no-speech"
)

// Result is one recognized fragment.
type Result struct {
	Transcript string
	Final      bool
}

// Event is emitted by a running recognition. Exactly one of Results and
// Error is set.
type Event struct {
	Results []Result
	Error   string
}

// Recognition is one run of a recognition engine. Its event channel is
// closed when the run ends, whether on its own or after Stop or Abort.
type Recognition interface {
	Events() <-chan Event
	// Stop ends the run after pending final results are delivered.
	Stop() error
	// Abort ends the run immediately.
	Abort() error
}

// Recognizer starts recognition runs.
type Recognizer interface {
	Start(ctx context.Context) (Recognition, error)
}

// Stream is a held microphone capture.
type Stream interface {
	Release() error
}

// Microphone hands out capture streams.
type Microphone interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Sender delivers a finished transcript as a text turn.
type Sender interface {
	SendText(ctx context.Context, text string) (*domain.Envelope, error)
}

// Notifier shows user-side messages in the chat.
type Notifier interface {
	UserMessage(text string)
}
