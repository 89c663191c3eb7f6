package terminal

import (
	"context"
	"sync"

	"github.com/xiaot623/stockpilot/internal/client/speech"
)

// Microphone hands out one capture stream at a time. A new acquisition
// force-releases the stream held before it.
type Microphone struct {
	mu      sync.Mutex
	current *micStream
}

// NewMicrophone creates an unheld microphone.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Acquire implements speech.Microphone.
func (m *Microphone) Acquire(ctx context.Context) (speech.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.released = true
	}
	m.current = &micStream{mic: m}
	return m.current, nil
}

// Held reports whether a stream is currently held.
func (m *Microphone) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

type micStream struct {
	mic      *Microphone
	released bool
}

func (s *micStream) Release() error {
	s.mic.mu.Lock()
	defer s.mic.mu.Unlock()
	s.released = true
	if s.mic.current == s {
		s.mic.current = nil
	}
	return nil
}
