package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NoSpeechNotice is shown when a session ends without a transcript.
const NoSpeechNotice = "No speech detected"

// State is the listening state of a Session.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "LISTENING"
	}
	return "IDLE"
}

// Config holds the timings of a Session.
type Config struct {
	// Timeout ends a session that is still listening and sends what was heard.
	Timeout time.Duration
	// Settle is how long a stop waits for final results still in flight.
	Settle time.Duration
	// Debounce keeps Toggle closed after a press completes.
	Debounce time.Duration
	Restart  RestartPolicy
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Timeout:  15 * time.Second,
		Settle:   500 * time.Millisecond,
		Debounce: 200 * time.Millisecond,
		Restart:  DefaultRestartPolicy(),
	}
}

// Session is the single voice capture session of a client. Every start bumps
// a generation counter; timers and engine goroutines of an older generation
// find it changed and do nothing.
type Session struct {
	recognizer Recognizer
	mic        Microphone
	sender     Sender
	notifier   Notifier
	cfg        Config

	mu         sync.Mutex
	state      State
	gen        uint64
	transcript strings.Builder
	manualStop bool
	stopping   bool
	rec        Recognition
	stream     Stream
	timer      *time.Timer
	cancel     context.CancelFunc
	sendCtx    context.Context

	toggling atomic.Bool
}

// NewSession creates an idle session. notifier may be nil.
func NewSession(recognizer Recognizer, mic Microphone, sender Sender, notifier Notifier, cfg Config) *Session {
	return &Session{
		recognizer: recognizer,
		mic:        mic,
		sender:     sender,
		notifier:   notifier,
		cfg:        cfg,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the final fragments heard so far.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.transcript.String())
}

// Toggle handles a press of the talk control: it starts a session when idle
// and stops and sends when listening. Presses made while another press is
// still being handled, or within the debounce after it, are ignored.
func (s *Session) Toggle(ctx context.Context) error {
	if !s.toggling.CompareAndSwap(false, true) {
		slog.Warn("talk toggle ignored, operation in progress")
		return nil
	}
	defer func() {
		time.AfterFunc(s.cfg.Debounce, func() { s.toggling.Store(false) })
	}()

	if s.State() == Listening {
		return s.StopAndSend(ctx)
	}
	return s.Start(ctx)
}

// Start begins a new listening session. A session already listening is
// force-stopped first, and its microphone stream is released before a new
// one is acquired.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	var release func()
	if s.state == Listening {
		slog.Info("speech session force-stopped by a new start")
		release = s.finishLocked(true)
	}
	s.gen++
	gen := s.gen
	s.transcript.Reset()
	s.state = Listening
	s.manualStop = false
	s.stopping = false
	s.sendCtx = context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancel(s.sendCtx)
	s.cancel = cancel
	s.mu.Unlock()

	if release != nil {
		release()
	}

	stream, err := s.mic.Acquire(runCtx)
	if err != nil {
		s.abort(gen, "microphone unavailable")
		return err
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		releaseStream(stream)
		return nil
	}
	s.stream = stream
	s.mu.Unlock()

	rec, err := s.recognizer.Start(runCtx)
	if err != nil {
		s.abort(gen, "recognition failed to start")
		return err
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		abortRecognition(rec)
		return nil
	}
	s.rec = rec
	s.timer = time.AfterFunc(s.cfg.Timeout, func() { s.onTimeout(gen) })
	s.mu.Unlock()

	slog.Info("speech session started", "generation", gen)
	go s.supervise(runCtx, gen, rec)
	return nil
}

// StopAndSend ends the listening session and sends what was heard. It does
// nothing when idle.
func (s *Session) StopAndSend(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.stopAndSend(ctx, gen)
}

func (s *Session) onTimeout(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != Listening {
		s.mu.Unlock()
		return
	}
	ctx := s.sendCtx
	s.mu.Unlock()

	slog.Info("speech session timed out, sending transcript", "generation", gen)
	if err := s.stopAndSend(ctx, gen); err != nil {
		slog.Error("failed to send transcript", "err", err)
	}
}

func (s *Session) stopAndSend(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if s.gen != gen || s.state != Listening || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.manualStop = true
	rec := s.rec
	s.mu.Unlock()

	if rec != nil {
		if err := rec.Stop(); err != nil {
			slog.Warn("failed to stop recognition", "err", err)
		}
	}

	select {
	case <-time.After(s.cfg.Settle):
	case <-ctx.Done():
	}

	s.mu.Lock()
	if s.gen != gen || s.state != Listening {
		s.mu.Unlock()
		return nil
	}
	transcript := strings.TrimSpace(s.transcript.String())
	s.transcript.Reset()
	release := s.finishLocked(false)
	s.mu.Unlock()
	release()

	if transcript == "" {
		slog.Warn("no speech detected during session")
		s.notify(NoSpeechNotice)
		return nil
	}

	slog.Info("sending transcript", "transcript", transcript)
	s.notify(transcript)
	if _, err := s.sender.SendText(ctx, transcript); err != nil {
		return err
	}
	return nil
}

// abort ends the session of generation gen without sending.
func (s *Session) abort(gen uint64, reason string) {
	s.mu.Lock()
	if s.gen != gen || s.state != Listening {
		s.mu.Unlock()
		return
	}
	slog.Warn("speech session aborted", "reason", reason)
	s.transcript.Reset()
	release := s.finishLocked(true)
	s.mu.Unlock()
	release()
}

// finishLocked returns the session to idle and hands back the cleanup of
// the engine and microphone, which must run without the lock held.
func (s *Session) finishLocked(abortEngine bool) func() {
	s.state = Idle
	s.manualStop = true
	s.stopping = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	rec, stream := s.rec, s.stream
	s.rec, s.stream = nil, nil

	return func() {
		if rec != nil && abortEngine {
			abortRecognition(rec)
		}
		if stream != nil {
			releaseStream(stream)
		}
	}
}

// supervise consumes the events of each run and restarts runs that end on
// their own while the session is still listening.
func (s *Session) supervise(ctx context.Context, gen uint64, rec Recognition) {
	schedule := s.cfg.Restart.NewBackOff()
	for {
		heard, fatal := s.consume(gen, rec)
		if fatal || !s.shouldRestart(gen) {
			return
		}
		if heard {
			schedule.Reset()
		}

		for {
			delay := schedule.NextBackOff()
			if delay == backoff.Stop {
				s.abort(gen, "recognition restart attempts exhausted")
				return
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			if !s.shouldRestart(gen) {
				return
			}

			slog.Info("restarting recognition within active session", "generation", gen)
			next, err := s.recognizer.Start(ctx)
			if err != nil {
				slog.Warn("failed to restart recognition", "err", err)
				continue
			}
			if !s.setRecognition(gen, next) {
				abortRecognition(next)
				return
			}
			rec = next
			break
		}
	}
}

// consume reads one run to its end. heard reports whether a final result
// arrived; fatal reports that an error ended the session.
func (s *Session) consume(gen uint64, rec Recognition) (heard, fatal bool) {
	for ev := range rec.Events() {
		if ev.Error != "" {
			if s.handleError(gen, ev.Error) {
				fatal = true
			}
			continue
		}
		for _, r := range ev.Results {
			text := strings.TrimSpace(r.Transcript)
			if text == "" {
				continue
			}
			if !r.Final {
				slog.Debug("interim result", "transcript", text)
				continue
			}
			heard = true
			s.appendFinal(gen, text)
		}
	}
	return heard, fatal
}

func (s *Session) appendFinal(gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.transcript.WriteString(text + " ")
	slog.Debug("final result", "transcript", text)
}

// handleError classifies an engine error and reports whether it ended the
// session.
func (s *Session) handleError(gen uint64, code string) bool {
	switch code {
	case ErrCodeNotAllowed:
		s.abort(gen, "microphone permission denied")
		return true
	case ErrCodeNetwork, ErrCodeServiceNotAllowed:
		s.abort(gen, "recognition service unavailable")
		return true
	case ErrCodeAborted:
		slog.Debug("recognition aborted")
	case ErrCodeNoSpeech:
		slog.Info("no speech yet, still listening")
	default:
		slog.Warn("recognition error", "code", code)
	}
	return false
}

func (s *Session) shouldRestart(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state == Listening && !s.manualStop
}

func (s *Session) setRecognition(gen uint64, rec Recognition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != Listening || s.manualStop {
		return false
	}
	s.rec = rec
	return true
}

func (s *Session) notify(text string) {
	if s.notifier != nil {
		s.notifier.UserMessage(text)
	}
}

func abortRecognition(rec Recognition) {
	if err := rec.Abort(); err != nil {
		slog.Warn("failed to abort recognition", "err", err)
	}
}

func releaseStream(stream Stream) {
	if err := stream.Release(); err != nil {
		slog.Warn("failed to release microphone", "err", err)
	}
}
