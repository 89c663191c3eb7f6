// Package playback plays synthesized replies and recovers from playback
// that the platform refuses until the user interacts with it.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is how long a blocked sound waits for an interaction.
const DefaultWindow = 30 * time.Second

// Sound is a loaded audio source.
type Sound interface {
	// Play starts playback. A synchronous refusal is returned as an error.
	Play() error
	// Failures reports load or playback failures that happen after Play
	// returned. It is closed when the sound is done.
	Failures() <-chan error
}

// Player loads sounds.
type Player interface {
	Load(ctx context.Context, src string) (Sound, error)
}

// InteractionSource notifies about user interactions.
type InteractionSource interface {
	// Once runs fn on the next interaction only and returns a function that
	// detaches fn if it has not run yet.
	Once(fn func()) (detach func())
}

// Playback plays reply audio with deferred-retry recovery.
type Playback struct {
	player  Player
	baseURL string
	sources []InteractionSource
	window  time.Duration
}

// New creates a Playback. Relative URLs are resolved against baseURL.
func New(player Player, baseURL string, window time.Duration, sources ...InteractionSource) *Playback {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Playback{
		player:  player,
		baseURL: strings.TrimRight(baseURL, "/"),
		sources: sources,
		window:  window,
	}
}

// Resolve turns a reply audio URL into a loadable source.
func (p *Playback) Resolve(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return p.baseURL + ref
}

// Play loads and plays the audio at ref. A refused play, immediate or
// later, arms recovery for that sound: the next user interaction retries
// playback once. Only a failed load is returned.
func (p *Playback) Play(ctx context.Context, ref string) error {
	src := p.Resolve(ref)
	sound, err := p.player.Load(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", src, err)
	}

	r := &recovery{sound: sound, src: src, sources: p.sources, window: p.window}
	go r.watch(ctx)

	if err := sound.Play(); err != nil {
		slog.Warn("audio play refused, waiting for user interaction", "src", src, "err", err)
		r.arm()
		return nil
	}
	slog.Debug("audio playback started", "src", src)
	return nil
}

// recovery is the retry state of one sound.
type recovery struct {
	sound   Sound
	src     string
	sources []InteractionSource
	window  time.Duration

	armOnce sync.Once
	mu      sync.Mutex
	done    bool
	detach  []func()
	timer   *time.Timer
}

func (r *recovery) watch(ctx context.Context) {
	select {
	case err, ok := <-r.sound.Failures():
		if !ok {
			return
		}
		slog.Warn("audio playback failed, waiting for user interaction", "src", r.src, "err", err)
		r.arm()
	case <-ctx.Done():
	}
}

// arm attaches one-shot interaction handlers. It runs at most once per sound.
func (r *recovery) arm() {
	r.armOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, src := range r.sources {
			r.detach = append(r.detach, src.Once(r.retry))
		}
		r.timer = time.AfterFunc(r.window, r.expire)
	})
}

// finish marks the recovery done and reports whether the caller got there
// first.
func (r *recovery) finish() bool {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return false
	}
	r.done = true
	detach := r.detach
	r.detach = nil
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	for _, d := range detach {
		d()
	}
	return true
}

func (r *recovery) retry() {
	if !r.finish() {
		return
	}
	slog.Info("retrying audio playback after user interaction", "src", r.src)
	if err := r.sound.Play(); err != nil {
		slog.Error("audio playback failed after user interaction", "src", r.src, "err", err)
	}
}

func (r *recovery) expire() {
	if r.finish() {
		slog.Warn("no user interaction within recovery window", "src", r.src, "window", r.window)
	}
}

// Trigger is an InteractionSource fired by the caller, such as a terminal
// that fires on every entered line.
type Trigger struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func()
}

// NewTrigger creates a trigger without handlers.
func NewTrigger() *Trigger {
	return &Trigger{handlers: make(map[uint64]func())}
}

// Once implements InteractionSource.
func (t *Trigger) Once(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.handlers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

// Fire runs and removes every attached handler.
func (t *Trigger) Fire() {
	t.mu.Lock()
	handlers := t.handlers
	t.handlers = make(map[uint64]func())
	t.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Pending returns the number of attached handlers.
func (t *Trigger) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers)
}
