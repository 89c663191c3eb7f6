package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSound struct {
	mu       sync.Mutex
	plays    int
	playErrs []error
	failures chan error
}

func newFakeSound(playErrs ...error) *fakeSound {
	return &fakeSound{playErrs: playErrs, failures: make(chan error, 1)}
}

func (s *fakeSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	if len(s.playErrs) == 0 {
		return nil
	}
	err := s.playErrs[0]
	s.playErrs = s.playErrs[1:]
	return err
}

func (s *fakeSound) Failures() <-chan error { return s.failures }

func (s *fakeSound) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

type fakePlayer struct {
	sound  *fakeSound
	err    error
	loaded []string
}

func (p *fakePlayer) Load(_ context.Context, src string) (Sound, error) {
	p.loaded = append(p.loaded, src)
	if p.err != nil {
		return nil, p.err
	}
	return p.sound, nil
}

var errBlocked = errors.New("autoplay blocked")

func TestPlayResolvesRelativeURL(t *testing.T) {
	player := &fakePlayer{sound: newFakeSound()}
	p := New(player, "http://localhost:3000/", time.Second)

	require.NoError(t, p.Play(context.Background(), "/api/v1/audio/1-VA.mp3"))
	require.NoError(t, p.Play(context.Background(), "https://cdn.example.com/a.mp3"))
	assert.Equal(t, []string{"http://localhost:3000/api/v1/audio/1-VA.mp3", "https://cdn.example.com/a.mp3"}, player.loaded)
	assert.Equal(t, 2, player.sound.playCount())
}

func TestBlockedPlayRetriesOnFirstInteraction(t *testing.T) {
	sound := newFakeSound(errBlocked)
	doc, button := NewTrigger(), NewTrigger()
	p := New(&fakePlayer{sound: sound}, "http://localhost:3000", time.Second, doc, button)

	require.NoError(t, p.Play(context.Background(), "/api/v1/audio/1-VA.mp3"))
	assert.Equal(t, 1, sound.playCount())
	assert.Equal(t, 1, doc.Pending())
	assert.Equal(t, 1, button.Pending())

	button.Fire()
	assert.Equal(t, 2, sound.playCount())
	assert.Equal(t, 0, doc.Pending())

	doc.Fire()
	assert.Equal(t, 2, sound.playCount())
}

func TestAsyncFailureArmsRecoveryOnce(t *testing.T) {
	sound := newFakeSound()
	doc := NewTrigger()
	p := New(&fakePlayer{sound: sound}, "", time.Second, doc)

	require.NoError(t, p.Play(context.Background(), "http://host/a.mp3"))
	sound.failures <- errBlocked

	require.Eventually(t, func() bool { return doc.Pending() == 1 }, time.Second, 5*time.Millisecond)
	doc.Fire()
	assert.Equal(t, 2, sound.playCount())
}

func TestRecoveryWindowExpires(t *testing.T) {
	sound := newFakeSound(errBlocked)
	doc := NewTrigger()
	p := New(&fakePlayer{sound: sound}, "", 30*time.Millisecond, doc)

	require.NoError(t, p.Play(context.Background(), "http://host/a.mp3"))
	assert.Equal(t, 1, doc.Pending())

	require.Eventually(t, func() bool { return doc.Pending() == 0 }, time.Second, 5*time.Millisecond)
	doc.Fire()
	assert.Equal(t, 1, sound.playCount())
}

func TestLoadFailureIsReturned(t *testing.T) {
	p := New(&fakePlayer{err: errors.New("404")}, "http://host", time.Second)
	assert.Error(t, p.Play(context.Background(), "/missing.mp3"))
}

func TestRetryFailureIsNotRetriedAgain(t *testing.T) {
	sound := newFakeSound(errBlocked, errBlocked)
	doc := NewTrigger()
	p := New(&fakePlayer{sound: sound}, "", time.Second, doc)

	require.NoError(t, p.Play(context.Background(), "http://host/a.mp3"))
	doc.Fire()
	assert.Equal(t, 2, sound.playCount())
	assert.Equal(t, 0, doc.Pending())
}
