package terminal

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/xiaot623/stockpilot/internal/client/playback"
)

// CommandPlayer plays audio by running an external player with the source
// appended to its arguments.
type CommandPlayer struct {
	Command string
	Args    []string
}

// NewCommandPlayer creates a player for command.
func NewCommandPlayer(command string, args ...string) *CommandPlayer {
	return &CommandPlayer{Command: command, Args: args}
}

// Load implements playback.Player.
func (p *CommandPlayer) Load(ctx context.Context, src string) (playback.Sound, error) {
	path, err := exec.LookPath(strings.TrimSpace(p.Command))
	if err != nil {
		return nil, fmt.Errorf("audio player not available: %w", err)
	}
	args := append(append([]string(nil), p.Args...), src)
	return &commandSound{ctx: ctx, path: path, args: args, failures: make(chan error, 1)}, nil
}

type commandSound struct {
	ctx  context.Context
	path string
	args []string

	mu       sync.Mutex
	closed   bool
	failures chan error
}

// Play starts the player. A start failure is returned; an exit failure is
// reported on Failures.
func (s *commandSound) Play() error {
	cmd := exec.CommandContext(s.ctx, s.path, s.args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		s.report(cmd.Wait())
	}()
	return nil
}

func (s *commandSound) Failures() <-chan error { return s.failures }

func (s *commandSound) report(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err != nil {
		s.failures <- err
	}
	s.closed = true
	close(s.failures)
}
