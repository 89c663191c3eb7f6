// Package router delivers response envelopes to the listeners registered by
// the dashboard: spoken audio, tool requests and chat messages.
package router

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/stockpilot/internal/domain"
)

// MessageListener receives one assistant message.
type MessageListener func(ctx context.Context, message string) error

// ToolListener receives the arguments of a requested tool.
type ToolListener func(ctx context.Context, args map[string]any) error

// AudioListener receives the URL of a synthesized reply.
type AudioListener func(ctx context.Context, url string) error

// Router fans envelopes out to listeners.
type Router struct {
	mu       sync.RWMutex
	messages []MessageListener
	tools    map[string]ToolListener
	audio    []AudioListener
}

// New creates a router without listeners.
func New() *Router {
	return &Router{tools: make(map[string]ToolListener)}
}

// AddMessageListener registers fn for every message of every envelope.
func (r *Router) AddMessageListener(fn MessageListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, fn)
}

// AddToolListener registers fn for tool requests named name. A later
// registration for the same name replaces the earlier one.
func (r *Router) AddToolListener(name string, fn ToolListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.tools, name)
		return
	}
	r.tools[name] = fn
}

// AddAudioListener registers fn for envelopes that carry audio.
func (r *Router) AddAudioListener(fn AudioListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, fn)
}

// Route delivers env. Audio, tool and message listeners run as three
// concurrent groups; inside a group listeners run in registration order and
// messages in envelope order. The first listener error is returned once all
// groups are done. Tool requests nobody listens for are ignored.
func (r *Router) Route(ctx context.Context, env *domain.Envelope) error {
	if env == nil {
		return nil
	}

	r.mu.RLock()
	messages := append([]MessageListener(nil), r.messages...)
	audio := append([]AudioListener(nil), r.audio...)
	tools := make([]func(context.Context) error, 0, len(env.ToolCalls))
	for _, call := range env.ToolCalls {
		fn, ok := r.tools[call.Name]
		if !ok {
			slog.Debug("no listener for tool", "tool", call.Name)
			continue
		}
		args := call.Arguments
		tools = append(tools, func(ctx context.Context) error { return fn(ctx, args) })
	}
	r.mu.RUnlock()

	var g errgroup.Group
	if env.AudioURL != "" && len(audio) > 0 {
		g.Go(func() error {
			return runAll(audio, func(fn AudioListener) error { return fn(ctx, env.AudioURL) })
		})
	}
	if len(tools) > 0 {
		g.Go(func() error {
			return runAll(tools, func(fn func(context.Context) error) error { return fn(ctx) })
		})
	}
	if len(messages) > 0 {
		g.Go(func() error {
			var first error
			for _, msg := range env.Messages {
				if err := runAll(messages, func(fn MessageListener) error { return fn(ctx, msg) }); err != nil && first == nil {
					first = err
				}
			}
			return first
		})
	}
	return g.Wait()
}

// runAll calls every listener even after a failure and returns the first
// error.
func runAll[T any](listeners []T, call func(T) error) error {
	var first error
	for _, fn := range listeners {
		if err := call(fn); err != nil {
			slog.Warn("listener failed", "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
