// Package terminal adapts the voice and audio ports of the client to
// external commands and a text console.
package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/xiaot623/stockpilot/internal/client/speech"
)

// CommandRecognizer runs an external recognizer that prints one transcript
// per line on stdout, either as plain text or as a JSON event.
type CommandRecognizer struct {
	Command string
	Args    []string
}

// NewCommandRecognizer creates a recognizer for command.
func NewCommandRecognizer(command string, args ...string) *CommandRecognizer {
	return &CommandRecognizer{Command: command, Args: args}
}

// Start launches one recognition run.
func (r *CommandRecognizer) Start(ctx context.Context) (speech.Recognition, error) {
	cmdPath := strings.TrimSpace(r.Command)
	if cmdPath == "" {
		return nil, errors.New("no recognizer command configured")
	}
	cmd := exec.CommandContext(ctx, cmdPath, r.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	run := &commandRun{cmd: cmd, events: make(chan speech.Event, 32)}
	go logLines(cmdPath, stderr)
	go run.read(stdout)
	return run, nil
}

type commandRun struct {
	cmd     *exec.Cmd
	events  chan speech.Event
	stopped atomic.Bool
}

func (r *commandRun) Events() <-chan speech.Event { return r.events }

// Stop interrupts the command so it can flush its last lines.
func (r *commandRun) Stop() error {
	r.stopped.Store(true)
	return ignoreDone(r.cmd.Process.Signal(os.Interrupt))
}

// Abort kills the command.
func (r *commandRun) Abort() error {
	r.stopped.Store(true)
	return ignoreDone(r.cmd.Process.Kill())
}

func (r *commandRun) read(stdout io.Reader) {
	defer close(r.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ev, ok := parseLine(line); ok {
			r.events <- ev
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("recognizer read error", "err", err)
	}
	if err := r.cmd.Wait(); err != nil && !r.stopped.Load() {
		slog.Warn("recognizer exited", "err", err)
	}
}

type lineEvent struct {
	Type       string          `json:"type"`
	Event      string          `json:"event"`
	Text       string          `json:"text"`
	Transcript string          `json:"transcript"`
	Utterance  string          `json:"utterance"`
	Final      *bool           `json:"final"`
	Error      string          `json:"error"`
	Payload    json.RawMessage `json:"payload"`
}

type linePayload struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Utterance  string `json:"utterance"`
}

// parseLine turns one output line into an event. JSON lines may carry an
// error code or a transcript, optionally nested in payload; anything else
// is a final transcript.
func parseLine(line string) (speech.Event, bool) {
	if strings.HasPrefix(line, "{") {
		var evt lineEvent
		if err := json.Unmarshal([]byte(line), &evt); err == nil {
			if evt.Error != "" {
				return speech.Event{Error: evt.Error}, true
			}
			text := pickText(evt.Text, evt.Transcript, evt.Utterance)
			if text == "" && len(evt.Payload) > 0 {
				var payload linePayload
				if err := json.Unmarshal(evt.Payload, &payload); err == nil {
					text = pickText(payload.Text, payload.Transcript, payload.Utterance)
				}
			}
			if text == "" {
				return speech.Event{}, false
			}
			final := true
			if evt.Final != nil {
				final = *evt.Final
			}
			if strings.Contains(strings.ToLower(evt.Type), "partial") || strings.Contains(strings.ToLower(evt.Event), "partial") {
				final = false
			}
			return speech.Event{Results: []speech.Result{{Transcript: text, Final: final}}}, true
		}
	}
	return speech.Event{Results: []speech.Result{{Transcript: line, Final: true}}}, true
}

func pickText(parts ...string) string {
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			return strings.TrimSpace(part)
		}
	}
	return ""
}

func logLines(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		slog.Debug("command output", "command", name, "line", line)
	}
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
