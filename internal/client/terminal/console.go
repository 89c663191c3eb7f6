package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/xiaot623/stockpilot/internal/client/router"
)

// Console prints the conversation to a writer.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// UserMessage implements speech.Notifier.
func (c *Console) UserMessage(text string) {
	c.printf("you> %s\n", text)
}

// AssistantMessage is a router message listener.
func (c *Console) AssistantMessage(_ context.Context, message string) error {
	c.printf("assistant> %s\n", message)
	return nil
}

// ToolListener returns a router tool listener that prints the request.
func (c *Console) ToolListener(name string) router.ToolListener {
	return func(_ context.Context, args map[string]any) error {
		data, err := json.Marshal(args)
		if err != nil {
			return err
		}
		c.printf("[tool] %s %s\n", name, data)
		return nil
	}
}

// Printf writes a formatted line.
func (c *Console) Printf(format string, args ...interface{}) {
	c.printf(format, args...)
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}
