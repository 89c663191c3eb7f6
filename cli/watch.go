package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/stockpilot/internal/client/router"
	"github.com/xiaot623/stockpilot/internal/client/terminal"
	"github.com/xiaot623/stockpilot/internal/domain"
	"github.com/xiaot623/stockpilot/internal/tools"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the replies pushed to a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context())
		},
	}
}

// wsURL maps the server base URL to the subscription endpoint.
func wsURL(base, session string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/api/v1/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if session != "" {
		q := u.Query()
		q.Set("session_id", session)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runWatch(ctx context.Context) error {
	addr, err := wsURL(serverURL, sessionID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	console := terminal.NewConsole(os.Stdout)
	r := router.New()
	r.AddMessageListener(console.AssistantMessage)
	r.AddAudioListener(func(_ context.Context, url string) error {
		console.Printf("[audio] %s\n", url)
		return nil
	})
	for _, def := range tools.Definitions() {
		r.AddToolListener(def.Name, console.ToolListener(def.Name))
	}

	console.Printf("Watching %s\n", addr)
	return readFrames(ctx, conn, r, console)
}

func readFrames(ctx context.Context, conn *websocket.Conn, r *router.Router, console *terminal.Console) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("unreadable frame", "err", err)
			continue
		}

		switch frame.Type {
		case domain.FrameTypeEnvelope:
			if err := r.Route(ctx, frame.Envelope); err != nil {
				slog.Warn("failed to route envelope", "err", err)
			}
		case domain.FrameTypeToolRequest:
			if frame.Tool != nil {
				console.Printf("[dispatch] %s\n", frame.Tool.Name)
			}
		default:
			slog.Debug("frame", "type", frame.Type, "session_id", frame.SessionID)
		}
	}
}
