// Command stockpilot-cli is a terminal client of the conversation server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	sessionID string
	verbose   bool

	rootCmd = &cobra.Command{
		Use:   "stockpilot-cli",
		Short: "Terminal client of the stock dashboard assistant",
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "base URL of the server")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session key; empty uses the server default")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(newChatCmd(), newWatchCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// commandLine splits a configured command into name and arguments.
func commandLine(raw string) (string, []string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

const requestTimeout = 90 * time.Second
