package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/stockpilot/internal/client/chat"
	"github.com/xiaot623/stockpilot/internal/client/playback"
	"github.com/xiaot623/stockpilot/internal/client/router"
	"github.com/xiaot623/stockpilot/internal/client/speech"
	"github.com/xiaot623/stockpilot/internal/client/terminal"
	"github.com/xiaot623/stockpilot/internal/tools"
)

func newChatCmd() *cobra.Command {
	var (
		recognizer string
		player     string
		newSession bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), recognizer, player, newSession)
		},
	}
	cmd.Flags().StringVar(&recognizer, "recognizer", "brabble", "speech recognizer command printing one transcript per line")
	cmd.Flags().StringVar(&player, "player", "ffplay -nodisp -autoexit -loglevel quiet", "audio player command; the URL is appended")
	cmd.Flags().BoolVar(&newSession, "new", false, "start in a fresh session")
	return cmd
}

func runChat(ctx context.Context, recognizerCmd, playerCmd string, newSession bool) error {
	console := terminal.NewConsole(os.Stdout)

	r := router.New()
	r.AddMessageListener(console.AssistantMessage)
	for _, def := range tools.Definitions() {
		r.AddToolListener(def.Name, console.ToolListener(def.Name))
	}

	// Every entered line counts as an interaction; /talk also fires the
	// talk control.
	lines, talk := playback.NewTrigger(), playback.NewTrigger()
	playerName, playerArgs := commandLine(playerCmd)
	audio := playback.New(terminal.NewCommandPlayer(playerName, playerArgs...), serverURL, playback.DefaultWindow, lines, talk)
	r.AddAudioListener(func(ctx context.Context, url string) error {
		return audio.Play(ctx, url)
	})

	client := chat.NewClient(serverURL, sessionID, requestTimeout, r)
	if newSession {
		key, err := client.NewSession(ctx)
		if err != nil {
			return err
		}
		console.Printf("session %s\n", key)
	}

	recName, recArgs := commandLine(recognizerCmd)
	voice := speech.NewSession(
		terminal.NewCommandRecognizer(recName, recArgs...),
		terminal.NewMicrophone(),
		client,
		console,
		speech.DefaultConfig(),
	)

	console.Printf("Type a message and press Enter. Commands: /talk, /image <path> [text], /upload <path>, /stock <name>, /quit\n")

	var stock string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines.Fire()
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch cmd, rest, _ := strings.Cut(line, " "); cmd {
		case "/quit":
			return nil
		case "/talk":
			talk.Fire()
			err = voice.Toggle(ctx)
			if voice.State() == speech.Listening {
				console.Printf("listening... /talk again to send\n")
			}
		case "/stock":
			stock = strings.TrimSpace(rest)
			console.Printf("stock hint: %q\n", stock)
		case "/image":
			path, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
			var uri string
			if uri, err = dataURI(path); err == nil {
				_, err = client.SendImage(ctx, uri, text, stock)
			}
		case "/upload":
			var uri, url string
			if uri, err = dataURI(strings.TrimSpace(rest)); err == nil {
				if url, err = client.UploadImage(ctx, uri, stock); err == nil {
					console.Printf("uploaded %s\n", url)
				}
			}
		default:
			_, err = client.SendText(ctx, line)
		}
		if err != nil {
			console.Printf("error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// dataURI reads an image file as a base64 data URI.
func dataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
