package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/stockpilot/internal/adapter/llm"
	"github.com/xiaot623/stockpilot/internal/adapter/speech"
	"github.com/xiaot623/stockpilot/internal/config"
	"github.com/xiaot623/stockpilot/internal/hub"
	"github.com/xiaot623/stockpilot/internal/memory"
	"github.com/xiaot623/stockpilot/internal/policy"
	"github.com/xiaot623/stockpilot/internal/repository"
	"github.com/xiaot623/stockpilot/internal/service"
	"github.com/xiaot623/stockpilot/internal/storage"
	httpserver "github.com/xiaot623/stockpilot/internal/transport/http"
	"github.com/xiaot623/stockpilot/internal/transport/ws"
)

var (
	envFile string

	rootCmd = &cobra.Command{
		Use:   "stockpilot",
		Short: "Conversation server for the stock dashboard assistant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.New(envFile)
			if err != nil {
				return fmt.Errorf("failed to load environment: %w", err)
			}
			// Flags override the environment only when set on the command line.
			for _, name := range []string{"http_port", "data_dir", "assistant_mode", "log_level"} {
				if err := v.BindPFlag(name, cmd.Flags().Lookup(strings.ReplaceAll(name, "_", "-"))); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), config.FromViper(v))
		},
	}
)

func init() {
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.Flags().Int("http-port", 3000, "port of the HTTP server")
	rootCmd.Flags().String("data-dir", "data", "directory of generated audio and uploaded screenshots")
	rootCmd.Flags().String("assistant-mode", "", "MOCK replaces the model and speech services with local fakes")
	rootCmd.Flags().String("log-level", "info", "debug, info, warn or error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("stockpilot failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.SetDefault(newLogger(cfg))

	slog.Info("starting stockpilot",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"llm_base_url", cfg.LLMBaseURL,
		"model", cfg.LLMModel,
		"mode", cfg.Mode,
	)

	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	prompt, err := cfg.SystemPrompt()
	if err != nil {
		return fmt.Errorf("failed to read system prompt: %w", err)
	}

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, cfg.DisabledTools)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	images, err := storage.NewImageStore(cfg.ImageDir())
	if err != nil {
		return err
	}
	audio, err := storage.NewAudioStore(cfg.AudioDir(), cfg.AudioRetention)
	if err != nil {
		return err
	}

	speechEngine := speech.NewEngine(cfg.Mode, cfg.LLMBaseURL, cfg.OpenAIAPIKey, cfg.STTModel, cfg.LLMTimeout)
	wsHub := hub.NewHub()

	svc := service.New(cfg, service.Dependencies{
		Store:        db,
		Memory:       memory.NewStore(prompt, cfg.HistoryLimit),
		LLM:          llm.NewLLMClient(cfg.Mode, cfg.LLMBaseURL, cfg.OpenAIAPIKey, cfg.LLMTimeout),
		Transcriber:  speechEngine,
		Synthesizer:  speechEngine,
		PolicyEngine: policyEngine,
		Publisher:    wsHub,
		Images:       images,
		Audio:        audio,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go wsHub.Run(runCtx)
	go svc.RunAudioSweeper(runCtx)

	e := httpserver.NewServer(cfg, svc, ws.NewServer(wsHub))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("API started", "port", cfg.HTTPPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down stockpilot")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown server gracefully", "err", err)
	}

	slog.Info("stockpilot stopped")
	return nil
}
