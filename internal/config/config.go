// Package config provides configuration for the assistant server and CLI.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the assistant configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Upstream model services
	OpenAIAPIKey string
	LLMBaseURL   string
	LLMModel     string
	LLMTimeout   time.Duration
	STTModel     string
	TTSModel     string
	TTSVoice     string
	UseServerTTS bool
	Mode         string

	// Conversation
	SystemPromptPath string
	HistoryLimit     int
	DisabledTools    []string

	// Media storage
	DataDir            string
	AudioRetention     time.Duration
	AudioSweepInterval time.Duration

	// Debug log endpoint
	DebugLogRate float64

	// Logging
	LogLevel  string
	LogFormat string
}

// AudioDir is where synthesized replies are written.
func (c *Config) AudioDir() string { return c.DataDir + "/audio" }

// ImageDir is where uploaded screenshots are written.
func (c *Config) ImageDir() string { return c.DataDir + "/images" }

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 3000)
	v.SetDefault("database_url", "file:stockpilot.db?cache=shared&mode=rwc")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("llm_base_url", "https://api.openai.com")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_timeout_ms", 60000)
	v.SetDefault("stt_model", "whisper-1")
	v.SetDefault("tts_model", "tts-1")
	v.SetDefault("tts_voice", "nova")
	v.SetDefault("use_server_tts", true)
	v.SetDefault("assistant_mode", "")
	v.SetDefault("system_prompt_path", "")
	v.SetDefault("history_limit", 8)
	v.SetDefault("disabled_tools", "")
	v.SetDefault("data_dir", "data")
	v.SetDefault("audio_retention_ms", 300000)
	v.SetDefault("audio_sweep_interval_ms", 120000)
	v.SetDefault("debug_log_rate", 20)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// New returns a viper instance reading defaults, an optional .env file and
// the process environment.
func New(envFile string) (*viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load loads configuration from .env and environment variables.
func Load() (*Config, error) {
	v, err := New(".env")
	if err != nil {
		return nil, err
	}
	return FromViper(v), nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		HTTPPort:           v.GetInt("http_port"),
		DatabaseURL:        v.GetString("database_url"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		LLMBaseURL:         v.GetString("llm_base_url"),
		LLMModel:           v.GetString("llm_model"),
		LLMTimeout:         millis(v, "llm_timeout_ms"),
		STTModel:           v.GetString("stt_model"),
		TTSModel:           v.GetString("tts_model"),
		TTSVoice:           v.GetString("tts_voice"),
		UseServerTTS:       v.GetBool("use_server_tts"),
		Mode:               strings.ToUpper(v.GetString("assistant_mode")),
		SystemPromptPath:   v.GetString("system_prompt_path"),
		HistoryLimit:       v.GetInt("history_limit"),
		DisabledTools:      splitList(v.GetString("disabled_tools")),
		DataDir:            v.GetString("data_dir"),
		AudioRetention:     millis(v, "audio_retention_ms"),
		AudioSweepInterval: millis(v, "audio_sweep_interval_ms"),
		DebugLogRate:       v.GetFloat64("debug_log_rate"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
	}
}

// SystemPrompt returns the configured system prompt text, or the built-in
// prompt when no file is configured.
func (c *Config) SystemPrompt() (string, error) {
	if c.SystemPromptPath == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(c.SystemPromptPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultSystemPrompt is used when SYSTEM_PROMPT_PATH is unset.
const DefaultSystemPrompt = `You are the voice assistant of a stock price dashboard.
Help the user explore the charts of the available stocks: Uber, Google, Apple, Tesla, Netflix, Facebook and Disney.
When the user asks for something the dashboard can do, call the matching tool instead of describing the steps.
Keep spoken answers short and plain. When a screenshot is attached, describe what the chart shows.`
