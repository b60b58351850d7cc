package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/seantiz/testengine-ci/internal/model"
)

const (
	defaultListenAddr       = ":8080"
	defaultUsername         = "admin"
	defaultPassword         = "admin"
	defaultCompletionDelay  = 30 * time.Second
	defaultCompletionStatus = model.StatusFinished

	envListenAddr       = "TESTENGINE_MOCK_LISTEN_ADDR"
	envLogLevel         = "TESTENGINE_MOCK_LOG_LEVEL"
	envUsername         = "TESTENGINE_MOCK_USERNAME"
	envPassword         = "TESTENGINE_MOCK_PASSWORD"
	envCompletionDelay  = "TESTENGINE_MOCK_COMPLETION_DELAY"
	envCompletionStatus = "TESTENGINE_MOCK_COMPLETION_STATUS"
	envVersion          = "TESTENGINE_MOCK_VERSION"
)

// Config holds the mock server configuration loaded from environment variables.
type Config struct {
	ListenAddr       string
	LogLevel         slog.Level
	Username         string
	Password         string
	CompletionDelay  time.Duration
	CompletionStatus model.Status
	Version          string
}

// Load reads configuration from environment variables with sensible defaults.
// Setting the username to "-" disables basic auth.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       defaultListenAddr,
		LogLevel:         slog.LevelInfo,
		Username:         defaultUsername,
		Password:         defaultPassword,
		CompletionDelay:  defaultCompletionDelay,
		CompletionStatus: defaultCompletionStatus,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envUsername); v != "" {
		cfg.Username = v
	}
	if cfg.Username == "-" {
		cfg.Username = ""
	}
	if v := os.Getenv(envPassword); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(envCompletionDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envCompletionDelay, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %s", envCompletionDelay, d)
		}
		cfg.CompletionDelay = d
	}
	if v := os.Getenv(envCompletionStatus); v != "" {
		s, err := model.ParseStatus(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envCompletionStatus, err)
		}
		if s != model.StatusFinished && s != model.StatusFailed {
			return Config{}, fmt.Errorf("%s must be FINISHED or FAILED, got %s", envCompletionStatus, s)
		}
		cfg.CompletionStatus = s
	}
	cfg.Version = os.Getenv(envVersion)

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
