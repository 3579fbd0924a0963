package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/quailyquaily/threadbot/agent"
	"github.com/spf13/viper"
)

type LoggerConfig struct {
	Level     string
	Format    string
	AddSource bool
}

func LoggerConfigFromViper() LoggerConfig {
	return LoggerConfig{
		Level:     viper.GetString("logging.level"),
		Format:    viper.GetString("logging.format"),
		AddSource: viper.GetBool("logging.add_source"),
	}
}

func LoggerFromViper() (*slog.Logger, error) {
	return NewLogger(os.Stderr, LoggerConfigFromViper())
}

func NewLogger(w io.Writer, cfg LoggerConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown logging.format %q (want text or json)", cfg.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level %q", s)
	}
}

// LogOptionsFromViper controls how much of each tool call reaches the logs.
func LogOptionsFromViper() agent.LogOptions {
	opts := agent.DefaultLogOptions()
	opts.IncludeToolParams = viper.GetBool("logging.include_tool_params")
	if n := viper.GetInt("logging.max_string_value_chars"); n > 0 {
		opts.MaxStringValueChars = n
	}
	if keys := viper.GetStringSlice("logging.redact_keys"); len(keys) > 0 {
		opts.RedactKeys = append(opts.RedactKeys, keys...)
	}
	return opts
}
