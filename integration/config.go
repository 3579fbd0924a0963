package integration

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/internal/slackapi"
	"github.com/spf13/viper"
)

// InspectOptions controls request dump behavior.
type InspectOptions struct {
	Request bool
	DumpDir string
	Mode    string
}

// Config controls initialization and wiring behavior.
type Config struct {
	// Viper key overrides applied last (highest precedence).
	Overrides map[string]any

	// BuiltinToolNames optionally selects which built-in tools are wired.
	// Names are case-insensitive. When empty, all built-in tools are wired.
	BuiltinToolNames []string
	Inspect          InspectOptions

	// Slack backs the "slack" canvas store. Required when canvas.store is
	// "slack"; with canvas.store "auto" its presence selects that store.
	Slack *slackapi.Client
	// HTTPClient is used by the web tools. Defaults to a plain client.
	HTTPClient *http.Client
	// Logger defaults to one built from the logging.* keys.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Overrides: map[string]any{},
		Inspect:   InspectOptions{},
	}
}

func (c *Config) Set(key string, value any) {
	if c == nil {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if c.Overrides == nil {
		c.Overrides = map[string]any{}
	}
	c.Overrides[key] = value
}

// ApplyViperDefaults registers the default value of every key threadbot reads.
func ApplyViperDefaults() {
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.request_timeout", 90*time.Second)
	viper.SetDefault("max_steps", 10)

	viper.SetDefault("canvas.store", "auto")
	viper.SetDefault("canvas.editor_max_steps", 8)
	viper.SetDefault("canvas.sqlite_dsn", "")

	viper.SetDefault("tools.web_timeout", 30*time.Second)
	viper.SetDefault("tools.research_timeout", 5*time.Minute)
	viper.SetDefault("tools.exa_base_url", "")
	viper.SetDefault("tools.perplexity_base_url", "")
	viper.SetDefault("tools.research_model", "")

	viper.SetDefault("slack.base_url", "https://slack.com/api")
	viper.SetDefault("slack.max_concurrency", 3)
	viper.SetDefault("slack.task_timeout", 10*time.Minute)
	viper.SetDefault("slack.history_limit", 30)
	viper.SetDefault("slack.max_message_chars", 39000)
	viper.SetDefault("slack.max_block_chars", 3000)

	viper.SetDefault("prompt.profile_path", "")
	viper.SetDefault("health.listen", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.max_string_value_chars", 200)
}
