package llmutil

import (
	"testing"

	"github.com/quailyquaily/threadbot/internal/llmconfig"
	"github.com/quailyquaily/threadbot/providers/anthropic"
	"github.com/quailyquaily/threadbot/providers/openai"
	"github.com/spf13/viper"
)

func TestClientFromConfigSelectsProvider(t *testing.T) {
	c, err := ClientFromConfig(llmconfig.ClientConfig{Provider: "anthropic", APIKey: "k"})
	if err != nil {
		t.Fatalf("ClientFromConfig() error = %v", err)
	}
	if _, ok := c.(*anthropic.Client); !ok {
		t.Fatalf("expected anthropic client, got %T", c)
	}
	c, err = ClientFromConfig(llmconfig.ClientConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("ClientFromConfig() error = %v", err)
	}
	if _, ok := c.(*openai.Client); !ok {
		t.Fatalf("expected openai client, got %T", c)
	}
	if _, err := ClientFromConfig(llmconfig.ClientConfig{Provider: "nope", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestProviderScopedKeysWin(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("llm.provider", "Anthropic")
	viper.Set("llm.model", "generic")
	viper.Set("llm.anthropic.model", "claude-x")
	viper.Set("llm.api_key", "shared")

	cfg := ClientConfigFromViper()
	if cfg.Provider != "anthropic" || cfg.Model != "claude-x" || cfg.APIKey != "shared" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}
