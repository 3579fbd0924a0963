package llmutil

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/threadbot/internal/llmconfig"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/providers/anthropic"
	"github.com/quailyquaily/threadbot/providers/openai"
	"github.com/spf13/viper"
)

const defaultMaxRetries = 2

func ClientFromConfig(cfg llmconfig.ClientConfig) (llm.Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai", "openai_compatible":
		return openai.New(cfg)
	case "anthropic":
		return anthropic.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

func ProviderFromViper() string {
	p := strings.ToLower(strings.TrimSpace(viper.GetString("llm.provider")))
	if p == "" {
		return "openai"
	}
	return p
}

// EndpointForProvider prefers llm.<provider>.endpoint over llm.endpoint.
func EndpointForProvider(provider string) string {
	return providerScoped(provider, "endpoint")
}

func APIKeyForProvider(provider string) string {
	return providerScoped(provider, "api_key")
}

func ModelForProvider(provider string) string {
	return providerScoped(provider, "model")
}

func ClientConfigFromViper() llmconfig.ClientConfig {
	provider := ProviderFromViper()
	return llmconfig.ClientConfig{
		Provider:       provider,
		Endpoint:       EndpointForProvider(provider),
		APIKey:         APIKeyForProvider(provider),
		Model:          ModelForProvider(provider),
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
	}
}

func providerScoped(provider, key string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != "" {
		if v := strings.TrimSpace(viper.GetString("llm." + provider + "." + key)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(viper.GetString("llm." + key))
}
