package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quailyquaily/threadbot/cmd/threadbot/slackcmd"
	"github.com/quailyquaily/threadbot/integration"
	"github.com/quailyquaily/threadbot/internal/logutil"
	"github.com/quailyquaily/threadbot/internal/slackapi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "threadbot",
		Short:         "A Slack assistant that researches the web and edits canvases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML). Defaults to ./config.yaml or ~/.threadbot/config.yaml when present.")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error.")
	cmd.PersistentFlags().String("log-format", "", "Log format: text|json.")
	cmd.PersistentFlags().String("provider", "", "LLM provider: openai|anthropic.")
	cmd.PersistentFlags().String("model", "", "LLM model.")
	cmd.PersistentFlags().String("canvas-store", "", "Canvas store: auto|slack|sqlite|none.")
	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("llm.provider", cmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("llm.model", cmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("canvas.store", cmd.PersistentFlags().Lookup("canvas-store"))

	cmd.AddCommand(
		slackcmd.NewCommand(slackcmd.Dependencies{
			LoggerFromViper: logutil.LoggerFromViper,
			NewRuntime:      integration.New,
		}),
		newChatCmd(),
		newCanvasCmd(),
	)
	return cmd
}

func initConfig(path string) error {
	integration.ApplyViperDefaults()
	viper.SetEnvPrefix("THREADBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.threadbot")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// newRuntime builds the assistant for the local commands and makes its logger
// the process default. A configured slack.bot_token gives the canvas tools
// access to Slack canvases.
func newRuntime(cmd *cobra.Command, inspect bool, mode string) (*integration.Runtime, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	cfg := integration.Config{
		Logger:  logger,
		Inspect: integration.InspectOptions{Request: inspect, Mode: mode},
	}
	if token := strings.TrimSpace(viper.GetString("slack.bot_token")); token != "" {
		cfg.Slack = slackapi.New(nil, viper.GetString("slack.base_url"), token, "")
	}
	return integration.New(cmd.Context(), cfg)
}
