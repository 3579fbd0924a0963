package slackcmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quailyquaily/threadbot/integration"
	"github.com/spf13/cobra"
)

type Dependencies struct {
	LoggerFromViper func() (*slog.Logger, error)
	NewRuntime      func(ctx context.Context, cfg integration.Config) (*integration.Runtime, error)
}

var deps Dependencies

func NewCommand(d Dependencies) *cobra.Command {
	deps = d
	return newSlackCmd()
}

func loggerFromViper() (*slog.Logger, error) {
	if deps.LoggerFromViper == nil {
		return nil, fmt.Errorf("LoggerFromViper dependency missing")
	}
	return deps.LoggerFromViper()
}

func newRuntime(ctx context.Context, cfg integration.Config) (*integration.Runtime, error) {
	if deps.NewRuntime == nil {
		return nil, fmt.Errorf("NewRuntime dependency missing")
	}
	return deps.NewRuntime(ctx, cfg)
}
