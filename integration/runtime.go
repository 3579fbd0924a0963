package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/threadbot/agent"
	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/canvas/editor"
	"github.com/quailyquaily/threadbot/canvas/slackstore"
	"github.com/quailyquaily/threadbot/canvas/sqlstore"
	"github.com/quailyquaily/threadbot/db"
	"github.com/quailyquaily/threadbot/internal/llminspect"
	"github.com/quailyquaily/threadbot/internal/llmutil"
	"github.com/quailyquaily/threadbot/internal/logutil"
	"github.com/quailyquaily/threadbot/internal/promptprofile"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/responder"
	"github.com/quailyquaily/threadbot/tools"
	"github.com/quailyquaily/threadbot/tools/builtin"
	"github.com/spf13/viper"
)

// Runtime is the assembled assistant. Close releases the store and any dump
// files.
type Runtime struct {
	Logger     *slog.Logger
	LogOptions agent.LogOptions
	Client     llm.Client
	Model      string

	// Store is nil when canvas.store is "none".
	Store     canvas.Store
	Editor    *editor.Editor
	Registry  *tools.Registry
	Responder *responder.Responder

	closers []func() error
}

func New(ctx context.Context, cfg Config) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ApplyViperDefaults()
	for k, v := range cfg.Overrides {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		viper.Set(key, v)
	}

	rt := &Runtime{Logger: cfg.Logger}
	if rt.Logger == nil {
		logger, err := logutil.LoggerFromViper()
		if err != nil {
			return nil, err
		}
		rt.Logger = logger
	}
	rt.LogOptions = logutil.LogOptionsFromViper()

	clientCfg := llmutil.ClientConfigFromViper()
	client, err := llmutil.ClientFromConfig(clientCfg)
	if err != nil {
		return nil, err
	}
	rt.Model = clientCfg.Model
	if cfg.Inspect.Request {
		inspector, err := llminspect.NewRequestInspector(llminspect.Options{
			Mode:    strings.TrimSpace(cfg.Inspect.Mode),
			DumpDir: strings.TrimSpace(cfg.Inspect.DumpDir),
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, inspector.Close)
		rt.Logger.Info("inspect_request_enabled", "path", inspector.Path())
		client = inspector.Wrap(client)
	}
	rt.Client = client

	store, err := rt.openStore(ctx, cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Store = store
	if store != nil {
		rt.Editor = editor.New(store, client, editor.Options{
			Model:      rt.Model,
			MaxSteps:   viper.GetInt("canvas.editor_max_steps"),
			Logger:     rt.Logger,
			LogOptions: &rt.LogOptions,
		})
	}

	reg := tools.NewRegistry()
	if err := builtin.Register(reg, builtin.Deps{
		HTTP:              cfg.HTTPClient,
		LLM:               client,
		Model:             rt.Model,
		Store:             store,
		Editor:            rt.Editor,
		Logger:            rt.Logger,
		WebTimeout:        viper.GetDuration("tools.web_timeout"),
		ResearchTimeout:   viper.GetDuration("tools.research_timeout"),
		ExaBaseURL:        viper.GetString("tools.exa_base_url"),
		PerplexityBaseURL: viper.GetString("tools.perplexity_base_url"),
		ResearchModel:     viper.GetString("tools.research_model"),
	}); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Registry = selectTools(reg, cfg.BuiltinToolNames)

	respCfg := responder.Config{
		Model:      rt.Model,
		MaxSteps:   viper.GetInt("max_steps"),
		ExtraRules: viper.GetStringSlice("prompt.extra_rules"),
		MemoTools:  builtin.MemoizableTools,
		Logger:     rt.Logger,
		LogOptions: &rt.LogOptions,
	}
	promptprofile.Apply(&respCfg, viper.GetString("prompt.profile_path"), rt.Logger)
	rt.Responder = responder.New(client, rt.Registry, respCfg)

	names := make([]string, 0, rt.Registry.Len())
	for _, t := range rt.Registry.All() {
		names = append(names, t.Name())
	}
	rt.Logger.Info("runtime_ready", "provider", clientCfg.Provider, "model", rt.Model, "canvas_store", storeKind(store), "tools", names)
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg Config) (canvas.Store, error) {
	kind := strings.ToLower(strings.TrimSpace(viper.GetString("canvas.store")))
	if kind == "" || kind == "auto" {
		kind = "sqlite"
		if cfg.Slack != nil {
			kind = "slack"
		}
	}
	switch kind {
	case "none", "off":
		return nil, nil
	case "slack":
		if cfg.Slack == nil {
			return nil, fmt.Errorf("canvas.store=slack requires a Slack client (set slack.bot_token)")
		}
		return slackstore.New(cfg.Slack), nil
	case "sqlite":
		dbCfg := db.DefaultConfig()
		dbCfg.DSN = viper.GetString("canvas.sqlite_dsn")
		gdb, err := db.Open(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("open canvas database: %w", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			rt.closers = append(rt.closers, sqlDB.Close)
		}
		return sqlstore.New(gdb), nil
	default:
		return nil, fmt.Errorf("unknown canvas.store %q (want auto, slack, sqlite or none)", kind)
	}
}

// selectTools keeps the registry's order and drops tools not named. Unknown
// names are ignored.
func selectTools(reg *tools.Registry, names []string) *tools.Registry {
	if len(names) == 0 {
		return reg
	}
	want := map[string]bool{}
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			want[n] = true
		}
	}
	keep := make([]string, 0, len(want))
	for _, t := range reg.All() {
		if want[strings.ToLower(t.Name())] {
			keep = append(keep, t.Name())
		}
	}
	return reg.Subset(keep...)
}

func storeKind(s canvas.Store) string {
	switch s.(type) {
	case nil:
		return "none"
	case *slackstore.Store:
		return "slack"
	case *sqlstore.Store:
		return "sqlite"
	default:
		return fmt.Sprintf("%T", s)
	}
}

func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	rt.closers = nil
	return firstErr
}
