// Package responder turns a Slack thread transcript into the assistant's reply.
// It wraps one agent.Engine with the full tool roster, the assistant persona and
// Slack formatting rules.
package responder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/agent"
	"github.com/quailyquaily/threadbot/internal/llminspect"
	"github.com/quailyquaily/threadbot/internal/outputfmt"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
)

const (
	StatusThinking  = "is thinking..."
	StatusAnalyzing = "is analyzing results..."

	DefaultPersona = "You are a helpful assistant in a Slack workspace. You answer questions in threads, research the web when current information is needed, and read, create and edit Slack canvases for the team."

	exhaustedFallback = "I ran out of steps before finishing this one. Could you narrow the request or ask me to continue?"
)

type Config struct {
	Model      string
	MaxSteps   int
	Persona    string
	ExtraRules []string
	// MemoTools lists read-only tools whose identical calls share a result
	// within one response.
	MemoTools  []string
	Parameters map[string]any
	Now        func() time.Time
	Logger     *slog.Logger
	LogOptions *agent.LogOptions
}

// Options carries the per-request context handed to every tool.
type Options struct {
	Status    tools.StatusReporter
	ChannelID string
	ThreadTS  string
	UserID    string
}

type Responder struct {
	client   llm.Client
	registry *tools.Registry
	cfg      Config
	log      *slog.Logger
}

func New(client llm.Client, registry *tools.Registry, cfg Config) *Responder {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = agent.DefaultMaxSteps
	}
	if strings.TrimSpace(cfg.Persona) == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Responder{client: client, registry: registry, cfg: cfg, log: log}
}

// GenerateResponse answers the last message of a chronological transcript and
// returns Slack mrkdwn text. Model failures are returned wrapped; tool failures
// are handled inside the loop.
func (r *Responder) GenerateResponse(ctx context.Context, messages []llm.Message, opts Options) (string, error) {
	rt := tools.Runtime{
		Status:    opts.Status,
		ChannelID: opts.ChannelID,
		ThreadTS:  opts.ThreadTS,
		UserID:    opts.UserID,
	}
	rt.Report(StatusThinking)

	bound := r.registry.Bind(rt)
	system := agent.BuildSystemPrompt(r.promptSpec(), bound.Declarations())

	log := r.log.With("channel_id", opts.ChannelID, "thread_ts", opts.ThreadTS)
	engOpts := []agent.Option{
		agent.WithLogger(log),
		agent.WithMemoTools(r.cfg.MemoTools...),
		agent.WithOnStep(func(context.Context, agent.StepInfo) {
			rt.Report(StatusAnalyzing)
		}),
	}
	if r.cfg.LogOptions != nil {
		engOpts = append(engOpts, agent.WithLogOptions(*r.cfg.LogOptions))
	}
	eng := agent.New(r.client, agent.Config{
		MaxSteps:   r.cfg.MaxSteps,
		Model:      r.cfg.Model,
		Parameters: r.cfg.Parameters,
	}, engOpts...)

	final, err := eng.Run(llminspect.WithModelScene(ctx, "responder"), system, messages, bound)
	if err != nil {
		return "", err
	}
	out := outputfmt.FormatFinalOutput(final.Output)
	if final.Exhausted {
		log.Warn("responder_step_budget_exhausted", "steps", final.Steps, "has_text", out != "")
		if out == "" {
			out = exhaustedFallback
		}
	}
	return out, nil
}

func (r *Responder) promptSpec() agent.PromptSpec {
	spec := agent.PromptSpec{Identity: strings.TrimSpace(r.cfg.Persona)}
	spec = spec.WithBlock(agent.PromptBlock{
		Title:   "Current Date",
		Content: r.cfg.Now().UTC().Format("Monday, January 2, 2006") + " (UTC)",
	})
	spec = spec.WithBlock(agent.PromptBlock{Title: "Slack Formatting", Content: slackFormatting})
	return spec.WithRules(append(append([]string{}, baseRules...), r.cfg.ExtraRules...)...)
}

const slackFormatting = `Replies are rendered as Slack mrkdwn:
- bold is *text*, italic is _text_, strikethrough is ~text~
- links are <https://example.com|label>
- use - for bullet lists; there are no headings or tables, use a bold line instead
- code uses backticks and triple-backtick fences`

var baseRules = []string{
	"Answer directly. Keep replies short unless the user asks for detail.",
	"Use `web_search` for recent or factual information you are not sure about, and cite the URLs you used.",
	"Use `deep_research` only when the user explicitly wants thorough research; it is slow.",
	"When the user refers to a canvas without an id, call `list_canvases` first.",
	"For canvas changes, pass the user's request to `edit_canvas` as a clear instruction instead of rewriting the whole canvas.",
	"If a tool fails, say what went wrong and continue with what you have.",
}
