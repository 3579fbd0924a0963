// Package builtin holds the assistant's tool roster: web research tools backed
// by Exa, direct page fetches and Perplexity, plus canvas tools backed by a
// canvas.Store.
package builtin

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/canvas/editor"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
)

const (
	DefaultWebTimeout      = 30 * time.Second
	DefaultResearchTimeout = 5 * time.Minute

	ExaAPIKeyEnv        = "EXA_API_KEY"
	PerplexityAPIKeyEnv = "PERPLEXITY_API_KEY"
)

// Deps carries the collaborators shared by the builtin tools. Zero values fall
// back to defaults; tools whose collaborator is missing are not registered.
type Deps struct {
	HTTP   *http.Client
	LLM    llm.Client
	Model  string
	Store  canvas.Store
	Editor *editor.Editor
	Logger *slog.Logger

	WebTimeout        time.Duration
	ResearchTimeout   time.Duration
	ExaBaseURL        string
	PerplexityBaseURL string
	ResearchModel     string

	// Getenv reads credentials at call time. Defaults to os.Getenv.
	Getenv func(string) string
}

func (d Deps) withDefaults() Deps {
	if d.HTTP == nil {
		d.HTTP = &http.Client{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.WebTimeout <= 0 {
		d.WebTimeout = DefaultWebTimeout
	}
	if d.ResearchTimeout <= 0 {
		d.ResearchTimeout = DefaultResearchTimeout
	}
	if strings.TrimSpace(d.ExaBaseURL) == "" {
		d.ExaBaseURL = DefaultExaBaseURL
	}
	if strings.TrimSpace(d.PerplexityBaseURL) == "" {
		d.PerplexityBaseURL = DefaultPerplexityBaseURL
	}
	if strings.TrimSpace(d.ResearchModel) == "" {
		d.ResearchModel = DefaultResearchModel
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	return d
}

func (d Deps) credential(name string) (string, error) {
	v := strings.TrimSpace(d.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", tools.ErrMissingCredential, name)
	}
	return v, nil
}

// Register adds every tool the deps can support to reg.
func Register(reg *tools.Registry, deps Deps) error {
	deps = deps.withDefaults()
	roster := []tools.Tool{
		NewWebSearchTool(deps),
		NewWebScrapeTool(deps),
		NewDeepResearchTool(deps),
	}
	if deps.Store != nil {
		roster = append(roster,
			NewListCanvasesTool(deps.Store),
			NewCreateCanvasTool(deps.Store),
			NewReadCanvasTool(deps.Store),
		)
		if deps.Editor != nil {
			roster = append(roster, NewEditCanvasTool(deps.Editor))
		}
	}
	for _, t := range roster {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// MemoizableTools names the read-only tools whose identical calls may share a
// result within one run.
var MemoizableTools = []string{"web_search", "web_scrape", "deep_research"}

func clip(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
