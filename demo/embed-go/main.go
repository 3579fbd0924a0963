package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/integration"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/responder"
	"github.com/quailyquaily/threadbot/tools"
)

// OnCallTool is an example of a project-specific tool you provide to the
// assistant. It answers from a fixed rota for demo purposes.
type OnCallTool struct {
	Rota map[string]string
}

func (t *OnCallTool) Name() string { return "who_is_on_call" }

func (t *OnCallTool) Description() string {
	return "Returns the engineer currently on call for a team."
}

func (t *OnCallTool) ParameterSchema() string {
	return `{
  "type": "object",
  "properties": {
    "team": {"type": "string", "description": "Team name, e.g. payments."}
  },
  "required": ["team"]
}`
}

func (t *OnCallTool) Execute(_ context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	team := strings.ToLower(tools.ParamString(params, "team"))
	rt.Report("is checking the on-call rota...")
	who, ok := t.Rota[team]
	if !ok {
		return tools.Errorf("no rota for team %q", team)
	}
	return tools.OK(map[string]any{"team": team, "on_call": who})
}

func main() {
	var (
		question       = flag.String("q", "Who is on call for payments, and what changed in Go 1.24?", "Question to ask.")
		model          = flag.String("model", "gpt-5.2", "Model name.")
		endpoint       = flag.String("endpoint", "https://api.openai.com/v1", "OpenAI-compatible base URL.")
		apiKey         = flag.String("api-key", os.Getenv("OPENAI_API_KEY"), "API key (defaults to OPENAI_API_KEY).")
		inspectRequest = flag.Bool("inspect-request", false, "Dump request/response payloads to ./dump.")
	)
	flag.Parse()

	cfg := integration.DefaultConfig()
	cfg.Inspect.Request = *inspectRequest
	cfg.Inspect.Mode = "embed"
	cfg.BuiltinToolNames = []string{"web_search", "web_scrape"}
	cfg.Set("llm.provider", "openai")
	cfg.Set("llm.endpoint", strings.TrimSpace(*endpoint))
	cfg.Set("llm.api_key", strings.TrimSpace(*apiKey))
	cfg.Set("llm.model", strings.TrimSpace(*model))
	cfg.Set("llm.request_timeout", 60*time.Second)
	cfg.Set("canvas.store", "none")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	rt, err := integration.New(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Registry.Register(&OnCallTool{Rota: map[string]string{"payments": "Sam", "search": "Ari"}}); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	reply, err := rt.Responder.GenerateResponse(ctx, []llm.Message{{Role: llm.RoleUser, Content: *question}}, responder.Options{
		Status: tools.StatusFunc(func(text string) { fmt.Fprintf(os.Stderr, "… %s\n", text) }),
		UserID: "embed-demo",
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	fmt.Println(reply)
}
