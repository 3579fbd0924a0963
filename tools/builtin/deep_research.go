package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/quailyquaily/threadbot/internal/urlutil"
	"github.com/quailyquaily/threadbot/tools"
)

const (
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultResearchModel     = "sonar-deep-research"
)

// reasoning models prefix their answer with a <think> block
var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

type DeepResearchTool struct {
	deps Deps
}

func NewDeepResearchTool(deps Deps) *DeepResearchTool {
	return &DeepResearchTool{deps: deps.withDefaults()}
}

func (t *DeepResearchTool) Name() string { return "deep_research" }

func (t *DeepResearchTool) Description() string {
	return "Runs an in-depth, multi-source research task on a topic and returns a cited report. Slow (minutes); use only when the user wants thorough research."
}

func (t *DeepResearchTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "topic": { "type": "string", "description": "The research question or topic." },
    "instructions": { "type": "string", "description": "Optional focus, scope or format requirements." }
  },
  "required": ["topic"]
}`
}

type citation struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type researchReport struct {
	Topic     string     `json:"topic"`
	Report    string     `json:"report"`
	Citations []citation `json:"citations,omitempty"`
	Sources   []citation `json:"sources,omitempty"`
}

func (t *DeepResearchTool) Execute(ctx context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	topic := tools.ParamString(params, "topic")
	if topic == "" {
		return tools.Errorf("topic is required")
	}
	apiKey, err := t.deps.credential(PerplexityAPIKeyEnv)
	if err != nil {
		return tools.FromError(err)
	}

	rt.Report("is researching " + clip(topic, 60) + " (this can take a few minutes)...")
	content, raw, err := t.research(ctx, apiKey, topic, tools.ParamString(params, "instructions"))
	if err != nil {
		return tools.Errorf("deep research failed: %s", err.Error())
	}

	rt.Report("is compiling the research report...")
	return tools.OK(t.compile(topic, content, raw))
}

func (t *DeepResearchTool) research(ctx context.Context, apiKey, topic, instructions string) (string, string, error) {
	client := openai.NewClient(
		option.WithBaseURL(t.deps.PerplexityBaseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(t.deps.HTTP),
		option.WithRequestTimeout(t.deps.ResearchTimeout),
		option.WithMaxRetries(1),
	)
	prompt := topic
	if instructions != "" {
		prompt += "\n\nInstructions: " + instructions
	}
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.deps.ResearchModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a meticulous research analyst. Write a well-structured report in markdown and cite sources with bracketed numbers like [1]."),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", "", err
	}
	if len(completion.Choices) == 0 {
		return "", "", fmt.Errorf("no choices returned")
	}
	return completion.Choices[0].Message.Content, completion.RawJSON(), nil
}

// compile strips reasoning and attaches the citation list and the deduplicated
// search results Perplexity returns next to the standard completion fields.
func (t *DeepResearchTool) compile(topic, content, raw string) researchReport {
	report := researchReport{
		Topic:  topic,
		Report: strings.TrimSpace(thinkBlockPattern.ReplaceAllString(content, "")),
	}
	var extra struct {
		Citations     []string `json:"citations"`
		SearchResults []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"search_results"`
	}
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		t.deps.Logger.Warn("deep_research_extras_invalid", "error", err.Error())
		return report
	}
	for i, u := range extra.Citations {
		report.Citations = append(report.Citations, citation{Index: i + 1, URL: u})
	}
	var sources []citation
	for _, r := range extra.SearchResults {
		sources = append(sources, citation{URL: r.URL, Title: r.Title})
	}
	report.Sources = urlutil.Dedupe(sources, func(c citation) string { return c.URL }, nil)
	for i := range report.Sources {
		report.Sources[i].Index = i + 1
	}
	return report
}
