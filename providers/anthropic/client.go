// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/quailyquaily/threadbot/internal/llmconfig"
	"github.com/quailyquaily/threadbot/llm"
)

const (
	DefaultEndpoint  = "https://api.anthropic.com"
	DefaultMaxTokens = 4096

	jsonOnlyInstruction = "Respond with a single JSON object and nothing else."
)

type Client struct {
	api   anthropic.Client
	model anthropic.Model
}

func New(cfg llmconfig.ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := anthropic.Model(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	opts := []option.RequestOption{
		option.WithBaseURL(endpoint),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return &Client{api: anthropic.NewClient(opts...), model: model}, nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Result{}, err
	}
	started := time.Now()
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return llm.Result{}, fmt.Errorf("anthropic messages: %w", err)
	}
	out := llm.Result{
		Duration: time.Since(started),
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			call := llm.ToolCall{ID: b.ID, Name: b.Name, RawArguments: string(b.Input)}
			var args map[string]any
			if err := json.Unmarshal(b.Input, &args); err == nil {
				call.Arguments = args
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Text = text.String()
	return out, nil
}

func (c *Client) buildParams(req llm.Request) (anthropic.MessageNewParams, error) {
	model := c.model
	if m := strings.TrimSpace(req.Model); m != "" {
		model = anthropic.Model(m)
	}
	messages, system := toMessages(req.Messages)
	if req.ForceJSON {
		system = append(system, anthropic.TextBlockParam{Text: jsonOnlyInstruction})
	}
	params := anthropic.MessageNewParams{
		Model:     model,
		Messages:  messages,
		MaxTokens: DefaultMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if v, ok := req.Parameters["max_tokens"].(float64); ok && v > 0 {
		params.MaxTokens = int64(v)
	} else if v, ok := req.Parameters["max_tokens"].(int); ok && v > 0 {
		params.MaxTokens = int64(v)
	}
	if v, ok := req.Parameters["temperature"].(float64); ok {
		params.Temperature = anthropic.Float(v)
	}
	for _, t := range req.Tools {
		schema, err := inputSchema(t.Parameters)
		if err != nil {
			return params, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}
		params.Tools = append(params.Tools, tool)
	}
	return params, nil
}

// toMessages splits out system text and folds consecutive tool results into a
// single user turn, which is how the Messages API expects them.
func toMessages(msgs []llm.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var pending []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pending) > 0 {
			out = append(out, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case llm.RoleTool:
			pending = append(pending, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isErrorPayload(m.Content)))
		case llm.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, toolInput(tc), tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(" "))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return out, system
}

func toolInput(tc llm.ToolCall) any {
	if raw := strings.TrimSpace(tc.RawArguments); raw != "" && json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	if tc.Arguments != nil {
		return tc.Arguments
	}
	return map[string]any{}
}

func isErrorPayload(content string) bool {
	if !strings.HasPrefix(strings.TrimSpace(content), `{"error"`) {
		return false
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return false
	}
	_, ok := parsed["error"]
	return ok && len(parsed) == 1
}

func inputSchema(raw string) (anthropic.ToolInputSchemaParam, error) {
	var out anthropic.ToolInputSchemaParam
	raw = strings.TrimSpace(raw)
	if raw == "" {
		out.Properties = map[string]any{}
		return out, nil
	}
	var m struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return out, fmt.Errorf("parameter schema is not a JSON object: %w", err)
	}
	if m.Properties == nil {
		m.Properties = map[string]any{}
	}
	out.Properties = m.Properties
	out.Required = m.Required
	return out, nil
}
