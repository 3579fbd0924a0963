// Package llm defines the provider-neutral chat contract consumed by the agent
// loop, the tools and the canvas editor.
package llm

import (
	"context"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall
	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	// RawArguments is the exact argument JSON the model produced.
	RawArguments string
}

// Tool is the declaration handed to the model; Parameters is a JSON Schema document.
type Tool struct {
	Name        string
	Description string
	Parameters  string
}

type Request struct {
	Model      string
	Messages   []Message
	Tools      []Tool
	ForceJSON  bool
	Parameters map[string]any
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	Duration  time.Duration
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Result, error)

func (f ClientFunc) Chat(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}
