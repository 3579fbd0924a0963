// Package agent runs a bounded tool-calling loop against an llm.Client. The same
// Engine type drives the Slack responder and the canvas editing sub-agent; each
// instantiation differs only in its tool subset, step budget and instructions.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxSteps = 10

type Config struct {
	MaxSteps   int
	Model      string
	Parameters map[string]any
}

// StepInfo describes a finished step that dispatched at least one tool call.
type StepInfo struct {
	Index     int
	ToolCalls []llm.ToolCall
	Results   []tools.Result
}

// Final is the outcome of one run. Exhausted is set when the step budget ran out
// before the model stopped requesting tools; Output then holds the last text the
// model produced, and the tool calls of that last step were not run.
type Final struct {
	Output    string
	Exhausted bool
	Steps     int
	Usage     llm.Usage
	Messages  []llm.Message
}

type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithLogOptions(opts LogOptions) Option {
	return func(e *Engine) {
		e.logOpts = opts
	}
}

// WithOnStep registers a hook that runs after every step that produced tool
// results, before the next model call.
func WithOnStep(fn func(ctx context.Context, info StepInfo)) Option {
	return func(e *Engine) {
		e.onStep = fn
	}
}

// WithMemoTools lets successful results of the named read-only tools be reused
// when the model repeats an identical call later in the same run.
func WithMemoTools(names ...string) Option {
	return func(e *Engine) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				e.memo[n] = true
			}
		}
	}
}

type Engine struct {
	client  llm.Client
	cfg     Config
	log     *slog.Logger
	logOpts LogOptions
	onStep  func(ctx context.Context, info StepInfo)
	memo    map[string]bool
}

func New(client llm.Client, cfg Config, opts ...Option) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	e := &Engine{
		client:  client,
		cfg:     cfg,
		log:     slog.Default(),
		logOpts: DefaultLogOptions(),
		memo:    map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Engine) MaxSteps() int { return e.cfg.MaxSteps }

// Run drives the loop: each step asks the model for its next move; a reply with
// no tool calls ends the run, otherwise every requested call is dispatched
// concurrently and the results are appended in call order. The caller's slice is
// never modified. Errors from the model are returned wrapped; tool failures are
// fed back to the model as data.
func (e *Engine) Run(ctx context.Context, system string, transcript []llm.Message, toolset *tools.Bound) (*Final, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("agent: llm client is not configured")
	}
	runID := uuid.NewString()
	log := e.log.With("run_id", runID, "model", e.cfg.Model)

	messages := make([]llm.Message, 0, len(transcript)+1+2*e.cfg.MaxSteps)
	if s := strings.TrimSpace(system); s != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s})
	}
	messages = append(messages, transcript...)

	decls := toolset.Declarations()
	cache := newCallMemo(e.memo)
	final := &Final{}
	started := time.Now()
	log.Info("agent_run_start", "max_steps", e.cfg.MaxSteps, "tools", len(decls), "messages", len(transcript))

	for step := 1; step <= e.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("agent step %d: %w", step, err)
		}
		res, err := e.client.Chat(ctx, llm.Request{
			Model:      e.cfg.Model,
			Messages:   messages,
			Tools:      decls,
			Parameters: e.cfg.Parameters,
		})
		if err != nil {
			log.Error("agent_llm_error", "step", step, "error", err.Error())
			return nil, fmt.Errorf("agent step %d: %w", step, err)
		}
		final.Steps = step
		final.Usage = final.Usage.Add(res.Usage)
		final.Output = res.Text
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   res.Text,
			ToolCalls: res.ToolCalls,
		})

		if len(res.ToolCalls) == 0 {
			log.Info("agent_run_done", "steps", step, "duration_ms", time.Since(started).Milliseconds(), "total_tokens", final.Usage.TotalTokens)
			final.Messages = messages
			return final, nil
		}

		if step == e.cfg.MaxSteps {
			// No model call follows, so results of this step would go unread.
			log.Info("agent_final_step_calls_skipped", "step", step, "tool_calls", len(res.ToolCalls))
			break
		}

		results := e.dispatch(ctx, log, step, res.ToolCalls, toolset, cache)
		for i, call := range res.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    results[i].JSON(),
				ToolCallID: call.ID,
			})
		}
		if e.onStep != nil {
			e.onStep(ctx, StepInfo{Index: step, ToolCalls: res.ToolCalls, Results: results})
		}
	}

	final.Exhausted = true
	final.Messages = messages
	log.Warn("agent_step_budget_exhausted", "steps", final.Steps, "duration_ms", time.Since(started).Milliseconds())
	return final, nil
}

// dispatch runs all calls of one step concurrently and returns results indexed
// like calls. Tool failures never cancel siblings.
func (e *Engine) dispatch(ctx context.Context, log *slog.Logger, step int, calls []llm.ToolCall, toolset *tools.Bound, cache *callMemo) []tools.Result {
	results := make([]tools.Result, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			started := time.Now()
			res, reused := cache.do(call, func() tools.Result {
				return toolset.Call(ctx, call)
			})
			results[i] = res
			attrs := []any{
				"step", step,
				"tool", call.Name,
				"duration_ms", time.Since(started).Milliseconds(),
				"reused", reused,
			}
			if summary := toolArgsSummary(call.Name, call.Arguments, e.logOpts); summary != nil {
				attrs = append(attrs, "args", summary)
			}
			if res.IsError() {
				attrs = append(attrs, "error", truncateString(res.Err, e.logOpts.MaxStringValueChars))
				log.Warn("tool_call_failed", attrs...)
			} else {
				log.Info("tool_call_done", attrs...)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type callMemo struct {
	tools   map[string]bool
	mu      sync.Mutex
	results map[string]tools.Result
}

func newCallMemo(names map[string]bool) *callMemo {
	return &callMemo{tools: names, results: map[string]tools.Result{}}
}

// do returns a stored result for an identical earlier call of a memoized tool,
// or runs fn and stores its result when it succeeded.
func (m *callMemo) do(call llm.ToolCall, fn func() tools.Result) (tools.Result, bool) {
	if m == nil || !m.tools[strings.TrimSpace(call.Name)] {
		return fn(), false
	}
	key, ok := callKey(call)
	if !ok {
		return fn(), false
	}
	m.mu.Lock()
	res, hit := m.results[key]
	m.mu.Unlock()
	if hit {
		return res, true
	}
	res = fn()
	if !res.IsError() {
		m.mu.Lock()
		m.results[key] = res
		m.mu.Unlock()
	}
	return res, false
}
