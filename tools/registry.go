package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/quailyquaily/threadbot/llm"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry maps tool names to tools. It is built once per process and shared
// across requests; per-request context is attached with Bind.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds t, replacing any tool with the same name. The parameter schema is
// compiled up front so that a broken schema is reported at startup.
func (r *Registry) Register(t Tool) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	schema, err := compileSchema(name, t.ParameterSchema())
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = entry{tool: t, schema: schema}
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.TrimSpace(name)]
	return e.tool, ok
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Subset returns a new registry holding only the named tools that exist in r.
func (r *Registry) Subset(names ...string) *Registry {
	out := NewRegistry()
	if r == nil {
		return out
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		e, ok := r.entries[name]
		if !ok {
			continue
		}
		if _, dup := out.entries[name]; dup {
			continue
		}
		out.order = append(out.order, name)
		out.entries[name] = e
	}
	return out
}

// Declarations renders the registry for the model.
func (r *Registry) Declarations() []llm.Tool {
	all := r.All()
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		out = append(out, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return out
}

// Bind attaches rt to every tool without touching the shared registry.
func (r *Registry) Bind(rt Runtime) *Bound {
	if rt.Status == nil {
		rt.Status = NopReporter
	}
	return &Bound{reg: r, rt: rt}
}

// Bound is a registry view with a fixed Runtime.
type Bound struct {
	reg *Registry
	rt  Runtime
}

func (b *Bound) Runtime() Runtime {
	if b == nil {
		return Runtime{Status: NopReporter}
	}
	return b.rt
}

func (b *Bound) Declarations() []llm.Tool {
	if b == nil {
		return nil
	}
	return b.reg.Declarations()
}

// Call validates the call's arguments and runs the tool. Unknown tools, schema
// violations and panics all come back as error results.
func (b *Bound) Call(ctx context.Context, call llm.ToolCall) (res Result) {
	if b == nil || b.reg == nil {
		return Errorf("no tools are available")
	}
	name := strings.TrimSpace(call.Name)
	b.reg.mu.RLock()
	e, ok := b.reg.entries[name]
	b.reg.mu.RUnlock()
	if !ok {
		return Errorf("unknown tool: %s", name)
	}

	params, err := decodeArguments(call)
	if err != nil {
		return Errorf("invalid arguments for %s: %s", name, err.Error())
	}
	if e.schema != nil {
		if err := e.schema.Validate(params); err != nil {
			return Errorf("invalid arguments for %s: %s", name, validationMessage(err))
		}
	}

	defer func() {
		if p := recover(); p != nil {
			res = Errorf("tool %s panicked: %v", name, p)
		}
	}()
	return e.tool.Execute(ctx, params, b.rt)
}

func decodeArguments(call llm.ToolCall) (map[string]any, error) {
	raw := strings.TrimSpace(call.RawArguments)
	if raw == "" {
		if call.Arguments != nil {
			// round-trip so numbers and nested values match what a model would send
			b, err := json.Marshal(call.Arguments)
			if err != nil {
				return nil, err
			}
			raw = string(b)
		} else {
			raw = "{}"
		}
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object")
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
