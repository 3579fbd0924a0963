// Package llminspect records model requests and responses to a markdown file
// for offline debugging.
package llminspect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/threadbot/llm"
)

const defaultModelScene = "unspecified"

type sceneKey struct{}

// WithModelScene tags ctx with the component that is about to call the model,
// e.g. "responder.main" or "canvas.editor".
func WithModelScene(ctx context.Context, scene string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return ctx
	}
	return context.WithValue(ctx, sceneKey{}, scene)
}

func ModelSceneFromContext(ctx context.Context) string {
	if ctx == nil {
		return defaultModelScene
	}
	if s, ok := ctx.Value(sceneKey{}).(string); ok && s != "" {
		return s
	}
	return defaultModelScene
}

type Options struct {
	Mode    string
	DumpDir string
	Now     func() time.Time
}

type RequestInspector struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	seq   int
	now   func() time.Time
	close sync.Once
}

func NewRequestInspector(opts Options) (*RequestInspector, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	dir := strings.TrimSpace(opts.DumpDir)
	if dir == "" {
		dir = "dump"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	mode := strings.TrimSpace(opts.Mode)
	if mode == "" {
		mode = "run"
	}
	name := fmt.Sprintf("%s_requests_%s.md", mode, now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dump file: %w", err)
	}
	return &RequestInspector{file: f, path: path, now: now}, nil
}

func (i *RequestInspector) Path() string { return i.path }

func (i *RequestInspector) Close() error {
	var err error
	i.close.Do(func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		err = i.file.Close()
	})
	return err
}

// Wrap returns a client that records every exchange before returning it.
func (i *RequestInspector) Wrap(next llm.Client) llm.Client {
	if i == nil || next == nil {
		return next
	}
	return llm.ClientFunc(func(ctx context.Context, req llm.Request) (llm.Result, error) {
		res, err := next.Chat(ctx, req)
		i.record(ModelSceneFromContext(ctx), req, res, err)
		return res, err
	})
}

func (i *RequestInspector) record(scene string, req llm.Request, res llm.Result, callErr error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++

	var b strings.Builder
	fmt.Fprintf(&b, "## Request #%d\n\n", i.seq)
	fmt.Fprintf(&b, "- time: %s\n- scene: %s\n- model: %s\n- tools: %d\n- force_json: %t\n\n",
		i.now().UTC().Format(time.RFC3339), scene, req.Model, len(req.Tools), req.ForceJSON)
	for idx, m := range req.Messages {
		fmt.Fprintf(&b, "### [%d] %s", idx, m.Role)
		if m.ToolCallID != "" {
			fmt.Fprintf(&b, " (tool_call_id=%s)", m.ToolCallID)
		}
		b.WriteString("\n\n")
		writeFenced(&b, m.Content)
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&b, "- tool_call %s %s %s\n", tc.ID, tc.Name, tc.RawArguments)
		}
		b.WriteString("\n")
	}
	b.WriteString("### Response\n\n")
	if callErr != nil {
		fmt.Fprintf(&b, "error: %s\n\n", callErr.Error())
	} else {
		writeFenced(&b, res.Text)
		for _, tc := range res.ToolCalls {
			fmt.Fprintf(&b, "- tool_call %s %s %s\n", tc.ID, tc.Name, tc.RawArguments)
		}
		fmt.Fprintf(&b, "\nusage: in=%d out=%d total=%d duration=%s\n\n",
			res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalTokens, res.Duration)
	}
	_, _ = i.file.WriteString(b.String())
}

func writeFenced(b *strings.Builder, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.WriteString("```text\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")
}
