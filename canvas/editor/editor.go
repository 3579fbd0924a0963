// Package editor is the canvas editing sub-agent. It runs a nested agent loop
// restricted to two tools, lookup_sections and batch_edit, and refuses to send
// the store any section id that was not resolved by a lookup first.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/quailyquaily/threadbot/agent"
	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/internal/diff"
	"github.com/quailyquaily/threadbot/internal/llminspect"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
)

const (
	DefaultMaxSteps  = 8
	diffPreviewLines = 40
	snapshotMaxChars = 12000
)

type Options struct {
	Model      string
	MaxSteps   int
	Logger     *slog.Logger
	LogOptions *agent.LogOptions
}

type Editor struct {
	store  canvas.Store
	client llm.Client
	opts   Options
	log    *slog.Logger
}

func New(store canvas.Store, client llm.Client, opts Options) *Editor {
	if opts.MaxSteps <= 0 || opts.MaxSteps > DefaultMaxSteps {
		opts.MaxSteps = DefaultMaxSteps
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Editor{store: store, client: client, opts: opts, log: log}
}

// Outcome reports what an edit session did. Incomplete is set when the step
// budget ran out; the changes listed were still applied.
type Outcome struct {
	CanvasID   string          `json:"canvas_id"`
	Summary    string          `json:"summary"`
	Applied    []canvas.Change `json:"applied_changes"`
	Added      int             `json:"lines_added"`
	Removed    int             `json:"lines_removed"`
	Diff       string          `json:"diff"`
	Incomplete bool            `json:"incomplete,omitempty"`
}

func (e *Editor) Edit(ctx context.Context, canvasID, instruction string, rt tools.Runtime) (Outcome, error) {
	canvasID = strings.TrimSpace(canvasID)
	instruction = strings.TrimSpace(instruction)
	if canvasID == "" {
		return Outcome{}, fmt.Errorf("canvas_id is required")
	}
	if instruction == "" {
		return Outcome{}, fmt.Errorf("instruction is required")
	}
	if e == nil || e.store == nil || e.client == nil {
		return Outcome{}, fmt.Errorf("canvas editor is not configured")
	}

	before, err := e.store.Read(ctx, canvasID)
	if err != nil {
		return Outcome{}, fmt.Errorf("read canvas: %w", err)
	}

	sess := &session{canvasID: canvasID, store: e.store, resolved: map[string]bool{}, pending: map[string]bool{}}
	reg := tools.NewRegistry()
	if err := reg.Register(&lookupTool{s: sess}); err != nil {
		return Outcome{}, err
	}
	if err := reg.Register(&batchEditTool{s: sess}); err != nil {
		return Outcome{}, err
	}

	engOpts := []agent.Option{
		agent.WithLogger(e.log.With("component", "canvas_editor", "canvas_id", canvasID)),
		agent.WithOnStep(func(context.Context, agent.StepInfo) { sess.endStep() }),
	}
	if e.opts.LogOptions != nil {
		engOpts = append(engOpts, agent.WithLogOptions(*e.opts.LogOptions))
	}
	eng := agent.New(e.client, agent.Config{MaxSteps: e.opts.MaxSteps, Model: e.opts.Model}, engOpts...)

	bound := reg.Bind(rt)
	system := agent.BuildSystemPrompt(editorPrompt(before), bound.Declarations())
	transcript := []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Canvas id: %s\nInstruction: %s", canvasID, instruction),
	}}

	final, err := eng.Run(llminspect.WithModelScene(ctx, "canvas.editor"), system, transcript, bound)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		CanvasID:   canvasID,
		Summary:    strings.TrimSpace(final.Output),
		Applied:    sess.appliedChanges(),
		Incomplete: final.Exhausted,
	}
	if len(out.Applied) == 0 {
		out.Diff = "no changes"
		if out.Summary == "" {
			out.Summary = "no changes were made"
		}
		return out, nil
	}

	after, err := e.store.Read(ctx, canvasID)
	if err != nil {
		e.log.Warn("canvas_editor_reread_failed", "canvas_id", canvasID, "error", err.Error())
		out.Diff = fmt.Sprintf("%d change(s) applied", len(out.Applied))
		return out, nil
	}
	d := diff.Lines(before.Markdown(), after.Markdown())
	out.Added, out.Removed = d.Added, d.Removed
	out.Diff = d.Render(diffPreviewLines)
	e.log.Info("canvas_editor_done",
		"canvas_id", canvasID,
		"changes", len(out.Applied),
		"lines_added", d.Added,
		"lines_removed", d.Removed,
		"incomplete", out.Incomplete,
	)
	return out, nil
}

func editorPrompt(doc canvas.Document) agent.PromptSpec {
	snapshot := doc.Markdown()
	if r := []rune(snapshot); len(r) > snapshotMaxChars {
		snapshot = string(r[:snapshotMaxChars]) + "\n..."
	}
	if strings.TrimSpace(snapshot) == "" {
		snapshot = "(the canvas is empty)"
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = doc.ID
	}
	return agent.PromptSpec{
		Identity: "You edit a single Slack canvas on behalf of a user. Apply the instruction with as few changes as possible, then reply with one short sentence describing what changed.",
		Blocks: []agent.PromptBlock{
			{Title: "Canvas: " + title, Content: snapshot},
		},
		Rules: []string{
			"Before any change that targets an existing section, call `lookup_sections` to get its section_id. Never guess or invent ids.",
			"When the lookup finds nothing suitable, add the content with `insert_at_end`.",
			"When several sections match, pick the most relevant one.",
			"To move content, delete the section and insert it at the new place in the same `batch_edit` call.",
			"Section ids are valid only until the next successful `batch_edit`; look them up again afterwards.",
			"Write markdown content without section ids.",
		},
	}
}

// session holds the state of one edit: the ids the model may target and the
// changes that reached the store. Ids returned by a lookup stay pending until
// the step that produced them ends, since calls of one step run concurrently
// and the model has not seen any of their results yet.
type session struct {
	canvasID string
	store    canvas.Store

	mu       sync.Mutex
	resolved map[string]bool
	pending  map[string]bool
	edited   bool
	applied  []canvas.Change
}

func (s *session) checkCanvas(id string) error {
	if id != "" && id != s.canvasID {
		return fmt.Errorf("this session edits canvas %s only", s.canvasID)
	}
	return nil
}

func (s *session) resolve(sections []canvas.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range sections {
		if sec.ID != "" {
			s.pending[sec.ID] = true
		}
	}
}

func (s *session) unresolved(changes []canvas.Change) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range changes {
		if id := strings.TrimSpace(c.SectionID); id != "" && !s.resolved[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *session) commit(changes []canvas.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, changes...)
	s.resolved = map[string]bool{}
	s.edited = true
}

// endStep promotes the ids looked up during the finished step. When an edit
// landed in that same step the lookups may predate it, so they are dropped.
func (s *session) endStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.edited {
		for id := range s.pending {
			s.resolved[id] = true
		}
	}
	s.pending = map[string]bool{}
	s.edited = false
}

func (s *session) appliedChanges() []canvas.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]canvas.Change(nil), s.applied...)
}
