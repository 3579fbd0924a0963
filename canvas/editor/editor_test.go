package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
)

type memStore struct {
	mu     sync.Mutex
	doc    canvas.Document
	next   int
	edits  [][]canvas.Change
	lookup int
}

func newMemStore(md string) *memStore {
	s := &memStore{doc: canvas.Document{ID: "F1", Title: "Plan"}}
	for _, sec := range canvas.SplitMarkdown(md) {
		sec.ID = s.newID()
		s.doc.Sections = append(s.doc.Sections, sec)
	}
	return s
}

func (s *memStore) newID() string {
	s.next++
	return fmt.Sprintf("s%d", s.next)
}

func (s *memStore) List(context.Context, string) ([]canvas.Summary, error) { return nil, nil }

func (s *memStore) Create(context.Context, string, string, string) (canvas.Summary, error) {
	return canvas.Summary{}, nil
}

func (s *memStore) Read(_ context.Context, id string) (canvas.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.doc.ID {
		return canvas.Document{}, canvas.ErrNotFound
	}
	doc := s.doc
	doc.Sections = append([]canvas.Section(nil), s.doc.Sections...)
	return doc, nil
}

func (s *memStore) Lookup(ctx context.Context, id, query string, types []string) ([]canvas.Section, error) {
	doc, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lookup++
	s.mu.Unlock()
	return canvas.Rank(doc.Sections, query, types), nil
}

func (s *memStore) Edit(_ context.Context, _ string, changes []canvas.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, changes)
	out, err := canvas.Apply(s.doc.Sections, changes, s.newID)
	if err != nil {
		return err
	}
	s.doc.Sections = out
	return nil
}

// scripted replays model turns; a turn may inspect the previous tool results.
type scripted struct {
	mu    sync.Mutex
	turns []func(req llm.Request) llm.Result
	reqs  []llm.Request
}

func (c *scripted) Chat(_ context.Context, req llm.Request) (llm.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	if len(c.turns) == 0 {
		return llm.Result{Text: "done"}, nil
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	return turn(req), nil
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, RawArguments: args}
}

func toolCalls(calls ...llm.ToolCall) func(llm.Request) llm.Result {
	return func(llm.Request) llm.Result { return llm.Result{ToolCalls: calls} }
}

func text(s string) func(llm.Request) llm.Result {
	return func(llm.Request) llm.Result { return llm.Result{Text: s} }
}

func lastToolContent(req llm.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleTool {
			return req.Messages[i].Content
		}
	}
	return ""
}

const planMD = "# Plan\n\nShip the beta in May.\n\n## Risks\n\n- hiring"

func TestEditLooksUpThenReplaces(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(call("c1", "lookup_sections", `{"canvas_id":"F1","query":"beta"}`)),
		toolCalls(call("c2", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"replace","section_id":"s2","markdown":"Ship the beta in June."}]}`)),
		text("Moved the beta to June."),
	}}
	ed := New(store, client, Options{})

	out, err := ed.Edit(context.Background(), "F1", "the beta slipped to June", tools.Runtime{})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if out.Summary != "Moved the beta to June." || out.Incomplete {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	if len(out.Applied) != 1 || out.Applied[0].Operation != canvas.Replace || out.Applied[0].SectionID != "s2" {
		t.Fatalf("applied = %#v", out.Applied)
	}
	if out.Added != 1 || out.Removed != 1 || !strings.Contains(out.Diff, "+ Ship the beta in June.") {
		t.Fatalf("diff = %q (+%d -%d)", out.Diff, out.Added, out.Removed)
	}
	if !strings.Contains(lastToolContent(client.reqs[1]), `"section_id":"s2"`) {
		t.Fatalf("lookup result missing id: %s", lastToolContent(client.reqs[1]))
	}
}

func TestBatchEditRejectsIDsNotReturnedByLookup(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		// s2 exists in the store but was never looked up
		toolCalls(call("c1", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"s2"}]}`)),
		toolCalls(call("c2", "lookup_sections", `{"canvas_id":"F1","query":"hiring"}`)),
		toolCalls(call("c3", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"made-up"}]}`)),
		toolCalls(call("c4", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"s4"}]}`)),
		text("Removed the hiring risk."),
	}}
	out, err := New(store, client, Options{}).Edit(context.Background(), "F1", "drop the hiring risk", tools.Runtime{})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if got := lastToolContent(client.reqs[1]); !strings.Contains(got, "unresolved section id s2") {
		t.Fatalf("first batch_edit should be rejected, got %s", got)
	}
	if got := lastToolContent(client.reqs[3]); !strings.Contains(got, "unresolved section id made-up") {
		t.Fatalf("fabricated id should be rejected, got %s", got)
	}
	if len(store.edits) != 1 {
		t.Fatalf("store.Edit called %d times, want 1", len(store.edits))
	}
	if store.edits[0][0].SectionID != "s4" {
		t.Fatalf("store received %#v", store.edits[0])
	}
	if len(out.Applied) != 1 {
		t.Fatalf("applied = %#v", out.Applied)
	}
}

func TestLookupIDsAreUsableOnlyAfterTheirStep(t *testing.T) {
	store := newMemStore(planMD)
	lookup := call("c1", "lookup_sections", `{"canvas_id":"F1","query":"hiring"}`)
	del := call("c2", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"s4"}]}`)

	for i := 0; i < 50; i++ {
		client := &scripted{turns: []func(llm.Request) llm.Result{
			toolCalls(lookup, del),
			text("Removed the hiring risk."),
		}}
		if _, err := New(store, client, Options{}).Edit(context.Background(), "F1", "drop the hiring risk", tools.Runtime{}); err != nil {
			t.Fatalf("Edit() error = %v", err)
		}
		if len(store.edits) != 0 {
			t.Fatalf("run %d: batch_edit in the lookup's own step reached the store: %#v", i, store.edits)
		}
		if got := lastToolContent(client.reqs[1]); !strings.Contains(got, "unresolved section id s4") {
			t.Fatalf("run %d: got %s", i, got)
		}
	}

	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(lookup),
		toolCalls(del),
		text("Removed the hiring risk."),
	}}
	if _, err := New(store, client, Options{}).Edit(context.Background(), "F1", "drop the hiring risk", tools.Runtime{}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(store.edits) != 1 || store.edits[0][0].SectionID != "s4" {
		t.Fatalf("edits = %#v", store.edits)
	}
}

func TestLookupRacingAnEditIsNotPromoted(t *testing.T) {
	s := &session{canvasID: "F1", resolved: map[string]bool{}, pending: map[string]bool{}}
	s.resolve([]canvas.Section{{ID: "s2"}})
	s.commit([]canvas.Change{{Operation: canvas.InsertAtEnd, Markdown: "x"}})
	s.endStep()
	if ids := s.unresolved([]canvas.Change{{Operation: canvas.Delete, SectionID: "s2"}}); len(ids) != 1 {
		t.Fatalf("unresolved = %v, want [s2]", ids)
	}
	s.resolve([]canvas.Section{{ID: "s3"}})
	if ids := s.unresolved([]canvas.Change{{Operation: canvas.Delete, SectionID: "s3"}}); len(ids) != 1 {
		t.Fatalf("pending id usable before step end: %v", ids)
	}
	s.endStep()
	if ids := s.unresolved([]canvas.Change{{Operation: canvas.Delete, SectionID: "s3"}}); len(ids) != 0 {
		t.Fatalf("unresolved = %v after step end", ids)
	}
}

func TestResolvedIDsExpireAfterSuccessfulEdit(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(call("c1", "lookup_sections", `{"canvas_id":"F1","query":"Risks","section_types":["any_header"]}`)),
		toolCalls(call("c2", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"insert_after","section_id":"s3","markdown":"- budget"}]}`)),
		toolCalls(call("c3", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"s3"}]}`)),
		text("ok"),
	}}
	if _, err := New(store, client, Options{}).Edit(context.Background(), "F1", "add a budget risk", tools.Runtime{}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(store.edits) != 1 {
		t.Fatalf("store.Edit called %d times, want 1", len(store.edits))
	}
	if got := lastToolContent(client.reqs[3]); !strings.Contains(got, "unresolved section id s3") {
		t.Fatalf("stale id should be rejected, got %s", got)
	}
}

func TestNoMatchFallsBackToInsertAtEnd(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(call("c1", "lookup_sections", `{"canvas_id":"F1","query":"zzzz qqqq"}`)),
		toolCalls(call("c2", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"insert_at_end","markdown":"## Notes\n\nnew"}]}`)),
		text("Added notes."),
	}}
	out, err := New(store, client, Options{}).Edit(context.Background(), "F1", "add notes", tools.Runtime{})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if got := lastToolContent(client.reqs[1]); !strings.Contains(got, "insert_at_end") {
		t.Fatalf("empty lookup should hint insert_at_end, got %s", got)
	}
	doc, _ := store.Read(context.Background(), "F1")
	if !strings.HasSuffix(doc.Markdown(), "## Notes\n\nnew") || len(out.Applied) != 1 {
		t.Fatalf("document = %q", doc.Markdown())
	}
}

func TestMoveIsDeleteAndInsertInOneBatch(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(
			call("c1", "lookup_sections", `{"canvas_id":"F1","query":"hiring"}`),
			call("c2", "lookup_sections", `{"canvas_id":"F1","query":"Plan","section_types":["h1"]}`),
		),
		toolCalls(call("c3", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"s4"},{"operation":"insert_after","section_id":"s1","markdown":"- hiring"}]}`)),
		text("Moved."),
	}}
	if _, err := New(store, client, Options{}).Edit(context.Background(), "F1", "move hiring under the title", tools.Runtime{}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if len(store.edits) != 1 || len(store.edits[0]) != 2 {
		t.Fatalf("edits = %#v", store.edits)
	}
	doc, _ := store.Read(context.Background(), "F1")
	if doc.Sections[1].Content != "- hiring" || len(doc.Sections) != 4 {
		t.Fatalf("sections = %#v", doc.Sections)
	}
}

func TestExhaustedBudgetReturnsPartialOutcome(t *testing.T) {
	store := newMemStore(planMD)
	lookup := call("c", "lookup_sections", `{"canvas_id":"F1","query":"beta"}`)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(lookup),
		toolCalls(call("e", "batch_edit", `{"canvas_id":"F1","changes":[{"operation":"delete","section_id":"s2"}]}`)),
		toolCalls(lookup), toolCalls(lookup), toolCalls(lookup),
	}}
	out, err := New(store, client, Options{MaxSteps: 3}).Edit(context.Background(), "F1", "tidy up", tools.Runtime{})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !out.Incomplete || len(out.Applied) != 1 || out.Removed == 0 {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	if len(client.reqs) != 3 {
		t.Fatalf("model called %d times, want 3", len(client.reqs))
	}
}

func TestEditRejectsOtherCanvasAndMissingInput(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{
		toolCalls(call("c1", "lookup_sections", `{"canvas_id":"F9","query":"beta"}`)),
		text("done"),
	}}
	if _, err := New(store, client, Options{}).Edit(context.Background(), "F1", "x", tools.Runtime{}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if got := lastToolContent(client.reqs[1]); !strings.Contains(got, "edits canvas F1 only") {
		t.Fatalf("got %s", got)
	}
	if store.lookup != 0 {
		t.Fatalf("store lookup should not run for another canvas")
	}
	if _, err := New(store, client, Options{}).Edit(context.Background(), "F1", " ", tools.Runtime{}); err == nil {
		t.Fatalf("expected error for empty instruction")
	}
}

func TestSystemPromptShowsSnapshotWithoutIDs(t *testing.T) {
	store := newMemStore(planMD)
	client := &scripted{turns: []func(llm.Request) llm.Result{text("nothing to do")}}
	out, err := New(store, client, Options{MaxSteps: 20}).Edit(context.Background(), "F1", "noop", tools.Runtime{})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	sys := client.reqs[0].Messages[0].Content
	if !strings.Contains(sys, "Ship the beta in May.") || strings.Contains(sys, "s2") {
		t.Fatalf("system prompt = %s", sys)
	}
	if len(client.reqs[0].Tools) != 2 {
		t.Fatalf("editor exposes %d tools, want 2", len(client.reqs[0].Tools))
	}
	if out.Diff != "no changes" {
		t.Fatalf("diff = %q", out.Diff)
	}
}
