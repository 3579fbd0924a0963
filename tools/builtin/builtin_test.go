package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/canvas/editor"
	"github.com/quailyquaily/threadbot/canvas/sqlstore"
	"github.com/quailyquaily/threadbot/db"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
)

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (s *statusLog) ReportStatus(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *statusLog) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func env(pairs ...string) func(string) string {
	m := map[string]string{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return func(k string) string { return m[k] }
}

const alphaPage = `<html><head><title>Alpha</title><style>p{}</style></head>
<body><nav>menu</nav><article><h1>Alpha heading</h1><p>Alpha   body text.</p><script>var x</script></article></body></html>`

func TestWebScrapeReturnsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, alphaPage)
	}))
	defer srv.Close()

	status := &statusLog{}
	res := NewWebScrapeTool(Deps{HTTP: srv.Client()}).Execute(context.Background(), map[string]any{"url": srv.URL + "/alpha"}, tools.Runtime{Status: status})
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.Err)
	}
	p := res.Data.(page)
	if p.Title != "Alpha" || p.Text != "Alpha heading\nAlpha body text." {
		t.Fatalf("page = %#v", p)
	}
	if got := status.all(); len(got) != 1 || !strings.HasPrefix(got[0], "is reading ") {
		t.Fatalf("status = %v", got)
	}
}

func TestWebScrapeFailureIsStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusNotFound)
	}))
	defer srv.Close()

	tool := NewWebScrapeTool(Deps{HTTP: srv.Client()})
	res := tool.Execute(context.Background(), map[string]any{"url": srv.URL + "/missing"}, tools.Runtime{})
	if !res.IsError() || !strings.Contains(res.Err, "http 404") || !strings.Contains(res.Err, "gone fishing") {
		t.Fatalf("unexpected result: %#v", res)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(res.JSON()), &payload); err != nil || payload["error"] == "" {
		t.Fatalf("JSON() = %s", res.JSON())
	}

	res = tool.Execute(context.Background(), map[string]any{"url": "ftp://example.com/x"}, tools.Runtime{})
	if !res.IsError() || !strings.Contains(res.Err, "invalid url") {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestWebSearchMissingCredentialFailsBeforeAnyWork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	status := &statusLog{}
	tool := NewWebSearchTool(Deps{HTTP: srv.Client(), ExaBaseURL: srv.URL, Getenv: env()})
	res := tool.Execute(context.Background(), map[string]any{"query": "go"}, tools.Runtime{Status: status})
	if !res.IsError() || !strings.Contains(res.Err, "missing credential") || !strings.Contains(res.Err, ExaAPIKeyEnv) {
		t.Fatalf("unexpected result: %#v", res)
	}
	if hits != 0 || len(status.all()) != 0 {
		t.Fatalf("work started without credentials: hits=%d status=%v", hits, status.all())
	}
}

func searchBackend(t *testing.T, failQuery string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.Header.Get("x-api-key") != "exa-key" {
				t.Errorf("missing api key header")
			}
			var body struct {
				Query string `json:"query"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Query == failQuery || failQuery == "*" {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
				return
			}
			results := []map[string]any{
				{"title": "Alpha", "url": srv.URL + "/a", "score": 0.9, "text": "snippet a"},
				{"title": "Beta", "url": srv.URL + "/b", "score": 0.5, "text": "snippet b"},
			}
			if body.Query != "go generics" {
				results = []map[string]any{
					{"title": "Alpha again", "url": srv.URL + "/a/", "score": 0.95},
					{"title": "Broken", "url": srv.URL + "/broken", "score": 0.7, "text": "snippet broken"},
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
		case "/a":
			_, _ = io.WriteString(w, alphaPage)
		case "/b":
			_, _ = io.WriteString(w, "<p>Beta body</p>")
		case "/broken":
			http.Error(w, "nope", http.StatusInternalServerError)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func queryGenerator() llm.Client {
	return llm.ClientFunc(func(_ context.Context, req llm.Request) (llm.Result, error) {
		if !req.ForceJSON {
			return llm.Result{}, io.ErrUnexpectedEOF
		}
		return llm.Result{Text: "```json\n{\"queries\":[\"go generics tutorial\",\"go generics performance\"]}\n```"}, nil
	})
}

func TestWebSearchIsolatesFailuresAndReportsPhasesInOrder(t *testing.T) {
	srv := searchBackend(t, "go generics performance")
	status := &statusLog{}
	tool := NewWebSearchTool(Deps{
		HTTP:       srv.Client(),
		LLM:        queryGenerator(),
		ExaBaseURL: srv.URL,
		Getenv:     env(ExaAPIKeyEnv, "exa-key"),
	})

	res := tool.Execute(context.Background(), map[string]any{"query": "go generics", "max_results": 3}, tools.Runtime{Status: status})
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.Err)
	}
	report := res.Data.(searchReport)
	if len(report.Queries) != 3 || report.Queries[0] != "go generics" {
		t.Fatalf("queries = %v", report.Queries)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "http 500") {
		t.Fatalf("errors = %v", report.Errors)
	}
	if len(report.Results) != 3 {
		t.Fatalf("results = %#v", report.Results)
	}
	// duplicate /a/ is dropped in favour of the first occurrence, then sorted by score
	if report.Results[0].Title != "Alpha" || report.Results[1].Title != "Broken" || report.Results[2].Title != "Beta" {
		t.Fatalf("order = %#v", report.Results)
	}
	if !strings.Contains(report.Results[0].Content, "Alpha body text.") {
		t.Fatalf("full page not fetched: %q", report.Results[0].Content)
	}
	if report.Results[1].Error == "" || report.Results[1].Content != "snippet broken" {
		t.Fatalf("failed fetch should keep snippet and record error: %#v", report.Results[1])
	}
	if report.Results[2].Content != "Beta body" {
		t.Fatalf("beta content = %q", report.Results[2].Content)
	}

	want := []string{
		"is generating search queries...",
		"is searching the web (3 queries)...",
		"is selecting the top results...",
		"is reading 3 pages...",
		"is compiling search results...",
	}
	got := status.all()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("status = %v, want %v", got, want)
	}
}

func TestWebSearchFailsOnlyWhenEveryQueryFails(t *testing.T) {
	srv := searchBackend(t, "*")
	tool := NewWebSearchTool(Deps{HTTP: srv.Client(), ExaBaseURL: srv.URL, Getenv: env(ExaAPIKeyEnv, "exa-key")})
	res := tool.Execute(context.Background(), map[string]any{"query": "go generics"}, tools.Runtime{})
	if !res.IsError() || !strings.Contains(res.Err, "upstream exploded") {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestWebSearchFailsWhenNothingIsFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Query == "go generics" {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	defer srv.Close()

	tool := NewWebSearchTool(Deps{
		HTTP:       srv.Client(),
		ExaBaseURL: srv.URL,
		LLM:        queryGenerator(),
		Getenv:     env(ExaAPIKeyEnv, "exa-key"),
	})
	res := tool.Execute(context.Background(), map[string]any{"query": "go generics"}, tools.Runtime{})
	if !res.IsError() || !strings.Contains(res.Err, "no results") || !strings.Contains(res.Err, "upstream exploded") {
		t.Fatalf("partial failure with empty results: %#v", res)
	}

	res = tool.Execute(context.Background(), map[string]any{"query": "nothing here", "num_queries": 1}, tools.Runtime{})
	if !res.IsError() || !strings.Contains(res.Err, `no results for "nothing here"`) {
		t.Fatalf("empty results: %#v", res)
	}
}

func TestDeepResearchCompilesReportWithCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer pplx-key" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != DefaultResearchModel {
			t.Errorf("model = %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
  "id": "r1", "object": "chat.completion", "created": 1, "model": "sonar-deep-research",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "<think>plan</think>\n# Go\nGo is fast [1]."}}],
  "usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
  "citations": ["https://go.dev/a", "https://go.dev/b"],
  "search_results": [{"title": "A", "url": "https://go.dev/a"}, {"title": "A dup", "url": "https://GO.dev/a/"}, {"title": "B", "url": "https://go.dev/b"}]
}`)
	}))
	defer srv.Close()

	status := &statusLog{}
	tool := NewDeepResearchTool(Deps{HTTP: srv.Client(), PerplexityBaseURL: srv.URL, Getenv: env(PerplexityAPIKeyEnv, "pplx-key")})
	res := tool.Execute(context.Background(), map[string]any{"topic": "Go performance"}, tools.Runtime{Status: status})
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.Err)
	}
	report := res.Data.(researchReport)
	if report.Report != "# Go\nGo is fast [1]." {
		t.Fatalf("report = %q", report.Report)
	}
	if len(report.Citations) != 2 || report.Citations[1].Index != 2 || report.Citations[1].URL != "https://go.dev/b" {
		t.Fatalf("citations = %#v", report.Citations)
	}
	if len(report.Sources) != 2 || report.Sources[1].Title != "B" {
		t.Fatalf("sources = %#v", report.Sources)
	}
	if got := status.all(); len(got) != 2 || !strings.HasPrefix(got[0], "is researching Go performance") || got[1] != "is compiling the research report..." {
		t.Fatalf("status = %v", got)
	}
}

func TestDeepResearchMissingCredential(t *testing.T) {
	res := NewDeepResearchTool(Deps{Getenv: env()}).Execute(context.Background(), map[string]any{"topic": "x"}, tools.Runtime{})
	if !res.IsError() || !strings.Contains(res.Err, PerplexityAPIKeyEnv) {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestCanvasToolsUseRuntimeChannel(t *testing.T) {
	cfg := db.DefaultConfig()
	cfg.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := sqlstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("sqlstore.Open() error = %v", err)
	}
	client := llm.ClientFunc(func(context.Context, llm.Request) (llm.Result, error) {
		return llm.Result{Text: "nothing to change"}, nil
	})
	reg := tools.NewRegistry()
	if err := Register(reg, Deps{Store: store, Editor: editor.New(store, client, editor.Options{}), Getenv: env()}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	var names []string
	for _, d := range reg.Declarations() {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "web_search,web_scrape,deep_research,list_canvases,create_canvas,read_canvas,edit_canvas" {
		t.Fatalf("roster = %v", names)
	}

	bound := reg.Bind(tools.Runtime{ChannelID: "C42"})
	ctx := context.Background()
	res := bound.Call(ctx, llm.ToolCall{Name: "create_canvas", RawArguments: `{"title":"Notes","markdown":"# Notes\n\nhello"}`})
	if res.IsError() {
		t.Fatalf("create_canvas error = %s", res.Err)
	}
	created := res.Data.(canvas.Summary)
	if created.ChannelID != "C42" {
		t.Fatalf("created = %#v", created)
	}

	res = bound.Call(ctx, llm.ToolCall{Name: "list_canvases", RawArguments: `{}`})
	list := res.Data.(map[string]any)["canvases"].([]canvas.Summary)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list_canvases = %#v", res)
	}

	res = bound.Call(ctx, llm.ToolCall{Name: "read_canvas", RawArguments: `{"canvas_id":"` + created.ID + `"}`})
	if res.IsError() || res.Data.(map[string]any)["markdown"] != "# Notes\n\nhello" {
		t.Fatalf("read_canvas = %#v", res)
	}

	res = bound.Call(ctx, llm.ToolCall{Name: "read_canvas", RawArguments: `{"canvas_id":"nope"}`})
	if !res.IsError() || !strings.Contains(res.Err, "canvas not found") {
		t.Fatalf("read_canvas missing = %#v", res)
	}

	res = bound.Call(ctx, llm.ToolCall{Name: "edit_canvas", RawArguments: `{"canvas_id":"` + created.ID + `","instruction":"leave it"}`})
	if res.IsError() {
		t.Fatalf("edit_canvas error = %s", res.Err)
	}
	if out := res.Data.(editor.Outcome); out.Diff != "no changes" || out.Summary != "nothing to change" {
		t.Fatalf("edit outcome = %#v", out)
	}
}
