package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quailyquaily/threadbot/internal/jsonutil"
	"github.com/quailyquaily/threadbot/internal/llminspect"
	"github.com/quailyquaily/threadbot/internal/urlutil"
	"github.com/quailyquaily/threadbot/llm"
	"github.com/quailyquaily/threadbot/tools"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSearchQueries = 3
	maxSearchQueries     = 5
	defaultSearchResults = 5
	maxSearchResults     = 10
	resultsPerQuery      = 8
	searchPageChars      = 4000
	maxConcurrentFetches = 4
)

type WebSearchTool struct {
	deps    Deps
	exa     *exaClient
	scraper *scraper
}

func NewWebSearchTool(deps Deps) *WebSearchTool {
	deps = deps.withDefaults()
	return &WebSearchTool{
		deps:    deps,
		exa:     &exaClient{http: deps.HTTP, baseURL: deps.ExaBaseURL, timeout: deps.WebTimeout},
		scraper: newScraper(deps),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Searches the web for current information. Runs several related queries, picks the best results and returns their full text with URLs to cite."
}

func (t *WebSearchTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "query": { "type": "string", "description": "What to search for." },
    "num_queries": { "type": "integer", "minimum": 1, "maximum": 5, "description": "How many search queries to run (default 3)." },
    "max_results": { "type": "integer", "minimum": 1, "maximum": 10, "description": "How many results to read in full (default 5)." }
  },
  "required": ["query"]
}`
}

type searchHit struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	Published string  `json:"published_date,omitempty"`
	Content   string  `json:"content"`
	Error     string  `json:"fetch_error,omitempty"`
}

type searchReport struct {
	Query   string      `json:"query"`
	Queries []string    `json:"queries"`
	Results []searchHit `json:"results"`
	Errors  []string    `json:"errors,omitempty"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	query := tools.ParamString(params, "query")
	if query == "" {
		return tools.Errorf("query is required")
	}
	apiKey, err := t.deps.credential(ExaAPIKeyEnv)
	if err != nil {
		return tools.FromError(err)
	}
	numQueries := tools.ClampInt(tools.ParamInt(params, "num_queries"), defaultSearchQueries, 1, maxSearchQueries)
	maxResults := tools.ClampInt(tools.ParamInt(params, "max_results"), defaultSearchResults, 1, maxSearchResults)
	log := t.deps.Logger.With("tool", t.Name())

	rt.Report("is generating search queries...")
	queries := t.generateQueries(ctx, log, query, numQueries)

	rt.Report(fmt.Sprintf("is searching the web (%d queries)...", len(queries)))
	sets, errs := t.searchAll(ctx, apiKey, queries)
	if len(errs) == len(queries) {
		return tools.Errorf("web search failed: %s", strings.Join(errs, "; "))
	}

	rt.Report("is selecting the top results...")
	hits := selectTop(sets, maxResults, log)
	if len(hits) == 0 {
		if len(errs) > 0 {
			return tools.Errorf("web search found no results: %s", strings.Join(errs, "; "))
		}
		return tools.Errorf("web search found no results for %q", query)
	}

	rt.Report(fmt.Sprintf("is reading %d pages...", len(hits)))
	t.fetchAll(ctx, hits)

	rt.Report("is compiling search results...")
	return tools.OK(searchReport{Query: query, Queries: queries, Results: hits, Errors: errs})
}

// generateQueries asks the model for related queries. The original query is
// always searched; model failures fall back to it alone.
func (t *WebSearchTool) generateQueries(ctx context.Context, log *slog.Logger, query string, n int) []string {
	queries := []string{query}
	if n <= 1 || t.deps.LLM == nil {
		return queries
	}
	res, err := t.deps.LLM.Chat(llminspect.WithModelScene(ctx, "tools.web_search.queries"), llm.Request{
		Model:     t.deps.Model,
		ForceJSON: true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(
				"You write web search queries. Given a question, return JSON {\"queries\": [...]} with %d short, diverse queries that together cover it. No commentary.", n-1)},
			{Role: llm.RoleUser, Content: query},
		},
	})
	if err != nil {
		log.Warn("search_query_generation_failed", "error", err.Error())
		return queries
	}
	var out struct {
		Queries []string `json:"queries"`
	}
	if err := jsonutil.DecodeWithFallback(res.Text, &out); err != nil {
		log.Warn("search_query_generation_invalid", "error", err.Error())
		return queries
	}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, q := range out.Queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		queries = append(queries, q)
		if len(queries) == n {
			break
		}
	}
	return queries
}

// searchAll runs every query concurrently. A failed query contributes an empty
// result set and one entry in the returned errors.
func (t *WebSearchTool) searchAll(ctx context.Context, apiKey string, queries []string) ([][]exaResult, []string) {
	sets := make([][]exaResult, len(queries))
	failures := make([]string, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			res, err := t.exa.search(ctx, apiKey, q, resultsPerQuery)
			if err != nil {
				failures[i] = fmt.Sprintf("%q: %s", q, err.Error())
				return nil
			}
			sets[i] = res
			return nil
		})
	}
	_ = g.Wait()
	var errs []string
	for _, f := range failures {
		if f != "" {
			errs = append(errs, f)
		}
	}
	return sets, errs
}

// selectTop flattens the result sets in query order, drops repeated URLs keeping
// the first occurrence, and returns the highest scored hits.
func selectTop(sets [][]exaResult, n int, log *slog.Logger) []searchHit {
	var flat []exaResult
	for _, s := range sets {
		flat = append(flat, s...)
	}
	flat = urlutil.Dedupe(flat, func(r exaResult) string { return r.URL }, func(raw string, err error) {
		log.Warn("search_result_url_invalid", "url", raw, "error", err.Error())
	})
	sort.SliceStable(flat, func(a, b int) bool { return flat[a].Score > flat[b].Score })
	if len(flat) > n {
		flat = flat[:n]
	}
	hits := make([]searchHit, 0, len(flat))
	for _, r := range flat {
		hits = append(hits, searchHit{
			Title:     strings.TrimSpace(r.Title),
			URL:       strings.TrimSpace(r.URL),
			Score:     r.Score,
			Published: r.PublishedDate,
			Content:   strings.TrimSpace(r.Text),
		})
	}
	return hits
}

// fetchAll replaces each hit's snippet with the full page text. A failed fetch
// keeps the snippet and records the error on that hit only.
func (t *WebSearchTool) fetchAll(ctx context.Context, hits []searchHit) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)
	for i := range hits {
		g.Go(func() error {
			p, err := t.scraper.fetch(ctx, hits[i].URL, searchPageChars)
			if err != nil {
				hits[i].Error = err.Error()
				return nil
			}
			if strings.TrimSpace(p.Text) != "" {
				hits[i].Content = p.Text
			}
			if hits[i].Title == "" {
				hits[i].Title = p.Title
			}
			return nil
		})
	}
	_ = g.Wait()
}
