package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/tools"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultScrapeChars = 8000
	maxScrapeChars     = 40000
	maxPageBytes       = 4 << 20
	errorBodyExcerpt   = 300
	userAgent          = "threadbot/1.0 (+https://slack.com)"
)

// HTTPStatusError is a non-2xx response from a fetched page or API.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

type page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"content"`
}

type scraper struct {
	http    *http.Client
	timeout time.Duration
}

func newScraper(deps Deps) *scraper {
	return &scraper{http: deps.HTTP, timeout: deps.WebTimeout}
}

func (s *scraper) fetch(ctx context.Context, rawURL string, maxChars int) (page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return page{}, fmt.Errorf("invalid url %q", rawURL)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	resp, err := s.http.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page{}, &HTTPStatusError{Status: resp.StatusCode, Body: clip(strings.TrimSpace(string(raw)), errorBodyExcerpt)}
	}
	if err != nil {
		return page{}, err
	}

	out := page{URL: u.String()}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "html") || ct == "" {
		out.Title, out.Text, err = extractText(strings.NewReader(string(raw)))
		if err != nil {
			return page{}, fmt.Errorf("parse html: %w", err)
		}
	} else {
		out.Text = strings.TrimSpace(string(raw))
	}
	out.Text = clip(out.Text, maxChars)
	return out, nil
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Footer: true, atom.Header: true, atom.Aside: true,
	atom.Svg: true, atom.Form: true, atom.Iframe: true, atom.Button: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Pre: true, atom.Blockquote: true, atom.Table: true,
}

// extractText returns the document title and its readable text with one line
// per block element.
func extractText(r io.Reader) (string, string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}
	var title string
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if skippedElements[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(root)

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return title, strings.Join(kept, "\n"), nil
}

type WebScrapeTool struct {
	s *scraper
}

func NewWebScrapeTool(deps Deps) *WebScrapeTool {
	return &WebScrapeTool{s: newScraper(deps.withDefaults())}
}

func (t *WebScrapeTool) Name() string { return "web_scrape" }

func (t *WebScrapeTool) Description() string {
	return "Fetches a web page and returns its readable text. Use it to read a specific URL."
}

func (t *WebScrapeTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "url": { "type": "string", "description": "Absolute http(s) URL to fetch." },
    "max_chars": { "type": "integer", "minimum": 1, "description": "Maximum characters of text to return (default 8000)." }
  },
  "required": ["url"]
}`
}

func (t *WebScrapeTool) Execute(ctx context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	rawURL := tools.ParamString(params, "url")
	maxChars := tools.ClampInt(tools.ParamInt(params, "max_chars"), defaultScrapeChars, 200, maxScrapeChars)
	rt.Report("is reading " + displayHost(rawURL) + "...")
	p, err := t.s.fetch(ctx, rawURL, maxChars)
	if err != nil {
		return tools.Errorf("scrape %s failed: %s", rawURL, err.Error())
	}
	return tools.OK(p)
}

func displayHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "a web page"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
