package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultExaBaseURL = "https://api.exa.ai"

type exaResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"publishedDate,omitempty"`
	Author        string  `json:"author,omitempty"`
	Text          string  `json:"text,omitempty"`
}

type exaClient struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
}

func (c *exaClient) search(ctx context.Context, apiKey, query string, numResults int) ([]exaResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"query":      query,
		"numResults": numResults,
		"type":       "auto",
		"contents": map[string]any{
			"text": map[string]any{"maxCharacters": 1000},
		},
	})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: clip(strings.TrimSpace(string(raw)), errorBodyExcerpt)}
	}
	var out struct {
		Results []exaResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid exa response: %w", err)
	}
	return out.Results, nil
}
