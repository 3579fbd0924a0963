package slackapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type DocumentContent struct {
	Type     string `json:"type"`
	Markdown string `json:"markdown"`
}

func MarkdownContent(md string) *DocumentContent {
	return &DocumentContent{Type: "markdown", Markdown: md}
}

type CanvasChange struct {
	Operation       string           `json:"operation"`
	SectionID       string           `json:"section_id,omitempty"`
	DocumentContent *DocumentContent `json:"document_content,omitempty"`
}

type SectionCriteria struct {
	SectionTypes []string `json:"section_types,omitempty"`
	ContainsText string   `json:"contains_text,omitempty"`
}

func (c *Client) CreateCanvas(ctx context.Context, title, markdown, channelID string) (string, error) {
	payload := map[string]any{"title": strings.TrimSpace(title)}
	if strings.TrimSpace(markdown) != "" {
		payload["document_content"] = MarkdownContent(markdown)
	}
	if ch := strings.TrimSpace(channelID); ch != "" {
		payload["channel_id"] = ch
	}
	var out struct {
		CanvasID string `json:"canvas_id"`
	}
	if err := c.call(ctx, c.botToken, "canvases.create", payload, nil, &out); err != nil {
		return "", err
	}
	return out.CanvasID, nil
}

func (c *Client) EditCanvas(ctx context.Context, canvasID string, changes []CanvasChange) error {
	if len(changes) == 0 {
		return fmt.Errorf("no changes given")
	}
	return c.call(ctx, c.botToken, "canvases.edit", map[string]any{
		"canvas_id": strings.TrimSpace(canvasID),
		"changes":   changes,
	}, nil, nil)
}

// LookupSections returns the ids of sections matching criteria, in document order.
func (c *Client) LookupSections(ctx context.Context, canvasID string, criteria SectionCriteria) ([]string, error) {
	var out struct {
		Sections []struct {
			ID string `json:"id"`
		} `json:"sections"`
	}
	err := c.call(ctx, c.botToken, "canvases.sections.lookup", map[string]any{
		"canvas_id": strings.TrimSpace(canvasID),
		"criteria":  criteria,
	}, nil, &out)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Sections))
	for _, s := range out.Sections {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

type File struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Filetype   string `json:"filetype"`
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated,omitempty"`
	URLPrivate string `json:"url_private"`
}

func (c *Client) ListFiles(ctx context.Context, channelID, types string, count int) ([]File, error) {
	q := url.Values{}
	if ch := strings.TrimSpace(channelID); ch != "" {
		q.Set("channel", ch)
	}
	if types != "" {
		q.Set("types", types)
	}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	var out struct {
		Files []File `json:"files"`
	}
	if err := c.call(ctx, c.botToken, "files.list", nil, q, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *Client) FileInfo(ctx context.Context, fileID string) (File, error) {
	q := url.Values{}
	q.Set("file", strings.TrimSpace(fileID))
	var out struct {
		File File `json:"file"`
	}
	if err := c.call(ctx, c.botToken, "files.info", nil, q, &out); err != nil {
		return File{}, err
	}
	return out.File, nil
}

// Download fetches a private file URL with the bot token.
func (c *Client) Download(ctx context.Context, fileURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Method: "file download", Status: resp.StatusCode}
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}
