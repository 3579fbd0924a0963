// Package slackstore implements canvas.Store over the Slack canvases and files
// APIs.
package slackstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/internal/slackapi"
)

type Store struct {
	api *slackapi.Client
}

func New(api *slackapi.Client) *Store {
	return &Store{api: api}
}

const listLimit = 50

func (s *Store) List(ctx context.Context, channelID string) ([]canvas.Summary, error) {
	files, err := s.api.ListFiles(ctx, channelID, "canvas", listLimit)
	if err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	out := make([]canvas.Summary, 0, len(files))
	for _, f := range files {
		out = append(out, summary(f, channelID))
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, title, markdown, channelID string) (canvas.Summary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return canvas.Summary{}, fmt.Errorf("title is required")
	}
	id, err := s.api.CreateCanvas(ctx, title, markdown, channelID)
	if err != nil {
		return canvas.Summary{}, fmt.Errorf("create canvas: %w", err)
	}
	return canvas.Summary{ID: id, Title: title, ChannelID: channelID, UpdatedAt: time.Now().UTC()}, nil
}

func (s *Store) Read(ctx context.Context, id string) (canvas.Document, error) {
	f, err := s.api.FileInfo(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return canvas.Document{}, fmt.Errorf("%w: %s", canvas.ErrNotFound, id)
		}
		return canvas.Document{}, fmt.Errorf("read canvas: %w", err)
	}
	if strings.TrimSpace(f.URLPrivate) == "" {
		return canvas.Document{}, fmt.Errorf("read canvas: %s has no download url", id)
	}
	raw, err := s.api.Download(ctx, f.URLPrivate, 0)
	if err != nil {
		return canvas.Document{}, fmt.Errorf("download canvas: %w", err)
	}
	sections, err := parseSections(bytes.NewReader(raw))
	if err != nil {
		return canvas.Document{}, fmt.Errorf("parse canvas: %w", err)
	}
	return canvas.Document{ID: f.ID, Title: title(f), Sections: sections}, nil
}

// Lookup asks Slack for matching section ids, then ranks them against a fresh
// snapshot so callers also get section content. Types Slack cannot filter on
// are applied locally.
func (s *Store) Lookup(ctx context.Context, id, query string, types []string) ([]canvas.Section, error) {
	doc, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	remoteTypes := headerTypes(types)
	if query == "" && len(remoteTypes) == 0 {
		return canvas.Rank(doc.Sections, "", types), nil
	}
	ids, err := s.api.LookupSections(ctx, id, slackapi.SectionCriteria{
		SectionTypes: remoteTypes,
		ContainsText: query,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup sections: %w", err)
	}
	matched := make([]canvas.Section, 0, len(ids))
	for _, sid := range ids {
		sec, ok := doc.Section(sid)
		if !ok {
			sec = canvas.Section{ID: sid}
		}
		if sec.Type != "" && !canvas.MatchesType(sec.Type, types) {
			continue
		}
		matched = append(matched, sec)
	}
	ranked := canvas.Rank(matched, query, nil)
	if len(ranked) < len(matched) {
		// keep remote hits the local ranker could not score, after the ranked ones
		seen := make(map[string]bool, len(ranked))
		for _, r := range ranked {
			seen[r.ID] = true
		}
		for _, m := range matched {
			if !seen[m.ID] {
				ranked = append(ranked, m)
			}
		}
	}
	return ranked, nil
}

func (s *Store) Edit(ctx context.Context, id string, changes []canvas.Change) error {
	if err := canvas.ValidateChanges(changes); err != nil {
		return err
	}
	out := make([]slackapi.CanvasChange, 0, len(changes))
	for _, c := range changes {
		sc := slackapi.CanvasChange{Operation: string(c.Operation), SectionID: c.SectionID}
		if c.Operation != canvas.Delete {
			sc.DocumentContent = slackapi.MarkdownContent(c.Markdown)
		}
		out = append(out, sc)
	}
	if err := s.api.EditCanvas(ctx, id, out); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", canvas.ErrNotFound, id)
		}
		return fmt.Errorf("edit canvas: %w", err)
	}
	return nil
}

func headerTypes(types []string) []string {
	var out []string
	for _, t := range types {
		switch t = strings.ToLower(strings.TrimSpace(t)); t {
		case canvas.TypeH1, canvas.TypeH2, canvas.TypeH3, canvas.AnyHeader:
			out = append(out, t)
		}
	}
	return out
}

func isNotFound(err error) bool {
	var apiErr *slackapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "file_not_found" || apiErr.Code == "canvas_not_found"
}

func title(f slackapi.File) string {
	if t := strings.TrimSpace(f.Title); t != "" {
		return t
	}
	return strings.TrimSpace(f.Name)
}

func summary(f slackapi.File, channelID string) canvas.Summary {
	ts := f.Updated
	if ts == 0 {
		ts = f.Created
	}
	return canvas.Summary{
		ID:        f.ID,
		Title:     title(f),
		ChannelID: channelID,
		UpdatedAt: time.Unix(ts, 0).UTC(),
	}
}
