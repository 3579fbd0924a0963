package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/tools"
)

const (
	maxLookupResults  = 10
	maxSectionPreview = 600
)

type lookupTool struct {
	s *session
}

func (t *lookupTool) Name() string { return "lookup_sections" }

func (t *lookupTool) Description() string {
	return "Finds sections of the canvas by text and returns their section ids, types and content."
}

func (t *lookupTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "canvas_id": { "type": "string" },
    "query": { "type": "string", "description": "Text the section should contain." },
    "section_types": {
      "type": "array",
      "items": { "type": "string", "enum": ["h1", "h2", "h3", "any_header", "paragraph", "list", "code", "quote", "table", "rule"] }
    }
  },
  "required": ["canvas_id", "query"]
}`
}

type sectionView struct {
	ID      string `json:"section_id"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

func (t *lookupTool) Execute(ctx context.Context, params map[string]any, _ tools.Runtime) tools.Result {
	if err := t.s.checkCanvas(tools.ParamString(params, "canvas_id")); err != nil {
		return tools.FromError(err)
	}
	secs, err := t.s.store.Lookup(ctx, t.s.canvasID, tools.ParamString(params, "query"), tools.ParamStrings(params, "section_types"))
	if err != nil {
		return tools.Errorf("lookup failed: %s", err.Error())
	}
	if len(secs) > maxLookupResults {
		secs = secs[:maxLookupResults]
	}
	t.s.resolve(secs)
	views := make([]sectionView, 0, len(secs))
	for _, sec := range secs {
		content := sec.Content
		if r := []rune(content); len(r) > maxSectionPreview {
			content = string(r[:maxSectionPreview]) + "..."
		}
		views = append(views, sectionView{ID: sec.ID, Type: sec.Type, Content: content})
	}
	out := map[string]any{"sections": views}
	if len(views) == 0 {
		out["hint"] = "no section matched; use insert_at_end to add new content"
	}
	return tools.OK(out)
}

type batchEditTool struct {
	s *session
}

func (t *batchEditTool) Name() string { return "batch_edit" }

func (t *batchEditTool) Description() string {
	return "Applies an ordered list of changes to the canvas in one request. Every section_id must come from lookup_sections."
}

func (t *batchEditTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "canvas_id": { "type": "string" },
    "changes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "operation": { "type": "string", "enum": ["insert_after", "insert_before", "insert_at_start", "insert_at_end", "replace", "delete"] },
          "section_id": { "type": "string" },
          "markdown": { "type": "string" }
        },
        "required": ["operation"]
      }
    }
  },
  "required": ["canvas_id", "changes"]
}`
}

func (t *batchEditTool) Execute(ctx context.Context, params map[string]any, _ tools.Runtime) tools.Result {
	if err := t.s.checkCanvas(tools.ParamString(params, "canvas_id")); err != nil {
		return tools.FromError(err)
	}
	changes, err := decodeChanges(params["changes"])
	if err != nil {
		return tools.FromError(err)
	}
	if err := canvas.ValidateChanges(changes); err != nil {
		return tools.FromError(err)
	}
	if ids := t.s.unresolved(changes); len(ids) > 0 {
		return tools.Errorf("unresolved section id %s: call lookup_sections and use an id it returned", strings.Join(ids, ", "))
	}
	if err := t.s.store.Edit(ctx, t.s.canvasID, changes); err != nil {
		if errors.Is(err, canvas.ErrUnknownSection) {
			return tools.Errorf("%s: look the section up again", err.Error())
		}
		return tools.Errorf("edit failed: %s", err.Error())
	}
	t.s.commit(changes)
	return tools.OK(map[string]any{
		"applied": len(changes),
		"note":    "section ids from earlier lookups are no longer valid",
	})
}

func decodeChanges(raw any) ([]canvas.Change, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("changes: %w", err)
	}
	var changes []canvas.Change
	if err := json.Unmarshal(b, &changes); err != nil {
		return nil, fmt.Errorf("changes must be a list of {operation, section_id, markdown}")
	}
	for i := range changes {
		changes[i].SectionID = strings.TrimSpace(changes[i].SectionID)
	}
	return changes, nil
}
