package builtin

import (
	"context"
	"errors"
	"strings"

	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/canvas/editor"
	"github.com/quailyquaily/threadbot/tools"
)

func canvasError(action string, err error) tools.Result {
	if errors.Is(err, canvas.ErrNotFound) {
		return tools.Errorf("%s: canvas not found", action)
	}
	return tools.Errorf("%s: %s", action, err.Error())
}

type ListCanvasesTool struct {
	store canvas.Store
}

func NewListCanvasesTool(store canvas.Store) *ListCanvasesTool {
	return &ListCanvasesTool{store: store}
}

func (t *ListCanvasesTool) Name() string { return "list_canvases" }

func (t *ListCanvasesTool) Description() string {
	return "Lists the canvases in the current channel, most recently updated first."
}

func (t *ListCanvasesTool) ParameterSchema() string {
	return `{"type": "object", "additionalProperties": false, "properties": {}}`
}

func (t *ListCanvasesTool) Execute(ctx context.Context, _ map[string]any, rt tools.Runtime) tools.Result {
	rt.Report("is looking for canvases...")
	list, err := t.store.List(ctx, rt.ChannelID)
	if err != nil {
		return canvasError("list canvases", err)
	}
	return tools.OK(map[string]any{"canvases": list})
}

type CreateCanvasTool struct {
	store canvas.Store
}

func NewCreateCanvasTool(store canvas.Store) *CreateCanvasTool {
	return &CreateCanvasTool{store: store}
}

func (t *CreateCanvasTool) Name() string { return "create_canvas" }

func (t *CreateCanvasTool) Description() string {
	return "Creates a new canvas in the current channel from a title and markdown content."
}

func (t *CreateCanvasTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "title": { "type": "string", "minLength": 1 },
    "markdown": { "type": "string", "description": "Initial content in markdown." }
  },
  "required": ["title", "markdown"]
}`
}

func (t *CreateCanvasTool) Execute(ctx context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	title := tools.ParamString(params, "title")
	if title == "" {
		return tools.Errorf("title is required")
	}
	rt.Report("is creating a canvas...")
	md, _ := params["markdown"].(string)
	sum, err := t.store.Create(ctx, title, md, rt.ChannelID)
	if err != nil {
		return canvasError("create canvas", err)
	}
	return tools.OK(sum)
}

type ReadCanvasTool struct {
	store canvas.Store
}

func NewReadCanvasTool(store canvas.Store) *ReadCanvasTool {
	return &ReadCanvasTool{store: store}
}

func (t *ReadCanvasTool) Name() string { return "read_canvas" }

func (t *ReadCanvasTool) Description() string {
	return "Reads a canvas and returns its title and content as markdown."
}

func (t *ReadCanvasTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "canvas_id": { "type": "string", "minLength": 1 }
  },
  "required": ["canvas_id"]
}`
}

func (t *ReadCanvasTool) Execute(ctx context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	id := tools.ParamString(params, "canvas_id")
	rt.Report("is reading the canvas...")
	doc, err := t.store.Read(ctx, id)
	if err != nil {
		return canvasError("read canvas", err)
	}
	return tools.OK(map[string]any{
		"canvas_id": doc.ID,
		"title":     doc.Title,
		"sections":  len(doc.Sections),
		"markdown":  doc.Markdown(),
	})
}

type EditCanvasTool struct {
	editor *editor.Editor
}

func NewEditCanvasTool(ed *editor.Editor) *EditCanvasTool {
	return &EditCanvasTool{editor: ed}
}

func (t *EditCanvasTool) Name() string { return "edit_canvas" }

func (t *EditCanvasTool) Description() string {
	return "Edits an existing canvas according to a natural-language instruction, such as adding, rewriting, moving or removing content."
}

func (t *EditCanvasTool) ParameterSchema() string {
	return `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "canvas_id": { "type": "string", "minLength": 1 },
    "instruction": { "type": "string", "minLength": 1, "description": "What to change, in plain language. Include the exact content to add." }
  },
  "required": ["canvas_id", "instruction"]
}`
}

func (t *EditCanvasTool) Execute(ctx context.Context, params map[string]any, rt tools.Runtime) tools.Result {
	id := tools.ParamString(params, "canvas_id")
	instruction := strings.TrimSpace(tools.ParamString(params, "instruction"))
	rt.Report("is editing the canvas...")
	out, err := t.editor.Edit(ctx, id, instruction, rt)
	if err != nil {
		return canvasError("edit canvas", err)
	}
	return tools.OK(out)
}
