package agent

import (
	"strings"
)

// toolArgsSummary picks the few arguments worth logging for each tool. Free-form
// content such as canvas markdown is reduced to a presence flag.
func toolArgsSummary(toolName string, params map[string]any, opts LogOptions) map[string]any {
	if len(params) == 0 {
		return nil
	}

	out := make(map[string]any)
	str := func(key string) (string, bool) {
		v, ok := params[key].(string)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	switch toolName {
	case "web_scrape":
		if v, ok := str("url"); ok {
			out["url"] = sanitizeURLForLog(v, opts)
		}
	case "web_search":
		if v, ok := str("query"); ok {
			out["query"] = truncateString(v, opts.MaxStringValueChars)
		}
	case "deep_research":
		if v, ok := str("topic"); ok {
			out["topic"] = truncateString(v, opts.MaxStringValueChars)
		}
	case "read_canvas", "edit_canvas", "lookup_sections", "batch_edit":
		if v, ok := str("canvas_id"); ok {
			out["canvas_id"] = v
		}
		if v, ok := str("query"); ok {
			out["query"] = truncateString(v, opts.MaxStringValueChars)
		}
		if _, ok := params["instruction"]; ok {
			out["has_instruction"] = true
		}
		if changes, ok := params["changes"].([]any); ok {
			out["changes"] = len(changes)
		}
	case "create_canvas":
		if v, ok := str("title"); ok {
			out["title"] = truncateString(v, opts.MaxStringValueChars)
		}
		if v, ok := params["markdown"].(string); ok {
			out["has_markdown"] = strings.TrimSpace(v) != ""
		}
	default:
		if opts.IncludeToolParams {
			for k, v := range params {
				out[k] = sanitizeValue(v, opts.MaxStringValueChars, opts.RedactKeys, k)
			}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
