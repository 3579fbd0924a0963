package agent

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/quailyquaily/threadbot/llm"
)

//go:embed prompts/system.tmpl
var systemPromptTemplateSource string

var systemPromptTemplate = template.Must(template.New("system").Parse(systemPromptTemplateSource))

// PromptSpec is the structured form of a system prompt. Tool schemas are never
// rendered; the model receives them through the request's tool declarations.
type PromptSpec struct {
	Identity string
	Blocks   []PromptBlock
	Rules    []string
}

type PromptBlock struct {
	Title   string
	Content string
}

// WithBlock returns a copy of spec with block appended, skipping empty and
// duplicate blocks.
func (spec PromptSpec) WithBlock(block PromptBlock) PromptSpec {
	out := spec
	out.Blocks = appendPromptBlock(append([]PromptBlock{}, spec.Blocks...), block)
	return out
}

func (spec PromptSpec) WithRules(rules ...string) PromptSpec {
	out := spec
	out.Rules = append([]string{}, spec.Rules...)
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out.Rules = append(out.Rules, r)
		}
	}
	return out
}

func BuildSystemPrompt(spec PromptSpec, decls []llm.Tool) string {
	var b strings.Builder
	data := struct {
		Identity string
		Tools    []llm.Tool
		Blocks   []PromptBlock
		Rules    []string
	}{
		Identity: strings.TrimSpace(spec.Identity),
		Tools:    decls,
		Blocks:   spec.Blocks,
		Rules:    spec.Rules,
	}
	if err := systemPromptTemplate.Execute(&b, data); err != nil {
		return data.Identity
	}
	return strings.TrimSpace(b.String())
}

func appendPromptBlock(blocks []PromptBlock, block PromptBlock) []PromptBlock {
	title := strings.TrimSpace(block.Title)
	content := strings.TrimSpace(block.Content)
	if title == "" || content == "" {
		return blocks
	}
	for _, existing := range blocks {
		if strings.EqualFold(strings.TrimSpace(existing.Title), title) &&
			strings.TrimSpace(existing.Content) == content {
			return blocks
		}
	}
	return append(blocks, PromptBlock{Title: title, Content: content})
}
