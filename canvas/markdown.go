package canvas

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// SplitMarkdown cuts a markdown document into top-level sections: each heading
// line, and each blank-line separated block, becomes one section. Fenced code is
// kept whole. Returned sections carry no IDs.
func SplitMarkdown(md string) []Section {
	var out []Section
	for _, block := range splitBlocks(md) {
		out = append(out, Section{Type: classify(block), Content: block})
	}
	return out
}

func splitBlocks(md string) []string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	var (
		blocks  []string
		current []string
		inFence bool
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(current, "\n")); text != "" {
			blocks = append(blocks, text)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if !inFence {
				flush()
			}
			current = append(current, line)
			if inFence {
				flush()
			}
			inFence = !inFence
			continue
		}
		if inFence {
			current = append(current, line)
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if isATXHeading(trimmed) {
			flush()
			current = append(current, line)
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func isATXHeading(line string) bool {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	return n >= 1 && n <= 6 && (len(line) == n || line[n] == ' ')
}

// classify reports the section type of a single block using the markdown parser.
func classify(block string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(block))
	children := doc.GetChildren()
	if len(children) == 0 {
		return TypeParagraph
	}
	switch n := children[0].(type) {
	case *ast.Heading:
		switch {
		case n.Level <= 1:
			return TypeH1
		case n.Level == 2:
			return TypeH2
		default:
			return TypeH3
		}
	case *ast.List:
		return TypeList
	case *ast.CodeBlock:
		return TypeCode
	case *ast.BlockQuote:
		return TypeQuote
	case *ast.Table:
		return TypeTable
	case *ast.HorizontalRule:
		return TypeRule
	default:
		return TypeParagraph
	}
}
