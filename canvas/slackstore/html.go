package slackstore

import (
	"io"
	"strings"

	"github.com/quailyquaily/threadbot/canvas"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseSections turns a canvas HTML export into sections. Every block element
// carrying an id becomes one section; its text is rendered back to markdown.
func parseSections(r io.Reader) ([]canvas.Section, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var out []canvas.Section
	var walk func(n *html.Node, listDepth int)
	walk = func(n *html.Node, listDepth int) {
		if n.Type == html.ElementNode {
			if id := attr(n, "id"); id != "" {
				if typ, prefix, ok := blockKind(n); ok {
					text := strings.TrimSpace(nodeText(n))
					if n.DataAtom == atom.Pre {
						text = "```\n" + strings.Trim(rawText(n), "\n") + "\n```"
					} else if text != "" || prefix != "" {
						if n.DataAtom == atom.Li && listDepth > 1 {
							prefix = strings.Repeat("  ", listDepth-1) + prefix
						}
						text = prefix + text
					}
					out = append(out, canvas.Section{ID: id, Type: typ, Content: text})
					return
				}
			}
			if n.DataAtom == atom.Ul || n.DataAtom == atom.Ol {
				listDepth++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, listDepth)
		}
	}
	walk(root, 0)
	return out, nil
}

func blockKind(n *html.Node) (typ, prefix string, ok bool) {
	switch n.DataAtom {
	case atom.H1:
		return canvas.TypeH1, "# ", true
	case atom.H2:
		return canvas.TypeH2, "## ", true
	case atom.H3, atom.H4, atom.H5, atom.H6:
		return canvas.TypeH3, "### ", true
	case atom.P:
		return canvas.TypeParagraph, "", true
	case atom.Li:
		if n.Parent != nil && n.Parent.DataAtom == atom.Ol {
			return canvas.TypeList, "1. ", true
		}
		if checked, isTask := checkbox(n); isTask {
			if checked {
				return canvas.TypeList, "- [x] ", true
			}
			return canvas.TypeList, "- [ ] ", true
		}
		return canvas.TypeList, "- ", true
	case atom.Pre:
		return canvas.TypeCode, "", true
	case atom.Blockquote:
		return canvas.TypeQuote, "> ", true
	case atom.Table:
		return canvas.TypeTable, "", true
	case atom.Hr:
		return canvas.TypeRule, "---", true
	}
	return "", "", false
}

func checkbox(li *html.Node) (checked, ok bool) {
	var found, isChecked bool
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Input && attr(n, "type") == "checkbox" {
			found = true
			_, isChecked = hasAttr(n, "checked")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(li)
	return isChecked, found
}

// nodeText collapses whitespace and renders links and emphasis as markdown.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Br:
				b.WriteString("\n")
				return
			case atom.A:
				href := attr(n, "href")
				inner := strings.TrimSpace(collapse(childText(n)))
				if href != "" && inner != "" && inner != href {
					b.WriteString("[" + inner + "](" + href + ")")
				} else if href != "" {
					b.WriteString(href)
				} else {
					b.WriteString(inner)
				}
				return
			case atom.B, atom.Strong:
				b.WriteString("**" + strings.TrimSpace(childText(n)) + "**")
				return
			case atom.Code:
				b.WriteString("`" + childText(n) + "`")
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return collapse(b.String())
}

func childText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func rawText(n *html.Node) string {
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapse(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.Join(lines, "\n")
}

func attr(n *html.Node, key string) string {
	v, _ := hasAttr(n, key)
	return strings.TrimSpace(v)
}

func hasAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
