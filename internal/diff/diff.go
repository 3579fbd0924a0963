package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Kind int

const (
	Same Kind = iota
	Added
	Removed
)

type Line struct {
	Kind Kind
	Text string
}

// Summary is a line-level comparison of two versions of a document.
type Summary struct {
	Lines   []Line
	Added   int
	Removed int
}

func (s Summary) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

// Lines compares before and after line by line.
func Lines(before, after string) Summary {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var out Summary
	for _, d := range diffs {
		kind := Same
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			kind = Added
		case diffmatchpatch.DiffDelete:
			kind = Removed
		}
		for _, text := range splitLines(d.Text) {
			out.Lines = append(out.Lines, Line{Kind: kind, Text: text})
			switch kind {
			case Added:
				out.Added++
			case Removed:
				out.Removed++
			}
		}
	}
	return out
}

// Render prints changed lines in unified style, "+" and "-" prefixed, capped at
// maxLines. Unchanged lines are omitted.
func (s Summary) Render(maxLines int) string {
	if !s.Changed() {
		return "no changes"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "+%d -%d lines\n", s.Added, s.Removed)
	written := 0
	for _, l := range s.Lines {
		if l.Kind == Same {
			continue
		}
		if maxLines > 0 && written >= maxLines {
			b.WriteString("...\n")
			break
		}
		if l.Kind == Added {
			b.WriteString("+ ")
		} else {
			b.WriteString("- ")
		}
		b.WriteString(l.Text)
		b.WriteByte('\n')
		written++
	}
	return strings.TrimRight(b.String(), "\n")
}

func splitLines(text string) []string {
	parts := strings.Split(text, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
