package canvas

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const sample = `# Weekly plan

Buy coffee beans.

## Todo
- fix the build
- write docs

` + "```go\nfunc main() {}\n\n// still code\n```" + `

> quoted line`

func TestSplitMarkdownTypes(t *testing.T) {
	secs := SplitMarkdown(sample)
	want := []string{TypeH1, TypeParagraph, TypeH2, TypeList, TypeCode, TypeQuote}
	if len(secs) != len(want) {
		t.Fatalf("SplitMarkdown() got %d sections: %#v", len(secs), secs)
	}
	for i, w := range want {
		if secs[i].Type != w {
			t.Fatalf("section %d type = %q, want %q (%q)", i, secs[i].Type, w, secs[i].Content)
		}
	}
	if !strings.Contains(secs[4].Content, "// still code") {
		t.Fatalf("fenced code split apart: %q", secs[4].Content)
	}
}

func ids(secs []Section) []string {
	out := make([]string, len(secs))
	for i, s := range secs {
		out[i] = s.ID
	}
	return out
}

func counter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func TestApplyOperations(t *testing.T) {
	base := []Section{{ID: "a", Type: TypeH1, Content: "# A"}, {ID: "b", Type: TypeParagraph, Content: "b"}}
	got, err := Apply(base, []Change{
		{Operation: InsertAtStart, Markdown: "start"},
		{Operation: InsertAfter, SectionID: "a", Markdown: "after a"},
		{Operation: InsertBefore, SectionID: "b", Markdown: "before b"},
		{Operation: InsertAtEnd, Markdown: "end"},
		{Operation: Delete, SectionID: "b"},
	}, counter())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if strings.Join(ids(got), ",") != "n1,a,n2,n3,n4" {
		t.Fatalf("ids = %v", ids(got))
	}
	if len(base) != 2 || base[1].ID != "b" {
		t.Fatalf("input mutated: %#v", base)
	}
}

func TestApplyMoveIsDeletePlusInsert(t *testing.T) {
	base := []Section{{ID: "a", Content: "one"}, {ID: "b", Content: "two"}, {ID: "c", Content: "three"}}
	got, err := Apply(base, []Change{
		{Operation: Delete, SectionID: "a"},
		{Operation: InsertAfter, SectionID: "c", Markdown: "one"},
	}, counter())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	doc := Document{Sections: got}
	if doc.Markdown() != "two\n\nthree\n\none" {
		t.Fatalf("Markdown() = %q", doc.Markdown())
	}
}

func TestApplyReplaceWholeDocument(t *testing.T) {
	base := []Section{{ID: "a", Content: "old"}}
	got, err := Apply(base, []Change{{Operation: Replace, Markdown: "# New\n\nbody"}}, counter())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(got) != 2 || got[0].Type != TypeH1 {
		t.Fatalf("unexpected sections: %#v", got)
	}
}

func TestApplyRejectsUnknownSectionAtomically(t *testing.T) {
	base := []Section{{ID: "a", Content: "keep"}}
	_, err := Apply(base, []Change{
		{Operation: InsertAtEnd, Markdown: "x"},
		{Operation: Delete, SectionID: "ghost"},
	}, counter())
	if !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("Apply() error = %v, want ErrUnknownSection", err)
	}
}

func TestChangeValidate(t *testing.T) {
	bad := []Change{
		{Operation: Delete},
		{Operation: Delete, SectionID: "a", Markdown: "x"},
		{Operation: InsertAfter, Markdown: "x"},
		{Operation: InsertAtEnd, SectionID: "a", Markdown: "x"},
		{Operation: Replace},
		{Operation: "move", SectionID: "a"},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected error for %#v", c)
		}
	}
	if err := ValidateChanges(nil); err == nil {
		t.Fatalf("expected error for empty change list")
	}
}

func TestRankPrefersSubstringAndFiltersTypes(t *testing.T) {
	secs := []Section{
		{ID: "1", Type: TypeH2, Content: "## Coffee"},
		{ID: "2", Type: TypeParagraph, Content: "Buy coffee beans"},
		{ID: "3", Type: TypeParagraph, Content: "call office"},
		{ID: "4", Type: TypeParagraph, Content: "unrelated"},
	}
	got := Rank(secs, "coffee", nil)
	if len(got) < 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("Rank() = %v", ids(got))
	}
	for _, s := range got {
		if s.ID == "4" {
			t.Fatalf("unrelated section matched")
		}
	}
	headers := Rank(secs, "coffee", []string{AnyHeader})
	if len(headers) != 1 || headers[0].ID != "1" {
		t.Fatalf("header filter = %v", ids(headers))
	}
}
