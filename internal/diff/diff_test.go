package diff

import (
	"strings"
	"testing"
)

func TestLinesCountsChanges(t *testing.T) {
	before := "# Plan\nstep one\nstep two\n"
	after := "# Plan\nstep one\nstep 2\nstep three\n"

	s := Lines(before, after)
	if s.Added != 2 || s.Removed != 1 {
		t.Fatalf("Lines() added=%d removed=%d, want 2/1", s.Added, s.Removed)
	}
	out := s.Render(0)
	if !strings.HasPrefix(out, "+2 -1 lines") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "- step two") || !strings.Contains(out, "+ step three") {
		t.Fatalf("unexpected render: %q", out)
	}
	if strings.Contains(out, "# Plan") {
		t.Fatalf("unchanged lines must be omitted: %q", out)
	}
}

func TestRenderNoChangesAndCap(t *testing.T) {
	if got := Lines("a\nb", "a\nb").Render(10); got != "no changes" {
		t.Fatalf("Render() = %q", got)
	}
	got := Lines("", "1\n2\n3\n4\n").Render(2)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected cap marker, got %q", got)
	}
}
