package outputfmt

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func joinBlocks(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(blk.Text)
	}
	return b.String()
}

func TestChunkBlocksShortTextIsSingleUnchangedBlock(t *testing.T) {
	for _, text := range []string{"a", "What's 2+2? It's 4.", strings.Repeat("x", 50)} {
		blocks := ChunkBlocks(text, 1000, 50)
		if len(blocks) != 1 {
			t.Fatalf("len(blocks) = %d for %q", len(blocks), text)
		}
		if blocks[0].Text != text {
			t.Fatalf("block text = %q, want %q", blocks[0].Text, text)
		}
	}
}

func TestChunkBlocksEmptyTextUsesPlaceholder(t *testing.T) {
	blocks := ChunkBlocks("", 100, 10)
	if len(blocks) != 1 || blocks[0].Text != " " {
		t.Fatalf("unexpected blocks: %#v", blocks)
	}
}

func TestChunkBlocksExactBoundaryHasNoTrailingEmptyBlock(t *testing.T) {
	text := strings.Repeat("ab", 20) // 40 runes
	blocks := ChunkBlocks(text, 1000, 20)
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	for i, b := range blocks {
		if b.Text == "" {
			t.Fatalf("block %d is empty", i)
		}
	}
}

func TestChunkBlocksCoverageAndLimits(t *testing.T) {
	words := strings.Repeat("lorem ipsum dolor sit amet consectetur ", 400)
	const maxBlock = 300
	blocks := ChunkBlocks(words, 100000, maxBlock)
	if got := joinBlocks(blocks); got != words {
		t.Fatalf("concatenated blocks do not reproduce the input")
	}
	for i, b := range blocks {
		if n := utf8.RuneCountInString(b.Text); n > maxBlock {
			t.Fatalf("block %d has %d runes > %d", i, n, maxBlock)
		}
	}
}

func TestChunkBlocksTruncatesDeterministically(t *testing.T) {
	text := strings.Repeat("word ", 2000) // 10000 runes
	const maxTotal = 1000
	a := ChunkBlocks(text, maxTotal, 200)
	b := ChunkBlocks(text, maxTotal, 200)
	if joinBlocks(a) != joinBlocks(b) {
		t.Fatalf("truncation is not deterministic")
	}
	joined := joinBlocks(a)
	if !strings.HasSuffix(joined, TruncationNotice) {
		t.Fatalf("missing truncation notice")
	}
	kept := strings.TrimSuffix(joined, TruncationNotice)
	if !strings.HasPrefix(text, kept) {
		t.Fatalf("kept text is not a prefix of the input")
	}
	if n := utf8.RuneCountInString(kept); n > maxTotal {
		t.Fatalf("kept %d runes > %d", n, maxTotal)
	}
}

func TestChunkBlocksPrefersWhitespaceNearBoundary(t *testing.T) {
	const maxBlock = 50
	// a space exactly 5 runes before the boundary, no other whitespace
	text := strings.Repeat("a", maxBlock-5) + " " + strings.Repeat("b", 200)
	blocks := ChunkBlocks(text, 100000, maxBlock)
	first := blocks[0].Text
	if first != strings.Repeat("a", maxBlock-5) {
		t.Fatalf("first block = %q (len %d), want cut before the space", first, len(first))
	}
	if !strings.HasPrefix(blocks[1].Text, " b") {
		t.Fatalf("second block should start with the space, got %q", blocks[1].Text[:5])
	}
}

func TestChunkBlocksHardCutsWithoutNearbyWhitespace(t *testing.T) {
	const maxBlock = 150
	// whitespace exists but outside the trailing search window
	text := "a " + strings.Repeat("c", 400)
	blocks := ChunkBlocks(text, 100000, maxBlock)
	if utf8.RuneCountInString(blocks[0].Text) != maxBlock {
		t.Fatalf("expected hard cut at %d, got %d", maxBlock, utf8.RuneCountInString(blocks[0].Text))
	}
	if joinBlocks(blocks) != text {
		t.Fatalf("coverage broken")
	}
}

func TestChunkBlocksDoesNotSplitMultibyteRunes(t *testing.T) {
	text := strings.Repeat("日本語", 100)
	blocks := ChunkBlocks(text, 100000, 40)
	for i, b := range blocks {
		if !utf8.ValidString(b.Text) {
			t.Fatalf("block %d is not valid utf-8", i)
		}
	}
	if joinBlocks(blocks) != text {
		t.Fatalf("coverage broken")
	}
}

func TestSlackSectionsPreserveOrder(t *testing.T) {
	sections := SlackSections([]Block{{Text: "one"}, {Text: "two"}})
	if len(sections) != 2 {
		t.Fatalf("len = %d", len(sections))
	}
	text := sections[1]["text"].(map[string]any)["text"]
	if text != "two" || sections[0]["type"] != "section" {
		t.Fatalf("unexpected sections: %#v", sections)
	}
}
