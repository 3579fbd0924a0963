package outputfmt

import (
	"unicode"
)

const (
	// DefaultMaxBlockLength is Slack's limit for the text of one section block.
	DefaultMaxBlockLength = 3000
	// DefaultMaxTotalLength keeps a chunked answer well under Slack's 50-block cap.
	DefaultMaxTotalLength = 39000

	TruncationMargin     = 100
	BoundarySearchWindow = 100
	TruncationNotice     = "\n\n_…response truncated_"
)

// Block is one independently renderable piece of a chunked answer.
type Block struct {
	Text string
}

// SlackSection renders the block as a Block Kit section with mrkdwn text.
func (b Block) SlackSection() map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": b.Text,
		},
	}
}

// SlackSections renders blocks in order.
func SlackSections(blocks []Block) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.SlackSection())
	}
	return out
}

// ChunkBlocks splits text into ordered blocks of at most maxBlock runes,
// preferring to cut before the nearest whitespace at or before each boundary,
// looking back at most BoundarySearchWindow runes. The whitespace opens the next
// block, so the blocks concatenate back to the (possibly truncated) input.
// Text longer than maxTotal is truncated first and gets TruncationNotice
// appended. Non-positive limits fall back to the defaults.
func ChunkBlocks(text string, maxTotal, maxBlock int) []Block {
	if maxBlock <= 0 {
		maxBlock = DefaultMaxBlockLength
	}
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotalLength
	}
	if text == "" {
		return []Block{{Text: " "}}
	}

	runes := []rune(text)
	if len(runes) > maxTotal {
		keep := maxTotal - TruncationMargin
		if keep < 0 {
			keep = 0
		}
		runes = append(runes[:keep:keep], []rune(TruncationNotice)...)
	}

	var blocks []Block
	start := 0
	for start < len(runes) {
		if len(runes)-start <= maxBlock {
			blocks = append(blocks, Block{Text: string(runes[start:])})
			break
		}
		end := start + maxBlock
		cut := end
		floor := end - BoundarySearchWindow
		if floor <= start {
			floor = start + 1
		}
		for i := end; i >= floor; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		blocks = append(blocks, Block{Text: string(runes[start:cut])})
		start = cut
	}
	return blocks
}
