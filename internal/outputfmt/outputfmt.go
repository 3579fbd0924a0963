package outputfmt

import (
	"encoding/json"
	"regexp"
	"strings"
)

// FormatFinalOutput normalizes a model's final answer and rewrites it into Slack
// mrkdwn.
func FormatFinalOutput(raw string) string {
	return ToSlackMrkdwn(normalizeFinalStringOutput(raw))
}

func normalizeFinalStringOutput(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if decoded, ok := decodeJSONStringLiteral(s); ok {
		s = strings.TrimSpace(decoded)
	}

	if shouldDecodeEscapedMultiline(s) {
		s = strings.TrimSpace(decodeEscapedMultiline(s))
	}
	return s
}

func decodeJSONStringLiteral(s string) (string, bool) {
	if len(s) < 2 || !strings.HasPrefix(s, "\"") || !strings.HasSuffix(s, "\"") {
		return "", false
	}
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return "", false
	}
	return out, true
}

func shouldDecodeEscapedMultiline(s string) bool {
	if !strings.Contains(s, `\`) {
		return false
	}
	escapedNewlines := strings.Count(s, `\n`) + strings.Count(s, `\r`)
	if escapedNewlines >= 2 && !strings.ContainsAny(s, "\n\r") {
		return true
	}
	if escapedNewlines >= 3 {
		return true
	}
	return false
}

func decodeEscapedMultiline(s string) string {
	replacer := strings.NewReplacer(
		`\r\n`, "\n",
		`\n`, "\n",
		`\r`, "\n",
	)
	return replacer.Replace(s)
}

var (
	markdownLinkPattern   = regexp.MustCompile(`\[([^\[\]\n]+)\]\((https?://[^\s)]+)\)`)
	markdownBoldPattern   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	markdownUBoldPattern  = regexp.MustCompile(`__([^_\n]+)__`)
	markdownHeaderPattern = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*\s*$`)
	inlineCodePattern     = regexp.MustCompile("`[^`\n]*`")
)

// ToSlackMrkdwn rewrites generic markdown into Slack's mrkdwn dialect: links
// become <url|label>, double-marker bold becomes single-asterisk bold and ATX
// headings become bold lines. Fenced code blocks and inline code are untouched.
func ToSlackMrkdwn(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = convertLine(line)
	}
	return strings.Join(lines, "\n")
}

func convertLine(line string) string {
	if m := markdownHeaderPattern.FindStringSubmatch(line); m != nil {
		line = "*" + stripBold(m[1]) + "*"
		return convertInline(line)
	}
	return convertInline(line)
}

func stripBold(s string) string {
	s = markdownBoldPattern.ReplaceAllString(s, "$1")
	return markdownUBoldPattern.ReplaceAllString(s, "$1")
}

// convertInline rewrites everything outside inline code spans.
func convertInline(line string) string {
	spans := inlineCodePattern.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return rewriteSegment(line)
	}
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(rewriteSegment(line[prev:sp[0]]))
		b.WriteString(line[sp[0]:sp[1]])
		prev = sp[1]
	}
	b.WriteString(rewriteSegment(line[prev:]))
	return b.String()
}

func rewriteSegment(s string) string {
	s = markdownLinkPattern.ReplaceAllString(s, "<$2|$1>")
	s = markdownBoldPattern.ReplaceAllString(s, "*$1*")
	s = markdownUBoldPattern.ReplaceAllString(s, "*$1*")
	return s
}
