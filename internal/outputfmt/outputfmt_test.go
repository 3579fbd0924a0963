package outputfmt

import "testing"

func TestToSlackMrkdwn(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"link", "see [the docs](https://example.com/a?b=1)", "see <https://example.com/a?b=1|the docs>"},
		{"bold", "this is **important** and __also__", "this is *important* and *also*"},
		{"heading", "## Results **now**", "*Results now*"},
		{"inline code untouched", "run `**not bold**` please", "run `**not bold**` please"},
		{"fence untouched", "```\n**x** [a](https://b.c)\n```\n**y**", "```\n**x** [a](https://b.c)\n```\n*y*"},
		{"plain", "What's 2+2? 4.", "What's 2+2? 4."},
	}
	for _, tc := range cases {
		if got := ToSlackMrkdwn(tc.in); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestFormatFinalOutputDecodesQuotedString(t *testing.T) {
	got := FormatFinalOutput(`"line one\nline two\nline three"`)
	if got != "line one\nline two\nline three" {
		t.Fatalf("got %q", got)
	}
}
