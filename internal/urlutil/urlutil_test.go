package urlutil

import (
	"testing"
)

type hit struct {
	URL   string
	Title string
}

func TestDedupeKeepsFirstSeen(t *testing.T) {
	in := []hit{
		{URL: "https://a.com/x?ref=1", Title: "first"},
		{URL: "https://b.com/y", Title: "other"},
		{URL: "https://a.com/x?ref=2", Title: "second"},
		{URL: "http://A.com/x/#top", Title: "third"},
	}
	out := Dedupe(in, func(h hit) string { return h.URL }, nil)
	if len(out) != 2 {
		t.Fatalf("Dedupe() len = %d, want 2: %#v", len(out), out)
	}
	if out[0].Title != "first" || out[1].Title != "other" {
		t.Fatalf("unexpected order: %#v", out)
	}
}

func TestDedupeKeepsUnparseableAndReports(t *testing.T) {
	in := []hit{{URL: "::not a url"}, {URL: "::not a url"}, {URL: ""}}
	var reported []string
	out := Dedupe(in, func(h hit) string { return h.URL }, func(raw string, err error) {
		reported = append(reported, raw)
	})
	if len(out) != 3 {
		t.Fatalf("Dedupe() len = %d, want 3", len(out))
	}
	if len(reported) != 3 {
		t.Fatalf("reported = %#v", reported)
	}
}

func TestKey(t *testing.T) {
	cases := map[string]string{
		"https://Example.com":           "example.com/",
		"https://example.com:8443/a/b/": "example.com/a/b",
		"http://example.com/a?q=1#f":    "example.com/a",
	}
	for raw, want := range cases {
		got, err := Key(raw)
		if err != nil {
			t.Fatalf("Key(%q) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("Key(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := Key("relative/path"); err == nil {
		t.Fatalf("expected error for relative path")
	}
}
