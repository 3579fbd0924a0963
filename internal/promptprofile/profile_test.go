package promptprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quailyquaily/threadbot/responder"
)

func TestApplyOverlaysPersonaAndRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	doc := "persona: |\n  You are Pip.\nrules:\n  - Cite the team canvas.\n  - \"  \"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := responder.Config{Persona: "default", ExtraRules: []string{"keep it short"}}
	Apply(&cfg, path, nil)
	if cfg.Persona != "You are Pip." {
		t.Fatalf("persona = %q", cfg.Persona)
	}
	if len(cfg.ExtraRules) != 2 || cfg.ExtraRules[1] != "Cite the team canvas." {
		t.Fatalf("rules = %#v", cfg.ExtraRules)
	}
}

func TestApplyKeepsConfigOnBadProfile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("persona: x\nunknown_key: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, path := range []string{bad, filepath.Join(dir, "missing.yaml")} {
		cfg := responder.Config{Persona: "default"}
		Apply(&cfg, path, nil)
		if cfg.Persona != "default" || len(cfg.ExtraRules) != 0 {
			t.Fatalf("%s: cfg changed: %#v", path, cfg)
		}
	}
}

func TestParseEmptyDocument(t *testing.T) {
	p, err := Parse(nil)
	if err != nil || p.Persona != "" || len(p.Rules) != 0 {
		t.Fatalf("Parse(nil) = %#v, %v", p, err)
	}
}
