// Package promptprofile loads the optional persona file that customizes the
// assistant's identity and adds workspace-specific rules.
package promptprofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/quailyquaily/threadbot/responder"
	"gopkg.in/yaml.v3"
)

// Profile is the YAML document at prompt.profile_path:
//
//	persona: |
//	  You are Pip, the platform team's assistant.
//	rules:
//	  - Link runbooks from the team canvas when relevant.
type Profile struct {
	Persona string   `yaml:"persona"`
	Rules   []string `yaml:"rules"`
}

// Load reads and validates a profile. A missing file yields a zero Profile and
// fs.ErrNotExist.
func Load(path string) (Profile, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return Profile{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("parse prompt profile: %w", err)
	}
	p.Persona = strings.TrimSpace(p.Persona)
	rules := p.Rules[:0]
	for _, r := range p.Rules {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, r)
		}
	}
	p.Rules = rules
	return p, nil
}

// Apply overlays the profile at path onto cfg. Problems with the file are
// logged and leave cfg untouched, so a bad profile never stops the bot.
func Apply(cfg *responder.Config, path string, logger *slog.Logger) {
	if cfg == nil || strings.TrimSpace(path) == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	p, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("prompt_profile_missing", "path", path)
		} else {
			logger.Warn("prompt_profile_invalid", "path", path, "error", err.Error())
		}
		return
	}
	if p.Persona != "" {
		cfg.Persona = p.Persona
	}
	cfg.ExtraRules = append(cfg.ExtraRules, p.Rules...)
	logger.Info("prompt_profile_loaded", "path", path, "has_persona", p.Persona != "", "rules", len(p.Rules))
}
