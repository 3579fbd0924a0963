package canvas

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Apply returns the sections that result from applying changes in order. Inserted
// and replacement markdown is split into sections with ids from newID. The input
// slice is not modified; on error nothing is applied.
func Apply(sections []Section, changes []Change, newID func() string) ([]Section, error) {
	if err := ValidateChanges(changes); err != nil {
		return nil, err
	}
	out := append([]Section(nil), sections...)
	fresh := func(md string) []Section {
		parts := SplitMarkdown(md)
		for i := range parts {
			parts[i].ID = newID()
		}
		return parts
	}
	for i, c := range changes {
		idx := -1
		if c.SectionID != "" {
			idx = indexOf(out, c.SectionID)
			if idx < 0 {
				return nil, fmt.Errorf("change %d: %w: %s", i, ErrUnknownSection, c.SectionID)
			}
		}
		switch c.Operation {
		case InsertAtStart:
			out = splice(out, 0, 0, fresh(c.Markdown))
		case InsertAtEnd:
			out = splice(out, len(out), 0, fresh(c.Markdown))
		case InsertBefore:
			out = splice(out, idx, 0, fresh(c.Markdown))
		case InsertAfter:
			out = splice(out, idx+1, 0, fresh(c.Markdown))
		case Replace:
			if idx < 0 {
				out = fresh(c.Markdown)
				continue
			}
			out = splice(out, idx, 1, fresh(c.Markdown))
		case Delete:
			out = splice(out, idx, 1, nil)
		}
	}
	return out, nil
}

func indexOf(sections []Section, id string) int {
	for i, s := range sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func splice(s []Section, at, remove int, insert []Section) []Section {
	out := make([]Section, 0, len(s)-remove+len(insert))
	out = append(out, s[:at]...)
	out = append(out, insert...)
	return append(out, s[at+remove:]...)
}

// Rank orders the sections matching query, best first. Case-insensitive
// substring hits come before fuzzy subsequence hits; ties keep document order.
// An empty query returns every section that passes the type filter.
func Rank(sections []Section, query string, types []string) []Section {
	candidates := make([]Section, 0, len(sections))
	for _, s := range sections {
		if MatchesType(s.Type, types) {
			candidates = append(candidates, s)
		}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return candidates
	}

	lq := strings.ToLower(query)
	var exact []Section
	rest := make([]string, 0, len(candidates))
	restIdx := make([]int, 0, len(candidates))
	for i, s := range candidates {
		if strings.Contains(strings.ToLower(s.Content), lq) {
			exact = append(exact, s)
			continue
		}
		rest = append(rest, strings.ToLower(s.Content))
		restIdx = append(restIdx, i)
	}
	matches := fuzzy.Find(lq, rest)
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	out := exact
	for _, m := range matches {
		out = append(out, candidates[restIdx[m.Index]])
	}
	return out
}
