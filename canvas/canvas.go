// Package canvas models a section-structured markdown document (a Slack canvas)
// and the store operations the assistant performs on it.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("canvas not found")
	ErrUnknownSection = errors.New("unknown section id")
)

// Section types. Headers use their level; everything else is a body type.
const (
	TypeH1        = "h1"
	TypeH2        = "h2"
	TypeH3        = "h3"
	TypeParagraph = "paragraph"
	TypeList      = "list"
	TypeCode      = "code"
	TypeQuote     = "quote"
	TypeTable     = "table"
	TypeRule      = "rule"

	// AnyHeader is a lookup filter matching h1, h2 and h3.
	AnyHeader = "any_header"
)

// Section is one addressable span of a document. ID is assigned by the store
// and is only meaningful for the snapshot it was read from.
type Section struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (s Section) IsHeader() bool {
	switch s.Type {
	case TypeH1, TypeH2, TypeH3:
		return true
	}
	return false
}

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ChannelID string    `json:"channel_id,omitempty"`
	Sections  []Section `json:"sections"`
}

// Markdown joins the section contents back into one markdown document.
func (d Document) Markdown() string {
	parts := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		if c := strings.TrimSpace(s.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (d Document) Section(id string) (Section, bool) {
	for _, s := range d.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ChannelID string    `json:"channel_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Operation string

const (
	InsertAfter   Operation = "insert_after"
	InsertBefore  Operation = "insert_before"
	InsertAtStart Operation = "insert_at_start"
	InsertAtEnd   Operation = "insert_at_end"
	Replace       Operation = "replace"
	Delete        Operation = "delete"
)

var Operations = []Operation{InsertAfter, InsertBefore, InsertAtStart, InsertAtEnd, Replace, Delete}

// Change is one section-addressed edit. Replace without a SectionID rewrites the
// whole document.
type Change struct {
	Operation Operation `json:"operation"`
	SectionID string    `json:"section_id,omitempty"`
	Markdown  string    `json:"markdown,omitempty"`
}

func (c Change) Validate() error {
	hasID := strings.TrimSpace(c.SectionID) != ""
	hasMD := strings.TrimSpace(c.Markdown) != ""
	switch c.Operation {
	case InsertAfter, InsertBefore:
		if !hasID {
			return fmt.Errorf("%s requires section_id", c.Operation)
		}
		if !hasMD {
			return fmt.Errorf("%s requires markdown", c.Operation)
		}
	case InsertAtStart, InsertAtEnd:
		if hasID {
			return fmt.Errorf("%s does not take section_id", c.Operation)
		}
		if !hasMD {
			return fmt.Errorf("%s requires markdown", c.Operation)
		}
	case Replace:
		if !hasMD {
			return fmt.Errorf("replace requires markdown")
		}
	case Delete:
		if !hasID {
			return fmt.Errorf("delete requires section_id")
		}
		if hasMD {
			return fmt.Errorf("delete does not take markdown")
		}
	default:
		return fmt.Errorf("unsupported operation %q", c.Operation)
	}
	return nil
}

func ValidateChanges(changes []Change) error {
	if len(changes) == 0 {
		return fmt.Errorf("no changes given")
	}
	for i, c := range changes {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}

// MatchesType reports whether a section of type t passes the lookup filter.
// An empty filter matches everything.
func MatchesType(t string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == t {
			return true
		}
		if f == AnyHeader && (t == TypeH1 || t == TypeH2 || t == TypeH3) {
			return true
		}
	}
	return false
}

// Store is the document backend. Edit applies all changes or none where the
// backend allows it.
type Store interface {
	List(ctx context.Context, channelID string) ([]Summary, error)
	Create(ctx context.Context, title, markdown, channelID string) (Summary, error)
	Read(ctx context.Context, id string) (Document, error)
	Lookup(ctx context.Context, id, query string, types []string) ([]Section, error)
	Edit(ctx context.Context, id string, changes []Change) error
}
