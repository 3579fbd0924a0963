package tools

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingCredential marks a tool call that could not start because a required
// secret is absent from the environment.
var ErrMissingCredential = errors.New("missing credential")

// Tool is one capability the model may call. Execute never fails past its own
// boundary: every failure is reported through Result.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() string
	Execute(ctx context.Context, params map[string]any, rt Runtime) Result
}

// StatusReporter receives human-readable progress lines. Delivery is best-effort.
type StatusReporter interface {
	ReportStatus(text string)
}

type nopReporter struct{}

func (nopReporter) ReportStatus(string) {}

// NopReporter discards every status line.
var NopReporter StatusReporter = nopReporter{}

// StatusFunc adapts a function to StatusReporter.
type StatusFunc func(text string)

func (f StatusFunc) ReportStatus(text string) {
	if f != nil {
		f(text)
	}
}

// Runtime is the ambient context injected by the orchestrator. It is never part
// of a tool's parameter schema.
type Runtime struct {
	Status    StatusReporter
	ChannelID string
	ThreadTS  string
	UserID    string
}

// Report forwards text to the status reporter, tolerating a nil reporter and a
// reporter that panics.
func (rt Runtime) Report(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r := rt.Status
	if r == nil {
		r = NopReporter
	}
	defer func() { _ = recover() }()
	r.ReportStatus(text)
}
