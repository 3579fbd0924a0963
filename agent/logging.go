package agent

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// LogOptions bounds what tool arguments may reach the logs.
type LogOptions struct {
	IncludeToolParams   bool
	MaxStringValueChars int
	RedactKeys          []string
}

func DefaultLogOptions() LogOptions {
	return LogOptions{
		MaxStringValueChars: 200,
		RedactKeys:          []string{"api_key", "token", "authorization", "password", "secret"},
	}
}

func truncateString(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}

func isRedactedKey(key string, redact []string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, r := range redact {
		if r != "" && strings.Contains(k, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

// sanitizeURLForLog drops userinfo and redacts sensitive query parameters.
func sanitizeURLForLog(raw string, opts LogOptions) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return truncateString(raw, opts.MaxStringValueChars)
	}
	u.User = nil
	if q := u.Query(); len(q) > 0 {
		for k := range q {
			if isRedactedKey(k, opts.RedactKeys) {
				q.Set(k, "[redacted]")
			}
		}
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""
	return truncateString(u.String(), opts.MaxStringValueChars)
}

func sanitizeValue(v any, maxChars int, redact []string, key string) any {
	if key != "" && isRedactedKey(key, redact) {
		return "[redacted]"
	}
	switch x := v.(type) {
	case string:
		return truncateString(x, maxChars)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = sanitizeValue(val, maxChars, redact, k)
		}
		return out
	case []any:
		out := make([]any, 0, len(x))
		for _, val := range x {
			out = append(out, sanitizeValue(val, maxChars, redact, ""))
		}
		return out
	default:
		return v
	}
}
