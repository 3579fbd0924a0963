package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Key reduces a URL to its lowercase hostname and path, so that links differing
// only in scheme, port, query or fragment compare equal. A trailing slash on a
// non-root path is dropped.
func Key(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return host + path, nil
}

// Dedupe keeps the first item for each URL key, preserving input order. Items
// whose URL cannot be keyed are kept as-is and reported through onInvalid when
// it is non-nil.
func Dedupe[T any](items []T, urlOf func(T) string, onInvalid func(raw string, err error)) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		raw := urlOf(item)
		key, err := Key(raw)
		if err != nil {
			if onInvalid != nil {
				onInvalid(raw, err)
			}
			out = append(out, item)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
