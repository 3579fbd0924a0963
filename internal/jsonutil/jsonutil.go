package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyInput = errors.New("empty json input")

// DecodeWithFallback decodes model output that should be JSON but may be wrapped
// in a code fence or surrounded by prose.
func DecodeWithFallback(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ErrEmptyInput
	}
	if err := json.Unmarshal([]byte(s), out); err == nil {
		return nil
	}
	if fenced, ok := stripCodeFence(s); ok {
		if err := json.Unmarshal([]byte(fenced), out); err == nil {
			return nil
		}
		s = fenced
	}
	if obj, ok := outermost(s, '{', '}'); ok {
		if err := json.Unmarshal([]byte(obj), out); err == nil {
			return nil
		}
	}
	if arr, ok := outermost(s, '[', ']'); ok {
		if err := json.Unmarshal([]byte(arr), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no decodable json in input")
}

func stripCodeFence(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

func outermost(s string, open, close byte) (string, bool) {
	i := strings.IndexByte(s, open)
	j := strings.LastIndexByte(s, close)
	if i < 0 || j <= i {
		return "", false
	}
	return s[i : j+1], true
}
