package agent

import (
	"encoding/json"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/quailyquaily/threadbot/llm"
)

// callKey identifies a tool call by name and RFC 8785 canonical arguments, so
// that key order and whitespace differences do not defeat reuse.
func callKey(call llm.ToolCall) (string, bool) {
	name := strings.TrimSpace(call.Name)
	if name == "" {
		return "", false
	}
	raw := []byte(strings.TrimSpace(call.RawArguments))
	if len(raw) == 0 {
		if call.Arguments == nil {
			raw = []byte("{}")
		} else {
			b, err := json.Marshal(call.Arguments)
			if err != nil {
				return "", false
			}
			raw = b
		}
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", false
	}
	return name + "\x00" + string(canonical), true
}
