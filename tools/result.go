package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Result is either a success payload (Data) or an error message (Err).
type Result struct {
	Data any
	Err  string
}

func OK(data any) Result {
	return Result{Data: data}
}

func Errorf(format string, args ...any) Result {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Err: msg}
}

// FromError converts err to an error result. A nil err yields an empty success.
func FromError(err error) Result {
	if err == nil {
		return Result{}
	}
	return Errorf("%s", err.Error())
}

func (r Result) IsError() bool {
	return strings.TrimSpace(r.Err) != ""
}

func (r Result) Error() error {
	if !r.IsError() {
		return nil
	}
	return errors.New(r.Err)
}

// JSON renders the result as the content fed back to the model.
func (r Result) JSON() string {
	if r.IsError() {
		b, _ := json.Marshal(map[string]string{"error": r.Err})
		return string(b)
	}
	switch v := r.Data.(type) {
	case nil:
		return `{"ok":true}`
	case string:
		return v
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			b, _ = json.Marshal(map[string]string{"error": "unencodable tool result: " + err.Error()})
		}
		return string(b)
	}
}
