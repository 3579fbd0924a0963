package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	url := "tool://" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parameter schema: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("parameter schema: %w", err)
	}
	return schema, nil
}

// validationMessage flattens a jsonschema error into one line the model can act on.
func validationMessage(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	leaves := collectLeaves(verr, nil)
	if len(leaves) == 0 {
		return strings.TrimSpace(verr.Message)
	}
	return strings.Join(leaves, "; ")
}

func collectLeaves(verr *jsonschema.ValidationError, out []string) []string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, loc+": "+strings.TrimSpace(verr.Message))
	}
	for _, cause := range verr.Causes {
		out = collectLeaves(cause, out)
	}
	return out
}
