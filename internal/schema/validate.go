package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationError reports why a payload does not conform to the fragment
// schema. Path is a JSON pointer to the offending value ("" for the document).
type ValidationError struct {
	Path    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("fragment %s: %s", path, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(permissive(BuildFragmentJSONSchema()))
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("fragment.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("fragment.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks raw against the fragment schema and decodes it. Sentinel
// values pass through unchanged. Any non-conformance is a *ValidationError.
func Validate(raw []byte) (*Fragment, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Message: "malformed JSON: " + err.Error(), Err: err}
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepest(ve)
			return nil, &ValidationError{Path: leaf.InstanceLocation, Message: leaf.Message, Err: err}
		}
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}

	// Decode from the validated document: integral floats like 40.0 re-encode
	// as 40 and extra keys are dropped by the struct decode.
	norm, err := json.Marshal(doc)
	if err != nil {
		return nil, &ValidationError{Message: "decode: " + err.Error(), Err: err}
	}
	var frag Fragment
	if err := json.Unmarshal(norm, &frag); err != nil {
		return nil, &ValidationError{Message: "decode: " + err.Error(), Err: err}
	}
	return &frag, nil
}

// permissive strips additionalProperties so validation tolerates keys the
// model adds beyond the contract. The schema sent to the model keeps them.
func permissive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "additionalProperties" {
				continue
			}
			out[k] = permissive(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = permissive(val)
		}
		return out
	default:
		return v
	}
}

// deepest returns the leaf cause that points furthest into the instance,
// which is the most specific explanation the validator produced.
func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return ve
	}
	var best *jsonschema.ValidationError
	for _, c := range ve.Causes {
		if d := deepest(c); best == nil || len(d.InstanceLocation) > len(best.InstanceLocation) {
			best = d
		}
	}
	return best
}
