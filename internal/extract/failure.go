// Package extract wraps one inference call per job and turns its outcome into
// either a validated fragment or a classified failure.
package extract

import (
	"errors"
	"fmt"
)

// Kind classifies an extraction failure.
type Kind string

const (
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindTimeout           Kind = "timeout"
	KindSystem            Kind = "system_failure"
	KindParse             Kind = "parse_failure"
)

// Failure is the error returned by Invoker.Extract for every unsuccessful call.
type Failure struct {
	Kind   Kind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}
