package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotImplemented marks a backend that does not exist in this build.
var ErrNotImplemented = errors.New("backend not yet implemented")

// UnavailableError reports a backend that cannot be constructed or loaded.
// MissingDependency and Remediation are kept as data so callers can show
// them separately.
type UnavailableError struct {
	Backend           string
	MissingDependency string
	Remediation       string
	Err               error
}

func (e *UnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s engine unavailable", e.Backend)
	if e.MissingDependency != "" {
		fmt.Fprintf(&b, ": %s not installed", e.MissingDependency)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Remediation != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Remediation)
	}
	return b.String()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// EvalError is a failure reported by a backend for one expression.
type EvalError struct {
	Backend    string
	Expression string
	Message    string
	Err        error
}

func (e *EvalError) Error() string { return e.Message }

func (e *EvalError) Unwrap() error { return e.Err }
