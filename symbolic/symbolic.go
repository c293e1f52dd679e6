// Package symbolic runs advanced_solve requests against the computer algebra
// engine and normalises its output.
package symbolic

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/njchilds90/axiom-mcp/compute"
	"github.com/njchilds90/axiom-mcp/engine"
)

// Evaluator is the engine as seen by the Service. *engine.Provider
// satisfies it.
type Evaluator interface {
	IsReady() bool
	Evaluate(ctx context.Context, expr string) (string, error)
}

// reasoner is implemented by evaluators that can explain why they are not
// ready.
type reasoner interface {
	Err() error
}

// ErrorKind classifies a symbolic failure.
type ErrorKind string

const (
	KindNotReady          ErrorKind = "not_ready"
	KindEngineUnavailable ErrorKind = "engine_unavailable"
	KindBackend           ErrorKind = "backend"
)

var (
	// ErrEvaluation matches every *Error with errors.Is.
	ErrEvaluation = errors.New("symbolic evaluation error")
	// ErrNotReady is the cause of KindNotReady errors.
	ErrNotReady = errors.New("engine not initialized")
)

// Error is a failed symbolic evaluation. Expression is what was submitted to
// the engine.
type Error struct {
	Kind       ErrorKind
	Expression string
	Err        error
}

func (e *Error) Error() string { return "symbolic evaluation error: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrEvaluation }

// Service evaluates symbolic requests. It never initialises the engine.
type Service struct {
	eval Evaluator
	log  logrus.FieldLogger
}

// NewService returns a Service over eval. A nil logger uses the logrus
// standard logger.
func NewService(eval Evaluator, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{eval: eval, log: log.WithField("component", "symbolic")}
}

// Submission returns the expression sent to the engine for req.
func Submission(req compute.Request) string {
	if req.ShouldSimplify() {
		return "simplify(" + req.Expression + ")"
	}
	return req.Expression
}

// Evaluate runs req. On failure no partial result is returned.
func (s *Service) Evaluate(ctx context.Context, req compute.Request) (*compute.Result, error) {
	submitted := Submission(req)
	if !s.eval.IsReady() {
		return nil, s.notReady(submitted)
	}

	out, err := s.eval.Evaluate(ctx, submitted)
	if err != nil {
		return nil, s.fail(submitted, err)
	}
	result, steps := splitSteps(out)
	res := &compute.Result{
		Result:    result,
		Kind:      compute.KindSymbolic,
		Variables: ExtractVariables(req.Expression),
	}
	if req.Steps {
		res.Steps = steps
	}

	if req.Format.WantsLaTeX() {
		latexExpr := "latex(" + result + ")"
		tex, err := s.eval.Evaluate(ctx, latexExpr)
		if err != nil {
			return nil, s.fail(latexExpr, err)
		}
		res.LaTeX = unquote(tex)
	}

	s.log.WithFields(logrus.Fields{
		"submitted": submitted,
		"steps":     len(res.Steps),
		"variables": len(res.Variables),
	}).Debug("symbolic.eval")
	return res, nil
}

func (s *Service) notReady(submitted string) error {
	if r, ok := s.eval.(reasoner); ok {
		if reason := r.Err(); reason != nil {
			return s.fail(submitted, reason)
		}
	}
	return &Error{Kind: KindNotReady, Expression: submitted, Err: ErrNotReady}
}

func (s *Service) fail(submitted string, err error) error {
	kind := KindBackend
	var unavailable *engine.UnavailableError
	if errors.As(err, &unavailable) {
		kind = KindEngineUnavailable
	}
	s.log.WithError(err).WithFields(logrus.Fields{
		"submitted": submitted,
		"kind":      kind,
	}).Debug("symbolic.eval.failed")
	return &Error{Kind: kind, Expression: submitted, Err: err}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
