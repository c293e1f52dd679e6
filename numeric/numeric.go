// Package numeric is the in-process arbitrary-precision evaluator behind
// quick_calc. Expressions are parsed into a small tree and evaluated over
// complex numbers with rational parts: exact where rational arithmetic
// suffices, big.Float approximations otherwise.
package numeric

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/njchilds90/axiom-mcp/compute"
)

// ErrEvaluation matches every *Error with errors.Is.
var ErrEvaluation = errors.New("numeric evaluation error")

// Error is a parse or evaluation failure.
type Error struct {
	Expression string
	Err        error
}

func (e *Error) Error() string { return "numeric evaluation error: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrEvaluation }

// Eval parses and evaluates expr with working precision suited to places
// displayed decimal places.
func Eval(expr string, places int) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Expression: expr, Err: fmt.Errorf("%v", r)}
		}
	}()
	tree, err := Parse(expr)
	if err != nil {
		return Value{}, &Error{Expression: expr, Err: err}
	}
	v, err = tree.Eval(NewEnv(places))
	if err != nil {
		return Value{}, &Error{Expression: expr, Err: err}
	}
	return v, nil
}

// Service evaluates quick_calc requests.
type Service struct {
	log logrus.FieldLogger
}

// NewService returns a Service. A nil logger uses the logrus standard logger.
func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{log: log.WithField("component", "numeric")}
}

// Evaluate computes req.Expression and renders it at the requested
// precision. Units are accepted and not interpreted.
func (s *Service) Evaluate(req compute.Request) (*compute.Result, Value, error) {
	places := req.EffectivePrecision()
	v, err := Eval(req.Expression, places)
	if err != nil {
		s.log.WithError(err).WithField("expression", req.Expression).Debug("numeric.eval.failed")
		return nil, Value{}, err
	}

	res := &compute.Result{
		Result: v.Format(places),
		Kind:   v.Kind(places),
	}
	if req.Format.WantsLaTeX() {
		res.LaTeX = v.LaTeX(places)
	}
	if res.Kind == compute.KindComplex {
		res.Domain = "complex"
	}
	s.log.WithFields(logrus.Fields{
		"expression": req.Expression,
		"kind":       res.Kind,
		"precision":  places,
	}).Debug("numeric.eval")
	return res, v, nil
}
