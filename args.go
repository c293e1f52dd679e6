package axiom

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/njchilds90/axiom-mcp/compute"
)

// MaxExpressionBytes bounds the expression argument of every tool.
const MaxExpressionBytes = 16 << 10

// ============================================================
// Shared Validator Instance
// ============================================================

var argsValidate *validator.Validate

func init() {
	argsValidate = validator.New()
	argsValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = argsValidate.RegisterValidation("expression", validateExpression)
}

// validateExpression rejects blank expressions and ones over
// MaxExpressionBytes.
func validateExpression(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.TrimSpace(s) != "" && len(s) <= MaxExpressionBytes && utf8.ValidString(s)
}

// QuickCalcArgs are the arguments of quick_calc.
type QuickCalcArgs struct {
	Expression string `json:"expression" validate:"required,expression"`
	Units      string `json:"units,omitempty" validate:"omitempty,oneof=none auto si us"`
	Precision  *int   `json:"precision,omitempty" validate:"omitempty,min=1,max=50"`
	Format     string `json:"format,omitempty" validate:"omitempty,oneof=text latex json"`
}

func (a *QuickCalcArgs) Validate() error { return argsValidate.Struct(a) }

// Request converts validated arguments.
func (a *QuickCalcArgs) Request() compute.Request {
	req := compute.Request{
		Expression: a.Expression,
		Format:     compute.Format(a.Format),
		Units:      compute.Units(a.Units),
	}
	if a.Precision != nil {
		req.Precision = *a.Precision
	}
	return req
}

// AdvancedSolveArgs are the arguments of advanced_solve.
type AdvancedSolveArgs struct {
	Expression string `json:"expression" validate:"required,expression"`
	Format     string `json:"format,omitempty" validate:"omitempty,oneof=text latex json"`
	Steps      *bool  `json:"steps,omitempty"`
	Simplify   *bool  `json:"simplify,omitempty"`
}

func (a *AdvancedSolveArgs) Validate() error { return argsValidate.Struct(a) }

// Request converts validated arguments.
func (a *AdvancedSolveArgs) Request() compute.Request {
	req := compute.Request{
		Expression: a.Expression,
		Format:     compute.Format(a.Format),
		Simplify:   a.Simplify,
	}
	if a.Steps != nil {
		req.Steps = *a.Steps
	}
	return req
}

// ArgumentError is a tool call whose arguments could not be decoded or
// failed validation.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, describe(e.Err))
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// decodeArgs strictly decodes raw into dst and validates it. Missing or null
// arguments decode as an empty object.
func decodeArgs(tool string, raw json.RawMessage, dst interface{ Validate() error }) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ArgumentError{Tool: tool, Err: err}
	}
	if dec.More() {
		return &ArgumentError{Tool: tool, Err: errors.New("trailing data after arguments")}
	}
	if err := dst.Validate(); err != nil {
		return &ArgumentError{Tool: tool, Err: err}
	}
	return nil
}

// describe renders validator errors field by field; other errors pass
// through unchanged.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describeField(fe))
	}
	return strings.Join(parts, "; ")
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "expression":
		return fmt.Sprintf("%s must be a non-blank string of at most %d bytes", field, MaxExpressionBytes)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
