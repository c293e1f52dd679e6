// Package compute holds the request and result envelope shared by the numeric
// and symbolic services and the tool dispatcher.
package compute

// Format selects the output rendering of a computation.
type Format string

const (
	FormatText  Format = "text"
	FormatLaTeX Format = "latex"
	FormatJSON  Format = "json"
)

// WantsLaTeX reports whether the result should carry a LaTeX rendering.
func (f Format) WantsLaTeX() bool { return f == FormatLaTeX || f == FormatJSON }

// Units names the unit system requested for numeric evaluation.
type Units string

const (
	UnitsNone Units = "none"
	UnitsAuto Units = "auto"
	UnitsSI   Units = "si"
	UnitsUS   Units = "us"
)

// DefaultPrecision is the number of decimal places used when a request does
// not set one.
const DefaultPrecision = 10

const (
	MinPrecision = 1
	MaxPrecision = 50
)

// Request is one computation. Only Expression is mandatory.
type Request struct {
	Expression string
	Format     Format
	Precision  int
	Simplify   *bool
	Steps      bool
	Units      Units
}

// EffectivePrecision returns Precision or DefaultPrecision when unset.
func (r Request) EffectivePrecision() int {
	if r.Precision == 0 {
		return DefaultPrecision
	}
	return r.Precision
}

// ShouldSimplify is true unless Simplify was explicitly set to false.
func (r Request) ShouldSimplify() bool { return r.Simplify == nil || *r.Simplify }

// Bool returns a pointer to b, for Request.Simplify literals.
func Bool(b bool) *bool { return &b }

// Kind classifies a numeric result.
type Kind string

const (
	KindInteger  Kind = "integer"
	KindRational Kind = "rational"
	KindReal     Kind = "real"
	KindComplex  Kind = "complex"
	KindSymbolic Kind = "symbolic"
)

// Result is the normalised output of either engine. A Result is built once
// per request and not modified afterwards.
type Result struct {
	Result    string   `json:"result"`
	Kind      Kind     `json:"kind,omitempty"`
	LaTeX     string   `json:"latex,omitempty"`
	Steps     []string `json:"steps,omitempty"`
	Variables []string `json:"variables,omitempty"`
	Domain    string   `json:"domain,omitempty"`
}
