package axiom

import (
	"encoding/json"
	"time"
)

// ============================================================
// Tool descriptors
// ============================================================

const (
	ToolQuickCalc     = "quick_calc"
	ToolAdvancedSolve = "advanced_solve"
)

// Execution is advisory metadata for the transport. The dispatcher never
// enforces it.
type Execution struct {
	TaskSupport string `json:"taskSupport"`
	TimeoutMS   int    `json:"timeout"`
}

// Timeout returns TimeoutMS as a duration.
func (e Execution) Timeout() time.Duration { return time.Duration(e.TimeoutMS) * time.Millisecond }

type Annotations struct {
	Execution Execution `json:"execution"`
}

// ToolDescriptor is the static contract of one tool.
type ToolDescriptor struct {
	Name         string         `json:"name"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema"`
	Annotations  Annotations    `json:"annotations"`

	// resultLabel prefixes the primary content block; empty means bare.
	resultLabel string
}

var formats = []string{"text", "latex", "json"}

// Tools returns the descriptors of every tool, in a stable order. Each call
// builds fresh values.
func Tools() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name:  ToolQuickCalc,
			Title: "Quick Calculator",
			Description: "Fast arbitrary-precision numeric evaluation. Supports arithmetic, " +
				"powers, factorials, trigonometry (radians or deg), logarithms, rounding and complex numbers.",
			InputSchema: objectSchema([]string{"expression"}, map[string]map[string]any{
				"expression": prop("string", "Expression to evaluate, e.g. 2^10 or sin(30deg)"),
				"units":      enumProp("Unit system", "none", "auto", "si", "us"),
				"precision": withBounds(prop("integer", "Decimal places in the result (default 10)"),
					1, 50),
				"format": enumProp("Output format", formats...),
			}, false),
			OutputSchema: objectSchema([]string{"result"}, map[string]map[string]any{
				"result": prop("string", "The calculated result"),
				"kind":   enumProp("Numeric class of the result", "integer", "rational", "real", "complex"),
				"latex":  prop("string", "LaTeX formatted output (when format=latex or json)"),
				"domain": prop("string", "Number domain when the result is not real"),
			}, true),
			Annotations: Annotations{Execution: Execution{TaskSupport: "optional", TimeoutMS: 10000}},
		},
		{
			Name:  ToolAdvancedSolve,
			Title: "Advanced Symbolic Solver",
			Description: "Symbolic computation using Giac/Xcas. Supports integration, derivatives, limits, " +
				"equation solving, factorization, expansion, simplification, and differential equations.",
			InputSchema: objectSchema([]string{"expression"}, map[string]map[string]any{
				"expression": prop("string", "Giac expression, e.g. integrate(x^2, x) or solve(x^2-4=0, x)"),
				"format":     enumProp("Output format", formats...),
				"steps":      prop("boolean", "Return step-by-step lines when the engine emits them"),
				"simplify":   prop("boolean", "Wrap the expression in simplify() (default true)"),
			}, false),
			OutputSchema: objectSchema([]string{"result"}, map[string]map[string]any{
				"result":    prop("string", "The calculated symbolic result"),
				"latex":     prop("string", "LaTeX formatted output (when format=latex or json)"),
				"steps":     arrayProp("Step-by-step solution steps (if requested)"),
				"variables": arrayProp("Variables found in the expression"),
				"domain":    prop("string", "Domain of the expression (if applicable)"),
			}, true),
			Annotations: Annotations{Execution: Execution{TaskSupport: "optional", TimeoutMS: 30000}},
			resultLabel: "Result",
		},
	}
}

// Lookup returns the descriptor named name.
func Lookup(name string) (ToolDescriptor, bool) {
	for _, t := range Tools() {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDescriptor{}, false
}

// ToolSpec returns the tool list as indented JSON, for agent registration.
func ToolSpec() string {
	spec := map[string]any{"tools": Tools()}
	b, _ := json.MarshalIndent(spec, "", "  ")
	return string(b)
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]any {
	p := prop("string", description)
	p["enum"] = values
	return p
}

func arrayProp(description string) map[string]any {
	p := prop("array", description)
	p["items"] = map[string]any{"type": "string"}
	return p
}

func withBounds(p map[string]any, lo, hi int) map[string]any {
	p["minimum"] = lo
	p["maximum"] = hi
	return p
}

func objectSchema(required []string, props map[string]map[string]any, open bool) map[string]any {
	properties := map[string]any{}
	for k, v := range props {
		properties[k] = v
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": open,
	}
}
