package numeric

import (
	"fmt"
	"math/big"
	"strings"
)

// ============================================================
// Core Interface
// ============================================================

// Expr is a parsed arithmetic expression.
type Expr interface {
	Eval(env *Env) (Value, error)
	String() string
	LaTeX() string
}

// Env carries the working precision of one evaluation.
type Env struct {
	// Prec is the big.Float precision in bits for inexact results.
	Prec uint
}

// NewEnv returns the environment for displaying places decimal places.
func NewEnv(places int) *Env {
	bits := uint(float64(places)*3.3219280948873626) + guardBits
	if bits < 128 {
		bits = 128
	}
	return &Env{Prec: bits}
}

// ============================================================
// Number
// ============================================================

type Number struct {
	text string
	val  *big.Rat
}

func (n *Number) Eval(*Env) (Value, error) { return ratValue(new(big.Rat).Set(n.val)), nil }
func (n *Number) String() string           { return n.text }
func (n *Number) LaTeX() string            { return n.text }

// ============================================================
// Ident: named constant
// ============================================================

type Ident struct{ name string }

func (id *Ident) Eval(env *Env) (Value, error) {
	c, ok := constants[id.name]
	if !ok {
		return Value{}, fmt.Errorf("undefined symbol %q", id.name)
	}
	return c(env.Prec), nil
}

func (id *Ident) String() string { return id.name }

func (id *Ident) LaTeX() string {
	switch id.name {
	case "pi", "π":
		return "\\pi"
	case "tau":
		return "\\tau"
	case "phi":
		return "\\varphi"
	}
	return id.name
}

// ============================================================
// Unary: sign prefix
// ============================================================

type Unary struct {
	op string
	x  Expr
}

func (u *Unary) Eval(env *Env) (Value, error) {
	v, err := u.x.Eval(env)
	if err != nil {
		return Value{}, err
	}
	if u.op == "-" {
		return v.Neg(), nil
	}
	return v, nil
}

func (u *Unary) String() string { return "(" + u.op + u.x.String() + ")" }
func (u *Unary) LaTeX() string  { return u.op + u.x.LaTeX() }

// ============================================================
// Binary: infix operators
// ============================================================

type Binary struct {
	op       string
	l, r     Expr
	implicit bool
}

func (b *Binary) Eval(env *Env) (Value, error) {
	l, err := b.l.Eval(env)
	if err != nil {
		return Value{}, err
	}
	r, err := b.r.Eval(env)
	if err != nil {
		return Value{}, err
	}
	switch b.op {
	case "+":
		return l.Add(r), nil
	case "-":
		return l.Sub(r), nil
	case "*":
		return l.Mul(r), nil
	case "/":
		return l.Div(r)
	case "^":
		return pow(l, r, env.Prec)
	case "%", "mod":
		return mod(l, r)
	}
	return Value{}, fmt.Errorf("unknown operator %q", b.op)
}

func (b *Binary) String() string {
	op := " " + b.op + " "
	if b.implicit {
		op = " "
	}
	return "(" + b.l.String() + op + b.r.String() + ")"
}

func (b *Binary) LaTeX() string {
	switch b.op {
	case "/":
		return "\\frac{" + b.l.LaTeX() + "}{" + b.r.LaTeX() + "}"
	case "^":
		return "{" + b.l.LaTeX() + "}^{" + b.r.LaTeX() + "}"
	case "*":
		if b.implicit {
			return b.l.LaTeX() + " " + b.r.LaTeX()
		}
		return b.l.LaTeX() + " \\cdot " + b.r.LaTeX()
	case "%", "mod":
		return b.l.LaTeX() + " \\bmod " + b.r.LaTeX()
	}
	return b.l.LaTeX() + " " + b.op + " " + b.r.LaTeX()
}

// ============================================================
// Postfix: factorial and angle units
// ============================================================

type Postfix struct {
	op string
	x  Expr
}

func (p *Postfix) Eval(env *Env) (Value, error) {
	v, err := p.x.Eval(env)
	if err != nil {
		return Value{}, err
	}
	switch p.op {
	case "!":
		return factorial(v)
	case "deg":
		return v.Mul(floatValue(degree(env.Prec))), nil
	}
	return v, nil
}

func (p *Postfix) String() string {
	if p.op == "!" {
		return "(" + p.x.String() + "!)"
	}
	return "(" + p.x.String() + " " + p.op + ")"
}

func (p *Postfix) LaTeX() string {
	switch p.op {
	case "!":
		return p.x.LaTeX() + "!"
	case "deg":
		return p.x.LaTeX() + "^{\\circ}"
	}
	return p.x.LaTeX()
}

func degree(prec uint) *big.Float {
	d := bigPi(prec)
	return d.Quo(d, floatInt(180, prec))
}

// ============================================================
// Call: named function applications
// ============================================================

type Call struct {
	name string
	args []Expr
}

func (c *Call) Eval(env *Env) (Value, error) {
	fn, ok := functions[c.name]
	if !ok {
		return Value{}, fmt.Errorf("undefined function %q", c.name)
	}
	if len(c.args) < fn.minArgs || (fn.maxArgs >= 0 && len(c.args) > fn.maxArgs) {
		return Value{}, fmt.Errorf("%s: %s", c.name, fn.arity())
	}
	args := make([]Value, len(c.args))
	for i, a := range c.args {
		v, err := a.Eval(env)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	v, err := fn.eval(args, env.Prec)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", c.name, err)
	}
	return v, nil
}

func (c *Call) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return c.name + "(" + strings.Join(parts, ", ") + ")"
}

func (c *Call) LaTeX() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.LaTeX()
	}
	inner := strings.Join(parts, ", ")
	switch c.name {
	case "sin", "cos", "tan", "exp", "ln", "sinh", "cosh", "tanh", "log":
		return "\\" + c.name + "\\left(" + inner + "\\right)"
	case "asin":
		return "\\arcsin\\left(" + inner + "\\right)"
	case "acos":
		return "\\arccos\\left(" + inner + "\\right)"
	case "atan":
		return "\\arctan\\left(" + inner + "\\right)"
	case "sqrt":
		return "\\sqrt{" + inner + "}"
	case "cbrt":
		return "\\sqrt[3]{" + inner + "}"
	case "abs":
		return "\\left|" + inner + "\\right|"
	case "floor":
		return "\\lfloor " + inner + " \\rfloor"
	case "ceil":
		return "\\lceil " + inner + " \\rceil"
	}
	return "\\operatorname{" + c.name + "}\\left(" + inner + "\\right)"
}

// ============================================================
// Group: parenthesised subexpression
// ============================================================

type Group struct{ x Expr }

func (g *Group) Eval(env *Env) (Value, error) { return g.x.Eval(env) }
func (g *Group) String() string               { return g.x.String() }
func (g *Group) LaTeX() string                { return "\\left(" + g.x.LaTeX() + "\\right)" }
