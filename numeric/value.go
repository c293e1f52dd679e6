package numeric

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/njchilds90/axiom-mcp/compute"
)

// ============================================================
// Value
// ============================================================

// Value is the result of a numeric evaluation: a complex number whose real
// and imaginary parts are rationals. Exact values were produced by rational
// arithmetic only; inexact values passed through a transcendental function
// or constant and carry a binary approximation.
type Value struct {
	re, im *big.Rat
	exact  bool
}

func ratValue(r *big.Rat) Value { return Value{re: r, im: new(big.Rat), exact: true} }

// Int returns the exact integer n.
func Int(n int64) Value { return ratValue(big.NewRat(n, 1)) }

// Frac returns the exact rational p/q. It panics when q is zero.
func Frac(p, q int64) Value {
	if q == 0 {
		panic("numeric: denominator is zero")
	}
	return ratValue(big.NewRat(p, q))
}

// Complex returns the exact value re + im·i.
func Complex(re, im *big.Rat) Value {
	return Value{re: new(big.Rat).Set(re), im: new(big.Rat).Set(im), exact: true}
}

func imagUnit() Value { return Value{re: new(big.Rat), im: big.NewRat(1, 1), exact: true} }

func floatValue(f *big.Float) Value {
	return Value{re: floatRat(f), im: new(big.Rat), exact: false}
}

func complexFloat(re, im *big.Float) Value {
	return Value{re: floatRat(re), im: floatRat(im), exact: false}
}

func floatRat(f *big.Float) *big.Rat {
	r, _ := f.Rat(nil)
	if r == nil {
		return new(big.Rat)
	}
	return r
}

func ratFloat(r *big.Rat, prec uint) *big.Float {
	return new(big.Float).SetPrec(prec).SetRat(r)
}

func (v Value) Real() *big.Rat  { return new(big.Rat).Set(v.re) }
func (v Value) Imag() *big.Rat  { return new(big.Rat).Set(v.im) }
func (v Value) Exact() bool     { return v.exact }
func (v Value) IsReal() bool    { return v.im.Sign() == 0 }
func (v Value) IsZero() bool    { return v.re.Sign() == 0 && v.im.Sign() == 0 }
func (v Value) IsInteger() bool { return v.IsReal() && v.re.IsInt() }

func (v Value) inexact() Value { v.exact = false; return v }

func both(a, b Value) bool { return a.exact && b.exact }

func (v Value) reFloat(prec uint) *big.Float { return ratFloat(v.re, prec) }
func (v Value) imFloat(prec uint) *big.Float { return ratFloat(v.im, prec) }

// ============================================================
// Arithmetic
// ============================================================

func (v Value) Add(o Value) Value {
	return Value{
		re:    new(big.Rat).Add(v.re, o.re),
		im:    new(big.Rat).Add(v.im, o.im),
		exact: both(v, o),
	}
}

func (v Value) Sub(o Value) Value {
	return Value{
		re:    new(big.Rat).Sub(v.re, o.re),
		im:    new(big.Rat).Sub(v.im, o.im),
		exact: both(v, o),
	}
}

func (v Value) Neg() Value {
	return Value{re: new(big.Rat).Neg(v.re), im: new(big.Rat).Neg(v.im), exact: v.exact}
}

func (v Value) Mul(o Value) Value {
	ac := new(big.Rat).Mul(v.re, o.re)
	bd := new(big.Rat).Mul(v.im, o.im)
	ad := new(big.Rat).Mul(v.re, o.im)
	bc := new(big.Rat).Mul(v.im, o.re)
	return Value{re: ac.Sub(ac, bd), im: ad.Add(ad, bc), exact: both(v, o)}
}

// Div returns v/o or an error when o is zero.
func (v Value) Div(o Value) (Value, error) {
	if o.IsZero() {
		return Value{}, errDivisionByZero
	}
	if o.IsReal() {
		return Value{
			re:    new(big.Rat).Quo(v.re, o.re),
			im:    new(big.Rat).Quo(v.im, o.re),
			exact: both(v, o),
		}, nil
	}
	// (a+bi)/(c+di) = ((ac+bd) + (bc-ad)i) / (c²+d²)
	den := new(big.Rat).Mul(o.re, o.re)
	den.Add(den, new(big.Rat).Mul(o.im, o.im))
	re := new(big.Rat).Mul(v.re, o.re)
	re.Add(re, new(big.Rat).Mul(v.im, o.im))
	im := new(big.Rat).Mul(v.im, o.re)
	im.Sub(im, new(big.Rat).Mul(v.re, o.im))
	return Value{re: re.Quo(re, den), im: im.Quo(im, den), exact: both(v, o)}, nil
}

// maxResultBits bounds exact integer powers and factorials.
const maxResultBits = 1 << 24

// powInt raises v to an integer power by repeated squaring in rational
// arithmetic. Exact inputs stay exact, so i^2 is exactly -1. Inexact bases go
// through powFloat instead.
func (v Value) powInt(n *big.Int) (Value, error) {
	if n.Sign() == 0 {
		return Value{re: big.NewRat(1, 1), im: new(big.Rat), exact: v.exact}, nil
	}
	if v.IsZero() {
		if n.Sign() < 0 {
			return Value{}, errDivisionByZero
		}
		return v, nil
	}
	if v.exact && v.isUnit() {
		// 1, -1, i and -i repeat with period 4; Mod is Euclidean, so negative
		// exponents land on the matching inverse.
		k := new(big.Int).Mod(n, big.NewInt(4)).Int64()
		result := Int(1)
		for ; k > 0; k-- {
			result = result.Mul(v)
		}
		return result, nil
	}
	if !n.IsInt64() {
		return Value{}, fmt.Errorf("exponent %s is too large", n)
	}
	e := n.Int64()
	neg := e < 0
	if neg {
		e = -e
	}
	size := int64(v.re.Num().BitLen() + v.re.Denom().BitLen() + v.im.Num().BitLen() + v.im.Denom().BitLen())
	if size > 2 && e > maxResultBits/size {
		return Value{}, fmt.Errorf("result of power with exponent %d is too large", n.Int64())
	}

	result := Value{re: big.NewRat(1, 1), im: new(big.Rat), exact: v.exact}
	base := v
	for e > 0 {
		if e&1 == 1 {
			result = result.Mul(base)
		}
		e >>= 1
		if e > 0 {
			base = base.Mul(base)
		}
	}
	if neg {
		return Int(1).withExact(v.exact).Div(result)
	}
	return result, nil
}

func (v Value) withExact(exact bool) Value { v.exact = exact; return v }

// isUnit reports whether v is 1, -1, i or -i.
func (v Value) isUnit() bool {
	one := big.NewRat(1, 1)
	switch {
	case v.im.Sign() == 0:
		return new(big.Rat).Abs(v.re).Cmp(one) == 0
	case v.re.Sign() == 0:
		return new(big.Rat).Abs(v.im).Cmp(one) == 0
	}
	return false
}

// ============================================================
// Display
// ============================================================

// sciThreshold is the magnitude from which inexact values are shown in
// scientific notation.
var sciThreshold = new(big.Rat).SetFrac(new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil), big.NewInt(1))

// formatReal renders r rounded to places decimal places. Large inexact values
// and any nonzero value below 10^-places use scientific notation, so a tiny
// result never reads as 0.
func formatReal(r *big.Rat, exact bool, places int) string {
	if exact && r.IsInt() {
		return r.Num().String()
	}
	abs := new(big.Rat).Abs(r)
	if (!exact && abs.Cmp(sciThreshold) >= 0) || belowPlaces(abs, places) {
		return sciText(r, places)
	}
	return trimZeros(r.FloatString(places))
}

// belowPlaces reports whether abs is nonzero and smaller than 10^-places.
func belowPlaces(abs *big.Rat, places int) bool {
	if abs.Sign() == 0 {
		return false
	}
	unit := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil))
	return abs.Cmp(unit) < 0
}

// sciText renders r as mantissa and decimal exponent: "2.5e+43", "1e-12".
func sciText(r *big.Rat, places int) string {
	f := ratFloat(r, uint(places)*4+64)
	mant, exp, _ := strings.Cut(f.Text('e', places), "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return trimZeros(mant) + "e" + sign + digits
}

func trimZeros(s string) string {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// Format renders v with places decimal places: "5", "0.3333333333",
// "3 + 4i", "-i".
func (v Value) Format(places int) string {
	re := formatReal(v.re, v.exact, places)
	im := formatReal(v.im, v.exact, places)
	return joinComplex(re, im)
}

func joinComplex(re, im string) string {
	if im == "0" {
		return re
	}
	imPart := im
	switch im {
	case "1":
		imPart = ""
	case "-1":
		imPart = "-"
	}
	imPart += "i"
	if re == "0" {
		return imPart
	}
	if strings.HasPrefix(imPart, "-") {
		return re + " - " + imPart[1:]
	}
	return re + " + " + imPart
}

// Kind classifies v as displayed with places decimal places.
func (v Value) Kind(places int) compute.Kind {
	if formatReal(v.im, v.exact, places) != "0" {
		return compute.KindComplex
	}
	switch {
	case v.exact && v.re.IsInt():
		return compute.KindInteger
	case v.exact:
		return compute.KindRational
	default:
		return compute.KindReal
	}
}

// LaTeX renders v for display in LaTeX. Exact rationals use \frac unless they
// are too small for the requested places.
func (v Value) LaTeX(places int) string {
	re := latexReal(v.re, v.exact, places)
	im := latexReal(v.im, v.exact, places)
	if formatReal(v.im, v.exact, places) == "0" {
		return re
	}
	return joinComplex(re, im)
}

func latexReal(r *big.Rat, exact bool, places int) string {
	if exact && !r.IsInt() && !belowPlaces(new(big.Rat).Abs(r), places) {
		sign := ""
		a := new(big.Rat).Set(r)
		if a.Sign() < 0 {
			sign = "-"
			a.Neg(a)
		}
		return fmt.Sprintf("%s\\frac{%s}{%s}", sign, a.Num().String(), a.Denom().String())
	}
	s := formatReal(r, exact, places)
	if mant, exp, ok := strings.Cut(s, "e"); ok {
		return mant + " \\cdot 10^{" + strings.TrimPrefix(exp, "+") + "}"
	}
	return s
}

func (v Value) String() string { return v.Format(15) }
