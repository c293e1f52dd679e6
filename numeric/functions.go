package numeric

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"sort"
)

var errDivisionByZero = errors.New("division by zero")

// maxExpArgument bounds the real part of exponentials so results stay
// representable.
const maxExpArgument = 1_000_000

// maxFactorial is the largest n accepted by n!.
const maxFactorial = 20000

var constants = map[string]func(prec uint) Value{
	"pi": func(prec uint) Value { return floatValue(bigPi(prec)) },
	"π":  func(prec uint) Value { return floatValue(bigPi(prec)) },
	"PI": func(prec uint) Value { return floatValue(bigPi(prec)) },
	"tau": func(prec uint) Value {
		t := bigPi(prec)
		return floatValue(t.Mul(t, floatInt(2, prec)))
	},
	"e": func(prec uint) Value { return floatValue(bigExp(floatInt(1, prec), prec)) },
	"E": func(prec uint) Value { return floatValue(bigExp(floatInt(1, prec), prec)) },
	"phi": func(prec uint) Value {
		s := newFloat(prec).Sqrt(floatInt(5, prec))
		s.Add(s, floatInt(1, prec))
		return floatValue(s.Quo(s, floatInt(2, prec)))
	},
	"i": func(uint) Value { return imagUnit() },
}

// Constants lists the recognised constant names in sorted order.
func Constants() []string { return sortedKeys(constants) }

type function struct {
	minArgs, maxArgs int // maxArgs < 0 means variadic
	eval             func(args []Value, prec uint) (Value, error)
}

func (f function) arity() string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("expects at least %d argument(s)", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprintf("expects %d argument(s)", f.minArgs)
	}
	return fmt.Sprintf("expects %d to %d arguments", f.minArgs, f.maxArgs)
}

func unary(fn func(v Value, prec uint) (Value, error)) function {
	return function{minArgs: 1, maxArgs: 1, eval: func(args []Value, prec uint) (Value, error) {
		return fn(args[0], prec)
	}}
}

// realUnary lifts a big.Float function that only accepts real arguments.
func realUnary(fn func(x *big.Float, prec uint) (*big.Float, error)) function {
	return unary(func(v Value, prec uint) (Value, error) {
		if !v.IsReal() {
			return Value{}, errRealOnly
		}
		f, err := fn(v.reFloat(prec), prec)
		if err != nil {
			return Value{}, err
		}
		return floatValue(f), nil
	})
}

var errRealOnly = errors.New("requires a real argument")

var functions map[string]function

func init() {
	functions = map[string]function{
		"sin": unary(sinValue),
		"cos": unary(cosValue),
		"tan": unary(func(v Value, prec uint) (Value, error) {
			s, err := sinValue(v, prec)
			if err != nil {
				return Value{}, err
			}
			c, err := cosValue(v, prec)
			if err != nil {
				return Value{}, err
			}
			return s.Div(c)
		}),
		"asin": realUnary(func(x *big.Float, prec uint) (*big.Float, error) {
			return asinFloat(x, prec)
		}),
		"acos": realUnary(func(x *big.Float, prec uint) (*big.Float, error) {
			a, err := asinFloat(x, prec)
			if err != nil {
				return nil, err
			}
			halfPi := bigPi(prec)
			halfPi.Quo(halfPi, floatInt(2, prec))
			return halfPi.Sub(halfPi, a), nil
		}),
		"atan": realUnary(func(x *big.Float, prec uint) (*big.Float, error) {
			return bigAtan(x, prec), nil
		}),
		"atan2": {minArgs: 2, maxArgs: 2, eval: func(args []Value, prec uint) (Value, error) {
			if !args[0].IsReal() || !args[1].IsReal() {
				return Value{}, errRealOnly
			}
			return floatValue(bigAtan2(args[0].reFloat(prec), args[1].reFloat(prec), prec)), nil
		}},
		"sinh": realUnary(func(x *big.Float, prec uint) (*big.Float, error) {
			if err := checkExpRange(x); err != nil {
				return nil, err
			}
			s, _ := bigSinhCosh(x, prec)
			return s, nil
		}),
		"cosh": realUnary(func(x *big.Float, prec uint) (*big.Float, error) {
			if err := checkExpRange(x); err != nil {
				return nil, err
			}
			_, c := bigSinhCosh(x, prec)
			return c, nil
		}),
		"tanh": realUnary(func(x *big.Float, prec uint) (*big.Float, error) {
			if err := checkExpRange(x); err != nil {
				return nil, err
			}
			s, c := bigSinhCosh(x, prec)
			return s.Quo(s, c), nil
		}),
		"exp": unary(expValue),
		"ln":  unary(logValue),
		"log": {minArgs: 1, maxArgs: 2, eval: func(args []Value, prec uint) (Value, error) {
			if len(args) == 1 {
				return logValue(args[0], prec)
			}
			return logBase(args[0], args[1], prec)
		}},
		"log10": unary(func(v Value, prec uint) (Value, error) { return logBase(v, Int(10), prec) }),
		"log2":  unary(func(v Value, prec uint) (Value, error) { return logBase(v, Int(2), prec) }),
		"sqrt":  unary(sqrtValue),
		"cbrt":  unary(cbrtValue),
		"abs":   unary(absValue),
		"floor": unary(func(v Value, _ uint) (Value, error) { return roundReal(v, floorRat) }),
		"ceil":  unary(func(v Value, _ uint) (Value, error) { return roundReal(v, ceilRat) }),
		"round": {minArgs: 1, maxArgs: 2, eval: roundValue},
		"sign": unary(func(v Value, _ uint) (Value, error) {
			if !v.IsReal() {
				return Value{}, errRealOnly
			}
			return Int(int64(v.re.Sign())), nil
		}),
		"min": {minArgs: 1, maxArgs: -1, eval: func(args []Value, _ uint) (Value, error) { return extreme(args, -1) }},
		"max": {minArgs: 1, maxArgs: -1, eval: func(args []Value, _ uint) (Value, error) { return extreme(args, 1) }},
	}
}

// Functions lists the recognised function names in sorted order.
func Functions() []string { return sortedKeys(functions) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ============================================================
// exact helpers
// ============================================================

func floorRat(r *big.Rat) *big.Int {
	// Denominators are positive, so Euclidean division floors.
	return new(big.Int).Div(r.Num(), r.Denom())
}

func ceilRat(r *big.Rat) *big.Int {
	n := new(big.Int).Neg(r.Num())
	n.Div(n, r.Denom())
	return n.Neg(n)
}

// intRoot returns the q-th root of n >= 0 when n is a perfect q-th power.
func intRoot(n *big.Int, q int64) (*big.Int, bool) {
	if n.Sign() == 0 || q == 1 {
		return new(big.Int).Set(n), true
	}
	var x *big.Int
	if q == 2 {
		x = new(big.Int).Sqrt(n)
	} else {
		// Newton: x ← ((q-1)x + n/x^(q-1)) / q, from an overestimate.
		x = new(big.Int).Lsh(big.NewInt(1), uint(n.BitLen()/int(q)+1))
		bq := big.NewInt(q)
		bq1 := big.NewInt(q - 1)
		for {
			t := new(big.Int).Exp(x, bq1, nil)
			t.Quo(n, t)
			t.Add(t, new(big.Int).Mul(bq1, x))
			t.Quo(t, bq)
			if t.Cmp(x) >= 0 {
				break
			}
			x = t
		}
	}
	if new(big.Int).Exp(x, big.NewInt(q), nil).Cmp(n) == 0 {
		return x, true
	}
	return nil, false
}

// ratRoot returns the exact q-th root of r >= 0, if there is one.
func ratRoot(r *big.Rat, q int64) (*big.Rat, bool) {
	num, ok := intRoot(r.Num(), q)
	if !ok {
		return nil, false
	}
	den, ok := intRoot(r.Denom(), q)
	if !ok {
		return nil, false
	}
	return new(big.Rat).SetFrac(num, den), true
}

func checkExpRange(x *big.Float) error {
	if new(big.Float).Abs(x).Cmp(big.NewFloat(maxExpArgument)) > 0 {
		return fmt.Errorf("argument %s is too large", x.Text('g', 10))
	}
	return nil
}

// ============================================================
// trigonometric
// ============================================================

// maxTrigArgumentBits bounds the binary exponent of a trigonometric
// argument. Reduction modulo 2π needs that many extra bits of π.
const maxTrigArgumentBits = 4096

func checkTrigRange(x *big.Float) error {
	if x.MantExp(nil) > maxTrigArgumentBits {
		return fmt.Errorf("argument %s is too large", x.Text('g', 10))
	}
	return nil
}

// sinCos returns sin x and cos x. For an inexact x, a result below the last
// bit of x is what is left of a multiple of π/2 after rounding, and is
// flushed to zero: sin(pi) is 0, not 1e-39.
func sinCos(x *big.Float, exact bool, prec uint) (sin, cos *big.Float, err error) {
	if err := checkTrigRange(x); err != nil {
		return nil, nil, err
	}
	sin, cos = bigSinCos(x, prec)
	if !exact && x.Sign() != 0 {
		floor := x.MantExp(nil) - int(prec) + 8
		for _, f := range []*big.Float{sin, cos} {
			if f.Sign() != 0 && f.MantExp(nil) < floor {
				f.SetInt64(0)
			}
		}
	}
	return sin, cos, nil
}

func sinValue(v Value, prec uint) (Value, error) {
	if v.exact && v.IsZero() {
		return Int(0), nil
	}
	if v.IsReal() {
		s, _, err := sinCos(v.reFloat(prec), v.exact, prec)
		if err != nil {
			return Value{}, err
		}
		return floatValue(s), nil
	}
	// sin(a+bi) = sin a·cosh b + i·cos a·sinh b
	b := v.imFloat(prec)
	if err := checkExpRange(b); err != nil {
		return Value{}, err
	}
	s, c, err := sinCos(v.reFloat(prec), v.exact, prec)
	if err != nil {
		return Value{}, err
	}
	sh, ch := bigSinhCosh(b, prec)
	return complexFloat(s.Mul(s, ch), c.Mul(c, sh)), nil
}

func cosValue(v Value, prec uint) (Value, error) {
	if v.exact && v.IsZero() {
		return Int(1), nil
	}
	if v.IsReal() {
		_, c, err := sinCos(v.reFloat(prec), v.exact, prec)
		if err != nil {
			return Value{}, err
		}
		return floatValue(c), nil
	}
	// cos(a+bi) = cos a·cosh b - i·sin a·sinh b
	b := v.imFloat(prec)
	if err := checkExpRange(b); err != nil {
		return Value{}, err
	}
	s, c, err := sinCos(v.reFloat(prec), v.exact, prec)
	if err != nil {
		return Value{}, err
	}
	sh, ch := bigSinhCosh(b, prec)
	im := s.Mul(s, sh)
	return complexFloat(c.Mul(c, ch), im.Neg(im)), nil
}

func asinFloat(x *big.Float, prec uint) (*big.Float, error) {
	one := floatInt(1, prec)
	abs := newFloat(prec).Abs(x)
	switch abs.Cmp(one) {
	case 1:
		return nil, fmt.Errorf("argument %s is outside [-1, 1]", x.Text('g', 10))
	case 0:
		halfPi := bigPi(prec)
		halfPi.Quo(halfPi, floatInt(2, prec))
		if x.Sign() < 0 {
			halfPi.Neg(halfPi)
		}
		return halfPi, nil
	}
	// asin x = atan(x / √(1-x²))
	p := prec + guardBits
	d := newFloat(p).Mul(x, x)
	d.Sub(floatInt(1, p), d)
	d.Sqrt(d)
	return bigAtan(d.Quo(x, d), prec), nil
}

// ============================================================
// exponential and logarithm
// ============================================================

func expValue(v Value, prec uint) (Value, error) {
	if v.exact && v.IsZero() {
		return Int(1), nil
	}
	a := v.reFloat(prec)
	if err := checkExpRange(a); err != nil {
		return Value{}, err
	}
	ea := bigExp(a, prec)
	if v.IsReal() {
		return floatValue(ea), nil
	}
	s, c, err := sinCos(v.imFloat(prec), v.exact, prec)
	if err != nil {
		return Value{}, err
	}
	return complexFloat(c.Mul(c, ea), s.Mul(s, ea)), nil
}

func logValue(v Value, prec uint) (Value, error) {
	if v.IsZero() {
		return Value{}, errors.New("logarithm of zero")
	}
	if v.IsReal() && v.re.Sign() > 0 {
		if v.exact && v.re.Cmp(big.NewRat(1, 1)) == 0 {
			return Int(0), nil
		}
		return floatValue(bigLog(v.reFloat(prec), prec)), nil
	}
	// log z = ln|z| + i·arg z
	a, b := v.reFloat(prec), v.imFloat(prec)
	return complexFloat(bigLog(modulus(a, b, prec), prec), bigAtan2(b, a, prec)), nil
}

func modulus(a, b *big.Float, prec uint) *big.Float {
	m := newFloat(prec).Mul(a, a)
	m.Add(m, newFloat(prec).Mul(b, b))
	return m.Sqrt(m)
}

// logBase returns log_b(v). Exact integer powers of an integer base give an
// exact result.
func logBase(v, base Value, prec uint) (Value, error) {
	if k, ok := exactLog(v, base); ok {
		return Int(k), nil
	}
	num, err := logValue(v, prec)
	if err != nil {
		return Value{}, err
	}
	den, err := logValue(base, prec)
	if err != nil {
		return Value{}, err
	}
	if den.IsZero() {
		return Value{}, errors.New("logarithm base 1")
	}
	return num.Div(den)
}

func exactLog(v, base Value) (int64, bool) {
	if !v.exact || !base.exact || !v.IsInteger() || !base.IsInteger() {
		return 0, false
	}
	b := base.re.Num()
	n := new(big.Int).Set(v.re.Num())
	if b.Cmp(big.NewInt(2)) < 0 || n.Sign() <= 0 {
		return 0, false
	}
	var k int64
	rem := new(big.Int)
	for n.Cmp(big.NewInt(1)) > 0 {
		n.QuoRem(n, b, rem)
		if rem.Sign() != 0 {
			return 0, false
		}
		k++
	}
	return k, true
}

// ============================================================
// roots and powers
// ============================================================

func sqrtValue(v Value, prec uint) (Value, error) {
	if v.IsReal() {
		r := v.re
		neg := r.Sign() < 0
		abs := new(big.Rat).Abs(r)
		var root Value
		if exact, ok := ratRoot(abs, 2); ok && v.exact {
			root = ratValue(exact)
		} else {
			root = floatValue(newFloat(prec).Sqrt(ratFloat(abs, prec)))
		}
		if neg {
			return Value{re: new(big.Rat), im: root.re, exact: root.exact}, nil
		}
		return root, nil
	}
	// √(a+bi) = √((|z|+a)/2) + i·sgn(b)·√((|z|-a)/2)
	p := prec + guardBits
	a, b := v.reFloat(p), v.imFloat(p)
	m := modulus(a, b, p)
	two := floatInt(2, p)
	re := halfRoot(newFloat(p).Add(m, a), two)
	im := halfRoot(newFloat(p).Sub(m, a), two)
	if b.Sign() < 0 {
		im.Neg(im)
	}
	return complexFloat(re, im), nil
}

// halfRoot returns √(x/2), treating rounding noise below zero as zero.
func halfRoot(x, two *big.Float) *big.Float {
	if x.Sign() <= 0 {
		return x.SetInt64(0)
	}
	x.Quo(x, two)
	return x.Sqrt(x)
}

func cbrtValue(v Value, prec uint) (Value, error) {
	if !v.IsReal() {
		return Value{}, errRealOnly
	}
	if v.re.Sign() == 0 {
		return v, nil
	}
	abs := new(big.Rat).Abs(v.re)
	var root Value
	if exact, ok := ratRoot(abs, 3); ok && v.exact {
		root = ratValue(exact)
	} else {
		l := bigLog(ratFloat(abs, prec), prec)
		root = floatValue(bigExp(l.Quo(l, floatInt(3, prec)), prec))
	}
	if v.re.Sign() < 0 {
		return root.Neg(), nil
	}
	return root, nil
}

func absValue(v Value, prec uint) (Value, error) {
	if v.IsReal() {
		return Value{re: new(big.Rat).Abs(v.re), im: new(big.Rat), exact: v.exact}, nil
	}
	sq := new(big.Rat).Mul(v.re, v.re)
	sq.Add(sq, new(big.Rat).Mul(v.im, v.im))
	if exact, ok := ratRoot(sq, 2); ok && v.exact {
		return ratValue(exact), nil
	}
	return floatValue(newFloat(prec).Sqrt(ratFloat(sq, prec))), nil
}

// maxExactRootDegree bounds the denominator of rational exponents tried
// for an exact root.
const maxExactRootDegree = 64

func pow(base, exp Value, prec uint) (Value, error) {
	if exp.IsInteger() {
		if !base.exact {
			return powFloat(base, exp.re.Num(), prec)
		}
		return base.powInt(exp.re.Num())
	}
	if base.IsZero() {
		if exp.re.Sign() > 0 {
			return Value{re: new(big.Rat), im: new(big.Rat), exact: both(base, exp)}, nil
		}
		return Value{}, errDivisionByZero
	}
	if base.IsReal() && base.re.Sign() > 0 && exp.IsReal() {
		q := exp.re.Denom()
		if both(base, exp) && q.IsInt64() && q.Int64() <= maxExactRootDegree {
			if root, ok := ratRoot(base.re, q.Int64()); ok {
				return ratValue(root).powInt(exp.re.Num())
			}
		}
		if exp.re.Cmp(big.NewRat(1, 2)) == 0 {
			return floatValue(newFloat(prec).Sqrt(base.reFloat(prec))), nil
		}
		l := bigLog(base.reFloat(prec+guardBits), prec+guardBits)
		l.Mul(l, exp.reFloat(prec+guardBits))
		if err := checkExpRange(l); err != nil {
			return Value{}, err
		}
		return floatValue(bigExp(l, prec)), nil
	}
	// z^w = exp(w·log z), principal branch
	l, err := logValue(base, prec+guardBits)
	if err != nil {
		return Value{}, err
	}
	return expValue(exp.Mul(l).inexact(), prec)
}

// maxPowBits bounds the binary magnitude of an inexact integer power, about
// the same range exp allows.
const maxPowBits = 1 << 21

// powFloat raises an inexact v to an integer power by repeated squaring in
// binary floating point, so the cost follows prec and not the size of the
// rationals behind v.
func powFloat(v Value, n *big.Int, prec uint) (Value, error) {
	if n.Sign() == 0 || v.IsZero() {
		return v.powInt(n)
	}
	if !n.IsInt64() || n.Int64() == math.MinInt64 {
		return Value{}, fmt.Errorf("exponent %s is too large", n)
	}
	e := n.Int64()
	neg := e < 0
	if neg {
		e = -e
	}
	p := prec + guardBits + uint(bits.Len64(uint64(e)))
	a, b := v.reFloat(p), v.imFloat(p)
	if math.Abs(floatLog2(modulus(a, b, p))*float64(e)) > maxPowBits {
		return Value{}, fmt.Errorf("result of power with exponent %d is too large", n.Int64())
	}

	re, im := floatInt(1, p), newFloat(p)
	for {
		if e&1 == 1 {
			re, im = complexMul(re, im, a, b, p)
		}
		e >>= 1
		if e == 0 {
			break
		}
		a, b = complexMul(a, b, a, b, p)
	}
	if neg {
		// 1/(x+yi) = (x-yi)/(x²+y²)
		d := newFloat(p).Mul(re, re)
		d.Add(d, newFloat(p).Mul(im, im))
		re.Quo(re, d)
		im.Quo(im, d)
		im.Neg(im)
	}
	return complexFloat(newFloat(prec).Set(re), newFloat(prec).Set(im)), nil
}

func complexMul(a, b, c, d *big.Float, prec uint) (re, im *big.Float) {
	re = newFloat(prec).Mul(a, c)
	re.Sub(re, newFloat(prec).Mul(b, d))
	im = newFloat(prec).Mul(a, d)
	im.Add(im, newFloat(prec).Mul(b, c))
	return re, im
}

// floatLog2 approximates log2 x for x > 0 without leaving float64 range.
func floatLog2(x *big.Float) float64 {
	mant := new(big.Float)
	exp := x.MantExp(mant)
	m, _ := mant.Float64()
	return float64(exp) + math.Log2(m)
}

// mod returns l - r·floor(l/r); the result takes the sign of r.
func mod(l, r Value) (Value, error) {
	if !l.IsReal() || !r.IsReal() {
		return Value{}, errors.New("modulo requires real operands")
	}
	if r.IsZero() {
		return Value{}, errors.New("modulo by zero")
	}
	q := new(big.Rat).Quo(l.re, r.re)
	fl := new(big.Rat).SetInt(floorRat(q))
	res := new(big.Rat).Sub(l.re, fl.Mul(fl, r.re))
	return Value{re: res, im: new(big.Rat), exact: both(l, r)}, nil
}

func factorial(v Value) (Value, error) {
	if !v.IsInteger() || v.re.Sign() < 0 {
		return Value{}, errors.New("factorial requires a non-negative integer")
	}
	n := v.re.Num()
	if !n.IsInt64() || n.Int64() > maxFactorial {
		return Value{}, fmt.Errorf("factorial argument exceeds %d", maxFactorial)
	}
	return ratValue(new(big.Rat).SetInt(new(big.Int).MulRange(1, n.Int64()))), nil
}

// ============================================================
// rounding and comparison
// ============================================================

func roundReal(v Value, fn func(*big.Rat) *big.Int) (Value, error) {
	if !v.IsReal() {
		return Value{}, errRealOnly
	}
	return ratValue(new(big.Rat).SetInt(fn(v.re))), nil
}

// roundHalfAway rounds r to an integer, halves away from zero.
func roundHalfAway(r *big.Rat) *big.Int {
	a := new(big.Rat).Abs(r)
	a.Add(a, big.NewRat(1, 2))
	n := floorRat(a)
	if r.Sign() < 0 {
		n.Neg(n)
	}
	return n
}

func roundValue(args []Value, _ uint) (Value, error) {
	v := args[0]
	if !v.IsReal() {
		return Value{}, errRealOnly
	}
	if len(args) == 1 {
		return ratValue(new(big.Rat).SetInt(roundHalfAway(v.re))), nil
	}
	d := args[1]
	if !d.IsInteger() || d.re.Sign() < 0 || d.re.Num().Cmp(big.NewInt(MaxDecimals)) > 0 {
		return Value{}, fmt.Errorf("decimals must be an integer between 0 and %d", MaxDecimals)
	}
	scale := new(big.Int).Exp(big.NewInt(10), d.re.Num(), nil)
	s := new(big.Rat).Mul(v.re, new(big.Rat).SetInt(scale))
	res := new(big.Rat).SetFrac(roundHalfAway(s), scale)
	return ratValue(res), nil
}

// MaxDecimals bounds the decimals argument of round.
const MaxDecimals = 100

func extreme(args []Value, dir int) (Value, error) {
	best := args[0]
	for _, a := range args {
		if !a.IsReal() {
			return Value{}, errRealOnly
		}
		if a.re.Cmp(best.re)*dir > 0 {
			best = a
		}
	}
	return best, nil
}
