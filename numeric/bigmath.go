package numeric

import (
	"math"
	"math/big"
	"sync"
)

// Arbitrary-precision elementary functions on big.Float. Every function
// takes the target precision in bits and works internally with guard bits.

const guardBits = 64

func newFloat(prec uint) *big.Float { return new(big.Float).SetPrec(prec) }

func floatInt(n int64, prec uint) *big.Float { return newFloat(prec).SetInt64(n) }

// negligible reports whether term no longer changes sum at prec bits.
func negligible(term, sum *big.Float, prec uint) bool {
	if term.Sign() == 0 {
		return true
	}
	if sum.Sign() == 0 {
		return term.MantExp(nil) < -int(prec)
	}
	return term.MantExp(nil) < sum.MantExp(nil)-int(prec)
}

// ============================================================
// pi
// ============================================================

var piCache struct {
	sync.Mutex
	v *big.Float
}

// bigPi returns pi by Machin's formula, pi = 16·atan(1/5) - 4·atan(1/239).
func bigPi(prec uint) *big.Float {
	piCache.Lock()
	defer piCache.Unlock()
	if piCache.v != nil && piCache.v.Prec() >= prec {
		return newFloat(prec).Set(piCache.v)
	}
	p := prec + guardBits
	a := atanInv(5, p)
	a.Mul(a, floatInt(16, p))
	b := atanInv(239, p)
	b.Mul(b, floatInt(4, p))
	pi := newFloat(p).Sub(a, b)
	piCache.v = pi
	return newFloat(prec).Set(pi)
}

// atanInv returns atan(1/n) by its Taylor series.
func atanInv(n int64, prec uint) *big.Float {
	x := newFloat(prec).Quo(floatInt(1, prec), floatInt(n, prec))
	x2 := newFloat(prec).Mul(x, x)
	sum := newFloat(prec).Set(x)
	power := newFloat(prec).Set(x)
	term := newFloat(prec)
	for k := int64(1); ; k++ {
		power.Mul(power, x2)
		term.Quo(power, floatInt(2*k+1, prec))
		if negligible(term, sum, prec) {
			return sum
		}
		if k%2 == 1 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}
}

// ============================================================
// exp / log
// ============================================================

// bigExp returns e^x. The argument is scaled into (-2^-10, 2^-10), summed
// as a Taylor series and squared back.
func bigExp(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return floatInt(1, prec)
	}
	k := x.MantExp(nil) + 10
	if k < 0 {
		k = 0
	}
	p := prec + guardBits + uint(k)
	r := newFloat(p).SetMantExp(x, -k)

	sum := floatInt(1, p)
	term := floatInt(1, p)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, floatInt(n, p))
		if negligible(term, sum, p) {
			break
		}
		sum.Add(sum, term)
	}
	for i := 0; i < k; i++ {
		sum.Mul(sum, sum)
	}
	return newFloat(prec).Set(sum)
}

// bigLog returns the natural logarithm of x > 0. x is split into m·2^e with
// m in [0.5, 1) so only log m needs iterating.
func bigLog(x *big.Float, prec uint) *big.Float {
	if x.Cmp(floatInt(1, prec)) == 0 {
		return newFloat(prec)
	}
	p := prec + guardBits
	m := newFloat(p)
	e := x.MantExp(m)
	res := logReduced(m, p)
	if e != 0 {
		ln2 := logReduced(floatInt(2, p), p)
		res.Add(res, ln2.Mul(ln2, floatInt(int64(e), p)))
	}
	return newFloat(prec).Set(res)
}

// logReduced solves exp(y) = a with Halley's iteration
// y ← y + 2(a - e^y)/(a + e^y), starting from the float64 logarithm.
func logReduced(a *big.Float, prec uint) *big.Float {
	af, _ := a.Float64()
	y := newFloat(prec).SetFloat64(math.Log(af))
	two := floatInt(2, prec)
	for i := 0; i < 64; i++ {
		ey := bigExp(y, prec)
		num := newFloat(prec).Sub(a, ey)
		den := newFloat(prec).Add(a, ey)
		delta := num.Quo(num, den)
		delta.Mul(delta, two)
		y.Add(y, delta)
		if delta.Sign() == 0 || delta.MantExp(nil) < 16-int(prec) {
			break
		}
	}
	return y
}

// ============================================================
// trigonometry
// ============================================================

// roundInt rounds f to the nearest integer, halves away from zero.
func roundInt(f *big.Float) *big.Int {
	half := newFloat(f.Prec()).SetFloat64(0.5)
	t := newFloat(f.Prec()).Abs(f)
	t.Add(t, half)
	n, _ := t.Int(nil)
	if f.Sign() < 0 {
		n.Neg(n)
	}
	return n
}

// bigSinCos returns sin x and cos x. x is reduced modulo 2π into [-π, π]
// before summing both Taylor series.
func bigSinCos(x *big.Float, prec uint) (sin, cos *big.Float) {
	extra := x.MantExp(nil)
	if extra < 0 {
		extra = 0
	}
	p := prec + guardBits + uint(extra)
	twoPi := bigPi(p)
	twoPi.Mul(twoPi, floatInt(2, p))

	r := newFloat(p).Set(x)
	q := newFloat(p).Quo(r, twoPi)
	k := roundInt(q)
	if k.Sign() != 0 {
		shift := newFloat(p).SetInt(k)
		r.Sub(r, shift.Mul(shift, twoPi))
	}

	r2 := newFloat(p).Mul(r, r)
	s := newFloat(p).Set(r)
	c := floatInt(1, p)
	sTerm := newFloat(p).Set(r)
	cTerm := floatInt(1, p)
	for n := int64(1); ; n++ {
		// sTerm_n = -sTerm_{n-1}·r²/((2n)(2n+1)), cTerm_n = -cTerm_{n-1}·r²/((2n-1)(2n))
		sTerm.Mul(sTerm, r2)
		sTerm.Quo(sTerm, floatInt((2*n)*(2*n+1), p))
		sTerm.Neg(sTerm)
		cTerm.Mul(cTerm, r2)
		cTerm.Quo(cTerm, floatInt((2*n-1)*(2*n), p))
		cTerm.Neg(cTerm)
		doneS := negligible(sTerm, s, p)
		doneC := negligible(cTerm, c, p)
		if !doneS {
			s.Add(s, sTerm)
		}
		if !doneC {
			c.Add(c, cTerm)
		}
		if doneS && doneC {
			break
		}
	}
	return newFloat(prec).Set(s), newFloat(prec).Set(c)
}

// bigAtan returns atan x. Arguments above 1 use atan x = π/2 - atan(1/x);
// the rest are halved with atan x = 2·atan(x/(1+√(1+x²))) until small.
func bigAtan(x *big.Float, prec uint) *big.Float {
	if x.Sign() == 0 {
		return newFloat(prec)
	}
	p := prec + guardBits
	one := floatInt(1, p)
	a := newFloat(p).Abs(x)
	invert := a.Cmp(one) > 0
	if invert {
		a.Quo(one, a)
	}

	limit := newFloat(p).SetFloat64(1.0 / 16)
	halvings := 0
	for a.Cmp(limit) > 0 {
		t := newFloat(p).Mul(a, a)
		t.Add(t, one)
		t.Sqrt(t)
		t.Add(t, one)
		a.Quo(a, t)
		halvings++
	}

	a2 := newFloat(p).Mul(a, a)
	sum := newFloat(p).Set(a)
	power := newFloat(p).Set(a)
	term := newFloat(p)
	for k := int64(1); ; k++ {
		power.Mul(power, a2)
		term.Quo(power, floatInt(2*k+1, p))
		if negligible(term, sum, p) {
			break
		}
		if k%2 == 1 {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}
	sum.SetMantExp(sum, halvings)

	if invert {
		halfPi := bigPi(p)
		halfPi.Quo(halfPi, floatInt(2, p))
		sum.Sub(halfPi, sum)
	}
	if x.Sign() < 0 {
		sum.Neg(sum)
	}
	return newFloat(prec).Set(sum)
}

// bigAtan2 returns the angle of the point (x, y) in (-π, π].
func bigAtan2(y, x *big.Float, prec uint) *big.Float {
	p := prec + guardBits
	switch {
	case x.Sign() > 0:
		return bigAtan(newFloat(p).Quo(y, x), prec)
	case x.Sign() == 0:
		if y.Sign() == 0 {
			return newFloat(prec)
		}
		halfPi := bigPi(p)
		halfPi.Quo(halfPi, floatInt(2, p))
		if y.Sign() < 0 {
			halfPi.Neg(halfPi)
		}
		return newFloat(prec).Set(halfPi)
	}
	a := bigAtan(newFloat(p).Quo(y, x), p)
	pi := bigPi(p)
	if y.Sign() < 0 {
		a.Sub(a, pi)
	} else {
		a.Add(a, pi)
	}
	return newFloat(prec).Set(a)
}

// bigSinhCosh returns sinh x and cosh x.
func bigSinhCosh(x *big.Float, prec uint) (sinh, cosh *big.Float) {
	p := prec + guardBits
	ex := bigExp(x, p)
	inv := newFloat(p).Quo(floatInt(1, p), ex)
	two := floatInt(2, p)
	s := newFloat(p).Sub(ex, inv)
	s.Quo(s, two)
	c := newFloat(p).Add(ex, inv)
	c.Quo(c, two)
	return newFloat(prec).Set(s), newFloat(prec).Set(c)
}
