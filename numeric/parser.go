package numeric

import (
	"math/big"
)

// Parse turns src into an expression tree.
//
// Precedence, lowest first: + -; * / % mod and implicit multiplication;
// unary + -; ^ (right associative); postfix ! and angle units. Unary minus
// binds looser than ^, so -2^2 is -4.
func Parse(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, syntaxErrorf(0, "empty expression")
	}
	e, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, syntaxErrorf(t.pos, "unmatched ')'")
		}
		return nil, syntaxErrorf(t.pos, "unexpected %s %q", t.kind, t.text)
	}
	return e, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if t.text == op {
			return true
		}
	}
	return false
}

func (p *parser) parseSum() (Expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = &Binary{op: op, l: left, r: right}
	}
	return left, nil
}

// startsOperand reports whether the next token can begin an implicit
// multiplication operand.
func (p *parser) startsOperand() bool {
	switch p.peek().kind {
	case tokNumber, tokIdent, tokLParen:
		return true
	}
	return false
}

func (p *parser) parseProduct() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("*", "/", "%", "mod"):
			op := p.next().text
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &Binary{op: op, l: left, r: right}
		case p.startsOperand():
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = &Binary{op: "*", l: left, r: right, implicit: true}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isOp("+", "-") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{op: op, x: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{op: "^", l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokOp && t.text == "!":
			p.next()
			x = &Postfix{op: "!", x: x}
		case t.kind == tokIdent && (t.text == "deg" || t.text == "rad"):
			p.next()
			x = &Postfix{op: t.text, x: x}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		r, ok := new(big.Rat).SetString(t.text)
		if !ok {
			return nil, syntaxErrorf(t.pos, "malformed number %q", t.text)
		}
		return &Number{text: t.text, val: r}, nil
	case tokIdent:
		if _, isConst := constants[t.text]; !isConst && p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &Ident{name: t.text}, nil
	case tokLParen:
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, syntaxErrorf(t.pos, "missing ')'")
		}
		return &Group{x: inner}, nil
	case tokEOF:
		return nil, syntaxErrorf(t.pos, "unexpected end of expression")
	}
	return nil, syntaxErrorf(t.pos, "unexpected %s %q", t.kind, t.text)
}

func (p *parser) parseCall(name token) (Expr, error) {
	open := p.next()
	call := &Call{name: name.text}
	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokRParen:
			return call, nil
		case tokEOF:
			return nil, syntaxErrorf(open.pos, "missing ')' in call to %s", name.text)
		default:
			return nil, syntaxErrorf(t.pos, "unexpected %s %q in call to %s", t.kind, t.text, name.text)
		}
	}
}
