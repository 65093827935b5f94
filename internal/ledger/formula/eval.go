// Package formula evaluates template amount formulas. Only arithmetic over
// decimal literals and named variables is supported; there is no other syntax.
package formula

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

const (
	maxLength = 512
	maxDepth  = 32
)

// Eval computes expr with variables resolved from vars. Variables are written
// either as {{name}} or as a bare identifier. The result is rounded to cents.
func Eval(expr string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	if len(expr) > maxLength {
		return decimal.Zero, ledger.Validation("formula", "expression too long")
	}
	toks, err := tokenize(expr)
	if err != nil {
		return decimal.Zero, err
	}
	if len(toks) == 0 {
		return decimal.Zero, ledger.Validation("formula", "empty expression")
	}
	p := &parser{toks: toks, vars: vars}
	val, err := p.expr(0)
	if err != nil {
		return decimal.Zero, err
	}
	if p.pos != len(p.toks) {
		return decimal.Zero, syntaxErr("unexpected %q", p.toks[p.pos].text)
	}
	return val.Round(2), nil
}

type kind int

const (
	tokNum kind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind kind
	text string
	num  decimal.Decimal
}

func syntaxErr(format string, args ...any) error {
	return ledger.Validation("formula", fmt.Sprintf(format, args...))
}

func tokenize(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '{':
			if i+1 >= len(rs) || rs[i+1] != '{' {
				return nil, syntaxErr("unexpected '{'")
			}
			end := strings.Index(string(rs[i+2:]), "}}")
			if end < 0 {
				return nil, syntaxErr("unterminated placeholder")
			}
			name := strings.TrimSpace(string(rs[i+2 : i+2+end]))
			if !validIdent(name) {
				return nil, syntaxErr("invalid placeholder %q", name)
			}
			toks = append(toks, token{kind: tokIdent, text: name})
			i += 2 + end + 2
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			num, err := decimal.NewFromString(string(rs[i:j]))
			if err != nil {
				return nil, syntaxErr("invalid number %q", string(rs[i:j]))
			}
			toks = append(toks, token{kind: tokNum, text: string(rs[i:j]), num: num})
			i = j
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[i:j])})
			i = j
		case strings.ContainsRune("+-*/", r):
			toks = append(toks, token{kind: tokOp, text: string(r)})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		default:
			return nil, syntaxErr("unexpected character %q", r)
		}
	}
	return toks, nil
}

func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

type parser struct {
	toks []token
	pos  int
	vars map[string]decimal.Decimal
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) expr(depth int) (decimal.Decimal, error) {
	left, err := p.term(depth)
	if err != nil {
		return decimal.Zero, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.term(depth)
		if err != nil {
			return decimal.Zero, err
		}
		if tok.text == "+" {
			left = left.Add(right)
		} else {
			left = left.Sub(right)
		}
	}
}

func (p *parser) term(depth int) (decimal.Decimal, error) {
	left, err := p.factor(depth)
	if err != nil {
		return decimal.Zero, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.factor(depth)
		if err != nil {
			return decimal.Zero, err
		}
		if tok.text == "*" {
			left = left.Mul(right)
			continue
		}
		if right.IsZero() {
			return decimal.Zero, syntaxErr("division by zero")
		}
		left = left.Div(right)
	}
}

func (p *parser) factor(depth int) (decimal.Decimal, error) {
	if depth > maxDepth {
		return decimal.Zero, syntaxErr("expression nested too deeply")
	}
	tok, ok := p.peek()
	if !ok {
		return decimal.Zero, syntaxErr("unexpected end of expression")
	}
	p.pos++
	switch tok.kind {
	case tokNum:
		return tok.num, nil
	case tokIdent:
		val, found := p.vars[tok.text]
		if !found {
			return decimal.Zero, syntaxErr("unknown variable %q", tok.text)
		}
		return val, nil
	case tokOp:
		if tok.text != "-" && tok.text != "+" {
			return decimal.Zero, syntaxErr("unexpected %q", tok.text)
		}
		val, err := p.factor(depth + 1)
		if err != nil {
			return decimal.Zero, err
		}
		if tok.text == "-" {
			return val.Neg(), nil
		}
		return val, nil
	case tokLParen:
		val, err := p.expr(depth + 1)
		if err != nil {
			return decimal.Zero, err
		}
		next, ok := p.peek()
		if !ok || next.kind != tokRParen {
			return decimal.Zero, syntaxErr("missing ')'")
		}
		p.pos++
		return val, nil
	}
	return decimal.Zero, syntaxErr("unexpected %q", tok.text)
}
