// Package formula evaluates the small parameter-modifier expressions
// embedded in item and spell data, e.g. "MAX(Forza,Destrezza)+2". The
// grammar is closed: identifiers, numeric literals, + - * / ( ), and the
// MAX/MIN functions with ';' or ',' separated arguments. Each bare
// identifier resolves through a caller-supplied Resolver; unknown names
// resolve to 0.
package formula

import (
	"strconv"
	"strings"
	"unicode"
)

// Resolver maps an identifier to its numeric value.
type Resolver func(name string) float64

// Eval parses and evaluates expr. The second return is false when the
// expression is empty or malformed; callers treat that as "no computed
// value", never as an error to surface.
func Eval(expr string, resolve Resolver) (float64, bool) {
	p := &parser{src: strings.TrimSpace(expr), resolve: resolve}
	if p.src == "" {
		return 0, false
	}
	v, ok := p.parseExpr()
	if !ok {
		return 0, false
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, false
	}
	return v, true
}

type parser struct {
	src     string
	pos     int
	resolve Resolver
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) parseExpr() (float64, bool) {
	v, ok := p.parseTerm()
	if !ok {
		return 0, false
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			r, ok := p.parseTerm()
			if !ok {
				return 0, false
			}
			v += r
		case '-':
			p.pos++
			r, ok := p.parseTerm()
			if !ok {
				return 0, false
			}
			v -= r
		default:
			return v, true
		}
	}
}

func (p *parser) parseTerm() (float64, bool) {
	v, ok := p.parseFactor()
	if !ok {
		return 0, false
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			r, ok := p.parseFactor()
			if !ok {
				return 0, false
			}
			v *= r
		case '/':
			p.pos++
			r, ok := p.parseFactor()
			if !ok {
				return 0, false
			}
			if r == 0 {
				return 0, false
			}
			v /= r
		default:
			return v, true
		}
	}
}

func (p *parser) parseFactor() (float64, bool) {
	p.skipSpace()
	switch {
	case p.peek() == '+':
		p.pos++
		return p.parseFactor()
	case p.peek() == '-':
		p.pos++
		v, ok := p.parseFactor()
		return -v, ok
	case p.peek() == '(':
		p.pos++
		v, ok := p.parseExpr()
		if !ok {
			return 0, false
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, false
		}
		p.pos++
		return v, true
	case isDigit(p.peek()) || p.peek() == '.':
		return p.parseNumber()
	case isAlpha(p.peek()):
		return p.parseIdentOrCall()
	default:
		return 0, false
	}
}

func (p *parser) parseNumber() (float64, bool) {
	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (p *parser) parseIdentOrCall() (float64, bool) {
	start := p.pos
	for p.pos < len(p.src) && isAlpha(p.src[p.pos]) {
		p.pos++
	}
	name := p.src[start:p.pos]

	p.skipSpace()
	if (name == "MAX" || name == "MIN") && p.peek() == '(' {
		p.pos++
		args, ok := p.parseArgs()
		if !ok || len(args) == 0 {
			return 0, false
		}
		best := args[0]
		for _, a := range args[1:] {
			if name == "MAX" && a > best {
				best = a
			}
			if name == "MIN" && a < best {
				best = a
			}
		}
		return best, true
	}

	if p.resolve == nil {
		return 0, true
	}
	return p.resolve(name), true
}

func (p *parser) parseArgs() ([]float64, bool) {
	var args []float64
	for {
		v, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		args = append(args, v)
		p.skipSpace()
		switch p.peek() {
		case ';', ',':
			p.pos++
		case ')':
			p.pos++
			return args, true
		default:
			return nil, false
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return unicode.IsLetter(rune(c)) || c == '_'
}
