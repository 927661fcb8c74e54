// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package expr

import "fmt"

// Compile parses src against scope, resolving every identifier to a
// scope slot, and returns a [Program] ready for repeated evaluation.
// It fails with a [*ParseError] on malformed input (including a call
// to an unknown function) and a [*NameError] when a variable
// identifier is not a known scope name.
func Compile(src string, scope *Scope) (*Program, error) {
	p := &parser{lex: newLexer(src), scope: scope}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.parseComparison(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &ParseError{Position: p.tok.pos, Msg: "unexpected trailing input"}
	}
	return &Program{instrs: p.instrs, scope: scope, maxDepth: p.maxDepth}, nil
}

type parser struct {
	lex   *lexer
	tok   token
	scope *Scope

	instrs   []instr
	depth    int
	maxDepth int
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) emit(in instr, delta int) {
	p.instrs = append(p.instrs, in)
	p.depth += delta
	if p.depth > p.maxDepth {
		p.maxDepth = p.depth
	}
}

func (p *parser) expect(k tokKind, msg string) error {
	if p.tok.kind != k {
		return &ParseError{Position: p.tok.pos, Msg: msg}
	}
	return p.advance()
}

// comparison = additive [ ('==' | '!=' | '<' | '<=' | '>' | '>=') additive ]
func (p *parser) parseComparison() error {
	if err := p.parseAdditive(); err != nil {
		return err
	}
	var op opcode
	switch p.tok.kind {
	case tokEq:
		op = opEq
	case tokNe:
		op = opNe
	case tokLt:
		op = opLt
	case tokLe:
		op = opLe
	case tokGt:
		op = opGt
	case tokGe:
		op = opGe
	default:
		return nil
	}
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.parseAdditive(); err != nil {
		return err
	}
	p.emit(instr{op: op}, -1)
	return nil
}

// additive = multiplicative ( ('+' | '-') multiplicative )*
func (p *parser) parseAdditive() error {
	if err := p.parseMultiplicative(); err != nil {
		return err
	}
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		op := opAdd
		if p.tok.kind == tokMinus {
			op = opSub
		}
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseMultiplicative(); err != nil {
			return err
		}
		p.emit(instr{op: op}, -1)
	}
	return nil
}

// multiplicative = unary ( ('*' | '/') unary )*
func (p *parser) parseMultiplicative() error {
	if err := p.parseUnary(); err != nil {
		return err
	}
	for p.tok.kind == tokStar || p.tok.kind == tokSlash {
		op := opMul
		if p.tok.kind == tokSlash {
			op = opDiv
		}
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseUnary(); err != nil {
			return err
		}
		p.emit(instr{op: op}, -1)
	}
	return nil
}

// unary = '-' unary | power
func (p *parser) parseUnary() error {
	if p.tok.kind == tokMinus {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseUnary(); err != nil {
			return err
		}
		p.emit(instr{op: opNeg}, 0)
		return nil
	}
	return p.parsePower()
}

// power = primary [ '^' unary ]   (right-associative)
func (p *parser) parsePower() error {
	if err := p.parsePrimary(); err != nil {
		return err
	}
	if p.tok.kind == tokCaret {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseUnary(); err != nil {
			return err
		}
		p.emit(instr{op: opPow}, -1)
	}
	return nil
}

// primary = number | ident ['(' args ')'] | '(' comparison ')'
func (p *parser) parsePrimary() error {
	switch p.tok.kind {
	case tokNum:
		v := p.tok.num
		if err := p.advance(); err != nil {
			return err
		}
		p.emit(instr{op: opConst, val: v}, 1)
		return nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseComparison(); err != nil {
			return err
		}
		return p.expect(tokRParen, "expecting ')'")
	case tokIdent:
		name := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return err
		}
		if p.tok.kind == tokLParen {
			return p.parseCall(name, pos)
		}
		slot, ok := p.scope.Lookup(name)
		if !ok {
			return &NameError{Ident: name}
		}
		p.emit(instr{op: opLoad, slot: slot}, 1)
		return nil
	default:
		return &ParseError{Position: p.tok.pos, Msg: "expecting a value"}
	}
}

func (p *parser) parseCall(name string, pos int) error {
	def, ok := functions[name]
	if !ok {
		return &ParseError{Position: pos, Msg: fmt.Sprintf("unknown function %q", name)}
	}
	if err := p.advance(); err != nil { // consume '('
		return err
	}
	n := 0
	if p.tok.kind != tokRParen {
		for {
			if err := p.parseComparison(); err != nil {
				return err
			}
			n++
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if err := p.expect(tokRParen, "expecting ')' to close call to "+name); err != nil {
		return err
	}
	if n != def.arity {
		return &ParseError{Position: pos, Msg: fmt.Sprintf("%s expects %d argument(s), got %d", name, def.arity, n)}
	}
	p.emit(instr{op: opCall, fn: def.call, nargs: n}, 1-n)
	return nil
}
