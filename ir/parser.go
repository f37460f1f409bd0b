// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package ir

import (
	"io"
	"strconv"

	"irasm/diag"
)

// Parser is a one-token-lookahead recursive-descent parser over the
// textual IR grammar, in the same per-production-method shape as the
// teacher's ast.Parser.
type Parser struct {
	lex  *Lexer
	tok  Token
	peek *Token
}

func NewParser(r io.Reader) (*Parser, error) {
	p := &Parser{lex: NewLexer(r)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) lookahead() (Token, error) {
	if p.peek == nil {
		t, err := p.lex.Next()
		if err != nil {
			return Token{}, err
		}
		p.peek = &t
	}
	return *p.peek, nil
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if p.tok.Kind != k {
		return Token{}, diag.Newf(diag.ParseError, "expected %s at line %d, got %q", what, p.tok.Line, p.tok.Text)
	}
	t := p.tok
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (p *Parser) skipNewlines() error {
	for p.tok.Kind == TkNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads a full Module from the parser's underlying reader.
func Parse(r io.Reader) (*Module, error) {
	p, err := NewParser(r)
	if err != nil {
		return nil, err
	}
	return p.parseModule()
}

func (p *Parser) parseModule() (*Module, error) {
	m := &Module{}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	for p.tok.Kind != TkEOF {
		switch {
		case p.tok.Kind == TkIdent && p.tok.Text == "global_string":
			g, err := p.parseGlobalString()
			if err != nil {
				return nil, err
			}
			m.Globals = append(m.Globals, g)
		case p.tok.Kind == TkIdent && p.tok.Text == "extern":
			e, err := p.parseExtern()
			if err != nil {
				return nil, err
			}
			m.Externs = append(m.Externs, e)
		case p.tok.Kind == TkIdent && p.tok.Text == "define":
			fn, err := p.parseFunction()
			if err != nil {
				return nil, err
			}
			m.Functions = append(m.Functions, fn)
		default:
			return nil, diag.Newf(diag.ParseError, "expected global_string/extern/define at line %d, got %q", p.tok.Line, p.tok.Text)
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (p *Parser) ident(what string) (string, error) {
	t, err := p.expect(TkIdent, what)
	if err != nil {
		return "", err
	}
	return t.Text, nil
}

func (p *Parser) parseGlobalString() (GlobalString, error) {
	if _, err := p.expect(TkIdent, "global_string"); err != nil {
		return GlobalString{}, err
	}
	if _, err := p.expect(TkPercent, "%"); err != nil {
		return GlobalString{}, err
	}
	name, err := p.ident("global name")
	if err != nil {
		return GlobalString{}, err
	}
	if _, err := p.expect(TkEquals, "="); err != nil {
		return GlobalString{}, err
	}
	lit, err := p.expect(TkString, "string literal")
	if err != nil {
		return GlobalString{}, err
	}
	return GlobalString{Name: name, Bytes: append([]byte(lit.Text), 0)}, nil
}

func (p *Parser) parseSize(what string) (ValueSize, error) {
	t, err := p.expect(TkIdent, what)
	if err != nil {
		return SizeNone, err
	}
	sz, ok := ParseSize(t.Text)
	if !ok {
		return SizeNone, diag.Newf(diag.ParseError, "unknown size token %q at line %d", t.Text, t.Line)
	}
	return sz, nil
}

func (p *Parser) parseExtern() (Extern, error) {
	if _, err := p.expect(TkIdent, "extern"); err != nil {
		return Extern{}, err
	}
	if _, err := p.expect(TkIdent, "fn"); err != nil {
		return Extern{}, err
	}
	ret, err := p.parseSize("return size")
	if err != nil {
		return Extern{}, err
	}
	name, err := p.ident("function name")
	if err != nil {
		return Extern{}, err
	}
	if _, err := p.expect(TkLParen, "("); err != nil {
		return Extern{}, err
	}
	var params []ValueSize
	for p.tok.Kind != TkRParen {
		sz, err := p.parseSize("param size")
		if err != nil {
			return Extern{}, err
		}
		params = append(params, sz)
		if p.tok.Kind == TkPercent {
			if err := p.advance(); err != nil {
				return Extern{}, err
			}
			if _, err := p.ident("param name"); err != nil {
				return Extern{}, err
			}
		}
		if p.tok.Kind == TkComma {
			if err := p.advance(); err != nil {
				return Extern{}, err
			}
		}
	}
	if _, err := p.expect(TkRParen, ")"); err != nil {
		return Extern{}, err
	}
	return Extern{Name: name, Params: params, ReturnSize: ret}, nil
}

func (p *Parser) parseParams() ([]Param, error) {
	if _, err := p.expect(TkLParen, "("); err != nil {
		return nil, err
	}
	var params []Param
	for p.tok.Kind != TkRParen {
		sz, err := p.parseSize("param size")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TkPercent, "%"); err != nil {
			return nil, err
		}
		name, err := p.ident("param name")
		if err != nil {
			return nil, err
		}
		params = append(params, Param{Size: sz, Name: name})
		if p.tok.Kind == TkComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(TkRParen, ")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFunction() (*Function, error) {
	if _, err := p.expect(TkIdent, "define"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TkIdent, "fn"); err != nil {
		return nil, err
	}
	ret, err := p.parseSize("return size")
	if err != nil {
		return nil, err
	}
	name, err := p.ident("function name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}

	fn := &Function{Name: name, Params: params, ReturnSize: ret}
	cur := &Block{Name: "entry"}
	fn.Blocks = append(fn.Blocks, cur)

	for {
		if p.tok.Kind == TkIdent && p.tok.Text == "end" {
			if err := p.advance(); err != nil {
				return nil, err
			}
			break
		}
		if p.tok.Kind == TkDot || (p.tok.Kind == TkIdent && len(p.tok.Text) > 0 && p.tok.Text[0] == '.') {
			label := p.tok.Text[1:]
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expect(TkColon, ":"); err != nil {
				return nil, err
			}
			if len(cur.Instructions) == 0 && cur.Name == "entry" && len(fn.Blocks) == 1 {
				cur.Name = label
			} else {
				cur = &Block{Name: label}
				fn.Blocks = append(fn.Blocks, cur)
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		inst, err := p.parseInstruction()
		if err != nil {
			return nil, err
		}
		cur.Instructions = append(cur.Instructions, inst)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func (p *Parser) parseInstruction() (Instruction, error) {
	var assignee string
	if p.tok.Kind == TkPercent {
		if err := p.advance(); err != nil {
			return Instruction{}, err
		}
		name, err := p.ident("result name")
		if err != nil {
			return Instruction{}, err
		}
		assignee = name
		if _, err := p.expect(TkEquals, "="); err != nil {
			return Instruction{}, err
		}
	}
	opTok, err := p.expect(TkIdent, "opcode")
	if err != nil {
		return Instruction{}, err
	}
	inst, err := p.parseOpcode(opTok.Text)
	if err != nil {
		return Instruction{}, err
	}
	inst.Assignee = assignee
	return inst, nil
}

func (p *Parser) parseOpcode(op string) (Instruction, error) {
	switch op {
	case "literal":
		sz, err := p.parseSize("literal size")
		if err != nil {
			return Instruction{}, err
		}
		litTok, err := p.expect(TkInt, "literal value")
		if err != nil {
			return Instruction{}, err
		}
		n, _ := strconv.ParseUint(litTok.Text, 10, 64)
		return Instruction{Kind: KLiteral, Result: sz, Operands: []Operand{OperandOf(Lit(sz, n))}}, nil
	case "allocate":
		n, err := p.expect(TkInt, "allocate size")
		if err != nil {
			return Instruction{}, err
		}
		sz, _ := strconv.Atoi(n.Text)
		return Instruction{Kind: KAllocate, Result: SizePtr, AllocateSize: sz}, nil
	case "store":
		sz, err := p.parseSize("store size")
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KStore, Operands: ops, MemSize: sz}, nil
	case "load":
		sz, err := p.parseSize("load size")
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KLoad, Operands: ops, Result: sz, MemSize: sz}, nil
	case "icmp":
		predTok, err := p.expect(TkIdent, "icmp predicate")
		if err != nil {
			return Instruction{}, err
		}
		pred, err := parsePredicate(predTok.Text)
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KICmp, Operands: ops, Result: SizeI1, Predicate: pred}, nil
	case "branch":
		t, f, err := p.parseTwoLabels()
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KBranch, Operands: ops, TrueLabel: t, FalseLabel: f}, nil
	case "jmp":
		l, err := p.parseLabel()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KJmp, JmpLabel: l}, nil
	case "ret":
		ops, err := p.parseOptionalOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KRet, Operands: ops}, nil
	case "add", "sub", "mul", "div", "mod":
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		aop := map[string]ArithOp{"add": ArithAdd, "sub": ArithSub, "mul": ArithMul, "div": ArithDiv, "mod": ArithMod}[op]
		result := SizeI32
		if len(ops) > 0 {
			result = ops[0].Value.Size
		}
		return Instruction{Kind: KArithmetic, Operands: ops, ArithOp: aop, Result: result}, nil
	case "call":
		retSz, err := p.parseSize("call return size")
		if err != nil {
			return Instruction{}, err
		}
		callee, err := p.ident("callee name")
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOptionalOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KCall, Operands: ops, Callee: callee, Result: retSz}, nil
	case "phi":
		labels, err := p.parseLabelList()
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		result := SizeParamDependent
		if len(ops) > 0 {
			result = ops[0].Value.Size
		}
		return Instruction{Kind: KPhi, Operands: ops, PhiLabels: labels, Result: result}, nil
	case "select":
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		result := SizeI32
		if len(ops) == 3 {
			result = ops[1].Value.Size
		}
		return Instruction{Kind: KSelect, Operands: ops, Result: result}, nil
	case "sext", "zext":
		sz, err := p.parseSize("cast target size")
		if err != nil {
			return Instruction{}, err
		}
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		kind := KSExt
		if op == "zext" {
			kind = KZExt
		}
		return Instruction{Kind: kind, Operands: ops, Result: sz}, nil
	case "get_array_ptr":
		n, err := p.expect(TkInt, "element size")
		if err != nil {
			return Instruction{}, err
		}
		elemSz, _ := strconv.Atoi(n.Text)
		ops, err := p.parseOperandList()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: KGetArrayPtr, Operands: ops, Result: SizePtr, ElemSize: elemSz}, nil
	}
	return Instruction{}, diag.Newf(diag.ParseError, "unknown opcode %q at line %d", op, p.tok.Line)
}

func parsePredicate(s string) (ICmpPredicate, error) {
	switch s {
	case "eq":
		return ICmpEQ, nil
	case "ne":
		return ICmpNE, nil
	case "slt":
		return ICmpSLT, nil
	case "sle":
		return ICmpSLE, nil
	case "sgt":
		return ICmpSGT, nil
	case "sge":
		return ICmpSGE, nil
	}
	return 0, diag.Newf(diag.ParseError, "unknown icmp predicate %q", s)
}

func (p *Parser) parseLabel() (string, error) {
	t, err := p.expect(TkIdent, "label")
	if err != nil {
		return "", err
	}
	if len(t.Text) == 0 || t.Text[0] != '.' {
		return "", diag.Newf(diag.ParseError, "expected label (.name) at line %d, got %q", t.Line, t.Text)
	}
	return t.Text[1:], nil
}

func (p *Parser) parseTwoLabels() (string, string, error) {
	t, err := p.parseLabel()
	if err != nil {
		return "", "", err
	}
	if _, err := p.expect(TkComma, ","); err != nil {
		return "", "", err
	}
	f, err := p.parseLabel()
	if err != nil {
		return "", "", err
	}
	return t, f, nil
}

func (p *Parser) parseLabelList() ([]string, error) {
	var labels []string
	l, err := p.parseLabel()
	if err != nil {
		return nil, err
	}
	labels = append(labels, l)
	for p.tok.Kind == TkComma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		l, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, nil
}

// parseOperandList parses a required comma-separated "<size> %name" or
// "<size> <int>" list. At least one operand must be present.
func (p *Parser) parseOperandList() ([]Operand, error) {
	ops, err := p.parseOptionalOperandList()
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, diag.Newf(diag.ParseError, "expected at least one operand at line %d", p.tok.Line)
	}
	return ops, nil
}

func (p *Parser) parseOptionalOperandList() ([]Operand, error) {
	var ops []Operand
	for p.tok.Kind == TkIdent {
		sz, ok := ParseSize(p.tok.Text)
		if !ok {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		var v Value
		switch p.tok.Kind {
		case TkPercent:
			if err := p.advance(); err != nil {
				return nil, err
			}
			name, err := p.ident("operand name")
			if err != nil {
				return nil, err
			}
			v = Var(sz, name)
		case TkInt:
			n, _ := strconv.ParseUint(p.tok.Text, 10, 64)
			if err := p.advance(); err != nil {
				return nil, err
			}
			v = Lit(sz, n)
		case TkMinus:
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.expect(TkInt, "integer literal")
			if err != nil {
				return nil, err
			}
			u, _ := strconv.ParseUint(n.Text, 10, 64)
			v = Lit(sz, uint64(-int64(u)))
		default:
			return nil, diag.Newf(diag.ParseError, "expected operand after size token at line %d", p.tok.Line)
		}
		ops = append(ops, OperandOf(v))
		if p.tok.Kind == TkComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return ops, nil
}
