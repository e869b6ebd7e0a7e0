// Package reader parses Prolog source text into terms.
package reader

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/horn/term"
)

// SyntaxError reports malformed source text.
type SyntaxError struct {
	Pos Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: %s", e.Pos, e.Msg)
}

// VarBinding associates a source variable name with the variable used in
// the parsed term.
type VarBinding struct {
	Name string
	Var  term.Variable
}

// Parser reads clauses one at a time.
type Parser struct {
	lex  *Lexer
	ops  *term.OpTable
	tok   Token
	peek  *Token
	start Position // first token of the last clause

	vars    []VarBinding
	varMap  map[string]term.Variable
	anonSeq int
}

// NewParser creates a parser over src using the standard operator table.
func NewParser(src string) *Parser {
	return NewParserWithOps(src, term.DefaultOps())
}

// NewParserWithOps creates a parser using ops.
func NewParserWithOps(src string, ops *term.OpTable) *Parser {
	return &Parser{lex: NewLexer(src), ops: ops}
}

// Next reads the next clause. It returns io.EOF when the input is
// exhausted.
func (p *Parser) Next() (term.Term, []VarBinding, error) {
	p.vars = nil
	p.varMap = make(map[string]term.Variable)
	if err := p.advance(); err != nil {
		return nil, nil, err
	}
	if p.tok.Type == TokenEOF {
		return nil, nil, io.EOF
	}
	p.start = p.tok.Pos
	t, err := p.parse(1200)
	if err != nil {
		p.recover()
		return nil, nil, err
	}
	if err := p.advance(); err != nil {
		return nil, nil, err
	}
	if p.tok.Type != TokenEnd {
		err := p.errorf("operator expected, got %s %q", p.tok.Type, p.tok.Literal)
		p.recover()
		return nil, nil, err
	}
	return t, p.vars, nil
}

// Start returns where the clause last read by Next begins.
func (p *Parser) Start() Position { return p.start }

// recover skips to the end of the current clause.
func (p *Parser) recover() {
	for p.tok.Type != TokenEnd && p.tok.Type != TokenEOF {
		if err := p.advance(); err != nil {
			return
		}
	}
}

// ReadAll parses every clause in src.
func ReadAll(src string) ([]term.Term, error) {
	p := NewParser(src)
	var out []term.Term
	for {
		t, _, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
}

// ParseTerm parses a single term. A terminating '.' is optional.
func ParseTerm(src string) (term.Term, []VarBinding, error) {
	p := NewParser(src)
	p.varMap = make(map[string]term.Variable)
	if err := p.advance(); err != nil {
		return nil, nil, err
	}
	t, err := p.parse(1200)
	if err != nil {
		return nil, nil, err
	}
	if err := p.advance(); err != nil {
		return nil, nil, err
	}
	if p.tok.Type == TokenEnd {
		if err := p.advance(); err != nil {
			return nil, nil, err
		}
	}
	if p.tok.Type != TokenEOF {
		return nil, nil, p.errorf("unexpected %s %q after term", p.tok.Type, p.tok.Literal)
	}
	return t, p.vars, nil
}

// MustParse parses src and panics on error. Intended for tests and
// embedded boot code.
func MustParse(src string) term.Term {
	t, _, err := ParseTerm(src)
	if err != nil {
		panic(err)
	}
	return t
}

// ---------------------------------------------------------------------------
// Token stream
// ---------------------------------------------------------------------------

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

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.tok.Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expectPunct(s string) error {
	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.Type != TokenPunct || p.tok.Literal != s {
		return p.errorf("expected %q, got %q", s, p.tok.Literal)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operator precedence parsing
// ---------------------------------------------------------------------------

// parse reads a term whose priority is at most max. On entry p.tok is the
// first token of the term; on exit p.tok is its last token.
func (p *Parser) parse(max int) (term.Term, error) {
	left, prec, err := p.primary(max)
	if err != nil {
		return nil, err
	}
	return p.operators(left, prec, max)
}

func (p *Parser) operators(left term.Term, leftPrec, max int) (term.Term, error) {
	for {
		next, err := p.lookahead()
		if err != nil {
			return nil, err
		}
		name, ok := infixName(next)
		if !ok {
			return left, nil
		}
		if op, ok := p.ops.Infix[term.Atom(name)]; ok {
			lmax, rmax := op.ArgPriorities()
			if op.Priority <= max && leftPrec <= lmax {
				p.advance()
				if err := p.advance(); err != nil {
					return nil, err
				}
				right, err := p.parse(rmax)
				if err != nil {
					return nil, err
				}
				if name == "|" {
					name = ";"
				}
				left = &term.Compound{Functor: term.Atom(name), Args: []term.Term{left, right}}
				leftPrec = op.Priority
				continue
			}
		}
		if op, ok := p.ops.Postfix[term.Atom(name)]; ok {
			lmax, _ := op.ArgPriorities()
			if op.Priority <= max && leftPrec <= lmax {
				p.advance()
				left = &term.Compound{Functor: term.Atom(name), Args: []term.Term{left}}
				leftPrec = op.Priority
				continue
			}
		}
		return left, nil
	}
}

func infixName(t Token) (string, bool) {
	switch t.Type {
	case TokenName:
		return t.Literal, true
	case TokenPunct:
		if t.Literal == "," || t.Literal == "|" {
			return t.Literal, true
		}
	}
	return "", false
}

// primary parses a primary term and reports its priority.
func (p *Parser) primary(max int) (term.Term, int, error) {
	tok := p.tok
	switch tok.Type {
	case TokenInt:
		return term.Int(tok.Int), 0, nil
	case TokenBigInt:
		return term.NewBig(tok.Big), 0, nil
	case TokenFloat:
		return term.Float(tok.Float), 0, nil
	case TokenString:
		return term.String(tok.Literal), 0, nil
	case TokenVar:
		return p.variable(tok.Literal), 0, nil
	case TokenPunct:
		switch tok.Literal {
		case "(":
			if err := p.advance(); err != nil {
				return nil, 0, err
			}
			t, err := p.parse(1200)
			if err != nil {
				return nil, 0, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, 0, err
			}
			return t, 0, nil
		case "[":
			t, err := p.list()
			return t, 0, err
		case "{":
			if err := p.advance(); err != nil {
				return nil, 0, err
			}
			t, err := p.parse(1200)
			if err != nil {
				return nil, 0, err
			}
			if err := p.expectPunct("}"); err != nil {
				return nil, 0, err
			}
			return &term.Compound{Functor: term.Curly, Args: []term.Term{t}}, 0, nil
		}
		return nil, 0, p.errorf("unexpected %q", tok.Literal)
	case TokenName:
		return p.name(tok, max)
	case TokenEnd:
		return nil, 0, p.errorf("unexpected end of clause")
	case TokenEOF:
		return nil, 0, p.errorf("unexpected end of file")
	}
	return nil, 0, p.errorf("unexpected token %q", tok.Literal)
}

func (p *Parser) name(tok Token, max int) (term.Term, int, error) {
	next, err := p.lookahead()
	if err != nil {
		return nil, 0, err
	}
	// functional notation: name immediately followed by '('
	if next.Type == TokenPunct && next.Literal == "(" && !next.Layout {
		p.advance()
		args, err := p.arguments()
		if err != nil {
			return nil, 0, err
		}
		return &term.Compound{Functor: term.Atom(tok.Literal), Args: args}, 0, nil
	}
	// negative numeric literal
	if tok.Literal == "-" && !tok.Quoted && !next.Layout {
		switch next.Type {
		case TokenInt:
			p.advance()
			return term.Int(-next.Int), 0, nil
		case TokenBigInt:
			p.advance()
			return term.NewBig(next.Big.Neg(next.Big)), 0, nil
		case TokenFloat:
			p.advance()
			return term.Float(-next.Float), 0, nil
		}
	}
	atom := term.Atom(tok.Literal)
	if op, ok := p.ops.Prefix[atom]; ok && !tok.Quoted && canStartTerm(next) && !p.isInfixAhead(next) {
		prio := op.Priority
		if prio > max {
			prio = 999
		}
		_, rmax := op.ArgPriorities()
		if rmax > prio {
			rmax = prio
		}
		if err := p.advance(); err != nil {
			return nil, 0, err
		}
		arg, err := p.parse(rmax)
		if err != nil {
			return nil, 0, err
		}
		return &term.Compound{Functor: atom, Args: []term.Term{arg}}, prio, nil
	}
	return atom, 0, nil
}

// isInfixAhead reports whether next is an infix operator, in which case a
// preceding prefix operator is read as an atom operand (e.g. "- = x").
func (p *Parser) isInfixAhead(next Token) bool {
	if next.Type != TokenName {
		return false
	}
	a := term.Atom(next.Literal)
	if _, ok := p.ops.Infix[a]; !ok {
		return false
	}
	if _, ok := p.ops.Prefix[a]; ok {
		return false
	}
	return true
}

func canStartTerm(t Token) bool {
	switch t.Type {
	case TokenEOF, TokenEnd:
		return false
	case TokenPunct:
		return t.Literal == "(" || t.Literal == "[" || t.Literal == "{"
	}
	return true
}

// arguments parses "(a, b, ...)" with p.tok at '('.
func (p *Parser) arguments() ([]term.Term, error) {
	var args []term.Term
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		a, err := p.parse(999)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Type == TokenPunct && p.tok.Literal == "," {
			continue
		}
		if p.tok.Type == TokenPunct && p.tok.Literal == ")" {
			return args, nil
		}
		return nil, p.errorf("expected ',' or ')' in arguments, got %q", p.tok.Literal)
	}
}

// list parses a list with p.tok at '['.
func (p *Parser) list() (term.Term, error) {
	var elems []term.Term
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parse(999)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Type != TokenPunct {
			return nil, p.errorf("expected ',', '|' or ']' in list, got %q", p.tok.Literal)
		}
		switch p.tok.Literal {
		case ",":
			continue
		case "]":
			return term.List(elems...), nil
		case "|":
			if err := p.advance(); err != nil {
				return nil, err
			}
			tail, err := p.parse(999)
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			return term.ListWithTail(tail, elems...), nil
		}
		return nil, p.errorf("expected ',', '|' or ']' in list, got %q", p.tok.Literal)
	}
}

func (p *Parser) variable(name string) term.Term {
	// anonymous variables get names the lexer never produces
	if name == "_" {
		p.anonSeq++
		return term.Variable(fmt.Sprintf("_#%d", p.anonSeq))
	}
	if v, ok := p.varMap[name]; ok {
		return v
	}
	v := term.Variable(name)
	p.varMap[name] = v
	p.vars = append(p.vars, VarBinding{Name: name, Var: v})
	return v
}
