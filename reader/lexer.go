package reader

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/horn/term"
)

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// TokenType classifies a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenName          // foo, 'quoted', +, ;, !
	TokenVar           // X, _foo, _
	TokenInt           // 42, 0x1F, 0'a
	TokenBigInt        // integers beyond int64
	TokenFloat         // 3.14, 1.0e10
	TokenString        // "text"
	TokenPunct         // ( ) [ ] { } , |
	TokenEnd           // terminating '.'
)

var tokenNames = map[TokenType]string{
	TokenEOF:    "end of file",
	TokenName:   "name",
	TokenVar:    "variable",
	TokenInt:    "integer",
	TokenBigInt: "integer",
	TokenFloat:  "float",
	TokenString: "string",
	TokenPunct:  "punctuation",
	TokenEnd:    "end of clause",
}

func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Position is a location in the source text.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Quoted  bool // name was written with quotes
	Layout  bool // layout text preceded the token
	Int     int64
	Big     *big.Int
	Float   float64
	Pos     Position
}

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes Prolog source text.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      rune
	line    int
	col     int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) errorf(pos Position, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// skipLayout skips whitespace and comments, reporting whether any was seen.
func (l *Lexer) skipLayout() (bool, error) {
	seen := false
	for !l.atEOF() {
		switch {
		case unicode.IsSpace(l.ch):
			l.readChar()
		case l.ch == '%':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			start := l.position()
			l.readChar()
			l.readChar()
			for {
				if l.atEOF() {
					return seen, l.errorf(start, "unterminated block comment")
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
		default:
			return seen, nil
		}
		seen = true
	}
	return seen, nil
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	layout, err := l.skipLayout()
	if err != nil {
		return Token{}, err
	}
	pos := l.position()
	tok := Token{Pos: pos, Layout: layout}

	if l.atEOF() {
		tok.Type = TokenEOF
		return tok, nil
	}

	ch := l.ch
	switch {
	case unicode.IsDigit(ch):
		return l.number(tok)

	case ch == '_' || unicode.IsUpper(ch):
		tok.Type = TokenVar
		tok.Literal = l.identifier()
		return tok, nil

	case unicode.IsLetter(ch):
		tok.Type = TokenName
		tok.Literal = l.identifier()
		return tok, nil

	case ch == '\'':
		s, err := l.quoted('\'')
		if err != nil {
			return tok, err
		}
		tok.Type = TokenName
		tok.Literal = s
		tok.Quoted = true
		return tok, nil

	case ch == '"':
		s, err := l.quoted('"')
		if err != nil {
			return tok, err
		}
		tok.Type = TokenString
		tok.Literal = s
		return tok, nil

	case ch == '(':
		l.readChar()
		tok.Type = TokenPunct
		tok.Literal = "("
		return tok, nil

	case strings.ContainsRune(")[]{},|", ch):
		l.readChar()
		tok.Type = TokenPunct
		tok.Literal = string(ch)
		if ch == '[' && l.ch == ']' {
			l.readChar()
			tok.Type = TokenName
			tok.Literal = "[]"
		} else if ch == '{' && l.ch == '}' {
			l.readChar()
			tok.Type = TokenName
			tok.Literal = "{}"
		} else if ch == '|' && l.ch == '|' {
			l.readChar()
			tok.Type = TokenName
			tok.Literal = "||"
		}
		return tok, nil

	case ch == '!' || ch == ';':
		l.readChar()
		tok.Type = TokenName
		tok.Literal = string(ch)
		return tok, nil

	case ch == '.':
		next := l.peekChar()
		if next == 0 || unicode.IsSpace(next) || next == '%' {
			l.readChar()
			tok.Type = TokenEnd
			tok.Literal = "."
			return tok, nil
		}
		tok.Type = TokenName
		tok.Literal = l.symbol()
		return tok, nil

	case term.IsSymbolChar(ch):
		tok.Type = TokenName
		tok.Literal = l.symbol()
		return tok, nil
	}

	return tok, l.errorf(pos, "unexpected character %q", ch)
}

func (l *Lexer) identifier() string {
	start := l.pos
	for l.ch == '_' || unicode.IsLetter(l.ch) || unicode.IsDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) symbol() string {
	start := l.pos
	for term.IsSymbolChar(l.ch) && !l.atEOF() {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) quoted(q rune) (string, error) {
	start := l.position()
	l.readChar()
	var sb strings.Builder
	for {
		if l.atEOF() {
			return "", l.errorf(start, "unterminated quoted text")
		}
		ch := l.ch
		switch {
		case ch == q:
			l.readChar()
			if l.ch == q {
				sb.WriteRune(q)
				l.readChar()
				continue
			}
			return sb.String(), nil
		case ch == '\\':
			l.readChar()
			r, ok, err := l.escape()
			if err != nil {
				return "", err
			}
			if ok {
				sb.WriteRune(r)
			}
		default:
			sb.WriteRune(ch)
			l.readChar()
		}
	}
}

// escape decodes the character after a backslash. ok is false for the
// line continuation escape.
func (l *Lexer) escape() (rune, bool, error) {
	pos := l.position()
	ch := l.ch
	l.readChar()
	switch ch {
	case 'n':
		return '\n', true, nil
	case 't':
		return '\t', true, nil
	case 'r':
		return '\r', true, nil
	case 'a':
		return '\a', true, nil
	case 'b':
		return '\b', true, nil
	case 'f':
		return '\f', true, nil
	case 'v':
		return '\v', true, nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		digits := string(ch)
		for l.ch >= '0' && l.ch <= '7' {
			digits += string(l.ch)
			l.readChar()
		}
		if l.ch == '\\' {
			l.readChar()
		}
		n, err := strconv.ParseInt(digits, 8, 32)
		if err != nil {
			return 0, false, l.errorf(pos, "bad octal escape")
		}
		return rune(n), true, nil
	case 'x':
		var digits string
		for isHex(l.ch) {
			digits += string(l.ch)
			l.readChar()
		}
		if l.ch == '\\' {
			l.readChar()
		}
		n, err := strconv.ParseInt(digits, 16, 32)
		if err != nil {
			return 0, false, l.errorf(pos, "bad hex escape")
		}
		return rune(n), true, nil
	case '\n':
		return 0, false, nil
	case '\\', '\'', '"', '`':
		return ch, true, nil
	}
	return 0, false, l.errorf(pos, "undefined escape \\%c", ch)
}

func isHex(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func (l *Lexer) number(tok Token) (Token, error) {
	start := l.pos
	if l.ch == '0' {
		switch l.peekChar() {
		case '\'':
			l.readChar()
			l.readChar()
			r := l.ch
			if r == '\\' {
				l.readChar()
				esc, ok, err := l.escape()
				if err != nil {
					return tok, err
				}
				if !ok {
					return tok, l.errorf(tok.Pos, "bad character code")
				}
				r = esc
			} else {
				if r == '\'' && l.peekChar() == '\'' {
					l.readChar()
				}
				l.readChar()
			}
			tok.Type = TokenInt
			tok.Int = int64(r)
			tok.Literal = l.input[start:l.pos]
			return tok, nil
		case 'x', 'o', 'b':
			base := map[rune]int{'x': 16, 'o': 8, 'b': 2}[l.peekChar()]
			l.readChar()
			l.readChar()
			ds := l.pos
			for isHex(l.ch) {
				l.readChar()
			}
			return l.integer(tok, l.input[ds:l.pos], base, start)
		}
	}
	for unicode.IsDigit(l.ch) || l.ch == '_' && unicode.IsDigit(l.peekChar()) {
		l.readChar()
	}
	isFloat := false
	if l.ch == '.' && unicode.IsDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && isFloat {
		save := *l
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if unicode.IsDigit(l.ch) {
			for unicode.IsDigit(l.ch) {
				l.readChar()
			}
		} else {
			*l = save
		}
	}
	lit := strings.ReplaceAll(l.input[start:l.pos], "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return tok, l.errorf(tok.Pos, "bad float %q", lit)
		}
		tok.Type = TokenFloat
		tok.Float = f
		tok.Literal = lit
		return tok, nil
	}
	return l.integer(tok, lit, 10, start)
}

func (l *Lexer) integer(tok Token, digits string, base int, start int) (Token, error) {
	tok.Literal = l.input[start:l.pos]
	if n, err := strconv.ParseInt(digits, base, 64); err == nil {
		tok.Type = TokenInt
		tok.Int = n
		return tok, nil
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return tok, l.errorf(tok.Pos, "bad integer %q", tok.Literal)
	}
	tok.Type = TokenBigInt
	tok.Big = b
	return tok, nil
}
