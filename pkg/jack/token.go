package jack

import (
	"fmt"
	"strconv"
	"strings"

	"n2t.dev/toolchain/internal/srcstream"
)

// Kind tags the lexical category of a Token, mirroring spec.md §3's tagged
// Token variant (keyword, symbol, literal, identifier or error).
type Kind uint8

const (
	KindKeyword Kind = iota
	KindSymbol
	KindIntConst
	KindStringConst
	KindIdentifier
	KindError
	KindEOF
)

func (k Kind) String() string {
	switch k {
	case KindKeyword:
		return "keyword"
	case KindSymbol:
		return "symbol"
	case KindIntConst:
		return "integerConstant"
	case KindStringConst:
		return "stringConstant"
	case KindIdentifier:
		return "identifier"
	case KindError:
		return "error"
	case KindEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Token is a single lexed unit: its kind, the raw lexeme and its source
// position. Diagnostics carry the message in Lexeme when Kind == KindError.
type Token struct {
	Kind   Kind
	Lexeme string
	Pos    srcstream.Position
}

func (t Token) String() string { return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Lexeme, t.Pos.Line, t.Pos.Column) }

// IntValue parses an integer-constant token's value. Only valid when
// Kind == KindIntConst.
func (t Token) IntValue() (uint16, error) {
	n, err := strconv.ParseUint(t.Lexeme, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed integer literal %q: %w", t.Lexeme, err)
	}
	if n > 32767 {
		return 0, fmt.Errorf("integer literal %d out of range (max 32767)", n)
	}
	return uint16(n), nil
}

// StringValue returns a string-constant token's value with the surrounding
// quotes stripped. Only valid when Kind == KindStringConst.
func (t Token) StringValue() string { return t.Lexeme }

var keywords = map[string]bool{
	"class": true, "constructor": true, "function": true, "method": true,
	"field": true, "static": true, "var": true, "int": true, "char": true,
	"boolean": true, "void": true, "true": true, "false": true, "null": true,
	"this": true, "let": true, "do": true, "if": true, "else": true,
	"while": true, "return": true,
}

const symbolChars = "{}()[].,;+-*/&|<>=~"

// Lexer tokenizes Jack source text one token at a time, driven by the shared
// srcstream.Stream character source (spec.md §4.1/§4.2).
type Lexer struct {
	s *srcstream.Stream
}

// NewLexer builds a Lexer over raw Jack source bytes.
func NewLexer(source []byte) *Lexer { return &Lexer{s: srcstream.New(source)} }

// Next scans and returns the next token, skipping whitespace and comments.
// At end of input it returns a KindEOF token forever after.
func (l *Lexer) Next() Token {
	l.skipWhitespaceAndComments()

	pos := l.s.Pos()
	r, ok := l.s.Peek()
	if !ok {
		return Token{Kind: KindEOF, Pos: pos}
	}

	switch {
	case r == '"':
		return l.scanString(pos)
	case isDigit(r):
		return l.scanInt(pos)
	case isIdentStart(r):
		return l.scanIdentOrKeyword(pos)
	case strings.ContainsRune(symbolChars, r):
		l.s.Advance()
		return Token{Kind: KindSymbol, Lexeme: string(r), Pos: pos}
	default:
		l.s.Advance()
		return Token{Kind: KindError, Lexeme: fmt.Sprintf("unexpected character %q", r), Pos: pos}
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		r, ok := l.s.Peek()
		if !ok {
			return
		}
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.s.Advance()
		case r == '/' && l.peekIs(1, '/'):
			l.s.Advance()
			l.s.Advance()
			for {
				c, ok := l.s.Peek()
				if !ok || c == '\n' {
					break
				}
				l.s.Advance()
			}
		case r == '/' && l.peekIs(1, '*'):
			l.s.Advance()
			l.s.Advance()
			for {
				c, ok := l.s.Peek()
				if !ok {
					return // unterminated block comment: treat EOF as its terminator
				}
				if c == '*' && l.peekIs(1, '/') {
					l.s.Advance()
					l.s.Advance()
					break
				}
				l.s.Advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) peekIs(n int, want rune) bool {
	r, ok := l.s.PeekNth(n)
	return ok && r == want
}

func (l *Lexer) scanString(pos srcstream.Position) Token {
	l.s.Advance() // opening quote
	var sb strings.Builder
	for {
		r, ok := l.s.Peek()
		if !ok {
			return Token{Kind: KindError, Lexeme: "unterminated string constant", Pos: pos}
		}
		if r == '"' {
			l.s.Advance()
			return Token{Kind: KindStringConst, Lexeme: sb.String(), Pos: pos}
		}
		if r == '\n' {
			return Token{Kind: KindError, Lexeme: "unterminated string constant", Pos: pos}
		}
		l.s.Advance()
		sb.WriteRune(r)
	}
}

func (l *Lexer) scanInt(pos srcstream.Position) Token {
	var sb strings.Builder
	for {
		r, ok := l.s.Peek()
		if !ok || !isDigit(r) {
			break
		}
		l.s.Advance()
		sb.WriteRune(r)
	}
	lexeme := sb.String()
	if n, err := strconv.ParseUint(lexeme, 10, 32); err != nil || n > 32767 {
		return Token{Kind: KindError, Lexeme: "integer constant out of range: " + lexeme, Pos: pos}
	}
	return Token{Kind: KindIntConst, Lexeme: lexeme, Pos: pos}
}

func (l *Lexer) scanIdentOrKeyword(pos srcstream.Position) Token {
	var sb strings.Builder
	for {
		r, ok := l.s.Peek()
		if !ok || !isIdentPart(r) {
			break
		}
		l.s.Advance()
		sb.WriteRune(r)
	}
	lexeme := sb.String()
	if keywords[lexeme] {
		return Token{Kind: KindKeyword, Lexeme: lexeme, Pos: pos}
	}
	return Token{Kind: KindIdentifier, Lexeme: lexeme, Pos: pos}
}

func isDigit(r rune) bool      { return r >= '0' && r <= '9' }
func isIdentStart(r rune) bool { return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isIdentPart(r rune) bool  { return isIdentStart(r) || isDigit(r) }
