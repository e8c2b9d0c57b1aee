// Package srcstream provides the restartable, n-peekable character source
// read by the Jack lexer; the VM parser does not use it. It is deliberately independent of any
// particular grammar: it only knows about runes, lines and columns.
package srcstream

import "unicode/utf8"

// Position identifies a single character's location in the original source.
type Position struct {
	Line   int // 1-based
	Column int // 1-based
}

// Stream is a buffered, lazily-filled lookahead window over UTF-8 source bytes.
// It is the character-level substrate described by the spec: advance()
// consumes one rune, peek()/peekN() look ahead without consuming.
type Stream struct {
	src    []byte
	offset int // byte offset of the next unread rune

	line, column int
}

// New wraps the given source bytes (assumed UTF-8 text) in a Stream
// positioned at line 1, column 1.
func New(source []byte) *Stream {
	return &Stream{src: source, line: 1, column: 1}
}

// NewFromString is a convenience constructor for in-memory/test sources.
func NewFromString(source string) *Stream {
	return New([]byte(source))
}

// AtEOF reports whether the stream is exhausted.
func (s *Stream) AtEOF() bool { return s.offset >= len(s.src) }

// Pos returns the position of the next unread character.
func (s *Stream) Pos() Position { return Position{Line: s.line, Column: s.column} }

// Peek returns the next rune without consuming it. ok is false at EOF.
func (s *Stream) Peek() (r rune, ok bool) { return s.PeekNth(0) }

// PeekNth returns the rune n characters ahead (0 is the next unread rune)
// without consuming anything. ok is false if the stream does not have that
// many characters left.
func (s *Stream) PeekNth(n int) (r rune, ok bool) {
	offset := s.offset
	for i := 0; i < n; i++ {
		if offset >= len(s.src) {
			return 0, false
		}
		_, size := utf8.DecodeRune(s.src[offset:])
		offset += size
	}
	if offset >= len(s.src) {
		return 0, false
	}
	decoded, _ := utf8.DecodeRune(s.src[offset:])
	return decoded, true
}

// PeekN returns up to n runes of lookahead, stopping early at EOF.
func (s *Stream) PeekN(n int) []rune {
	out := make([]rune, 0, n)
	for i := 0; i < n; i++ {
		r, ok := s.PeekNth(i)
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

// Advance consumes and returns the next rune, updating line/column tracking.
// ok is false once the stream is exhausted.
func (s *Stream) Advance() (r rune, ok bool) {
	if s.AtEOF() {
		return 0, false
	}
	decoded, size := utf8.DecodeRune(s.src[s.offset:])
	s.offset += size

	if decoded == '\n' {
		s.line++
		s.column = 1
	} else {
		s.column++
	}
	return decoded, true
}
