package jack

import (
	"fmt"

	"n2t.dev/toolchain/internal/srcstream"
)

// Error is the flat, position-tagged diagnostic used for lexical, syntactic
// and semantic failures throughout the Jack pipeline (spec.md §7). Every
// stage that hits one aborts its translation unit and returns it verbatim;
// callers do not attempt recovery.
type Error struct {
	Stage string // "lex", "parse" or "compile"
	Pos   srcstream.Position
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error at %d:%d: %s", e.Stage, e.Pos.Line, e.Pos.Column, e.Msg)
}

func lexError(tok Token) error {
	return &Error{Stage: "lex", Pos: tok.Pos, Msg: tok.Lexeme}
}

func parseErrorf(tok Token, format string, args ...any) error {
	return &Error{Stage: "parse", Pos: tok.Pos, Msg: fmt.Sprintf(format, args...) + fmt.Sprintf(" (found %s %q)", tok.Kind, tok.Lexeme)}
}

func compileErrorf(format string, args ...any) error {
	return &Error{Stage: "compile", Msg: fmt.Sprintf(format, args...)}
}
