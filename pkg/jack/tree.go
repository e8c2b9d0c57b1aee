package jack

// ParseNode is the concrete parse tree produced by the recursive-descent
// parser (spec.md §3 "Parse-tree node"). It is a tagged variant: either a
// Terminal wrapping one lexed Token, or a NonTerminal carrying the grammar
// rule name and its children in source order. Parse-tree nodes are built
// once by the parser and never mutated afterwards.
type ParseNode struct {
	Name     string      // grammar rule label (e.g. "class", "expression", "term"); empty for terminals
	Token    Token       // populated only when this node is a Terminal
	Children []ParseNode // populated only when this node is a NonTerminal
}

// IsTerminal reports whether this node wraps a single lexed Token. Keyed off
// Name rather than Children == nil: a childless non-terminal (an empty
// parameterList, spec.md §8) still has Children == nil but must not be
// mistaken for a terminal.
func (n ParseNode) IsTerminal() bool { return n.Name == "" }

func terminal(t Token) ParseNode { return ParseNode{Token: t} }

func nonTerminal(name string, children ...ParseNode) ParseNode {
	return ParseNode{Name: name, Children: children}
}
