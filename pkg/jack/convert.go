package jack

import "strings"

// ToAST converts a concrete parse tree produced by Parser into the typed
// Class AST, discarding punctuation tokens and flattening comma lists
// (spec.md §4.4). It assumes the tree was produced by this package's own
// Parser and panics on shapes that parser could never emit; malformed input
// is rejected earlier, during parsing.
func ToAST(tree ParseNode) (Class, error) {
	if tree.Name != "class" {
		return Class{}, compileErrorf("expected a class node, got %q", tree.Name)
	}
	c := Class{Name: tree.Children[1].Token.Lexeme}

	for _, child := range tree.Children {
		switch child.Name {
		case "classVarDec":
			decs, err := convertClassVarDec(child)
			if err != nil {
				return Class{}, err
			}
			c.VarDecs = append(c.VarDecs, decs...)
		case "subroutineDec":
			dec, err := convertSubroutineDec(child)
			if err != nil {
				return Class{}, err
			}
			c.Subroutines = append(c.Subroutines, dec)
		}
	}
	return c, nil
}

func convertClassVarDec(n ParseNode) ([]ClassVarDec, error) {
	kind := KindStaticVar
	if n.Children[0].Token.Lexeme == "field" {
		kind = KindFieldVar
	}
	typ := n.Children[1].Token.Lexeme

	var out []ClassVarDec
	for _, child := range n.Children[2:] {
		if child.Token.Kind == KindIdentifier {
			out = append(out, ClassVarDec{Kind: kind, Type: typ, Name: child.Token.Lexeme, Pos: child.Token.Pos})
		}
	}
	return out, nil
}

func convertSubroutineDec(n ParseNode) (SubroutineDec, error) {
	category := categoryFromLexeme(n.Children[0].Token.Lexeme)
	retType := n.Children[1].Token.Lexeme
	name := n.Children[2].Token.Lexeme
	pos := n.Children[0].Token.Pos

	var paramsNode, bodyNode ParseNode
	for _, child := range n.Children {
		switch child.Name {
		case "parameterList":
			paramsNode = child
		case "subroutineBody":
			bodyNode = child
		}
	}

	params := convertParameterList(paramsNode)
	body, err := convertSubroutineBody(bodyNode)
	if err != nil {
		return SubroutineDec{}, err
	}

	return SubroutineDec{
		Category:   category,
		ReturnType: retType,
		Name:       name,
		Params:     params,
		Body:       body,
		Pos:        pos,
	}, nil
}

func categoryFromLexeme(s string) SubroutineCategory {
	switch s {
	case "constructor":
		return Constructor
	case "method":
		return Method
	default:
		return Function
	}
}

func convertParameterList(n ParseNode) []Param {
	// Children are (type, name) pairs separated by comma terminals.
	var out []Param
	for _, child := range n.Children {
		if child.IsTerminal() && child.Token.Lexeme == "," {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Name == "" {
			last := &out[len(out)-1]
			last.Name = child.Token.Lexeme
			continue
		}
		out = append(out, Param{Type: child.Token.Lexeme})
	}
	return out
}

func convertSubroutineBody(n ParseNode) (SubroutineBody, error) {
	var body SubroutineBody
	for _, child := range n.Children {
		switch child.Name {
		case "varDec":
			body.Locals = append(body.Locals, convertVarDec(child)...)
		case "statements":
			stmts, err := convertStatements(child)
			if err != nil {
				return SubroutineBody{}, err
			}
			body.Statements = stmts
		}
	}
	return body, nil
}

func convertVarDec(n ParseNode) []VarDec {
	typ := n.Children[1].Token.Lexeme
	var out []VarDec
	for _, child := range n.Children[2:] {
		if child.Token.Kind == KindIdentifier {
			out = append(out, VarDec{Type: typ, Name: child.Token.Lexeme})
		}
	}
	return out
}

func convertStatements(n ParseNode) ([]Statement, error) {
	var out []Statement
	for _, child := range n.Children {
		stmt, err := convertStatement(child)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

func convertStatement(n ParseNode) (Statement, error) {
	switch n.Name {
	case "letStatement":
		return convertLetStatement(n)
	case "ifStatement":
		return convertIfStatement(n)
	case "whileStatement":
		return convertWhileStatement(n)
	case "doStatement":
		return convertDoStatement(n)
	case "returnStatement":
		return convertReturnStatement(n)
	default:
		return nil, compileErrorf("unknown statement node %q", n.Name)
	}
}

func convertLetStatement(n ParseNode) (Statement, error) {
	varName := n.Children[1].Token.Lexeme
	pos := n.Children[0].Token.Pos

	// Layout is either: let name = expr ; or let name [ expr ] = expr ;
	if n.Children[2].IsTerminal() && n.Children[2].Token.Lexeme == "[" {
		index, err := convertExpression(n.Children[3])
		if err != nil {
			return nil, err
		}
		value, err := convertExpression(n.Children[6])
		if err != nil {
			return nil, err
		}
		return LetStatement{VarName: varName, Index: &index, Value: value, Pos: pos}, nil
	}

	value, err := convertExpression(n.Children[3])
	if err != nil {
		return nil, err
	}
	return LetStatement{VarName: varName, Value: value, Pos: pos}, nil
}

func convertIfStatement(n ParseNode) (Statement, error) {
	cond, err := convertExpression(n.Children[2])
	if err != nil {
		return nil, err
	}
	then, err := convertStatements(n.Children[5])
	if err != nil {
		return nil, err
	}

	stmt := IfStatement{Cond: cond, Then: then}
	if len(n.Children) > 7 {
		elseStmts, err := convertStatements(n.Children[9])
		if err != nil {
			return nil, err
		}
		stmt.Else = elseStmts
	}
	return stmt, nil
}

func convertWhileStatement(n ParseNode) (Statement, error) {
	cond, err := convertExpression(n.Children[2])
	if err != nil {
		return nil, err
	}
	body, err := convertStatements(n.Children[5])
	if err != nil {
		return nil, err
	}
	return WhileStatement{Cond: cond, Body: body}, nil
}

func convertDoStatement(n ParseNode) (Statement, error) {
	call, err := convertSubroutineCall(n.Children[1])
	if err != nil {
		return nil, err
	}
	return DoStatement{Call: call}, nil
}

func convertReturnStatement(n ParseNode) (Statement, error) {
	if len(n.Children) == 2 { // return ;
		return ReturnStatement{}, nil
	}
	value, err := convertExpression(n.Children[1])
	if err != nil {
		return nil, err
	}
	return ReturnStatement{Value: &value}, nil
}

func convertExpression(n ParseNode) (Expression, error) {
	head, err := convertTerm(n.Children[0])
	if err != nil {
		return Expression{}, err
	}
	expr := Expression{Head: head}

	for i := 1; i+1 < len(n.Children); i += 2 {
		op := Operator(n.Children[i].Token.Lexeme)
		term, err := convertTerm(n.Children[i+1])
		if err != nil {
			return Expression{}, err
		}
		expr.Rest = append(expr.Rest, OpTerm{Op: op, Term: term})
	}
	return expr, nil
}

func convertTerm(n ParseNode) (Term, error) {
	first := n.Children[0]

	switch {
	case first.IsTerminal() && first.Token.Kind == KindIntConst:
		v, err := first.Token.IntValue()
		if err != nil {
			return nil, err
		}
		return IntConstTerm{Value: v}, nil

	case first.IsTerminal() && first.Token.Kind == KindStringConst:
		return StringConstTerm{Value: first.Token.StringValue()}, nil

	case first.IsTerminal() && isKeywordConst(first.Token.Lexeme):
		return KeywordConstTerm{Keyword: first.Token.Lexeme}, nil

	case first.IsTerminal() && first.Token.Lexeme == "(":
		inner, err := convertExpression(n.Children[1])
		if err != nil {
			return nil, err
		}
		return ParenTerm{Inner: &inner}, nil

	case first.IsTerminal() && (first.Token.Lexeme == "-" || first.Token.Lexeme == "~"):
		operand, err := convertTerm(n.Children[1])
		if err != nil {
			return nil, err
		}
		return UnaryTerm{Op: Operator(first.Token.Lexeme), Operand: operand}, nil

	case first.Name == "subroutineCall":
		call, err := convertSubroutineCall(first)
		if err != nil {
			return nil, err
		}
		return CallTerm{Call: call}, nil

	case first.IsTerminal() && first.Token.Kind == KindIdentifier:
		if len(n.Children) == 1 {
			return VarTerm{Name: first.Token.Lexeme}, nil
		}
		// identifier [ expression ]
		index, err := convertExpression(n.Children[2])
		if err != nil {
			return nil, err
		}
		return ArrayTerm{Name: first.Token.Lexeme, Index: &index}, nil

	default:
		return nil, compileErrorf("unrecognized term shape starting with %q", first.Token.Lexeme)
	}
}

func isKeywordConst(s string) bool {
	switch s {
	case "true", "false", "null", "this":
		return true
	default:
		return false
	}
}

func convertSubroutineCall(n ParseNode) (SubroutineCall, error) {
	first := n.Children[0].Token
	call := SubroutineCall{Name: first.Lexeme, Pos: first.Pos}

	idx := 1
	if n.Children[1].IsTerminal() && n.Children[1].Token.Lexeme == "." {
		call.Receiver = first.Lexeme
		call.Name = n.Children[2].Token.Lexeme
		idx = 3
	}

	// n.Children[idx] is "(", n.Children[idx+1] is expressionList, n.Children[idx+2] is ")"
	argsNode := n.Children[idx+1]
	for _, child := range argsNode.Children {
		if child.IsTerminal() {
			continue // comma
		}
		expr, err := convertExpression(child)
		if err != nil {
			return SubroutineCall{}, err
		}
		call.Args = append(call.Args, expr)
	}
	return call, nil
}

// FullName renders a qualified name as Class.method for diagnostics.
func (c SubroutineCall) FullName() string {
	if c.Receiver == "" {
		return c.Name
	}
	return strings.Join([]string{c.Receiver, c.Name}, ".")
}
