package jack

import (
	"fmt"

	"n2t.dev/toolchain/pkg/vm"
)

// Compiler lowers a single Jack class's AST straight to VM operations,
// walking the tree once with no intermediate representation (spec.md §4.6).
// Reuse one Compiler across classes in a program; Compile resets the label
// counter and the symbol table's class scope at the start of every class, so
// labels are numbered `l1`, `l2`, … fresh per class (spec.md §4.6, §5).
type Compiler struct {
	class    Class
	scopes   *ScopeTable
	nLabel   uint
	out      vm.Module
	subCateg SubroutineCategory
}

// NewCompiler builds a Compiler ready to compile classes one at a time.
func NewCompiler() *Compiler {
	return &Compiler{scopes: NewScopeTable()}
}

// CompileProgram compiles every class into its own VM module, in the order
// given. Each class becomes one module, matching the per-class translation
// unit convention carried through the VM stage (spec.md §4.8).
func CompileProgram(classes []Class) (vm.Program, error) {
	compiler := NewCompiler()
	program := make(vm.Program, 0, len(classes))
	for _, class := range classes {
		module, err := compiler.Compile(class)
		if err != nil {
			return nil, err
		}
		program = append(program, module)
	}
	return program, nil
}

// Compile lowers one class to a VM module.
func (c *Compiler) Compile(class Class) (vm.Module, error) {
	c.class = class
	c.out = nil
	c.nLabel = 0
	c.scopes.StartClass(class.Name)

	for _, v := range class.VarDecs {
		c.scopes.Define(v.Name, v.Type, v.Kind)
	}

	for _, sub := range class.Subroutines {
		if err := c.compileSubroutine(sub); err != nil {
			return nil, err
		}
	}
	return c.out, nil
}

func (c *Compiler) emit(op vm.Operation) { c.out = append(c.out, op) }

// nextLabel returns the next per-class label number, 1-indexed (spec.md
// §4.6: "Labels are per-class, generated as l1, l2, …").
func (c *Compiler) nextLabel() uint {
	c.nLabel++
	return c.nLabel
}

// compileSubroutine emits the function declaration and the category-specific
// prologue (constructor: allocate and bind `this`; method: bind `this` to
// the implicit receiver argument; function: nothing extra) before compiling
// the body statements in order.
func (c *Compiler) compileSubroutine(sub SubroutineDec) error {
	c.scopes.StartSubroutine()
	c.subCateg = sub.Category

	if sub.Category == Method {
		c.scopes.ReserveArgumentSlot()
	}
	for _, p := range sub.Params {
		c.scopes.Define(p.Name, p.Type, KindArgVar)
	}
	for _, v := range sub.Body.Locals {
		c.scopes.Define(v.Name, v.Type, KindLocalVar)
	}

	c.emit(vm.FuncDecl{Name: c.class.Name + "." + sub.Name, NLocal: uint8(len(sub.Body.Locals))})

	switch sub.Category {
	case Constructor:
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(c.scopes.FieldCount())})
		c.emit(vm.FuncCallOp{Name: "Memory.alloc", NArgs: 1})
		c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0})
	case Method:
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Argument, Offset: 0})
		c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 0})
	}

	for _, stmt := range sub.Body.Statements {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStatement(stmt Statement) error {
	switch s := stmt.(type) {
	case LetStatement:
		return c.compileLet(s)
	case IfStatement:
		return c.compileIf(s)
	case WhileStatement:
		return c.compileWhile(s)
	case DoStatement:
		return c.compileDo(s)
	case ReturnStatement:
		return c.compileReturn(s)
	default:
		return compileErrorf("unknown statement type %T", stmt)
	}
}

// compileLet handles both `let x = ...` and `let x[i] = ...`. The array form
// pushes the array's base address, then the index, then adds them; it
// evaluates Value before touching the `that` pointer and stashes it in
// temp 0 first so that evaluating Value (which may itself reference another
// array through `that`) can never clobber the pending write (spec.md §4.6).
func (c *Compiler) compileLet(s LetStatement) error {
	sym, ok := c.scopes.Resolve(s.VarName)
	if !ok {
		return compileErrorf("undeclared variable %q", s.VarName)
	}
	if sym.Segment == SegField && c.subCateg == Function {
		return compileErrorf("field %q referenced inside a function, not a method or constructor", s.VarName)
	}

	if s.Index == nil {
		if err := c.compileExpression(s.Value); err != nil {
			return err
		}
		c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.SegmentType(sym.Segment), Offset: sym.Index})
		return nil
	}

	c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.SegmentType(sym.Segment), Offset: sym.Index})
	if err := c.compileExpression(*s.Index); err != nil {
		return err
	}
	c.emit(vm.ArithmeticOp{Operation: vm.Add})
	if err := c.compileExpression(s.Value); err != nil {
		return err
	}
	c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 0})
	c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1})
	c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Temp, Offset: 0})
	c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.That, Offset: 0})
	return nil
}

func (c *Compiler) compileIf(s IfStatement) error {
	labelFalse := fmt.Sprintf("l%d", c.nextLabel())

	if err := c.compileExpression(s.Cond); err != nil {
		return err
	}
	c.emit(vm.ArithmeticOp{Operation: vm.Not})
	c.emit(vm.GotoOp{Jump: vm.Conditional, Label: labelFalse})

	for _, stmt := range s.Then {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}

	if s.Else == nil {
		c.emit(vm.LabelDecl{Name: labelFalse})
		return nil
	}

	labelEnd := fmt.Sprintf("l%d", c.nextLabel())
	c.emit(vm.GotoOp{Jump: vm.Unconditional, Label: labelEnd})
	c.emit(vm.LabelDecl{Name: labelFalse})
	for _, stmt := range s.Else {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	c.emit(vm.LabelDecl{Name: labelEnd})
	return nil
}

func (c *Compiler) compileWhile(s WhileStatement) error {
	labelStart := fmt.Sprintf("l%d", c.nextLabel())
	labelEnd := fmt.Sprintf("l%d", c.nextLabel())

	c.emit(vm.LabelDecl{Name: labelStart})
	if err := c.compileExpression(s.Cond); err != nil {
		return err
	}
	c.emit(vm.ArithmeticOp{Operation: vm.Not})
	c.emit(vm.GotoOp{Jump: vm.Conditional, Label: labelEnd})

	for _, stmt := range s.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	c.emit(vm.GotoOp{Jump: vm.Unconditional, Label: labelStart})
	c.emit(vm.LabelDecl{Name: labelEnd})
	return nil
}

// compileDo discards whatever the call returns; every Jack subroutine
// returns a value (void subroutines push a dummy 0, spec.md §4.6) so the
// caller always has exactly one word to pop off the stack.
func (c *Compiler) compileDo(s DoStatement) error {
	if err := c.compileCall(s.Call); err != nil {
		return err
	}
	c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Temp, Offset: 0})
	return nil
}

func (c *Compiler) compileReturn(s ReturnStatement) error {
	if s.Value == nil {
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0})
	} else if err := c.compileExpression(*s.Value); err != nil {
		return err
	}
	c.emit(vm.ReturnOp{})
	return nil
}

// compileExpression evaluates strictly left to right with no operator
// precedence, matching Jack's grammar (spec.md §4.6).
func (c *Compiler) compileExpression(e Expression) error {
	if err := c.compileTerm(e.Head); err != nil {
		return err
	}
	for _, ot := range e.Rest {
		if err := c.compileTerm(ot.Term); err != nil {
			return err
		}
		if err := c.compileOperator(ot.Op); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileOperator(op Operator) error {
	switch op {
	case OpAdd:
		c.emit(vm.ArithmeticOp{Operation: vm.Add})
	case OpSub:
		c.emit(vm.ArithmeticOp{Operation: vm.Sub})
	case OpAnd:
		c.emit(vm.ArithmeticOp{Operation: vm.And})
	case OpOr:
		c.emit(vm.ArithmeticOp{Operation: vm.Or})
	case OpLt:
		c.emit(vm.ArithmeticOp{Operation: vm.Lt})
	case OpGt:
		c.emit(vm.ArithmeticOp{Operation: vm.Gt})
	case OpEq:
		c.emit(vm.ArithmeticOp{Operation: vm.Eq})
	case OpMul:
		c.emit(vm.FuncCallOp{Name: "Math.multiply", NArgs: 2})
	case OpDiv:
		c.emit(vm.FuncCallOp{Name: "Math.divide", NArgs: 2})
	default:
		return compileErrorf("unknown operator %q", op)
	}
	return nil
}

func (c *Compiler) compileTerm(t Term) error {
	switch term := t.(type) {
	case IntConstTerm:
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: term.Value})
		return nil
	case StringConstTerm:
		return c.compileStringConst(term.Value)
	case KeywordConstTerm:
		return c.compileKeywordConst(term.Keyword)
	case VarTerm:
		sym, ok := c.scopes.Resolve(term.Name)
		if !ok {
			return compileErrorf("undeclared variable %q", term.Name)
		}
		if sym.Segment == SegField && c.subCateg == Function {
			return compileErrorf("field %q referenced inside a function, not a method or constructor", term.Name)
		}
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.SegmentType(sym.Segment), Offset: sym.Index})
		return nil
	case ArrayTerm:
		sym, ok := c.scopes.Resolve(term.Name)
		if !ok {
			return compileErrorf("undeclared variable %q", term.Name)
		}
		if sym.Segment == SegField && c.subCateg == Function {
			return compileErrorf("field %q referenced inside a function, not a method or constructor", term.Name)
		}
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.SegmentType(sym.Segment), Offset: sym.Index})
		if err := c.compileExpression(*term.Index); err != nil {
			return err
		}
		c.emit(vm.ArithmeticOp{Operation: vm.Add})
		c.emit(vm.MemoryOp{Operation: vm.Pop, Segment: vm.Pointer, Offset: 1})
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.That, Offset: 0})
		return nil
	case ParenTerm:
		return c.compileExpression(*term.Inner)
	case UnaryTerm:
		if err := c.compileTerm(term.Operand); err != nil {
			return err
		}
		switch term.Op {
		case OpSub:
			c.emit(vm.ArithmeticOp{Operation: vm.Neg})
		case "~":
			c.emit(vm.ArithmeticOp{Operation: vm.Not})
		default:
			return compileErrorf("unknown unary operator %q", term.Op)
		}
		return nil
	case CallTerm:
		return c.compileCall(term.Call)
	default:
		return compileErrorf("unknown term type %T", t)
	}
}

// compileKeywordConst lowers the four Jack keyword constants. `true` is
// pushed as 1 then negated to -1 (all bits set), per spec.md §4.6 and the
// original's compiler.rs; `false`/`null` as 0.
func (c *Compiler) compileKeywordConst(kw string) error {
	switch kw {
	case "true":
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 1})
		c.emit(vm.ArithmeticOp{Operation: vm.Neg})
	case "false", "null":
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 0})
	case "this":
		if c.subCateg == Function {
			return compileErrorf("%q referenced inside a function, not a method or constructor", kw)
		}
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0})
	default:
		return compileErrorf("unknown keyword constant %q", kw)
	}
	return nil
}

// compileStringConst allocates a String object and appends one character at
// a time, the only construction primitive the OS library exposes. Characters
// outside ASCII 0-127 are replaced by 0 (spec.md §4.6), matching the
// original's char_to_ascii fallback.
func (c *Compiler) compileStringConst(s string) error {
	runes := []rune(s)
	c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: uint16(len(runes))})
	c.emit(vm.FuncCallOp{Name: "String.new", NArgs: 1})
	for _, ch := range runes {
		var ascii uint16
		if ch >= 0 && ch <= 127 {
			ascii = uint16(ch)
		}
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: ascii})
		c.emit(vm.FuncCallOp{Name: "String.appendChar", NArgs: 2})
	}
	return nil
}

// compileCall disambiguates the three call shapes spec.md §4.6 requires:
// an unqualified call dispatches as a method call on the current object; a
// qualified call whose receiver resolves to a known variable dispatches as
// a method call on that object (bound through its declared type); and a
// qualified call whose receiver does not resolve is a static function or
// constructor call, since Jack has no forward class declarations to check
// the receiver's existence against.
func (c *Compiler) compileCall(call SubroutineCall) error {
	var funcName string
	nArgs := len(call.Args)

	switch {
	case call.Receiver == "":
		c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.Pointer, Offset: 0})
		funcName = c.class.Name + "." + call.Name
		nArgs++
	default:
		if sym, ok := c.scopes.Resolve(call.Receiver); ok {
			c.emit(vm.MemoryOp{Operation: vm.Push, Segment: vm.SegmentType(sym.Segment), Offset: sym.Index})
			funcName = sym.Type + "." + call.Name
			nArgs++
		} else {
			funcName = call.Receiver + "." + call.Name
		}
	}

	for _, arg := range call.Args {
		if err := c.compileExpression(arg); err != nil {
			return err
		}
	}
	c.emit(vm.FuncCallOp{Name: funcName, NArgs: uint8(nArgs)})
	return nil
}
