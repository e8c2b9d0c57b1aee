package jack

import (
	"testing"

	"n2t.dev/toolchain/pkg/vm"
)

func mustCompile(t *testing.T, source string) vm.Module {
	t.Helper()
	tree, err := NewParser([]byte(source)).ParseClass()
	if err != nil {
		t.Fatalf("ParseClass failed: %v", err)
	}
	class, err := ToAST(tree)
	if err != nil {
		t.Fatalf("ToAST failed: %v", err)
	}
	module, err := NewCompiler().Compile(class)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return module
}

// TestCompileIfElseLabels checks that the compiler emits one uniquely
// numbered pair of labels per if/else statement and negates the condition
// before branching (spec.md §4.6).
func TestCompileIfElseLabels(t *testing.T) {
	module := mustCompile(t, `
class Main {
    function void main() {
        if (true) {
            do Main.main();
        } else {
            do Main.main();
        }
        return;
    }
}
`)

	var labels []vm.LabelDecl
	for _, op := range module {
		if l, ok := op.(vm.LabelDecl); ok {
			labels = append(labels, l)
		}
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels (the false-branch label and the end label), got %d: %+v", len(labels), labels)
	}
	if labels[0].Name != "l1" || labels[1].Name != "l2" {
		t.Errorf("expected sequential labels l1, l2 (spec.md §4.6, §8 scenario 3), got %q, %q", labels[0].Name, labels[1].Name)
	}

	arith, ok := module[3].(vm.ArithmeticOp)
	if !ok || arith.Operation != vm.Not {
		t.Errorf("expected the condition to be negated with `not` before branching, got %+v", module[3])
	}
}

// TestCompileWhileLabels checks the while-loop test/branch/loop-back shape.
func TestCompileWhileLabels(t *testing.T) {
	module := mustCompile(t, `
class Main {
    function void main() {
        while (true) {
            do Main.main();
        }
        return;
    }
}
`)

	var labels []vm.LabelDecl
	var gotos []vm.GotoOp
	for _, op := range module {
		switch o := op.(type) {
		case vm.LabelDecl:
			labels = append(labels, o)
		case vm.GotoOp:
			gotos = append(gotos, o)
		}
	}
	if len(gotos) != 2 {
		t.Fatalf("expected an if-goto out of the loop and a goto back to the test, got %d: %+v", len(gotos), gotos)
	}
	if len(labels) != 2 || labels[0].Name != "l1" || labels[1].Name != "l2" {
		t.Fatalf("expected sequential labels l1 (loop start), l2 (loop end), got %+v", labels)
	}
	if gotos[0].Jump != vm.Conditional || gotos[0].Label != "l2" {
		t.Errorf("expected `if-goto l2` exiting the loop, got %+v", gotos[0])
	}
	if gotos[1].Jump != vm.Unconditional || gotos[1].Label != "l1" {
		t.Errorf("expected `goto l1` looping back to the test, got %+v", gotos[1])
	}
}

// TestCompileArrayAssignmentOrdering checks that `let a[i] = expr` pushes the
// array's base address, then the index, then adds them, then evaluates the
// RHS and writes through temp 0 and pointer 1 so that an RHS which itself
// indexes `that` can't alias the LHS's target address (spec.md §4.6, §8
// scenario 2).
func TestCompileArrayAssignmentOrdering(t *testing.T) {
	module := mustCompile(t, `
class Main {
    function void main() {
        var Array a;
        let a[0] = 5;
        return;
    }
}
`)

	// Shape: [0] FuncDecl, [1] push local 0 (a), [2] push constant 0 (index),
	// [3] add, [4] push constant 5 (value), [5] pop temp 0, [6] pop pointer 1,
	// [7] push temp 0, [8] pop that 0, [9] push constant 0, [10] return.
	if len(module) != 11 {
		t.Fatalf("expected 11 operations, got %d: %+v", len(module), module)
	}

	mem := func(i int) vm.MemoryOp { return module[i].(vm.MemoryOp) }
	if mem(1).Operation != vm.Push || mem(1).Segment != vm.Local {
		t.Errorf("expected `push local 0` (array base) before the index, got %+v", mem(1))
	}
	if mem(2).Operation != vm.Push || mem(2).Segment != vm.Constant {
		t.Errorf("expected `push constant 0` (index) after the base, got %+v", mem(2))
	}
	if mem(5).Operation != vm.Pop || mem(5).Segment != vm.Temp {
		t.Errorf("expected `pop temp 0` before the pointer write, got %+v", mem(5))
	}
	if mem(6).Operation != vm.Pop || mem(6).Segment != vm.Pointer || mem(6).Offset != 1 {
		t.Errorf("expected `pop pointer 1`, got %+v", mem(6))
	}
	if mem(7).Operation != vm.Push || mem(7).Segment != vm.Temp {
		t.Errorf("expected `push temp 0` restoring the value before `pop that 0`, got %+v", mem(7))
	}
	if mem(8).Operation != vm.Pop || mem(8).Segment != vm.That {
		t.Errorf("expected `pop that 0` as the final write, got %+v", mem(8))
	}
}

// TestCompileArrayReadOrdering checks that reading `a[i]` also pushes the
// array's base address before the index, mirroring the assignment form
// (spec.md §4.6).
func TestCompileArrayReadOrdering(t *testing.T) {
	module := mustCompile(t, `
class Main {
    function int main() {
        var Array a;
        return a[0];
    }
}
`)

	// Shape: [0] FuncDecl, [1] push local 0 (a), [2] push constant 0 (index),
	// [3] add, [4] pop pointer 1, [5] push that 0, [6] return.
	mem := func(i int) vm.MemoryOp { return module[i].(vm.MemoryOp) }
	if mem(1).Operation != vm.Push || mem(1).Segment != vm.Local {
		t.Errorf("expected `push local 0` (array base) before the index, got %+v", mem(1))
	}
	if mem(2).Operation != vm.Push || mem(2).Segment != vm.Constant {
		t.Errorf("expected `push constant 0` (index) after the base, got %+v", mem(2))
	}
	if mem(4).Operation != vm.Pop || mem(4).Segment != vm.Pointer || mem(4).Offset != 1 {
		t.Errorf("expected `pop pointer 1`, got %+v", mem(4))
	}
	if mem(5).Operation != vm.Push || mem(5).Segment != vm.That {
		t.Errorf("expected `push that 0` as the read, got %+v", mem(5))
	}
}

// TestCompileStringConstAsciiFallback checks that string constants are
// pushed one character at a time via String.new/String.appendChar
// (spec.md §4.6), counting characters (not bytes) and substituting 0 for
// any character outside the 0-127 ASCII range the Jack OS can represent.
func TestCompileStringConstAsciiFallback(t *testing.T) {
	module := mustCompile(t, `
class Main {
    function void main() {
        do Output.printString("Hié");
        return;
    }
}
`)

	var pushes []vm.MemoryOp
	var calls []vm.FuncCallOp
	for _, op := range module {
		switch o := op.(type) {
		case vm.MemoryOp:
			pushes = append(pushes, o)
		case vm.FuncCallOp:
			calls = append(calls, o)
		}
	}

	if calls[0].Name != "String.new" || calls[0].NArgs != 1 {
		t.Fatalf("expected String.new 1 as the first call, got %+v", calls[0])
	}
	// pushes[0] is the length argument to String.new; it must count the 3
	// runes ('H', 'i', 'é'), not the 4 UTF-8 bytes "é" encodes to.
	if pushes[0].Offset != 3 {
		t.Errorf("expected the string length to be pushed as 3 (rune count), got %d", pushes[0].Offset)
	}

	appendCharCount := 0
	for _, c := range calls {
		if c.Name == "String.appendChar" {
			appendCharCount++
		}
	}
	if appendCharCount != 3 {
		t.Fatalf("expected 3 String.appendChar calls, got %d", appendCharCount)
	}

	// pushes[1..3] are the three appended character codes: 'H', 'i', then 0
	// as the out-of-range fallback for 'é'.
	wantCodes := []uint16{'H', 'i', 0}
	for i, want := range wantCodes {
		if got := pushes[i+1].Offset; got != want {
			t.Errorf("expected character %d to push code %d, got %d", i, want, got)
		}
	}
}

// TestCompileFieldInFunctionIsError checks that referencing a field (the
// `this` segment) or the `this` keyword inside a plain `function` is a
// semantic error, since no receiver is bound into pointer 0 there (spec.md
// §4.6).
func TestCompileFieldInFunctionIsError(t *testing.T) {
	cases := []struct {
		name   string
		source string
	}{
		{"field variable", `
class Main {
    field int x;
    function void main() {
        let x = 1;
        return;
    }
}
`},
		{"this keyword", `
class Main {
    field int x;
    function Main main() {
        return this;
    }
}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree, err := NewParser([]byte(tc.source)).ParseClass()
			if err != nil {
				t.Fatalf("ParseClass failed: %v", err)
			}
			class, err := ToAST(tree)
			if err != nil {
				t.Fatalf("ToAST failed: %v", err)
			}
			if _, err := NewCompiler().Compile(class); err == nil {
				t.Fatalf("expected a compile error referencing a field/this inside a function")
			}
		})
	}
}

// TestCompileCallDispatch checks the three call-dispatch forms: unqualified
// (self, implicit `this` push), qualified-to-a-variable (method call on that
// object, pushes the variable as the receiver) and qualified-to-an-unresolved
// name (treated as a class name, static/constructor call, no receiver push).
func TestCompileCallDispatch(t *testing.T) {
	module := mustCompile(t, `
class Main {
    function void main() {
        var Main m;
        do m.run();
        do Output.println();
        do helper();
        return;
    }

    method void run() {
        return;
    }

    function void helper() {
        return;
    }
}
`)

	var calls []vm.FuncCallOp
	for _, op := range module {
		if c, ok := op.(vm.FuncCallOp); ok {
			calls = append(calls, c)
		}
	}
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d: %+v", len(calls), calls)
	}
	if calls[0].Name != "Main.run" || calls[0].NArgs != 1 {
		t.Errorf("expected `m.run()` to dispatch as Main.run with 1 implicit arg, got %+v", calls[0])
	}
	if calls[1].Name != "Output.println" || calls[1].NArgs != 0 {
		t.Errorf("expected a static call to Output.println with no receiver, got %+v", calls[1])
	}
	if calls[2].Name != "Main.helper" || calls[2].NArgs != 1 {
		t.Errorf("expected `helper()` to dispatch as a self-method call (implicit `this`), got %+v", calls[2])
	}
}
