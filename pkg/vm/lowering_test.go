package vm_test

import (
	"testing"

	"n2t.dev/toolchain/pkg/asm"
	"n2t.dev/toolchain/pkg/vm"
)

// countLabels returns how many asm.LabelDecl statements in prog carry name.
func countLabels(prog asm.Program, name string) int {
	n := 0
	for _, stmt := range prog {
		if l, ok := stmt.(asm.LabelDecl); ok && l.Name == name {
			n++
		}
	}
	return n
}

func TestLowererPushConstantAndAdd(t *testing.T) {
	program := vm.Program{
		vm.Module{
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 7},
			vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 8},
			vm.ArithmeticOp{Operation: vm.Add},
		},
	}

	out, err := vm.NewLowerer(program).Lower([]string{"Test"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	expected := asm.Program{
		asm.AInstruction{Location: "7"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "8"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "D"},

		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "AM", Comp: "M-1"}, asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "A", Comp: "M-1"}, asm.CInstruction{Dest: "M", Comp: "D+M"},

		// single-file programs get the terminating loop appended
		asm.LabelDecl{Name: "END_OF_PROGRAM"},
		asm.AInstruction{Location: "END_OF_PROGRAM"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}

	if len(out) != len(expected) {
		t.Fatalf("expected %d instructions, got %d: %+v", len(expected), len(out), out)
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("instruction %d: expected %+v, got %+v", i, expected[i], out[i])
		}
	}
}

func TestLowererBootstrapOmitsTerminatingLoop(t *testing.T) {
	program := vm.Program{vm.Module{vm.MemoryOp{Operation: vm.Push, Segment: vm.Constant, Offset: 1}}}

	lowerer := vm.NewLowerer(program)
	lowerer.Bootstrap = true
	out, err := lowerer.Lower([]string{"Main"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	prologue := []asm.Statement{
		asm.AInstruction{Location: "256"}, asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"}, asm.CInstruction{Dest: "M", Comp: "D"},
	}
	for i, want := range prologue {
		if out[i] != want {
			t.Fatalf("expected bootstrap instruction %d to be %+v, got %+v", i, want, out[i])
		}
	}
	if countLabels(out, "END_OF_PROGRAM") != 0 {
		t.Errorf("bootstrap mode must not append the single-file terminating loop")
	}
}

// TestLowererComparisonLabelsAreUnique checks that two `eq` ops in the same
// program never share a TRUE/END label pair (spec.md §4.8).
func TestLowererComparisonLabelsAreUnique(t *testing.T) {
	program := vm.Program{
		vm.Module{
			vm.ArithmeticOp{Operation: vm.Eq},
			vm.ArithmeticOp{Operation: vm.Eq},
		},
	}

	out, err := vm.NewLowerer(program).Lower([]string{"Main"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	if countLabels(out, "COMPARE_TRUE_0") != 1 || countLabels(out, "COMPARE_END_0") != 1 {
		t.Fatalf("expected exactly one COMPARE_TRUE_0/COMPARE_END_0 pair, got: %+v", out)
	}
	if countLabels(out, "COMPARE_TRUE_1") != 1 || countLabels(out, "COMPARE_END_1") != 1 {
		t.Fatalf("expected a second, distinct COMPARE_TRUE_1/COMPARE_END_1 pair, got: %+v", out)
	}
}

// TestLowererLabelOutsideFunctionUsesModulePrefix checks that a label
// declared before any `function` op is qualified with the module's static
// prefix (spec.md §4.8), not an empty string.
func TestLowererLabelOutsideFunctionUsesModulePrefix(t *testing.T) {
	program := vm.Program{
		vm.Module{vm.LabelDecl{Name: "loop"}},
	}

	out, err := vm.NewLowerer(program).Lower([]string{"Sort"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	if countLabels(out, "Sort$loop") != 1 {
		t.Fatalf("expected label qualified as Sort$loop, got: %+v", out)
	}
}

// TestLowererFunctionLabelsAreScoped checks that labels declared inside a
// function are qualified with that function's name, and that two functions
// may reuse the same bare label text without colliding.
func TestLowererFunctionLabelsAreScoped(t *testing.T) {
	program := vm.Program{
		vm.Module{
			vm.FuncDecl{Name: "Main.a", NLocal: 0},
			vm.LabelDecl{Name: "loop"},
			vm.FuncDecl{Name: "Main.b", NLocal: 0},
			vm.LabelDecl{Name: "loop"},
		},
	}

	out, err := vm.NewLowerer(program).Lower([]string{"Main"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	if countLabels(out, "Main.a$loop") != 1 {
		t.Errorf("expected Main.a$loop, got: %+v", out)
	}
	if countLabels(out, "Main.b$loop") != 1 {
		t.Errorf("expected Main.b$loop, got: %+v", out)
	}
}

// TestLowererFuncDeclZeroInitsLocals checks that `function f N` pushes N
// zero values onto the stack, one per declared local.
func TestLowererFuncDeclZeroInitsLocals(t *testing.T) {
	program := vm.Program{
		vm.Module{vm.FuncDecl{Name: "Main.f", NLocal: 2}},
	}

	out, err := vm.NewLowerer(program).Lower([]string{"Main"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	count := 0
	for _, stmt := range out {
		if inst, ok := stmt.(asm.AInstruction); ok && inst.Location == "0" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 zero-constant loads (one per local), got %d: %+v", count, out)
	}
}

// TestLowererCallSavesFrameAndRepositionsSegments checks the call sequence
// pushes the return address and all four saved segments, then repositions
// ARG and LCL before jumping (spec.md §4.8).
func TestLowererCallSavesFrameAndRepositionsSegments(t *testing.T) {
	program := vm.Program{
		vm.Module{vm.FuncCallOp{Name: "Math.multiply", NArgs: 2}},
	}

	out, err := vm.NewLowerer(program).Lower([]string{"Main"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	if countLabels(out, "Math.multiply$ret.0") != 1 {
		t.Fatalf("expected a unique return label Math.multiply$ret.0, got: %+v", out)
	}

	var savedRegs []string
	for _, stmt := range out {
		if inst, ok := stmt.(asm.AInstruction); ok {
			switch inst.Location {
			case "LCL", "ARG", "THIS", "THAT":
				savedRegs = append(savedRegs, inst.Location)
			}
		}
	}
	// LCL/ARG/THIS/THAT each appear at least once as the saved segment, plus
	// ARG and LCL appear again when being repositioned for the callee.
	want := map[string]int{"LCL": 2, "ARG": 2, "THIS": 1, "THAT": 1}
	got := map[string]int{}
	for _, r := range savedRegs {
		got[r]++
	}
	for reg, n := range want {
		if got[reg] != n {
			t.Errorf("expected %d references to %s, got %d (full: %v)", n, reg, got[reg], got)
		}
	}

	// out ends with: ..., @Math.multiply, 0;JMP, (label), then the
	// single-file terminating loop (3 more instructions) since this test
	// never sets Bootstrap.
	jumpTarget := out[len(out)-6]
	if inst, ok := jumpTarget.(asm.AInstruction); !ok || inst.Location != "Math.multiply" {
		t.Errorf("expected the call to jump to Math.multiply, got %+v", jumpTarget)
	}
}

// TestLowererReturnRestoresSegmentsAndJumps checks the return sequence uses
// R13/R14 as FRAME/RET scratch registers and restores THAT/THIS/ARG/LCL in
// that order before jumping back (spec.md §4.8).
func TestLowererReturnRestoresSegmentsAndJumps(t *testing.T) {
	program := vm.Program{vm.Module{vm.ReturnOp{}}}

	out, err := vm.NewLowerer(program).Lower([]string{"Main"})
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	var restoreOrder []string
	for _, stmt := range out {
		if inst, ok := stmt.(asm.CInstruction); ok && inst.Dest == "M" && inst.Comp == "D" {
			continue
		}
		if inst, ok := stmt.(asm.AInstruction); ok {
			switch inst.Location {
			case "THAT", "THIS", "ARG", "LCL":
				restoreOrder = append(restoreOrder, inst.Location)
			}
		}
	}
	// ARG appears three times (*ARG = pop(), SP = ARG + 1, and the restore at
	// the end) and LCL twice; the last four references are the restore order.
	if len(restoreOrder) < 4 {
		t.Fatalf("expected at least 4 segment references, got %+v", restoreOrder)
	}
	tail := restoreOrder[len(restoreOrder)-4:]
	wantTail := []string{"THAT", "THIS", "ARG", "LCL"}
	for i := range wantTail {
		if tail[i] != wantTail[i] {
			t.Errorf("expected restore order %v, got %v", wantTail, tail)
		}
	}

	// out ends with the return's own `0;JMP`, then the single-file
	// terminating loop (3 more instructions) since Bootstrap is unset here.
	returnJump := out[len(out)-4]
	if inst, ok := returnJump.(asm.CInstruction); !ok || inst.Jump != "JMP" {
		t.Errorf("expected the return sequence to end in an unconditional jump, got %+v", returnJump)
	}
}

// TestLowererModuleCountMismatch checks that a moduleNames slice of the
// wrong length is rejected rather than silently truncated/panicking.
func TestLowererModuleCountMismatch(t *testing.T) {
	program := vm.Program{vm.Module{}, vm.Module{}}
	if _, err := vm.NewLowerer(program).Lower([]string{"OnlyOne"}); err == nil {
		t.Fatalf("expected an error when module count doesn't match moduleNames count")
	}
}
