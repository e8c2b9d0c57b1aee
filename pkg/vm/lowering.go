package vm

import (
	"fmt"

	"n2t.dev/toolchain/pkg/asm"
)

// segmentBase names the pointer register holding a segment's base address,
// for the four segments addressed as base+offset (spec.md §4.8).
var segmentBase = map[SegmentType]string{
	Local:    "LCL",
	Argument: "ARG",
	This:     "THIS",
	That:     "THAT",
}

// arithCompute gives the Comp bit-codes for each binary arithmetic/bitwise
// op, computed as (first-pushed) <op> (second-pushed) since M holds the
// earlier value and D holds the later one once both operands are popped.
var arithCompute = map[ArithOpType]string{
	Add: "D+M",
	Sub: "M-D",
	And: "D&M",
	Or:  "D|M",
}

// jumpForCompare gives the Hack jump mnemonic used by eq/gt/lt's unique
// comparison codegen.
var jumpForCompare = map[ArithOpType]string{
	Eq: "JEQ",
	Gt: "JGT",
	Lt: "JLT",
}

// Lowerer translates a whole vm.Program into the asm.Program that implements
// the Hack calling convention described in spec.md §4.8: every push/pop,
// arithmetic op, branch and function call/return is expanded into its exact
// sequence of A/C instructions.
type Lowerer struct {
	program         Program
	moduleName      string // name of the module currently being lowered, used to prefix static variables
	currentFunction string // name of the function currently being lowered, used to prefix its labels
	nUnique         uint   // counter disambiguating comparison and call-site labels across the whole program

	// Bootstrap controls whether the translator emits the SP=256/call
	// Sys.init prologue (multi-file programs) or a trailing infinite loop
	// (single-file programs run directly against a supplied PC), per
	// spec.md §4.8's two program-termination conventions.
	Bootstrap bool
}

// NewLowerer builds a Lowerer over a whole VM program (one Module per
// originating .vm file/class).
func NewLowerer(p Program) *Lowerer { return &Lowerer{program: p} }

// Lower translates the whole program, module by module, optionally preceded
// by the bootstrap sequence.
func (l *Lowerer) Lower(moduleNames []string) (asm.Program, error) {
	if len(l.program) != len(moduleNames) {
		return nil, fmt.Errorf("got %d modules but %d module names", len(l.program), len(moduleNames))
	}

	var out asm.Program
	if l.Bootstrap {
		out = append(out, l.bootstrapPrologue()...)
	}

	for i, module := range l.program {
		l.moduleName = moduleNames[i]
		l.currentFunction = moduleNames[i]
		for _, op := range module {
			instrs, err := l.lowerOperation(op)
			if err != nil {
				return nil, fmt.Errorf("module %q: %w", l.moduleName, err)
			}
			out = append(out, instrs...)
		}
	}

	if !l.Bootstrap {
		out = append(out, l.terminatingLoop()...)
	}
	return out, nil
}

// bootstrapPrologue implements the standard multi-file program entry point:
// set SP to 256 and unconditionally call Sys.init.
func (l *Lowerer) bootstrapPrologue() asm.Program {
	prologue := asm.Program{
		asm.AInstruction{Location: "256"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
	return append(prologue, l.lowerFuncCallOp(FuncCallOp{Name: "Sys.init", NArgs: 0})...)
}

// terminatingLoop is appended to single-file translations that never call
// Sys.init, so the program halts cleanly instead of falling off the end of
// ROM into undefined instructions.
func (l *Lowerer) terminatingLoop() asm.Program {
	return asm.Program{
		asm.LabelDecl{Name: "END_OF_PROGRAM"},
		asm.AInstruction{Location: "END_OF_PROGRAM"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}
}

func (l *Lowerer) lowerOperation(op Operation) (asm.Program, error) {
	switch tOp := op.(type) {
	case MemoryOp:
		return l.lowerMemoryOp(tOp)
	case ArithmeticOp:
		return l.lowerArithmeticOp(tOp)
	case LabelDecl:
		return l.lowerLabelDecl(tOp), nil
	case GotoOp:
		return l.lowerGotoOp(tOp), nil
	case FuncDecl:
		return l.lowerFuncDecl(tOp), nil
	case FuncCallOp:
		return l.lowerFuncCallOp(tOp), nil
	case ReturnOp:
		return l.lowerReturnOp(), nil
	default:
		return nil, fmt.Errorf("unrecognized vm operation %T", op)
	}
}

// pushD appends the instructions that push the D register's current value
// onto the stack and advance SP. Nearly every push form funnels through it.
func pushD() asm.Program {
	return asm.Program{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

// popToD appends the instructions that decrement SP and load the popped
// value into D. Nearly every pop form starts with it.
func popToD() asm.Program {
	return asm.Program{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "AM", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

func (l *Lowerer) lowerMemoryOp(op MemoryOp) (asm.Program, error) {
	switch op.Segment {
	case Constant:
		if op.Operation != Push {
			return nil, fmt.Errorf("cannot pop into the constant segment")
		}
		return append(asm.Program{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, pushD()...), nil

	case Local, Argument, This, That:
		base := segmentBase[op.Segment]
		if op.Operation == Push {
			return append(asm.Program{
				asm.AInstruction{Location: fmt.Sprint(op.Offset)},
				asm.CInstruction{Dest: "D", Comp: "A"},
				asm.AInstruction{Location: base},
				asm.CInstruction{Dest: "A", Comp: "D+M"},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		// Pop: stash the target address in R13 before popping, since
		// popToD clobbers A before we'd otherwise get a chance to add it.
		addrOps := asm.Program{
			asm.AInstruction{Location: fmt.Sprint(op.Offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "D+M"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}
		return append(append(addrOps, popToD()...),
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Static:
		label := fmt.Sprintf("%s.%d", l.moduleName, op.Offset)
		if op.Operation == Push {
			return append(asm.Program{
				asm.AInstruction{Location: label},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		return append(popToD(),
			asm.AInstruction{Location: label},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Temp:
		if op.Offset > 7 {
			return nil, fmt.Errorf("temp offset %d out of range", op.Offset)
		}
		address := fmt.Sprint(5 + op.Offset)
		if op.Operation == Push {
			return append(asm.Program{
				asm.AInstruction{Location: address},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		return append(popToD(),
			asm.AInstruction{Location: address},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	case Pointer:
		if op.Offset > 1 {
			return nil, fmt.Errorf("pointer offset %d out of range", op.Offset)
		}
		target := "THIS"
		if op.Offset == 1 {
			target = "THAT"
		}
		if op.Operation == Push {
			return append(asm.Program{
				asm.AInstruction{Location: target},
				asm.CInstruction{Dest: "D", Comp: "M"},
			}, pushD()...), nil
		}
		return append(popToD(),
			asm.AInstruction{Location: target},
			asm.CInstruction{Dest: "M", Comp: "D"},
		), nil

	default:
		return nil, fmt.Errorf("unrecognized segment %q", op.Segment)
	}
}

func (l *Lowerer) lowerArithmeticOp(op ArithmeticOp) (asm.Program, error) {
	switch op.Operation {
	case Neg, Not:
		comp := "-M"
		if op.Operation == Not {
			comp = "!M"
		}
		return asm.Program{
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: comp},
		}, nil

	case Add, Sub, And, Or:
		return append(popToD(),
			asm.AInstruction{Location: "SP"},
			asm.CInstruction{Dest: "A", Comp: "M-1"},
			asm.CInstruction{Dest: "M", Comp: arithCompute[op.Operation]},
		), nil

	case Eq, Gt, Lt:
		return l.lowerComparison(op.Operation), nil

	default:
		return nil, fmt.Errorf("unrecognized arithmetic op %q", op.Operation)
	}
}

// lowerComparison expands eq/gt/lt into a unique-labeled branch: subtract,
// jump to a TRUE label on the matching Hack condition, otherwise fall
// through pushing false, with both paths converging at an END label
// (spec.md §4.8). The labels are program-unique via nUnique, never reused
// even across calls to the same comparison op.
func (l *Lowerer) lowerComparison(op ArithOpType) asm.Program {
	id := l.nUnique
	l.nUnique++
	trueLabel := fmt.Sprintf("COMPARE_TRUE_%d", id)
	endLabel := fmt.Sprintf("COMPARE_END_%d", id)

	out := popToD()
	out = append(out,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.AInstruction{Location: trueLabel},
		asm.CInstruction{Comp: "D", Jump: jumpForCompare[op]},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"},
		asm.AInstruction{Location: endLabel},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: trueLabel},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.LabelDecl{Name: endLabel},
	)
	return out
}

// qualifyLabel prefixes a VM label with the enclosing function's name, per
// the "function-scoped label" rule of spec.md §4.8: labels are visible only
// within the function that declares them, so two functions may reuse the
// same bare label text.
func (l *Lowerer) qualifyLabel(name string) string {
	return fmt.Sprintf("%s$%s", l.currentFunction, name)
}

func (l *Lowerer) lowerLabelDecl(op LabelDecl) asm.Program {
	return asm.Program{asm.LabelDecl{Name: l.qualifyLabel(op.Name)}}
}

func (l *Lowerer) lowerGotoOp(op GotoOp) asm.Program {
	if op.Jump == Unconditional {
		return asm.Program{
			asm.AInstruction{Location: l.qualifyLabel(op.Label)},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}
	}
	return append(popToD(),
		asm.AInstruction{Location: l.qualifyLabel(op.Label)},
		asm.CInstruction{Comp: "D", Jump: "JNE"},
	)
}

func (l *Lowerer) lowerFuncDecl(op FuncDecl) asm.Program {
	l.currentFunction = op.Name

	out := asm.Program{asm.LabelDecl{Name: op.Name}}
	for i := uint8(0); i < op.NLocal; i++ {
		out = append(out,
			asm.AInstruction{Location: "0"},
			asm.CInstruction{Dest: "D", Comp: "A"},
		)
		out = append(out, pushD()...)
	}
	return out
}

// lowerFuncCallOp implements the call sequence: push the return address and
// the caller's four saved segment pointers, reposition ARG and LCL for the
// callee, then jump, per spec.md §4.8.
func (l *Lowerer) lowerFuncCallOp(op FuncCallOp) asm.Program {
	id := l.nUnique
	l.nUnique++
	returnLabel := fmt.Sprintf("%s$ret.%d", op.Name, id)

	var out asm.Program
	out = append(out, asm.AInstruction{Location: returnLabel}, asm.CInstruction{Dest: "D", Comp: "A"})
	out = append(out, pushD()...)
	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		out = append(out, asm.AInstruction{Location: reg}, asm.CInstruction{Dest: "D", Comp: "M"})
		out = append(out, pushD()...)
	}

	// ARG = SP - 5 - nArgs
	out = append(out,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(5 + int(op.NArgs))},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// LCL = SP
	out = append(out,
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)

	out = append(out,
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		asm.LabelDecl{Name: returnLabel},
	)
	return out
}

// lowerReturnOp implements the return sequence using R13 (FRAME) and R14
// (RET) as scratch registers, restoring the caller's segments before
// repositioning SP and jumping back (spec.md §4.8). RET is saved before the
// return value overwrites ARG[0], since for a zero-argument call ARG[0] is
// the same slot as FRAME-5, where the return address is stored.
func (l *Lowerer) lowerReturnOp() asm.Program {
	frameTo := func(offsetFromEnd int, dest string) asm.Program {
		return asm.Program{
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offsetFromEnd)},
			asm.CInstruction{Dest: "A", Comp: "D-A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: dest},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}
	}

	var out asm.Program
	// R13 = FRAME = LCL
	out = append(out,
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// R14 = RET = *(FRAME - 5)
	out = append(out, frameTo(5, "R14")...)

	// *ARG = pop()
	out = append(out, popToD()...)
	out = append(out,
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)
	// SP = ARG + 1
	out = append(out,
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)

	// THAT = *(FRAME-1), THIS = *(FRAME-2), ARG = *(FRAME-3), LCL = *(FRAME-4)
	out = append(out, frameTo(1, "THAT")...)
	out = append(out, frameTo(2, "THIS")...)
	out = append(out, frameTo(3, "ARG")...)
	out = append(out, frameTo(4, "LCL")...)

	// goto RET
	out = append(out,
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)
	return out
}
