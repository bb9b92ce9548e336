package kernel

import "testing"

func TestAssembleChainShape(t *testing.T) {
	rt := newTestRuntime(t)
	code, err := rt.Assemble(
		FromOpcode(OpMsg),
		FromOpcode(OpPush), FromInt(1),
		FromOpcode(OpAdd),
		FromOpcode(OpCommit),
	)
	if err != nil {
		t.Fatal(err)
	}

	s := rt.Store()
	// First cell: bare opcode.
	if got := s.Car(code); !got.IsOp() || got.Opcode() != OpMsg {
		t.Errorf("instruction 1 = %s, want msg", rt.FormatValue(got))
	}
	// Second cell: (opcode, operand) pair.
	node := s.Cdr(code)
	cell := s.Car(node)
	if s.KindOf(cell) != KindPair {
		t.Fatal("operandful instruction is not a pair cell")
	}
	if op := s.Car(cell); !op.IsOp() || op.Opcode() != OpPush {
		t.Errorf("instruction 2 opcode = %s", rt.FormatValue(op))
	}
	if arg := s.Cdr(cell); !arg.IsInt() || arg.Int() != 1 {
		t.Errorf("instruction 2 operand = %s", rt.FormatValue(arg))
	}
	// Chain ends after the terminal instruction.
	tail := s.Cdr(s.Cdr(node))
	if got := s.Car(tail); !got.IsOp() || got.Opcode() != OpCommit {
		t.Errorf("last instruction = %s, want commit", rt.FormatValue(got))
	}
	if !s.Cdr(tail).IsNil() {
		t.Error("chain does not end in nil")
	}
}

func TestAssembleRejectsBadCode(t *testing.T) {
	rt := newTestRuntime(t)

	if _, err := rt.Assemble(); err == nil {
		t.Error("empty code assembled")
	}
	if _, err := rt.Assemble(FromOpcode(OpMsg)); err == nil {
		t.Error("code without a terminal instruction assembled")
	}
	if _, err := rt.Assemble(FromOpcode(OpPush)); err == nil {
		t.Error("push without operand assembled")
	}
	if _, err := rt.Assemble(FromInt(3), FromOpcode(OpCommit)); err == nil {
		t.Error("non-opcode item assembled")
	}
}
