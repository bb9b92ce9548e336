package kernel

import "fmt"

// ---------------------------------------------------------------------------
// Assembler for threaded behaviors
// ---------------------------------------------------------------------------

// Assemble builds an instruction chain from a flat code sequence.
// Opcodes that take an operand consume the following value:
//
//	code, _ := rt.Assemble(
//		FromOpcode(OpMsg),
//		FromOpcode(OpPush), FromInt(1),
//		FromOpcode(OpAdd),
//		FromOpcode(OpCommit),
//	)
//
// Branch targets (OpIf) are instruction references: assemble the
// branch first and pass its head as the operand. The final instruction
// must be terminal.
func (rt *Runtime) Assemble(code ...Value) (Value, error) {
	type instr struct {
		op      Opcode
		operand Value
		has     bool
	}

	var instrs []instr
	for i := 0; i < len(code); i++ {
		v := code[i]
		if !v.IsOp() {
			return Nil, fmt.Errorf("assemble: item %d is not an opcode: %s", i, v)
		}
		op := v.Opcode()
		in := instr{op: op}
		if op.hasOperand() {
			i++
			if i >= len(code) {
				return Nil, fmt.Errorf("assemble: %s is missing its operand", op)
			}
			in.operand = code[i]
			in.has = true
		}
		instrs = append(instrs, in)
	}
	if len(instrs) == 0 {
		return Nil, fmt.Errorf("assemble: empty code")
	}
	if last := instrs[len(instrs)-1]; !last.op.terminal() {
		return Nil, fmt.Errorf("assemble: code must end with commit or abort, got %s", last.op)
	}

	// Build the chain back to front so each cell links to its
	// successor.
	chain := Nil
	for i := len(instrs) - 1; i >= 0; i-- {
		cell := FromOpcode(instrs[i].op)
		if instrs[i].has {
			p, err := rt.store.NewPair(cell, instrs[i].operand)
			if err != nil {
				return Nil, err
			}
			cell = p
		}
		node, err := rt.store.NewPair(cell, chain)
		if err != nil {
			return Nil, err
		}
		chain = node
	}
	return chain, nil
}
