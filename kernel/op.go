package kernel

// ---------------------------------------------------------------------------
// Instruction set for threaded behaviors
// ---------------------------------------------------------------------------

// Opcode numbers one dispatcher instruction. Threaded behaviors are
// pair-chains whose cars are instructions: either a bare opcode value
// or a pair of (opcode, operand) for instructions that take one.
//
// Each instruction computes its effect and produces the next
// continuation, which is re-enqueued rather than looped in place; that
// is what round-robins logically concurrent turns fairly.
type Opcode uint16

const (
	// Stack manipulation.
	OpPush Opcode = iota // operand: literal to push
	OpDrop
	OpDup

	// Pair construction and access.
	OpPair // pop cdr, pop car, push pair
	OpPart // pop pair, push cdr, push car

	// Message access.
	OpMsg      // push the current event's message
	OpNth      // operand: 1-based index into the message list; push element
	OpSelf     // push the current actor's own capability
	OpState    // operand: actor data word index; push it
	OpSetState // operand: actor data word index; pop value into it

	// Tests and arithmetic.
	OpEq  // operand: literal; pop value, push equality
	OpIf  // operand: branch target (instruction ref); pop condition
	OpAdd // pop b, pop a, push a+b
	OpSub // pop b, pop a, push a-b
	OpMul // pop b, pop a, push a*b

	// Actor protocol.
	OpSend   // pop message, pop target: buffer a send
	OpCreate // pop behavior: buffer a create, push the capability
	OpBecome // pop behavior: buffer a behavior replacement

	// Terminal instructions.
	OpCommit // publish buffered effects, retire the turn
	OpAbort  // pop reason, discard buffered effects, retire the turn
)

var opNames = [...]string{
	OpPush:     "push",
	OpDrop:     "drop",
	OpDup:      "dup",
	OpPair:     "pair",
	OpPart:     "part",
	OpMsg:      "msg",
	OpNth:      "nth",
	OpSelf:     "self",
	OpState:    "state",
	OpSetState: "set-state",
	OpEq:       "eq",
	OpIf:       "if",
	OpAdd:      "add",
	OpSub:      "sub",
	OpMul:      "mul",
	OpSend:     "send",
	OpCreate:   "create",
	OpBecome:   "become",
	OpCommit:   "commit",
	OpAbort:    "abort",
}

// String returns the mnemonic for an opcode.
func (op Opcode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// terminal reports whether the opcode ends its turn.
func (op Opcode) terminal() bool {
	return op == OpCommit || op == OpAbort
}

// hasOperand reports whether the opcode consumes an inline operand.
func (op Opcode) hasOperand() bool {
	switch op {
	case OpPush, OpNth, OpState, OpSetState, OpEq, OpIf:
		return true
	default:
		return false
	}
}
