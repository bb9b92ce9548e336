package kernel

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Dispatcher: single-threaded, instruction-granular interleaving
// ---------------------------------------------------------------------------

// Step performs one dispatcher cycle: open a turn for the next queued
// event, then advance the next ready continuation by one instruction.
// Opening a threaded turn enqueues its continuation, so a fresh turn
// executes its first instruction in the same cycle; with several turns
// live the continuation queue round-robins them an instruction at a
// time. The first result is false when both queues are empty (the
// runtime is idle).
//
// Errors reported by Step leave the runtime consistent: the offending
// turn is aborted and its effects discarded.
func (rt *Runtime) Step() (bool, error) {
	if rt.root.IsNil() {
		return false, ErrNoRoot
	}

	rt.applySponsor()

	// Collection runs only here, between instructions, with the
	// dispatcher paused.
	if rt.lowWater > 0 && rt.headroom() < rt.lowWater {
		rt.Collect()
	}

	progressed := false
	var firstErr error

	if ev, ok := rt.events.Dequeue(); ok {
		progressed = true
		if err := rt.beginTurn(ev); err != nil {
			firstErr = err
		}
	}

	if k, ok := rt.conts.Dequeue(); ok {
		progressed = true
		if err := rt.stepCont(k); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if progressed {
		rt.stats.Steps++
	}
	return progressed, firstErr
}

// Run drives the dispatcher until the runtime goes idle or limit steps
// have executed (limit <= 0 means unbounded). Step errors are
// turn-local (the offending turn is already aborted), so the loop keeps
// draining and reports the first error alongside the step count.
func (rt *Runtime) Run(limit int) (int, error) {
	var firstErr error
	steps := 0
	for limit <= 0 || steps < limit {
		progressed, err := rt.Step()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if !progressed {
				return steps, err
			}
		}
		if !progressed {
			break
		}
		steps++
	}
	return steps, firstErr
}

// Idle reports whether both queues are empty.
func (rt *Runtime) Idle() bool {
	return rt.events.Len() == 0 && rt.conts.Len() == 0
}

// beginTurn opens a transaction for a dequeued event and dispatches on
// the target's behavior entry: atoms name native behaviors, block
// references are threaded instruction chains.
func (rt *Runtime) beginTurn(ev Value) error {
	target := rt.store.EventTarget(ev)
	beh := rt.store.Behavior(target)
	rt.stats.Turns++

	if rt.sponsor.TraceEnabled() {
		log.Debugf("turn: %s <- %s", target, rt.FormatValue(rt.store.EventMessage(ev)))
	}

	switch {
	case beh.IsAtom():
		return rt.nativeTurn(ev, target, beh)
	case rt.store.KindOf(beh) == KindPair:
		return rt.threadedTurn(ev, target, beh)
	default:
		// No behavior to invoke: the event is consumed, nothing else
		// happens.
		log.Errorf("turn: %s has no behavior, message dropped", target)
		rt.retire(ev)
		rt.stats.Aborts++
		return nil
	}
}

// nativeTurn runs a Go behavior to completion in one step. The
// actor-to-actor boundary is never interleaved.
func (rt *Runtime) nativeTurn(ev, target, beh Value) error {
	tx := newTxn(rt, target, ev)
	fn := rt.natives[beh.AtomID()]
	if fn == nil {
		tx.Abort(rt.Atom(atomUnknownBehavior))
	} else if err := fn(tx, tx.Message()); err != nil {
		tx.Abort(rt.faultAtom(err))
	}
	return rt.finishTurn(tx)
}

// threadedTurn synthesizes a continuation for an instruction-chain
// behavior and hands it to the continuation queue; the instruction
// phase of the same dispatcher cycle picks it up.
func (rt *Runtime) threadedTurn(ev, target, beh Value) error {
	k, err := rt.store.NewCont(beh, Nil, ev)
	if err != nil {
		// Cannot even start the turn; the event is consumed.
		rt.retire(ev)
		rt.stats.Aborts++
		return fmt.Errorf("synthesize continuation: %w", err)
	}
	tx := newTxn(rt, target, ev)
	rt.txns[k.BlockIndex()] = tx
	if err := rt.conts.Enqueue(k); err != nil {
		tx.Abort(rt.Atom(atomContOverflow))
		if ferr := rt.finishCont(k, tx); ferr != nil {
			return ferr
		}
		return err
	}
	return nil
}

// stepCont executes exactly one instruction of a threaded turn, then
// re-enqueues the continuation. Terminal instructions finalize the
// transaction instead.
func (rt *Runtime) stepCont(k Value) error {
	tx := rt.txns[k.BlockIndex()]
	if tx == nil {
		// A continuation without a transaction is a kernel defect.
		rt.store.Release(k)
		return fmt.Errorf("continuation %s has no transaction", k)
	}

	if budget := rt.sponsor.WatchdogBudget(); budget > 0 {
		tx.steps++
		if tx.steps > budget {
			tx.Abort(rt.Atom(atomWatchdog))
			return rt.finishCont(k, tx)
		}
	}

	ip := rt.store.ContIP(k)
	if rt.store.KindOf(ip) != KindPair {
		tx.Abort(rt.Atom(atomBadIP))
		return rt.finishCont(k, tx)
	}

	op, operand, ok := rt.decodeInstr(rt.store.Car(ip))
	if !ok {
		tx.Abort(rt.Atom(atomBadInstruction))
		return rt.finishCont(k, tx)
	}
	next := rt.store.Cdr(ip)

	if rt.sponsor.TraceEnabled() {
		log.Debugf("step: %s %s @%s", op, rt.FormatValue(operand), ip)
	}

	jump, err := rt.execute(k, tx, op, operand)
	if err != nil {
		if !tx.aborted {
			tx.Abort(rt.faultAtom(err))
		}
		return rt.finishCont(k, tx)
	}

	if op.terminal() || tx.aborted {
		return rt.finishCont(k, tx)
	}

	if !jump.IsNil() {
		next = jump
	}
	rt.store.SetContIP(k, next)
	if err := rt.conts.Enqueue(k); err != nil {
		// Continuation queue overflow: the turn cannot continue.
		tx.Abort(rt.Atom(atomContOverflow))
		if ferr := rt.finishCont(k, tx); ferr != nil {
			return ferr
		}
		return err
	}
	return nil
}

// faultAtom maps an execution error to a short abort-reason atom.
func (rt *Runtime) faultAtom(err error) Value {
	switch {
	case errors.Is(err, ErrOutOfMemory):
		return rt.Atom(atomOutOfMemory)
	case errors.Is(err, ErrQueueOverflow):
		return rt.Atom(atomQueueOverflow)
	default:
		return rt.Atom(err.Error())
	}
}

// decodeInstr splits an instruction cell into opcode and operand. An
// instruction is a bare opcode value, or a pair of (opcode, operand).
func (rt *Runtime) decodeInstr(instr Value) (Opcode, Value, bool) {
	if instr.IsOp() {
		return instr.Opcode(), Nil, !instr.Opcode().hasOperand()
	}
	if rt.store.KindOf(instr) == KindPair {
		opv := rt.store.Car(instr)
		if opv.IsOp() {
			return opv.Opcode(), rt.store.Cdr(instr), true
		}
	}
	return 0, Nil, false
}

// execute performs one instruction's effect. A non-Nil jump result
// redirects the instruction pointer (OpIf).
func (rt *Runtime) execute(k Value, tx *Txn, op Opcode, operand Value) (Value, error) {
	switch op {
	case OpPush:
		return Nil, rt.push(k, operand)

	case OpDrop:
		_, err := rt.pop(k)
		return Nil, err

	case OpDup:
		v, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		if err := rt.push(k, v); err != nil {
			return Nil, err
		}
		return Nil, rt.push(k, v)

	case OpPair:
		cdr, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		car, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		p, err := rt.store.NewPair(car, cdr)
		if err != nil {
			return Nil, err
		}
		return Nil, rt.push(k, p)

	case OpPart:
		p, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		if rt.store.KindOf(p) != KindPair {
			return Nil, fmt.Errorf("not-a-pair")
		}
		if err := rt.push(k, rt.store.Cdr(p)); err != nil {
			return Nil, err
		}
		return Nil, rt.push(k, rt.store.Car(p))

	case OpMsg:
		return Nil, rt.push(k, tx.Message())

	case OpNth:
		if !operand.IsInt() {
			return Nil, fmt.Errorf("bad-operand")
		}
		return Nil, rt.push(k, rt.Nth(tx.Message(), int(operand.Int())))

	case OpSelf:
		return Nil, rt.push(k, tx.Self())

	case OpState:
		if !operand.IsInt() {
			return Nil, fmt.Errorf("bad-operand")
		}
		return Nil, rt.push(k, rt.store.ActorState(tx.Self(), int(operand.Int())))

	case OpSetState:
		if !operand.IsInt() {
			return Nil, fmt.Errorf("bad-operand")
		}
		v, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		rt.store.SetActorState(tx.Self(), int(operand.Int()), v)
		return Nil, nil

	case OpEq:
		v, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		return Nil, rt.push(k, FromBool(v == operand))

	case OpIf:
		cond, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		if cond.Truthy() {
			if rt.store.KindOf(operand) != KindPair {
				return Nil, fmt.Errorf("bad-branch-target")
			}
			return operand, nil
		}
		return Nil, nil

	case OpAdd, OpSub, OpMul:
		b, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		a, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		if !a.IsInt() || !b.IsInt() {
			return Nil, fmt.Errorf("not-a-number")
		}
		var n int64
		switch op {
		case OpAdd:
			n = a.Int() + b.Int()
		case OpSub:
			n = a.Int() - b.Int()
		default:
			n = a.Int() * b.Int()
		}
		return Nil, rt.push(k, FromInt(n))

	case OpSend:
		msg, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		target, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		return Nil, tx.Send(target, msg)

	case OpCreate:
		beh, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		actor, err := tx.Create(beh)
		if err != nil {
			return Nil, err
		}
		return Nil, rt.push(k, actor)

	case OpBecome:
		beh, err := rt.pop(k)
		if err != nil {
			return Nil, err
		}
		tx.Become(beh)
		return Nil, nil

	case OpCommit:
		return Nil, nil

	case OpAbort:
		reason, err := rt.pop(k)
		if err != nil {
			reason = Nil
		}
		tx.Abort(reason)
		return Nil, nil

	default:
		return Nil, fmt.Errorf("bad-instruction")
	}
}

// push allocates a stack node. The data stack is a pair chain hanging
// off the continuation's stack pointer.
func (rt *Runtime) push(k, v Value) error {
	node, err := rt.store.NewPair(v, rt.store.ContSP(k))
	if err != nil {
		return err
	}
	rt.store.SetContSP(k, node)
	return nil
}

// pop releases the top stack node and returns its value.
func (rt *Runtime) pop(k Value) (Value, error) {
	sp := rt.store.ContSP(k)
	if rt.store.KindOf(sp) != KindPair {
		return Nil, fmt.Errorf("stack-underflow")
	}
	v := rt.store.Car(sp)
	rt.store.SetContSP(k, rt.store.Cdr(sp))
	rt.store.Release(sp)
	return v, nil
}

// finishCont retires a threaded turn: the leftover stack chain and the
// continuation block go back to the free list, then the transaction
// finalizes.
func (rt *Runtime) finishCont(k Value, tx *Txn) error {
	delete(rt.txns, k.BlockIndex())
	sp := rt.store.ContSP(k)
	for rt.store.KindOf(sp) == KindPair {
		next := rt.store.Cdr(sp)
		rt.store.Release(sp)
		sp = next
	}
	rt.store.Release(k)
	return rt.finishTurn(tx)
}

// finishTurn commits or discards the transaction's buffered effects,
// then retires the consumed event.
func (rt *Runtime) finishTurn(tx *Txn) error {
	err := tx.commit()
	if tx.aborted {
		rt.stats.Aborts++
		if rt.sponsor.TraceEnabled() {
			log.Debugf("abort: %s reason %s", tx.self, rt.FormatValue(tx.reason))
		}
	} else if err == nil {
		rt.stats.Commits++
	} else {
		// Commit refused (queue overflow): counted as an abort.
		rt.stats.Aborts++
		log.Errorf("commit failed for %s: %s", tx.self, err)
	}
	rt.retire(tx.event)
	return err
}

// retire disposes of a consumed event: released, or chained onto the
// retained list under the debug sponsor.
func (rt *Runtime) retire(ev Value) {
	if !rt.store.InHeap(ev) {
		return
	}
	if rt.sponsor.RetainEvents() {
		rt.store.SetEventNext(ev, rt.retained)
		rt.retained = ev
		return
	}
	rt.store.Release(ev)
}
