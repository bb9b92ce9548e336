package kernel

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Dual-mode calling convention for first-class behaviors
// ---------------------------------------------------------------------------
//
// Behaviors exposed to the layered language interpreters answer two
// message shapes:
//
//	(customer "apply" operands env)  — request combination
//	(customer "eval" env)            — request self-evaluation
//
// Either way the behavior produces exactly one reply to customer. This
// contract is mandatory for any behavior that wants to participate as
// a first-class value in the interpreter layers.

// Verb atoms of the calling convention.
const (
	VerbApply = "apply"
	VerbEval  = "eval"
)

// Combination is a decoded dual-mode request.
type Combination struct {
	Customer Value
	Verb     Value // atom: apply or eval
	Operands Value // Nil for eval requests
	Env      Value
}

// ApplyMsg builds a (customer "apply" operands env) request.
func (rt *Runtime) ApplyMsg(customer, operands, env Value) (Value, error) {
	return rt.List(customer, rt.Atom(VerbApply), operands, env)
}

// EvalMsg builds a (customer "eval" env) request.
func (rt *Runtime) EvalMsg(customer, env Value) (Value, error) {
	return rt.List(customer, rt.Atom(VerbEval), env)
}

// DecodeCombination parses a dual-mode request. The second result is
// false for messages that do not follow the convention.
func (rt *Runtime) DecodeCombination(msg Value) (Combination, bool) {
	c := Combination{
		Customer: rt.Nth(msg, 1),
		Verb:     rt.Nth(msg, 2),
	}
	switch {
	case c.Verb == rt.Atom(VerbApply):
		c.Operands = rt.Nth(msg, 3)
		c.Env = rt.Nth(msg, 4)
	case c.Verb == rt.Atom(VerbEval):
		c.Operands = Nil
		c.Env = rt.Nth(msg, 3)
	default:
		return Combination{}, false
	}
	if !c.Customer.IsBlock() {
		return Combination{}, false
	}
	return c, true
}

// ---------------------------------------------------------------------------
// Library behaviors
// ---------------------------------------------------------------------------

// InstallCombinators registers the behaviors the interpreter layers
// build on and returns the literal behavior's entry.
//
// A literal actor answers its own capability to eval requests and a
// cannot-apply fault value to apply requests; either way the customer
// gets exactly one reply.
func InstallCombinators(rt *Runtime) Value {
	return rt.RegisterBehavior("literal", func(tx *Txn, msg Value) error {
		c, ok := rt.DecodeCombination(msg)
		if !ok {
			return fmt.Errorf("bad-combination")
		}
		if c.Verb == rt.Atom(VerbEval) {
			return tx.Send(c.Customer, tx.Self())
		}
		return tx.Send(c.Customer, rt.Atom(atomCannotApply))
	})
}

// RegisterOperator installs a binary numeric operator as a dual-mode
// behavior. Apply requests expect a two-integer operand list; eval
// requests answer the operator's own capability.
func RegisterOperator(rt *Runtime, name string, fn func(a, b int64) (int64, error)) Value {
	return rt.RegisterBehavior(name, func(tx *Txn, msg Value) error {
		c, ok := rt.DecodeCombination(msg)
		if !ok {
			return fmt.Errorf("bad-combination")
		}
		if c.Verb == rt.Atom(VerbEval) {
			return tx.Send(c.Customer, tx.Self())
		}
		a := rt.Nth(c.Operands, 1)
		b := rt.Nth(c.Operands, 2)
		if !a.IsInt() || !b.IsInt() {
			return fmt.Errorf("not-a-number")
		}
		n, err := fn(a.Int(), b.Int())
		if err != nil {
			return err
		}
		return tx.Send(c.Customer, FromInt(n))
	})
}
