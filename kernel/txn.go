package kernel

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Txn: buffered effects of one event delivery
// ---------------------------------------------------------------------------

// Txn is the transaction accumulated while handling one event. Effects
// (sends, creates, a become) stay buffered and invisible to every other
// actor until the turn reaches its terminal commit instruction; an
// abort discards them all. Either way the event is consumed.
type Txn struct {
	rt    *Runtime
	self  Value // capability of the actor handling the event
	event Value // the event block being handled

	sends   []Value // event blocks, in issue order
	creates []Value // actor blocks reserved during this turn
	become  Value   // replacement behavior, Nil if none

	aborted bool
	reason  Value

	steps int // instructions executed; checked against the watchdog budget
}

// newTxn opens a transaction for one event delivery.
func newTxn(rt *Runtime, self, event Value) *Txn {
	return &Txn{
		rt:     rt,
		self:   self,
		event:  event,
		become: Nil,
		reason: Nil,
	}
}

// Self yields the currently executing actor's own capability.
func (tx *Txn) Self() Value {
	return tx.self
}

// Message returns the message carried by the event being handled.
func (tx *Txn) Message() Value {
	return tx.rt.store.EventMessage(tx.event)
}

// Send buffers a prospective event. The delivery becomes visible only
// if the turn commits, and committed sends publish in issue order.
func (tx *Txn) Send(target, msg Value) error {
	ev, err := tx.rt.store.NewEvent(target, msg)
	if err != nil {
		return fmt.Errorf("buffer send: %w", err)
	}
	tx.sends = append(tx.sends, ev)
	return nil
}

// Create buffers allocation of a new actor with the given behavior.
// The capability is returned immediately and is usable within the same
// transaction, but is not visible to other actors until commit.
func (tx *Txn) Create(behavior Value) (Value, error) {
	ref, err := tx.rt.store.NewActor(behavior)
	if err != nil {
		return Nil, fmt.Errorf("buffer create: %w", err)
	}
	tx.creates = append(tx.creates, ref)
	return ref, nil
}

// Become buffers replacement of the current actor's behavior.
func (tx *Txn) Become(behavior Value) {
	tx.become = behavior
}

// Abort discards every buffered effect for this transaction. The
// actor's prior state and behavior remain exactly as before the event
// was delivered. There is no automatic retry.
func (tx *Txn) Abort(reason Value) {
	tx.aborted = true
	tx.reason = reason
}

// Aborted reports whether the transaction was aborted.
func (tx *Txn) Aborted() bool {
	return tx.aborted
}

// roots appends every block the in-flight transaction is keeping
// alive. Buffered effects are GC roots until the turn retires.
func (tx *Txn) roots(dst []Value) []Value {
	dst = append(dst, tx.self, tx.event, tx.become)
	dst = append(dst, tx.sends...)
	dst = append(dst, tx.creates...)
	return dst
}

// commit publishes all buffered effects as a single atomic unit:
// sends append to the event queue in issue order, creates become
// heap-reachable, and the become swaps the behavior pointer. If the
// event queue cannot take every buffered send, nothing publishes and
// the turn degrades to an abort with the overflow as reason.
func (tx *Txn) commit() error {
	if tx.aborted {
		tx.discard()
		return nil
	}
	if tx.rt.events.Room() < len(tx.sends) {
		tx.discard()
		return fmt.Errorf("commit %d sends: %w", len(tx.sends), ErrQueueOverflow)
	}
	for _, ev := range tx.sends {
		// Room was checked; a failure here would mean concurrent
		// mutation, which the single-owner discipline excludes.
		if err := tx.rt.events.Enqueue(ev); err != nil {
			return err
		}
	}
	if !tx.become.IsNil() {
		tx.rt.store.SetBehavior(tx.self, tx.become)
	}
	tx.sends = nil
	tx.creates = nil
	return nil
}

// discard releases every buffered effect: pending event blocks and
// actor blocks reserved by CREATE go straight back to the free list.
func (tx *Txn) discard() {
	for _, ev := range tx.sends {
		tx.rt.store.Release(ev)
	}
	for _, ref := range tx.creates {
		tx.rt.store.Release(ref)
	}
	tx.sends = nil
	tx.creates = nil
	tx.become = Nil
}
