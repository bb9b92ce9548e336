package kernel

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Store: statically reserved arena + free-list allocator
// ---------------------------------------------------------------------------

// ErrOutOfMemory indicates the statically reserved arena is fully
// subscribed and the free list is empty. Exhaustion is a typed fault,
// never a halt or silent corruption of neighboring blocks.
var ErrOutOfMemory = errors.New("block store exhausted")

// ErrBadRef indicates a value that does not reference a block inside
// the heap's current extent.
var ErrBadRef = errors.New("not a valid block reference")

// Store owns the block arena: a fixed-capacity region grown one block
// at a time by bump allocation, plus a LIFO free list of reclaimed
// blocks threaded through their first payload word.
//
// The store is single-owner: all mutation happens on the dispatcher
// thread, between transactions. No locking is required or provided.
type Store struct {
	arena []Block // fixed capacity, reserved up front
	top   uint32  // high-water mark: blocks carved from the arena
	free  Value   // head of the free list (Nil when empty)
	nfree uint32  // free-list length, for diagnostics

	marks []uint64 // mark bitmap, rebuilt on every collection
}

// NewStore reserves an arena of the given capacity in blocks.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		arena: make([]Block, capacity),
		free:  Nil,
	}
}

// Capacity returns the arena capacity in blocks.
func (s *Store) Capacity() int {
	return len(s.arena)
}

// HeapBlocks returns the number of blocks carved from the arena so far
// (the high-water mark). It never shrinks.
func (s *Store) HeapBlocks() uint32 {
	return s.top
}

// FreeBlocks returns the current free-list length.
func (s *Store) FreeBlocks() uint32 {
	return s.nfree
}

// InHeap reports whether v references a block below the high-water
// mark. This is the structural filter the conservative trace applies.
func (s *Store) InHeap(v Value) bool {
	return v.IsBlock() && v.BlockIndex() < s.top
}

// block returns the cell for a reference. Callers must have validated
// the reference with InHeap.
func (s *Store) block(ref Value) *Block {
	return &s.arena[ref.BlockIndex()]
}

// Reserve returns a block of the requested shape. The free list is
// consulted first; when it is empty the heap grows by exactly one
// block from the high-water mark. Either way the block's payload is
// reset to Nil before it is returned.
func (s *Store) Reserve(kind Kind) (Value, error) {
	var ref Value
	switch {
	case !s.free.IsNil():
		ref = s.free
		b := s.block(ref)
		s.free = b.w[wFreeNext]
		s.nfree--
	case s.top < uint32(len(s.arena)):
		ref = FromBlockIndex(s.top)
		s.top++
	default:
		return Nil, fmt.Errorf("reserve %s block: %w", kind, ErrOutOfMemory)
	}

	b := s.block(ref)
	b.kind = kind
	for i := range b.w {
		b.w[i] = Nil
	}
	return ref, nil
}

// Release returns a block to the free list. The body is overwritten
// with a recognizable junk pattern so a use after free shows up as
// junk words rather than silent reuse; the link word carries the free
// list instead.
func (s *Store) Release(ref Value) {
	if !s.InHeap(ref) {
		return
	}
	b := s.block(ref)
	if b.kind == KindFree {
		// Double release would corrupt the list via double-insertion.
		return
	}
	b.kind = KindFree
	for i := 1; i < BlockWords; i++ {
		b.w[i] = junkWord
	}
	b.w[wFreeNext] = s.free
	s.free = ref
	s.nfree++
}

// ---------------------------------------------------------------------------
// Typed accessors per block shape
// ---------------------------------------------------------------------------

// NewPair reserves a pair block with the given car and cdr.
func (s *Store) NewPair(car, cdr Value) (Value, error) {
	ref, err := s.Reserve(KindPair)
	if err != nil {
		return Nil, err
	}
	b := s.block(ref)
	b.w[wPairCar] = car
	b.w[wPairCdr] = cdr
	return ref, nil
}

// Car returns the head of a pair, or Nil for anything else.
func (s *Store) Car(ref Value) Value {
	if !s.InHeap(ref) {
		return Nil
	}
	b := s.block(ref)
	if b.kind != KindPair {
		return Nil
	}
	return b.w[wPairCar]
}

// Cdr returns the tail of a pair, or Nil for anything else.
func (s *Store) Cdr(ref Value) Value {
	if !s.InHeap(ref) {
		return Nil
	}
	b := s.block(ref)
	if b.kind != KindPair {
		return Nil
	}
	return b.w[wPairCdr]
}

// SetCar overwrites the head of a pair.
func (s *Store) SetCar(ref, v Value) {
	if s.InHeap(ref) && s.block(ref).kind == KindPair {
		s.block(ref).w[wPairCar] = v
	}
}

// SetCdr overwrites the tail of a pair.
func (s *Store) SetCdr(ref, v Value) {
	if s.InHeap(ref) && s.block(ref).kind == KindPair {
		s.block(ref).w[wPairCdr] = v
	}
}

// NewActor reserves an actor block with the given behavior entry.
func (s *Store) NewActor(behavior Value) (Value, error) {
	ref, err := s.Reserve(KindActor)
	if err != nil {
		return Nil, err
	}
	s.block(ref).w[wActorBeh] = behavior
	return ref, nil
}

// Behavior returns an actor's behavior entry, or Nil.
func (s *Store) Behavior(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindActor {
		return Nil
	}
	return s.block(ref).w[wActorBeh]
}

// SetBehavior replaces an actor's behavior entry. Used only by the
// commit phase of a transaction that issued BECOME.
func (s *Store) SetBehavior(ref, behavior Value) {
	if s.InHeap(ref) && s.block(ref).kind == KindActor {
		s.block(ref).w[wActorBeh] = behavior
	}
}

// ActorState returns data word i (0..5) of an actor block.
func (s *Store) ActorState(ref Value, i int) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindActor {
		return Nil
	}
	if i < 0 || i >= ActorStateWords {
		return Nil
	}
	return s.block(ref).w[wActorState+i]
}

// SetActorState sets data word i (0..5) of an actor block.
func (s *Store) SetActorState(ref Value, i int, v Value) {
	if !s.InHeap(ref) || s.block(ref).kind != KindActor {
		return
	}
	if i < 0 || i >= ActorStateWords {
		return
	}
	s.block(ref).w[wActorState+i] = v
}

// NewEvent reserves an event block for a pending delivery.
func (s *Store) NewEvent(target, msg Value) (Value, error) {
	ref, err := s.Reserve(KindEvent)
	if err != nil {
		return Nil, err
	}
	b := s.block(ref)
	b.w[wEventTarget] = target
	b.w[wEventMsg] = msg
	return ref, nil
}

// EventTarget returns the event's target actor.
func (s *Store) EventTarget(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindEvent {
		return Nil
	}
	return s.block(ref).w[wEventTarget]
}

// EventMessage returns the event's message value.
func (s *Store) EventMessage(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindEvent {
		return Nil
	}
	return s.block(ref).w[wEventMsg]
}

// EventNext returns the next link of an event chain.
func (s *Store) EventNext(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindEvent {
		return Nil
	}
	return s.block(ref).w[wEventNext]
}

// SetEventNext links an event into a chain. Used by the debug sponsor's
// retained-event list.
func (s *Store) SetEventNext(ref, next Value) {
	if s.InHeap(ref) && s.block(ref).kind == KindEvent {
		s.block(ref).w[wEventNext] = next
	}
}

// NewCont reserves a continuation block.
func (s *Store) NewCont(ip, sp, event Value) (Value, error) {
	ref, err := s.Reserve(KindCont)
	if err != nil {
		return Nil, err
	}
	b := s.block(ref)
	b.w[wContIP] = ip
	b.w[wContSP] = sp
	b.w[wContEvent] = event
	return ref, nil
}

// ContIP returns the continuation's instruction pointer.
func (s *Store) ContIP(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindCont {
		return Nil
	}
	return s.block(ref).w[wContIP]
}

// ContSP returns the continuation's data-stack pointer.
func (s *Store) ContSP(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindCont {
		return Nil
	}
	return s.block(ref).w[wContSP]
}

// ContEvent returns the event the continuation is handling.
func (s *Store) ContEvent(ref Value) Value {
	if !s.InHeap(ref) || s.block(ref).kind != KindCont {
		return Nil
	}
	return s.block(ref).w[wContEvent]
}

// SetContIP updates the continuation's instruction pointer.
func (s *Store) SetContIP(ref, ip Value) {
	if s.InHeap(ref) && s.block(ref).kind == KindCont {
		s.block(ref).w[wContIP] = ip
	}
}

// SetContSP updates the continuation's data-stack pointer.
func (s *Store) SetContSP(ref, sp Value) {
	if s.InHeap(ref) && s.block(ref).kind == KindCont {
		s.block(ref).w[wContSP] = sp
	}
}

// KindOf returns the shape of a block, or KindFree for anything that
// is not a live heap reference.
func (s *Store) KindOf(ref Value) Kind {
	if !s.InHeap(ref) {
		return KindFree
	}
	return s.block(ref).kind
}
