package kernel

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Queue: bounded ring buffer of block references
// ---------------------------------------------------------------------------

// ErrQueueOverflow indicates an enqueue against a full ring. Overflow
// is an explicit, typed condition so producers can apply back-pressure;
// it is never a silent overwrite.
var ErrQueueOverflow = errors.New("queue overflow")

// DefaultQueueCapacity sizes a ring when no capacity is configured.
const DefaultQueueCapacity = 256

// Queue is a bounded FIFO of block references with wrapping head/tail
// indices. The event queue and the continuation queue are both Queues;
// their live spans are GC root sets.
type Queue struct {
	name  string
	buf   []Value
	head  uint32
	tail  uint32
	count uint32
}

// NewQueue creates a ring with the given capacity. Non-positive
// capacities fall back to DefaultQueueCapacity.
func NewQueue(name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		name: name,
		buf:  make([]Value, capacity),
	}
}

// Len returns the number of queued references.
func (q *Queue) Len() int {
	return int(q.count)
}

// Cap returns the ring capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Room returns how many more references fit before overflow.
func (q *Queue) Room() int {
	return len(q.buf) - int(q.count)
}

// Enqueue appends at the tail. A full ring is a reported fault, never
// a silent overwrite.
func (q *Queue) Enqueue(ref Value) error {
	if int(q.count) == len(q.buf) {
		return fmt.Errorf("%s: %w", q.name, ErrQueueOverflow)
	}
	q.buf[q.tail] = ref
	q.tail = (q.tail + 1) % uint32(len(q.buf))
	q.count++
	return nil
}

// Dequeue removes from the head. The second result is false when the
// ring is empty.
func (q *Queue) Dequeue() (Value, bool) {
	if q.count == 0 {
		return Nil, false
	}
	ref := q.buf[q.head]
	q.buf[q.head] = Nil
	q.head = (q.head + 1) % uint32(len(q.buf))
	q.count--
	return ref, true
}

// Roots appends the full live span [head, tail) to dst. Scanned in
// full on every collection.
func (q *Queue) Roots(dst []Value) []Value {
	i := q.head
	for n := uint32(0); n < q.count; n++ {
		dst = append(dst, q.buf[i])
		i = (i + 1) % uint32(len(q.buf))
	}
	return dst
}

// Contents returns the live span in FIFO order. Used by the snapshot
// codec and by tests.
func (q *Queue) Contents() []Value {
	return q.Roots(make([]Value, 0, q.count))
}
