package kernel

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Ring buffer behavior
// ---------------------------------------------------------------------------

func TestQueueFIFO(t *testing.T) {
	q := NewQueue("test", 8)
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(FromBlockIndex(uint32(i))); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		ref, ok := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if ref.BlockIndex() != uint32(i) {
			t.Errorf("dequeue %d = #%d, want #%d", i, ref.BlockIndex(), i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("dequeue from empty queue should fail")
	}
}

func TestQueueWrapsAround(t *testing.T) {
	q := NewQueue("test", 4)

	// Drive head and tail past the buffer end several times.
	next := uint32(0)
	expect := uint32(0)
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			if err := q.Enqueue(FromBlockIndex(next)); err != nil {
				t.Fatal(err)
			}
			next++
		}
		for i := 0; i < 3; i++ {
			ref, ok := q.Dequeue()
			if !ok {
				t.Fatal("dequeue failed mid-round")
			}
			if ref.BlockIndex() != expect {
				t.Fatalf("got #%d, want #%d", ref.BlockIndex(), expect)
			}
			expect++
		}
	}
}

func TestQueueOverflowIsTyped(t *testing.T) {
	q := NewQueue("event queue", 2)
	q.Enqueue(FromBlockIndex(0))
	q.Enqueue(FromBlockIndex(1))

	err := q.Enqueue(FromBlockIndex(2))
	if !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("overflow error = %v, want ErrQueueOverflow", err)
	}
	// The ring is untouched by the failed enqueue.
	if q.Len() != 2 {
		t.Errorf("len = %d after refused enqueue, want 2", q.Len())
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := NewQueue("test", 0)
	if q.Cap() != DefaultQueueCapacity {
		t.Errorf("cap = %d, want %d", q.Cap(), DefaultQueueCapacity)
	}
}

// ---------------------------------------------------------------------------
// GC rooting
// ---------------------------------------------------------------------------

func TestQueueRootsSpanLiveEntries(t *testing.T) {
	q := NewQueue("test", 4)
	q.Enqueue(FromBlockIndex(10))
	q.Enqueue(FromBlockIndex(11))
	q.Enqueue(FromBlockIndex(12))
	q.Dequeue() // head advances; #10 is no longer live

	roots := q.Roots(nil)
	if len(roots) != 2 {
		t.Fatalf("roots = %d entries, want 2", len(roots))
	}
	if roots[0].BlockIndex() != 11 || roots[1].BlockIndex() != 12 {
		t.Errorf("roots = %v, want [#11 #12]", roots)
	}
}

func TestQueueRoom(t *testing.T) {
	q := NewQueue("test", 3)
	if q.Room() != 3 {
		t.Errorf("room = %d, want 3", q.Room())
	}
	q.Enqueue(FromBlockIndex(0))
	if q.Room() != 2 {
		t.Errorf("room = %d, want 2", q.Room())
	}
}
