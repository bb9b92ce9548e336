package kernel

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Mark-and-sweep
// ---------------------------------------------------------------------------

// Reachable blocks must survive collection exactly as allocated.
func TestCollectKeepsReachable(t *testing.T) {
	s := NewStore(64)

	// root -> pair -> pair -> actor
	actor, _ := s.NewActor(Nil)
	inner, _ := s.NewPair(actor, Nil)
	root, _ := s.NewPair(FromInt(5), inner)

	// Unreachable garbage.
	for i := 0; i < 10; i++ {
		if _, err := s.Reserve(KindPair); err != nil {
			t.Fatal(err)
		}
	}

	stats := s.Collect([]Value{root}, ScanTyped)
	if stats.Marked != 3 {
		t.Errorf("marked = %d, want 3", stats.Marked)
	}
	if stats.Swept != 10 {
		t.Errorf("swept = %d, want 10", stats.Swept)
	}

	// The reachable graph is intact.
	if s.KindOf(root) != KindPair || s.KindOf(inner) != KindPair || s.KindOf(actor) != KindActor {
		t.Fatal("reachable block reclaimed by collection")
	}
	if s.Car(inner) != actor {
		t.Error("reachable graph mutated by collection")
	}
}

// Unreachable blocks must all return to the free list.
func TestCollectReclaimsUnreachable(t *testing.T) {
	s := NewStore(64)
	for i := 0; i < 20; i++ {
		if _, err := s.Reserve(KindPair); err != nil {
			t.Fatal(err)
		}
	}

	s.Collect(nil, ScanTyped)
	if s.FreeBlocks() != 20 {
		t.Errorf("free = %d after collecting all garbage, want 20", s.FreeBlocks())
	}
	if s.HeapBlocks() != 20 {
		t.Errorf("heap high-water mark = %d, want 20 (never shrinks)", s.HeapBlocks())
	}
}

// Blocks already on the free list are pre-marked: the sweep must not
// double-insert them.
func TestCollectSkipsFreeList(t *testing.T) {
	s := NewStore(64)
	var refs []Value
	for i := 0; i < 6; i++ {
		ref, _ := s.Reserve(KindPair)
		refs = append(refs, ref)
	}
	for _, ref := range refs[:3] {
		s.Release(ref)
	}

	s.Collect(nil, ScanTyped)
	if s.FreeBlocks() != 6 {
		t.Fatalf("free = %d, want 6 (3 freed + 3 collected, no duplicates)", s.FreeBlocks())
	}

	// Draining the free list must yield six distinct blocks.
	seen := map[Value]bool{}
	for i := 0; i < 6; i++ {
		ref, err := s.Reserve(KindPair)
		if err != nil {
			t.Fatal(err)
		}
		if seen[ref] {
			t.Fatalf("free list handed out %s twice: corrupted by sweep", ref)
		}
		seen[ref] = true
	}
	if s.HeapBlocks() != 6 {
		t.Errorf("heap grew to %d during drain, want 6", s.HeapBlocks())
	}
}

// Repeated collections with the same roots must be idempotent.
func TestCollectIdempotent(t *testing.T) {
	s := NewStore(64)
	keep, _ := s.NewPair(FromInt(1), Nil)
	for i := 0; i < 5; i++ {
		s.Reserve(KindPair)
	}

	s.Collect([]Value{keep}, ScanTyped)
	free := s.FreeBlocks()
	s.Collect([]Value{keep}, ScanTyped)
	if s.FreeBlocks() != free {
		t.Errorf("second collection changed free count: %d -> %d", free, s.FreeBlocks())
	}
	if s.KindOf(keep) != KindPair {
		t.Error("rooted block reclaimed on second cycle")
	}
}

// ---------------------------------------------------------------------------
// Scan modes
// ---------------------------------------------------------------------------

// Under the conservative scan an integer aliasing a valid block index
// retains it: safe over-retention, never a lost block.
func TestConservativeScanRetainsAliases(t *testing.T) {
	s := NewStore(64)
	victim, _ := s.NewActor(Nil) // block #0, referenced only by an int
	root, _ := s.NewPair(FromInt(int64(victim.BlockIndex())), Nil)

	s.Collect([]Value{root}, ScanConservative)
	if s.KindOf(victim) != KindActor {
		t.Fatal("conservative scan must retain an integer-aliased block")
	}

	// The typed scan sees through the alias and reclaims it.
	s.Collect([]Value{root}, ScanTyped)
	if s.KindOf(victim) != KindFree {
		t.Fatal("typed scan should reclaim the aliased block")
	}
}

// Out-of-range and junk words never crash the trace.
func TestTraceFiltersForeignWords(t *testing.T) {
	s := NewStore(16)
	root, _ := s.NewPair(FromInt(1<<40), FromBlockIndex(9999))
	s.Collect([]Value{root}, ScanConservative)
	if s.KindOf(root) != KindPair {
		t.Fatal("root lost while filtering foreign words")
	}
}

// The tombstone written into released blocks is a negative integer, so
// even the conservative range filter never follows it. A positive junk
// pattern would resurrect released blocks once the arena grew past it.
func TestJunkPatternNeverTraceable(t *testing.T) {
	if !junkWord.IsInt() || junkWord.Int() >= 0 {
		t.Fatalf("junk pattern = %s, want a negative integer", junkWord)
	}
	s := NewStore(64)
	victim, _ := s.NewActor(Nil)
	s.Release(victim)
	if _, ok := s.traceable(junkWord, ScanConservative); ok {
		t.Error("conservative scan follows the junk pattern")
	}
	if _, ok := s.traceable(junkWord, ScanTyped); ok {
		t.Error("typed scan follows the junk pattern")
	}
}

// ---------------------------------------------------------------------------
// Diagnostic report
// ---------------------------------------------------------------------------

// Collecting a 100-block heap with a small reachable set must leave
// exactly the reachable blocks allocated, with the report showing
// free-bytes = (100 - reachable) * block size.
func TestCollectReportArithmetic(t *testing.T) {
	s := NewStore(128)

	// Reachable set: root pair -> (event -> target actor).
	target, _ := s.NewActor(Nil)
	ev, _ := s.NewEvent(target, FromInt(1))
	root, _ := s.NewPair(ev, Nil)
	reachable := uint64(3)

	for s.HeapBlocks() < 100 {
		if _, err := s.Reserve(KindPair); err != nil {
			t.Fatal(err)
		}
	}

	s.Collect([]Value{root}, ScanTyped)

	report := s.Report()
	if report.HeapBytes != 100*BlockSize {
		t.Errorf("heap bytes = %d, want %d", report.HeapBytes, 100*BlockSize)
	}
	wantFree := (100 - reachable) * BlockSize
	if report.FreeBytes != wantFree {
		t.Errorf("free bytes = %d, want %d", report.FreeBytes, wantFree)
	}
	if report.FreeBlocks != 97 {
		t.Errorf("free blocks = %d, want 97", report.FreeBlocks)
	}
}

func TestReportOnFreshStore(t *testing.T) {
	s := NewStore(32)
	report := s.Report()
	if report.HeapBytes != 0 || report.FreeBytes != 0 {
		t.Errorf("fresh store report = %+v, want zeros", report)
	}
}
