package kernel

import (
	"time"
)

// ---------------------------------------------------------------------------
// Garbage collector: synchronous mark-and-sweep over the block store
// ---------------------------------------------------------------------------

// ScanMode selects how the trace phase decides whether a payload word
// references a block.
type ScanMode int

const (
	// ScanTyped follows only words carrying the block tag. This is the
	// default for the explicit-discriminant representation.
	ScanTyped ScanMode = iota

	// ScanConservative additionally follows integer words whose value
	// happens to land inside the heap extent: a plain integer aliasing
	// a valid block is retained. Safe over-retention; nothing reachable
	// is ever freed.
	ScanConservative
)

// String returns the scan mode name.
func (m ScanMode) String() string {
	if m == ScanConservative {
		return "conservative"
	}
	return "typed"
}

// CollectStats holds statistics from a single collection cycle.
type CollectStats struct {
	Marked   uint32
	Swept    uint32
	Duration time.Duration
}

// Report summarizes heap occupancy for diagnostics.
type Report struct {
	HeapBytes  uint64
	FreeBytes  uint64
	HeapBlocks uint32
	FreeBlocks uint32
}

// Report returns total heap bytes carved from the arena and total
// free-list bytes.
func (s *Store) Report() Report {
	return Report{
		HeapBytes:  uint64(s.top) * BlockSize,
		FreeBytes:  uint64(s.nfree) * BlockSize,
		HeapBlocks: s.top,
		FreeBlocks: s.nfree,
	}
}

// mark bitmap helpers. The bitmap is transient: rebuilt at the start of
// every cycle, consumed by the sweep, never persisted.

func (s *Store) resetMarks(extent uint32) {
	words := int(extent+63) / 64
	if cap(s.marks) < words {
		s.marks = make([]uint64, words)
		return
	}
	s.marks = s.marks[:words]
	for i := range s.marks {
		s.marks[i] = 0
	}
}

func (s *Store) mark(i uint32) {
	s.marks[i>>6] |= 1 << (i & 63)
}

func (s *Store) marked(i uint32) bool {
	return s.marks[i>>6]&(1<<(i&63)) != 0
}

// traceable reports whether a payload word should be followed under
// the given scan mode, applying the structural filters (tag or range)
// that stand in for type information.
func (s *Store) traceable(v Value, mode ScanMode) (uint32, bool) {
	if v.IsBlock() {
		i := v.BlockIndex()
		return i, i < s.top
	}
	if mode == ScanConservative && v.IsInt() {
		n := v.Int()
		if n >= 0 && uint32(n) < s.top {
			return uint32(n), true
		}
	}
	return 0, false
}

// Collect runs one synchronous mark-and-sweep cycle. The caller passes
// every root: the designated root block, the live span of the event
// queue, the live span of the continuation queue, and any transaction
// temporaries. The collector assumes no concurrent mutation; it runs
// with the dispatcher paused.
//
// The collector itself never fails. An under-provisioned heap surfaces
// as ErrOutOfMemory on the next Reserve, not here.
func (s *Store) Collect(roots []Value, mode ScanMode) CollectStats {
	start := time.Now()
	stats := CollectStats{}

	// Phase 1: snapshot the heap extent and rebuild the bitmap.
	extent := s.top
	s.resetMarks(extent)

	// Phase 2: pre-mark the free list so the sweep never reclaims an
	// already-free block (double-insertion would corrupt the list).
	for f := s.free; !f.IsNil(); f = s.block(f).w[wFreeNext] {
		s.mark(f.BlockIndex())
	}

	// Phase 3: seed the scan set from the roots.
	scan := make([]uint32, 0, 64)
	for _, r := range roots {
		if i, ok := s.traceable(r, mode); ok && !s.marked(i) {
			s.mark(i)
			scan = append(scan, i)
			stats.Marked++
		}
	}

	// Phase 4: breadth-first trace over payload words.
	for len(scan) > 0 {
		i := scan[0]
		scan = scan[1:]
		b := &s.arena[i]
		for w := 0; w < BlockWords; w++ {
			if j, ok := s.traceable(b.w[w], mode); ok && !s.marked(j) {
				s.mark(j)
				scan = append(scan, j)
				stats.Marked++
			}
		}
	}

	// Phase 5: sweep linearly from the heap base, consuming mark bits
	// in step with the walk.
	for i := uint32(0); i < extent; i++ {
		if s.marked(i) {
			continue
		}
		ref := FromBlockIndex(i)
		if s.block(ref).kind != KindFree {
			s.Release(ref)
			stats.Swept++
		}
	}

	stats.Duration = time.Since(start)
	return stats
}
