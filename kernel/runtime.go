package kernel

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mycelia.kernel")

// ---------------------------------------------------------------------------
// Runtime: the single context value owning heap, queues, and dispatcher
// ---------------------------------------------------------------------------

// ErrNoRoot indicates the runtime was asked to run before Boot
// installed a root actor.
var ErrNoRoot = errors.New("no root actor installed")

// NativeBehavior is a behavior implemented in Go, registered under an
// atom name. It runs one whole turn: the actor-to-actor boundary (one
// event in, one transaction out) is never interleaved. Returning a
// non-nil error aborts the transaction.
type NativeBehavior func(tx *Txn, msg Value) error

// Options configures a runtime at boot. The arena, queue capacities,
// and sponsor are fixed for the process lifetime.
type Options struct {
	// ArenaBlocks is the statically reserved heap size in blocks.
	ArenaBlocks int

	// EventCapacity and ContCapacity size the two rings.
	EventCapacity int
	ContCapacity  int

	// Sponsor selects the resource policy. Nil means DefaultSponsor.
	Sponsor Sponsor

	// ScanMode selects the trace filter for collections.
	ScanMode ScanMode

	// GCLowWater, when positive, makes the dispatcher run a collection
	// between turns once the number of unreserved-plus-free blocks
	// drops below it. Reserve itself never collects.
	GCLowWater int
}

// DefaultArenaBlocks sizes the arena when Options leaves it zero.
const DefaultArenaBlocks = 4096

// DefaultOptions returns the standard boot configuration: 4096-block
// arena, 256-entry rings, default sponsor.
func DefaultOptions() Options {
	return Options{
		ArenaBlocks:   DefaultArenaBlocks,
		EventCapacity: DefaultQueueCapacity,
		ContCapacity:  DefaultQueueCapacity,
		Sponsor:       DefaultSponsor(0, false),
		ScanMode:      ScanTyped,
	}
}

// DispatchStats counts dispatcher activity since boot.
type DispatchStats struct {
	Turns       uint64 // events whose handling began
	Steps       uint64 // dispatcher steps (instructions + native turns)
	Commits     uint64
	Aborts      uint64
	Collections uint64
}

// Runtime owns the block store, the free list, the event queue, and
// the continuation queue. It is initialized once at boot, passed
// explicitly, and torn down never (process lifetime). All mutation is
// legal only from the single dispatcher thread.
type Runtime struct {
	store   *Store
	events  *Queue
	conts   *Queue
	atoms   *AtomTable
	natives map[uint32]NativeBehavior

	sponsor  Sponsor
	scanMode ScanMode
	lowWater int

	// Sponsor swap requested from another goroutine (config hot
	// reload); the dispatcher applies it between cycles.
	swapMu      sync.Mutex
	swapSponsor Sponsor

	root     Value // designated root block: the root actor
	retained Value // debug sponsor's chain of consumed events

	// In-flight transactions for threaded turns, keyed by continuation
	// block index. Their buffered effects are GC roots.
	txns map[uint32]*Txn

	stats DispatchStats
}

// New builds a runtime from options. Zero-valued fields take their
// defaults.
func New(opts Options) *Runtime {
	if opts.ArenaBlocks <= 0 {
		opts.ArenaBlocks = DefaultArenaBlocks
	}
	if opts.Sponsor == nil {
		opts.Sponsor = DefaultSponsor(0, false)
	}
	rt := &Runtime{
		store:    NewStore(opts.ArenaBlocks),
		events:   NewQueue("event queue", opts.EventCapacity),
		conts:    NewQueue("continuation queue", opts.ContCapacity),
		atoms:    NewAtomTable(),
		natives:  make(map[uint32]NativeBehavior),
		sponsor:  opts.Sponsor,
		scanMode: opts.ScanMode,
		lowWater: opts.GCLowWater,
		root:     Nil,
		retained: Nil,
		txns:     make(map[uint32]*Txn),
	}
	return rt
}

// Store exposes the block store to collaborators that build message
// structures directly (interpreter layers, tests).
func (rt *Runtime) Store() *Store {
	return rt.store
}

// Atoms exposes the interned atom table.
func (rt *Runtime) Atoms() *AtomTable {
	return rt.atoms
}

// Sponsor returns the current resource policy. Dispatcher-thread only,
// like every other accessor.
func (rt *Runtime) Sponsor() Sponsor {
	return rt.sponsor
}

// SetSponsor requests a resource-policy swap. Safe to call from any
// goroutine (the config watcher calls it from the fsnotify loop); the
// dispatcher picks the new policy up at the start of its next cycle,
// so a running turn always finishes under the sponsor it started with.
func (rt *Runtime) SetSponsor(s Sponsor) {
	if s == nil {
		return
	}
	rt.swapMu.Lock()
	rt.swapSponsor = s
	rt.swapMu.Unlock()
}

// applySponsor installs a requested sponsor swap. Called only from the
// dispatcher, between cycles.
func (rt *Runtime) applySponsor() {
	rt.swapMu.Lock()
	s := rt.swapSponsor
	rt.swapSponsor = nil
	rt.swapMu.Unlock()
	if s != nil {
		rt.sponsor = s
	}
}

// Stats returns dispatcher counters since boot.
func (rt *Runtime) Stats() DispatchStats {
	return rt.stats
}

// Atom interns a name and returns its value.
func (rt *Runtime) Atom(name string) Value {
	return FromAtomID(rt.atoms.Intern(name))
}

// RegisterBehavior installs a native behavior under an atom name and
// returns the atom value actors use as their behavior entry.
func (rt *Runtime) RegisterBehavior(name string, fn NativeBehavior) Value {
	id := rt.atoms.Intern(name)
	rt.natives[id] = fn
	return FromAtomID(id)
}

// ---------------------------------------------------------------------------
// External interface: creation, send, boot, diagnostics
// ---------------------------------------------------------------------------

// Create allocates a new actor with the given behavior, outside any
// transaction. This is the actor-creation entry point for external
// collaborators (drivers, interpreters).
func (rt *Runtime) Create(behavior Value) (Value, error) {
	return rt.store.NewActor(behavior)
}

// Send enqueues delivery of a message to a target actor, outside any
// transaction.
func (rt *Runtime) Send(target, msg Value) error {
	ev, err := rt.store.NewEvent(target, msg)
	if err != nil {
		return err
	}
	if err := rt.events.Enqueue(ev); err != nil {
		rt.store.Release(ev)
		return err
	}
	return nil
}

// Boot installs a root actor with the given behavior. The root actor
// is the designated GC root block.
func (rt *Runtime) Boot(behavior Value) (Value, error) {
	actor, err := rt.store.NewActor(behavior)
	if err != nil {
		return Nil, fmt.Errorf("boot: %w", err)
	}
	rt.root = actor
	log.Debugf("boot: root actor %s, sponsor %s", actor, rt.sponsor.Name())
	return actor, nil
}

// Root returns the designated root actor, or Nil before Boot.
func (rt *Runtime) Root() Value {
	return rt.root
}

// Report returns heap occupancy for observability tooling.
func (rt *Runtime) Report() Report {
	return rt.store.Report()
}

// RetainedEvents walks the debug sponsor's chain of consumed events,
// oldest last.
func (rt *Runtime) RetainedEvents() []Value {
	var out []Value
	for ev := rt.retained; !ev.IsNil(); ev = rt.store.EventNext(ev) {
		out = append(out, ev)
	}
	return out
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// rootSet gathers every root: the designated root block, both queue
// spans, the debug-retained chain, and in-flight transaction effects.
func (rt *Runtime) rootSet() []Value {
	roots := make([]Value, 0, 16+rt.events.Len()+rt.conts.Len())
	roots = append(roots, rt.root, rt.retained)
	roots = rt.events.Roots(roots)
	roots = rt.conts.Roots(roots)
	for _, tx := range rt.txns {
		roots = tx.roots(roots)
	}
	return roots
}

// Collect runs one synchronous mark-and-sweep cycle with the
// dispatcher paused (it must only be called between dispatcher steps).
func (rt *Runtime) Collect() CollectStats {
	stats := rt.store.Collect(rt.rootSet(), rt.scanMode)
	rt.stats.Collections++
	if rt.sponsor.TraceEnabled() {
		log.Debugf("gc: marked %d, swept %d in %s (%s scan)",
			stats.Marked, stats.Swept, stats.Duration, rt.scanMode)
	}
	return stats
}

// headroom returns how many blocks remain reservable without a
// collection.
func (rt *Runtime) headroom() int {
	return int(rt.store.FreeBlocks()) +
		(rt.store.Capacity() - int(rt.store.HeapBlocks()))
}

// ---------------------------------------------------------------------------
// Value construction helpers
// ---------------------------------------------------------------------------

// Pair allocates a cons cell.
func (rt *Runtime) Pair(car, cdr Value) (Value, error) {
	return rt.store.NewPair(car, cdr)
}

// List allocates a Nil-terminated pair chain of the given values.
func (rt *Runtime) List(vs ...Value) (Value, error) {
	list := Nil
	for i := len(vs) - 1; i >= 0; i-- {
		p, err := rt.store.NewPair(vs[i], list)
		if err != nil {
			return Nil, err
		}
		list = p
	}
	return list, nil
}

// Nth returns the 1-based nth element of a pair chain, or Nil.
func (rt *Runtime) Nth(list Value, n int) Value {
	for n > 1 && rt.store.KindOf(list) == KindPair {
		list = rt.store.Cdr(list)
		n--
	}
	if n != 1 {
		return Nil
	}
	return rt.store.Car(list)
}

// FormatValue renders a value with atom names resolved, recursing one
// level into pair chains. Diagnostics only.
func (rt *Runtime) FormatValue(v Value) string {
	switch {
	case v.IsAtom():
		if name := rt.atoms.Name(v.AtomID()); name != "" {
			return name
		}
		return v.String()
	case rt.store.KindOf(v) == KindPair:
		var sb strings.Builder
		sb.WriteByte('(')
		first := true
		for rt.store.KindOf(v) == KindPair {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			sb.WriteString(rt.FormatValue(rt.store.Car(v)))
			v = rt.store.Cdr(v)
		}
		if !v.IsNil() {
			sb.WriteString(" . ")
			sb.WriteString(rt.FormatValue(v))
		}
		sb.WriteByte(')')
		return sb.String()
	default:
		return v.String()
	}
}
