package kernel

import "sync"

// ---------------------------------------------------------------------------
// Atom table
// ---------------------------------------------------------------------------

// Fault-reason atom names the dispatcher reports when a turn aborts
// without a behavior-supplied reason.
const (
	atomOutOfMemory     = "out-of-memory"
	atomQueueOverflow   = "queue-overflow"
	atomContOverflow    = "continuation-overflow"
	atomWatchdog        = "watchdog"
	atomUnknownBehavior = "unknown-behavior"
	atomBadInstruction  = "bad-instruction"
	atomBadIP           = "bad-instruction-pointer"
	atomCannotApply     = "cannot-apply"
)

// wellKnownAtoms are interned at construction, in this order, so the
// kernel's own names resolve to the same IDs in every runtime and every
// snapshot image.
var wellKnownAtoms = []string{
	VerbApply, VerbEval,
	atomOutOfMemory, atomQueueOverflow, atomContOverflow,
	atomWatchdog, atomUnknownBehavior,
	atomBadInstruction, atomBadIP, atomCannotApply,
}

// AtomTable maps symbolic names to dense IDs and back. An atom value
// carries only its ID, so two atoms compare equal exactly when their
// names do. IDs are assigned in intern order and never reused, which
// lets snapshots serialize the table as a bare name list.
type AtomTable struct {
	mu    sync.RWMutex
	ids   map[string]uint32
	names []string
}

// NewAtomTable builds a table with the kernel's well-known atoms
// already interned.
func NewAtomTable() *AtomTable {
	at := &AtomTable{ids: make(map[string]uint32, 64)}
	for _, name := range wellKnownAtoms {
		at.intern(name)
	}
	return at
}

// Intern returns the ID for name, assigning the next free ID on first
// sight. Safe for concurrent use: hosts may register behaviors from
// their own goroutines before the dispatcher starts.
func (at *AtomTable) Intern(name string) uint32 {
	if id, ok := at.Lookup(name); ok {
		return id
	}
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.intern(name)
}

// intern assigns an ID while holding the write lock (or during
// construction, before the table is shared). It consults the map again:
// the name may have been interned between the caller's lookup and its
// lock acquisition.
func (at *AtomTable) intern(name string) uint32 {
	if id, ok := at.ids[name]; ok {
		return id
	}
	id := uint32(len(at.names))
	at.ids[name] = id
	at.names = append(at.names, name)
	return id
}

// Lookup reports the ID interned for name, if any.
func (at *AtomTable) Lookup(name string) (uint32, bool) {
	at.mu.RLock()
	defer at.mu.RUnlock()
	id, ok := at.ids[name]
	return id, ok
}

// Name resolves an ID back to its name; unknown IDs resolve to "".
func (at *AtomTable) Name(id uint32) string {
	at.mu.RLock()
	defer at.mu.RUnlock()
	if int(id) < len(at.names) {
		return at.names[id]
	}
	return ""
}

// Len returns the number of interned atoms.
func (at *AtomTable) Len() int {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return len(at.names)
}

// Names copies the table in ID order for the snapshot codec.
func (at *AtomTable) Names() []string {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return append([]string(nil), at.names...)
}
