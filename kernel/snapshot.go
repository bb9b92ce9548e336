package kernel

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshot: CBOR image of the whole runtime state
// ---------------------------------------------------------------------------

// cborEncMode uses canonical encoding so identical runtime states
// produce identical snapshots.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("kernel: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// SnapshotVersion guards image compatibility.
const SnapshotVersion = 1

// ErrSnapshotBusy indicates in-flight transactions; a snapshot is only
// taken with every turn retired.
var ErrSnapshotBusy = errors.New("snapshot with in-flight transactions")

// ErrBadSnapshot indicates a corrupt or incompatible image.
var ErrBadSnapshot = errors.New("bad snapshot image")

type snapshotBlock struct {
	Kind  uint8
	Words [BlockWords]uint64
}

type snapshotImage struct {
	Version   int
	Sponsor   string
	ScanMode  int
	Capacity  uint32
	Top       uint32
	FreeHead  uint64
	FreeCount uint32
	Root      uint64
	Retained  uint64
	Blocks    []snapshotBlock
	Events    []uint64
	EventCap  int
	Conts     []uint64
	ContCap   int
	Atoms     []string
	LowWater  int
}

// Snapshot serializes the full runtime state: arena extent, every
// carved block, both queue spans, the root, the free list, and the
// atom table. Native behaviors are code, not state; after Restore the
// host re-registers them and atom IDs line up because the table is
// rebuilt in order.
func (rt *Runtime) Snapshot() ([]byte, error) {
	if len(rt.txns) > 0 {
		return nil, ErrSnapshotBusy
	}

	img := snapshotImage{
		Version:   SnapshotVersion,
		Sponsor:   rt.sponsor.Name(),
		ScanMode:  int(rt.scanMode),
		Capacity:  uint32(rt.store.Capacity()),
		Top:       rt.store.top,
		FreeHead:  uint64(rt.store.free),
		FreeCount: rt.store.nfree,
		Root:      uint64(rt.root),
		Retained:  uint64(rt.retained),
		Blocks:    make([]snapshotBlock, rt.store.top),
		EventCap:  rt.events.Cap(),
		ContCap:   rt.conts.Cap(),
		Atoms:     rt.atoms.Names(),
		LowWater:  rt.lowWater,
	}
	for i := uint32(0); i < rt.store.top; i++ {
		b := &rt.store.arena[i]
		sb := snapshotBlock{Kind: uint8(b.kind)}
		for w := 0; w < BlockWords; w++ {
			sb.Words[w] = uint64(b.w[w])
		}
		img.Blocks[i] = sb
	}
	for _, ev := range rt.events.Contents() {
		img.Events = append(img.Events, uint64(ev))
	}
	for _, k := range rt.conts.Contents() {
		img.Conts = append(img.Conts, uint64(k))
	}

	return cborEncMode.Marshal(img)
}

// Restore rebuilds a runtime from a snapshot image. The sponsor policy
// comes from the image; opts may override it by name resolution rules
// the host applies before calling.
func Restore(data []byte) (*Runtime, error) {
	var img snapshotImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("kernel: unmarshal snapshot: %w", err)
	}
	if img.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadSnapshot, img.Version)
	}
	if img.Top > img.Capacity || uint32(len(img.Blocks)) != img.Top {
		return nil, fmt.Errorf("%w: inconsistent heap extent", ErrBadSnapshot)
	}

	sponsor, err := SponsorByName(img.Sponsor, 0, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadSnapshot, err)
	}

	rt := New(Options{
		ArenaBlocks:   int(img.Capacity),
		EventCapacity: img.EventCap,
		ContCapacity:  img.ContCap,
		Sponsor:       sponsor,
		ScanMode:      ScanMode(img.ScanMode),
		GCLowWater:    img.LowWater,
	})

	rt.store.top = img.Top
	rt.store.free = Value(img.FreeHead)
	rt.store.nfree = img.FreeCount
	for i := uint32(0); i < img.Top; i++ {
		b := &rt.store.arena[i]
		b.kind = Kind(img.Blocks[i].Kind)
		for w := 0; w < BlockWords; w++ {
			b.w[w] = Value(img.Blocks[i].Words[w])
		}
	}

	for _, ev := range img.Events {
		if err := rt.events.Enqueue(Value(ev)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadSnapshot, err)
		}
	}
	for _, k := range img.Conts {
		if err := rt.conts.Enqueue(Value(k)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadSnapshot, err)
		}
	}

	for _, name := range img.Atoms {
		rt.atoms.Intern(name)
	}
	rt.root = Value(img.Root)
	rt.retained = Value(img.Retained)

	return rt, nil
}
