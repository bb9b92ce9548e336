package kernel

// ---------------------------------------------------------------------------
// Block: the single physical representation unit
// ---------------------------------------------------------------------------

// Kind is the explicit discriminant over the five logical block shapes.
// The reference cell layout interprets the leading word positionally; the
// discriminant makes the shape explicit while the payload words keep the
// uniform machine-word layout the conservative scan relies on.
type Kind uint8

const (
	KindFree Kind = iota
	KindActor
	KindPair
	KindEvent
	KindCont
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindActor:
		return "actor"
	case KindPair:
		return "pair"
	case KindEvent:
		return "event"
	case KindCont:
		return "cont"
	default:
		return "invalid"
	}
}

// Cell geometry. A cell is 8 machine words: one discriminant word plus
// BlockWords payload words.
const (
	BlockWords = 7
	BlockSize  = 8 * 8 // bytes per cell
)

// Block is a fixed-size heap cell. Every allocation is exactly one Block.
type Block struct {
	kind Kind
	w    [BlockWords]Value
}

// Kind returns the block's shape discriminant.
func (b *Block) Kind() Kind {
	return b.kind
}

// Word returns payload word i.
func (b *Block) Word(i int) Value {
	return b.w[i]
}

// Payload word indices per shape.
const (
	// Free-list node.
	wFreeNext = 0

	// Actor: behavior entry plus up to 6 data words.
	wActorBeh   = 0
	wActorState = 1 // first of 6 state words

	// Pair/cons cell.
	wPairCar = 0
	wPairCdr = 1

	// Event: pending message delivery.
	wEventTarget = 0
	wEventMsg    = 1
	wEventNext   = 2

	// Continuation: suspended computation.
	wContIP    = 0
	wContSP    = 1
	wContEvent = 2
	wContNext  = 3
)

// ActorStateWords is the number of data words an actor block carries
// beyond its behavior entry.
const ActorStateWords = BlockWords - 1

// junkWord is the recognizable pattern Release writes over a reclaimed
// block's body. It is a negative integer: the typed scan skips ints,
// and the conservative scan's range filter rejects negatives, so junk
// is never mistaken for a block reference at any arena size.
var junkWord = FromInt(-0x0DEADBEEF)
